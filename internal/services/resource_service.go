package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/knowhub/backend/internal/config"
	"github.com/knowhub/backend/internal/models"
)

var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrInvalidPricing   = errors.New("points_required must be 0 for free resources")
	ErrFileMissing      = errors.New("resource has no file attached")
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// ResourceFilter narrows resource listings.
type ResourceFilter struct {
	CategoryID int
	IsFree     *bool
	Search     string
	IsFeatured *bool
	IsPinned   *bool
	Skip       int
	Limit      int
}

// ResourceInput carries admin-supplied resource fields.
type ResourceInput struct {
	Title          string `json:"title" validate:"required,min=2,max=200"`
	Description    string `json:"description" validate:"max=5000"`
	CategoryID     int    `json:"categoryId" validate:"gte=0"`
	IsFree         bool   `json:"isFree"`
	PointsRequired int64  `json:"pointsRequired" validate:"gte=0"`
	FileURL        string `json:"fileUrl"`
	FileType       string `json:"fileType" validate:"max=16"`
	FileSize       string `json:"fileSize" validate:"max=32"`
	ThumbnailURL   string `json:"thumbnailUrl"`
	IsFeatured     bool   `json:"isFeatured"`
	IsPinned       bool   `json:"isPinned"`
}

// ResourceService owns the resource catalog and the paid download flow.
// Downloads run through the access gate; grants mint a short-lived
// redis-backed token that the delivery endpoint resolves to the file URL.
type ResourceService struct {
	db       *sql.DB
	redis    *redis.Client
	gate     *AccessGate
	resolver *PurchaseResolver
	cfg      *config.PointsConfig
}

// DownloadResult is returned to the client after a granted download.
type DownloadResult struct {
	DownloadURL string `json:"download_url"`
	Balance     int64  `json:"balance"`
	Downloads   int64  `json:"downloads"`
	Reason      string `json:"reason"`
}

func NewResourceService(db *sql.DB, redisClient *redis.Client, gate *AccessGate, resolver *PurchaseResolver, cfg *config.PointsConfig) *ResourceService {
	return &ResourceService{
		db:       db,
		redis:    redisClient,
		gate:     gate,
		resolver: resolver,
		cfg:      cfg,
	}
}

const resourceColumns = `id, title, slug, description, category_id, is_free, points_required,
	file_url, file_type, file_size, thumbnail_url, is_featured, is_pinned, status,
	views, downloads, author_id, published_at, created_at, updated_at`

func (s *ResourceService) List(ctx context.Context, filter ResourceFilter) ([]models.Resource, error) {
	query := "SELECT " + resourceColumns + " FROM resources WHERE status = $1"
	args := []any{models.ResourcePublished}

	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if filter.IsFree != nil {
		args = append(args, *filter.IsFree)
		query += fmt.Sprintf(" AND is_free = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND title ILIKE $%d", len(args))
	}
	if filter.IsFeatured != nil {
		args = append(args, *filter.IsFeatured)
		query += fmt.Sprintf(" AND is_featured = $%d", len(args))
	}
	if filter.IsPinned != nil {
		args = append(args, *filter.IsPinned)
		query += fmt.Sprintf(" AND is_pinned = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > s.cfg.MaxPageSize {
		limit = 50
	}
	args = append(args, limit, filter.Skip)
	query += fmt.Sprintf(" ORDER BY COALESCE(published_at, created_at) DESC, created_at DESC LIMIT $%d OFFSET $%d",
		len(args)-1, len(args))

	return s.queryResources(ctx, query, args...)
}

// Hot returns pinned, featured and most-downloaded resources for the homepage.
func (s *ResourceService) Hot(ctx context.Context, limit int) ([]models.Resource, error) {
	if limit <= 0 {
		limit = 6
	}
	query := "SELECT " + resourceColumns + ` FROM resources
		WHERE status = $1
		ORDER BY is_pinned DESC, COALESCE(published_at, created_at) DESC, is_featured DESC, downloads DESC
		LIMIT $2`
	return s.queryResources(ctx, query, models.ResourcePublished, limit)
}

func (s *ResourceService) Get(ctx context.Context, resourceID string) (*models.Resource, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+resourceColumns+" FROM resources WHERE id = $1", resourceID)
	resource, err := scanResource(row)
	if err == sql.ErrNoRows {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return resource, nil
}

// GetForUser returns a resource with its views counter bumped and the
// Purchased flag set for the caller (admins count as purchased).
func (s *ResourceService) GetForUser(ctx context.Context, resourceID string, user *models.User) (*models.Resource, error) {
	resource, err := s.Get(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE resources SET views = views + 1 WHERE id = $1", resourceID); err != nil {
		return nil, err
	}
	resource.Views++

	if user != nil && !resource.IsFree && resource.PointsRequired > 0 {
		if user.IsAdmin() {
			resource.Purchased = true
		} else {
			purchased, err := s.resolver.HasPurchased(ctx, user.ID, resourceID)
			if err != nil {
				return nil, err
			}
			resource.Purchased = purchased
		}
	}
	return resource, nil
}

func (s *ResourceService) Create(ctx context.Context, authorID string, input *ResourceInput) (*models.Resource, error) {
	if input.IsFree && input.PointsRequired != 0 {
		return nil, ErrInvalidPricing
	}

	slug, err := s.uniqueSlug(ctx, input.Title)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	resource := &models.Resource{
		ID:             uuid.NewString(),
		Title:          input.Title,
		Slug:           slug,
		Description:    input.Description,
		CategoryID:     input.CategoryID,
		IsFree:         input.IsFree,
		PointsRequired: input.PointsRequired,
		FileURL:        input.FileURL,
		FileType:       input.FileType,
		FileSize:       input.FileSize,
		ThumbnailURL:   input.ThumbnailURL,
		IsFeatured:     input.IsFeatured,
		IsPinned:       input.IsPinned,
		Status:         models.ResourcePublished,
		AuthorID:       authorID,
		PublishedAt:    &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, title, slug, description, category_id, is_free, points_required,
			file_url, file_type, file_size, thumbnail_url, is_featured, is_pinned, status,
			views, downloads, author_id, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 0, 0, $15, $16, $17, $18)`,
		resource.ID, resource.Title, resource.Slug, resource.Description, resource.CategoryID,
		resource.IsFree, resource.PointsRequired, resource.FileURL, resource.FileType,
		resource.FileSize, resource.ThumbnailURL, resource.IsFeatured, resource.IsPinned,
		resource.Status, resource.AuthorID, resource.PublishedAt, resource.CreatedAt, resource.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return resource, nil
}

func (s *ResourceService) Update(ctx context.Context, resourceID string, input *ResourceInput) (*models.Resource, error) {
	if input.IsFree && input.PointsRequired != 0 {
		return nil, ErrInvalidPricing
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE resources
		SET title = $1, description = $2, category_id = $3, is_free = $4, points_required = $5,
			file_url = $6, file_type = $7, file_size = $8, thumbnail_url = $9,
			is_featured = $10, is_pinned = $11, updated_at = $12
		WHERE id = $13`,
		input.Title, input.Description, input.CategoryID, input.IsFree, input.PointsRequired,
		input.FileURL, input.FileType, input.FileSize, input.ThumbnailURL,
		input.IsFeatured, input.IsPinned, time.Now(), resourceID)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrResourceNotFound
	}

	return s.Get(ctx, resourceID)
}

func (s *ResourceService) Delete(ctx context.Context, resourceID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM resources WHERE id = $1", resourceID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrResourceNotFound
	}
	return nil
}

// Download runs the access gate for the user and, on grant, bumps the
// downloads counter and issues the delivery URL. The decision is returned
// alongside so the handler can answer 402 on denial.
func (s *ResourceService) Download(ctx context.Context, user *models.User, resourceID string) (*DownloadResult, *AccessDecision, error) {
	resource, err := s.Get(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	if resource.FileURL == "" {
		return nil, nil, ErrFileMissing
	}

	decision, err := s.gate.Authorize(ctx, user, resource)
	if err != nil {
		return nil, nil, err
	}
	if !decision.Granted {
		return nil, decision, nil
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE resources SET downloads = downloads + 1 WHERE id = $1", resourceID); err != nil {
		return nil, nil, err
	}
	resource.Downloads++

	var balance int64
	if err := s.db.QueryRowContext(ctx, "SELECT points FROM users WHERE id = $1", user.ID).Scan(&balance); err != nil {
		return nil, nil, err
	}

	downloadURL, err := s.issueDownloadURL(ctx, resource)
	if err != nil {
		return nil, nil, err
	}

	return &DownloadResult{
		DownloadURL: downloadURL,
		Balance:     balance,
		Downloads:   resource.Downloads,
		Reason:      decision.Reason,
	}, decision, nil
}

// ResolveDownloadToken exchanges a token minted by Download for the file URL.
func (s *ResourceService) ResolveDownloadToken(ctx context.Context, token string) (string, error) {
	if s.redis == nil {
		return "", fmt.Errorf("download tokens unavailable")
	}
	key := fmt.Sprintf("%s:%s", s.cfg.DownloadTokenPrefix, token)
	fileURL, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("invalid or expired download token")
	}
	if err != nil {
		return "", err
	}
	return fileURL, nil
}

func (s *ResourceService) issueDownloadURL(ctx context.Context, resource *models.Resource) (string, error) {
	// External URLs pass through untouched; local objects get a one-hour token.
	if strings.HasPrefix(resource.FileURL, "http") || s.redis == nil {
		return resource.FileURL, nil
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.URLEncoding.EncodeToString(buf)

	key := fmt.Sprintf("%s:%s", s.cfg.DownloadTokenPrefix, token)
	if err := s.redis.Set(ctx, key, resource.FileURL, s.cfg.DownloadTokenTTL).Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("/api/v1/resources/files/%s", token), nil
}

func (s *ResourceService) uniqueSlug(ctx context.Context, title string) (string, error) {
	base := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if base == "" {
		base = "resource"
	}

	slug := base
	for counter := 1; ; counter++ {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM resources WHERE slug = $1)", slug).Scan(&exists)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}

func (s *ResourceService) queryResources(ctx context.Context, query string, args ...any) ([]models.Resource, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	resources := []models.Resource{}
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, *resource)
	}
	return resources, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*models.Resource, error) {
	var resource models.Resource
	err := row.Scan(&resource.ID, &resource.Title, &resource.Slug, &resource.Description,
		&resource.CategoryID, &resource.IsFree, &resource.PointsRequired, &resource.FileURL,
		&resource.FileType, &resource.FileSize, &resource.ThumbnailURL, &resource.IsFeatured,
		&resource.IsPinned, &resource.Status, &resource.Views, &resource.Downloads,
		&resource.AuthorID, &resource.PublishedAt, &resource.CreatedAt, &resource.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &resource, nil
}
