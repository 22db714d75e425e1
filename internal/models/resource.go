package models

import "time"

// Resource statuses.
const (
	ResourceDraft     = "DRAFT"
	ResourcePublished = "PUBLISHED"
	ResourceArchived  = "ARCHIVED"
)

// Resource is a downloadable item in the catalog. PointsRequired must be 0
// whenever IsFree is true.
type Resource struct {
	ID             string     `json:"id" db:"id"` // UUID
	Title          string     `json:"title" db:"title"`
	Slug           string     `json:"slug" db:"slug"`
	Description    string     `json:"description" db:"description"`
	CategoryID     int        `json:"category_id" db:"category_id"`
	IsFree         bool       `json:"is_free" db:"is_free"`
	PointsRequired int64      `json:"points_required" db:"points_required"`
	FileURL        string     `json:"-" db:"file_url"`
	FileType       string     `json:"file_type" db:"file_type"`
	FileSize       string     `json:"file_size" db:"file_size"`
	ThumbnailURL   string     `json:"thumbnail_url" db:"thumbnail_url"`
	IsFeatured     bool       `json:"is_featured" db:"is_featured"`
	IsPinned       bool       `json:"is_pinned" db:"is_pinned"`
	Status         string     `json:"status" db:"status"`
	Views          int64      `json:"views" db:"views"`
	Downloads      int64      `json:"downloads" db:"downloads"`
	AuthorID       string     `json:"author_id" db:"author_id"`
	PublishedAt    *time.Time `json:"published_at,omitempty" db:"published_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`

	// Purchased is computed per request for the calling user, never stored.
	Purchased bool `json:"purchased,omitempty"`
}
