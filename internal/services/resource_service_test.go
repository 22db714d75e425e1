package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/knowhub/backend/internal/config"
	"github.com/knowhub/backend/internal/models"
)

var resourceTestColumns = []string{
	"id", "title", "slug", "description", "category_id", "is_free", "points_required",
	"file_url", "file_type", "file_size", "thumbnail_url", "is_featured", "is_pinned", "status",
	"views", "downloads", "author_id", "published_at", "created_at", "updated_at",
}

func pricedResourceRow(id, title string, points int64, fileURL string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(resourceTestColumns).
		AddRow(id, title, "slug-"+id, "desc", 1, false, points,
			fileURL, "pdf", "2.4 MB", "", false, false, models.ResourcePublished,
			10, 5, "author1", now, now, now)
}

func newTestResourceService(t *testing.T) (*ResourceService, sqlmock.Sqlmock, redismock.ClientMock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	redisClient, redisMock := redismock.NewClientMock()
	resolver := NewPurchaseResolver(db)
	gate := NewAccessGate(NewLedgerService(db), resolver, nil)
	cfg := &config.PointsConfig{
		DownloadTokenTTL:    time.Hour,
		DownloadTokenPrefix: "dl",
		MaxPageSize:         100,
	}
	return NewResourceService(db, redisClient, gate, resolver, cfg), mock, redisMock, func() { db.Close() }
}

func TestResourceService_Create(t *testing.T) {
	service, mock, _, closeDB := newTestResourceService(t)
	defer closeDB()

	t.Run("free resource cannot carry a price", func(t *testing.T) {
		_, err := service.Create(context.Background(), "admin1", &ResourceInput{
			Title:          "Free but priced",
			IsFree:         true,
			PointsRequired: 50,
		})
		assert.ErrorIs(t, err, ErrInvalidPricing)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("slug is derived from the title and deduplicated", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("go-concurrency-patterns").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("go-concurrency-patterns-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		mock.ExpectExec("INSERT INTO resources").
			WillReturnResult(sqlmock.NewResult(0, 1))

		resource, err := service.Create(context.Background(), "admin1", &ResourceInput{
			Title:          "Go Concurrency Patterns!",
			PointsRequired: 100,
			FileURL:        "uploads/go-patterns.pdf",
		})
		assert.NoError(t, err)
		assert.Equal(t, "go-concurrency-patterns-1", resource.Slug)
		assert.Equal(t, models.ResourcePublished, resource.Status)
		assert.NotNil(t, resource.PublishedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResourceService_GetForUser(t *testing.T) {
	t.Run("view counter is bumped and purchase flag resolved", func(t *testing.T) {
		service, mock, _, closeDB := newTestResourceService(t)
		defer closeDB()

		mock.ExpectQuery("FROM resources WHERE id").
			WithArgs("res1").
			WillReturnRows(pricedResourceRow("res1", "Go Patterns", 100, "uploads/file.pdf"))

		mock.ExpectExec("UPDATE resources SET views").
			WithArgs("res1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1", models.KindPurchase, "resource_res1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		resource, err := service.GetForUser(context.Background(), "res1", &models.User{ID: "user1", Role: models.RoleUser})
		assert.NoError(t, err)
		assert.Equal(t, int64(11), resource.Views)
		assert.True(t, resource.Purchased)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admins see priced resources as purchased without a lookup", func(t *testing.T) {
		service, mock, _, closeDB := newTestResourceService(t)
		defer closeDB()

		mock.ExpectQuery("FROM resources WHERE id").
			WithArgs("res1").
			WillReturnRows(pricedResourceRow("res1", "Go Patterns", 100, "uploads/file.pdf"))
		mock.ExpectExec("UPDATE resources SET views").
			WithArgs("res1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		resource, err := service.GetForUser(context.Background(), "res1", &models.User{ID: "admin1", Role: models.RoleAdmin})
		assert.NoError(t, err)
		assert.True(t, resource.Purchased)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing resource", func(t *testing.T) {
		service, mock, _, closeDB := newTestResourceService(t)
		defer closeDB()

		mock.ExpectQuery("FROM resources WHERE id").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(resourceTestColumns))

		_, err := service.GetForUser(context.Background(), "ghost", nil)
		assert.ErrorIs(t, err, ErrResourceNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResourceService_Download(t *testing.T) {
	member := &models.User{ID: "user1", Role: models.RoleUser}

	t.Run("granted download charges, counts and mints a token", func(t *testing.T) {
		service, mock, redisMock, closeDB := newTestResourceService(t)
		defer closeDB()

		mock.ExpectQuery("FROM resources WHERE id").
			WithArgs("res1").
			WillReturnRows(pricedResourceRow("res1", "Go Patterns", 100, "uploads/file.pdf"))

		// First-time purchase through the gate.
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1", models.KindPurchase, "resource_res1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT points, total_recharged, version").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "total_recharged", "version"}).
				AddRow(300, 0, 1))
		mock.ExpectQuery("INSERT INTO point_transactions").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
		mock.ExpectExec("UPDATE users").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectExec("UPDATE resources SET downloads").
			WithArgs("res1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT points FROM users").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(200))

		redisMock.Regexp().ExpectSet(`dl:.*`, "uploads/file.pdf", time.Hour).SetVal("OK")

		result, decision, err := service.Download(context.Background(), member, "res1")
		assert.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Equal(t, AccessCharged, result.Reason)
		assert.Equal(t, int64(200), result.Balance)
		assert.Equal(t, int64(6), result.Downloads)
		assert.True(t, strings.HasPrefix(result.DownloadURL, "/api/v1/resources/files/"))
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("external file URLs pass through without a token", func(t *testing.T) {
		service, mock, redisMock, closeDB := newTestResourceService(t)
		defer closeDB()

		mock.ExpectQuery("FROM resources WHERE id").
			WithArgs("res2").
			WillReturnRows(pricedResourceRow("res2", "Hosted Elsewhere", 100, "https://cdn.example.com/file.pdf"))

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1", models.KindPurchase, "resource_res2").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		mock.ExpectExec("UPDATE resources SET downloads").
			WithArgs("res2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT points FROM users").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(300))

		result, _, err := service.Download(context.Background(), member, "res2")
		assert.NoError(t, err)
		assert.Equal(t, AccessAlreadyPurchased, result.Reason)
		assert.Equal(t, "https://cdn.example.com/file.pdf", result.DownloadURL)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("denied download issues nothing", func(t *testing.T) {
		service, mock, redisMock, closeDB := newTestResourceService(t)
		defer closeDB()

		mock.ExpectQuery("FROM resources WHERE id").
			WithArgs("res1").
			WillReturnRows(pricedResourceRow("res1", "Go Patterns", 100, "uploads/file.pdf"))

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1", models.KindPurchase, "resource_res1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT points, total_recharged, version").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "total_recharged", "version"}).
				AddRow(20, 0, 1))
		mock.ExpectRollback()

		result, decision, err := service.Download(context.Background(), member, "res1")
		assert.NoError(t, err)
		assert.Nil(t, result)
		assert.False(t, decision.Granted)
		assert.Equal(t, AccessPaymentRequired, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("resource without a file cannot be downloaded", func(t *testing.T) {
		service, mock, _, closeDB := newTestResourceService(t)
		defer closeDB()

		mock.ExpectQuery("FROM resources WHERE id").
			WithArgs("res3").
			WillReturnRows(pricedResourceRow("res3", "No File", 100, ""))

		_, _, err := service.Download(context.Background(), member, "res3")
		assert.ErrorIs(t, err, ErrFileMissing)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResourceService_ResolveDownloadToken(t *testing.T) {
	service, _, redisMock, closeDB := newTestResourceService(t)
	defer closeDB()

	t.Run("valid token", func(t *testing.T) {
		redisMock.ExpectGet("dl:tok123").SetVal("uploads/file.pdf")

		fileURL, err := service.ResolveDownloadToken(context.Background(), "tok123")
		assert.NoError(t, err)
		assert.Equal(t, "uploads/file.pdf", fileURL)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("expired token", func(t *testing.T) {
		redisMock.ExpectGet("dl:gone").RedisNil()

		_, err := service.ResolveDownloadToken(context.Background(), "gone")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "expired")
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestResourceService_Update(t *testing.T) {
	service, mock, _, closeDB := newTestResourceService(t)
	defer closeDB()

	t.Run("pricing invariant holds on update too", func(t *testing.T) {
		_, err := service.Update(context.Background(), "res1", &ResourceInput{
			Title:          "Now Free",
			IsFree:         true,
			PointsRequired: 10,
		})
		assert.ErrorIs(t, err, ErrInvalidPricing)
	})

	t.Run("unknown resource", func(t *testing.T) {
		mock.ExpectExec("UPDATE resources").
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := service.Update(context.Background(), "ghost", &ResourceInput{Title: "Whatever"})
		assert.ErrorIs(t, err, ErrResourceNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
