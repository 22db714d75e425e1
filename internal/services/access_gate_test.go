package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/knowhub/backend/internal/models"
)

func newTestGate(t *testing.T) (*AccessGate, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	gate := NewAccessGate(NewLedgerService(db), NewPurchaseResolver(db), nil)
	return gate, mock, func() { db.Close() }
}

func TestAccessGate_Authorize(t *testing.T) {
	member := &models.User{ID: "user1", Role: models.RoleUser}
	admin := &models.User{ID: "admin1", Role: models.RoleAdmin}
	priced := &models.Resource{ID: "res1", Title: "Go Patterns", PointsRequired: 100}

	t.Run("free resource is granted without touching the ledger", func(t *testing.T) {
		gate, mock, closeDB := newTestGate(t)
		defer closeDB()

		decision, err := gate.Authorize(context.Background(), member, &models.Resource{ID: "res0", IsFree: true})
		assert.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Equal(t, AccessFree, decision.Reason)
		assert.Nil(t, decision.Transaction)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero-priced resource counts as free", func(t *testing.T) {
		gate, mock, closeDB := newTestGate(t)
		defer closeDB()

		decision, err := gate.Authorize(context.Background(), member, &models.Resource{ID: "res0", PointsRequired: 0})
		assert.NoError(t, err)
		assert.Equal(t, AccessFree, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin is exempt from charging", func(t *testing.T) {
		gate, mock, closeDB := newTestGate(t)
		defer closeDB()

		decision, err := gate.Authorize(context.Background(), admin, priced)
		assert.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Equal(t, AccessExempt, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("custom exemption predicate overrides the default", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		gate := NewAccessGate(NewLedgerService(db), NewPurchaseResolver(db),
			func(u *models.User) bool { return u.ID == "vip" })

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("admin1", models.KindPurchase, "resource_res1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		// Admin no longer exempt under the custom predicate.
		decision, err := gate.Authorize(context.Background(), admin, priced)
		assert.NoError(t, err)
		assert.Equal(t, AccessAlreadyPurchased, decision.Reason)

		decision, err = gate.Authorize(context.Background(), &models.User{ID: "vip"}, priced)
		assert.NoError(t, err)
		assert.Equal(t, AccessExempt, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeat access is granted without a second charge", func(t *testing.T) {
		gate, mock, closeDB := newTestGate(t)
		defer closeDB()

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1", models.KindPurchase, "resource_res1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		decision, err := gate.Authorize(context.Background(), member, priced)
		assert.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Equal(t, AccessAlreadyPurchased, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first access charges the full price", func(t *testing.T) {
		gate, mock, closeDB := newTestGate(t)
		defer closeDB()

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1", models.KindPurchase, "resource_res1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT points, total_recharged, version").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "total_recharged", "version"}).
				AddRow(300, 0, 1))
		mock.ExpectQuery("INSERT INTO point_transactions").
			WithArgs("user1", models.KindPurchase, int64(-100), int64(200), "Downloaded resource: Go Patterns", "resource_res1", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(200), int64(0), sqlmock.AnyArg(), "user1", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		decision, err := gate.Authorize(context.Background(), member, priced)
		assert.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Equal(t, AccessCharged, decision.Reason)
		assert.NotNil(t, decision.Transaction)
		assert.Equal(t, int64(-100), decision.Transaction.Amount)
		assert.Equal(t, int64(200), decision.Transaction.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance denies with payment required", func(t *testing.T) {
		gate, mock, closeDB := newTestGate(t)
		defer closeDB()

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1", models.KindPurchase, "resource_res1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT points, total_recharged, version").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "total_recharged", "version"}).
				AddRow(50, 0, 1))
		mock.ExpectRollback()

		decision, err := gate.Authorize(context.Background(), member, priced)
		assert.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, AccessPaymentRequired, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("racing duplicate debit resolves to already purchased", func(t *testing.T) {
		gate, mock, closeDB := newTestGate(t)
		defer closeDB()

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1", models.KindPurchase, "resource_res1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT points, total_recharged, version").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "total_recharged", "version"}).
				AddRow(300, 0, 1))
		mock.ExpectQuery("INSERT INTO point_transactions").
			WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "idx_purchase_once"})
		mock.ExpectRollback()

		decision, err := gate.Authorize(context.Background(), member, priced)
		assert.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Equal(t, AccessAlreadyPurchased, decision.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPurchaseResolver(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	resolver := NewPurchaseResolver(db)

	t.Run("reference key format is stable", func(t *testing.T) {
		assert.Equal(t, "resource_abc-123", ResourceReferenceKey("abc-123"))
	})

	t.Run("no purchase entry means not purchased", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("user1", models.KindPurchase, "resource_res9").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		purchased, err := resolver.HasPurchased(context.Background(), "user1", "res9")
		assert.NoError(t, err)
		assert.False(t, purchased)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
