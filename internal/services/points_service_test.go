package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/knowhub/backend/internal/audit"
	"github.com/knowhub/backend/internal/config"
	"github.com/knowhub/backend/internal/models"
)

func newTestPointsService(t *testing.T) (*PointsService, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	service := NewPointsService(db, NewLedgerService(db), audit.NewLogger(nil),
		&config.PointsConfig{MaxPageSize: 100})
	return service, mock, func() { db.Close() }
}

func authedRequest(method, target string, body []byte, userID string) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), "userID", userID)
	return req.WithContext(ctx)
}

func TestPointsService_GetBalance(t *testing.T) {
	service, mock, closeDB := newTestPointsService(t)
	defer closeDB()

	t.Run("returns balance and lifetime recharge", func(t *testing.T) {
		mock.ExpectQuery("SELECT points, total_recharged FROM users").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "total_recharged"}).AddRow(1200, 1000))

		w := httptest.NewRecorder()
		service.GetBalance(w, authedRequest("GET", "/api/v1/points/balance", nil, "user1"))

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(1200), resp["balance"])
		assert.Equal(t, float64(1000), resp["total_recharged"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing auth context", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.GetBalance(w, httptest.NewRequest("GET", "/api/v1/points/balance", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPointsService_Recharge(t *testing.T) {
	service, mock, closeDB := newTestPointsService(t)
	defer closeDB()

	t.Run("credits through the ledger", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT points, total_recharged, version").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "total_recharged", "version"}).
				AddRow(300, 0, 1))
		mock.ExpectQuery("INSERT INTO point_transactions").
			WithArgs("user1", models.KindRecharge, int64(500), int64(800), "Recharged 500 points", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
		mock.ExpectExec("UPDATE users").
			WithArgs(int64(800), int64(500), sqlmock.AnyArg(), "user1", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]int64{"amount": 500})
		w := httptest.NewRecorder()
		service.Recharge(w, authedRequest("POST", "/api/v1/points/recharge", body, "user1"))

		assert.Equal(t, http.StatusOK, w.Code)

		var entry models.PointTransaction
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
		assert.Equal(t, int64(800), entry.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero amount fails validation", func(t *testing.T) {
		body, _ := json.Marshal(map[string]int64{"amount": 0})
		w := httptest.NewRecorder()
		service.Recharge(w, authedRequest("POST", "/api/v1/points/recharge", body, "user1"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPointsService_AdminAdjust(t *testing.T) {
	service, mock, closeDB := newTestPointsService(t)
	defer closeDB()

	t.Run("unknown target user maps to 404", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT points, total_recharged, version").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"points", "total_recharged", "version"}))
		mock.ExpectRollback()

		body, _ := json.Marshal(adminAdjustRequest{UserID: "ghost", Amount: 100, Description: "grant"})
		w := httptest.NewRecorder()
		service.AdminAdjust(w, authedRequest("POST", "/api/v1/points/admin/adjust", body, "admin1"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overdraft maps to 400", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT points, total_recharged, version").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"points", "total_recharged", "version"}).
				AddRow(50, 0, 1))
		mock.ExpectRollback()

		body, _ := json.Marshal(adminAdjustRequest{UserID: "user1", Amount: -100, Description: "dispute"})
		w := httptest.NewRecorder()
		service.AdminAdjust(w, authedRequest("POST", "/api/v1/points/admin/adjust", body, "admin1"))

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "User has insufficient points", resp.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPointsService_ListTransactions(t *testing.T) {
	service, mock, closeDB := newTestPointsService(t)
	defer closeDB()

	columns := []string{"id", "user_id", "kind", "amount", "balance_after", "description", "reference_key", "created_at"}

	t.Run("history is scoped to the caller", func(t *testing.T) {
		mock.ExpectQuery("FROM point_transactions WHERE user_id").
			WithArgs("user1", 50, 0).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(2, "user1", models.KindPurchase, -100, 200, "Downloaded resource: Go Patterns", "resource_res1", time.Now()).
				AddRow(1, "user1", models.KindRegister, 300, 300, "Registration reward: 300 points", nil, time.Now()))

		w := httptest.NewRecorder()
		service.ListTransactions(w, authedRequest("GET", "/api/v1/points/transactions", nil, "user1"))

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Transactions []models.PointTransaction `json:"transactions"`
			Count        int                       `json:"count"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, models.KindPurchase, resp.Transactions[0].Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("kind filter and pagination caps are applied", func(t *testing.T) {
		mock.ExpectQuery("FROM point_transactions WHERE user_id").
			WithArgs("user1", models.KindRecharge, 100, 10).
			WillReturnRows(sqlmock.NewRows(columns))

		w := httptest.NewRecorder()
		req := authedRequest("GET", "/api/v1/points/transactions?kind=RECHARGE&limit=500&skip=10", nil, "user1")
		service.ListTransactions(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
