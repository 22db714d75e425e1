package services

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/knowhub/backend/internal/audit"
	"github.com/knowhub/backend/internal/config"
	"github.com/knowhub/backend/internal/models"
)

// PointsService exposes the ledger over HTTP: balance and history for users,
// adjustment and reporting for admins.
type PointsService struct {
	db        *sql.DB
	ledger    *LedgerService
	audit     *audit.Logger
	cfg       *config.PointsConfig
	validator *ValidationHelper
}

type rechargeRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type adminAdjustRequest struct {
	UserID       string `json:"userId" validate:"required"`
	Amount       int64  `json:"amount" validate:"required"`
	Description  string `json:"description" validate:"required,max=200"`
	ReferenceKey string `json:"referenceKey,omitempty"`
}

func NewPointsService(db *sql.DB, ledger *LedgerService, auditLogger *audit.Logger, cfg *config.PointsConfig) *PointsService {
	return &PointsService{
		db:        db,
		ledger:    ledger,
		audit:     auditLogger,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// Recharge credits points to the calling user directly. Placeholder for a
// payment provider callback; manual top-ups go through recharge orders.
// @Summary Recharge points
// @Description Credit points to the authenticated user
// @Tags points
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64} true "Recharge request"
// @Success 200 {object} models.PointTransaction
// @Failure 400 {object} ErrorResponse
// @Router /points/recharge [post]
func (ps *PointsService) Recharge(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req rechargeRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	refKey := fmt.Sprintf("recharge_%s_%d", userID, time.Now().Unix())
	entry, err := ps.ledger.Credit(r.Context(), userID, req.Amount, models.KindRecharge,
		fmt.Sprintf("Recharged %d points", req.Amount), refKey)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		log.Printf("[POINTS] Recharge failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to recharge points", http.StatusInternalServerError, nil)
		return
	}

	ps.audit.LogOperation(userID, audit.ActionPointRecharge, "transaction",
		strconv.FormatInt(entry.ID, 10), r.RemoteAddr, r.UserAgent(),
		fmt.Sprintf("Recharged %d points", req.Amount))

	SendJSON(w, http.StatusOK, entry)
}

// GetBalance returns the calling user's balance
// @Summary Get balance
// @Description Return the authenticated user's point balance
// @Tags points
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{user_id=string,balance=int64,total_recharged=int64}
// @Failure 401 {object} ErrorResponse
// @Router /points/balance [get]
func (ps *PointsService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var balance, totalRecharged int64
	err := ps.db.QueryRowContext(r.Context(),
		"SELECT points, total_recharged FROM users WHERE id = $1", userID).
		Scan(&balance, &totalRecharged)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[POINTS] Balance lookup failed for user %s: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		}
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"user_id":         userID,
		"balance":         balance,
		"total_recharged": totalRecharged,
	})
}

// ListTransactions returns the calling user's ledger history
// @Summary List transactions
// @Description Return paginated point transactions for the authenticated user
// @Tags points
// @Produce json
// @Security BearerAuth
// @Param kind query string false "Filter by transaction kind"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} object{transactions=[]models.PointTransaction,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /points/transactions [get]
func (ps *PointsService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	skip, limit := ps.pagination(r)
	kind := r.URL.Query().Get("kind")

	entries, err := ps.queryTransactions(r, userID, kind, skip, limit)
	if err != nil {
		log.Printf("[POINTS] Transaction listing failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"transactions": entries,
		"count":        len(entries),
	})
}

// AdminAdjust applies a signed balance correction to a target user
// @Summary Adjust user points
// @Description Credit or debit a user's balance (admin only)
// @Tags points
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{userId=string,amount=int64,description=string} true "Adjustment request"
// @Success 200 {object} models.PointTransaction
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /points/admin/adjust [post]
func (ps *PointsService) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	actorID, _ := r.Context().Value("userID").(string)

	var req adminAdjustRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	entry, err := ps.ledger.AdminAdjust(r.Context(), req.UserID, req.Amount, req.Description, req.ReferenceKey)
	switch {
	case errors.Is(err, ErrUserNotFound):
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	case errors.Is(err, ErrInsufficientBalance):
		SendErrorResponse(w, "User has insufficient points", http.StatusBadRequest, nil)
		return
	case errors.Is(err, ErrInvalidAmount):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	case err != nil:
		log.Printf("[POINTS] Admin adjust failed for user %s: %v", req.UserID, err)
		SendErrorResponse(w, "Failed to adjust points", http.StatusInternalServerError, nil)
		return
	}

	ps.audit.LogOperation(actorID, audit.ActionAdminAdjust, "transaction",
		strconv.FormatInt(entry.ID, 10), r.RemoteAddr, r.UserAgent(),
		fmt.Sprintf("Adjusted %d points for user %s", req.Amount, req.UserID))

	SendJSON(w, http.StatusOK, entry)
}

// AdminListTransactions returns all transactions with aggregate sums
// @Summary List all transactions
// @Description Return paginated transactions across users with totals (admin only)
// @Tags points
// @Produce json
// @Security BearerAuth
// @Param userId query string false "Filter by user"
// @Param kind query string false "Filter by transaction kind"
// @Success 200 {object} object{transactions=[]models.PointTransaction,totals=object}
// @Failure 500 {object} ErrorResponse
// @Router /points/admin/transactions [get]
func (ps *PointsService) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	skip, limit := ps.pagination(r)
	userID := r.URL.Query().Get("userId")
	kind := r.URL.Query().Get("kind")

	entries, err := ps.queryTransactions(r, userID, kind, skip, limit)
	if err != nil {
		log.Printf("[POINTS] Admin transaction listing failed: %v", err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	var totalRecharged, totalSpent int64
	err = ps.db.QueryRowContext(r.Context(), `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE kind = $1), 0),
			COALESCE(-SUM(amount) FILTER (WHERE kind = $2), 0)
		FROM point_transactions`,
		models.KindRecharge, models.KindPurchase).Scan(&totalRecharged, &totalSpent)
	if err != nil {
		log.Printf("[POINTS] Aggregate query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch transaction totals", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"transactions": entries,
		"count":        len(entries),
		"totals": map[string]int64{
			"recharged": totalRecharged,
			"spent":     totalSpent,
		},
	})
}

func (ps *PointsService) queryTransactions(r *http.Request, userID, kind string, skip, limit int) ([]models.PointTransaction, error) {
	query := `
		SELECT id, user_id, kind, amount, balance_after, description, reference_key, created_at
		FROM point_transactions`
	args := []any{}
	where := ""

	if userID != "" {
		args = append(args, userID)
		where = fmt.Sprintf(" WHERE user_id = $%d", len(args))
	}
	if kind != "" {
		args = append(args, kind)
		if where == "" {
			where = fmt.Sprintf(" WHERE kind = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND kind = $%d", len(args))
		}
	}

	args = append(args, limit, skip)
	query += where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := ps.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.PointTransaction{}
	for rows.Next() {
		var entry models.PointTransaction
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Kind, &entry.Amount,
			&entry.BalanceAfter, &entry.Description, &entry.ReferenceKey, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (ps *PointsService) pagination(r *http.Request) (skip, limit int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > ps.cfg.MaxPageSize {
		limit = ps.cfg.MaxPageSize
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("skip")); err == nil && v > 0 {
		skip = v
	}
	return skip, limit
}
