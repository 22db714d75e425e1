package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/knowhub/backend/internal/config"
	"github.com/knowhub/backend/internal/models"
)

var (
	ErrPlanNotFound    = errors.New("recharge plan not found")
	ErrOrderNotFound   = errors.New("recharge order not found")
	ErrOrderNotPending = errors.New("order is not pending")
)

// OrderInput carries a user's top-up request. Either a plan or an explicit
// amount/points pair must be given.
type OrderInput struct {
	PlanID        *int   `json:"planId,omitempty"`
	Amount        int64  `json:"amount" validate:"gte=0"`
	Points        int64  `json:"points" validate:"gte=0"`
	PaymentMethod string `json:"paymentMethod" validate:"required,max=32"`
}

// PlanInput carries admin-supplied plan fields.
type PlanInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Points      int64  `json:"points" validate:"required,gt=0"`
	Price       int64  `json:"price" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=500"`
	IsActive    bool   `json:"isActive"`
	IsFeatured  bool   `json:"isFeatured"`
	SortOrder   int    `json:"sortOrder"`
}

// RechargeService manages top-up plans and orders. Approving an order credits
// the points and flips the order status inside one database transaction, so a
// crash cannot leave an approved order uncredited or vice versa.
type RechargeService struct {
	db     *sql.DB
	redis  *redis.Client
	ledger *LedgerService
	cfg    *config.PointsConfig
}

func NewRechargeService(db *sql.DB, redisClient *redis.Client, ledger *LedgerService, cfg *config.PointsConfig) *RechargeService {
	return &RechargeService{
		db:     db,
		redis:  redisClient,
		ledger: ledger,
		cfg:    cfg,
	}
}

func (s *RechargeService) ListPlans(ctx context.Context, includeInactive bool) ([]models.RechargePlan, error) {
	query := `
		SELECT id, name, points, price, description, is_active, is_featured, sort_order
		FROM recharge_plans`
	if !includeInactive {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY sort_order"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := []models.RechargePlan{}
	for rows.Next() {
		var plan models.RechargePlan
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.Points, &plan.Price,
			&plan.Description, &plan.IsActive, &plan.IsFeatured, &plan.SortOrder); err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (s *RechargeService) CreatePlan(ctx context.Context, input *PlanInput) (*models.RechargePlan, error) {
	plan := &models.RechargePlan{
		Name:        input.Name,
		Points:      input.Points,
		Price:       input.Price,
		Description: input.Description,
		IsActive:    input.IsActive,
		IsFeatured:  input.IsFeatured,
		SortOrder:   input.SortOrder,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO recharge_plans (name, points, price, description, is_active, is_featured, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		plan.Name, plan.Points, plan.Price, plan.Description, plan.IsActive, plan.IsFeatured, plan.SortOrder).Scan(&plan.ID)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *RechargeService) UpdatePlan(ctx context.Context, planID int, input *PlanInput) (*models.RechargePlan, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE recharge_plans
		SET name = $1, points = $2, price = $3, description = $4, is_active = $5, is_featured = $6, sort_order = $7
		WHERE id = $8`,
		input.Name, input.Points, input.Price, input.Description, input.IsActive, input.IsFeatured, input.SortOrder, planID)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrPlanNotFound
	}

	return &models.RechargePlan{
		ID:          planID,
		Name:        input.Name,
		Points:      input.Points,
		Price:       input.Price,
		Description: input.Description,
		IsActive:    input.IsActive,
		IsFeatured:  input.IsFeatured,
		SortOrder:   input.SortOrder,
	}, nil
}

func (s *RechargeService) DeletePlan(ctx context.Context, planID int) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM recharge_plans WHERE id = $1", planID)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// CreateOrder opens a PENDING top-up order. Plan-backed orders copy the
// plan's points and price at creation time so later plan edits cannot change
// what an approval credits.
func (s *RechargeService) CreateOrder(ctx context.Context, userID string, input *OrderInput) (*models.RechargeOrder, error) {
	points, amount := input.Points, input.Amount

	if input.PlanID != nil {
		var plan models.RechargePlan
		err := s.db.QueryRowContext(ctx, `
			SELECT points, price FROM recharge_plans WHERE id = $1 AND is_active = TRUE`,
			*input.PlanID).Scan(&plan.Points, &plan.Price)
		if err == sql.ErrNoRows {
			return nil, ErrPlanNotFound
		}
		if err != nil {
			return nil, err
		}
		points, amount = plan.Points, plan.Price
	}
	if points <= 0 {
		return nil, ErrInvalidAmount
	}

	order := &models.RechargeOrder{
		OrderNo:       generateOrderNo(),
		UserID:        userID,
		PlanID:        input.PlanID,
		Amount:        amount,
		Points:        points,
		PaymentMethod: input.PaymentMethod,
		Status:        models.OrderPending,
		CreatedAt:     time.Now(),
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO recharge_orders (order_no, user_id, plan_id, amount, points, payment_method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		order.OrderNo, order.UserID, order.PlanID, order.Amount, order.Points,
		order.PaymentMethod, order.Status, order.CreatedAt).Scan(&order.ID)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// PaymentQR renders a QR code carrying the order's payment payload. The
// payload is parked in redis so a scan can be matched back to the order.
func (s *RechargeService) PaymentQR(ctx context.Context, userID string, orderID int64) (string, error) {
	var order models.RechargeOrder
	err := s.db.QueryRowContext(ctx, `
		SELECT order_no, amount, points, status FROM recharge_orders WHERE id = $1 AND user_id = $2`,
		orderID, userID).Scan(&order.OrderNo, &order.Amount, &order.Points, &order.Status)
	if err == sql.ErrNoRows {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	if order.Status != models.OrderPending {
		return "", ErrOrderNotPending
	}

	payload, err := json.Marshal(map[string]any{
		"orderNo":   order.OrderNo,
		"amount":    order.Amount,
		"points":    order.Points,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return "", err
	}

	if s.redis != nil {
		key := fmt.Sprintf("payqr:%s", order.OrderNo)
		if err := s.redis.Set(ctx, key, payload, s.cfg.PaymentQRTTL).Err(); err != nil {
			return "", err
		}
	}

	qr, err := qrcode.New(string(payload), qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (s *RechargeService) ListUserOrders(ctx context.Context, userID string) ([]models.RechargeOrder, error) {
	return s.queryOrders(ctx, `
		SELECT id, order_no, user_id, plan_id, amount, points, payment_method, status, admin_note, approved_by, approved_at, created_at
		FROM recharge_orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *RechargeService) ListOrders(ctx context.Context, status string) ([]models.RechargeOrder, error) {
	query := `
		SELECT id, order_no, user_id, plan_id, amount, points, payment_method, status, admin_note, approved_by, approved_at, created_at
		FROM recharge_orders`
	args := []any{}
	if status != "" {
		args = append(args, status)
		query += " WHERE status = $1"
	}
	query += " ORDER BY created_at DESC"
	return s.queryOrders(ctx, query, args...)
}

// ApproveOrder transitions a PENDING order. Approval credits the points
// through the ledger in the same transaction that marks the order COMPLETED.
func (s *RechargeService) ApproveOrder(ctx context.Context, orderID int64, adminID, newStatus, adminNote string) (*models.RechargeOrder, error) {
	if newStatus != models.OrderApproved && newStatus != models.OrderRejected {
		return nil, fmt.Errorf("unsupported order status: %s", newStatus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var order models.RechargeOrder
	err = tx.QueryRowContext(ctx, `
		SELECT id, order_no, user_id, plan_id, amount, points, payment_method, status, created_at
		FROM recharge_orders WHERE id = $1 FOR UPDATE`,
		orderID).Scan(&order.ID, &order.OrderNo, &order.UserID, &order.PlanID, &order.Amount,
		&order.Points, &order.PaymentMethod, &order.Status, &order.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPending {
		return nil, ErrOrderNotPending
	}

	finalStatus := models.OrderRejected
	if newStatus == models.OrderApproved {
		if _, err := s.ledger.CreditTx(ctx, tx, order.UserID, order.Points, models.KindRecharge,
			fmt.Sprintf("Recharge order: %s", order.OrderNo), order.OrderNo); err != nil {
			return nil, err
		}
		finalStatus = models.OrderCompleted
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE recharge_orders
		SET status = $1, admin_note = $2, approved_by = $3, approved_at = $4
		WHERE id = $5`,
		finalStatus, adminNote, adminID, now, orderID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.Status = finalStatus
	order.AdminNote = adminNote
	order.ApprovedBy = &adminID
	order.ApprovedAt = &now
	return &order, nil
}

func (s *RechargeService) queryOrders(ctx context.Context, query string, args ...any) ([]models.RechargeOrder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []models.RechargeOrder{}
	for rows.Next() {
		var order models.RechargeOrder
		var adminNote sql.NullString
		if err := rows.Scan(&order.ID, &order.OrderNo, &order.UserID, &order.PlanID,
			&order.Amount, &order.Points, &order.PaymentMethod, &order.Status,
			&adminNote, &order.ApprovedBy, &order.ApprovedAt, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.AdminNote = adminNote.String
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func generateOrderNo() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return fmt.Sprintf("R%s%s", time.Now().Format("20060102150405"), strings.ToUpper(hex.EncodeToString(buf)))
}
