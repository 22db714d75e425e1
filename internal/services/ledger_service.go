package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/knowhub/backend/internal/models"
)

// Ledger errors. Callers branch on these with errors.Is; anything else is a
// persistence failure and means the operation did not happen.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidKind         = errors.New("invalid transaction kind")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUserNotFound        = errors.New("user not found")
)

// LedgerService is the single writer of user point balances. Every mutation
// locks the user row, appends a point_transactions entry carrying the
// resulting balance, and updates the cached balance in the same database
// transaction. The transaction log is the source of truth; the points column
// is a replayable snapshot of it.
type LedgerService struct {
	db *sql.DB
}

type lockedAccount struct {
	Points         int64
	TotalRecharged int64
	Version        int
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// Credit adds amount points to the user and records a transaction of the
// given kind. RECHARGE credits also bump the lifetime recharge counter.
func (s *LedgerService) Credit(ctx context.Context, userID string, amount int64, kind, description, referenceKey string) (*models.PointTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := s.CreditTx(ctx, tx, userID, amount, kind, description, referenceKey)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreditTx is Credit running inside a caller-owned transaction, so signup
// rewards and order approvals commit together with their surrounding writes.
func (s *LedgerService) CreditTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, kind, description, referenceKey string) (*models.PointTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !models.CreditKinds[kind] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	account, err := s.lockUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	newBalance := account.Points + amount
	newRecharged := account.TotalRecharged
	if kind == models.KindRecharge {
		newRecharged += amount
	}

	entry, err := s.appendEntry(ctx, tx, userID, kind, amount, newBalance, description, referenceKey)
	if err != nil {
		return nil, err
	}

	if err := s.updateBalance(ctx, tx, userID, newBalance, newRecharged, account.Version); err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit removes amount points from the user, recording a PURCHASE transaction
// with a negative amount. Fails with ErrInsufficientBalance before any write
// when the balance cannot cover it.
func (s *LedgerService) Debit(ctx context.Context, userID string, amount int64, description, referenceKey string) (*models.PointTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := s.DebitTx(ctx, tx, userID, amount, description, referenceKey)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// DebitTx is Debit running inside a caller-owned transaction.
func (s *LedgerService) DebitTx(ctx context.Context, tx *sql.Tx, userID string, amount int64, description, referenceKey string) (*models.PointTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	account, err := s.lockUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if account.Points < amount {
		return nil, ErrInsufficientBalance
	}

	newBalance := account.Points - amount
	entry, err := s.appendEntry(ctx, tx, userID, models.KindPurchase, -amount, newBalance, description, referenceKey)
	if err != nil {
		return nil, err
	}

	if err := s.updateBalance(ctx, tx, userID, newBalance, account.TotalRecharged, account.Version); err != nil {
		return nil, err
	}
	return entry, nil
}

// AdminAdjust applies a signed correction to a user's balance. Negative
// adjustments that exceed the balance fail with ErrInsufficientBalance rather
// than clamping to zero. Authorization is the HTTP layer's job.
func (s *LedgerService) AdminAdjust(ctx context.Context, userID string, signedAmount int64, description, referenceKey string) (*models.PointTransaction, error) {
	if signedAmount >= 0 {
		return s.Credit(ctx, userID, signedAmount, models.KindAdminAdjust, description, referenceKey)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := s.lockUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if account.Points < -signedAmount {
		return nil, ErrInsufficientBalance
	}

	newBalance := account.Points + signedAmount
	entry, err := s.appendEntry(ctx, tx, userID, models.KindAdminAdjust, signedAmount, newBalance, description, referenceKey)
	if err != nil {
		return nil, err
	}

	if err := s.updateBalance(ctx, tx, userID, newBalance, account.TotalRecharged, account.Version); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *LedgerService) lockUser(ctx context.Context, tx *sql.Tx, userID string) (*lockedAccount, error) {
	var account lockedAccount
	err := tx.QueryRowContext(ctx, `
		SELECT points, total_recharged, version
		FROM users
		WHERE id = $1
		FOR UPDATE`, userID).Scan(&account.Points, &account.TotalRecharged, &account.Version)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerService) appendEntry(ctx context.Context, tx *sql.Tx, userID, kind string, amount, balanceAfter int64, description, referenceKey string) (*models.PointTransaction, error) {
	entry := &models.PointTransaction{
		UserID:       userID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Description:  description,
		ReferenceKey: sql.NullString{String: referenceKey, Valid: referenceKey != ""},
		CreatedAt:    time.Now(),
	}

	err := tx.QueryRowContext(ctx, `
		INSERT INTO point_transactions (user_id, kind, amount, balance_after, description, reference_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		entry.UserID, entry.Kind, entry.Amount, entry.BalanceAfter, entry.Description, entry.ReferenceKey, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *LedgerService) updateBalance(ctx context.Context, tx *sql.Tx, userID string, newBalance, newRecharged int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE users
		SET points = $1, total_recharged = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`,
		newBalance, newRecharged, time.Now(), userID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for user %s", userID)
	}
	return nil
}
