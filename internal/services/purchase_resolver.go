package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/knowhub/backend/internal/models"
)

// ResourceReferenceKey builds the deterministic key a PURCHASE transaction
// carries for a resource. Ownership is answered from the ledger itself; there
// is no separate entitlements table.
func ResourceReferenceKey(resourceID string) string {
	return fmt.Sprintf("resource_%s", resourceID)
}

// PurchaseResolver answers whether a user already paid for a resource by
// looking for a PURCHASE entry with the resource's reference key. Pure read;
// ledger entries are immutable so the answer never needs invalidation.
type PurchaseResolver struct {
	db *sql.DB
}

func NewPurchaseResolver(db *sql.DB) *PurchaseResolver {
	return &PurchaseResolver{db: db}
}

func (r *PurchaseResolver) HasPurchased(ctx context.Context, userID, resourceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM point_transactions
			WHERE user_id = $1 AND kind = $2 AND reference_key = $3
		)`, userID, models.KindPurchase, ResourceReferenceKey(resourceID)).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
