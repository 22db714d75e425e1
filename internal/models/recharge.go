package models

import "time"

// Recharge order statuses.
const (
	OrderPending   = "PENDING"
	OrderApproved  = "APPROVED"
	OrderCompleted = "COMPLETED"
	OrderRejected  = "REJECTED"
)

// RechargePlan is a purchasable points bundle.
type RechargePlan struct {
	ID          int    `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Points      int64  `json:"points" db:"points"`
	Price       int64  `json:"price" db:"price"` // in minor currency units
	Description string `json:"description" db:"description"`
	IsActive    bool   `json:"is_active" db:"is_active"`
	IsFeatured  bool   `json:"is_featured" db:"is_featured"`
	SortOrder   int    `json:"sort_order" db:"sort_order"`
}

// RechargeOrder tracks a user's top-up from creation through admin approval.
// Points are credited to the ledger only on the PENDING -> APPROVED transition.
type RechargeOrder struct {
	ID            int64      `json:"id" db:"id"`
	OrderNo       string     `json:"order_no" db:"order_no"`
	UserID        string     `json:"user_id" db:"user_id"`
	PlanID        *int       `json:"plan_id,omitempty" db:"plan_id"`
	Amount        int64      `json:"amount" db:"amount"`
	Points        int64      `json:"points" db:"points"`
	PaymentMethod string     `json:"payment_method" db:"payment_method"`
	Status        string     `json:"status" db:"status"`
	AdminNote     string     `json:"admin_note,omitempty" db:"admin_note"`
	ApprovedBy    *string    `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}
