package models

import (
	"database/sql"
	"time"
)

// Transaction kinds. Amounts are signed: credits positive, debits negative.
const (
	KindRegister    = "REGISTER"     // registration reward
	KindRecharge    = "RECHARGE"     // paid top-up
	KindPurchase    = "PURCHASE"     // resource unlock (always negative)
	KindRefund      = "REFUND"       // reversal of a purchase
	KindAdminAdjust = "ADMIN_ADJUST" // manual correction, either sign
)

// CreditKinds lists the kinds a credit may carry.
var CreditKinds = map[string]bool{
	KindRegister:    true,
	KindRecharge:    true,
	KindRefund:      true,
	KindAdminAdjust: true,
}

// PointTransaction is one immutable entry in a user's point ledger.
// The running sum of Amount over a user's entries equals their balance,
// and BalanceAfter snapshots that sum at insert time.
type PointTransaction struct {
	ID           int64          `json:"id" db:"id"`
	UserID       string         `json:"user_id" db:"user_id"`
	Kind         string         `json:"kind" db:"kind"`
	Amount       int64          `json:"amount" db:"amount"`
	BalanceAfter int64          `json:"balance_after" db:"balance_after"`
	Description  string         `json:"description" db:"description"`
	ReferenceKey sql.NullString `json:"reference_key,omitempty" db:"reference_key"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}
