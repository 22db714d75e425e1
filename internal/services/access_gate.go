package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/knowhub/backend/internal/models"
)

// Access decision reasons.
const (
	AccessFree             = "FREE"
	AccessExempt           = "EXEMPT"
	AccessAlreadyPurchased = "ALREADY_PURCHASED"
	AccessCharged          = "CHARGED"
	AccessPaymentRequired  = "PAYMENT_REQUIRED"
)

const pqUniqueViolation = pq.ErrorCode("23505")

// AccessDecision is the outcome of one gate evaluation. Exactly two terminal
// states exist: granted (with a reason) or denied because payment is required.
type AccessDecision struct {
	Granted     bool                     `json:"granted"`
	Reason      string                   `json:"reason"`
	Transaction *models.PointTransaction `json:"transaction,omitempty"` // set when Reason == CHARGED
}

// ExemptFunc decides whether a user passes the gate without being charged.
type ExemptFunc func(*models.User) bool

// AccessGate decides whether a user may access a priced resource. The chain
// is free -> exempt -> already purchased -> charge; insufficient balance is
// the only denial, surfaced as PAYMENT_REQUIRED rather than an error.
type AccessGate struct {
	ledger   *LedgerService
	resolver *PurchaseResolver
	exempt   ExemptFunc
}

func NewAccessGate(ledger *LedgerService, resolver *PurchaseResolver, exempt ExemptFunc) *AccessGate {
	if exempt == nil {
		exempt = func(u *models.User) bool { return u.IsAdmin() }
	}
	return &AccessGate{
		ledger:   ledger,
		resolver: resolver,
		exempt:   exempt,
	}
}

func (g *AccessGate) Authorize(ctx context.Context, user *models.User, resource *models.Resource) (*AccessDecision, error) {
	if resource.IsFree || resource.PointsRequired == 0 {
		return &AccessDecision{Granted: true, Reason: AccessFree}, nil
	}

	if g.exempt(user) {
		return &AccessDecision{Granted: true, Reason: AccessExempt}, nil
	}

	purchased, err := g.resolver.HasPurchased(ctx, user.ID, resource.ID)
	if err != nil {
		return nil, err
	}
	if purchased {
		return &AccessDecision{Granted: true, Reason: AccessAlreadyPurchased}, nil
	}

	entry, err := g.ledger.Debit(ctx, user.ID, resource.PointsRequired,
		fmt.Sprintf("Downloaded resource: %s", resource.Title),
		ResourceReferenceKey(resource.ID))
	if errors.Is(err, ErrInsufficientBalance) {
		return &AccessDecision{Granted: false, Reason: AccessPaymentRequired}, nil
	}
	if isDuplicatePurchase(err) {
		// Two unlocks raced past the resolver check; the unique index on
		// (user_id, reference_key) caught the second debit before it charged.
		return &AccessDecision{Granted: true, Reason: AccessAlreadyPurchased}, nil
	}
	if err != nil {
		return nil, err
	}

	return &AccessDecision{Granted: true, Reason: AccessCharged, Transaction: entry}, nil
}

func isDuplicatePurchase(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
