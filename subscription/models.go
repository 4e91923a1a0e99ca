package subscription

import (
	"time"

	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/types"
)

// Subscription is a customer's enrollment against a plan.
//
// UpdatedAt is the time of the last successful billing; the zero time means
// the subscription was never billed.
type Subscription struct {
	ID           id.SubscriptionID `json:"id"`
	PlanID       id.PlanID         `json:"plan_id"`
	Customer     types.Address     `json:"customer"`
	Token        types.Address     `json:"token"`
	Active       bool              `json:"active"`
	BillingCount uint64            `json:"billing_count"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	EndedAt      *time.Time        `json:"ended_at,omitempty"`
}

// Billed reports whether the subscription was ever charged.
func (s *Subscription) Billed() bool { return !s.UpdatedAt.IsZero() }
