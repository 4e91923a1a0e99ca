package plan

import (
	"slices"
	"time"

	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/types"
)

// Status is the lifecycle state of a plan.
type Status string

const (
	StatusActive  Status = "active"
	StatusRemoved Status = "removed"
)

// Plan is a merchant-defined recurring charge template.
type Plan struct {
	types.Entity
	ID          id.PlanID       `json:"id"`
	Merchant    types.Address   `json:"merchant"`
	Name        string          `json:"name"`
	Tokens      []types.Address `json:"tokens"`
	Price       types.Amount    `json:"price"`
	Period      time.Duration   `json:"period"`
	TrialPeriod time.Duration   `json:"trial_period"`
	MaxBillings uint64          `json:"max_billings"`
	Status      Status          `json:"status"`
	RemovedAt   *time.Time      `json:"removed_at,omitempty"`
}

// AcceptsToken reports whether the plan can be paid with token.
func (p *Plan) AcceptsToken(token types.Address) bool {
	return slices.Contains(p.Tokens, token)
}

// IsRemoved reports whether the plan was soft deleted.
func (p *Plan) IsRemoved() bool { return p.Status == StatusRemoved }

// IsOneOff reports whether the plan charges exactly once.
func (p *Plan) IsOneOff() bool { return p.Period == 0 }

// BillingLimit returns the maximum number of charges, 0 meaning unlimited.
// One-off plans are limited to a single charge.
func (p *Plan) BillingLimit() uint64 {
	if p.IsOneOff() {
		return 1
	}
	return p.MaxBillings
}
