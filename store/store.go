// Package store defines the unified persistence interface for bpay.
// Backends live in the memory, sqlite, postgres and mongo subpackages.
package store

import (
	"context"
	"time"

	"github.com/xraph/bpay/fee"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/strike"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/types"
)

// Store is the unified storage interface for all bpay entities.
// Every backend satisfies each domain package's Store as well.
type Store interface {
	// Plan methods
	NextPlanID(ctx context.Context) (id.PlanID, error)
	CreatePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error)
	ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error)
	RemovePlan(ctx context.Context, planID id.PlanID, removedAt time.Time) error

	// Subscription methods
	NextSubscriptionID(ctx context.Context) (id.SubscriptionID, error)
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error)
	MarkBilled(ctx context.Context, subID id.SubscriptionID, count uint64, at time.Time) (bool, error)
	UnmarkBilled(ctx context.Context, subID id.SubscriptionID, count uint64, prevAt time.Time) error
	Deactivate(ctx context.Context, subID id.SubscriptionID, at time.Time) error

	// Strike methods
	GetStrikes(ctx context.Context, subID id.SubscriptionID) (int, error)
	SetStrikes(ctx context.Context, subID id.SubscriptionID, count int) error

	// Fee vault methods
	GetBalance(ctx context.Context, kind fee.Kind, owner types.Address) (types.Amount, error)
	Credit(ctx context.Context, kind fee.Kind, owner types.Address, amount types.Amount) (types.Amount, error)
	Debit(ctx context.Context, kind fee.Kind, owner types.Address, amount types.Amount) (types.Amount, error)

	// Payment methods
	RecordPayment(ctx context.Context, p *payment.Payment) error
	ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time checks that the unified interface covers every domain store.
var (
	_ plan.Store         = Store(nil)
	_ subscription.Store = Store(nil)
	_ strike.Store       = Store(nil)
	_ fee.Store          = Store(nil)
	_ payment.Store      = Store(nil)
)

// Page applies offset and limit to n items and returns the slice bounds.
// A limit of 0 means no limit.
func Page(n, offset, limit int) (start, end int) {
	start = min(max(offset, 0), n)
	end = n
	if limit > 0 && start+limit < n {
		end = start + limit
	}
	return start, end
}
