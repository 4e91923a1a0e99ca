package subscription

import (
	"context"
	"time"

	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/types"
)

type Store interface {
	NextSubscriptionID(ctx context.Context) (id.SubscriptionID, error)
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	// MarkBilled records a billing at at, but only while the subscription is
	// active and has been billed exactly count times. It reports false when
	// another billing got there first.
	MarkBilled(ctx context.Context, subID id.SubscriptionID, count uint64, at time.Time) (bool, error)
	// UnmarkBilled reverts the billing that raised the count to count,
	// restoring prevAt. It does nothing if the count has moved on.
	UnmarkBilled(ctx context.Context, subID id.SubscriptionID, count uint64, prevAt time.Time) error
	Deactivate(ctx context.Context, subID id.SubscriptionID, at time.Time) error
}

// ListOpts filters subscription listings. Results are always in insertion
// (id) order. A zero PlanID or empty Customer matches everything.
type ListOpts struct {
	PlanID     id.PlanID
	Customer   types.Address
	ActiveOnly bool
	Limit      int
	Offset     int
}
