// Package strike implements the failure-counting policy that suspends and
// finally removes subscriptions whose billings keep failing.
package strike

import (
	"context"
	"fmt"

	"github.com/xraph/bpay/id"
)

// Threshold is the number of consecutive failed billings after which a
// subscription is removed. It is a fixed policy constant, not a per-plan setting.
const Threshold = 3

// Store persists strike counters keyed by subscription. A subscription with
// no stored counter has zero strikes.
type Store interface {
	GetStrikes(ctx context.Context, subID id.SubscriptionID) (int, error)
	SetStrikes(ctx context.Context, subID id.SubscriptionID, count int) error
}

// Tracker applies the strike policy on top of a Store.
type Tracker struct {
	store Store
}

// NewTracker creates a Tracker.
func NewTracker(s Store) *Tracker {
	return &Tracker{store: s}
}

// Init sets the counter of a freshly created subscription to zero.
func (t *Tracker) Init(ctx context.Context, subID id.SubscriptionID) error {
	return t.store.SetStrikes(ctx, subID, 0)
}

// RecordSuccess resets the counter after a successful billing.
func (t *Tracker) RecordSuccess(ctx context.Context, subID id.SubscriptionID) error {
	if err := t.store.SetStrikes(ctx, subID, 0); err != nil {
		return fmt.Errorf("strike: reset %s: %w", subID, err)
	}
	return nil
}

// RecordFailure increments the counter and reports the new count and whether
// the subscription reached Threshold and must be deactivated.
func (t *Tracker) RecordFailure(ctx context.Context, subID id.SubscriptionID) (count int, remove bool, err error) {
	count, err = t.store.GetStrikes(ctx, subID)
	if err != nil {
		return 0, false, fmt.Errorf("strike: read %s: %w", subID, err)
	}
	count++
	if err := t.store.SetStrikes(ctx, subID, count); err != nil {
		return 0, false, fmt.Errorf("strike: record %s: %w", subID, err)
	}
	return count, count >= Threshold, nil
}

// Strikes returns the current counter.
func (t *Tracker) Strikes(ctx context.Context, subID id.SubscriptionID) (int, error) {
	return t.store.GetStrikes(ctx, subID)
}
