// Package storetest runs the behavior every store.Store backend must share.
//
// A backend test calls Run with a constructor that returns a fresh, migrated
// store for each subtest.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/fee"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/store"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/types"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Run exercises newStore against the shared store contract.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("SequencesStartAtOne", func(t *testing.T) { testSequences(t, newStore(t)) })
	t.Run("CreditAndDebit", func(t *testing.T) { testCreditAndDebit(t, newStore(t)) })
	t.Run("ConcurrentDebits", func(t *testing.T) { testConcurrentDebits(t, newStore(t)) })
	t.Run("MarkBilledClaims", func(t *testing.T) { testMarkBilled(t, newStore(t)) })
	t.Run("MarkBilledSingleWinner", func(t *testing.T) { testMarkBilledRace(t, newStore(t)) })
	t.Run("UnmarkBilledRestores", func(t *testing.T) { testUnmarkBilled(t, newStore(t)) })
}

func testSequences(t *testing.T, s store.Store) {
	ctx := context.Background()

	p1, err := s.NextPlanID(ctx)
	require.NoError(t, err)
	p2, err := s.NextPlanID(ctx)
	require.NoError(t, err)
	s1, err := s.NextSubscriptionID(ctx)
	require.NoError(t, err)

	assert.Equal(t, id.PlanID(1), p1)
	assert.Equal(t, id.PlanID(2), p2)
	assert.Equal(t, id.SubscriptionID(1), s1, "sequences are independent")
}

func testCreditAndDebit(t *testing.T, s store.Store) {
	ctx := context.Background()
	const owner types.Address = "0xm1"

	bal, err := s.GetBalance(ctx, fee.KindServiceFee, owner)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	bal, err = s.Credit(ctx, fee.KindServiceFee, owner, types.Units(10))
	require.NoError(t, err)
	assert.Equal(t, "10", bal.String())

	bal, err = s.Debit(ctx, fee.KindServiceFee, owner, types.Units(4))
	require.NoError(t, err)
	assert.Equal(t, "6", bal.String())

	_, err = s.Debit(ctx, fee.KindServiceFee, owner, types.Units(7))
	require.ErrorIs(t, err, bpay.ErrInsufficientServiceFee)

	bal, err = s.GetBalance(ctx, fee.KindServiceFee, owner)
	require.NoError(t, err)
	assert.Equal(t, "6", bal.String(), "a refused debit leaves the balance alone")

	_, err = s.Debit(ctx, fee.KindReward, owner, types.Units(1))
	require.ErrorIs(t, err, bpay.ErrInsufficientServiceFee, "an unseen balance is zero")

	reward, err := s.GetBalance(ctx, fee.KindReward, owner)
	require.NoError(t, err)
	assert.True(t, reward.IsZero(), "books are independent")
}

func testConcurrentDebits(t *testing.T, s store.Store) {
	ctx := context.Background()
	const owner types.Address = "0xm1"

	_, err := s.Credit(ctx, fee.KindServiceFee, owner, types.Units(5))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Debit(ctx, fee.KindServiceFee, owner, types.Units(1)); err == nil {
				mu.Lock()
				settled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	bal, err := s.GetBalance(ctx, fee.KindServiceFee, owner)
	require.NoError(t, err)
	assert.LessOrEqual(t, settled, 5)
	assert.Equal(t, types.Units(uint64(5-settled)).String(), bal.String())
}

func newSubscription(t *testing.T, s store.Store) *subscription.Subscription {
	t.Helper()
	ctx := context.Background()

	pid, err := s.NextPlanID(ctx)
	require.NoError(t, err)
	require.NoError(t, s.CreatePlan(ctx, &plan.Plan{
		Entity:   types.NewEntity(epoch),
		ID:       pid,
		Merchant: "0xm1",
		Tokens:   []types.Address{"0xt0"},
		Price:    types.Units(100),
		Period:   time.Hour,
		Status:   plan.StatusActive,
	}))

	sid, err := s.NextSubscriptionID(ctx)
	require.NoError(t, err)
	sub := &subscription.Subscription{
		ID: sid, PlanID: pid, Customer: "0xc1", Token: "0xt0", Active: true, CreatedAt: epoch,
	}
	require.NoError(t, s.CreateSubscription(ctx, sub))
	return sub
}

func testMarkBilled(t *testing.T, s store.Store) {
	ctx := context.Background()
	sub := newSubscription(t, s)

	ok, err := s.MarkBilled(ctx, sub.ID, 0, epoch.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkBilled(ctx, sub.ID, 0, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "a stale count loses the claim")

	ok, err = s.MarkBilled(ctx, sub.ID, 1, epoch.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.BillingCount)
	assert.True(t, epoch.Add(2*time.Hour).Equal(got.UpdatedAt))

	require.NoError(t, s.Deactivate(ctx, sub.ID, epoch.Add(3*time.Hour)))
	ok, err = s.MarkBilled(ctx, sub.ID, 2, epoch.Add(3*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "an inactive subscription cannot be claimed")

	_, err = s.MarkBilled(ctx, 4242, 0, epoch)
	assert.ErrorIs(t, err, bpay.ErrSubscriptionNotFound)
}

func testMarkBilledRace(t *testing.T, s store.Store) {
	ctx := context.Background()
	sub := newSubscription(t, s)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkBilled(ctx, sub.ID, 0, epoch.Add(time.Hour))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.BillingCount)
}

func testUnmarkBilled(t *testing.T, s store.Store) {
	ctx := context.Background()
	sub := newSubscription(t, s)
	first, second := epoch.Add(time.Hour), epoch.Add(2*time.Hour)

	ok, err := s.MarkBilled(ctx, sub.ID, 0, first)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.UnmarkBilled(ctx, sub.ID, 1, time.Time{}))

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Zero(t, got.BillingCount)
	assert.False(t, got.Billed(), "releasing the first claim leaves it never billed")

	ok, err = s.MarkBilled(ctx, sub.ID, 0, first)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.MarkBilled(ctx, sub.ID, 1, second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.UnmarkBilled(ctx, sub.ID, 1, time.Time{}))
	got, err = s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.BillingCount, "a stale release is ignored")

	require.NoError(t, s.UnmarkBilled(ctx, sub.ID, 2, first))
	got, err = s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.BillingCount)
	assert.True(t, first.Equal(got.UpdatedAt))
}
