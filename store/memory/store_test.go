package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/fee"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/store"
	"github.com/xraph/bpay/store/memory"
	"github.com/xraph/bpay/store/storetest"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/types"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPlan(t *testing.T, s *memory.Store, merchant types.Address) *plan.Plan {
	t.Helper()
	ctx := context.Background()
	pid, err := s.NextPlanID(ctx)
	require.NoError(t, err)
	p := &plan.Plan{
		Entity:   types.NewEntity(now),
		ID:       pid,
		Merchant: merchant,
		Tokens:   []types.Address{"0xt0"},
		Price:    types.Units(100),
		Period:   time.Hour,
		Status:   plan.StatusActive,
	}
	require.NoError(t, s.CreatePlan(ctx, p))
	return p
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestSequencesArePerInstance(t *testing.T) {
	ctx := context.Background()
	a, b := memory.New(), memory.New()

	p1, _ := a.NextPlanID(ctx)
	p2, _ := a.NextPlanID(ctx)
	q1, _ := b.NextPlanID(ctx)
	s1, _ := a.NextSubscriptionID(ctx)

	assert.Equal(t, id.PlanID(1), p1)
	assert.Equal(t, id.PlanID(2), p2)
	assert.Equal(t, id.PlanID(1), q1)
	assert.Equal(t, id.SubscriptionID(1), s1)
}

func TestPlans(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p1 := newPlan(t, s, "0xm1")
	newPlan(t, s, "0xm2")
	p3 := newPlan(t, s, "0xm1")

	err := s.CreatePlan(ctx, p1)
	require.ErrorIs(t, err, bpay.ErrAlreadyExists)

	all, err := s.ListPlans(ctx, plan.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []id.PlanID{1, 2, 3}, []id.PlanID{all[0].ID, all[1].ID, all[2].ID})

	mine, err := s.ListPlans(ctx, plan.ListOpts{Merchant: "0xm1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, p3.ID, mine[1].ID)

	page, err := s.ListPlans(ctx, plan.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, id.PlanID(2), page[0].ID)

	require.NoError(t, s.RemovePlan(ctx, p1.ID, now.Add(time.Minute)))
	got, err := s.GetPlan(ctx, p1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRemoved())
	require.NotNil(t, got.RemovedAt)

	active, err := s.ListPlans(ctx, plan.ListOpts{Status: plan.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = s.GetPlan(ctx, 99)
	assert.ErrorIs(t, err, bpay.ErrPlanNotFound)
	assert.ErrorIs(t, s.RemovePlan(ctx, 99, now), bpay.ErrPlanNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := newPlan(t, s, "0xm1")

	got, err := s.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	got.Tokens[0] = "0xevil"
	got.Price = types.Units(1)

	again, err := s.GetPlan(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.Address("0xt0"), again.Tokens[0])
	assert.Equal(t, "100", again.Price.String())
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := newPlan(t, s, "0xm1")

	for _, customer := range []types.Address{"0xc1", "0xc2", "0xc1"} {
		sid, err := s.NextSubscriptionID(ctx)
		require.NoError(t, err)
		require.NoError(t, s.CreateSubscription(ctx, &subscription.Subscription{
			ID: sid, PlanID: p.ID, Customer: customer, Token: "0xt0", Active: true, CreatedAt: now,
		}))
	}

	byCustomer, err := s.ListSubscriptions(ctx, subscription.ListOpts{Customer: "0xc1"})
	require.NoError(t, err)
	require.Len(t, byCustomer, 2)
	assert.Equal(t, id.SubscriptionID(3), byCustomer[1].ID)

	for count, at := range []time.Time{now.Add(time.Hour), now.Add(2 * time.Hour)} {
		ok, err := s.MarkBilled(ctx, 1, uint64(count), at)
		require.NoError(t, err)
		require.True(t, ok)
	}
	sub, err := s.GetSubscription(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, sub.BillingCount)
	assert.Equal(t, now.Add(2*time.Hour), sub.UpdatedAt)

	require.NoError(t, s.Deactivate(ctx, 2, now))
	active, err := s.ListSubscriptions(ctx, subscription.ListOpts{PlanID: p.ID, ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = s.MarkBilled(ctx, 42, 0, now)
	assert.ErrorIs(t, err, bpay.ErrSubscriptionNotFound)
	assert.ErrorIs(t, s.UnmarkBilled(ctx, 42, 1, now), bpay.ErrSubscriptionNotFound)
	assert.ErrorIs(t, s.Deactivate(ctx, 42, now), bpay.ErrSubscriptionNotFound)
}

func TestStrikes(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	n, err := s.GetStrikes(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.SetStrikes(ctx, 7, 2))
	n, _ = s.GetStrikes(ctx, 7)
	assert.Equal(t, 2, n)
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	bal, err := s.Credit(ctx, fee.KindServiceFee, "0xm1", types.Units(10))
	require.NoError(t, err)
	assert.Equal(t, "10", bal.String())

	bal, err = s.Debit(ctx, fee.KindServiceFee, "0xm1", types.Units(4))
	require.NoError(t, err)
	assert.Equal(t, "6", bal.String())

	_, err = s.Debit(ctx, fee.KindServiceFee, "0xm1", types.Units(7))
	require.ErrorIs(t, err, bpay.ErrInsufficientServiceFee)

	// Books are independent.
	reward, err := s.GetBalance(ctx, fee.KindReward, "0xm1")
	require.NoError(t, err)
	assert.True(t, reward.IsZero())

	bal, _ = s.GetBalance(ctx, fee.KindServiceFee, "0xm1")
	assert.Equal(t, "6", bal.String())
}

func TestPayments(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for i, sid := range []id.SubscriptionID{1, 2, 1} {
		require.NoError(t, s.RecordPayment(ctx, &payment.Payment{
			ID:             id.NewPaymentID(),
			SubscriptionID: sid,
			Merchant:       "0xm1",
			Amount:         types.Units(uint64(i + 1)),
			PaidAt:         now.Add(time.Duration(i) * time.Hour),
		}))
	}

	bySub, err := s.ListPayments(ctx, payment.ListOpts{SubscriptionID: 1})
	require.NoError(t, err)
	require.Len(t, bySub, 2)
	assert.Equal(t, "1", bySub[0].Amount.String())
	assert.Equal(t, "3", bySub[1].Amount.String())

	byMerchant, err := s.ListPayments(ctx, payment.ListOpts{Merchant: "0xm1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, byMerchant, 2)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(ctx), bpay.ErrStoreClosed)
	_, err := s.NextPlanID(ctx)
	assert.ErrorIs(t, err, bpay.ErrStoreClosed)
}
