package bpay_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/store/memory"
	"github.com/xraph/bpay/token"
	"github.com/xraph/bpay/types"
)

const (
	merchant  types.Address = "0xmerchant"
	other     types.Address = "0xother"
	alice     types.Address = "0xalice"
	bob       types.Address = "0xbob"
	executor  types.Address = "0xkeeper"
	tokenAddr types.Address = "0xtoken"
)

const month = 30 * 24 * time.Hour

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	engine *bpay.Engine
	store  *memory.Store
	token  *token.MemoryLedger
	clock  *fakeClock
	events *eventLog
}

func newHarness(t *testing.T, opts ...bpay.Option) *harness {
	t.Helper()
	h := &harness{
		store:  memory.New(),
		token:  token.NewMemoryLedger("TKN", 18),
		clock:  &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		events: &eventLog{},
	}
	base := []bpay.Option{
		bpay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		bpay.WithClock(h.clock.Now),
		bpay.WithTokenLedger(tokenAddr, h.token),
		bpay.WithPlugin(h.events),
	}
	h.engine = bpay.New(h.store, append(base, opts...)...)
	require.NoError(t, h.engine.Start(context.Background()))
	t.Cleanup(func() { _ = h.engine.Stop() })
	return h
}

// fund mints the default seed to customer and approves the engine for it.
func (h *harness) fund(t *testing.T, customer types.Address) {
	t.Helper()
	require.NoError(t, h.token.MintDefault(customer))
	require.NoError(t, h.token.Approve(customer, h.engine.Address(), types.MustParseUnits(token.DefaultMint, 18)))
}

func (h *harness) monthlyPlan(t *testing.T) *plan.Plan {
	t.Helper()
	p, err := h.engine.CreatePlan(context.Background(), merchant, bpay.PlanParams{
		Name:   "Monthly",
		Tokens: []types.Address{tokenAddr},
		Price:  types.Units(100),
		Period: month,
	})
	require.NoError(t, err)
	return p
}

func (h *harness) execute(t *testing.T, p *plan.Plan, subs ...id.SubscriptionID) *execution.Report {
	t.Helper()
	report, err := h.engine.Execute(context.Background(), merchant, []id.PlanID{p.ID}, [][]id.SubscriptionID{subs}, executor)
	require.NoError(t, err)
	return report
}

func (h *harness) balance(t *testing.T, account types.Address) types.Amount {
	t.Helper()
	b, err := h.token.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return b
}

type eventLog struct {
	mu     sync.Mutex
	types  []event.Type
	failed []int
}

func (l *eventLog) Name() string { return "event-log" }

func (l *eventLog) add(t event.Type) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, t)
}

func (l *eventLog) seen() []event.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.Type(nil), l.types...)
}

func (l *eventLog) count(t event.Type) int {
	n := 0
	for _, s := range l.seen() {
		if s == t {
			n++
		}
	}
	return n
}

func (l *eventLog) OnPlanCreated(context.Context, *event.PlanCreated) error {
	l.add(event.TypePlanCreated)
	return nil
}

func (l *eventLog) OnPlanRemoved(context.Context, *event.PlanRemoved) error {
	l.add(event.TypePlanRemoved)
	return nil
}

func (l *eventLog) OnSubscribed(context.Context, *event.Subscribed) error {
	l.add(event.TypeSubscribed)
	return nil
}

func (l *eventLog) OnPaymentTransferred(context.Context, *event.PaymentTransferred) error {
	l.add(event.TypePaymentTransferred)
	return nil
}

func (l *eventLog) OnPaymentFailed(_ context.Context, e *event.PaymentFailed) error {
	l.mu.Lock()
	l.failed = append(l.failed, e.Strikes)
	l.mu.Unlock()
	l.add(event.TypePaymentFailed)
	return nil
}

func (l *eventLog) OnSubscriptionRemoved(context.Context, *event.SubscriptionRemoved) error {
	l.add(event.TypeSubscriptionRemoved)
	return nil
}

func (l *eventLog) OnServiceFeeDeposited(context.Context, *event.ServiceFeeDeposited) error {
	l.add(event.TypeServiceFeeDeposited)
	return nil
}

func (l *eventLog) OnServiceFeeWithdrawn(context.Context, *event.ServiceFeeWithdrawn) error {
	l.add(event.TypeServiceFeeWithdrawn)
	return nil
}

func (l *eventLog) OnRewardPaid(context.Context, *event.RewardPaid) error {
	l.add(event.TypeRewardPaid)
	return nil
}

func (l *eventLog) OnExecutionCompleted(context.Context, *event.ExecutionCompleted) error {
	l.add(event.TypeExecutionCompleted)
	return nil
}

// ──────────────────────────────────────────────────
// Plan Registry
// ──────────────────────────────────────────────────

func TestCreatePlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	p := h.monthlyPlan(t)
	assert.Equal(t, id.PlanID(1), p.ID)
	assert.Equal(t, merchant, p.Merchant)
	assert.Equal(t, plan.StatusActive, p.Status)

	got, err := h.engine.GetPlanByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, merchant, got.Merchant)
	assert.True(t, got.Price.IsPositive())

	_, err = h.engine.CreatePlan(ctx, other, bpay.PlanParams{Tokens: []types.Address{tokenAddr}, Price: types.Units(5)})
	require.NoError(t, err)
	p3 := h.monthlyPlan(t)

	all, err := h.engine.GetPlans(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []id.PlanID{1, 2, 3}, []id.PlanID{all[0].ID, all[1].ID, all[2].ID})

	mine, err := h.engine.GetMerchantPlans(ctx, merchant)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, p3.ID, mine[1].ID)

	assert.Equal(t, 3, h.events.count(event.TypePlanCreated))
}

func TestCreatePlanValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	valid := bpay.PlanParams{Tokens: []types.Address{tokenAddr}, Price: types.Units(1), Period: time.Hour}

	tests := []struct {
		name     string
		merchant types.Address
		mutate   func(*bpay.PlanParams)
	}{
		{"zero price", merchant, func(p *bpay.PlanParams) { p.Price = types.Zero() }},
		{"no tokens", merchant, func(p *bpay.PlanParams) { p.Tokens = nil }},
		{"empty token", merchant, func(p *bpay.PlanParams) { p.Tokens = []types.Address{""} }},
		{"duplicate token", merchant, func(p *bpay.PlanParams) { p.Tokens = []types.Address{tokenAddr, tokenAddr} }},
		{"negative period", merchant, func(p *bpay.PlanParams) { p.Period = -time.Second }},
		{"negative trial", merchant, func(p *bpay.PlanParams) { p.TrialPeriod = -time.Second }},
		{"no merchant", "", func(*bpay.PlanParams) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid
			tt.mutate(&params)
			_, err := h.engine.CreatePlan(ctx, tt.merchant, params)
			require.ErrorIs(t, err, bpay.ErrInvalidPlanParameters)
			assert.True(t, bpay.IsValidation(err))

			var verr bpay.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}

	plans, err := h.engine.GetPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestRemovePlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	p := h.monthlyPlan(t)
	sub, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)

	err = h.engine.RemovePlan(ctx, other, p.ID)
	require.ErrorIs(t, err, bpay.ErrNotPlanOwner)
	assert.True(t, bpay.IsAuthorization(err))

	unchanged, err := h.engine.GetPlanByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.StatusActive, unchanged.Status)
	assert.Nil(t, unchanged.RemovedAt)

	require.ErrorIs(t, h.engine.RemovePlan(ctx, merchant, 99), bpay.ErrPlanNotFound)

	require.NoError(t, h.engine.RemovePlan(ctx, merchant, p.ID))
	require.ErrorIs(t, h.engine.RemovePlan(ctx, merchant, p.ID), bpay.ErrPlanRemoved)

	removed, err := h.engine.GetPlanByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, removed.IsRemoved())
	assert.NotNil(t, removed.RemovedAt)

	_, err = h.engine.Subscribe(ctx, bob, p.ID, tokenAddr)
	require.ErrorIs(t, err, bpay.ErrPlanNotFound)

	// Existing subscriptions survive removal and keep billing.
	report := h.execute(t, p, sub.ID)
	assert.Equal(t, 1, report.Successful)
	assert.Equal(t, 1, h.events.count(event.TypePlanRemoved))
}

// ──────────────────────────────────────────────────
// Subscription Ledger
// ──────────────────────────────────────────────────

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.monthlyPlan(t)

	_, err := h.engine.Subscribe(ctx, alice, p.ID, "0xunknown")
	require.ErrorIs(t, err, bpay.ErrUnsupportedToken)

	_, err = h.engine.Subscribe(ctx, alice, 42, tokenAddr)
	require.ErrorIs(t, err, bpay.ErrPlanNotFound)
	assert.True(t, bpay.IsNotFound(err))

	_, err = h.engine.Subscribe(ctx, "", p.ID, tokenAddr)
	require.ErrorIs(t, err, bpay.ErrInvalidInput)

	sub, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.False(t, sub.Billed())
	assert.Zero(t, sub.BillingCount)

	strikes, err := h.engine.Strikes(ctx, sub.ID)
	require.NoError(t, err)
	assert.Zero(t, strikes)

	_, err = h.engine.GetSubscription(ctx, 99)
	require.ErrorIs(t, err, bpay.ErrSubscriptionNotFound)
	assert.Equal(t, 1, h.events.count(event.TypeSubscribed))
}

func TestDoubleSubscribeBillsIndependently(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	p := h.monthlyPlan(t)

	s1, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)
	s2, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)

	report := h.execute(t, p, s1.ID, s2.ID)
	assert.Equal(t, 2, report.Successful)
	assert.Equal(t, "200", h.balance(t, merchant).String())

	subs, err := h.engine.GetCustomerSubscriptions(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	planSubs, err := h.engine.GetPlanSubscriptions(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, planSubs, 2)

	all, err := h.engine.GetSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []id.SubscriptionID{s1.ID, s2.ID}, []id.SubscriptionID{all[0].ID, all[1].ID})
}

// ──────────────────────────────────────────────────
// Execution Engine
// ──────────────────────────────────────────────────

func TestScenarioTwoSubscribersWithFeeDeposit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	deposit := types.Native("1")
	_, err := h.engine.DepositServiceFee(ctx, merchant, deposit)
	require.NoError(t, err)

	p := h.monthlyPlan(t)
	h.fund(t, alice)
	h.fund(t, bob)
	sa, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)
	sb, err := h.engine.Subscribe(ctx, bob, p.ID, tokenAddr)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	report := h.execute(t, p, sa.ID, sb.ID)

	require.Len(t, report.Outcomes, 2)
	for _, o := range report.Outcomes {
		assert.Equal(t, execution.OutcomeTransferred, o.Kind)
		assert.Equal(t, "100", o.Amount.String())
		assert.Equal(t, tokenAddr, o.Token)
	}
	assert.Equal(t, 2, h.events.count(event.TypePaymentTransferred))
	assert.Equal(t, "200", h.balance(t, merchant).String())

	for _, subID := range []id.SubscriptionID{sa.ID, sb.ID} {
		sub, err := h.engine.GetSubscription(ctx, subID)
		require.NoError(t, err)
		assert.Equal(t, h.clock.Now(), sub.UpdatedAt)
		assert.EqualValues(t, 1, sub.BillingCount)
	}

	wantReward := execution.DefaultRewardPolicy().Reward(2)
	assert.Equal(t, wantReward.String(), report.RewardRequested.String())
	assert.Equal(t, wantReward.String(), report.RewardPaid.String())

	bal, err := h.engine.GetServiceFeeBalance(ctx, merchant)
	require.NoError(t, err)
	assert.Equal(t, deposit.Sub(wantReward).String(), bal.String())

	earned, err := h.engine.GetRewardBalance(ctx, executor)
	require.NoError(t, err)
	assert.Equal(t, wantReward.String(), earned.String())

	assert.Equal(t, 1, h.events.count(event.TypeRewardPaid))
	assert.Equal(t, 1, h.events.count(event.TypeExecutionCompleted))
}

func TestScenarioRevokedAllowance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	p := h.monthlyPlan(t)
	sub, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)

	require.NoError(t, h.token.Approve(alice, h.engine.Address(), types.Zero()))

	want := []struct {
		kind    execution.OutcomeKind
		strikes int
	}{
		{execution.OutcomeFailed, 1},
		{execution.OutcomeFailed, 2},
		{execution.OutcomeRemoved, 3},
	}
	for i, w := range want {
		report := h.execute(t, p, sub.ID)
		require.Len(t, report.Outcomes, 1, "call %d", i+1)
		o := report.Outcomes[0]
		assert.Equal(t, w.kind, o.Kind, "call %d", i+1)
		assert.Equal(t, w.strikes, o.Strikes, "call %d", i+1)
		assert.Equal(t, "insufficient allowance", o.Reason)
		assert.Zero(t, report.Successful)
	}

	got, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.NotNil(t, got.EndedAt)

	// Fourth call is a no-op.
	report := h.execute(t, p, sub.ID)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, execution.OutcomeSkipped, report.Outcomes[0].Kind)
	assert.Equal(t, execution.ReasonInactive, report.Outcomes[0].Reason)

	strikes, err := h.engine.Strikes(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, strikes)

	assert.Equal(t, []int{1, 2}, h.events.failed)
	assert.Equal(t, 1, h.events.count(event.TypeSubscriptionRemoved))
	assert.True(t, h.balance(t, merchant).IsZero())
}

func TestSuccessResetsStrikes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.token.Mint(alice, types.Units(1000)))
	require.NoError(t, h.token.Approve(alice, h.engine.Address(), types.Units(50)))
	p := h.monthlyPlan(t)
	sub, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)

	h.execute(t, p, sub.ID)
	h.execute(t, p, sub.ID)
	strikes, _ := h.engine.Strikes(ctx, sub.ID)
	require.Equal(t, 2, strikes)

	require.NoError(t, h.token.Approve(alice, h.engine.Address(), types.Units(1000)))
	report := h.execute(t, p, sub.ID)
	assert.Equal(t, execution.OutcomeTransferred, report.Outcomes[0].Kind)

	strikes, _ = h.engine.Strikes(ctx, sub.ID)
	assert.Zero(t, strikes)
}

func TestInsufficientBalanceStrikes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.token.Mint(alice, types.Units(10)))
	require.NoError(t, h.token.Approve(alice, h.engine.Address(), types.Units(1000)))
	p := h.monthlyPlan(t)
	sub, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)

	report := h.execute(t, p, sub.ID)
	assert.Equal(t, execution.OutcomeFailed, report.Outcomes[0].Kind)
	assert.Equal(t, "insufficient balance", report.Outcomes[0].Reason)
	assert.Equal(t, "10", h.balance(t, alice).String())
}

func TestResubmitWithinPeriodSkips(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	p := h.monthlyPlan(t)
	sub, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)

	first := h.execute(t, p, sub.ID)
	h.clock.Advance(month - time.Second)
	second := h.execute(t, p, sub.ID)

	assert.Equal(t, execution.OutcomeTransferred, first.Outcomes[0].Kind)
	assert.Equal(t, execution.OutcomeSkipped, second.Outcomes[0].Kind)
	assert.Equal(t, execution.ReasonBilledInCycle, second.Outcomes[0].Reason)
	assert.Equal(t, "100", h.balance(t, merchant).String())

	// Next period bills again.
	h.clock.Advance(time.Second)
	third := h.execute(t, p, sub.ID)
	assert.Equal(t, execution.OutcomeTransferred, third.Outcomes[0].Kind)
	assert.Equal(t, "200", h.balance(t, merchant).String())
}

func TestDuplicatePairInOneBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	p := h.monthlyPlan(t)
	sub, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)

	report := h.execute(t, p, sub.ID, sub.ID)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, execution.OutcomeTransferred, report.Outcomes[0].Kind)
	assert.Equal(t, execution.OutcomeSkipped, report.Outcomes[1].Kind)
	assert.Equal(t, 1, report.Successful)
}

func TestExecutePreconditionsLeaveStateUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	_, err := h.engine.DepositServiceFee(ctx, merchant, types.Native("1"))
	require.NoError(t, err)

	p := h.monthlyPlan(t)
	foreign, err := h.engine.CreatePlan(ctx, other, bpay.PlanParams{Tokens: []types.Address{tokenAddr}, Price: types.Units(1), Period: month})
	require.NoError(t, err)
	sub, err := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	require.NoError(t, err)
	foreignSub, err := h.engine.Subscribe(ctx, alice, foreign.ID, tokenAddr)
	require.NoError(t, err)

	tests := []struct {
		name     string
		merchant types.Address
		planIDs  []id.PlanID
		batches  [][]id.SubscriptionID
		caller   types.Address
		wantErr  error
	}{
		{"shape mismatch", merchant, []id.PlanID{p.ID}, nil, executor, bpay.ErrBatchShapeMismatch},
		{"empty caller", merchant, []id.PlanID{p.ID}, [][]id.SubscriptionID{{sub.ID}}, "", bpay.ErrInvalidInput},
		{"empty merchant", "", []id.PlanID{p.ID}, [][]id.SubscriptionID{{sub.ID}}, executor, bpay.ErrInvalidInput},
		{"unknown plan", merchant, []id.PlanID{p.ID, 99}, [][]id.SubscriptionID{{sub.ID}, {}}, executor, bpay.ErrPlanNotFound},
		{"foreign plan after valid one", merchant, []id.PlanID{p.ID, foreign.ID}, [][]id.SubscriptionID{{sub.ID}, {foreignSub.ID}}, executor, bpay.ErrNotPlanOwner},
		{"unknown subscription", merchant, []id.PlanID{p.ID}, [][]id.SubscriptionID{{sub.ID, 99}}, executor, bpay.ErrSubscriptionNotFound},
		{"subscription of other plan", merchant, []id.PlanID{p.ID}, [][]id.SubscriptionID{{sub.ID, foreignSub.ID}}, executor, bpay.ErrSubscriptionPlanMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := h.engine.Execute(ctx, tt.merchant, tt.planIDs, tt.batches, tt.caller)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, report)

			got, err := h.engine.GetSubscription(ctx, sub.ID)
			require.NoError(t, err)
			assert.False(t, got.Billed())
			assert.True(t, h.balance(t, merchant).IsZero())

			bal, err := h.engine.GetServiceFeeBalance(ctx, merchant)
			require.NoError(t, err)
			assert.Equal(t, types.Native("1").String(), bal.String())
		})
	}
	assert.Zero(t, h.events.count(event.TypeExecutionCompleted))
}

func TestRewardCappedByFeeBalance(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	h.fund(t, bob)
	p := h.monthlyPlan(t)
	sa, _ := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	sb, _ := h.engine.Subscribe(ctx, bob, p.ID, tokenAddr)

	_, err := h.engine.DepositServiceFee(ctx, merchant, types.Units(50))
	require.NoError(t, err)

	report := h.execute(t, p, sa.ID)
	assert.True(t, report.RewardRequested.GreaterThan(types.Units(50)))
	assert.Equal(t, "50", report.RewardPaid.String())

	bal, _ := h.engine.GetServiceFeeBalance(ctx, merchant)
	assert.True(t, bal.IsZero())

	// An empty vault still lets the run complete.
	report = h.execute(t, p, sb.ID)
	assert.Equal(t, 1, report.Successful)
	assert.True(t, report.RewardPaid.IsZero())

	earned, _ := h.engine.GetRewardBalance(ctx, executor)
	assert.Equal(t, "50", earned.String())
}

func TestCustomRewardPolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, bpay.WithRewardPolicy(execution.RewardPolicy{
		CostPerBilling: types.Units(1000),
		MarkupPercent:  200,
	}))
	h.fund(t, alice)
	p := h.monthlyPlan(t)
	sub, _ := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	_, err := h.engine.DepositServiceFee(ctx, merchant, types.Units(10_000))
	require.NoError(t, err)

	report := h.execute(t, p, sub.ID)
	assert.Equal(t, "2000", report.RewardPaid.String())
}

func TestTrialLimitAndOneOff(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)

	trial, err := h.engine.CreatePlan(ctx, merchant, bpay.PlanParams{
		Tokens: []types.Address{tokenAddr}, Price: types.Units(10), Period: 24 * time.Hour,
		TrialPeriod: 7 * 24 * time.Hour, MaxBillings: 2,
	})
	require.NoError(t, err)
	oneOff, err := h.engine.CreatePlan(ctx, merchant, bpay.PlanParams{
		Tokens: []types.Address{tokenAddr}, Price: types.Units(5),
	})
	require.NoError(t, err)

	ts, _ := h.engine.Subscribe(ctx, alice, trial.ID, tokenAddr)
	os, _ := h.engine.Subscribe(ctx, alice, oneOff.ID, tokenAddr)

	assert.Equal(t, execution.ReasonInTrial, h.execute(t, trial, ts.ID).Outcomes[0].Reason)

	h.clock.Advance(7 * 24 * time.Hour)
	assert.Equal(t, execution.OutcomeTransferred, h.execute(t, trial, ts.ID).Outcomes[0].Kind)
	h.clock.Advance(24 * time.Hour)
	assert.Equal(t, execution.OutcomeTransferred, h.execute(t, trial, ts.ID).Outcomes[0].Kind)
	h.clock.Advance(24 * time.Hour)
	assert.Equal(t, execution.ReasonFinished, h.execute(t, trial, ts.ID).Outcomes[0].Reason)

	assert.Equal(t, execution.OutcomeTransferred, h.execute(t, oneOff, os.ID).Outcomes[0].Kind)
	h.clock.Advance(365 * 24 * time.Hour)
	assert.Equal(t, execution.ReasonFinished, h.execute(t, oneOff, os.ID).Outcomes[0].Reason)

	assert.Equal(t, "25", h.balance(t, merchant).String())
}

func TestMultiPlanBatchOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	require.NoError(t, h.token.Mint(bob, types.Units(150)))
	require.NoError(t, h.token.Approve(bob, h.engine.Address(), types.Units(150)))

	p1 := h.monthlyPlan(t)
	p2 := h.monthlyPlan(t)
	a1, _ := h.engine.Subscribe(ctx, alice, p1.ID, tokenAddr)
	b1, _ := h.engine.Subscribe(ctx, bob, p1.ID, tokenAddr)
	b2, _ := h.engine.Subscribe(ctx, bob, p2.ID, tokenAddr)

	report, err := h.engine.ExecuteBatches(ctx, merchant, []execution.Batch{
		{PlanID: p1.ID, SubscriptionIDs: []id.SubscriptionID{a1.ID, b1.ID}},
		{PlanID: p2.ID, SubscriptionIDs: []id.SubscriptionID{b2.ID}},
	}, executor)
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, execution.OutcomeTransferred, report.Outcomes[0].Kind)
	assert.Equal(t, execution.OutcomeTransferred, report.Outcomes[1].Kind)
	// Bob's earlier charge used up the allowance for his second plan.
	assert.Equal(t, execution.OutcomeFailed, report.Outcomes[2].Kind)
	assert.Equal(t, 2, report.Successful)
	assert.Equal(t, "200", report.Collected().String())
}

func TestDueBatches(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	h.fund(t, bob)
	p := h.monthlyPlan(t)
	sa, _ := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)
	sb, _ := h.engine.Subscribe(ctx, bob, p.ID, tokenAddr)
	_, err := h.engine.CreatePlan(ctx, merchant, bpay.PlanParams{Tokens: []types.Address{tokenAddr}, Price: types.Units(1), Period: month})
	require.NoError(t, err)

	due, err := h.engine.DueBatches(ctx, merchant)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, []id.SubscriptionID{sa.ID, sb.ID}, due[0].SubscriptionIDs)

	h.execute(t, p, sa.ID)
	due, err = h.engine.DueBatches(ctx, merchant)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, []id.SubscriptionID{sb.ID}, due[0].SubscriptionIDs)

	none, err := h.engine.DueBatches(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// ──────────────────────────────────────────────────
// Fee Vault
// ──────────────────────────────────────────────────

func TestServiceFeeDepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.engine.DepositServiceFee(ctx, merchant, types.Zero())
	require.ErrorIs(t, err, bpay.ErrInvalidAmount)

	bal, err := h.engine.DepositServiceFee(ctx, merchant, types.Units(100))
	require.NoError(t, err)
	assert.Equal(t, "100", bal.String())

	bal, err = h.engine.WithdrawServiceFee(ctx, merchant, types.Units(30))
	require.NoError(t, err)
	assert.Equal(t, "70", bal.String())

	_, err = h.engine.WithdrawServiceFee(ctx, merchant, types.Units(71))
	require.ErrorIs(t, err, bpay.ErrInsufficientServiceFee)
	_, err = h.engine.WithdrawServiceFee(ctx, merchant, types.Zero())
	require.ErrorIs(t, err, bpay.ErrInvalidAmount)

	bal, err = h.engine.GetServiceFeeBalance(ctx, merchant)
	require.NoError(t, err)
	assert.Equal(t, "70", bal.String())

	assert.Equal(t, 1, h.events.count(event.TypeServiceFeeDeposited))
	assert.Equal(t, 1, h.events.count(event.TypeServiceFeeWithdrawn))
}

func TestFeeBalanceNeverNegative(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := h.monthlyPlan(t)

	var subs []id.SubscriptionID
	for _, c := range []types.Address{"0xc1", "0xc2", "0xc3", "0xc4"} {
		h.fund(t, c)
		s, err := h.engine.Subscribe(ctx, c, p.ID, tokenAddr)
		require.NoError(t, err)
		subs = append(subs, s.ID)
	}

	deposits := []types.Amount{types.Units(1), types.Units(150_000_000_000_000), types.Zero()}
	for i, sid := range subs {
		if i < len(deposits) && deposits[i].IsPositive() {
			_, err := h.engine.DepositServiceFee(ctx, merchant, deposits[i])
			require.NoError(t, err)
		}
		h.execute(t, p, sid)
		bal, err := h.engine.GetServiceFeeBalance(ctx, merchant)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bal.Cmp(types.Zero()), 0)
	}
}

func TestPaymentHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	p := h.monthlyPlan(t)
	sub, _ := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)

	r1 := h.execute(t, p, sub.ID)
	h.clock.Advance(month)
	h.execute(t, p, sub.ID)

	pays, err := h.engine.GetPayments(ctx, payment.ListOpts{SubscriptionID: sub.ID})
	require.NoError(t, err)
	require.Len(t, pays, 2)
	assert.Equal(t, r1.ID, pays[0].ExecutionID)
	assert.Equal(t, executor, pays[0].Executor)
	assert.Equal(t, alice, pays[0].Customer)
	assert.True(t, pays[0].PaidAt.Before(pays[1].PaidAt))

	byMerchant, err := h.engine.GetPayments(ctx, payment.ListOpts{Merchant: merchant})
	require.NoError(t, err)
	assert.Len(t, byMerchant, 2)
}

func TestMissingTokenLedger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p, err := h.engine.CreatePlan(ctx, merchant, bpay.PlanParams{Tokens: []types.Address{"0xother-token"}, Price: types.Units(1), Period: month})
	require.NoError(t, err)
	sub, err := h.engine.Subscribe(ctx, alice, p.ID, "0xother-token")
	require.NoError(t, err)

	_, err = h.engine.Execute(ctx, merchant, []id.PlanID{p.ID}, [][]id.SubscriptionID{{sub.ID}}, executor)
	require.ErrorIs(t, err, bpay.ErrNoTokenLedger)

	strikes, _ := h.engine.Strikes(ctx, sub.ID)
	assert.Zero(t, strikes)
}

func TestConcurrentExecuteBillsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fund(t, alice)
	p := h.monthlyPlan(t)
	sub, _ := h.engine.Subscribe(ctx, alice, p.ID, tokenAddr)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.engine.Execute(ctx, merchant, []id.PlanID{p.ID}, [][]id.SubscriptionID{{sub.ID}}, executor)
		}()
	}
	wg.Wait()

	assert.Equal(t, "100", h.balance(t, merchant).String())
	got, _ := h.engine.GetSubscription(ctx, sub.ID)
	assert.EqualValues(t, 1, got.BillingCount)
}
