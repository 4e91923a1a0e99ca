package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/bpay/audit_hook"
	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/types"
)

type memRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (m *memRecorder) Record(_ context.Context, e *audithook.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func TestRecordsPlanCreated(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)

	err := ext.OnPlanCreated(context.Background(), &event.PlanCreated{Plan: &plan.Plan{
		ID: 4, Merchant: "0xm", Name: "Pro", Price: types.Units(100),
	}})
	require.NoError(t, err)

	require.Len(t, rec.events, 1)
	got := rec.events[0]
	assert.Equal(t, audithook.ActionPlanCreated, got.Action)
	assert.Equal(t, audithook.ResourcePlan, got.Resource)
	assert.Equal(t, "4", got.ResourceID)
	assert.Equal(t, "100", got.Metadata["price"])
	assert.Equal(t, audithook.OutcomeSuccess, got.Outcome)
}

func TestRewardPaidPartial(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)
	ctx := context.Background()

	require.NoError(t, ext.OnRewardPaid(ctx, &event.RewardPaid{
		ExecutionID: id.NewExecutionID(), Merchant: "0xm", Executor: "0xk",
		Requested: types.Units(10), Paid: types.Units(10),
	}))
	require.NoError(t, ext.OnRewardPaid(ctx, &event.RewardPaid{
		ExecutionID: id.NewExecutionID(), Merchant: "0xm", Executor: "0xk",
		Requested: types.Units(10), Paid: types.Units(3),
	}))

	require.Len(t, rec.events, 2)
	assert.Equal(t, audithook.OutcomeSuccess, rec.events[0].Outcome)
	assert.Equal(t, audithook.OutcomePartial, rec.events[1].Outcome)
	assert.Equal(t, audithook.SeverityWarning, rec.events[1].Severity)
}

func TestEnabledAndDisabledActions(t *testing.T) {
	ctx := context.Background()
	failed := &event.PaymentFailed{SubscriptionID: 1, Strikes: 1, Reason: "insufficient allowance"}
	done := &event.ExecutionCompleted{Report: &execution.Report{ID: id.NewExecutionID()}}

	rec := &memRecorder{}
	only := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionPaymentFailed))
	require.NoError(t, only.OnPaymentFailed(ctx, failed))
	require.NoError(t, only.OnExecutionCompleted(ctx, done))
	require.Len(t, rec.events, 1)
	assert.Equal(t, "insufficient allowance", rec.events[0].Reason)

	rec = &memRecorder{}
	without := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionPaymentFailed))
	require.NoError(t, without.OnPaymentFailed(ctx, failed))
	require.NoError(t, without.OnExecutionCompleted(ctx, done))
	require.Len(t, rec.events, 1)
	assert.Equal(t, audithook.ActionExecutionCompleted, rec.events[0].Action)
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := audithook.New(
		audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
			return errors.New("backend down")
		}),
		audithook.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	err := ext.OnSubscriptionRemoved(context.Background(), &event.SubscriptionRemoved{SubscriptionID: 2, Strikes: 3})
	assert.NoError(t, err)
}
