package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/plugin"
)

type recorder struct {
	name      string
	created   atomic.Int32
	failed    atomic.Int32
	returnErr error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnPlanCreated(context.Context, *event.PlanCreated) error {
	r.created.Add(1)
	return r.returnErr
}

func (r *recorder) OnPaymentFailed(context.Context, *event.PaymentFailed) error {
	r.failed.Add(1)
	return r.returnErr
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnRewardPaid(ctx context.Context, _ *event.RewardPaid) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func quietRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterDuplicate(t *testing.T) {
	r := quietRegistry()
	require.NoError(t, r.Register(&recorder{name: "a"}))
	require.Error(t, r.Register(&recorder{name: "a"}))
	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("a"))
	assert.Nil(t, r.Get("missing"))
}

func TestEmitDispatchesOnlyImplementedHooks(t *testing.T) {
	ctx := context.Background()
	r := quietRegistry()
	a := &recorder{name: "a"}
	b := &recorder{name: "b", returnErr: errors.New("boom")}
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))
	require.NoError(t, r.Register(slow{}))

	r.EmitPlanCreated(ctx, &event.PlanCreated{})
	r.EmitPaymentFailed(ctx, &event.PaymentFailed{Strikes: 1})
	r.EmitPaymentFailed(ctx, &event.PaymentFailed{Strikes: 2})
	// No registered plugin implements these; they must be no-ops.
	r.EmitSubscribed(ctx, &event.Subscribed{})
	r.EmitExecutionCompleted(ctx, &event.ExecutionCompleted{})

	assert.EqualValues(t, 1, a.created.Load())
	assert.EqualValues(t, 2, a.failed.Load())
	// A failing hook is logged and does not stop dispatch.
	assert.EqualValues(t, 1, b.created.Load())
	assert.EqualValues(t, 2, b.failed.Load())
	assert.Len(t, r.List(), 3)
}

func TestEmitTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(slow{}))

	start := time.Now()
	r.EmitRewardPaid(context.Background(), &event.RewardPaid{})
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}
