package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/types"
)

func TestMetricsExtensionCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(NewPrometheusFactory(reg))
	ctx := context.Background()

	require.NoError(t, m.OnPlanCreated(ctx, &event.PlanCreated{}))
	require.NoError(t, m.OnPaymentTransferred(ctx, &event.PaymentTransferred{}))
	require.NoError(t, m.OnPaymentTransferred(ctx, &event.PaymentTransferred{}))
	require.NoError(t, m.OnPaymentFailed(ctx, &event.PaymentFailed{}))
	require.NoError(t, m.OnSubscriptionRemoved(ctx, &event.SubscriptionRemoved{}))

	assert.InDelta(t, 1, testutil.ToFloat64(m.PlanCreated.(prometheus.Counter)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.PaymentTransferred.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PaymentFailed.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SubscriptionRemoved.(prometheus.Counter)), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.PlanRemoved.(prometheus.Counter)), 0)
}

func TestRewardShortfall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(NewPrometheusFactory(reg))
	ctx := context.Background()

	require.NoError(t, m.OnRewardPaid(ctx, &event.RewardPaid{Requested: types.Units(5), Paid: types.Units(5)}))
	require.NoError(t, m.OnRewardPaid(ctx, &event.RewardPaid{Requested: types.Units(5), Paid: types.Units(1)}))

	assert.InDelta(t, 2, testutil.ToFloat64(m.RewardPaid.(prometheus.Counter)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RewardShortfall.(prometheus.Counter)), 0)
}

func TestExecutionHistograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsExtension(NewPrometheusFactory(reg))

	report := &execution.Report{
		Outcomes: []execution.Outcome{
			{Kind: execution.OutcomeTransferred},
			{Kind: execution.OutcomeSkipped},
		},
		Elapsed: 3 * time.Millisecond,
	}
	require.NoError(t, m.OnExecutionCompleted(context.Background(), &event.ExecutionCompleted{Report: report}))

	assert.InDelta(t, 1, testutil.ToFloat64(m.ExecutionCompleted.(prometheus.Counter)), 0)
	n, err := testutil.GatherAndCount(reg, "bpay_execution_completed_total", "bpay_execution_pairs", "bpay_execution_latency_ms")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewPrometheusFactory(reg)
	b := NewPrometheusFactory(reg)

	c1 := a.Counter(MetricPlanCreated)
	c2 := a.Counter(MetricPlanCreated)
	c3 := b.Counter(MetricPlanCreated)
	c1.Inc()
	c3.Inc()

	assert.Same(t, c1, c2)
	assert.InDelta(t, 2, testutil.ToFloat64(c1.(prometheus.Counter)), 0)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	s := Summarize(&execution.Report{Outcomes: []execution.Outcome{
		{Kind: execution.OutcomeTransferred},
		{Kind: execution.OutcomeFailed},
		{Kind: execution.OutcomeRemoved},
		{Kind: execution.OutcomeSkipped},
		{Kind: execution.OutcomeSkipped},
	}})
	assert.Equal(t, Summary{Pairs: 5, Transferred: 1, Failed: 1, Removed: 1, Skipped: 2}, s)
}
