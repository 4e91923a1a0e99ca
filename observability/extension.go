// Package observability provides a metrics extension for bpay that records
// billing event counts through a pluggable MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated         = (*MetricsExtension)(nil)
	_ plugin.OnPlanRemoved         = (*MetricsExtension)(nil)
	_ plugin.OnSubscribed          = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionRemoved = (*MetricsExtension)(nil)
	_ plugin.OnPaymentTransferred  = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed       = (*MetricsExtension)(nil)
	_ plugin.OnServiceFeeDeposited = (*MetricsExtension)(nil)
	_ plugin.OnServiceFeeWithdrawn = (*MetricsExtension)(nil)
	_ plugin.OnRewardPaid          = (*MetricsExtension)(nil)
	_ plugin.OnExecutionCompleted  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// Metric names. Dots separate the namespace, subsystem and metric.
const (
	MetricPlanCreated         = "bpay.plan.created"
	MetricPlanRemoved         = "bpay.plan.removed"
	MetricSubscriptionCreated = "bpay.subscription.created"
	MetricSubscriptionRemoved = "bpay.subscription.removed"
	MetricPaymentTransferred  = "bpay.payment.transferred"
	MetricPaymentFailed       = "bpay.payment.failed"
	MetricFeeDeposited        = "bpay.fee.deposited"
	MetricFeeWithdrawn        = "bpay.fee.withdrawn"
	MetricRewardPaid          = "bpay.reward.paid"
	MetricRewardShortfall     = "bpay.reward.shortfall"
	MetricExecutions          = "bpay.execution.completed"
	MetricExecutionPairs      = "bpay.execution.pairs"
	MetricExecutionLatency    = "bpay.execution.latency_ms"
)

// MetricsExtension records billing metrics.
// Register it as a bpay plugin to track execution health.
type MetricsExtension struct {
	factory MetricFactory

	// Plan metrics
	PlanCreated Counter
	PlanRemoved Counter

	// Subscription metrics
	SubscriptionCreated Counter
	SubscriptionRemoved Counter

	// Payment metrics
	PaymentTransferred Counter
	PaymentFailed      Counter

	// Fee vault metrics
	FeeDeposited    Counter
	FeeWithdrawn    Counter
	RewardPaid      Counter
	RewardShortfall Counter

	// Execution metrics
	ExecutionCompleted Counter
	ExecutionPairs     Histogram
	ExecutionLatency   Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewPrometheusFactory to export through a Prometheus registry.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		PlanCreated: factory.Counter(MetricPlanCreated),
		PlanRemoved: factory.Counter(MetricPlanRemoved),

		SubscriptionCreated: factory.Counter(MetricSubscriptionCreated),
		SubscriptionRemoved: factory.Counter(MetricSubscriptionRemoved),

		PaymentTransferred: factory.Counter(MetricPaymentTransferred),
		PaymentFailed:      factory.Counter(MetricPaymentFailed),

		FeeDeposited:    factory.Counter(MetricFeeDeposited),
		FeeWithdrawn:    factory.Counter(MetricFeeWithdrawn),
		RewardPaid:      factory.Counter(MetricRewardPaid),
		RewardShortfall: factory.Counter(MetricRewardShortfall),

		ExecutionCompleted: factory.Counter(MetricExecutions),
		ExecutionPairs:     factory.Histogram(MetricExecutionPairs),
		ExecutionLatency:   factory.Histogram(MetricExecutionLatency),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Plan hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *event.PlanCreated) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanRemoved implements plugin.OnPlanRemoved.
func (m *MetricsExtension) OnPlanRemoved(_ context.Context, _ *event.PlanRemoved) error {
	m.PlanRemoved.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (m *MetricsExtension) OnSubscribed(_ context.Context, _ *event.Subscribed) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionRemoved implements plugin.OnSubscriptionRemoved.
func (m *MetricsExtension) OnSubscriptionRemoved(_ context.Context, _ *event.SubscriptionRemoved) error {
	m.SubscriptionRemoved.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentTransferred implements plugin.OnPaymentTransferred.
func (m *MetricsExtension) OnPaymentTransferred(_ context.Context, _ *event.PaymentTransferred) error {
	m.PaymentTransferred.Inc()
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _ *event.PaymentFailed) error {
	m.PaymentFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Fee vault hooks
// ──────────────────────────────────────────────────

// OnServiceFeeDeposited implements plugin.OnServiceFeeDeposited.
func (m *MetricsExtension) OnServiceFeeDeposited(_ context.Context, _ *event.ServiceFeeDeposited) error {
	m.FeeDeposited.Inc()
	return nil
}

// OnServiceFeeWithdrawn implements plugin.OnServiceFeeWithdrawn.
func (m *MetricsExtension) OnServiceFeeWithdrawn(_ context.Context, _ *event.ServiceFeeWithdrawn) error {
	m.FeeWithdrawn.Inc()
	return nil
}

// OnRewardPaid implements plugin.OnRewardPaid.
func (m *MetricsExtension) OnRewardPaid(_ context.Context, ev *event.RewardPaid) error {
	m.RewardPaid.Inc()
	if ev.Paid.LessThan(ev.Requested) {
		m.RewardShortfall.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Execution hooks
// ──────────────────────────────────────────────────

// OnExecutionCompleted implements plugin.OnExecutionCompleted.
func (m *MetricsExtension) OnExecutionCompleted(_ context.Context, ev *event.ExecutionCompleted) error {
	m.ExecutionCompleted.Inc()
	if r := ev.Report; r != nil {
		m.ExecutionPairs.Observe(float64(len(r.Outcomes)))
		m.ExecutionLatency.Observe(float64(r.Elapsed) / float64(time.Millisecond))
	}
	return nil
}

// Summary is a compact view of a report used by log lines and the CLI.
type Summary struct {
	Pairs       int
	Transferred int
	Failed      int
	Removed     int
	Skipped     int
}

// Summarize counts report outcomes by kind.
func Summarize(r *execution.Report) Summary {
	if r == nil {
		return Summary{}
	}
	return Summary{
		Pairs:       len(r.Outcomes),
		Transferred: r.Count(execution.OutcomeTransferred),
		Failed:      r.Count(execution.OutcomeFailed),
		Removed:     r.Count(execution.OutcomeRemoved),
		Skipped:     r.Count(execution.OutcomeSkipped),
	}
}
