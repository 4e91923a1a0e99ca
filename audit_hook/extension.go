// Package audithook bridges bpay billing events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import any
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnPlanCreated         = (*Extension)(nil)
	_ plugin.OnPlanRemoved         = (*Extension)(nil)
	_ plugin.OnSubscribed          = (*Extension)(nil)
	_ plugin.OnSubscriptionRemoved = (*Extension)(nil)
	_ plugin.OnPaymentTransferred  = (*Extension)(nil)
	_ plugin.OnPaymentFailed       = (*Extension)(nil)
	_ plugin.OnServiceFeeDeposited = (*Extension)(nil)
	_ plugin.OnServiceFeeWithdrawn = (*Extension)(nil)
	_ plugin.OnRewardPaid          = (*Extension)(nil)
	_ plugin.OnExecutionCompleted  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges bpay billing events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Plan hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, ev *event.PlanCreated) error {
	p := ev.Plan
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), CategoryBilling, "",
		"merchant", p.Merchant.String(),
		"name", p.Name,
		"price", p.Price.String(),
		"period", p.Period.String(),
		"trial_period", p.TrialPeriod.String(),
		"max_billings", p.MaxBillings,
	)
}

// OnPlanRemoved implements plugin.OnPlanRemoved.
func (e *Extension) OnPlanRemoved(ctx context.Context, ev *event.PlanRemoved) error {
	return e.record(ctx, ActionPlanRemoved, SeverityInfo, OutcomeSuccess,
		ResourcePlan, ev.PlanID.String(), CategoryBilling, "",
		"merchant", ev.Merchant.String(),
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed implements plugin.OnSubscribed.
func (e *Extension) OnSubscribed(ctx context.Context, ev *event.Subscribed) error {
	s := ev.Subscription
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, s.ID.String(), CategorySubscription, "",
		"plan_id", s.PlanID.String(),
		"customer", s.Customer.String(),
		"token", s.Token.String(),
	)
}

// OnSubscriptionRemoved implements plugin.OnSubscriptionRemoved.
func (e *Extension) OnSubscriptionRemoved(ctx context.Context, ev *event.SubscriptionRemoved) error {
	return e.record(ctx, ActionSubscriptionRemoved, SeverityWarning, OutcomeFailure,
		ResourceSubscription, ev.SubscriptionID.String(), CategorySubscription,
		"strike threshold reached",
		"execution_id", ev.ExecutionID.String(),
		"plan_id", ev.PlanID.String(),
		"strikes", ev.Strikes,
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentTransferred implements plugin.OnPaymentTransferred.
func (e *Extension) OnPaymentTransferred(ctx context.Context, ev *event.PaymentTransferred) error {
	resourceID := ev.SubscriptionID.String()
	if ev.Payment != nil {
		resourceID = ev.Payment.ID.String()
	}
	return e.record(ctx, ActionPaymentTransferred, SeverityInfo, OutcomeSuccess,
		ResourcePayment, resourceID, CategoryPayment, "",
		"execution_id", ev.ExecutionID.String(),
		"subscription_id", ev.SubscriptionID.String(),
		"plan_id", ev.PlanID.String(),
		"amount", ev.Amount.String(),
		"token", ev.Token.String(),
	)
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (e *Extension) OnPaymentFailed(ctx context.Context, ev *event.PaymentFailed) error {
	return e.record(ctx, ActionPaymentFailed, SeverityWarning, OutcomeFailure,
		ResourceSubscription, ev.SubscriptionID.String(), CategoryPayment, ev.Reason,
		"execution_id", ev.ExecutionID.String(),
		"plan_id", ev.PlanID.String(),
		"strikes", ev.Strikes,
	)
}

// ──────────────────────────────────────────────────
// Fee vault hooks
// ──────────────────────────────────────────────────

// OnServiceFeeDeposited implements plugin.OnServiceFeeDeposited.
func (e *Extension) OnServiceFeeDeposited(ctx context.Context, ev *event.ServiceFeeDeposited) error {
	return e.record(ctx, ActionServiceFeeDeposited, SeverityInfo, OutcomeSuccess,
		ResourceFeeBalance, ev.Merchant.String(), CategoryTreasury, "",
		"amount", ev.Amount.String(),
		"balance", ev.Balance.String(),
	)
}

// OnServiceFeeWithdrawn implements plugin.OnServiceFeeWithdrawn.
func (e *Extension) OnServiceFeeWithdrawn(ctx context.Context, ev *event.ServiceFeeWithdrawn) error {
	return e.record(ctx, ActionServiceFeeWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceFeeBalance, ev.Merchant.String(), CategoryTreasury, "",
		"amount", ev.Amount.String(),
		"balance", ev.Balance.String(),
	)
}

// OnRewardPaid implements plugin.OnRewardPaid. A reward capped by an
// exhausted fee balance is recorded as a partial outcome.
func (e *Extension) OnRewardPaid(ctx context.Context, ev *event.RewardPaid) error {
	outcome, severity, reason := OutcomeSuccess, SeverityInfo, ""
	if ev.Paid.LessThan(ev.Requested) {
		outcome, severity, reason = OutcomePartial, SeverityWarning, "service fee balance exhausted"
	}
	return e.record(ctx, ActionRewardPaid, severity, outcome,
		ResourceFeeBalance, ev.Merchant.String(), CategoryTreasury, reason,
		"execution_id", ev.ExecutionID.String(),
		"executor", ev.Executor.String(),
		"requested", ev.Requested.String(),
		"paid", ev.Paid.String(),
	)
}

// ──────────────────────────────────────────────────
// Execution hooks
// ──────────────────────────────────────────────────

// OnExecutionCompleted implements plugin.OnExecutionCompleted.
func (e *Extension) OnExecutionCompleted(ctx context.Context, ev *event.ExecutionCompleted) error {
	r := ev.Report
	return e.record(ctx, ActionExecutionCompleted, SeverityInfo, OutcomeSuccess,
		ResourceExecution, r.ID.String(), CategoryExecution, "",
		"merchant", r.Merchant.String(),
		"caller", r.Caller.String(),
		"pairs", len(r.Outcomes),
		"successful", r.Successful,
		"reward_paid", r.RewardPaid.String(),
		"elapsed_ms", r.Elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
