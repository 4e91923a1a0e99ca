// Package plugin provides an extensible plugin system for bpay.
// Plugins can hook into lifecycle and billing events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/bpay/event"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan hooks
// ──────────────────────────────────────────────────

// OnPlanCreated is called when a merchant creates a plan.
type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, e *event.PlanCreated) error
}

// OnPlanRemoved is called when a merchant removes a plan.
type OnPlanRemoved interface {
	Plugin
	OnPlanRemoved(ctx context.Context, e *event.PlanRemoved) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscribed is called when a customer subscribes to a plan.
type OnSubscribed interface {
	Plugin
	OnSubscribed(ctx context.Context, e *event.Subscribed) error
}

// OnSubscriptionRemoved is called when a subscription is deactivated after
// too many failed billings.
type OnSubscriptionRemoved interface {
	Plugin
	OnSubscriptionRemoved(ctx context.Context, e *event.SubscriptionRemoved) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentTransferred is called for every successful charge.
type OnPaymentTransferred interface {
	Plugin
	OnPaymentTransferred(ctx context.Context, e *event.PaymentTransferred) error
}

// OnPaymentFailed is called when a charge fails and the subscription
// survives.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, e *event.PaymentFailed) error
}

// ──────────────────────────────────────────────────
// Fee vault hooks
// ──────────────────────────────────────────────────

// OnServiceFeeDeposited is called after a merchant deposits service fee.
type OnServiceFeeDeposited interface {
	Plugin
	OnServiceFeeDeposited(ctx context.Context, e *event.ServiceFeeDeposited) error
}

// OnServiceFeeWithdrawn is called after a merchant withdraws service fee.
type OnServiceFeeWithdrawn interface {
	Plugin
	OnServiceFeeWithdrawn(ctx context.Context, e *event.ServiceFeeWithdrawn) error
}

// OnRewardPaid is called when an executor is paid for a run.
type OnRewardPaid interface {
	Plugin
	OnRewardPaid(ctx context.Context, e *event.RewardPaid) error
}

// ──────────────────────────────────────────────────
// Execution hooks
// ──────────────────────────────────────────────────

// OnExecutionCompleted is called after every completed Execute call.
type OnExecutionCompleted interface {
	Plugin
	OnExecutionCompleted(ctx context.Context, e *event.ExecutionCompleted) error
}
