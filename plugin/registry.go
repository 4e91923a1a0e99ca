package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/bpay/event"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onPlanCreated         []OnPlanCreated
	onPlanRemoved         []OnPlanRemoved
	onSubscribed          []OnSubscribed
	onSubscriptionRemoved []OnSubscriptionRemoved
	onPaymentTransferred  []OnPaymentTransferred
	onPaymentFailed       []OnPaymentFailed
	onServiceFeeDeposited []OnServiceFeeDeposited
	onServiceFeeWithdrawn []OnServiceFeeWithdrawn
	onRewardPaid          []OnRewardPaid
	onExecutionCompleted  []OnExecutionCompleted
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
	}
	if v, ok := p.(OnPlanRemoved); ok {
		r.onPlanRemoved = append(r.onPlanRemoved, v)
	}
	if v, ok := p.(OnSubscribed); ok {
		r.onSubscribed = append(r.onSubscribed, v)
	}
	if v, ok := p.(OnSubscriptionRemoved); ok {
		r.onSubscriptionRemoved = append(r.onSubscriptionRemoved, v)
	}
	if v, ok := p.(OnPaymentTransferred); ok {
		r.onPaymentTransferred = append(r.onPaymentTransferred, v)
	}
	if v, ok := p.(OnPaymentFailed); ok {
		r.onPaymentFailed = append(r.onPaymentFailed, v)
	}
	if v, ok := p.(OnServiceFeeDeposited); ok {
		r.onServiceFeeDeposited = append(r.onServiceFeeDeposited, v)
	}
	if v, ok := p.(OnServiceFeeWithdrawn); ok {
		r.onServiceFeeWithdrawn = append(r.onServiceFeeWithdrawn, v)
	}
	if v, ok := p.(OnRewardPaid); ok {
		r.onRewardPaid = append(r.onRewardPaid, v)
	}
	if v, ok := p.(OnExecutionCompleted); ok {
		r.onExecutionCompleted = append(r.onExecutionCompleted, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnPlanCreated", reflect.TypeFor[OnPlanCreated]()},
	{"OnPlanRemoved", reflect.TypeFor[OnPlanRemoved]()},
	{"OnSubscribed", reflect.TypeFor[OnSubscribed]()},
	{"OnSubscriptionRemoved", reflect.TypeFor[OnSubscriptionRemoved]()},
	{"OnPaymentTransferred", reflect.TypeFor[OnPaymentTransferred]()},
	{"OnPaymentFailed", reflect.TypeFor[OnPaymentFailed]()},
	{"OnServiceFeeDeposited", reflect.TypeFor[OnServiceFeeDeposited]()},
	{"OnServiceFeeWithdrawn", reflect.TypeFor[OnServiceFeeWithdrawn]()},
	{"OnRewardPaid", reflect.TypeFor[OnRewardPaid]()},
	{"OnExecutionCompleted", reflect.TypeFor[OnExecutionCompleted]()},
}

// implementedInterfaces returns the hook names implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var names []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every hook, logging failures. Hook errors never reach
// the caller.
func emit[H Plugin](ctx context.Context, r *Registry, hook string, hooks []H, fn func(H) error) {
	for _, h := range hooks {
		if err := r.callWithTimeout(ctx, h.Name(), func() error { return fn(h) }); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", h.Name(),
				"error", err,
			)
		}
	}
}

func snapshot[H any](r *Registry, list *[]H) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *list
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", snapshot(r, &r.onInit), func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", snapshot(r, &r.onShutdown), func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitPlanCreated emits a plan created event.
func (r *Registry) EmitPlanCreated(ctx context.Context, e *event.PlanCreated) {
	emit(ctx, r, "OnPlanCreated", snapshot(r, &r.onPlanCreated), func(p OnPlanCreated) error {
		return p.OnPlanCreated(ctx, e)
	})
}

// EmitPlanRemoved emits a plan removed event.
func (r *Registry) EmitPlanRemoved(ctx context.Context, e *event.PlanRemoved) {
	emit(ctx, r, "OnPlanRemoved", snapshot(r, &r.onPlanRemoved), func(p OnPlanRemoved) error {
		return p.OnPlanRemoved(ctx, e)
	})
}

// EmitSubscribed emits a subscription created event.
func (r *Registry) EmitSubscribed(ctx context.Context, e *event.Subscribed) {
	emit(ctx, r, "OnSubscribed", snapshot(r, &r.onSubscribed), func(p OnSubscribed) error {
		return p.OnSubscribed(ctx, e)
	})
}

// EmitSubscriptionRemoved emits a subscription removed event.
func (r *Registry) EmitSubscriptionRemoved(ctx context.Context, e *event.SubscriptionRemoved) {
	emit(ctx, r, "OnSubscriptionRemoved", snapshot(r, &r.onSubscriptionRemoved), func(p OnSubscriptionRemoved) error {
		return p.OnSubscriptionRemoved(ctx, e)
	})
}

// EmitPaymentTransferred emits a successful payment event.
func (r *Registry) EmitPaymentTransferred(ctx context.Context, e *event.PaymentTransferred) {
	emit(ctx, r, "OnPaymentTransferred", snapshot(r, &r.onPaymentTransferred), func(p OnPaymentTransferred) error {
		return p.OnPaymentTransferred(ctx, e)
	})
}

// EmitPaymentFailed emits a failed payment event.
func (r *Registry) EmitPaymentFailed(ctx context.Context, e *event.PaymentFailed) {
	emit(ctx, r, "OnPaymentFailed", snapshot(r, &r.onPaymentFailed), func(p OnPaymentFailed) error {
		return p.OnPaymentFailed(ctx, e)
	})
}

// EmitServiceFeeDeposited emits a fee deposit event.
func (r *Registry) EmitServiceFeeDeposited(ctx context.Context, e *event.ServiceFeeDeposited) {
	emit(ctx, r, "OnServiceFeeDeposited", snapshot(r, &r.onServiceFeeDeposited), func(p OnServiceFeeDeposited) error {
		return p.OnServiceFeeDeposited(ctx, e)
	})
}

// EmitServiceFeeWithdrawn emits a fee withdrawal event.
func (r *Registry) EmitServiceFeeWithdrawn(ctx context.Context, e *event.ServiceFeeWithdrawn) {
	emit(ctx, r, "OnServiceFeeWithdrawn", snapshot(r, &r.onServiceFeeWithdrawn), func(p OnServiceFeeWithdrawn) error {
		return p.OnServiceFeeWithdrawn(ctx, e)
	})
}

// EmitRewardPaid emits an executor reward event.
func (r *Registry) EmitRewardPaid(ctx context.Context, e *event.RewardPaid) {
	emit(ctx, r, "OnRewardPaid", snapshot(r, &r.onRewardPaid), func(p OnRewardPaid) error {
		return p.OnRewardPaid(ctx, e)
	})
}

// EmitExecutionCompleted emits an execution completed event.
func (r *Registry) EmitExecutionCompleted(ctx context.Context, e *event.ExecutionCompleted) {
	emit(ctx, r, "OnExecutionCompleted", snapshot(r, &r.onExecutionCompleted), func(p OnExecutionCompleted) error {
		return p.OnExecutionCompleted(ctx, e)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
