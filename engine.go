package bpay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/plugin"
	"github.com/xraph/bpay/store"
	"github.com/xraph/bpay/strike"
	"github.com/xraph/bpay/token"
	"github.com/xraph/bpay/types"
)

// DefaultAddress is the spender identity the engine presents to token
// ledgers when none is configured. Customers approve this address.
const DefaultAddress types.Address = "0x000000000000000000000000000000000000b9a7"

// Engine is the recurring billing engine. It owns no state of its own;
// plans, subscriptions, strikes, balances and payments live in the store.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	strikes *strike.Tracker
	tokens  *token.Registry
	reward  execution.RewardPolicy
	address types.Address
	now     func() time.Time

	// mu serializes every state-mutating call.
	mu sync.Mutex
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		strikes: strike.NewTracker(s),
		tokens:  token.NewRegistry(),
		reward:  execution.DefaultRewardPolicy(),
		address: DefaultAddress,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithTokenLedger registers the ledger that settles payments in tokenAddr.
func WithTokenLedger(tokenAddr types.Address, l token.Ledger) Option {
	return func(e *Engine) {
		e.tokens.Register(tokenAddr, l)
	}
}

// WithRewardPolicy replaces the executor reward policy.
func WithRewardPolicy(p execution.RewardPolicy) Option {
	return func(e *Engine) {
		e.reward = p
	}
}

// WithAddress sets the spender identity used for TransferFrom.
func WithAddress(addr types.Address) Option {
	return func(e *Engine) {
		if !addr.IsZero() {
			e.address = addr
		}
	}
}

// WithClock overrides the time source. Intended for tests and simulations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Address returns the spender identity customers must approve.
func (e *Engine) Address() types.Address { return e.address }

// RewardPolicy returns the active executor reward policy.
func (e *Engine) RewardPolicy() execution.RewardPolicy { return e.reward }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// RegisterTokenLedger binds a token ledger after construction.
func (e *Engine) RegisterTokenLedger(tokenAddr types.Address, l token.Ledger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokens.Register(tokenAddr, l)
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("bpay engine started",
		"address", e.address,
		"tokens", e.tokens.Tokens(),
		"plugins", e.plugins.Count(),
		"cost_per_billing", e.reward.CostPerBilling.String(),
		"markup_percent", e.reward.MarkupPercent,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

func (e *Engine) clock() time.Time { return e.now().UTC() }
