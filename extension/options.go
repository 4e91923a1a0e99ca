package extension

import (
	"time"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/keeper"
	"github.com/xraph/bpay/plugin"
	"github.com/xraph/bpay/store"
	"github.com/xraph/bpay/token"
	"github.com/xraph/bpay/types"
)

// Option configures the bpay Forge extension.
type Option func(*Extension)

// WithStore sets the store for the billing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a bpay.Option through to the underlying engine.
func WithEngineOption(opt bpay.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a bpay plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, bpay.WithPlugin(p))
	}
}

// WithTokenLedger binds the ledger that settles payments in tokenAddr.
func WithTokenLedger(tokenAddr types.Address, l token.Ledger) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, bpay.WithTokenLedger(tokenAddr, l))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithAddress sets the spender identity customers approve.
func WithAddress(addr string) Option {
	return func(e *Extension) { e.config.Address = addr }
}

// WithRewardPolicy sets the executor reward policy.
func WithRewardPolicy(costPerBilling string, markupPercent uint64) Option {
	return func(e *Extension) {
		e.config.CostPerBilling = costPerBilling
		e.config.MarkupPercent = markupPercent
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithKeeper enables the in-process keeper with cfg.
func WithKeeper(cfg keeper.Config) Option {
	return func(e *Extension) {
		e.config.EnableKeeper = true
		e.config.Keeper = cfg
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
