package extension

import (
	"time"

	"github.com/xraph/bpay/keeper"
)

// Config holds the bpay extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.bpay" or "bpay" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Address is the spender identity customers approve (default: bpay.DefaultAddress).
	Address string `json:"address" mapstructure:"address" yaml:"address"`

	// CostPerBilling is the executor cost reimbursed per successful billing,
	// in native base units as a decimal string (default: 100000000000000).
	CostPerBilling string `json:"cost_per_billing" mapstructure:"cost_per_billing" yaml:"cost_per_billing"`

	// MarkupPercent is applied on top of CostPerBilling (default: 101).
	MarkupPercent uint64 `json:"markup_percent" mapstructure:"markup_percent" yaml:"markup_percent"`

	// PluginTimeout bounds each plugin hook call. Zero means no bound.
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// EnableKeeper runs an in-process keeper alongside the engine.
	EnableKeeper bool `json:"enable_keeper" mapstructure:"enable_keeper" yaml:"enable_keeper"`

	// Keeper configures the in-process keeper. Keeper.Address is required
	// when EnableKeeper is set.
	Keeper keeper.Config `json:"keeper" mapstructure:"keeper" yaml:"keeper"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Keeper: keeper.Config{
			Schedule:    keeper.DefaultSchedule,
			BatchSize:   keeper.DefaultBatchSize,
			Concurrency: keeper.DefaultConcurrency,
		},
	}
}
