// Package extension provides the Forge extension adapter for bpay.
//
// It implements the forge.Extension interface to run the billing engine,
// and optionally a keeper, inside a Forge application with DI registration
// and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.bpay" or "bpay" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/keeper"
	"github.com/xraph/bpay/store"
	"github.com/xraph/bpay/store/memory"
	"github.com/xraph/bpay/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "bpay"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Recurring token billing engine with incentivized executors"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// keeperStopTimeout bounds how long Stop waits for a running tick.
const keeperStopTimeout = 30 * time.Second

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts bpay as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *bpay.Engine
	keeper     *keeper.Keeper
	store      store.Store
	engineOpts []bpay.Option
}

// New creates a new bpay Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *bpay.Engine { return e.engine }

// Keeper returns the in-process keeper, or nil when it is disabled.
func (e *Extension) Keeper() *keeper.Keeper { return e.keeper }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}
	e.engine = bpay.New(e.store, opts...)

	if e.keeper, err = e.buildKeeper(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*bpay.Engine, error) {
		return e.engine, nil
	})
}

// buildKeeper returns the in-process keeper, or nil when it is disabled.
// The keeper address is the account credited with rewards and must be set.
func (e *Extension) buildKeeper() (*keeper.Keeper, error) {
	if !e.config.EnableKeeper {
		return nil, nil
	}
	if e.config.Keeper.Address.IsZero() {
		return nil, fmt.Errorf("bpay: keeper: %w: keeper.address is required when enable_keeper is set", bpay.ErrInvalidInput)
	}
	k, err := keeper.New(e.engine, e.config.Keeper)
	if err != nil {
		return nil, fmt.Errorf("bpay: keeper: %w", err)
	}
	return k, nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("bpay: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.keeper != nil {
		// The keeper outlives the start context.
		if err := e.keeper.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.keeper != nil {
		stopCtx, cancel := context.WithTimeout(ctx, keeperStopTimeout)
		err := e.keeper.Stop(stopCtx)
		cancel()
		if err != nil {
			e.Logger().Warn("bpay: keeper did not stop cleanly", forge.F("error", err.Error()))
		}
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("bpay: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs bpay.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]bpay.Option, error) {
	opts := make([]bpay.Option, 0, len(e.engineOpts)+3)

	if e.config.Address != "" {
		opts = append(opts, bpay.WithAddress(types.NewAddress(e.config.Address)))
	}

	policy := execution.DefaultRewardPolicy()
	if e.config.CostPerBilling != "" {
		cost, err := types.ParseAmount(e.config.CostPerBilling)
		if err != nil {
			return nil, fmt.Errorf("bpay: cost_per_billing: %w", err)
		}
		policy.CostPerBilling = cost
	}
	if e.config.MarkupPercent > 0 {
		policy.MarkupPercent = e.config.MarkupPercent
	}
	opts = append(opts, bpay.WithRewardPolicy(policy))

	if e.config.PluginTimeout > 0 {
		opts = append(opts, bpay.WithPluginTimeout(e.config.PluginTimeout))
	}

	// Pass-through options come last so they win over config.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("bpay: configuration is required but not found in config files; " +
				"ensure 'extensions.bpay' or 'bpay' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("bpay: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("address", e.config.Address),
		forge.F("cost_per_billing", e.config.CostPerBilling),
		forge.F("markup_percent", e.config.MarkupPercent),
		forge.F("enable_keeper", e.config.EnableKeeper),
		forge.F("keeper_schedule", e.config.Keeper.Schedule),
		forge.F("keeper_merchants", len(e.config.Keeper.Merchants)),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.bpay", "bpay"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("bpay: loaded config from file", forge.F("key", key))
			return cfg, true
		}
		e.Logger().Warn("bpay: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Keeper.Schedule == "" {
		cfg.Keeper.Schedule = defaults.Keeper.Schedule
	}
	if cfg.Keeper.BatchSize == 0 {
		cfg.Keeper.BatchSize = defaults.Keeper.BatchSize
	}
	if cfg.Keeper.Concurrency == 0 {
		cfg.Keeper.Concurrency = defaults.Keeper.Concurrency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.EnableKeeper {
		yamlConfig.EnableKeeper = true
	}

	if yamlConfig.Address == "" {
		yamlConfig.Address = programmaticConfig.Address
	}
	if yamlConfig.CostPerBilling == "" {
		yamlConfig.CostPerBilling = programmaticConfig.CostPerBilling
	}
	if yamlConfig.MarkupPercent == 0 {
		yamlConfig.MarkupPercent = programmaticConfig.MarkupPercent
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	yk, pk := &yamlConfig.Keeper, programmaticConfig.Keeper
	if yk.Address.IsZero() {
		yk.Address = pk.Address
	}
	if len(yk.Merchants) == 0 {
		yk.Merchants = pk.Merchants
	}
	if yk.Schedule == "" {
		yk.Schedule = pk.Schedule
	}
	if yk.BatchSize == 0 {
		yk.BatchSize = pk.BatchSize
	}
	if yk.Concurrency == 0 {
		yk.Concurrency = pk.Concurrency
	}
	if yk.Timeout == 0 {
		yk.Timeout = pk.Timeout
	}

	return e.mergeWithDefaults(yamlConfig)
}
