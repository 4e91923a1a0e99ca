package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/keeper"
	"github.com/xraph/bpay/types"
)

// config is the process configuration loaded from the environment.
type config struct {
	LogLevel  string `env:"BPAY_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"BPAY_LOG_FORMAT" envDefault:"text"`

	// Engine
	Address        string `env:"BPAY_ADDRESS"`
	CostPerBilling string `env:"BPAY_COST_PER_BILLING"`
	MarkupPercent  uint64 `env:"BPAY_MARKUP_PERCENT" envDefault:"101"`

	// Keeper
	KeeperAddress     string        `env:"BPAY_KEEPER_ADDRESS" envDefault:"0x00000000000000000000000000000000000ee7e4"`
	KeeperSchedule    string        `env:"BPAY_KEEPER_SCHEDULE" envDefault:"@every 10s"`
	KeeperBatchSize   int           `env:"BPAY_KEEPER_BATCH_SIZE" envDefault:"50"`
	KeeperConcurrency int           `env:"BPAY_KEEPER_CONCURRENCY" envDefault:"4"`
	KeeperTimeout     time.Duration `env:"BPAY_KEEPER_TIMEOUT" envDefault:"30s"`

	MetricsAddr string `env:"BPAY_METRICS_ADDR" envDefault:":9091"`
}

// loadConfig parses BPAY_* environment variables.
func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// rewardPolicy returns the configured reward policy.
func (c config) rewardPolicy() (execution.RewardPolicy, error) {
	policy := execution.DefaultRewardPolicy()
	if c.CostPerBilling != "" {
		cost, err := types.ParseAmount(c.CostPerBilling)
		if err != nil {
			return execution.RewardPolicy{}, fmt.Errorf("BPAY_COST_PER_BILLING: %w", err)
		}
		policy.CostPerBilling = cost
	}
	if c.MarkupPercent > 0 {
		policy.MarkupPercent = c.MarkupPercent
	}
	return policy, nil
}

// engineOptions translates the engine settings into bpay options.
func (c config) engineOptions(logger *slog.Logger) ([]bpay.Option, error) {
	policy, err := c.rewardPolicy()
	if err != nil {
		return nil, err
	}
	opts := []bpay.Option{
		bpay.WithLogger(logger),
		bpay.WithRewardPolicy(policy),
	}
	if c.Address != "" {
		opts = append(opts, bpay.WithAddress(types.NewAddress(c.Address)))
	}
	return opts, nil
}

// keeperConfig builds the keeper configuration for merchants.
func (c config) keeperConfig(merchants ...types.Address) keeper.Config {
	return keeper.Config{
		Address:     types.NewAddress(c.KeeperAddress),
		Merchants:   merchants,
		Schedule:    c.KeeperSchedule,
		BatchSize:   c.KeeperBatchSize,
		Concurrency: c.KeeperConcurrency,
		Timeout:     c.KeeperTimeout,
	}
}

// newLogger builds the process logger writing to w.
func (c config) newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
