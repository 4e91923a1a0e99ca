package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/xraph/bpay"
	audithook "github.com/xraph/bpay/audit_hook"
	"github.com/xraph/bpay/keeper"
	"github.com/xraph/bpay/observability"
)

var (
	keeperCustomers int
	keeperBroke     int
	keeperPrice     string
	keeperPeriod    time.Duration
	keeperFee       string
	keeperAudit     bool
)

var keeperCmd = &cobra.Command{
	Use:   "keeper",
	Short: "Run a keeper against an in-memory deployment",
	Long: `Seed an in-memory deployment and run a keeper on BPAY_KEEPER_SCHEDULE
until interrupted. Billing metrics are served on BPAY_METRICS_ADDR at /metrics.`,
	Example: `  # Bill every minute, tick every 10 seconds
  BPAY_KEEPER_SCHEDULE="@every 10s" bpay keeper --period 1m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runKeeper(ctx, cfg)
	},
}

func init() {
	f := keeperCmd.Flags()
	f.IntVar(&keeperCustomers, "customers", 10, "number of subscribed customers")
	f.IntVar(&keeperBroke, "broke", 2, "customers that revoke their allowance after subscribing")
	f.StringVar(&keeperPrice, "price", "1", "plan price in whole tokens")
	f.DurationVar(&keeperPeriod, "period", time.Minute, "billing period")
	f.StringVar(&keeperFee, "fee", "1", "service fee the merchant deposits, in whole native units")
	f.BoolVar(&keeperAudit, "audit", false, "log an audit event for every billing event")
}

func runKeeper(ctx context.Context, cfg config) error {
	logger := cfg.newLogger(os.Stderr)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts, err := cfg.engineOptions(logger)
	if err != nil {
		return err
	}
	opts = append(opts, bpay.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))))
	if keeperAudit {
		opts = append(opts, bpay.WithPlugin(audithook.New(auditLogger(logger), audithook.WithLogger(logger))))
	}

	w, err := newWorld(ctx, worldParams{
		Customers: keeperCustomers,
		Broke:     keeperBroke,
		Price:     keeperPrice,
		Period:    keeperPeriod,
		Fee:       keeperFee,
	}, logger, opts...)
	if err != nil {
		return err
	}
	defer w.engine.Stop() //nolint:errcheck // memory store close cannot fail usefully here

	k, err := keeper.New(w.engine, cfg.keeperConfig(demoMerchant), keeper.WithLogger(logger))
	if err != nil {
		return err
	}

	startMetricsServer(ctx, cfg.MetricsAddr, reg, logger)

	if err := k.Start(ctx); err != nil {
		return err
	}
	logger.Info("bpay keeper running", "version", Version, "next_tick", k.Next())

	<-ctx.Done()
	logger.Info("shutting down gracefully")

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return k.Stop(stopCtx)
}

// auditLogger records audit events as structured log lines.
func auditLogger(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, ev *audithook.AuditEvent) error {
		logger.Info("audit",
			"action", ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"outcome", ev.Outcome,
			"severity", ev.Severity,
			"reason", ev.Reason,
		)
		return nil
	})
}
