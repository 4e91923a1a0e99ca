package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/types"
)

var (
	simCustomers int
	simBroke     int
	simRounds    int
	simPrice     string
	simPeriod    time.Duration
	simFee       string
	simJSON      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run billing rounds against an in-memory deployment",
	Long: `Seed an in-memory deployment (one merchant, one plan, funded customers),
then let a keeper submit every subscription once per round. The clock moves
forward one billing period between rounds.`,
	Example: `  # Two customers, one round
  bpay simulate

  # One of three customers revokes the allowance; watch it get removed
  bpay simulate --customers 3 --broke 1 --rounds 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runSimulation(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func init() {
	f := simulateCmd.Flags()
	f.IntVar(&simCustomers, "customers", 2, "number of subscribed customers")
	f.IntVar(&simBroke, "broke", 0, "customers that revoke their allowance after subscribing")
	f.IntVar(&simRounds, "rounds", 1, "billing rounds to run")
	f.StringVar(&simPrice, "price", "100", "plan price in whole tokens")
	f.DurationVar(&simPeriod, "period", 30*24*time.Hour, "billing period")
	f.StringVar(&simFee, "fee", "1", "service fee the merchant deposits, in whole native units")
	f.BoolVar(&simJSON, "json", false, "print execution reports as JSON")
}

func runSimulation(ctx context.Context, cfg config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if simRounds <= 0 {
		return fmt.Errorf("%w: rounds must be positive", bpay.ErrInvalidInput)
	}

	logger := cfg.newLogger(os.Stderr)
	opts, err := cfg.engineOptions(logger)
	if err != nil {
		return err
	}
	clock := newSimClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	opts = append(opts, bpay.WithClock(clock.Now))

	w, err := newWorld(ctx, worldParams{
		Customers: simCustomers,
		Broke:     simBroke,
		Price:     simPrice,
		Period:    simPeriod,
		Fee:       simFee,
	}, logger, opts...)
	if err != nil {
		return err
	}
	defer w.engine.Stop() //nolint:errcheck // memory store close cannot fail usefully here

	subIDs := make([]id.SubscriptionID, len(w.subscriptions))
	for i, s := range w.subscriptions {
		subIDs[i] = s.ID
	}
	caller := types.NewAddress(cfg.KeeperAddress)

	reports := make([]*execution.Report, 0, simRounds)
	for round := 1; round <= simRounds; round++ {
		report, err := w.engine.Execute(ctx, demoMerchant,
			[]id.PlanID{w.plan.ID}, [][]id.SubscriptionID{subIDs}, caller)
		if err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}
		reports = append(reports, report)
		if !simJSON {
			printReport(out, round, report)
		}
		clock.Advance(simPeriod)
	}

	if simJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	return printBalances(ctx, out, w, caller)
}

func printReport(out io.Writer, round int, r *execution.Report) {
	fmt.Fprintf(out, "Round %d  execution %s  at %s\n", round, r.ID, r.StartedAt.Format(time.DateOnly))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBSCRIPTION\tOUTCOME\tAMOUNT\tSTRIKES\tREASON")
	for _, o := range r.Outcomes {
		amount := "-"
		if o.Kind == execution.OutcomeTransferred {
			amount = o.Amount.FormatUnits(tokenDecimal)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", o.SubscriptionID, o.Kind, amount, o.Strikes, o.Reason)
	}
	_ = tw.Flush()

	fmt.Fprintf(out, "Reward: requested %s, paid %s\n\n",
		r.RewardRequested.FormatUnits(types.NativeDecimals),
		r.RewardPaid.FormatUnits(types.NativeDecimals),
	)
}

func printBalances(ctx context.Context, out io.Writer, w *world, caller types.Address) error {
	merchantTokens, err := w.token.BalanceOf(ctx, demoMerchant)
	if err != nil {
		return err
	}
	fee, err := w.engine.GetServiceFeeBalance(ctx, demoMerchant)
	if err != nil {
		return err
	}
	reward, err := w.engine.GetRewardBalance(ctx, caller)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Merchant token balance: %s %s\n", merchantTokens.FormatUnits(tokenDecimal), w.token.Symbol())
	fmt.Fprintf(out, "Merchant service fee:   %s\n", fee.FormatUnits(types.NativeDecimals))
	fmt.Fprintf(out, "Keeper reward balance:  %s\n", reward.FormatUnits(types.NativeDecimals))
	return nil
}
