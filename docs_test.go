package bpay_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/store/memory"
	"github.com/xraph/bpay/token"
	"github.com/xraph/bpay/types"
)

// TestDocumentationExamples verifies that the package documentation examples
// run as written.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()
		merchant := bpay.NewAddress("0xMerchant")
		customer := bpay.NewAddress("0xCustomer")
		keeper := bpay.NewAddress("0xKeeper")

		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()
		tok := token.NewMemoryLedger("USDC", 6)

		engine := bpay.New(store,
			bpay.WithLogger(slog.Default()),
			bpay.WithTokenLedger("0xusdc", tok),
		)
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		p, err := engine.CreatePlan(ctx, merchant, bpay.PlanParams{
			Name:   "Pro",
			Tokens: []bpay.Address{"0xusdc"},
			Price:  bpay.Units(100),
			Period: 30 * 24 * time.Hour,
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := engine.DepositServiceFee(ctx, merchant, bpay.Native("1")); err != nil {
			t.Fatal(err)
		}

		if err := tok.MintDefault(customer); err != nil {
			t.Fatal(err)
		}
		if err := tok.Approve(customer, engine.Address(), bpay.Units(1_000)); err != nil {
			t.Fatal(err)
		}
		sub, err := engine.Subscribe(ctx, customer, p.ID, "0xusdc")
		if err != nil {
			t.Fatal(err)
		}

		batches, err := engine.DueBatches(ctx, merchant)
		if err != nil {
			t.Fatal(err)
		}
		report, err := engine.ExecuteBatches(ctx, merchant, batches, keeper)
		if err != nil {
			t.Fatal(err)
		}

		if report.Successful != 1 {
			t.Fatalf("expected one charge for subscription %s, got %d", sub.ID, report.Successful)
		}
		log.Printf("collected %s, reward %s\n", report.Collected(), report.RewardPaid.FormatUnits(types.NativeDecimals))
	})

	t.Run("AmountExamples", func(t *testing.T) {
		oneEther := bpay.Native("1")
		if oneEther.String() != "1000000000000000000" {
			t.Errorf("unexpected wei value %s", oneEther)
		}

		usdc, err := bpay.ParseUnits("12.5", 6)
		if err != nil {
			t.Fatal(err)
		}
		if usdc.String() != "12500000" {
			t.Errorf("unexpected unit value %s", usdc)
		}

		total := bpay.Sum(bpay.Units(1), bpay.Units(2), bpay.Zero())
		if total.String() != "3" {
			t.Errorf("unexpected sum %s", total)
		}
	})
}
