// Package bpay provides a recurring token billing engine for Go applications.
//
// Merchants register plans, customers subscribe to them with an ERC20-style
// token, and independent executors (keepers) batch-process due billings.
// Each charge moves the plan price from the customer to the merchant; the
// executor is reimbursed out of a fee balance the merchant prepaid.
//
//   - Plans with a price, period, optional trial and billing limit
//   - Independent subscriptions, never deduplicated
//   - Three-strike removal of subscriptions whose charges keep failing
//   - A self-funded executor reward capped by the merchant's fee balance
//   - Payment history, plugins, metrics and an audit trail
//
// # Quick Start
//
//	store := memory.New()
//	tok := token.NewMemoryLedger("USDC", 6)
//
//	engine := bpay.New(store,
//	    bpay.WithLogger(slog.Default()),
//	    bpay.WithTokenLedger("0xusdc", tok),
//	)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
//	p, _ := engine.CreatePlan(ctx, merchant, bpay.PlanParams{
//	    Name:   "Pro",
//	    Tokens: []bpay.Address{"0xusdc"},
//	    Price:  bpay.Units(100),
//	    Period: 30 * 24 * time.Hour,
//	})
//	_, _ = engine.DepositServiceFee(ctx, merchant, bpay.Native("1"))
//
//	_ = tok.Approve(customer, engine.Address(), bpay.Units(1_000))
//	sub, _ := engine.Subscribe(ctx, customer, p.ID, "0xusdc")
//
// # Execution
//
// A keeper asks which subscriptions are due and submits them:
//
//	batches, _ := engine.DueBatches(ctx, merchant)
//	report, err := engine.ExecuteBatches(ctx, merchant, batches, keeper)
//
// Batch preconditions (shape, plan ownership, plan membership) are checked
// before any state changes. Token transfer failures never fail the call;
// they add a strike, and the third consecutive strike deactivates the
// subscription. A subscription already billed in the current period is
// skipped, so overlapping keepers cannot double charge.
//
// The reward for a run is
//
//	CostPerBilling × successful × MarkupPercent / 100
//
// paid from the merchant's fee balance and capped by it. See
// execution.RewardPolicy.
//
// The keeper package runs this loop on a cron schedule for a set of
// merchants, and the extension package can run it inside a Forge app.
//
// # Storage
//
// Backends implement store.Store: store/memory for tests and single
// processes, store/sqlite and store/postgres through grove, and store/mongo.
package bpay
