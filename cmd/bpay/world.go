package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/store/memory"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/token"
	"github.com/xraph/bpay/types"
)

const (
	demoMerchant types.Address = "0x00000000000000000000000000000000000a11ce"
	demoToken    types.Address = "0x000000000000000000000000000000000000d011"
	tokenDecimal               = 18
)

// worldParams describes the demo deployment: one merchant, one plan and a
// set of customers, some of which revoke their allowance after subscribing.
type worldParams struct {
	Customers int
	Broke     int
	Price     string
	Period    time.Duration
	Fee       string
}

// world is an in-memory deployment of the engine seeded the way the
// deployment scripts seed a fresh chain.
type world struct {
	engine        *bpay.Engine
	token         *token.MemoryLedger
	plan          *plan.Plan
	subscriptions []*subscription.Subscription
}

func newWorld(ctx context.Context, p worldParams, logger *slog.Logger, opts ...bpay.Option) (*world, error) {
	if p.Customers <= 0 {
		return nil, fmt.Errorf("%w: at least one customer is required", bpay.ErrInvalidInput)
	}
	if p.Broke < 0 || p.Broke > p.Customers {
		return nil, fmt.Errorf("%w: broke customers must be between 0 and %d", bpay.ErrInvalidInput, p.Customers)
	}
	price, err := types.ParseUnits(p.Price, tokenDecimal)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	fee, err := types.ParseUnits(p.Fee, types.NativeDecimals)
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}

	w := &world{token: token.NewMemoryLedger("DEMO", tokenDecimal)}
	opts = append(opts, bpay.WithTokenLedger(demoToken, w.token))
	w.engine = bpay.New(memory.New(), opts...)
	if err := w.engine.Start(ctx); err != nil {
		return nil, err
	}

	w.plan, err = w.engine.CreatePlan(ctx, demoMerchant, bpay.PlanParams{
		Name:   "demo",
		Tokens: []types.Address{demoToken},
		Price:  price,
		Period: p.Period,
	})
	if err != nil {
		return nil, err
	}
	if fee.IsPositive() {
		if _, err := w.engine.DepositServiceFee(ctx, demoMerchant, fee); err != nil {
			return nil, err
		}
	}

	for i := range p.Customers {
		customer := types.Address(fmt.Sprintf("0x%040x", 0xc0000+i))
		if err := w.token.MintDefault(customer); err != nil {
			return nil, err
		}
		allowance := types.MustParseUnits(token.DefaultMint, tokenDecimal)
		if err := w.token.Approve(customer, w.engine.Address(), allowance); err != nil {
			return nil, err
		}
		sub, err := w.engine.Subscribe(ctx, customer, w.plan.ID, demoToken)
		if err != nil {
			return nil, err
		}
		w.subscriptions = append(w.subscriptions, sub)

		if i >= p.Customers-p.Broke {
			if err := w.token.Approve(customer, w.engine.Address(), types.Zero()); err != nil {
				return nil, err
			}
		}
	}

	logger.Info("demo world seeded",
		"merchant", demoMerchant,
		"plan_id", w.plan.ID,
		"customers", p.Customers,
		"revoked", p.Broke,
		"price", price.FormatUnits(tokenDecimal),
		"fee", fee.FormatUnits(types.NativeDecimals),
	)
	return w, nil
}

// simClock is a manually advanced clock for simulations.
type simClock struct {
	mu sync.Mutex
	t  time.Time
}

func newSimClock(t time.Time) *simClock { return &simClock{t: t.UTC()} }

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
