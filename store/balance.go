package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/bpay/types"
)

// MaxBalanceRetries bounds the compare-and-swap loop in AdjustBalance.
const MaxBalanceRetries = 8

// ErrBalanceContention is returned when a balance kept changing under
// AdjustBalance for MaxBalanceRetries attempts.
var ErrBalanceContention = errors.New("balance: too much contention")

// BalanceRow is one fee balance as a backend stores it.
type BalanceRow struct {
	// Load returns the stored balance as its raw decimal string.
	Load func(ctx context.Context) (string, error)
	// Swap stores next only if the balance still reads raw, and reports
	// whether it did.
	Swap func(ctx context.Context, raw string, next types.Amount) (bool, error)
}

// AdjustBalance applies fn to row with an optimistic compare-and-swap on the
// previous value, so concurrent writers never lose an update. An error from
// fn is returned as is, together with the balance it saw.
func AdjustBalance(ctx context.Context, row BalanceRow, fn func(types.Amount) (types.Amount, error)) (types.Amount, error) {
	for range MaxBalanceRetries {
		raw, err := row.Load(ctx)
		if err != nil {
			return types.Zero(), err
		}
		cur, err := types.ParseAmount(raw)
		if err != nil {
			return types.Zero(), fmt.Errorf("balance: %w", err)
		}
		next, err := fn(cur)
		if err != nil {
			return cur, err
		}
		ok, err := row.Swap(ctx, raw, next)
		if err != nil {
			return types.Zero(), err
		}
		if ok {
			return next, nil
		}
		if err := ctx.Err(); err != nil {
			return types.Zero(), err
		}
	}
	return types.Zero(), ErrBalanceContention
}
