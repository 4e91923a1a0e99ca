package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bpay/store"
	"github.com/xraph/bpay/types"
)

var errInsufficient = errors.New("insufficient")

// casRow is a balance row guarded like a database row: Swap succeeds only if
// nobody wrote since the value was loaded.
type casRow struct {
	mu    sync.Mutex
	value string
	swaps int
	// interfere is called between Load and Swap and may change value.
	interfere func(r *casRow)
}

func (r *casRow) row() store.BalanceRow {
	return store.BalanceRow{
		Load: func(context.Context) (string, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.value, nil
		},
		Swap: func(_ context.Context, raw string, next types.Amount) (bool, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.interfere != nil {
				r.interfere(r)
			}
			r.swaps++
			if r.value != raw {
				return false, nil
			}
			r.value = next.String()
			return true, nil
		},
	}
}

func credit(amount uint64) func(types.Amount) (types.Amount, error) {
	return func(cur types.Amount) (types.Amount, error) {
		return cur.Add(types.Units(amount)), nil
	}
}

func debit(amount uint64) func(types.Amount) (types.Amount, error) {
	return func(cur types.Amount) (types.Amount, error) {
		if cur.LessThan(types.Units(amount)) {
			return cur, errInsufficient
		}
		return cur.Sub(types.Units(amount)), nil
	}
}

func TestAdjustBalanceCreditAndDebit(t *testing.T) {
	ctx := context.Background()
	r := &casRow{value: "0"}

	bal, err := store.AdjustBalance(ctx, r.row(), credit(10))
	require.NoError(t, err)
	assert.Equal(t, "10", bal.String())

	bal, err = store.AdjustBalance(ctx, r.row(), debit(4))
	require.NoError(t, err)
	assert.Equal(t, "6", bal.String())
	assert.Equal(t, "6", r.value)
}

func TestAdjustBalanceInsufficientLeavesRowAlone(t *testing.T) {
	ctx := context.Background()
	r := &casRow{value: "6"}

	bal, err := store.AdjustBalance(ctx, r.row(), debit(7))
	require.ErrorIs(t, err, errInsufficient)
	assert.Equal(t, "6", bal.String())
	assert.Equal(t, "6", r.value)
	assert.Zero(t, r.swaps)
}

func TestAdjustBalanceRetriesAfterLostSwap(t *testing.T) {
	ctx := context.Background()
	r := &casRow{value: "10"}
	r.interfere = func(r *casRow) {
		// Another writer credits 5 once, before our first swap lands.
		r.value = "15"
		r.interfere = nil
	}

	bal, err := store.AdjustBalance(ctx, r.row(), debit(3))
	require.NoError(t, err)
	assert.Equal(t, "12", bal.String())
	assert.Equal(t, "12", r.value)
	assert.Equal(t, 2, r.swaps)
}

func TestAdjustBalanceGivesUpUnderContention(t *testing.T) {
	ctx := context.Background()
	r := &casRow{value: "0"}
	n := 0
	r.interfere = func(r *casRow) {
		n++
		r.value = types.Units(uint64(100 + n)).String()
	}

	_, err := store.AdjustBalance(ctx, r.row(), credit(1))
	require.ErrorIs(t, err, store.ErrBalanceContention)
	assert.Equal(t, store.MaxBalanceRetries, r.swaps)
}

func TestAdjustBalanceStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &casRow{value: "0"}
	r.interfere = func(r *casRow) {
		r.value = "1"
		cancel()
	}

	_, err := store.AdjustBalance(ctx, r.row(), credit(1))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, r.swaps)
}

func TestAdjustBalanceRejectsCorruptValue(t *testing.T) {
	r := &casRow{value: "ten"}
	_, err := store.AdjustBalance(context.Background(), r.row(), credit(1))
	require.Error(t, err)
	assert.Equal(t, "ten", r.value)
}

func TestAdjustBalanceLoadAndSwapErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	_, err := store.AdjustBalance(ctx, store.BalanceRow{
		Load: func(context.Context) (string, error) { return "", boom },
	}, credit(1))
	require.ErrorIs(t, err, boom)

	_, err = store.AdjustBalance(ctx, store.BalanceRow{
		Load: func(context.Context) (string, error) { return "1", nil },
		Swap: func(context.Context, string, types.Amount) (bool, error) { return false, boom },
	}, credit(1))
	require.ErrorIs(t, err, boom)
}

func TestAdjustBalanceConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	r := &casRow{value: "10"}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := store.AdjustBalance(ctx, r.row(), debit(1))
				if errors.Is(err, store.ErrBalanceContention) {
					continue
				}
				if err == nil {
					mu.Lock()
					settled++
					mu.Unlock()
				}
				return
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, settled)
	assert.Equal(t, "0", r.value)
}
