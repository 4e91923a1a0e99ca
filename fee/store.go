package fee

import (
	"context"

	"github.com/xraph/bpay/types"
)

// Store persists fee and reward balances. Balances never go negative:
// Debit must fail without side effects when the balance is insufficient.
type Store interface {
	GetBalance(ctx context.Context, kind Kind, owner types.Address) (types.Amount, error)
	Credit(ctx context.Context, kind Kind, owner types.Address, amount types.Amount) (types.Amount, error)
	Debit(ctx context.Context, kind Kind, owner types.Address, amount types.Amount) (types.Amount, error)
}
