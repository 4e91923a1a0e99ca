// Package token defines the ERC20-style token ledger the billing engine
// moves funds through, plus an in-memory reference implementation.
//
// The engine only relies on TransferFrom being atomic: the allowance and
// balance checks, the debit and the credit either all happen or none do, and
// a failure is reported as an error value rather than a panic.
package token

import (
	"context"
	"errors"

	"github.com/xraph/bpay/types"
)

// Sentinel errors reported by token ledgers.
var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: invalid amount")
	ErrInvalidAccount        = errors.New("token: invalid account")
	ErrUnknownToken          = errors.New("token: no ledger registered for token")
)

// Ledger is the subset of an ERC20 token the engine consumes.
type Ledger interface {
	// TransferFrom moves amount from owner to recipient using the allowance
	// owner granted to spender.
	TransferFrom(ctx context.Context, owner, spender, recipient types.Address, amount types.Amount) error
	BalanceOf(ctx context.Context, account types.Address) (types.Amount, error)
	Allowance(ctx context.Context, owner, spender types.Address) (types.Amount, error)
}

// Registry maps token addresses to their ledgers.
type Registry struct {
	ledgers map[types.Address]Ledger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[types.Address]Ledger)}
}

// Register binds a ledger to a token address, replacing any previous binding.
func (r *Registry) Register(tokenAddr types.Address, l Ledger) {
	r.ledgers[tokenAddr] = l
}

// Lookup returns the ledger for a token, or ErrUnknownToken.
func (r *Registry) Lookup(tokenAddr types.Address) (Ledger, error) {
	l, ok := r.ledgers[tokenAddr]
	if !ok {
		return nil, ErrUnknownToken
	}
	return l, nil
}

// Tokens returns the number of registered tokens.
func (r *Registry) Tokens() int { return len(r.ledgers) }
