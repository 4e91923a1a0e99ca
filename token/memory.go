package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/bpay/types"
)

// DefaultMint is the number of whole tokens MintDefault credits, matching
// the seed amount handed to every test account.
const DefaultMint = "1000"

// Compile-time interface check.
var _ Ledger = (*MemoryLedger)(nil)

// MemoryLedger is an in-memory ERC20-style ledger used for tests, the
// simulator and the demo keeper.
type MemoryLedger struct {
	mu         sync.Mutex
	symbol     string
	decimals   int
	balances   map[types.Address]types.Amount
	allowances map[types.Address]map[types.Address]types.Amount
	supply     types.Amount
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger(symbol string, decimals int) *MemoryLedger {
	return &MemoryLedger{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[types.Address]types.Amount),
		allowances: make(map[types.Address]map[types.Address]types.Amount),
	}
}

// Symbol returns the token symbol.
func (l *MemoryLedger) Symbol() string { return l.symbol }

// Decimals returns the number of decimals of one whole token.
func (l *MemoryLedger) Decimals() int { return l.decimals }

// Mint credits amount to account.
func (l *MemoryLedger) Mint(account types.Address, amount types.Amount) error {
	if account.IsZero() {
		return ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[account] = l.balances[account].Add(amount)
	l.supply = l.supply.Add(amount)
	return nil
}

// MintDefault credits DefaultMint whole tokens to account.
func (l *MemoryLedger) MintDefault(account types.Address) error {
	return l.Mint(account, types.MustParseUnits(DefaultMint, l.decimals))
}

// Approve sets the allowance spender may draw from owner. Zero revokes it.
func (l *MemoryLedger) Approve(owner, spender types.Address, amount types.Amount) error {
	if owner.IsZero() || spender.IsZero() {
		return ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[types.Address]types.Amount)
	}
	l.allowances[owner][spender] = amount
	return nil
}

// Transfer moves amount from one account to another without an allowance.
func (l *MemoryLedger) Transfer(from, to types.Address, amount types.Amount) error {
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, l.balances[from], amount)
	}
	l.move(from, to, amount)
	return nil
}

// TransferFrom implements Ledger.
func (l *MemoryLedger) TransferFrom(_ context.Context, owner, spender, recipient types.Address, amount types.Amount) error {
	if owner.IsZero() || spender.IsZero() || recipient.IsZero() {
		return ErrInvalidAccount
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowances[owner][spender]
	if allowance.LessThan(amount) {
		return fmt.Errorf("%w: %s allows %s %s, needs %s", ErrInsufficientAllowance, owner, spender, allowance, amount)
	}
	if l.balances[owner].LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, owner, l.balances[owner], amount)
	}

	l.allowances[owner][spender] = allowance.Sub(amount)
	l.move(owner, recipient, amount)
	return nil
}

// BalanceOf implements Ledger.
func (l *MemoryLedger) BalanceOf(_ context.Context, account types.Address) (types.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// Allowance implements Ledger.
func (l *MemoryLedger) Allowance(_ context.Context, owner, spender types.Address) (types.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner][spender], nil
}

// TotalSupply returns the sum of everything ever minted.
func (l *MemoryLedger) TotalSupply() types.Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply
}

// move must be called with l.mu held and after balance checks.
func (l *MemoryLedger) move(from, to types.Address, amount types.Amount) {
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
}
