package bpay

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/fee"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/types"
)

// ──────────────────────────────────────────────────
// Fee Vault
// ──────────────────────────────────────────────────

// DepositServiceFee credits merchant's prepaid executor fee balance.
func (e *Engine) DepositServiceFee(ctx context.Context, merchant types.Address, amount types.Amount) (types.Amount, error) {
	if merchant.IsZero() {
		return types.Zero(), fmt.Errorf("%w: merchant is required", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return types.Zero(), ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	balance, err := e.store.Credit(ctx, fee.KindServiceFee, merchant, amount)
	if err != nil {
		return types.Zero(), fmt.Errorf("bpay: deposit service fee: %w", err)
	}

	e.logger.Info("service fee deposited",
		"merchant", merchant,
		"amount", amount.String(),
		"balance", balance.String(),
	)
	e.plugins.EmitServiceFeeDeposited(ctx, &event.ServiceFeeDeposited{
		Merchant: merchant,
		Amount:   amount,
		Balance:  balance,
	})
	return balance, nil
}

// WithdrawServiceFee returns unused fee balance to the merchant.
func (e *Engine) WithdrawServiceFee(ctx context.Context, merchant types.Address, amount types.Amount) (types.Amount, error) {
	if merchant.IsZero() {
		return types.Zero(), fmt.Errorf("%w: merchant is required", ErrInvalidInput)
	}
	if !amount.IsPositive() {
		return types.Zero(), ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	balance, err := e.store.Debit(ctx, fee.KindServiceFee, merchant, amount)
	if err != nil {
		if errors.Is(err, ErrInsufficientServiceFee) {
			return balance, err
		}
		return types.Zero(), fmt.Errorf("bpay: withdraw service fee: %w", err)
	}

	e.logger.Info("service fee withdrawn",
		"merchant", merchant,
		"amount", amount.String(),
		"balance", balance.String(),
	)
	e.plugins.EmitServiceFeeWithdrawn(ctx, &event.ServiceFeeWithdrawn{
		Merchant: merchant,
		Amount:   amount,
		Balance:  balance,
	})
	return balance, nil
}

// GetServiceFeeBalance returns merchant's remaining fee balance.
func (e *Engine) GetServiceFeeBalance(ctx context.Context, merchant types.Address) (types.Amount, error) {
	return e.store.GetBalance(ctx, fee.KindServiceFee, merchant)
}

// GetRewardBalance returns the total reward earned by executor.
func (e *Engine) GetRewardBalance(ctx context.Context, executor types.Address) (types.Amount, error) {
	return e.store.GetBalance(ctx, fee.KindReward, executor)
}

// payReward moves min(amount, balance) from merchant's fee balance to the
// executor's reward balance and returns what was paid. Running out of fee
// balance is not an error. If the reward cannot be credited the fee is
// refunded. Must be called with e.mu held.
func (e *Engine) payReward(ctx context.Context, execID id.ExecutionID, merchant, executor types.Address, amount types.Amount) (types.Amount, error) {
	if !amount.IsPositive() {
		return types.Zero(), nil
	}

	balance, err := e.store.GetBalance(ctx, fee.KindServiceFee, merchant)
	if err != nil {
		return types.Zero(), fmt.Errorf("bpay: read service fee: %w", err)
	}
	paid := amount.Min(balance)

	if paid.IsPositive() {
		if _, err := e.store.Debit(ctx, fee.KindServiceFee, merchant, paid); err != nil {
			return types.Zero(), fmt.Errorf("bpay: debit service fee: %w", err)
		}
		if _, err := e.store.Credit(ctx, fee.KindReward, executor, paid); err != nil {
			err = fmt.Errorf("bpay: credit reward: %w", err)
			// Refund the fee taken for a reward nobody received.
			if _, rerr := e.store.Credit(ctx, fee.KindServiceFee, merchant, paid); rerr != nil {
				e.logger.Error("service fee refund failed",
					"merchant", merchant,
					"amount", paid.String(),
					"error", rerr,
				)
				return types.Zero(), errors.Join(err, fmt.Errorf("bpay: refund service fee: %w", rerr))
			}
			return types.Zero(), err
		}
	}

	if paid.LessThan(amount) {
		e.logger.Warn("service fee exhausted",
			"merchant", merchant,
			"requested", amount.String(),
			"paid", paid.String(),
		)
	}
	e.plugins.EmitRewardPaid(ctx, &event.RewardPaid{
		ExecutionID: execID,
		Merchant:    merchant,
		Executor:    executor,
		Requested:   amount,
		Paid:        paid,
	})
	return paid, nil
}
