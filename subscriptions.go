package bpay

import (
	"context"
	"fmt"

	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/types"
)

// ──────────────────────────────────────────────────
// Subscription Ledger
// ──────────────────────────────────────────────────

// Subscribe enrolls customer in a plan, paying with tokenAddr. Subscribing
// twice creates two independent subscriptions.
func (e *Engine) Subscribe(ctx context.Context, customer types.Address, planID id.PlanID, tokenAddr types.Address) (*subscription.Subscription, error) {
	if customer.IsZero() {
		return nil, fmt.Errorf("%w: customer is required", ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p.IsRemoved() {
		return nil, fmt.Errorf("%w: plan %s was removed", ErrPlanNotFound, planID)
	}
	if !p.AcceptsToken(tokenAddr) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, tokenAddr)
	}

	subID, err := e.store.NextSubscriptionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("bpay: allocate subscription id: %w", err)
	}

	sub := &subscription.Subscription{
		ID:        subID,
		PlanID:    planID,
		Customer:  customer,
		Token:     tokenAddr,
		Active:    true,
		CreatedAt: e.clock(),
	}

	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("bpay: create subscription: %w", err)
	}
	if err := e.strikes.Init(ctx, subID); err != nil {
		return nil, fmt.Errorf("bpay: init strikes: %w", err)
	}

	e.logger.Info("subscribed",
		"subscription_id", subID,
		"plan_id", planID,
		"customer", customer,
		"token", tokenAddr,
	)
	e.plugins.EmitSubscribed(ctx, &event.Subscribed{Subscription: sub})
	return sub, nil
}

// GetSubscription returns a subscription by id.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// GetSubscriptions returns every subscription in creation order.
func (e *Engine) GetSubscriptions(ctx context.Context) ([]*subscription.Subscription, error) {
	return e.store.ListSubscriptions(ctx, subscription.ListOpts{})
}

// GetPlanSubscriptions returns the subscriptions of one plan.
func (e *Engine) GetPlanSubscriptions(ctx context.Context, planID id.PlanID) ([]*subscription.Subscription, error) {
	return e.store.ListSubscriptions(ctx, subscription.ListOpts{PlanID: planID})
}

// GetCustomerSubscriptions returns the subscriptions held by customer.
func (e *Engine) GetCustomerSubscriptions(ctx context.Context, customer types.Address) ([]*subscription.Subscription, error) {
	return e.store.ListSubscriptions(ctx, subscription.ListOpts{Customer: customer})
}

// Strikes returns the consecutive failed billings of a subscription.
func (e *Engine) Strikes(ctx context.Context, subID id.SubscriptionID) (int, error) {
	if _, err := e.store.GetSubscription(ctx, subID); err != nil {
		return 0, err
	}
	return e.strikes.Strikes(ctx, subID)
}

// GetPayments returns the payment history matching opts.
func (e *Engine) GetPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	return e.store.ListPayments(ctx, opts)
}
