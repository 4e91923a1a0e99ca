package bpay

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/types"
)

// ──────────────────────────────────────────────────
// Plan Registry
// ──────────────────────────────────────────────────

// PlanParams describes a plan to create. Period zero makes the plan a
// one-off charge; MaxBillings zero means unlimited.
type PlanParams struct {
	Name        string
	Tokens      []types.Address
	Price       types.Amount
	Period      time.Duration
	TrialPeriod time.Duration
	MaxBillings uint64
}

// Validate checks the parameters and returns a ValidationError on the first
// violated rule.
func (p PlanParams) Validate() error {
	if !p.Price.IsPositive() {
		return ValidationError{Field: "price", Message: "must be greater than zero"}
	}
	if len(p.Tokens) == 0 {
		return ValidationError{Field: "tokens", Message: "at least one token is required"}
	}
	seen := make(map[types.Address]struct{}, len(p.Tokens))
	for _, t := range p.Tokens {
		if t.IsZero() {
			return ValidationError{Field: "tokens", Message: "empty token address"}
		}
		if _, dup := seen[t]; dup {
			return ValidationError{Field: "tokens", Message: "duplicate token " + t.String()}
		}
		seen[t] = struct{}{}
	}
	if p.Period < 0 {
		return ValidationError{Field: "period", Message: "must not be negative"}
	}
	if p.TrialPeriod < 0 {
		return ValidationError{Field: "trial_period", Message: "must not be negative"}
	}
	return nil
}

// CreatePlan registers a new plan owned by merchant.
func (e *Engine) CreatePlan(ctx context.Context, merchant types.Address, params PlanParams) (*plan.Plan, error) {
	if merchant.IsZero() {
		return nil, ValidationError{Field: "merchant", Message: "is required"}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	planID, err := e.store.NextPlanID(ctx)
	if err != nil {
		return nil, fmt.Errorf("bpay: allocate plan id: %w", err)
	}

	p := &plan.Plan{
		Entity:      types.NewEntity(e.clock()),
		ID:          planID,
		Merchant:    merchant,
		Name:        params.Name,
		Tokens:      append([]types.Address(nil), params.Tokens...),
		Price:       params.Price,
		Period:      params.Period,
		TrialPeriod: params.TrialPeriod,
		MaxBillings: params.MaxBillings,
		Status:      plan.StatusActive,
	}

	if err := e.store.CreatePlan(ctx, p); err != nil {
		return nil, fmt.Errorf("bpay: create plan: %w", err)
	}

	e.logger.Info("plan created",
		"plan_id", p.ID,
		"merchant", merchant,
		"price", p.Price.String(),
		"period", p.Period,
	)
	e.plugins.EmitPlanCreated(ctx, &event.PlanCreated{Plan: p})
	return p, nil
}

// RemovePlan soft deletes a plan. Existing subscriptions stay valid and keep
// billing; the plan only stops accepting new subscribers.
func (e *Engine) RemovePlan(ctx context.Context, merchant types.Address, planID id.PlanID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if p.Merchant != merchant {
		return fmt.Errorf("%w: plan %s", ErrNotPlanOwner, planID)
	}
	if p.IsRemoved() {
		return fmt.Errorf("%w: plan %s", ErrPlanRemoved, planID)
	}

	at := e.clock()
	if err := e.store.RemovePlan(ctx, planID, at); err != nil {
		return fmt.Errorf("bpay: remove plan: %w", err)
	}

	e.logger.Info("plan removed", "plan_id", planID, "merchant", merchant)
	e.plugins.EmitPlanRemoved(ctx, &event.PlanRemoved{PlanID: planID, Merchant: merchant, At: at})
	return nil
}

// GetPlanByID returns a plan, including removed ones.
func (e *Engine) GetPlanByID(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return e.store.GetPlan(ctx, planID)
}

// GetPlans returns every plan in creation order.
func (e *Engine) GetPlans(ctx context.Context) ([]*plan.Plan, error) {
	return e.store.ListPlans(ctx, plan.ListOpts{})
}

// GetMerchantPlans returns the plans owned by merchant in creation order.
func (e *Engine) GetMerchantPlans(ctx context.Context, merchant types.Address) ([]*plan.Plan, error) {
	return e.store.ListPlans(ctx, plan.ListOpts{Merchant: merchant})
}
