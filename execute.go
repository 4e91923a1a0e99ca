package bpay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/bpay/event"
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/token"
	"github.com/xraph/bpay/types"
)

// ──────────────────────────────────────────────────
// Execution Engine
// ──────────────────────────────────────────────────

// Execute charges every due subscription in batches, where batches[i] holds
// subscriptions of planIDs[i], and pays caller a reward out of merchant's
// fee balance.
//
// Batch preconditions are checked before anything is written: a violation
// returns an error and leaves all state untouched. Token transfer failures
// are not errors; they become strikes in the report. A store failure while
// processing pairs stops the run and is returned together with the partial
// report.
func (e *Engine) Execute(
	ctx context.Context,
	merchant types.Address,
	planIDs []id.PlanID,
	batches [][]id.SubscriptionID,
	caller types.Address,
) (*execution.Report, error) {
	if len(planIDs) != len(batches) {
		return nil, fmt.Errorf("%w: %d plans, %d batches", ErrBatchShapeMismatch, len(planIDs), len(batches))
	}
	if merchant.IsZero() {
		return nil, fmt.Errorf("%w: merchant is required", ErrInvalidInput)
	}
	if caller.IsZero() {
		return nil, fmt.Errorf("%w: caller is required", ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	plans, err := e.checkBatches(ctx, merchant, planIDs, batches)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	now := e.clock()
	report := &execution.Report{
		ID:        id.NewExecutionID(),
		Merchant:  merchant,
		Caller:    caller,
		Outcomes:  make([]execution.Outcome, 0, pairCount(batches)),
		StartedAt: now,
	}

	// A store failure stops the run, but charges already made are still
	// reported and rewarded.
	var billErr error
pairs:
	for i, subIDs := range batches {
		p := plans[i]
		for _, subID := range subIDs {
			outcome, err := e.bill(ctx, report, p, subID, now)
			if outcome.Kind != "" {
				report.Outcomes = append(report.Outcomes, outcome)
				if outcome.Kind == execution.OutcomeTransferred {
					report.Successful++
				}
			}
			if err != nil {
				e.logger.Error("execution aborted",
					"execution_id", report.ID,
					"merchant", merchant,
					"subscription_id", subID,
					"error", err,
				)
				billErr = fmt.Errorf("bpay: execute %s: subscription %s: %w", report.ID, subID, err)
				break pairs
			}
		}
	}

	report.RewardRequested = e.reward.Reward(report.Successful)
	paid, err := e.payReward(context.WithoutCancel(ctx), report.ID, merchant, caller, report.RewardRequested)
	report.Elapsed = time.Since(start)
	if err != nil {
		return report, errors.Join(billErr, fmt.Errorf("bpay: execute %s: %w", report.ID, err))
	}
	report.RewardPaid = paid
	if billErr != nil {
		return report, billErr
	}

	e.logger.Info("execution completed",
		"execution_id", report.ID,
		"merchant", merchant,
		"caller", caller,
		"pairs", len(report.Outcomes),
		"transferred", report.Successful,
		"failed", report.Count(execution.OutcomeFailed),
		"removed", report.Count(execution.OutcomeRemoved),
		"skipped", report.Count(execution.OutcomeSkipped),
		"reward_paid", paid.String(),
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)
	e.plugins.EmitExecutionCompleted(ctx, &event.ExecutionCompleted{Report: report})

	return report, nil
}

// checkBatches validates ownership, membership and token availability for
// every pair and returns the plans in batch order.
func (e *Engine) checkBatches(
	ctx context.Context,
	merchant types.Address,
	planIDs []id.PlanID,
	batches [][]id.SubscriptionID,
) ([]*plan.Plan, error) {
	plans := make([]*plan.Plan, len(planIDs))
	for i, planID := range planIDs {
		p, err := e.store.GetPlan(ctx, planID)
		if err != nil {
			return nil, fmt.Errorf("bpay: plan %s: %w", planID, err)
		}
		if p.Merchant != merchant {
			return nil, fmt.Errorf("%w: plan %s", ErrNotPlanOwner, planID)
		}
		plans[i] = p

		for _, subID := range batches[i] {
			sub, err := e.store.GetSubscription(ctx, subID)
			if err != nil {
				return nil, fmt.Errorf("bpay: subscription %s: %w", subID, err)
			}
			if sub.PlanID != planID {
				return nil, fmt.Errorf("%w: subscription %s belongs to plan %s, not %s",
					ErrSubscriptionPlanMismatch, subID, sub.PlanID, planID)
			}
			if _, err := e.tokens.Lookup(sub.Token); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrNoTokenLedger, sub.Token)
			}
		}
	}
	return plans, nil
}

// bill processes one (plan, subscription) pair. The subscription is read
// again so repeated ids within one run observe earlier charges.
//
// The billing is claimed in the store before any tokens move: of several
// engines racing on one subscription only the one whose claim lands
// transfers, and a charge is never left without its billing record. The
// claim is rolled back when the transfer fails.
func (e *Engine) bill(
	ctx context.Context,
	report *execution.Report,
	p *plan.Plan,
	subID id.SubscriptionID,
	now time.Time,
) (execution.Outcome, error) {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return execution.Outcome{}, err
	}

	if reason := execution.SkipReason(p, sub, now); reason != "" {
		return e.skip(ctx, p, sub, reason)
	}

	ledger, err := e.tokens.Lookup(sub.Token)
	if err != nil {
		return execution.Outcome{}, err
	}

	claimed, err := e.store.MarkBilled(ctx, sub.ID, sub.BillingCount, now)
	if err != nil {
		return execution.Outcome{}, err
	}
	if !claimed {
		return e.skip(ctx, p, sub, execution.ReasonBilledInCycle)
	}

	transferErr := ledger.TransferFrom(ctx, sub.Customer, e.address, report.Merchant, p.Price)
	if transferErr != nil {
		// The ledger is atomic: a failed transfer moved nothing.
		if err := e.store.UnmarkBilled(context.WithoutCancel(ctx), sub.ID, sub.BillingCount+1, sub.UpdatedAt); err != nil {
			return execution.Outcome{}, fmt.Errorf("release billing claim: %w", err)
		}
		if ctx.Err() != nil {
			// A cancelled context says nothing about the customer's funds.
			return execution.Outcome{}, ctx.Err()
		}
		return e.fail(ctx, report, p, sub, transferErr, now)
	}
	return e.settle(ctx, report, p, sub, now)
}

func (e *Engine) skip(
	ctx context.Context,
	p *plan.Plan,
	sub *subscription.Subscription,
	reason string,
) (execution.Outcome, error) {
	strikes, err := e.strikes.Strikes(ctx, sub.ID)
	if err != nil {
		return execution.Outcome{}, err
	}
	e.logger.Debug("billing skipped", "subscription_id", sub.ID, "reason", reason)
	return execution.Outcome{
		PlanID:         p.ID,
		SubscriptionID: sub.ID,
		Kind:           execution.OutcomeSkipped,
		Token:          sub.Token,
		Strikes:        strikes,
		Reason:         reason,
	}, nil
}

// settle does the bookkeeping of a completed transfer. The returned outcome
// is transferred even when the bookkeeping fails, since the tokens moved.
func (e *Engine) settle(
	ctx context.Context,
	report *execution.Report,
	p *plan.Plan,
	sub *subscription.Subscription,
	now time.Time,
) (execution.Outcome, error) {
	outcome := execution.Outcome{
		PlanID:         p.ID,
		SubscriptionID: sub.ID,
		Kind:           execution.OutcomeTransferred,
		Amount:         p.Price,
		Token:          sub.Token,
	}

	if err := e.strikes.RecordSuccess(ctx, sub.ID); err != nil {
		return outcome, err
	}

	pay := &payment.Payment{
		ID:             id.NewPaymentID(),
		ExecutionID:    report.ID,
		SubscriptionID: sub.ID,
		PlanID:         p.ID,
		Merchant:       report.Merchant,
		Customer:       sub.Customer,
		Token:          sub.Token,
		Amount:         p.Price,
		Executor:       report.Caller,
		PaidAt:         now,
	}
	if err := e.store.RecordPayment(ctx, pay); err != nil {
		return outcome, err
	}

	e.plugins.EmitPaymentTransferred(ctx, &event.PaymentTransferred{
		ExecutionID:    report.ID,
		SubscriptionID: sub.ID,
		PlanID:         p.ID,
		Amount:         p.Price,
		Token:          sub.Token,
		Payment:        pay,
	})

	return outcome, nil
}

func (e *Engine) fail(
	ctx context.Context,
	report *execution.Report,
	p *plan.Plan,
	sub *subscription.Subscription,
	cause error,
	now time.Time,
) (execution.Outcome, error) {
	count, remove, err := e.strikes.RecordFailure(ctx, sub.ID)
	if err != nil {
		return execution.Outcome{}, err
	}

	outcome := execution.Outcome{
		PlanID:         p.ID,
		SubscriptionID: sub.ID,
		Kind:           execution.OutcomeFailed,
		Amount:         p.Price,
		Token:          sub.Token,
		Strikes:        count,
		Reason:         failureReason(cause),
	}

	if !remove {
		e.logger.Warn("billing failed",
			"subscription_id", sub.ID,
			"strikes", count,
			"reason", outcome.Reason,
		)
		e.plugins.EmitPaymentFailed(ctx, &event.PaymentFailed{
			ExecutionID:    report.ID,
			SubscriptionID: sub.ID,
			PlanID:         p.ID,
			Strikes:        count,
			Reason:         outcome.Reason,
		})
		return outcome, nil
	}

	if err := e.store.Deactivate(ctx, sub.ID, now); err != nil {
		return execution.Outcome{}, err
	}
	outcome.Kind = execution.OutcomeRemoved

	e.logger.Warn("subscription removed",
		"subscription_id", sub.ID,
		"strikes", count,
		"reason", outcome.Reason,
	)
	e.plugins.EmitSubscriptionRemoved(ctx, &event.SubscriptionRemoved{
		ExecutionID:    report.ID,
		SubscriptionID: sub.ID,
		PlanID:         p.ID,
		Strikes:        count,
		At:             now,
	})
	return outcome, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrInsufficientAllowance):
		return "insufficient allowance"
	case errors.Is(err, token.ErrInsufficientBalance):
		return "insufficient balance"
	default:
		return err.Error()
	}
}

// DueBatches returns, per plan of merchant, the active subscriptions that
// would be charged if Execute ran now. Plans without due subscriptions are
// omitted.
func (e *Engine) DueBatches(ctx context.Context, merchant types.Address) ([]execution.Batch, error) {
	plans, err := e.store.ListPlans(ctx, plan.ListOpts{Merchant: merchant})
	if err != nil {
		return nil, fmt.Errorf("bpay: list plans: %w", err)
	}

	now := e.clock()
	var batches []execution.Batch
	for _, p := range plans {
		subs, err := e.store.ListSubscriptions(ctx, subscription.ListOpts{PlanID: p.ID, ActiveOnly: true})
		if err != nil {
			return nil, fmt.Errorf("bpay: list subscriptions of plan %s: %w", p.ID, err)
		}
		var due []id.SubscriptionID
		for _, sub := range subs {
			if execution.Due(p, sub, now) {
				due = append(due, sub.ID)
			}
		}
		if len(due) > 0 {
			batches = append(batches, execution.Batch{PlanID: p.ID, SubscriptionIDs: due})
		}
	}
	return batches, nil
}

// ExecuteBatches is Execute for the keeper-friendly Batch shape.
func (e *Engine) ExecuteBatches(ctx context.Context, merchant types.Address, batches []execution.Batch, caller types.Address) (*execution.Report, error) {
	planIDs, subIDs := execution.Split(batches)
	return e.Execute(ctx, merchant, planIDs, subIDs, caller)
}

func pairCount(batches [][]id.SubscriptionID) int {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	return n
}
