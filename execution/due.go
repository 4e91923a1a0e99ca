package execution

import (
	"time"

	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/subscription"
)

// Skip reasons reported on OutcomeSkipped.
const (
	ReasonInactive      = "inactive"
	ReasonBilledInCycle = "already billed this period"
	ReasonInTrial       = "in trial"
	ReasonFinished      = "billing limit reached"
)

// SkipReason returns why sub must not be charged at now under p, or the
// empty string when a charge is due.
//
// A removed plan does not stop billing; only the subscription's own state,
// the period, the trial and the billing limit are consulted.
func SkipReason(p *plan.Plan, sub *subscription.Subscription, now time.Time) string {
	switch {
	case !sub.Active:
		return ReasonInactive
	case limitReached(p, sub):
		return ReasonFinished
	case now.Before(sub.CreatedAt.Add(p.TrialPeriod)):
		return ReasonInTrial
	case sub.Billed() && now.Sub(sub.UpdatedAt) < p.Period:
		return ReasonBilledInCycle
	}
	return ""
}

// Due reports whether sub should be charged at now.
func Due(p *plan.Plan, sub *subscription.Subscription, now time.Time) bool {
	return SkipReason(p, sub, now) == ""
}

func limitReached(p *plan.Plan, sub *subscription.Subscription) bool {
	limit := p.BillingLimit()
	return limit > 0 && sub.BillingCount >= limit
}
