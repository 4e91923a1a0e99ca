// Package execution holds the value types produced and consumed by a
// billing run: batches requested by a keeper, per-subscription outcomes,
// the run report, the due-ness rules and the executor reward policy.
package execution

import (
	"time"

	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/types"
)

// Batch is the list of subscriptions to charge under one plan.
type Batch struct {
	PlanID          id.PlanID           `json:"plan_id"`
	SubscriptionIDs []id.SubscriptionID `json:"subscription_ids"`
}

// Split returns planIDs and batches in the parallel-array shape Execute takes.
func Split(batches []Batch) ([]id.PlanID, [][]id.SubscriptionID) {
	planIDs := make([]id.PlanID, len(batches))
	subs := make([][]id.SubscriptionID, len(batches))
	for i, b := range batches {
		planIDs[i] = b.PlanID
		subs[i] = b.SubscriptionIDs
	}
	return planIDs, subs
}

// Size returns the total number of subscriptions across batches.
func Size(batches []Batch) int {
	n := 0
	for _, b := range batches {
		n += len(b.SubscriptionIDs)
	}
	return n
}

// Chunk splits batches so that no chunk holds more than size subscriptions.
// Plan order and subscription order are preserved. size <= 0 returns the
// input as a single chunk.
func Chunk(batches []Batch, size int) [][]Batch {
	if len(batches) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]Batch{batches}
	}

	var (
		chunks  [][]Batch
		current []Batch
		filled  int
	)
	for _, b := range batches {
		subs := b.SubscriptionIDs
		for len(subs) > 0 {
			room := size - filled
			take := min(room, len(subs))
			current = append(current, Batch{PlanID: b.PlanID, SubscriptionIDs: subs[:take]})
			filled += take
			subs = subs[take:]
			if filled == size {
				chunks = append(chunks, current)
				current, filled = nil, 0
			}
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// OutcomeKind classifies what happened to one subscription in a run.
type OutcomeKind string

const (
	OutcomeTransferred OutcomeKind = "transferred"
	OutcomeFailed      OutcomeKind = "failed"
	OutcomeRemoved     OutcomeKind = "removed"
	OutcomeSkipped     OutcomeKind = "skipped"
)

// Outcome is the result of processing one (plan, subscription) pair.
type Outcome struct {
	PlanID         id.PlanID         `json:"plan_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	Kind           OutcomeKind       `json:"kind"`
	Amount         types.Amount      `json:"amount"`
	Token          types.Address     `json:"token"`
	Strikes        int               `json:"strikes"`
	Reason         string            `json:"reason,omitempty"`
}

// Report summarizes one Execute call.
type Report struct {
	ID              id.ExecutionID `json:"id"`
	Merchant        types.Address  `json:"merchant"`
	Caller          types.Address  `json:"caller"`
	Outcomes        []Outcome      `json:"outcomes"`
	Successful      int            `json:"successful"`
	RewardRequested types.Amount   `json:"reward_requested"`
	RewardPaid      types.Amount   `json:"reward_paid"`
	StartedAt       time.Time      `json:"started_at"`
	Elapsed         time.Duration  `json:"elapsed"`
}

// Count returns the number of outcomes of the given kind.
func (r *Report) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Collected returns the total amount transferred to the merchant.
func (r *Report) Collected() types.Amount {
	var total types.Amount
	for _, o := range r.Outcomes {
		if o.Kind == OutcomeTransferred {
			total = total.Add(o.Amount)
		}
	}
	return total
}
