// Package event defines the payloads the engine emits to plugins as state
// changes happen.
package event

import (
	"time"

	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/types"
)

// Type names an event.
type Type string

const (
	TypePlanCreated         Type = "plan.created"
	TypePlanRemoved         Type = "plan.removed"
	TypeSubscribed          Type = "subscription.created"
	TypeSubscriptionRemoved Type = "subscription.removed"
	TypePaymentTransferred  Type = "payment.transferred"
	TypePaymentFailed       Type = "payment.failed"
	TypeServiceFeeDeposited Type = "fee.deposited"
	TypeServiceFeeWithdrawn Type = "fee.withdrawn"
	TypeRewardPaid          Type = "reward.paid"
	TypeExecutionCompleted  Type = "execution.completed"
)

// PlanCreated is emitted after a plan is stored.
type PlanCreated struct {
	Plan *plan.Plan
}

// PlanRemoved is emitted after a plan is soft deleted.
type PlanRemoved struct {
	PlanID   id.PlanID
	Merchant types.Address
	At       time.Time
}

// Subscribed is emitted after a customer subscribes.
type Subscribed struct {
	Subscription *subscription.Subscription
}

// PaymentTransferred is emitted for each successful charge.
type PaymentTransferred struct {
	ExecutionID    id.ExecutionID
	SubscriptionID id.SubscriptionID
	PlanID         id.PlanID
	Amount         types.Amount
	Token          types.Address
	Payment        *payment.Payment
}

// PaymentFailed is emitted when a charge fails below the strike threshold.
type PaymentFailed struct {
	ExecutionID    id.ExecutionID
	SubscriptionID id.SubscriptionID
	PlanID         id.PlanID
	Strikes        int
	Reason         string
}

// SubscriptionRemoved is emitted when a subscription is deactivated after
// reaching the strike threshold.
type SubscriptionRemoved struct {
	ExecutionID    id.ExecutionID
	SubscriptionID id.SubscriptionID
	PlanID         id.PlanID
	Strikes        int
	At             time.Time
}

// ServiceFeeDeposited is emitted after a merchant tops up the fee vault.
type ServiceFeeDeposited struct {
	Merchant types.Address
	Amount   types.Amount
	Balance  types.Amount
}

// ServiceFeeWithdrawn is emitted after a merchant reclaims fee balance.
type ServiceFeeWithdrawn struct {
	Merchant types.Address
	Amount   types.Amount
	Balance  types.Amount
}

// RewardPaid is emitted at the end of a run that owed the caller a reward.
// Paid may be less than Requested when the merchant's balance ran low.
type RewardPaid struct {
	ExecutionID id.ExecutionID
	Merchant    types.Address
	Executor    types.Address
	Requested   types.Amount
	Paid        types.Amount
}

// ExecutionCompleted is emitted once per successful Execute call.
type ExecutionCompleted struct {
	Report *execution.Report
}
