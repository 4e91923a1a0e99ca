// Package payment records every successful subscription charge, giving
// merchants and customers a billing history independent of subscription state.
package payment

import (
	"time"

	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/types"
)

// Payment is one settled transfer from a customer to a merchant.
type Payment struct {
	ID             id.PaymentID      `json:"id"`
	ExecutionID    id.ExecutionID    `json:"execution_id"`
	SubscriptionID id.SubscriptionID `json:"subscription_id"`
	PlanID         id.PlanID         `json:"plan_id"`
	Merchant       types.Address     `json:"merchant"`
	Customer       types.Address     `json:"customer"`
	Token          types.Address     `json:"token"`
	Amount         types.Amount      `json:"amount"`
	Executor       types.Address     `json:"executor"`
	PaidAt         time.Time         `json:"paid_at"`
}
