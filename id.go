package bpay

import "github.com/xraph/bpay/id"

// ID is the TypeID used for executions and payments.
type ID = id.ID

// PlanID and SubscriptionID are per-store integer sequences.
type (
	PlanID         = id.PlanID
	SubscriptionID = id.SubscriptionID
)
