package audithook

// Action constants for audit events.
const (
	// Plan actions
	ActionPlanCreated = "plan.created"
	ActionPlanRemoved = "plan.removed"

	// Subscription actions
	ActionSubscriptionCreated = "subscription.created"
	ActionSubscriptionRemoved = "subscription.removed"

	// Payment actions
	ActionPaymentTransferred = "payment.transferred"
	ActionPaymentFailed      = "payment.failed"

	// Fee vault actions
	ActionServiceFeeDeposited = "fee.deposited"
	ActionServiceFeeWithdrawn = "fee.withdrawn"
	ActionRewardPaid          = "reward.paid"

	// Execution actions
	ActionExecutionCompleted = "execution.completed"
)

// Resource constants for audit events.
const (
	ResourcePlan         = "plan"
	ResourceSubscription = "subscription"
	ResourcePayment      = "payment"
	ResourceFeeBalance   = "fee_balance"
	ResourceExecution    = "execution"
)

// Category constants for audit events.
const (
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryTreasury     = "treasury"
	CategoryExecution    = "execution"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
