package execution

import "github.com/xraph/bpay/types"

// Default reward policy: each successful billing is reimbursed at
// DefaultCostPerBilling native units plus a one percent markup.
const (
	DefaultCostPerBilling uint64 = 100_000_000_000_000
	DefaultMarkupPercent  uint64 = 101
)

// RewardPolicy computes the executor reward for a run.
//
//	reward = CostPerBilling × successful × MarkupPercent / 100
type RewardPolicy struct {
	CostPerBilling types.Amount `json:"cost_per_billing"`
	MarkupPercent  uint64       `json:"markup_percent"`
}

// DefaultRewardPolicy returns the policy used when none is configured.
func DefaultRewardPolicy() RewardPolicy {
	return RewardPolicy{
		CostPerBilling: types.Units(DefaultCostPerBilling),
		MarkupPercent:  DefaultMarkupPercent,
	}
}

// Reward returns the amount owed for successful billings.
func (p RewardPolicy) Reward(successful int) types.Amount {
	if successful <= 0 {
		return types.Zero()
	}
	return p.CostPerBilling.Mul(uint64(successful)).MulDiv(p.MarkupPercent, 100)
}
