// Package fee models the native-currency balances that fund executor rewards.
package fee

import (
	"time"

	"github.com/xraph/bpay/types"
)

// Kind distinguishes the two balance books kept by the vault.
type Kind string

const (
	// KindServiceFee is a merchant's prepaid balance that pays executors.
	KindServiceFee Kind = "service_fee"
	// KindReward is an executor's accumulated, already-earned reward.
	KindReward Kind = "reward"
)

// Account is one balance in one book.
type Account struct {
	Kind      Kind          `json:"kind"`
	Owner     types.Address `json:"owner"`
	Balance   types.Amount  `json:"balance"`
	UpdatedAt time.Time     `json:"updated_at"`
}
