package payment

import (
	"context"

	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/types"
)

type Store interface {
	RecordPayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, opts ListOpts) ([]*Payment, error)
}

// ListOpts filters payment listings. Results are ordered by PaidAt ascending.
type ListOpts struct {
	SubscriptionID id.SubscriptionID
	Merchant       types.Address
	Limit          int
	Offset         int
}
