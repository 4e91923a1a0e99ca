package plan

import (
	"context"
	"time"

	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/types"
)

// Store persists plans. Implementations return bpay.ErrPlanNotFound for
// unknown ids.
type Store interface {
	NextPlanID(ctx context.Context) (id.PlanID, error)
	CreatePlan(ctx context.Context, p *Plan) error
	GetPlan(ctx context.Context, planID id.PlanID) (*Plan, error)
	ListPlans(ctx context.Context, opts ListOpts) ([]*Plan, error)
	RemovePlan(ctx context.Context, planID id.PlanID, removedAt time.Time) error
}

// ListOpts filters plan listings. Results are always in insertion (id) order.
type ListOpts struct {
	Merchant types.Address
	Status   Status
	Limit    int
	Offset   int
}
