// Package memory provides an in-memory store for tests, the simulator and
// single-process deployments. Each Store owns its own id sequences.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/fee"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/store"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type balanceKey struct {
	kind  fee.Kind
	owner types.Address
}

type Store struct {
	mu     sync.RWMutex
	closed bool

	planSeq id.Sequence
	subSeq  id.Sequence

	// Plans and subscriptions keep insertion order alongside the index.
	plans     map[id.PlanID]*plan.Plan
	planOrder []id.PlanID

	subscriptions map[id.SubscriptionID]*subscription.Subscription
	subOrder      []id.SubscriptionID

	strikes  map[id.SubscriptionID]int
	balances map[balanceKey]fee.Account
	payments []*payment.Payment
}

func New() *Store {
	return &Store{
		plans:         make(map[id.PlanID]*plan.Plan),
		subscriptions: make(map[id.SubscriptionID]*subscription.Subscription),
		strikes:       make(map[id.SubscriptionID]int),
		balances:      make(map[balanceKey]fee.Account),
	}
}

// ──────────────────────────────────────────────────
// Plan Store implementation
// ──────────────────────────────────────────────────

func (s *Store) NextPlanID(_ context.Context) (id.PlanID, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return id.PlanID(s.planSeq.Next()), nil
}

func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return bpay.ErrStoreClosed
	}
	if _, exists := s.plans[p.ID]; exists {
		return fmt.Errorf("%w: plan %s", bpay.ErrAlreadyExists, p.ID)
	}
	s.plans[p.ID] = clonePlan(p)
	s.planOrder = append(s.planOrder, p.ID)
	return nil
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID]; ok {
		return clonePlan(p), nil
	}
	return nil, bpay.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*plan.Plan, 0)
	for _, pid := range s.planOrder {
		p := s.plans[pid]
		if opts.Merchant != "" && p.Merchant != opts.Merchant {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		result = append(result, clonePlan(p))
	}

	start, end := store.Page(len(result), opts.Offset, opts.Limit)
	return result[start:end], nil
}

func (s *Store) RemovePlan(_ context.Context, planID id.PlanID, removedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[planID]
	if !ok {
		return bpay.ErrPlanNotFound
	}
	at := removedAt.UTC()
	p.Status = plan.StatusRemoved
	p.RemovedAt = &at
	p.Touch(at)
	return nil
}

// ──────────────────────────────────────────────────
// Subscription Store implementation
// ──────────────────────────────────────────────────

func (s *Store) NextSubscriptionID(_ context.Context) (id.SubscriptionID, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	return id.SubscriptionID(s.subSeq.Next()), nil
}

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return bpay.ErrStoreClosed
	}
	if _, exists := s.subscriptions[sub.ID]; exists {
		return fmt.Errorf("%w: subscription %s", bpay.ErrAlreadyExists, sub.ID)
	}
	s.subscriptions[sub.ID] = cloneSubscription(sub)
	s.subOrder = append(s.subOrder, sub.ID)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, bpay.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sid := range s.subOrder {
		sub := s.subscriptions[sid]
		if opts.PlanID != 0 && sub.PlanID != opts.PlanID {
			continue
		}
		if opts.Customer != "" && sub.Customer != opts.Customer {
			continue
		}
		if opts.ActiveOnly && !sub.Active {
			continue
		}
		result = append(result, cloneSubscription(sub))
	}

	start, end := store.Page(len(result), opts.Offset, opts.Limit)
	return result[start:end], nil
}

func (s *Store) MarkBilled(_ context.Context, subID id.SubscriptionID, count uint64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID]
	if !ok {
		return false, bpay.ErrSubscriptionNotFound
	}
	if !sub.Active || sub.BillingCount != count {
		return false, nil
	}
	sub.UpdatedAt = at.UTC()
	sub.BillingCount++
	return true, nil
}

func (s *Store) UnmarkBilled(_ context.Context, subID id.SubscriptionID, count uint64, prevAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID]
	if !ok {
		return bpay.ErrSubscriptionNotFound
	}
	if count == 0 || sub.BillingCount != count {
		return nil
	}
	sub.UpdatedAt = prevAt.UTC()
	if prevAt.IsZero() {
		sub.UpdatedAt = time.Time{}
	}
	sub.BillingCount--
	return nil
}

func (s *Store) Deactivate(_ context.Context, subID id.SubscriptionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID]
	if !ok {
		return bpay.ErrSubscriptionNotFound
	}
	ended := at.UTC()
	sub.Active = false
	sub.EndedAt = &ended
	return nil
}

// ──────────────────────────────────────────────────
// Strike Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetStrikes(_ context.Context, subID id.SubscriptionID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strikes[subID], nil
}

func (s *Store) SetStrikes(_ context.Context, subID id.SubscriptionID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return bpay.ErrStoreClosed
	}
	s.strikes[subID] = count
	return nil
}

// ──────────────────────────────────────────────────
// Fee Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetBalance(_ context.Context, kind fee.Kind, owner types.Address) (types.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[balanceKey{kind, owner}].Balance, nil
}

func (s *Store) Credit(_ context.Context, kind fee.Kind, owner types.Address, amount types.Amount) (types.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.Zero(), bpay.ErrStoreClosed
	}
	key := balanceKey{kind, owner}
	acct := s.balances[key]
	acct.Kind, acct.Owner = kind, owner
	acct.Balance = acct.Balance.Add(amount)
	acct.UpdatedAt = time.Now().UTC()
	s.balances[key] = acct
	return acct.Balance, nil
}

func (s *Store) Debit(_ context.Context, kind fee.Kind, owner types.Address, amount types.Amount) (types.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.Zero(), bpay.ErrStoreClosed
	}
	key := balanceKey{kind, owner}
	acct := s.balances[key]
	if acct.Balance.LessThan(amount) {
		return acct.Balance, bpay.ErrInsufficientServiceFee
	}
	acct.Kind, acct.Owner = kind, owner
	acct.Balance = acct.Balance.Sub(amount)
	acct.UpdatedAt = time.Now().UTC()
	s.balances[key] = acct
	return acct.Balance, nil
}

// ──────────────────────────────────────────────────
// Payment Store implementation
// ──────────────────────────────────────────────────

func (s *Store) RecordPayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return bpay.ErrStoreClosed
	}
	cp := *p
	s.payments = append(s.payments, &cp)
	return nil
}

func (s *Store) ListPayments(_ context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if opts.SubscriptionID != 0 && p.SubscriptionID != opts.SubscriptionID {
			continue
		}
		if opts.Merchant != "" && p.Merchant != opts.Merchant {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].PaidAt.Before(result[j].PaidAt)
	})

	start, end := store.Page(len(result), opts.Offset, opts.Limit)
	return result[start:end], nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error { return s.checkOpen() }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return bpay.ErrStoreClosed
	}
	return nil
}

func clonePlan(p *plan.Plan) *plan.Plan {
	cp := *p
	cp.Tokens = append([]types.Address(nil), p.Tokens...)
	if p.RemovedAt != nil {
		at := *p.RemovedAt
		cp.RemovedAt = &at
	}
	return &cp
}

func cloneSubscription(sub *subscription.Subscription) *subscription.Subscription {
	cp := *sub
	if sub.EndedAt != nil {
		at := *sub.EndedAt
		cp.EndedAt = &at
	}
	return &cp
}
