package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/plan"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/types"
)

// ==================== Counter models ====================

type counterModel struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// ==================== Plan models ====================

type planModel struct {
	grove.BaseModel `grove:"table:bpay_plans"`

	ID          int64      `grove:"id,pk"        bson:"_id"`
	Merchant    string     `grove:"merchant"     bson:"merchant"`
	Name        string     `grove:"name"         bson:"name"`
	Tokens      []string   `grove:"tokens"       bson:"tokens"`
	Price       string     `grove:"price"        bson:"price"`
	PeriodNs    int64      `grove:"period_ns"    bson:"period_ns"`
	TrialNs     int64      `grove:"trial_ns"     bson:"trial_ns"`
	MaxBillings int64      `grove:"max_billings" bson:"max_billings"`
	Status      string     `grove:"status"       bson:"status"`
	RemovedAt   *time.Time `grove:"removed_at"   bson:"removed_at,omitempty"`
	CreatedAt   time.Time  `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"   bson:"updated_at"`
}

func toPlanModel(p *plan.Plan) *planModel {
	tokens := make([]string, len(p.Tokens))
	for i, t := range p.Tokens {
		tokens[i] = t.String()
	}
	return &planModel{
		ID:          int64(p.ID),
		Merchant:    p.Merchant.String(),
		Name:        p.Name,
		Tokens:      tokens,
		Price:       p.Price.String(),
		PeriodNs:    int64(p.Period),
		TrialNs:     int64(p.TrialPeriod),
		MaxBillings: int64(p.MaxBillings),
		Status:      string(p.Status),
		RemovedAt:   p.RemovedAt,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromPlanModel(m *planModel) (*plan.Plan, error) {
	price, err := types.ParseAmount(m.Price)
	if err != nil {
		return nil, fmt.Errorf("bpay/mongo: plan %d price: %w", m.ID, err)
	}
	tokens := make([]types.Address, len(m.Tokens))
	for i, t := range m.Tokens {
		tokens[i] = types.Address(t)
	}
	return &plan.Plan{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          id.PlanID(m.ID),
		Merchant:    types.Address(m.Merchant),
		Name:        m.Name,
		Tokens:      tokens,
		Price:       price,
		Period:      time.Duration(m.PeriodNs),
		TrialPeriod: time.Duration(m.TrialNs),
		MaxBillings: uint64(m.MaxBillings),
		Status:      plan.Status(m.Status),
		RemovedAt:   m.RemovedAt,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:bpay_subscriptions"`

	ID           int64      `grove:"id,pk"         bson:"_id"`
	PlanID       int64      `grove:"plan_id"       bson:"plan_id"`
	Customer     string     `grove:"customer"      bson:"customer"`
	Token        string     `grove:"token"         bson:"token"`
	Active       bool       `grove:"active"        bson:"active"`
	BillingCount int64      `grove:"billing_count" bson:"billing_count"`
	CreatedAt    time.Time  `grove:"created_at"    bson:"created_at"`
	BilledAt     *time.Time `grove:"billed_at"     bson:"billed_at,omitempty"`
	EndedAt      *time.Time `grove:"ended_at"      bson:"ended_at,omitempty"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	m := &subscriptionModel{
		ID:           int64(s.ID),
		PlanID:       int64(s.PlanID),
		Customer:     s.Customer.String(),
		Token:        s.Token.String(),
		Active:       s.Active,
		BillingCount: int64(s.BillingCount),
		CreatedAt:    s.CreatedAt,
		EndedAt:      s.EndedAt,
	}
	if s.Billed() {
		t := s.UpdatedAt
		m.BilledAt = &t
	}
	return m
}

func fromSubscriptionModel(m *subscriptionModel) *subscription.Subscription {
	s := &subscription.Subscription{
		ID:           id.SubscriptionID(m.ID),
		PlanID:       id.PlanID(m.PlanID),
		Customer:     types.Address(m.Customer),
		Token:        types.Address(m.Token),
		Active:       m.Active,
		BillingCount: uint64(m.BillingCount),
		CreatedAt:    m.CreatedAt.UTC(),
		EndedAt:      m.EndedAt,
	}
	if m.BilledAt != nil {
		s.UpdatedAt = m.BilledAt.UTC()
	}
	return s
}

// ==================== Strike models ====================

type strikeModel struct {
	grove.BaseModel `grove:"table:bpay_strikes"`

	SubscriptionID int64     `grove:"subscription_id,pk" bson:"_id"`
	Count          int       `grove:"count"              bson:"count"`
	UpdatedAt      time.Time `grove:"updated_at"         bson:"updated_at"`
}

// ==================== Fee balance models ====================

// balanceModel is keyed by "<kind>:<owner>".
type balanceModel struct {
	grove.BaseModel `grove:"table:bpay_balances"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	Kind      string    `grove:"kind"       bson:"kind"`
	Owner     string    `grove:"owner"      bson:"owner"`
	Balance   string    `grove:"balance"    bson:"balance"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func balanceID(kind, owner string) string { return kind + ":" + owner }

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:bpay_payments"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	ExecutionID    string    `grove:"execution_id"    bson:"execution_id"`
	SubscriptionID int64     `grove:"subscription_id" bson:"subscription_id"`
	PlanID         int64     `grove:"plan_id"         bson:"plan_id"`
	Merchant       string    `grove:"merchant"        bson:"merchant"`
	Customer       string    `grove:"customer"        bson:"customer"`
	Token          string    `grove:"token"           bson:"token"`
	Amount         string    `grove:"amount"          bson:"amount"`
	Executor       string    `grove:"executor"        bson:"executor"`
	PaidAt         time.Time `grove:"paid_at"         bson:"paid_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:             p.ID.String(),
		ExecutionID:    p.ExecutionID.String(),
		SubscriptionID: int64(p.SubscriptionID),
		PlanID:         int64(p.PlanID),
		Merchant:       p.Merchant.String(),
		Customer:       p.Customer.String(),
		Token:          p.Token.String(),
		Amount:         p.Amount.String(),
		Executor:       p.Executor.String(),
		PaidAt:         p.PaidAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	payID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	execID, err := id.ParseExecutionID(m.ExecutionID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("bpay/mongo: payment %s amount: %w", m.ID, err)
	}
	return &payment.Payment{
		ID:             payID,
		ExecutionID:    execID,
		SubscriptionID: id.SubscriptionID(m.SubscriptionID),
		PlanID:         id.PlanID(m.PlanID),
		Merchant:       types.Address(m.Merchant),
		Customer:       types.Address(m.Customer),
		Token:          types.Address(m.Token),
		Amount:         amount,
		Executor:       types.Address(m.Executor),
		PaidAt:         m.PaidAt.UTC(),
	}, nil
}
