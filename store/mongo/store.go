package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/fee"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/plan"
	bpaystore "github.com/xraph/bpay/store"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/types"
)

// Collection name constants.
const (
	colCounters      = "bpay_counters"
	colPlans         = "bpay_plans"
	colSubscriptions = "bpay_subscriptions"
	colBalances      = "bpay_balances"
	colPayments      = "bpay_payments"
)

// compile-time interface check
var _ bpaystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all bpay collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("bpay/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Counters ====================

func (s *Store) next(ctx context.Context, name string) (uint64, error) {
	var c counterModel
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("bpay/mongo: counter %s: %w", name, err)
	}
	return uint64(c.Value), nil
}

// ==================== Plan Store ====================

func (s *Store) NextPlanID(ctx context.Context) (id.PlanID, error) {
	v, err := s.next(ctx, colPlans)
	return id.PlanID(v), err
}

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	if _, err := s.mdb.NewInsert(toPlanModel(p)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: plan %s", bpay.ErrAlreadyExists, p.ID)
		}
		return fmt.Errorf("bpay/mongo: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(planID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bpay.ErrPlanNotFound
		}
		return nil, fmt.Errorf("bpay/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel

	filter := bson.M{}
	if !opts.Merchant.IsZero() {
		filter["merchant"] = opts.Merchant.String()
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bpay/mongo: list plans: %w", err)
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) RemovePlan(ctx context.Context, planID id.PlanID, removedAt time.Time) error {
	t := removedAt.UTC()
	res, err := s.mdb.NewUpdate((*planModel)(nil)).
		Filter(bson.M{"_id": int64(planID)}).
		Set("status", string(plan.StatusRemoved)).
		Set("removed_at", t).
		Set("updated_at", t).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bpay/mongo: remove plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return bpay.ErrPlanNotFound
	}
	return nil
}

// ==================== Subscription Store ====================

func (s *Store) NextSubscriptionID(ctx context.Context) (id.SubscriptionID, error) {
	v, err := s.next(ctx, colSubscriptions)
	return id.SubscriptionID(v), err
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if _, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: subscription %s", bpay.ErrAlreadyExists, sub.ID)
		}
		return fmt.Errorf("bpay/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(subID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, bpay.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("bpay/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m), nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if !opts.PlanID.IsZero() {
		filter["plan_id"] = int64(opts.PlanID)
	}
	if !opts.Customer.IsZero() {
		filter["customer"] = opts.Customer.String()
	}
	if opts.ActiveOnly {
		filter["active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bpay/mongo: list subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = fromSubscriptionModel(&models[i])
	}
	return result, nil
}

func (s *Store) MarkBilled(ctx context.Context, subID id.SubscriptionID, count uint64, at time.Time) (bool, error) {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{
			"_id":           int64(subID),
			"active":        true,
			"billing_count": int64(count),
		}).
		SetUpdate(bson.M{
			"$set": bson.M{"billed_at": at.UTC()},
			"$inc": bson.M{"billing_count": int64(1)},
		}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("bpay/mongo: mark billed: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetSubscription(ctx, subID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) UnmarkBilled(ctx context.Context, subID id.SubscriptionID, count uint64, prevAt time.Time) error {
	if count == 0 {
		return nil
	}
	update := bson.M{"$inc": bson.M{"billing_count": int64(-1)}}
	if prevAt.IsZero() {
		update["$unset"] = bson.M{"billed_at": ""}
	} else {
		update["$set"] = bson.M{"billed_at": prevAt.UTC()}
	}
	_, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": int64(subID), "billing_count": int64(count)}).
		SetUpdate(update).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bpay/mongo: unmark billed: %w", err)
	}
	return nil
}

func (s *Store) Deactivate(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": int64(subID)}).
		Set("active", false).
		Set("ended_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bpay/mongo: deactivate subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		return bpay.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Strike Store ====================

func (s *Store) GetStrikes(ctx context.Context, subID id.SubscriptionID) (int, error) {
	var m strikeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": int64(subID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("bpay/mongo: get strikes: %w", err)
	}
	return m.Count, nil
}

func (s *Store) SetStrikes(ctx context.Context, subID id.SubscriptionID, count int) error {
	_, err := s.mdb.NewUpdate((*strikeModel)(nil)).
		Filter(bson.M{"_id": int64(subID)}).
		SetUpdate(bson.M{"$set": bson.M{
			"count":      count,
			"updated_at": now(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bpay/mongo: set strikes: %w", err)
	}
	return nil
}

// ==================== Fee Store ====================

func (s *Store) GetBalance(ctx context.Context, kind fee.Kind, owner types.Address) (types.Amount, error) {
	raw, err := s.balance(ctx, kind, owner)
	if err != nil {
		return types.Zero(), err
	}
	return types.ParseAmount(raw)
}

func (s *Store) Credit(ctx context.Context, kind fee.Kind, owner types.Address, amount types.Amount) (types.Amount, error) {
	return s.adjust(ctx, kind, owner, func(cur types.Amount) (types.Amount, error) {
		return cur.Add(amount), nil
	})
}

func (s *Store) Debit(ctx context.Context, kind fee.Kind, owner types.Address, amount types.Amount) (types.Amount, error) {
	return s.adjust(ctx, kind, owner, func(cur types.Amount) (types.Amount, error) {
		if cur.LessThan(amount) {
			return cur, bpay.ErrInsufficientServiceFee
		}
		return cur.Sub(amount), nil
	})
}

func (s *Store) balance(ctx context.Context, kind fee.Kind, owner types.Address) (string, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": balanceID(string(kind), owner.String())}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return "0", nil
		}
		return "", fmt.Errorf("bpay/mongo: get balance: %w", err)
	}
	return m.Balance, nil
}

// adjust applies fn with a compare-and-swap on the stored decimal string.
func (s *Store) adjust(
	ctx context.Context,
	kind fee.Kind,
	owner types.Address,
	fn func(types.Amount) (types.Amount, error),
) (types.Amount, error) {
	key := balanceID(string(kind), owner.String())

	_, err := s.mdb.NewUpdate((*balanceModel)(nil)).
		Filter(bson.M{"_id": key}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"kind":       string(kind),
			"owner":      owner.String(),
			"balance":    "0",
			"updated_at": now(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return types.Zero(), fmt.Errorf("bpay/mongo: seed balance: %w", err)
	}

	bal, err := bpaystore.AdjustBalance(ctx, bpaystore.BalanceRow{
		Load: func(ctx context.Context) (string, error) {
			return s.balance(ctx, kind, owner)
		},
		Swap: func(ctx context.Context, raw string, next types.Amount) (bool, error) {
			res, err := s.mdb.NewUpdate((*balanceModel)(nil)).
				Filter(bson.M{"_id": key, "balance": raw}).
				Set("balance", next.String()).
				Set("updated_at", now()).
				Exec(ctx)
			if err != nil {
				return false, fmt.Errorf("bpay/mongo: update balance: %w", err)
			}
			return res.MatchedCount() == 1, nil
		},
	}, fn)
	if errors.Is(err, bpaystore.ErrBalanceContention) {
		return bal, fmt.Errorf("bpay/mongo: balance %s: %w", key, err)
	}
	return bal, err
}

// ==================== Payment Store ====================

func (s *Store) RecordPayment(ctx context.Context, p *payment.Payment) error {
	if _, err := s.mdb.NewInsert(toPaymentModel(p)).Exec(ctx); err != nil {
		return fmt.Errorf("bpay/mongo: record payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel

	filter := bson.M{}
	if !opts.SubscriptionID.IsZero() {
		filter["subscription_id"] = int64(opts.SubscriptionID)
	}
	if !opts.Merchant.IsZero() {
		filter["merchant"] = opts.Merchant.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "paid_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("bpay/mongo: list payments: %w", err)
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all bpay collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPlans: {
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "plan_id", Value: 1}, {Key: "active", Value: 1}}},
			{Keys: bson.D{{Key: "customer", Value: 1}}},
		},
		colBalances: {
			{
				Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "owner", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colPayments: {
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "paid_at", Value: 1}}},
			{Keys: bson.D{{Key: "merchant", Value: 1}, {Key: "paid_at", Value: 1}}},
		},
	}
}
