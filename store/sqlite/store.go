package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/fee"
	"github.com/xraph/bpay/id"
	"github.com/xraph/bpay/payment"
	"github.com/xraph/bpay/plan"
	bpaystore "github.com/xraph/bpay/store"
	"github.com/xraph/bpay/subscription"
	"github.com/xraph/bpay/types"
)

// compile-time interface check
var _ bpaystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("bpay/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("bpay/sqlite: migration failed: %w", err)
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

// ==================== Sequences ====================

func (s *Store) next(ctx context.Context, name string) (uint64, error) {
	var v int64
	err := s.sdb.NewRaw(`
		UPDATE bpay_sequences SET value = value + 1 WHERE name = ? RETURNING value
	`, name).Scan(ctx, &v)
	if err != nil {
		return 0, fmt.Errorf("bpay/sqlite: sequence %s: %w", name, err)
	}
	return uint64(v), nil
}

// ==================== Plan Store ====================

func (s *Store) NextPlanID(ctx context.Context) (id.PlanID, error) {
	v, err := s.next(ctx, seqPlans)
	return id.PlanID(v), err
}

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.sdb.NewInsert(toPlanModel(p)).Exec(ctx)
	return err
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(planID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bpay.ErrPlanNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.sdb.NewSelect(&models)

	if !opts.Merchant.IsZero() {
		q = q.Where("merchant = ?", opts.Merchant.String())
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.sdb.NewUpdate((*planModel)(nil)).
		Set("status = ?", string(plan.StatusRemoved)).
		Set("removed_at = ?", t).
		Set("updated_at = ?", t).
		Where("id = ?", int64(planID)).
		Exec(ctx)
	return checkAffected(res, err, bpay.ErrPlanNotFound)
}

// ==================== Subscription Store ====================

func (s *Store) NextSubscriptionID(ctx context.Context) (id.SubscriptionID, error) {
	v, err := s.next(ctx, seqSubscriptions)
	return id.SubscriptionID(v), err
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.sdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", int64(subID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, bpay.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m), nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.sdb.NewSelect(&models)

	if !opts.PlanID.IsZero() {
		q = q.Where("plan_id = ?", int64(opts.PlanID))
	}
	if !opts.Customer.IsZero() {
		q = q.Where("customer = ?", opts.Customer.String())
	}
	if opts.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		result[i] = fromSubscriptionModel(&models[i])
	}
	return result, nil
}

func (s *Store) MarkBilled(ctx context.Context, subID id.SubscriptionID, count uint64, at time.Time) (bool, error) {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("billed_at = ?", at.UTC()).
		Set("billing_count = billing_count + 1").
		Where("id = ?", int64(subID)).
		Where("active = ?", true).
		Where("billing_count = ?", int64(count)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		// Lost the race, unless the subscription does not exist at all.
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
	var billedAt *time.Time
	if !prevAt.IsZero() {
		t := prevAt.UTC()
		billedAt = &t
	}
	_, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("billed_at = ?", billedAt).
		Set("billing_count = billing_count - 1").
		Where("id = ?", int64(subID)).
		Where("billing_count = ?", int64(count)).
		Exec(ctx)
	return err
}

func (s *Store) Deactivate(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("active = ?", false).
		Set("ended_at = ?", at.UTC()).
		Where("id = ?", int64(subID)).
		Exec(ctx)
	return checkAffected(res, err, bpay.ErrSubscriptionNotFound)
}

// ==================== Strike Store ====================

func (s *Store) GetStrikes(ctx context.Context, subID id.SubscriptionID) (int, error) {
	m := new(strikeModel)
	err := s.sdb.NewSelect(m).
		Where("subscription_id = ?", int64(subID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return m.Count, nil
}

func (s *Store) SetStrikes(ctx context.Context, subID id.SubscriptionID, count int) error {
	m := &strikeModel{
		SubscriptionID: int64(subID),
		Count:          count,
		UpdatedAt:      now(),
	}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(subscription_id) DO UPDATE").
		Set("count = EXCLUDED.count").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ==================== Fee Store ====================

func (s *Store) GetBalance(ctx context.Context, kind fee.Kind, owner types.Address) (types.Amount, error) {
	m, err := s.balance(ctx, kind, owner)
	if err != nil {
		return types.Zero(), err
	}
	return parseBalance(m)
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

func (s *Store) balance(ctx context.Context, kind fee.Kind, owner types.Address) (*balanceModel, error) {
	m := new(balanceModel)
	err := s.sdb.NewSelect(m).
		Where("kind = ?", string(kind)).
		Where("owner = ?", owner.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return &balanceModel{Kind: string(kind), Owner: owner.String(), Balance: "0"}, nil
		}
		return nil, err
	}
	return m, nil
}

// adjust applies fn to a balance row with an optimistic compare-and-swap on
// the previous value, so concurrent writers never lose an update.
func (s *Store) adjust(
	ctx context.Context,
	kind fee.Kind,
	owner types.Address,
	fn func(types.Amount) (types.Amount, error),
) (types.Amount, error) {
	seed := &balanceModel{Kind: string(kind), Owner: owner.String(), Balance: "0", UpdatedAt: now()}
	if _, err := s.sdb.NewInsert(seed).OnConflict("(kind, owner) DO NOTHING").Exec(ctx); err != nil {
		return types.Zero(), err
	}

	bal, err := bpaystore.AdjustBalance(ctx, bpaystore.BalanceRow{
		Load: func(ctx context.Context) (string, error) {
			m, err := s.balance(ctx, kind, owner)
			if err != nil {
				return "", err
			}
			return m.Balance, nil
		},
		Swap: func(ctx context.Context, raw string, next types.Amount) (bool, error) {
			res, err := s.sdb.NewUpdate((*balanceModel)(nil)).
				Set("balance = ?", next.String()).
				Set("updated_at = ?", now()).
				Where("kind = ?", string(kind)).
				Where("owner = ?", owner.String()).
				Where("balance = ?", raw).
				Exec(ctx)
			if err != nil {
				return false, err
			}
			rows, err := res.RowsAffected()
			return rows == 1, err
		},
	}, fn)
	if errors.Is(err, bpaystore.ErrBalanceContention) {
		return bal, fmt.Errorf("bpay/sqlite: balance %s/%s: %w", kind, owner, err)
	}
	return bal, err
}

// ==================== Payment Store ====================

func (s *Store) RecordPayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.sdb.NewInsert(toPaymentModel(p)).Exec(ctx)
	return err
}

func (s *Store) ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error) {
	var models []paymentModel
	q := s.sdb.NewSelect(&models)

	if !opts.SubscriptionID.IsZero() {
		q = q.Where("subscription_id = ?", int64(opts.SubscriptionID))
	}
	if !opts.Merchant.IsZero() {
		q = q.Where("merchant = ?", opts.Merchant.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("paid_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// checkAffected maps a zero-row update to notFound.
func checkAffected(res rowsAffecter, err error, notFound error) error {
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
