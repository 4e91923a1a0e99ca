package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the bpay store (SQLite).
var Migrations = migrate.NewGroup("bpay")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_bpay_sequences",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bpay_sequences (
    name  TEXT PRIMARY KEY,
    value INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO bpay_sequences (name, value) VALUES ('plans', 0), ('subscriptions', 0);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bpay_sequences`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bpay_plans",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bpay_plans (
    id           INTEGER PRIMARY KEY,
    merchant     TEXT NOT NULL,
    name         TEXT NOT NULL DEFAULT '',
    tokens       TEXT NOT NULL DEFAULT '[]',
    price        TEXT NOT NULL,
    period_ns    INTEGER NOT NULL DEFAULT 0,
    trial_ns     INTEGER NOT NULL DEFAULT 0,
    max_billings INTEGER NOT NULL DEFAULT 0,
    status       TEXT NOT NULL DEFAULT 'active',
    removed_at   TEXT,
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_bpay_plans_merchant ON bpay_plans (merchant, id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bpay_plans`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bpay_subscriptions",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bpay_subscriptions (
    id            INTEGER PRIMARY KEY,
    plan_id       INTEGER NOT NULL REFERENCES bpay_plans (id),
    customer      TEXT NOT NULL,
    token         TEXT NOT NULL,
    active        INTEGER NOT NULL DEFAULT 1,
    billing_count INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    billed_at     TEXT,
    ended_at      TEXT
);

CREATE INDEX IF NOT EXISTS idx_bpay_subs_plan ON bpay_subscriptions (plan_id, active);
CREATE INDEX IF NOT EXISTS idx_bpay_subs_customer ON bpay_subscriptions (customer);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bpay_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bpay_strikes",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bpay_strikes (
    subscription_id INTEGER PRIMARY KEY,
    count           INTEGER NOT NULL DEFAULT 0,
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bpay_strikes`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bpay_balances",
			Version: "20260101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bpay_balances (
    kind       TEXT NOT NULL,
    owner      TEXT NOT NULL,
    balance    TEXT NOT NULL DEFAULT '0',
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (kind, owner)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bpay_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_bpay_payments",
			Version: "20260101000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS bpay_payments (
    id              TEXT PRIMARY KEY,
    execution_id    TEXT NOT NULL,
    subscription_id INTEGER NOT NULL,
    plan_id         INTEGER NOT NULL,
    merchant        TEXT NOT NULL,
    customer        TEXT NOT NULL,
    token           TEXT NOT NULL,
    amount          TEXT NOT NULL,
    executor        TEXT NOT NULL,
    paid_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bpay_payments_sub ON bpay_payments (subscription_id, paid_at);
CREATE INDEX IF NOT EXISTS idx_bpay_payments_merchant ON bpay_payments (merchant, paid_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS bpay_payments`)
				return err
			},
		},
	)
}
