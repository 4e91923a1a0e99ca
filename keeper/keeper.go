// Package keeper runs the executor side of bpay: on a cron schedule it asks
// the engine which subscriptions are due for each configured merchant and
// submits them in bounded batches, collecting the reward as its caller.
//
// A keeper never retries inside a tick. Anything that failed or was not
// reached is simply due again on the next tick.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/bpay"
	"github.com/xraph/bpay/execution"
	"github.com/xraph/bpay/types"
)

// Defaults applied to zero Config fields.
const (
	DefaultSchedule    = "@every 1m"
	DefaultBatchSize   = 50
	DefaultConcurrency = 4
)

// Executor is the part of the engine a keeper drives.
type Executor interface {
	DueBatches(ctx context.Context, merchant types.Address) ([]execution.Batch, error)
	ExecuteBatches(ctx context.Context, merchant types.Address, batches []execution.Batch, caller types.Address) (*execution.Report, error)
}

var _ Executor = (*bpay.Engine)(nil)

// Config describes which merchants a keeper serves and how.
type Config struct {
	// Address is the executor identity credited with rewards.
	Address types.Address `json:"address" mapstructure:"address" yaml:"address"`

	// Merchants are processed on every tick.
	Merchants []types.Address `json:"merchants" mapstructure:"merchants" yaml:"merchants"`

	// Schedule is a standard cron expression or descriptor such as "@every 30s".
	Schedule string `json:"schedule" mapstructure:"schedule" yaml:"schedule"`

	// BatchSize caps the subscriptions submitted in one Execute call.
	BatchSize int `json:"batch_size" mapstructure:"batch_size" yaml:"batch_size"`

	// Concurrency caps the merchants processed at once.
	Concurrency int `json:"concurrency" mapstructure:"concurrency" yaml:"concurrency"`

	// Timeout bounds one tick. Zero means no bound.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	return c
}

// Summary aggregates the reports produced by one tick.
type Summary struct {
	Merchants   int
	Executions  int
	Transferred int
	Failed      int
	Removed     int
	Skipped     int
	Collected   types.Amount
	RewardPaid  types.Amount
	Elapsed     time.Duration
}

func (s *Summary) add(r *execution.Report) {
	s.Executions++
	s.Transferred += r.Count(execution.OutcomeTransferred)
	s.Failed += r.Count(execution.OutcomeFailed)
	s.Removed += r.Count(execution.OutcomeRemoved)
	s.Skipped += r.Count(execution.OutcomeSkipped)
	s.Collected = s.Collected.Add(r.Collected())
	s.RewardPaid = s.RewardPaid.Add(r.RewardPaid)
}

// Keeper periodically executes due billings.
type Keeper struct {
	exec   Executor
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	last    Summary
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(k *Keeper) { k.logger = logger }
}

// New validates cfg and returns a stopped Keeper.
func New(exec Executor, cfg Config, opts ...Option) (*Keeper, error) {
	cfg = cfg.withDefaults()
	if cfg.Address.IsZero() {
		return nil, fmt.Errorf("%w: keeper address is required", bpay.ErrInvalidInput)
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %w", bpay.ErrInvalidInput, cfg.Schedule, err)
	}

	k := &Keeper{
		exec:   exec,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// Config returns the effective configuration.
func (k *Keeper) Config() Config { return k.cfg }

// LastSummary returns the summary of the most recent tick.
func (k *Keeper) LastSummary() Summary {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.last
}

// Start schedules ticks. A tick still running when the next one fires is
// skipped rather than overlapped.
func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cron != nil {
		return errors.New("keeper: already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	entryID, err := c.AddFunc(k.cfg.Schedule, func() {
		if _, err := k.Tick(ctx); err != nil {
			k.logger.Error("keeper tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("keeper: schedule %q: %w", k.cfg.Schedule, err)
	}

	c.Start()
	k.cron = c
	k.entryID = entryID

	k.logger.Info("keeper started",
		"address", k.cfg.Address,
		"merchants", len(k.cfg.Merchants),
		"schedule", k.cfg.Schedule,
		"batch_size", k.cfg.BatchSize,
		"concurrency", k.cfg.Concurrency,
	)
	return nil
}

// Stop unschedules ticks and waits for a running tick to finish or ctx to
// expire.
func (k *Keeper) Stop(ctx context.Context) error {
	k.mu.Lock()
	c := k.cron
	k.cron = nil
	k.mu.Unlock()

	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		k.logger.Info("keeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns when the next tick is scheduled, or the zero time when the
// keeper is stopped.
func (k *Keeper) Next() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cron == nil {
		return time.Time{}
	}
	return k.cron.Entry(k.entryID).Next
}

// Tick processes every configured merchant once. Errors from individual
// merchants do not stop the others; they are returned together.
func (k *Keeper) Tick(ctx context.Context) (Summary, error) {
	if k.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	var (
		mu      sync.Mutex
		summary = Summary{Merchants: len(k.cfg.Merchants)}
		errs    bpay.MultiError
	)

	g := new(errgroup.Group)
	g.SetLimit(k.cfg.Concurrency)
	for _, merchant := range k.cfg.Merchants {
		g.Go(func() error {
			reports, err := k.processMerchant(ctx, merchant)

			mu.Lock()
			defer mu.Unlock()
			for _, r := range reports {
				summary.add(r)
			}
			if err != nil {
				errs.Add(fmt.Errorf("keeper: merchant %s: %w", merchant, err))
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines report through errs
	summary.Elapsed = time.Since(start)

	k.mu.Lock()
	k.last = summary
	k.mu.Unlock()

	k.logger.Info("keeper tick",
		"merchants", summary.Merchants,
		"executions", summary.Executions,
		"transferred", summary.Transferred,
		"failed", summary.Failed,
		"removed", summary.Removed,
		"skipped", summary.Skipped,
		"reward_paid", summary.RewardPaid.String(),
		"errors", len(errs.Errors),
		"elapsed_ms", summary.Elapsed.Milliseconds(),
	)

	return summary, errs.ErrOrNil()
}

// processMerchant executes the merchant's due subscriptions chunk by chunk.
// A failing chunk stops the merchant; the reports of earlier chunks are
// still returned.
func (k *Keeper) processMerchant(ctx context.Context, merchant types.Address) ([]*execution.Report, error) {
	batches, err := k.exec.DueBatches(ctx, merchant)
	if err != nil {
		return nil, fmt.Errorf("due batches: %w", err)
	}
	if len(batches) == 0 {
		return nil, nil
	}

	chunks := execution.Chunk(batches, k.cfg.BatchSize)
	reports := make([]*execution.Report, 0, len(chunks))
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := k.exec.ExecuteBatches(ctx, merchant, chunk, k.cfg.Address)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, err
		}
		k.logger.Debug("keeper executed chunk",
			"merchant", merchant,
			"execution_id", report.ID,
			"pairs", len(report.Outcomes),
			"transferred", report.Successful,
		)
	}
	return reports, nil
}
