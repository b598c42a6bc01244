// Package pipeline turns due schedules into published posts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/pkg/metrics"
	"github.com/postflow-ai/postflow/internal/scheduler/nextrun"
	"github.com/postflow-ai/postflow/internal/scheduler/notify"
	"github.com/postflow-ai/postflow/internal/scheduler/poller"
	"github.com/postflow-ai/postflow/internal/scheduler/publisher"
	"github.com/postflow-ai/postflow/internal/scheduler/ratelimit"
	"github.com/postflow-ai/postflow/internal/scheduler/retry"
	"github.com/postflow-ai/postflow/internal/scheduler/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound means the account or content behind a schedule is gone
	// or disabled. It is never retried.
	ErrNotFound = errors.New("snapshot not found")

	ErrScheduleNotFound  = store.ErrScheduleNotFound
	ErrScheduleNotActive = errors.New("schedule is not active")
)

const (
	DefaultMaxConcurrent     = 3
	DefaultAttemptTimeout    = 30 * time.Second
	DefaultRateLimitDeferral = time.Minute
)

// Snapshots loads the account and content a schedule publishes with.
type Snapshots interface {
	Account(ctx context.Context, userID, accountID uuid.UUID) (*models.SocialAccount, error)
	Content(ctx context.Context, userID, contentID uuid.UUID) (*models.Content, error)
}

type Recorder interface {
	Append(ctx context.Context, attempt *models.ExecutionAttempt) error
}

type Config struct {
	BatchSize      int
	MaxConcurrent  int
	AttemptTimeout time.Duration
	Retry          retry.Policy

	// RateLimitDeferral is how far a rate-limited schedule is pushed back,
	// so one throttled account cannot hold the head of every due batch.
	RateLimitDeferral time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:      poller.DefaultBatchSize,
		MaxConcurrent:  DefaultMaxConcurrent,
		AttemptTimeout: DefaultAttemptTimeout,
		Retry:          retry.DefaultPolicy(),

		RateLimitDeferral: DefaultRateLimitDeferral,
	}
}

type Dependencies struct {
	Poller     *poller.Poller
	Store      store.ScheduleStore
	Snapshots  Snapshots
	Publisher  publisher.Client
	Calculator *nextrun.Calculator
	Recorder   Recorder

	// Optional.
	Notifier notify.Notifier
	Limiter  ratelimit.Limiter
	Now      func() time.Time
}

type Pipeline struct {
	cfg       Config
	poller    *poller.Poller
	store     store.ScheduleStore
	snapshots Snapshots
	publisher publisher.Client
	calc      *nextrun.Calculator
	recorder  Recorder
	notifier  notify.Notifier
	limiter   ratelimit.Limiter
	now       func() time.Time

	running atomic.Bool

	cycles        atomic.Int64
	cyclesSkipped atomic.Int64
	succeeded     atomic.Int64
	retrying      atomic.Int64
	failed        atomic.Int64
	rateLimited   atomic.Int64
	errored       atomic.Int64
}

func New(cfg Config, deps Dependencies) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = poller.DefaultBatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.RateLimitDeferral <= 0 {
		cfg.RateLimitDeferral = DefaultRateLimitDeferral
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Calculator == nil {
		deps.Calculator = nextrun.NewCalculator(nil)
	}

	return &Pipeline{
		cfg:       cfg,
		poller:    deps.Poller,
		store:     deps.Store,
		snapshots: deps.Snapshots,
		publisher: deps.Publisher,
		calc:      deps.Calculator,
		recorder:  deps.Recorder,
		notifier:  deps.Notifier,
		limiter:   deps.Limiter,
		now:       deps.Now,
	}
}

// CycleResult summarises one RunCycle call.
type CycleResult struct {
	Skipped  bool
	Due      int
	Outcomes []*Outcome
	Err      error
	Duration time.Duration
}

// Count returns how many outcomes ended with r.
func (c CycleResult) Count(r Result) int {
	n := 0
	for _, o := range c.Outcomes {
		if o != nil && o.Result == r {
			n++
		}
	}
	return n
}

// RunCycle polls once and executes the due batch with bounded concurrency.
// Attempts are started in next_run_at order. Once the batch is fetched,
// cancelling ctx no longer interrupts it. A call made while another cycle
// is still running returns immediately with Skipped set.
func (p *Pipeline) RunCycle(ctx context.Context) CycleResult {
	if !p.running.CompareAndSwap(false, true) {
		p.cyclesSkipped.Add(1)
		metrics.SchedulerCyclesSkipped.Inc()
		log.Warn().Msg("Previous cycle still running, skipping")
		return CycleResult{Skipped: true}
	}
	defer p.running.Store(false)

	start := time.Now()
	p.cycles.Add(1)

	batch, err := p.poller.FetchDueBatch(ctx, p.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Poll failed")
		return CycleResult{Err: err, Duration: time.Since(start)}
	}

	result := CycleResult{
		Due:      len(batch),
		Outcomes: make([]*Outcome, len(batch)),
	}
	if len(batch) == 0 {
		result.Duration = time.Since(start)
		metrics.RecordCycle(0, result.Duration)
		return result
	}

	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.cfg.MaxConcurrent)
	for i, s := range batch {
		g.Go(func() error {
			out, err := p.Execute(detached, s)
			if err != nil {
				log.Error().
					Err(err).
					Str("schedule_id", s.ID.String()).
					Msg("Schedule execution failed")
			}
			result.Outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	metrics.RecordCycle(len(batch), result.Duration)

	log.Info().
		Int("due", result.Due).
		Int("succeeded", result.Count(ResultSuccess)).
		Int("retrying", result.Count(ResultRetrying)).
		Int("failed", result.Count(ResultFailed)).
		Int("skipped", result.Count(ResultSkipped)).
		Dur("duration", result.Duration).
		Msg("Cycle finished")

	return result
}

type TriggerResult struct {
	Success    bool       `json:"success"`
	ScheduleID uuid.UUID  `json:"schedule_id"`
	ExecutedAt time.Time  `json:"executed_at"`
	Result     Result     `json:"result"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// TriggerNow executes one active schedule outside the poll loop. The
// attempt is not tied to ctx cancellation once started.
func (p *Pipeline) TriggerNow(ctx context.Context, scheduleID uuid.UUID) (*TriggerResult, error) {
	s, err := p.store.GetByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, store.ErrScheduleNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if !s.IsActive() {
		return nil, fmt.Errorf("%w: status is %s", ErrScheduleNotActive, s.Status)
	}

	out, err := p.Execute(context.WithoutCancel(ctx), s)
	if err != nil {
		return nil, err
	}

	res := &TriggerResult{
		Success:    out.Result == ResultSuccess,
		ScheduleID: scheduleID,
		ExecutedAt: out.ExecutedAt,
		Result:     out.Result,
		NextRunAt:  out.NextRunAt,
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	return res, nil
}

type Stats struct {
	Cycles        int64 `json:"cycles"`
	CyclesSkipped int64 `json:"cycles_skipped"`
	Succeeded     int64 `json:"succeeded"`
	Retrying      int64 `json:"retrying"`
	Failed        int64 `json:"failed"`
	RateLimited   int64 `json:"rate_limited"`
	Errors        int64 `json:"errors"`
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Cycles:        p.cycles.Load(),
		CyclesSkipped: p.cyclesSkipped.Load(),
		Succeeded:     p.succeeded.Load(),
		Retrying:      p.retrying.Load(),
		Failed:        p.failed.Load(),
		RateLimited:   p.rateLimited.Load(),
		Errors:        p.errored.Load(),
	}
}

func (p *Pipeline) Poller() *poller.Poller {
	return p.poller
}
