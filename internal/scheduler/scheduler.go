package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/postflow-ai/postflow/internal/domain/repositories"
	"github.com/postflow-ai/postflow/internal/pkg/queue"
	pkgredis "github.com/postflow-ai/postflow/internal/pkg/redis"
	"github.com/postflow-ai/postflow/internal/scheduler/cache"
	"github.com/postflow-ai/postflow/internal/scheduler/leader"
	"github.com/postflow-ai/postflow/internal/scheduler/metrics"
	"github.com/postflow-ai/postflow/internal/scheduler/nextrun"
	"github.com/postflow-ai/postflow/internal/scheduler/notify"
	"github.com/postflow-ai/postflow/internal/scheduler/pipeline"
	"github.com/postflow-ai/postflow/internal/scheduler/poller"
	"github.com/postflow-ai/postflow/internal/scheduler/publisher"
	"github.com/postflow-ai/postflow/internal/scheduler/ratelimit"
	"github.com/postflow-ai/postflow/internal/scheduler/recorder"
	"github.com/postflow-ai/postflow/internal/scheduler/recovery"
	"github.com/postflow-ai/postflow/internal/scheduler/retry"
	"github.com/postflow-ai/postflow/internal/scheduler/store"
	"github.com/postflow-ai/postflow/internal/scheduler/ticker"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Scheduler struct {
	config *Config

	// Components
	election  *leader.Election
	ticker    ticker.Ticker
	pipeline  *pipeline.Pipeline
	recorder  *recorder.Recorder
	snapshots *cache.SnapshotLoader
	repair    *recovery.InvariantRepair
	cleanup   *recovery.Cleanup
	metrics   *metrics.Collector

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dependencies are the shared clients. Redis and Queue are optional:
// without Redis there is no leader election and rate limiting is
// per-process; without Queue notifications are only logged.
type Dependencies struct {
	DB        *gorm.DB
	Redis     *pkgredis.Client
	Queue     *queue.Client
	Publisher publisher.Client

	// Ticker overrides the ticker built from PollSchedule.
	Ticker ticker.Ticker
	Now    func() time.Time
}

func New(cfg *Config, deps *Dependencies) (*Scheduler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Create store
	pgStore := store.NewPostgresStore(deps.DB)

	// Create snapshot cache
	snapshots := cache.NewSnapshotLoader(
		repositories.NewAccountRepository(deps.DB),
		repositories.NewContentRepository(deps.DB),
		cache.SnapshotConfig{TTL: cfg.CacheTTL, Size: cfg.CacheSize, Now: deps.Now},
	)

	// Create recorder
	rec := recorder.New(
		repositories.NewExecutionAttemptRepository(deps.DB),
		recorder.Config{CleanupBatchSize: cfg.CleanupBatchSize, Now: deps.Now},
	)

	calculator := nextrun.NewCalculator(nil)

	// Create rate limiter
	var limiter ratelimit.Limiter
	if cfg.AccountRateLimit > 0 {
		local := ratelimit.NewLocalLimiter(cfg.AccountRateLimit, time.Minute, deps.Now)
		limiter = local
		if deps.Redis != nil {
			// Local bucket first; a local denial skips the Redis check.
			limiter = ratelimit.NewCompositeLimiter(local, ratelimit.NewSlidingWindowLimiter(
				deps.Redis, "postflow:ratelimit:account", cfg.AccountRateLimit, time.Minute,
			))
		}
	}

	// Create notifier
	var notifier notify.Notifier = notify.LogNotifier{}
	if deps.Queue != nil {
		notifier = notify.NewQueueNotifier(deps.Queue)
	}

	// Create leader election
	var election *leader.Election
	if cfg.LeaderElection {
		if deps.Redis == nil {
			log.Warn().Msg("Leader election requested without Redis, running as sole leader")
		} else {
			election = leader.NewElection(deps.Redis, cfg.LeaderKey, cfg.LeaderTTL)
		}
	}

	// Create pipeline
	pipe := pipeline.New(pipeline.Config{
		BatchSize:      cfg.BatchSize,
		MaxConcurrent:  cfg.MaxConcurrent,
		AttemptTimeout: cfg.AttemptTimeout,
		Retry:          retry.NewPolicy(cfg.RetryIntervals, cfg.MaxRetryCount),
	}, pipeline.Dependencies{
		Poller:     poller.NewPoller(pgStore, deps.Now),
		Store:      pgStore,
		Snapshots:  snapshots,
		Publisher:  deps.Publisher,
		Calculator: calculator,
		Recorder:   rec,
		Notifier:   notifier,
		Limiter:    limiter,
		Now:        deps.Now,
	})

	// Create metrics
	metricsCollector := metrics.NewCollector(deps.Now)

	// Create recovery
	repair := recovery.NewInvariantRepair(pgStore, calculator, metricsCollector, cfg.RepairInterval, deps.Now)
	cleanup := recovery.NewCleanup(rec, metricsCollector, cfg.RetentionDays, cfg.CleanupInterval)

	return &Scheduler{
		config:    cfg,
		election:  election,
		ticker:    deps.Ticker,
		pipeline:  pipe,
		recorder:  rec,
		snapshots: snapshots,
		repair:    repair,
		cleanup:   cleanup,
		metrics:   metricsCollector,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (s *Scheduler) Start() error {
	if s.ticker == nil {
		t, err := ticker.NewCronTicker(s.config.PollSchedule)
		if err != nil {
			return fmt.Errorf("failed to create ticker: %w", err)
		}
		s.ticker = t
	}

	log.Info().
		Str("poll_schedule", s.config.PollSchedule).
		Int("batch_size", s.config.BatchSize).
		Int("max_concurrent", s.config.MaxConcurrent).
		Bool("leader_election", s.election != nil).
		Msg("Starting scheduler")

	if s.election == nil {
		s.metrics.SetLeader(true)
		s.startWorkers(s.ctx)
		return nil
	}

	// Start leader election loop
	s.wg.Add(1)
	go s.leaderLoop()

	return nil
}

func (s *Scheduler) Stop() error {
	log.Info().Msg("Stopping scheduler...")

	s.cancel()

	// Wait with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Scheduler stopped gracefully")
	case <-time.After(s.config.ShutdownTimeout):
		log.Warn().Msg("Scheduler shutdown timed out")
	}

	if s.ticker != nil {
		s.ticker.Stop()
	}

	// Release leadership
	if s.election != nil {
		s.election.Release(context.Background())
	}

	return nil
}

// startWorkers runs the poll loop and the recovery jobs until ctx ends.
func (s *Scheduler) startWorkers(ctx context.Context) {
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.pollLoop(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.repair.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.cleanup.Run(ctx)
	}()
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ticker.C():
			s.RunCycle(ctx)
		}
	}
}

func (s *Scheduler) leaderLoop() {
	defer s.wg.Done()

	extendTicker := time.NewTicker(s.election.TTL() / 3)
	defer extendTicker.Stop()

	acquireTicker := time.NewTicker(5 * time.Second)
	defer acquireTicker.Stop()

	var workersCancel context.CancelFunc

	stopWorkers := func() {
		if workersCancel != nil {
			workersCancel()
			workersCancel = nil
		}
	}

	tryAcquire := func() {
		if s.election.IsLeader() {
			return
		}
		acquired, err := s.election.TryAcquire(s.ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to acquire leadership")
			return
		}
		if acquired {
			s.metrics.SetLeader(true)
			var workersCtx context.Context
			workersCtx, workersCancel = context.WithCancel(s.ctx)
			s.startWorkers(workersCtx)
		}
	}

	tryAcquire()

	for {
		select {
		case <-s.ctx.Done():
			stopWorkers()
			return

		case <-acquireTicker.C:
			tryAcquire()

		case <-extendTicker.C:
			if s.election.IsLeader() {
				if !s.election.Extend(s.ctx) {
					log.Warn().Msg("Lost leadership")
					s.metrics.SetLeader(false)
					stopWorkers()
				}
			}
		}
	}
}

// RunCycle runs one pipeline cycle and records it. The poll loop calls it
// on every tick.
func (s *Scheduler) RunCycle(ctx context.Context) pipeline.CycleResult {
	res := s.pipeline.RunCycle(ctx)

	if purged := s.snapshots.Purge(); purged > 0 {
		log.Debug().Int("purged", purged).Msg("Purged expired snapshots")
	}

	s.metrics.ObserveCycle(metrics.Cycle{
		Skipped:   res.Skipped,
		Failed:    res.Err != nil,
		Due:       res.Due,
		Published: res.Count(pipeline.ResultSuccess),
		Retrying:  res.Count(pipeline.ResultRetrying),
		Errored:   res.Count(pipeline.ResultFailed),
		Deferred:  res.Count(pipeline.ResultSkipped),
		Duration:  res.Duration,
	})
	return res
}

func (s *Scheduler) IsLeader() bool {
	if s.election == nil {
		return true
	}
	return s.election.IsLeader()
}

func (s *Scheduler) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

func (s *Scheduler) Recorder() *recorder.Recorder {
	return s.recorder
}

func (s *Scheduler) Metrics() *metrics.Collector {
	return s.metrics
}

func (s *Scheduler) Health() map[string]interface{} {
	snapshot := s.metrics.Snapshot()
	pollerStats := s.pipeline.Poller().Stats()
	pipelineStats := s.pipeline.Stats()

	return map[string]interface{}{
		"is_leader":       s.IsLeader(),
		"uptime_seconds":  int64(snapshot.Uptime.Seconds()),
		"polls_total":     pollerStats.PollCount,
		"poll_errors":     pollerStats.ErrorCount,
		"last_poll_at":    pollerStats.LastPollAt,
		"published_total": pipelineStats.Succeeded,
		"retrying_total":  pipelineStats.Retrying,
		"failed_total":    pipelineStats.Failed,
		"deferred_total":  pipelineStats.RateLimited,
		"cycles_skipped":  pipelineStats.CyclesSkipped,
	}
}
