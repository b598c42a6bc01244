// Package recovery holds the background jobs that keep schedule rows and
// the audit trail in shape.
package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/scheduler/metrics"
	"github.com/postflow-ai/postflow/internal/scheduler/nextrun"
	"github.com/postflow-ai/postflow/internal/scheduler/store"
	"github.com/postflow-ai/postflow/internal/scheduler/ticker"
	"github.com/rs/zerolog/log"
)

const defaultRepairBatch = 100

// InvariantRepair finds active schedules without a next run and gives them
// one. Such rows are never due, so without repair they would stall forever.
type InvariantRepair struct {
	store      store.ScheduleStore
	calculator *nextrun.Calculator
	collector  *metrics.Collector
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

func NewInvariantRepair(
	scheduleStore store.ScheduleStore,
	calculator *nextrun.Calculator,
	collector *metrics.Collector,
	interval time.Duration,
	now func() time.Time,
) *InvariantRepair {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &InvariantRepair{
		store:      scheduleStore,
		calculator: calculator,
		collector:  collector,
		interval:   interval,
		batchSize:  defaultRepairBatch,
		now:        now,
	}
}

func (r *InvariantRepair) Run(ctx context.Context) {
	t := ticker.Every(r.interval)
	defer t.Stop()

	// Run once on start
	r.RepairOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			r.RepairOnce(ctx)
		}
	}
}

// RepairOnce fixes one batch and returns how many rows were updated.
func (r *InvariantRepair) RepairOnce(ctx context.Context) int {
	broken, err := r.store.GetActiveWithoutNextRun(ctx, r.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch schedules without next run")
		return 0
	}

	if len(broken) == 0 {
		return 0
	}

	now := r.now().UTC()
	repaired := 0
	for _, schedule := range broken {
		status, nextRun, ok := r.resolve(schedule, now)
		if !ok {
			continue
		}

		if err := r.store.Repair(ctx, schedule.ID, status, nextRun); err != nil {
			log.Error().
				Err(err).
				Str("schedule_id", schedule.ID.String()).
				Msg("Failed to repair schedule")
			continue
		}

		repaired++
		event := log.Warn().
			Str("schedule_id", schedule.ID.String()).
			Str("status", status)
		if nextRun != nil {
			event = event.Time("next_run_at", *nextRun)
		}
		event.Msg("Repaired schedule without next run")
	}

	if repaired > 0 {
		log.Info().Int("count", repaired).Msg("Repaired schedules")
		if r.collector != nil {
			r.collector.IncRepaired(int64(repaired))
		}
	}
	return repaired
}

// resolve picks the repaired state. A one-time schedule whose instant has
// passed is made due right away unless it already ran; a rule that no
// longer validates moves the schedule to error.
func (r *InvariantRepair) resolve(s *store.Schedule, now time.Time) (string, *time.Time, bool) {
	next, err := r.calculator.NextRun(s.Spec(), now)
	switch {
	case err == nil:
		return models.ScheduleStatusActive, &next, true

	case errors.Is(err, nextrun.ErrPastSchedule):
		if s.RunCount > 0 {
			return models.ScheduleStatusCompleted, nil, true
		}
		due := s.ScheduledAt.UTC()
		return models.ScheduleStatusActive, &due, true

	case errors.Is(err, nextrun.ErrInvalidRule):
		log.Error().
			Err(err).
			Str("schedule_id", s.ID.String()).
			Msg("Schedule rule is invalid, moving to error")
		return models.ScheduleStatusError, nil, true

	default:
		log.Error().
			Err(err).
			Str("schedule_id", s.ID.String()).
			Msg("Failed to calculate next run for schedule")
		return "", nil, false
	}
}
