package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/scheduler/nextrun"
)

var ErrScheduleNotFound = errors.New("schedule not found")

// Schedule is the engine's view of a schedule row.
type Schedule struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	AccountID   uuid.UUID
	ContentID   uuid.UUID
	Name        string
	Type        string
	Status      string
	ScheduledAt *time.Time
	RepeatRule  *models.RepeatRule
	Timezone    string
	NextRunAt   *time.Time
	LastRunAt   *time.Time
	RunCount    int
	RetryCount  int
}

// Spec returns the inputs for next-run computation.
func (s *Schedule) Spec() nextrun.Spec {
	return nextrun.Spec{
		Type:        s.Type,
		ScheduledAt: s.ScheduledAt,
		Rule:        s.RepeatRule,
		Timezone:    s.Timezone,
	}
}

func (s *Schedule) IsActive() bool {
	return s.Status == models.ScheduleStatusActive
}

// Transition is the single update applied to a schedule after an attempt.
// Succeeded bumps run_count and resets retry_count; otherwise retry_count
// is incremented.
type Transition struct {
	Status    string
	NextRunAt *time.Time
	LastRunAt time.Time
	Succeeded bool
}

type ScheduleStore interface {
	// GetDue returns active schedules with next_run_at <= now, oldest first.
	GetDue(ctx context.Context, now time.Time, limit int) ([]*Schedule, error)

	// GetByID fetches a single schedule.
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)

	// Apply commits a post-attempt transition atomically.
	Apply(ctx context.Context, id uuid.UUID, t Transition) error

	// Defer moves next_run_at of an active schedule forward to nextRun
	// without counting a run or a retry.
	Defer(ctx context.Context, id uuid.UUID, nextRun time.Time) error

	// GetActiveWithoutNextRun returns active schedules missing next_run_at.
	GetActiveWithoutNextRun(ctx context.Context, limit int) ([]*Schedule, error)

	// Repair sets next_run_at and status on an active schedule.
	Repair(ctx context.Context, id uuid.UUID, status string, nextRun *time.Time) error
}
