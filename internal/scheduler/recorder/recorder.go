// Package recorder keeps the append-only audit trail of publish attempts.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/domain/repositories"
)

const (
	DefaultRetentionDays    = 90
	DefaultCleanupBatchSize = 1000
)

var (
	ErrInvalidAttempt = errors.New("invalid execution attempt")
	ErrInvalidPeriod  = errors.New("invalid stats period")
)

// periods accepted by StatsFor.
var periods = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

type Config struct {
	CleanupBatchSize int
	Now              func() time.Time
}

type Recorder struct {
	repo             *repositories.ExecutionAttemptRepository
	cleanupBatchSize int
	now              func() time.Time
}

func New(repo *repositories.ExecutionAttemptRepository, cfg Config) *Recorder {
	if cfg.CleanupBatchSize <= 0 {
		cfg.CleanupBatchSize = DefaultCleanupBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Recorder{
		repo:             repo,
		cleanupBatchSize: cfg.CleanupBatchSize,
		now:              cfg.Now,
	}
}

// Append stores one attempt. Successful attempts carry a post id and no
// error; the others carry an error message and no post id.
func (r *Recorder) Append(ctx context.Context, attempt *models.ExecutionAttempt) error {
	switch attempt.Status {
	case models.AttemptStatusSuccess:
		if attempt.ExternalPostID == nil || attempt.ErrorMessage != nil {
			return fmt.Errorf("%w: success needs a post id and no error", ErrInvalidAttempt)
		}
	case models.AttemptStatusFailed, models.AttemptStatusRetrying:
		if attempt.ErrorMessage == nil || attempt.ExternalPostID != nil {
			return fmt.Errorf("%w: %s needs an error and no post id", ErrInvalidAttempt, attempt.Status)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidAttempt, attempt.Status)
	}

	if attempt.ExecutedAt.IsZero() {
		attempt.ExecutedAt = r.now()
	}
	attempt.ExecutedAt = attempt.ExecutedAt.UTC()

	if err := r.repo.Create(ctx, attempt); err != nil {
		return fmt.Errorf("failed to append execution attempt: %w", err)
	}
	return nil
}

type Stats struct {
	Period             string           `json:"period"`
	Total              int64            `json:"total"`
	Successful         int64            `json:"successful"`
	Failed             int64            `json:"failed"`
	Retrying           int64            `json:"retrying"`
	AvgExecutionTimeMs float64          `json:"avg_execution_time_ms"`
	ErrorBreakdown     map[string]int64 `json:"error_breakdown"`
}

// StatsFor aggregates a user's attempts over the period ("24h", "7d" or
// "30d") ending now.
func (r *Recorder) StatsFor(ctx context.Context, userID uuid.UUID, period string) (*Stats, error) {
	window, ok := periods[period]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}

	attempts, err := r.repo.FindByUserSince(ctx, userID, r.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to load attempts: %w", err)
	}

	stats := &Stats{
		Period:         period,
		ErrorBreakdown: make(map[string]int64, len(Buckets)),
	}
	for _, b := range Buckets {
		stats.ErrorBreakdown[b] = 0
	}

	var totalMs int64
	for _, a := range attempts {
		stats.Total++
		totalMs += a.ExecutionTimeMs

		switch a.Status {
		case models.AttemptStatusSuccess:
			stats.Successful++
			continue
		case models.AttemptStatusFailed:
			stats.Failed++
		case models.AttemptStatusRetrying:
			stats.Retrying++
		}

		msg := ""
		if a.ErrorMessage != nil {
			msg = *a.ErrorMessage
		}
		stats.ErrorBreakdown[ClassifyError(msg)]++
	}

	if stats.Total > 0 {
		stats.AvgExecutionTimeMs = float64(totalMs) / float64(stats.Total)
	}

	return stats, nil
}

// CleanupOlderThan deletes at most one batch of attempts older than days.
// Callers loop until fewer than a batch comes back.
func (r *Recorder) CleanupOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := r.now().Add(-time.Duration(days) * 24 * time.Hour)

	deleted, err := r.repo.DeleteOlderThan(ctx, cutoff, r.cleanupBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old attempts: %w", err)
	}
	return deleted, nil
}

func (r *Recorder) CleanupBatchSize() int {
	return r.cleanupBatchSize
}
