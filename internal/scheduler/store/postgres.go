package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"gorm.io/gorm"
)

type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetDue(ctx context.Context, now time.Time, limit int) ([]*Schedule, error) {
	var schedules []models.Schedule

	err := s.db.WithContext(ctx).
		Where("status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", models.ScheduleStatusActive, now.UTC()).
		Order("next_run_at ASC").
		Limit(limit).
		Find(&schedules).Error

	if err != nil {
		return nil, err
	}

	return toSchedules(schedules), nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	var schedule models.Schedule
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&schedule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return toSchedule(&schedule), nil
}

func (s *PostgresStore) Apply(ctx context.Context, id uuid.UUID, t Transition) error {
	updates := map[string]interface{}{
		"status":      t.Status,
		"next_run_at": utcPtr(t.NextRunAt),
		"last_run_at": t.LastRunAt.UTC(),
	}
	if t.Succeeded {
		updates["run_count"] = gorm.Expr("run_count + 1")
		updates["retry_count"] = 0
	} else {
		updates["retry_count"] = gorm.Expr("retry_count + 1")
	}

	result := s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (s *PostgresStore) GetActiveWithoutNextRun(ctx context.Context, limit int) ([]*Schedule, error) {
	var schedules []models.Schedule
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_run_at IS NULL", models.ScheduleStatusActive).
		Order("created_at ASC").
		Limit(limit).
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return toSchedules(schedules), nil
}

// Defer never moves a schedule backwards and leaves rows that left the
// active state alone.
func (s *PostgresStore) Defer(ctx context.Context, id uuid.UUID, nextRun time.Time) error {
	next := nextRun.UTC()
	return s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ? AND status = ? AND next_run_at < ?", id, models.ScheduleStatusActive, next).
		Update("next_run_at", next).Error
}

// Repair only touches rows that are still active without a next run, so a
// concurrent pipeline update wins.
func (s *PostgresStore) Repair(ctx context.Context, id uuid.UUID, status string, nextRun *time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Schedule{}).
		Where("id = ? AND status = ? AND next_run_at IS NULL", id, models.ScheduleStatusActive).
		Updates(map[string]interface{}{
			"status":      status,
			"next_run_at": utcPtr(nextRun),
		}).Error
}

func toSchedules(rows []models.Schedule) []*Schedule {
	result := make([]*Schedule, len(rows))
	for i := range rows {
		result[i] = toSchedule(&rows[i])
	}
	return result
}

func toSchedule(m *models.Schedule) *Schedule {
	return &Schedule{
		ID:          m.ID,
		UserID:      m.UserID,
		AccountID:   m.AccountID,
		ContentID:   m.ContentID,
		Name:        m.Name,
		Type:        m.Type,
		Status:      m.Status,
		ScheduledAt: m.ScheduledAt,
		RepeatRule:  m.RepeatRule,
		Timezone:    m.Timezone,
		NextRunAt:   m.NextRunAt,
		LastRunAt:   m.LastRunAt,
		RunCount:    m.RunCount,
		RetryCount:  m.RetryCount,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
