package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/postflow-ai/postflow/internal/domain/models"
	"gorm.io/gorm"
)

type ExecutionAttemptRepository struct {
	*BaseRepository[models.ExecutionAttempt]
}

func NewExecutionAttemptRepository(db *gorm.DB) *ExecutionAttemptRepository {
	return &ExecutionAttemptRepository{
		BaseRepository: NewBaseRepository[models.ExecutionAttempt](db),
	}
}

// Keyset is the position of the last row of a page (newest-first order).
type Keyset struct {
	ExecutedAt time.Time
	ID         uuid.UUID
}

// FindPage returns up to limit attempts ordered newest first, starting
// strictly after the given keyset.
func (r *ExecutionAttemptRepository) FindPage(ctx context.Context, scheduleID *uuid.UUID, after *Keyset, limit int) ([]models.ExecutionAttempt, error) {
	var attempts []models.ExecutionAttempt

	query := r.DB().WithContext(ctx).Model(&models.ExecutionAttempt{})
	if scheduleID != nil {
		query = query.Where("schedule_id = ?", *scheduleID)
	}
	if after != nil {
		at := after.ExecutedAt.UTC()
		query = query.Where("executed_at < ? OR (executed_at = ? AND id < ?)", at, at, after.ID)
	}

	err := query.
		Order("executed_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

// FindByUserSince loads the columns needed for statistics.
func (r *ExecutionAttemptRepository) FindByUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]models.ExecutionAttempt, error) {
	var attempts []models.ExecutionAttempt
	err := r.DB().WithContext(ctx).
		Select("status", "error_message", "execution_time_ms").
		Where("user_id = ? AND executed_at >= ?", userID, since.UTC()).
		Find(&attempts).Error
	return attempts, err
}

// DeleteOlderThan removes at most limit attempts executed before cutoff,
// oldest first.
func (r *ExecutionAttemptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	db := r.DB().WithContext(ctx)

	oldest := db.Model(&models.ExecutionAttempt{}).
		Select("id").
		Where("executed_at < ?", cutoff.UTC()).
		Order("executed_at ASC").
		Limit(limit)

	result := db.Where("id IN (?)", oldest).Delete(&models.ExecutionAttempt{})
	return result.RowsAffected, result.Error
}
