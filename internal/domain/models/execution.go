package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExecutionAttempt is the append-only audit record of one pipeline attempt.
type ExecutionAttempt struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ScheduleID      uuid.UUID `gorm:"type:uuid;index;not null" json:"schedule_id"`
	AccountID       uuid.UUID `gorm:"type:uuid;not null" json:"account_id"`
	ContentID       uuid.UUID `gorm:"type:uuid;not null" json:"content_id"`
	UserID          uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	Status          string    `gorm:"size:20;not null;index" json:"status"`
	ExternalPostID  *string   `gorm:"size:100" json:"external_post_id,omitempty"`
	ErrorMessage    *string   `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount      int       `gorm:"default:0" json:"retry_count"`
	ExecutedAt      time.Time `gorm:"not null;index" json:"executed_at"`
	ExecutionTimeMs int64     `gorm:"default:0" json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

func (ExecutionAttempt) TableName() string {
	return "execution_attempts"
}

func (e *ExecutionAttempt) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
