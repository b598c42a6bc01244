package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Schedule struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID   `gorm:"type:uuid;index;not null" json:"user_id"`
	AccountID   uuid.UUID   `gorm:"type:uuid;index;not null" json:"account_id"`
	ContentID   uuid.UUID   `gorm:"type:uuid;index;not null" json:"content_id"`
	Name        string      `gorm:"size:100" json:"name"`
	Type        string      `gorm:"size:20;not null" json:"type"`
	Status      string      `gorm:"size:20;not null;default:active;index:idx_schedules_due,priority:1" json:"status"`
	ScheduledAt *time.Time  `json:"scheduled_at,omitempty"`
	RepeatRule  *RepeatRule `gorm:"type:jsonb" json:"repeat_rule,omitempty"`
	Timezone    string      `gorm:"size:50;default:UTC" json:"timezone"`
	NextRunAt   *time.Time  `gorm:"index:idx_schedules_due,priority:2" json:"next_run_at,omitempty"`
	LastRunAt   *time.Time  `json:"last_run_at,omitempty"`
	RunCount    int         `gorm:"default:0" json:"run_count"`
	RetryCount  int         `gorm:"default:0" json:"retry_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (Schedule) TableName() string {
	return "schedules"
}

func (s *Schedule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// RepeatRule is the timing variant for recurring and random schedules.
// Which fields apply is decided by the owning schedule's Type.
type RepeatRule struct {
	// recurring
	Weekdays []int  `json:"weekdays,omitempty"`
	Time     string `json:"time,omitempty"`

	// random, minutes
	MinInterval int         `json:"min_interval,omitempty"`
	MaxInterval int         `json:"max_interval,omitempty"`
	Window      *TimeWindow `json:"window,omitempty"`

	Timezone string `json:"timezone,omitempty"`
}

// TimeWindow bounds random runs to a daily HH:mm range. End before Start
// wraps past midnight.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (r RepeatRule) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *RepeatRule) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, r)
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("failed to scan JSON: not a byte slice")
	}
}
