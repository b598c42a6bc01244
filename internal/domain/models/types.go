package models

import "github.com/lib/pq"

// StringArray type for text[] columns
type StringArray = pq.StringArray

// Schedule types
const (
	ScheduleTypeOneTime   = "one_time"
	ScheduleTypeRecurring = "recurring"
	ScheduleTypeRandom    = "random"
)

// Schedule status constants
const (
	ScheduleStatusActive    = "active"
	ScheduleStatusPaused    = "paused"
	ScheduleStatusCompleted = "completed"
	ScheduleStatusError     = "error"
)

// Execution attempt status constants
const (
	AttemptStatusSuccess  = "success"
	AttemptStatusFailed   = "failed"
	AttemptStatusRetrying = "retrying"
)
