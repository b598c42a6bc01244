package dto

// ListExecutionsQuery is the query string of GET /executions.
type ListExecutionsQuery struct {
	ScheduleID string `validate:"omitempty,uuid"`
	Limit      int    `validate:"omitempty,min=1,max=100"`
	Cursor     string `validate:"omitempty,max=256"`
}

// ExecutionStatsQuery is the query string of GET /executions/stats.
type ExecutionStatsQuery struct {
	UserID string `validate:"required,uuid"`
	Period string `validate:"required,oneof=24h 7d 30d"`
}

// TriggerResponse is returned by a manual schedule run.
type TriggerResponse struct {
	Success    bool   `json:"success"`
	ScheduleID string `json:"schedule_id"`
	ExecutedAt int64  `json:"executed_at"`
	Result     string `json:"result"`
	NextRunAt  *int64 `json:"next_run_at,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ExecutionAttemptResponse struct {
	ID              string  `json:"id"`
	ScheduleID      string  `json:"schedule_id"`
	AccountID       string  `json:"account_id"`
	ContentID       string  `json:"content_id"`
	Status          string  `json:"status"`
	ExternalPostID  *string `json:"external_post_id,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
	RetryCount      int     `json:"retry_count"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	ExecutedAt      int64   `json:"executed_at"`
}

type ExecutionPageResponse struct {
	Attempts []ExecutionAttemptResponse `json:"attempts"`
	HasMore  bool                       `json:"has_more"`
	Cursor   string                     `json:"cursor,omitempty"`
}
