package scheduler

import (
	"time"

	"github.com/postflow-ai/postflow/internal/pkg/config"
	"github.com/postflow-ai/postflow/internal/scheduler/ticker"
)

type Config struct {
	// Polling
	PollSchedule  string
	BatchSize     int
	MaxConcurrent int

	// Execution
	AttemptTimeout   time.Duration
	RetryIntervals   []int // minutes
	MaxRetryCount    int
	AccountRateLimit int // publishes per minute per account, 0 disables

	// Snapshot cache
	CacheTTL  time.Duration
	CacheSize int

	// Leader Election
	LeaderElection bool
	LeaderKey      string
	LeaderTTL      time.Duration

	// Recovery
	RepairInterval   time.Duration
	CleanupInterval  time.Duration
	RetentionDays    int
	CleanupBatchSize int

	// Shutdown
	ShutdownTimeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		PollSchedule:     "@every 1m",
		BatchSize:        10,
		MaxConcurrent:    3,
		AttemptTimeout:   30 * time.Second,
		RetryIntervals:   []int{5, 15, 60},
		MaxRetryCount:    3,
		CacheTTL:         180 * time.Second,
		CacheSize:        1000,
		LeaderKey:        "postflow:scheduler:leader",
		LeaderTTL:        30 * time.Second,
		RepairInterval:   5 * time.Minute,
		CleanupInterval:  time.Hour,
		RetentionDays:    90,
		CleanupBatchSize: 1000,
		ShutdownTimeout:  60 * time.Second,
	}
}

// FromAppConfig maps the scheduler section of the service config.
func FromAppConfig(c config.SchedulerConfig) *Config {
	return &Config{
		PollSchedule:     c.PollSchedule,
		BatchSize:        c.BatchSize,
		MaxConcurrent:    c.MaxConcurrent,
		AttemptTimeout:   c.AttemptTimeout,
		RetryIntervals:   c.RetryIntervals,
		MaxRetryCount:    c.MaxRetryCount,
		AccountRateLimit: c.AccountRateLimit,
		CacheTTL:         c.CacheTTL,
		CacheSize:        c.CacheSize,
		LeaderElection:   c.LeaderElection,
		LeaderKey:        c.LeaderKey,
		LeaderTTL:        c.LeaderTTL,
		RepairInterval:   c.RepairInterval,
		CleanupInterval:  c.CleanupInterval,
		RetentionDays:    c.RetentionDays,
		CleanupBatchSize: c.CleanupBatchSize,
		ShutdownTimeout:  c.ShutdownTimeout,
	}
}

// Validate fills zero values with defaults. Only an unparsable poll
// schedule is an error.
func (c *Config) Validate() error {
	d := DefaultConfig()

	if c.PollSchedule == "" {
		c.PollSchedule = d.PollSchedule
	}
	if _, err := ticker.Parse(c.PollSchedule); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if len(c.RetryIntervals) == 0 {
		c.RetryIntervals = d.RetryIntervals
	}
	if c.MaxRetryCount <= 0 {
		c.MaxRetryCount = d.MaxRetryCount
	}
	if c.AccountRateLimit < 0 {
		c.AccountRateLimit = 0
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.LeaderKey == "" {
		c.LeaderKey = d.LeaderKey
	}
	if c.LeaderTTL <= 0 {
		c.LeaderTTL = d.LeaderTTL
	}
	if c.RepairInterval <= 0 {
		c.RepairInterval = d.RepairInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.CleanupBatchSize <= 0 {
		c.CleanupBatchSize = d.CleanupBatchSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return nil
}
