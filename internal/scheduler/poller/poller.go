package poller

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/postflow-ai/postflow/internal/scheduler/store"
	"github.com/rs/zerolog/log"
)

const DefaultBatchSize = 10

// Poller reads due schedules. It never claims rows: overlapping pollers
// may see the same schedule.
type Poller struct {
	store store.ScheduleStore
	now   func() time.Time

	pollCount   atomic.Int64
	errorCount  atomic.Int64
	lastBatch   atomic.Int64
	lastPollAt  atomic.Value // time.Time
	lastPollDur atomic.Int64 // milliseconds
}

func NewPoller(scheduleStore store.ScheduleStore, now func() time.Time) *Poller {
	if now == nil {
		now = time.Now
	}
	p := &Poller{
		store: scheduleStore,
		now:   now,
	}
	p.lastPollAt.Store(time.Time{})
	return p
}

// FetchDueBatch returns at most limit active schedules whose next run is
// not in the future, oldest first.
func (p *Poller) FetchDueBatch(ctx context.Context, limit int) ([]*store.Schedule, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}

	start := time.Now()
	p.pollCount.Add(1)

	schedules, err := p.store.GetDue(ctx, p.now(), limit)
	p.lastPollAt.Store(time.Now())
	p.lastPollDur.Store(time.Since(start).Milliseconds())

	if err != nil {
		p.errorCount.Add(1)
		return nil, fmt.Errorf("failed to fetch due schedules: %w", err)
	}

	p.lastBatch.Store(int64(len(schedules)))

	if len(schedules) > 0 {
		log.Debug().
			Int("due", len(schedules)).
			Int("limit", limit).
			Dur("duration", time.Since(start)).
			Msg("Fetched due schedules")
	}

	return schedules, nil
}

type Stats struct {
	PollCount     int64     `json:"poll_count"`
	ErrorCount    int64     `json:"error_count"`
	LastBatchSize int64     `json:"last_batch_size"`
	LastPollAt    time.Time `json:"last_poll_at"`
	LastPollDurMs int64     `json:"last_poll_duration_ms"`
}

func (p *Poller) Stats() Stats {
	return Stats{
		PollCount:     p.pollCount.Load(),
		ErrorCount:    p.errorCount.Load(),
		LastBatchSize: p.lastBatch.Load(),
		LastPollAt:    p.lastPollAt.Load().(time.Time),
		LastPollDurMs: p.lastPollDur.Load(),
	}
}
