package recovery

import (
	"context"
	"time"

	pkgmetrics "github.com/postflow-ai/postflow/internal/pkg/metrics"
	"github.com/postflow-ai/postflow/internal/scheduler/metrics"
	"github.com/postflow-ai/postflow/internal/scheduler/ticker"
	"github.com/rs/zerolog/log"
)

// maxCleanupBatches caps one run so a large backlog is spread over several
// intervals.
const maxCleanupBatches = 50

type AttemptPurger interface {
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
	CleanupBatchSize() int
}

// Cleanup enforces the execution attempt retention window.
type Cleanup struct {
	purger        AttemptPurger
	collector     *metrics.Collector
	retentionDays int
	interval      time.Duration
}

func NewCleanup(purger AttemptPurger, collector *metrics.Collector, retentionDays int, interval time.Duration) *Cleanup {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Cleanup{
		purger:        purger,
		collector:     collector,
		retentionDays: retentionDays,
		interval:      interval,
	}
}

func (c *Cleanup) Run(ctx context.Context) {
	t := ticker.Every(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			c.CleanupOnce(ctx)
		}
	}
}

// CleanupOnce deletes batches until one comes back short and returns the
// number of attempts removed.
func (c *Cleanup) CleanupOnce(ctx context.Context) int64 {
	batch := int64(c.purger.CleanupBatchSize())

	var total int64
	for i := 0; i < maxCleanupBatches; i++ {
		if ctx.Err() != nil {
			break
		}

		deleted, err := c.purger.CleanupOlderThan(ctx, c.retentionDays)
		if err != nil {
			log.Error().Err(err).Msg("Failed to cleanup old execution attempts")
			break
		}
		total += deleted

		if deleted < batch {
			break
		}
	}

	if total > 0 {
		pkgmetrics.ExecutionAttemptsPurged.Add(float64(total))
		if c.collector != nil {
			c.collector.IncPurged(total)
		}
		log.Info().
			Int64("deleted", total).
			Int("retention_days", c.retentionDays).
			Msg("Cleaned up old execution attempts")
	}
	return total
}
