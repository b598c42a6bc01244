// Package metrics keeps an in-process view of the engine for the
// /scheduler/metrics endpoint. Prometheus series live in internal/pkg/metrics.
package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	// Counters
	cyclesTotal     atomic.Int64
	cyclesSkipped   atomic.Int64
	publishedTotal  atomic.Int64
	retryingTotal   atomic.Int64
	failedTotal     atomic.Int64
	deferredTotal   atomic.Int64
	repairedTotal   atomic.Int64
	purgedTotal     atomic.Int64
	cycleErrorTotal atomic.Int64

	// Gauges
	lastDue atomic.Int64

	// Timing
	lastCycleDuration atomic.Int64 // milliseconds
	avgCycleDuration  atomic.Int64 // milliseconds
	lastCycleAt       atomic.Int64 // unix seconds

	// State
	isLeader  atomic.Bool
	startedAt time.Time
	now       func() time.Time
}

func NewCollector(now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{
		startedAt: now(),
		now:       now,
	}
}

// Cycle is what the collector needs from a finished pipeline cycle.
type Cycle struct {
	Skipped   bool
	Failed    bool
	Due       int
	Published int
	Retrying  int
	Errored   int
	Deferred  int
	Duration  time.Duration
}

func (c *Collector) ObserveCycle(cycle Cycle) {
	if cycle.Skipped {
		c.cyclesSkipped.Add(1)
		return
	}

	c.cyclesTotal.Add(1)
	if cycle.Failed {
		c.cycleErrorTotal.Add(1)
	}
	c.lastDue.Store(int64(cycle.Due))
	c.publishedTotal.Add(int64(cycle.Published))
	c.retryingTotal.Add(int64(cycle.Retrying))
	c.failedTotal.Add(int64(cycle.Errored))
	c.deferredTotal.Add(int64(cycle.Deferred))
	c.lastCycleAt.Store(c.now().Unix())

	ms := cycle.Duration.Milliseconds()
	c.lastCycleDuration.Store(ms)

	// Simple moving average
	old := c.avgCycleDuration.Load()
	if old == 0 {
		c.avgCycleDuration.Store(ms)
	} else {
		c.avgCycleDuration.Store((old + ms) / 2)
	}
}

func (c *Collector) IncRepaired(n int64) {
	c.repairedTotal.Add(n)
}

func (c *Collector) IncPurged(n int64) {
	c.purgedTotal.Add(n)
}

func (c *Collector) SetLeader(isLeader bool) {
	c.isLeader.Store(isLeader)
}

type Snapshot struct {
	CyclesTotal       int64         `json:"cycles_total"`
	CyclesSkipped     int64         `json:"cycles_skipped"`
	CycleErrors       int64         `json:"cycle_errors"`
	PublishedTotal    int64         `json:"published_total"`
	RetryingTotal     int64         `json:"retrying_total"`
	FailedTotal       int64         `json:"failed_total"`
	DeferredTotal     int64         `json:"deferred_total"`
	RepairedTotal     int64         `json:"repaired_total"`
	PurgedTotal       int64         `json:"purged_total"`
	LastDue           int64         `json:"last_due"`
	LastCycleDuration int64         `json:"last_cycle_duration_ms"`
	AvgCycleDuration  int64         `json:"avg_cycle_duration_ms"`
	LastCycleAt       *time.Time    `json:"last_cycle_at,omitempty"`
	IsLeader          bool          `json:"is_leader"`
	Uptime            time.Duration `json:"uptime"`
}

func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		CyclesTotal:       c.cyclesTotal.Load(),
		CyclesSkipped:     c.cyclesSkipped.Load(),
		CycleErrors:       c.cycleErrorTotal.Load(),
		PublishedTotal:    c.publishedTotal.Load(),
		RetryingTotal:     c.retryingTotal.Load(),
		FailedTotal:       c.failedTotal.Load(),
		DeferredTotal:     c.deferredTotal.Load(),
		RepairedTotal:     c.repairedTotal.Load(),
		PurgedTotal:       c.purgedTotal.Load(),
		LastDue:           c.lastDue.Load(),
		LastCycleDuration: c.lastCycleDuration.Load(),
		AvgCycleDuration:  c.avgCycleDuration.Load(),
		IsLeader:          c.isLeader.Load(),
		Uptime:            c.now().Sub(c.startedAt),
	}
	if ts := c.lastCycleAt.Load(); ts > 0 {
		at := time.Unix(ts, 0).UTC()
		s.LastCycleAt = &at
	}
	return s
}

func (c *Collector) Reset() {
	c.cyclesTotal.Store(0)
	c.cyclesSkipped.Store(0)
	c.cycleErrorTotal.Store(0)
	c.publishedTotal.Store(0)
	c.retryingTotal.Store(0)
	c.failedTotal.Store(0)
	c.deferredTotal.Store(0)
	c.repairedTotal.Store(0)
	c.purgedTotal.Store(0)
}
