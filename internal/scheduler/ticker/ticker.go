// Package ticker provides the timers that start scheduler cycles.
package ticker

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Ticker delivers ticks on C until Stop is called.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type intervalTicker struct {
	t *time.Ticker
}

// Every ticks at a fixed interval.
func Every(d time.Duration) Ticker {
	return &intervalTicker{t: time.NewTicker(d)}
}

func (t *intervalTicker) C() <-chan time.Time { return t.t.C }
func (t *intervalTicker) Stop()               { t.t.Stop() }

// CronTicker ticks on a cron schedule ("@every 1m", "*/5 * * * *", ...).
// Ticks are dropped while the previous one has not been received.
type CronTicker struct {
	cron *cron.Cron
	c    chan time.Time
	once sync.Once
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Parse validates a cron spec without starting anything.
func Parse(spec string) (cron.Schedule, error) {
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}
	return s, nil
}

func NewCronTicker(spec string) (*CronTicker, error) {
	schedule, err := Parse(spec)
	if err != nil {
		return nil, err
	}

	t := &CronTicker{
		cron: cron.New(cron.WithParser(parser)),
		c:    make(chan time.Time, 1),
	}
	t.cron.Schedule(schedule, cron.FuncJob(func() {
		select {
		case t.c <- time.Now():
		default:
		}
	}))
	t.cron.Start()
	return t, nil
}

func (t *CronTicker) C() <-chan time.Time { return t.c }

func (t *CronTicker) Stop() {
	t.once.Do(func() {
		<-t.cron.Stop().Done()
	})
}

// Manual is driven by the caller through Tick.
type Manual struct {
	c chan time.Time
}

func NewManual() *Manual {
	return &Manual{c: make(chan time.Time)}
}

func (m *Manual) C() <-chan time.Time { return m.c }
func (m *Manual) Stop()               {}

// Tick blocks until the tick is received.
func (m *Manual) Tick(at time.Time) {
	m.c <- at
}
