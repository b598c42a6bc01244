// Package nextrun computes when a schedule should fire next.
package nextrun

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/postflow-ai/postflow/internal/domain/models"
)

var (
	ErrInvalidRule  = errors.New("invalid repeat rule")
	ErrPastSchedule = errors.New("scheduled time is not in the future")
	ErrNoValidRun   = errors.New("no valid run found within 7 days")
)

// scanDays is how far ahead a recurring rule is searched. Offset 7 lands on
// today's weekday next week, so any non-empty weekday set matches.
const scanDays = 7

// Spec is everything needed to compute a schedule's next run.
type Spec struct {
	Type        string
	ScheduledAt *time.Time
	Rule        *models.RepeatRule
	Timezone    string
}

// RandSource draws integers in [0, n).
type RandSource interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Calculator is safe for concurrent use when its RandSource is.
type Calculator struct {
	rand RandSource
}

// NewCalculator uses the process-wide generator when r is nil.
func NewCalculator(r RandSource) *Calculator {
	if r == nil {
		r = globalRand{}
	}
	return &Calculator{rand: r}
}

// NextRun returns the first run strictly after ref.
func (c *Calculator) NextRun(spec Spec, ref time.Time) (time.Time, error) {
	if err := Validate(spec); err != nil {
		return time.Time{}, err
	}

	switch spec.Type {
	case models.ScheduleTypeOneTime:
		if !spec.ScheduledAt.After(ref) {
			return time.Time{}, ErrPastSchedule
		}
		return *spec.ScheduledAt, nil

	case models.ScheduleTypeRecurring:
		loc, err := location(spec)
		if err != nil {
			return time.Time{}, err
		}
		return nextRecurring(spec.Rule, ref, loc)

	case models.ScheduleTypeRandom:
		loc, err := location(spec)
		if err != nil {
			return time.Time{}, err
		}
		return c.nextRandom(spec.Rule, ref, loc), nil
	}

	return time.Time{}, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidRule, spec.Type)
}

// Following is used after a run: one-time schedules have no following run
// and yield nil.
func (c *Calculator) Following(spec Spec, ref time.Time) (*time.Time, error) {
	if spec.Type == models.ScheduleTypeOneTime {
		return nil, nil
	}
	next, err := c.NextRun(spec, ref)
	if err != nil {
		return nil, err
	}
	return &next, nil
}

func nextRecurring(rule *models.RepeatRule, ref time.Time, loc *time.Location) (time.Time, error) {
	hour, minute := parseClock(rule.Time)

	allowed := make(map[time.Weekday]bool, len(rule.Weekdays))
	for _, d := range rule.Weekdays {
		allowed[time.Weekday(d)] = true
	}

	local := ref.In(loc)
	for offset := 0; offset <= scanDays; offset++ {
		candidate := time.Date(local.Year(), local.Month(), local.Day()+offset, hour, minute, 0, 0, loc)
		if !allowed[candidate.Weekday()] {
			continue
		}
		if candidate.After(ref) {
			return candidate, nil
		}
	}

	return time.Time{}, ErrNoValidRun
}

func (c *Calculator) nextRandom(rule *models.RepeatRule, ref time.Time, loc *time.Location) time.Time {
	span := rule.MaxInterval - rule.MinInterval + 1
	minutes := rule.MinInterval + c.rand.IntN(span)
	next := ref.Add(time.Duration(minutes) * time.Minute)

	if rule.Window == nil {
		return next
	}
	return clampToWindow(next, rule.Window, loc)
}

// clampToWindow keeps t when it falls inside the daily window, otherwise
// moves it to the next window opening.
func clampToWindow(t time.Time, w *models.TimeWindow, loc *time.Location) time.Time {
	local := t.In(loc)
	startH, startM := parseClock(w.Start)
	endH, endM := parseClock(w.End)

	y, m, d := local.Date()
	start := time.Date(y, m, d, startH, startM, 0, 0, loc)
	end := time.Date(y, m, d, endH, endM, 0, 0, loc)

	if end.Before(start) {
		// overnight: [start, midnight) and [midnight, end]
		if !local.Before(start) || !local.After(end) {
			return local
		}
		return start
	}

	switch {
	case local.Before(start):
		return start
	case local.After(end):
		return time.Date(y, m, d+1, startH, startM, 0, 0, loc)
	default:
		return local
	}
}

func location(spec Spec) (*time.Location, error) {
	name := spec.Timezone
	if spec.Rule != nil && spec.Rule.Timezone != "" {
		name = spec.Rule.Timezone
	}
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidRule, name)
	}
	return loc, nil
}

// parseClock expects a value already matched against the HH:mm pattern.
func parseClock(s string) (hour, minute int) {
	h, m, _ := strings.Cut(s, ":")
	hour, _ = strconv.Atoi(h)
	minute, _ = strconv.Atoi(m)
	return hour, minute
}
