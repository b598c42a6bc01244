package nextrun

import (
	"fmt"

	"github.com/postflow-ai/postflow/internal/domain/models"
	"github.com/postflow-ai/postflow/internal/pkg/validator"
)

type recurringRule struct {
	Weekdays []int  `validate:"required,min=1,dive,min=0,max=6"`
	Time     string `validate:"required,hhmm"`
	Timezone string `validate:"tzname"`
}

type randomRule struct {
	MinInterval int    `validate:"gt=0"`
	MaxInterval int    `validate:"gtefield=MinInterval"`
	Timezone    string `validate:"tzname"`
	Window      *window
}

type window struct {
	Start string `validate:"required,hhmm"`
	End   string `validate:"required,hhmm"`
}

// Validate checks that spec carries every field its type needs. Failures
// wrap ErrInvalidRule.
func Validate(spec Spec) error {
	if spec.Timezone != "" {
		if err := validator.ValidateVar(spec.Timezone, "tzname"); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidRule, spec.Timezone)
		}
	}

	switch spec.Type {
	case models.ScheduleTypeOneTime:
		if spec.ScheduledAt == nil {
			return fmt.Errorf("%w: one-time schedule without scheduled_at", ErrInvalidRule)
		}
		return nil

	case models.ScheduleTypeRecurring:
		if spec.Rule == nil {
			return fmt.Errorf("%w: recurring schedule without repeat_rule", ErrInvalidRule)
		}
		return check(recurringRule{
			Weekdays: spec.Rule.Weekdays,
			Time:     spec.Rule.Time,
			Timezone: spec.Rule.Timezone,
		})

	case models.ScheduleTypeRandom:
		if spec.Rule == nil {
			return fmt.Errorf("%w: random schedule without repeat_rule", ErrInvalidRule)
		}
		r := randomRule{
			MinInterval: spec.Rule.MinInterval,
			MaxInterval: spec.Rule.MaxInterval,
			Timezone:    spec.Rule.Timezone,
		}
		if w := spec.Rule.Window; w != nil {
			r.Window = &window{Start: w.Start, End: w.End}
		}
		return check(r)
	}

	return fmt.Errorf("%w: unknown schedule type %q", ErrInvalidRule, spec.Type)
}

func check(rule interface{}) error {
	if err := validator.Validate(rule); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRule, validator.Summary(err))
	}
	return nil
}
