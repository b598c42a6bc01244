package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHHMM(t *testing.T) {
	valid := []string{"00:00", "9:05", "09:00", "19:59", "23:59"}
	for _, v := range valid {
		assert.NoError(t, ValidateVar(v, "hhmm"), v)
	}

	invalid := []string{"", "24:00", "12:60", "1200", "12:5", "ab:cd", " 09:00"}
	for _, v := range invalid {
		assert.Error(t, ValidateVar(v, "hhmm"), v)
	}
}

func TestTimezone(t *testing.T) {
	assert.NoError(t, ValidateVar("Asia/Tokyo", "tzname"))
	assert.NoError(t, ValidateVar("", "tzname"))
	assert.Error(t, ValidateVar("Mars/Olympus", "tzname"))
}

func TestFormatErrors(t *testing.T) {
	type window struct {
		StartTime string `validate:"required,hhmm"`
		MaxValue  int    `validate:"min=1"`
	}

	err := Validate(window{StartTime: "25:00"})
	require.Error(t, err)

	details := FormatErrors(err)
	require.Len(t, details, 2)
	assert.Equal(t, "start_time", details[0].Field)
	assert.Equal(t, "Invalid time (expected HH:mm, 24-hour)", details[0].Message)
	assert.Equal(t, "max_value", details[1].Field)

	assert.Contains(t, Summary(err), "start_time: Invalid time")
}

func TestSnakeCaseFieldNames(t *testing.T) {
	cases := map[string]string{
		"StartTime":  "start_time",
		"ScheduleID": "schedule_id",
		"HTTPAddr":   "http_addr",
		"Period":     "period",
	}
	for in, want := range cases {
		assert.Equal(t, want, toSnakeCase(in), in)
	}
}
