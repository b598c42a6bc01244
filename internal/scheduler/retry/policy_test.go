package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecideDefaults(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, Decision{Retry: true, Delay: 5 * time.Minute}, p.Decide(0))
	assert.Equal(t, Decision{Retry: true, Delay: 15 * time.Minute}, p.Decide(1))
	assert.Equal(t, Decision{Retry: true, Delay: 60 * time.Minute}, p.Decide(2))
	for n := 3; n < 10; n++ {
		assert.False(t, p.Decide(n).Retry, "attempt %d", n)
	}
}

func TestDecideReusesLastInterval(t *testing.T) {
	p := NewPolicy([]int{1, 2}, 4)

	assert.Equal(t, 2*time.Minute, p.Decide(2).Delay)
	assert.Equal(t, 2*time.Minute, p.Decide(3).Delay)
	assert.False(t, p.Decide(4).Retry)
}

func TestDecideWithoutIntervals(t *testing.T) {
	assert.False(t, NewPolicy(nil, 3).Decide(0).Retry)
}

func TestOnFailureSequence(t *testing.T) {
	p := DefaultPolicy()

	first := p.OnFailure(0)
	assert.Equal(t, Decision{Retry: true, Delay: 5 * time.Minute}, first)

	second := p.OnFailure(1)
	assert.Equal(t, Decision{Retry: true, Delay: 15 * time.Minute}, second)

	third := p.OnFailure(2)
	assert.False(t, third.Retry)
}

type statusErr struct{ retry bool }

func (e statusErr) Error() string   { return "status" }
func (e statusErr) Retryable() bool { return e.retry }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("publish: %w", context.DeadlineExceeded), true},
		{"retryable classified", statusErr{retry: true}, true},
		{"permanent classified", fmt.Errorf("wrapped: %w", statusErr{retry: false}), false},
		{"network", timeoutErr{}, true},
		{"permanent marker", Permanent(errors.New("account missing")), false},
		{"unknown", errors.New("something odd"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetryError(tt.err))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, RetryableStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 501} {
		assert.False(t, RetryableStatus(code), code)
	}
}

func TestPermanentUnwraps(t *testing.T) {
	base := errors.New("base")
	err := Permanent(base)
	assert.ErrorIs(t, err, base)
	assert.True(t, IsPermanent(fmt.Errorf("ctx: %w", err)))
	assert.NoError(t, Permanent(nil))
}
