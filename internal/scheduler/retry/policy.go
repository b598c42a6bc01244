// Package retry decides whether a failed publish is attempted again.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Decision is the outcome of a retry check. Delay is zero when Retry is
// false.
type Decision struct {
	Retry bool
	Delay time.Duration
}

type Policy struct {
	Intervals  []time.Duration
	MaxRetries int
}

func DefaultPolicy() Policy {
	return Policy{
		Intervals:  []time.Duration{5 * time.Minute, 15 * time.Minute, 60 * time.Minute},
		MaxRetries: 3,
	}
}

// NewPolicy builds a policy from intervals given in minutes.
func NewPolicy(intervalMinutes []int, maxRetries int) Policy {
	intervals := make([]time.Duration, len(intervalMinutes))
	for i, m := range intervalMinutes {
		intervals[i] = time.Duration(m) * time.Minute
	}
	return Policy{Intervals: intervals, MaxRetries: maxRetries}
}

// Decide returns the delay configured for the given attempt number. When
// there are fewer intervals than MaxRetries the last one is reused.
func (p Policy) Decide(attempt int) Decision {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= p.MaxRetries || len(p.Intervals) == 0 {
		return Decision{}
	}
	idx := attempt
	if idx >= len(p.Intervals) {
		idx = len(p.Intervals) - 1
	}
	return Decision{Retry: true, Delay: p.Intervals[idx]}
}

// OnFailure is consulted after a retryable failure. retryCount is the
// number of failures before this one; the failure that brings the total to
// MaxRetries is terminal.
func (p Policy) OnFailure(retryCount int) Decision {
	if retryCount+1 >= p.MaxRetries {
		return Decision{}
	}
	return p.Decide(retryCount)
}

// Retryable is implemented by errors that know whether they are transient.
type Retryable interface {
	Retryable() bool
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so ShouldRetryError rejects it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// ShouldRetryError classifies a publish failure. Errors that carry no
// classification are treated as transient.
func ShouldRetryError(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	// network failures and anything unclassified
	return true
}
