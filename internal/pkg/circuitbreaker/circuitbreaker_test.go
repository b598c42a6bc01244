package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var errBoom = errors.New("boom")

func newBreaker(clock *fakeClock) *CircuitBreaker {
	return New(Config{
		Name:             "api.example.com",
		FailureThreshold: 3,
		Timeout:          10 * time.Second,
		Interval:         time.Minute,
		Now:              clock.Now,
	})
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := newBreaker(clock)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := newBreaker(clock)

	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return errBoom })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return errBoom })

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().ConsecutiveFailures)
}

func TestHalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := newBreaker(clock)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(11 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	done, err := cb.Allow()
	require.NoError(t, err)

	_, err = cb.Allow()
	assert.ErrorIs(t, err, ErrTooManyRequest)

	done(true)
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := newBreaker(clock)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	clock.Advance(11 * time.Second)

	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.State())
}

func TestManagerReturnsOneBreakerPerName(t *testing.T) {
	m := NewManager(Config{FailureThreshold: 1})

	a := m.Get("a.example.com")
	assert.Same(t, a, m.Get("a.example.com"))
	assert.NotSame(t, a, m.Get("b.example.com"))

	_ = a.Execute(func() error { return errBoom })
	states := m.States()
	assert.Equal(t, StateOpen, states["a.example.com"])
	assert.Equal(t, StateClosed, states["b.example.com"])
}
