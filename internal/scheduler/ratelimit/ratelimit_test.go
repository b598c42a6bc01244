package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLocalLimiterPerKey(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLocalLimiter(2, time.Minute, clock.Now)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "account:a"))
	assert.True(t, l.Allow(ctx, "account:a"))
	assert.False(t, l.Allow(ctx, "account:a"))

	// other accounts are unaffected
	assert.True(t, l.Allow(ctx, "account:b"))

	// one token refills every 30s
	clock.Advance(30 * time.Second)
	assert.True(t, l.Allow(ctx, "account:a"))
	assert.False(t, l.Allow(ctx, "account:a"))
}

func TestLocalLimiterSweepsIdleKeys(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLocalLimiter(1, time.Minute, clock.Now)
	ctx := context.Background()

	l.Allow(ctx, "a")
	l.Allow(ctx, "b")
	assert.Equal(t, 2, l.Len())

	clock.Advance(3 * time.Minute)
	l.Allow(ctx, "c")
	assert.Equal(t, 1, l.Len())
}

type staticLimiter bool

func (s staticLimiter) Allow(context.Context, string) bool { return bool(s) }

func TestCompositeLimiter(t *testing.T) {
	ctx := context.Background()
	assert.True(t, NewCompositeLimiter(staticLimiter(true), staticLimiter(true)).Allow(ctx, "k"))
	assert.False(t, NewCompositeLimiter(staticLimiter(true), staticLimiter(false)).Allow(ctx, "k"))
	assert.True(t, NewCompositeLimiter().Allow(ctx, "k"))
}

type countingLimiter struct {
	allow bool
	calls int
}

func (c *countingLimiter) Allow(context.Context, string) bool {
	c.calls++
	return c.allow
}

func TestCompositeLimiterStopsAtFirstDenial(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	local := NewLocalLimiter(1, time.Minute, clock.Now)
	shared := &countingLimiter{allow: true}
	l := NewCompositeLimiter(local, shared)
	ctx := context.Background()

	assert.True(t, l.Allow(ctx, "account:a"))
	assert.False(t, l.Allow(ctx, "account:a"))
	assert.Equal(t, 1, shared.calls)
}
