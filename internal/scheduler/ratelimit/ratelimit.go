// Package ratelimit caps how often a single account publishes.
package ratelimit

import (
	"context"
	"sync"
	"time"

	pkgredis "github.com/postflow-ai/postflow/internal/pkg/redis"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// SlidingWindowLimiter is shared by every scheduler process through Redis.
type SlidingWindowLimiter struct {
	redis      *pkgredis.Client
	keyPrefix  string
	limit      int
	windowSize time.Duration
	now        func() time.Time
}

func NewSlidingWindowLimiter(redis *pkgredis.Client, keyPrefix string, limit int, windowSize time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		redis:      redis,
		keyPrefix:  keyPrefix,
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) bool {
	allowed, err := l.redis.SlidingWindowAllow(ctx, l.keyPrefix+":"+key, l.limit, l.windowSize, l.now())
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Rate limiter unavailable, allowing")
		return true
	}
	return allowed
}

// LocalLimiter is a per-process token bucket per key. Each key refills at
// limit per windowSize with a burst of limit.
type LocalLimiter struct {
	limit      int
	windowSize time.Duration
	now        func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(limit int, windowSize time.Duration, now func() time.Time) *LocalLimiter {
	if now == nil {
		now = time.Now
	}
	return &LocalLimiter{
		limit:      limit,
		windowSize: windowSize,
		now:        now,
		buckets:    make(map[string]*bucket),
		lastSweep:  now(),
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		every := rate.Every(l.windowSize / time.Duration(l.limit))
		b = &bucket{limiter: rate.NewLimiter(every, l.limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1)
}

// sweep drops buckets idle for two windows; a full bucket and a missing
// one behave the same.
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.windowSize*2 {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.windowSize*2 {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// CompositeLimiter allows only when every limiter allows.
type CompositeLimiter struct {
	limiters []Limiter
}

func NewCompositeLimiter(limiters ...Limiter) *CompositeLimiter {
	return &CompositeLimiter{limiters: limiters}
}

func (l *CompositeLimiter) Allow(ctx context.Context, key string) bool {
	for _, limiter := range l.limiters {
		if !limiter.Allow(ctx, key) {
			return false
		}
	}
	return true
}
