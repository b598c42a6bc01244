// Package leader keeps one active poller per deployment in the common case.
// It is not a correctness guarantee: a paused leader can overlap with its
// successor, and the pipeline tolerates that.
package leader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Locker is the lock primitive the election runs on. *redis.Client from
// internal/pkg/redis implements it.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ExtendLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

type Election struct {
	locker   Locker
	key      string
	identity string
	ttl      time.Duration
	isLeader atomic.Bool
}

func NewElection(locker Locker, key string, ttl time.Duration) *Election {
	return &Election{
		locker:   locker,
		key:      key,
		identity: uuid.New().String(),
		ttl:      ttl,
	}
}

func (e *Election) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := e.locker.AcquireLock(ctx, e.key, e.identity, e.ttl)
	if err != nil {
		return false, err
	}

	if acquired {
		e.isLeader.Store(true)
		log.Info().
			Str("identity", e.identity).
			Str("key", e.key).
			Msg("Leadership acquired")
	}

	return acquired, nil
}

// Extend refreshes the lock. It returns false, and drops leadership, when
// the lock was lost or could not be refreshed.
func (e *Election) Extend(ctx context.Context) bool {
	if !e.isLeader.Load() {
		return false
	}

	extended, err := e.locker.ExtendLock(ctx, e.key, e.identity, e.ttl)
	if err != nil {
		log.Error().Err(err).Msg("Failed to extend leadership")
		e.isLeader.Store(false)
		return false
	}

	if !extended {
		log.Warn().Msg("Lost leadership (lock expired)")
		e.isLeader.Store(false)
		return false
	}

	return true
}

func (e *Election) Release(ctx context.Context) error {
	if !e.isLeader.Load() {
		return nil
	}

	err := e.locker.ReleaseLock(ctx, e.key, e.identity)
	e.isLeader.Store(false)

	if err != nil {
		log.Error().Err(err).Msg("Failed to release leadership")
		return err
	}

	log.Info().Str("identity", e.identity).Msg("Leadership released")
	return nil
}

func (e *Election) IsLeader() bool {
	return e.isLeader.Load()
}

func (e *Election) Identity() string {
	return e.identity
}

func (e *Election) TTL() time.Duration {
	return e.ttl
}
