package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/postflow-ai/postflow/internal/pkg/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Client struct {
	*redis.Client
}

func NewClient(cfg *config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr()).Msg("Redis connected successfully")

	return &Client{client}, nil
}

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)

	// slidingWindowScript trims the window, checks the count and records the
	// hit in one round trip. Returns 1 when allowed.
	slidingWindowScript = redis.NewScript(`
		redis.call("zremrangebyscore", KEYS[1], "-inf", ARGV[1])
		local count = redis.call("zcard", KEYS[1])
		if count + 1 > tonumber(ARGV[3]) then
			return 0
		end
		redis.call("zadd", KEYS[1], ARGV[2], ARGV[4])
		redis.call("pexpire", KEYS[1], ARGV[5])
		return 1
	`)
)

// Leader election
func (c *Client) AcquireLock(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) ReleaseLock(ctx context.Context, key string, value string) error {
	return releaseScript.Run(ctx, c.Client, []string{key}, value).Err()
}

func (c *Client) ExtendLock(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	result, err := extendScript.Run(ctx, c.Client, []string{key}, value, ttl.Milliseconds()).Int()
	return result == 1, err
}

// SlidingWindowAllow records one hit under key if fewer than limit hits
// happened within window.
func (c *Client) SlidingWindowAllow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, error) {
	member := fmt.Sprintf("%d", now.UnixNano())
	start := now.Add(-window).UnixNano()

	result, err := slidingWindowScript.Run(ctx, c.Client, []string{key},
		start, now.UnixNano(), limit, member, (2 * window).Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}
