package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter implements distributed rate limiting using Redis sorted
// sets with a sliding window: each allowed delivery is stored as a member
// scored by its timestamp, so the limit holds across all delivery instances
// sharing the Redis.
//
// Algorithm (atomic via Lua):
//  1. Remove entries older than the window
//  2. Count remaining entries
//  3. If count < limit, add new entry and allow
//  4. Otherwise, reject
type RedisRateLimiter struct {
	client   *redis.Client
	config   RedisRateLimiterConfig
	fallback *RateLimiterManager
	logger   *slog.Logger
}

// RedisRateLimiterConfig holds configuration for the Redis rate limiter.
type RedisRateLimiterConfig struct {
	// Window is the sliding window size (default: 1 second).
	Window time.Duration
	// Limit is the number of deliveries allowed per endpoint per window.
	Limit int
}

// DefaultRedisRateLimiterConfig returns sensible defaults.
func DefaultRedisRateLimiterConfig() RedisRateLimiterConfig {
	return RedisRateLimiterConfig{
		Window: time.Second,
		Limit:  100,
	}
}

// NewRedisRateLimiter creates a Redis-backed rate limiter that falls back to
// in-memory limiting when Redis is unavailable.
func NewRedisRateLimiter(client *redis.Client, config RedisRateLimiterConfig, logger *slog.Logger) *RedisRateLimiter {
	if config.Window == 0 {
		config.Window = time.Second
	}
	if config.Limit == 0 {
		config.Limit = DefaultRedisRateLimiterConfig().Limit
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisRateLimiter{
		client:   client,
		config:   config,
		fallback: NewRateLimiterManager(DefaultRateLimiterConfig()),
		logger:   logger,
	}
}

// rateLimitScript atomically checks and updates the sliding window.
// Returns 1 if allowed, 0 if rate limited.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

-- Remove old entries outside the window
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

-- Count current entries
local count = redis.call('ZCARD', key)

if count < limit then
    -- Add new entry and set TTL
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window)
    return 1
else
    return 0
end
`)

// Allow reports whether a delivery to the endpoint may proceed now.
// Falls back to in-memory rate limiting if Redis is unavailable.
func (r *RedisRateLimiter) Allow(ctx context.Context, endpointID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s", endpointID)
	now := time.Now().UnixMilli()
	windowMs := r.config.Window.Milliseconds()
	member := fmt.Sprintf("%d:%d", now, time.Now().UnixNano()%1000000) // unique member

	result, err := rateLimitScript.Run(ctx, r.client, []string{key}, now, windowMs, r.config.Limit, member).Int()
	if err != nil {
		r.logger.Warn("redis rate limiter failed, using fallback",
			"error", err,
			"endpoint_id", endpointID,
		)
		return r.fallback.Allow(endpointID), nil
	}

	return result == 1, nil
}

// Close closes the Redis client connection.
func (r *RedisRateLimiter) Close() error {
	return r.client.Close()
}
