package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims entries older than the window, then admits the
// request only if fewer than limit remain. Members get a counter suffix so
// two requests in the same millisecond stay distinct.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)
	if current >= limit then
		return 0
	end

	local counter = redis.call('INCR', key .. ':counter')
	redis.call('ZADD', key, now, now .. ':' .. counter)
	local expire_seconds = math.ceil(window_ms / 1000)
	redis.call('EXPIRE', key, expire_seconds)
	redis.call('EXPIRE', key .. ':counter', expire_seconds)
	return 1
`)

// RedisLimiter is a sliding-window limiter shared by every instance that
// talks to the same Redis. If Redis cannot be reached the request is allowed.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
}

func NewRedisLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	allowed, err := l.allow(ctx, key)
	if err != nil {
		log.Printf("Rate limiter unavailable, allowing %s: %v", key, err)
		return true
	}
	return allowed
}

func (l *RedisLimiter) allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	res, err := slidingWindow.Run(
		ctx, l.client, []string{l.keyPrefix + key},
		now.UnixMilli(), now.Add(-l.window).UnixMilli(), l.limit, l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis script error: %w", err)
	}
	return res == 1, nil
}

// Reset clears the window for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	redisKey := l.keyPrefix + key
	return l.client.Del(ctx, redisKey, redisKey+":counter").Err()
}

// ConnectRedis opens a client for addr and checks it with a ping.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// New returns a Redis-backed limiter when client is set and an in-process
// one otherwise.
func New(client *redis.Client, keyPrefix string, limit int, window time.Duration) Limiter {
	if client == nil {
		return NewRateLimiter(limit, window)
	}
	return NewRedisLimiter(client, keyPrefix, limit, window)
}
