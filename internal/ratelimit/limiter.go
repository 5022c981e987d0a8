// Package ratelimit limits request attempts per client key.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter reports whether one more attempt for key is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RateLimiter is a fixed-window limiter kept in process memory. All counters
// are reset together every window.
type RateLimiter struct {
	attempts map[string]int
	limit    int
	mutex    sync.Mutex
	window   time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rateLimiter := &RateLimiter{
		attempts: make(map[string]int),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	go rateLimiter.cleanup()
	return rateLimiter
}

// reset the attempts map every window duration
func (rateLimiter *RateLimiter) cleanup() {
	ticker := time.NewTicker(rateLimiter.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rateLimiter.mutex.Lock()
			rateLimiter.attempts = make(map[string]int)
			rateLimiter.mutex.Unlock()
		case <-rateLimiter.done:
			return
		}
	}
}

func (rateLimiter *RateLimiter) Allow(_ context.Context, key string) bool {
	rateLimiter.mutex.Lock()
	defer rateLimiter.mutex.Unlock()

	if rateLimiter.attempts[key] >= rateLimiter.limit {
		return false
	}
	rateLimiter.attempts[key]++
	return true
}

// Stop ends the reset goroutine. Allow keeps working but counters no longer
// reset.
func (rateLimiter *RateLimiter) Stop() {
	rateLimiter.stopOnce.Do(func() { close(rateLimiter.done) })
}
