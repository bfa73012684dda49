package redis

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Fixed-window counter in Redis. The window lives server-side so the limit
// holds across API restarts and, if the API ever runs more than one
// replica, across replicas too.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter implements per-key request limiting over a fixed window.
type RateLimiter struct {
	cache  *Cache
	action string
	limit  int64
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit requests per window.
// The action string namespaces the keys so different endpoints can carry
// different limits over the same Redis.
func NewRateLimiter(cache *Cache, action string, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = TTLRateLimitWindow
	}
	return &RateLimiter{
		cache:  cache,
		action: action,
		limit:  int64(limit),
		window: window,
	}
}

// Allow reports whether the caller identified by key may proceed.
// The callers decide what to do on error; the HTTP layer fails open.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := rl.cache.IncrWithWindow(ctx, RateLimitKey(key, rl.action), rl.window)
	if err != nil {
		return false, err
	}
	return count <= rl.limit, nil
}
