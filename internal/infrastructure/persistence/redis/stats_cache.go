package redis

import (
	"context"
	"errors"
	"time"

	"github.com/kurslab/kurslab-engagement/internal/application/query"
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATS CACHE
// Read-through cache for streak stats. Sits behind a circuit breaker so a
// struggling Redis degrades to storage reads instead of adding latency to
// every request. The write side invalidates after commit.
// ══════════════════════════════════════════════════════════════════════════════

// StatsCache implements query.StatsCache and the write side's invalidator.
type StatsCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
}

// NewStatsCache creates a new StatsCache. A cache miss is a normal outcome
// and must not count against the breaker.
func NewStatsCache(cache *Cache, onStateChange func(name string, from, to circuitbreaker.State)) *StatsCache {
	breaker := circuitbreaker.New(
		"redis-stats",
		circuitbreaker.WithFailureThreshold(5),
		circuitbreaker.WithSuccessThreshold(1),
		circuitbreaker.WithTimeout(15*time.Second),
		circuitbreaker.WithMaxHalfOpenRequests(2),
		circuitbreaker.WithOnStateChange(onStateChange),
		circuitbreaker.WithIsFailure(func(err error) bool {
			return err != nil && !errors.Is(err, ErrCacheMiss)
		}),
	)

	return &StatsCache{
		cache:   cache,
		breaker: breaker,
	}
}

// Get returns cached stats, shared.ErrNotFound on a miss.
// An open breaker also reads as a miss.
func (s *StatsCache) Get(ctx context.Context, userID shared.UserID) (*query.StreakStats, error) {
	var stats query.StreakStats

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Get(ctx, StatsKey(userID.String()), &stats)
	})
	if err != nil {
		if errors.Is(err, ErrCacheMiss) || errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &stats, nil
}

// Set stores stats under the user's key.
func (s *StatsCache) Set(ctx context.Context, userID shared.UserID, stats *query.StreakStats) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, StatsKey(userID.String()), stats, TTLStatsCache)
	})
}

// Invalidate drops the user's cached stats. Called by the write side after
// a successful commit; the TTL covers the case where this call is lost.
func (s *StatsCache) Invalidate(ctx context.Context, userID shared.UserID) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Delete(ctx, StatsKey(userID.String()))
	})
}
