// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/domain/streak"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STREAK STATS QUERY
// The read side of the engine: current week progress, streak counters,
// total points and earned badges for one user. Reads never write; the
// week rollover that the write side applies lazily is projected here.
// ══════════════════════════════════════════════════════════════════════════════

// GetStreakStatsQuery contains the parameters of a stats request.
type GetStreakStatsQuery struct {
	// UserID is the platform user ID (UUID).
	UserID string

	// At overrides "now" for the week projection (zero = current time).
	At time.Time

	// BypassCache forces a storage read.
	BypassCache bool
}

// Validate validates the query parameters.
func (q *GetStreakStatsQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	return nil
}

// BadgeDTO describes one earned badge.
type BadgeDTO struct {
	Level            string    `json:"level"`
	DisplayName      string    `json:"display_name"`
	Icon             string    `json:"icon"`
	StreakWhenEarned int       `json:"streak_when_earned"`
	EarnedAt         time.Time `json:"earned_at"`
}

// StreakStats is the read model returned to callers and stored in the
// stats cache. WeekStart pins the stats to a concrete week window so a
// cached entry from a finished week is never served as current.
type StreakStats struct {
	// UserID is the platform user ID.
	UserID string `json:"user_id"`

	// WeekStart is the start of the week the stats describe.
	WeekStart time.Time `json:"week_start"`

	// CurrentWeekLessons is the weekly counter across all courses.
	CurrentWeekLessons int `json:"current_week_lessons"`

	// WeekProgress is the "n/goal" progress string for UI rendering.
	WeekProgress string `json:"week_progress"`

	// GoalMet indicates the weekly goal is met in this week.
	GoalMet bool `json:"goal_met"`

	// CurrentStreak is the current streak in weeks.
	CurrentStreak int `json:"current_streak"`

	// LongestStreak is the best streak ever.
	LongestStreak int `json:"longest_streak"`

	// TotalPoints is the cached ledger total.
	TotalPoints int `json:"total_points"`

	// Badges are the earned badges, lowest tier first.
	Badges []BadgeDTO `json:"badges"`

	// GeneratedAt is when the stats were computed.
	GeneratedAt time.Time `json:"generated_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// StatsCache is a read-through cache for StreakStats. A miss is reported
// as shared.ErrNotFound. Any cache failure is absorbed by the handler;
// the cache only ever shortens the happy path.
type StatsCache interface {
	Get(ctx context.Context, userID shared.UserID) (*StreakStats, error)
	Set(ctx context.Context, userID shared.UserID, stats *StreakStats) error
}

// GetStreakStatsHandler handles the GetStreakStatsQuery.
type GetStreakStatsHandler struct {
	reader  streak.Reader
	weeks   streak.WeekCalculator
	clock   streak.Clock
	cache   StatsCache
	log     *logger.Logger
	metrics *observability.Metrics

	weeklyGoal int
}

// NewGetStreakStatsHandler creates a new GetStreakStatsHandler.
func NewGetStreakStatsHandler(
	reader streak.Reader,
	weeks streak.WeekCalculator,
	clock streak.Clock,
	cache StatsCache,
	log *logger.Logger,
	metrics *observability.Metrics,
	weeklyGoal int,
) *GetStreakStatsHandler {
	if clock == nil {
		clock = streak.SystemClock{}
	}
	if weeklyGoal <= 0 {
		weeklyGoal = 5
	}
	return &GetStreakStatsHandler{
		reader:     reader,
		weeks:      weeks,
		clock:      clock,
		cache:      cache,
		log:        log,
		metrics:    metrics,
		weeklyGoal: weeklyGoal,
	}
}

// Handle executes the query. An unknown user is not an error: the engine
// creates state on the first completion, so before that the user simply
// has empty stats.
func (h *GetStreakStatsHandler) Handle(ctx context.Context, q GetStreakStatsQuery) (*StreakStats, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	userID, _ := shared.NewUserID(q.UserID)

	at := q.At
	if at.IsZero() {
		at = h.clock.Now()
	}
	week := h.weeks.WeekOf(at)

	started := time.Now()

	if !q.BypassCache {
		if stats := h.fromCache(ctx, userID, week); stats != nil {
			h.observeDuration("cache", started)
			return stats, nil
		}
	}

	stats, err := h.build(ctx, userID, week)
	if err != nil {
		return nil, err
	}
	h.observeDuration("storage", started)

	if h.cache != nil {
		cacheErr := h.cache.Set(ctx, userID, stats)
		if cacheErr != nil {
			h.log.Warn("stats cache write failed",
				logger.F("user_id", userID.String()), logger.F("error", cacheErr.Error()))
		}
		h.countCacheOp("set", cacheErr == nil, false)
	}

	return stats, nil
}

// observeDuration records the query latency labelled by data source.
func (h *GetStreakStatsHandler) observeDuration(source string, started time.Time) {
	if h.metrics != nil {
		h.metrics.QueryDurationSeconds.WithLabelValues(source).Observe(time.Since(started).Seconds())
	}
}

// countCacheOp counts one stats cache operation.
func (h *GetStreakStatsHandler) countCacheOp(op string, ok, miss bool) {
	if h.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case miss:
		result = "miss"
	case op == "get" && ok:
		result = "hit"
	case !ok:
		result = "error"
	}
	h.metrics.CacheOpsTotal.WithLabelValues(op, result).Inc()
}

// fromCache returns cached stats if they exist and describe the current
// week. Stats cached in a previous week are stale even without writes,
// the week projection changes at the week boundary.
func (h *GetStreakStatsHandler) fromCache(ctx context.Context, userID shared.UserID, week streak.WeekWindow) *StreakStats {
	if h.cache == nil {
		return nil
	}

	stats, err := h.cache.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.countCacheOp("get", false, true)
		} else {
			h.log.Warn("stats cache read failed",
				logger.F("user_id", userID.String()), logger.F("error", err.Error()))
			h.countCacheOp("get", false, false)
		}
		return nil
	}
	// An entry pinned to a finished week reads as a miss
	if stats == nil || !stats.WeekStart.Equal(week.Start) {
		h.countCacheOp("get", false, true)
		return nil
	}
	h.countCacheOp("get", true, false)
	return stats
}

// build computes the stats from storage.
func (h *GetStreakStatsHandler) build(ctx context.Context, userID shared.UserID, week streak.WeekWindow) (*StreakStats, error) {
	stats := &StreakStats{
		UserID:      userID.String(),
		WeekStart:   week.Start,
		Badges:      []BadgeDTO{},
		GeneratedAt: h.clock.Now(),
	}

	us, err := h.reader.GetStreak(ctx, userID)
	switch {
	case err == nil:
		lessons, goalMet, current := us.ProjectedForWeek(week)
		stats.CurrentWeekLessons = lessons
		stats.GoalMet = goalMet
		stats.CurrentStreak = current
		stats.LongestStreak = us.LongestStreak
		stats.TotalPoints = us.TotalPoints.Int()
	case errors.Is(err, shared.ErrNotFound):
		// No completions yet, empty stats.
	default:
		return nil, err
	}

	stats.WeekProgress = fmt.Sprintf("%d/%d", stats.CurrentWeekLessons, h.weeklyGoal)

	badges, err := h.reader.ListBadges(ctx, userID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	for _, b := range badges {
		stats.Badges = append(stats.Badges, BadgeDTO{
			Level:            b.Level.String(),
			DisplayName:      b.Meta.DisplayName,
			Icon:             b.Meta.Icon,
			StreakWhenEarned: b.StreakWhenEarned,
			EarnedAt:         b.EarnedAt,
		})
	}

	return stats, nil
}
