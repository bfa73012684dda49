// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kurslab/kurslab-engagement/internal/domain/enrollment"
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/domain/streak"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
	"github.com/kurslab/kurslab-engagement/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD LESSON COMPLETION COMMAND
// The single write entrypoint of the engine. Converts one confirmed
// lesson-completion fact into weekly progress, streak state, badges and
// ledger entries - atomically, exactly once per (user, course, lesson).
// ══════════════════════════════════════════════════════════════════════════════

// RecordCompletionCommand contains the data of one completion event.
// The enrollment system invokes this only after it has itself confirmed and
// persisted that the lesson is complete; the engine does not re-validate
// course enrollment or authorization.
type RecordCompletionCommand struct {
	// UserID is the platform user ID (UUID).
	UserID string

	// CourseID is the course ID (UUID).
	CourseID string

	// LessonNumber is the 1-based lesson position inside the course.
	LessonNumber int

	// LessonTitle is the lesson title, kept for the audit trail.
	LessonTitle string

	// OccurredAt is when the lesson was completed (defaults to now if zero).
	OccurredAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// BadgeInfo describes a badge in command/query results.
type BadgeInfo struct {
	Level            string    `json:"level"`
	DisplayName      string    `json:"display_name"`
	Icon             string    `json:"icon"`
	StreakWhenEarned int       `json:"streak_when_earned"`
	EarnedAt         time.Time `json:"earned_at"`
}

// StreakResult contains the outcome of recording a completion.
// The "just happened" markers (GoalJustMet, NewBadge, StreakReset) are
// computed inside the same transaction and carried per request - the
// notification layer diffs against nothing global.
type StreakResult struct {
	// UserID is the platform user ID.
	UserID string `json:"user_id"`

	// Duplicate indicates the lesson was already counted; nothing changed.
	Duplicate bool `json:"duplicate"`

	// WeekStart is the start of the week the event fell into.
	WeekStart time.Time `json:"week_start"`

	// WeekLessons is the weekly counter after the event (across all courses).
	WeekLessons int `json:"week_lessons"`

	// WeekProgress is the "n/goal" progress string for UI rendering.
	WeekProgress string `json:"week_progress"`

	// GoalMet indicates the weekly goal is met in the current week.
	GoalMet bool `json:"goal_met"`

	// GoalJustMet indicates this very lesson crossed the goal threshold.
	GoalJustMet bool `json:"goal_just_met"`

	// StreakReset indicates the rollover reset the streak to zero.
	StreakReset bool `json:"streak_reset"`

	// PreviousStreak is the streak before the reset (if StreakReset).
	PreviousStreak int `json:"previous_streak,omitempty"`

	// CurrentStreak is the streak after the event.
	CurrentStreak int `json:"current_streak"`

	// LongestStreak is the best streak ever.
	LongestStreak int `json:"longest_streak"`

	// PointsEarned is the total points awarded by this event.
	PointsEarned int `json:"points_earned"`

	// TotalPoints is the user's total points after the event.
	TotalPoints int `json:"total_points"`

	// NewBadge is set when this event awarded a badge.
	NewBadge *BadgeInfo `json:"new_badge,omitempty"`

	// RecordedAt is when the event was processed.
	RecordedAt time.Time `json:"recorded_at"`
}

// Validate validates the command.
func (c RecordCompletionCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if _, err := shared.NewCourseID(c.CourseID); err != nil {
		return err
	}
	if _, err := shared.NewLessonNumber(c.LessonNumber); err != nil {
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// StatsInvalidator invalidates cached read-side stats after a commit.
// Failures are logged and never surfaced - the cache is best-effort.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, userID shared.UserID) error
}

// RecordCompletionHandler handles the RecordCompletionCommand.
type RecordCompletionHandler struct {
	store     streak.Store
	reader    streak.Reader
	weeks     streak.WeekCalculator
	clock     streak.Clock
	publisher shared.EventPublisher
	cache     StatsInvalidator
	retrier   *retry.Retrier
	log       *logger.Logger
	metrics   *observability.Metrics

	weeklyGoal int
	points     streak.PointsPolicy
	tiers      streak.TierTable
}

// RecordCompletionHandlerConfig contains configuration for the handler.
type RecordCompletionHandlerConfig struct {
	WeeklyGoal   int
	Points       streak.PointsPolicy
	Tiers        streak.TierTable
	MaxConflicts int // bounded retries on same-user write conflicts
}

// DefaultRecordCompletionHandlerConfig returns default configuration.
func DefaultRecordCompletionHandlerConfig() RecordCompletionHandlerConfig {
	return RecordCompletionHandlerConfig{
		WeeklyGoal:   5,
		Points:       streak.DefaultPointsPolicy(),
		Tiers:        streak.DefaultTierTable(),
		MaxConflicts: 3,
	}
}

// NewRecordCompletionHandler creates a new RecordCompletionHandler.
func NewRecordCompletionHandler(
	store streak.Store,
	reader streak.Reader,
	weeks streak.WeekCalculator,
	clock streak.Clock,
	publisher shared.EventPublisher,
	cache StatsInvalidator,
	log *logger.Logger,
	metrics *observability.Metrics,
	cfg RecordCompletionHandlerConfig,
) *RecordCompletionHandler {
	if cfg.WeeklyGoal <= 0 {
		cfg = DefaultRecordCompletionHandlerConfig()
	}
	if clock == nil {
		clock = streak.SystemClock{}
	}

	retryOpts := []retry.Option{
		retry.WithMaxAttempts(cfg.MaxConflicts),
		retry.WithInitialDelay(20 * time.Millisecond),
		retry.WithMaxDelay(500 * time.Millisecond),
		retry.WithRetryIf(shared.IsConflictError),
	}
	if metrics != nil {
		retryOpts = append(retryOpts, retry.WithOnRetry(func(int, error, time.Duration) {
			metrics.ConflictRetriesTotal.Inc()
		}))
	}

	return &RecordCompletionHandler{
		store:      store,
		reader:     reader,
		weeks:      weeks,
		clock:      clock,
		publisher:  publisher,
		cache:      cache,
		retrier:    retry.New(retryOpts...),
		log:        log,
		metrics:    metrics,
		weeklyGoal: cfg.WeeklyGoal,
		points:     cfg.Points,
		tiers:      cfg.Tiers.Normalized(),
	}
}

// Handle executes the record completion command. The whole pipeline
// (idempotency mark, weekly counter, streak transition, badge award, ledger
// appends) runs inside one storage transaction; same-user conflicts are
// retried a bounded number of times before being surfaced.
func (h *RecordCompletionHandler) Handle(ctx context.Context, cmd RecordCompletionCommand) (*StreakResult, error) {
	userID, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, err
	}
	courseID, err := shared.NewCourseID(cmd.CourseID)
	if err != nil {
		return nil, err
	}
	lessonNumber, err := shared.NewLessonNumber(cmd.LessonNumber)
	if err != nil {
		return nil, err
	}

	occurredAt := cmd.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = h.clock.Now()
	}

	completion, err := enrollment.NewLessonCompletion(userID, courseID, lessonNumber, cmd.LessonTitle, occurredAt)
	if err != nil {
		return nil, err
	}

	week := h.weeks.WeekOf(occurredAt)

	var (
		result *StreakResult
		events []shared.Event
	)

	started := time.Now()
	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		result = nil
		events = nil
		txErr := h.store.InTx(ctx, func(tx streak.Tx) error {
			var innerErr error
			result, events, innerErr = h.apply(ctx, tx, completion, week)
			return innerErr
		})
		if shared.IsConflictError(txErr) {
			return retry.Retryable(txErr)
		}
		return txErr
	})
	if h.metrics != nil {
		h.metrics.CommandDurationSeconds.Observe(time.Since(started).Seconds())
		h.metrics.CompletionsTotal.WithLabelValues(completionResultLabel(result, err)).Inc()
	}
	if err != nil {
		return nil, err
	}

	// Duplicate: no mutation happened, report current stats unchanged.
	if result.Duplicate {
		h.fillCurrentStats(ctx, userID, week, result)
		return result, nil
	}

	// Post-commit: best-effort cache invalidation and event publishing.
	// Neither may fail the caller's primary operation.
	if h.cache != nil {
		cacheErr := h.cache.Invalidate(ctx, userID)
		if cacheErr != nil {
			h.log.Warn("stats cache invalidation failed",
				logger.F("user_id", userID.String()), logger.F("error", cacheErr.Error()))
		}
		if h.metrics != nil {
			h.metrics.CacheOpsTotal.WithLabelValues("invalidate", cacheOpResult(cacheErr)).Inc()
		}
	}
	if h.publisher != nil {
		for _, event := range events {
			if pubErr := h.publisher.Publish(event); pubErr != nil {
				h.log.Warn("event publish failed",
					logger.F("event_type", string(event.EventType())), logger.F("error", pubErr.Error()))
			}
		}
	}

	return result, nil
}

// apply runs the 6-step pipeline inside one transaction.
func (h *RecordCompletionHandler) apply(
	ctx context.Context,
	tx streak.Tx,
	completion *enrollment.LessonCompletion,
	week streak.WeekWindow,
) (*StreakResult, []shared.Event, error) {
	now := h.clock.Now()
	userID := completion.UserID

	result := &StreakResult{
		UserID:     userID.String(),
		WeekStart:  week.Start,
		RecordedAt: now,
	}

	// Step 1: idempotency guard. A duplicate short-circuits the pipeline
	// with zero side effects.
	inserted, err := tx.Enrollments().MarkCompleted(ctx, completion)
	if err != nil {
		return nil, nil, err
	}
	if !inserted {
		result.Duplicate = true
		return result, nil, nil
	}

	// Step 2: per-course weekly counter.
	if _, err := tx.WeeklyProgress().RecordLesson(ctx, userID, completion.CourseID, week.Start, completion.CompletedAt); err != nil {
		return nil, nil, err
	}

	// Step 3: streak state machine under the row lock.
	us, err := tx.Streaks().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	outcome := us.ApplyCompletion(week, h.weeklyGoal, now)

	var events []shared.Event
	events = append(events, shared.NewLessonCountedEvent(
		userID.String(), completion.CourseID.String(), completion.LessonNumber.Int(),
		week.Start, outcome.WeekLessons))

	if outcome.StreakReset {
		events = append(events, shared.NewStreakResetEvent(userID.String(), outcome.PreviousStreak, us.CurrentWeekStart))
	}

	// Step 4: per-lesson points.
	earned := h.points.PerLesson
	reason := fmt.Sprintf("lesson %d of course %s", completion.LessonNumber.Int(), completion.CourseID.String())
	if err := h.appendPoints(ctx, tx, us, earned, streak.TxPerLesson, reason, now, &events); err != nil {
		return nil, nil, err
	}

	// Step 5: goal bonus, exactly once per week.
	if outcome.GoalJustMet {
		reason := fmt.Sprintf("weekly goal met, streak %d", outcome.CurrentStreak)
		if err := h.appendPoints(ctx, tx, us, h.points.GoalBonus, streak.TxGoalBonus, reason, now, &events); err != nil {
			return nil, nil, err
		}
		earned += h.points.GoalBonus
		events = append(events, shared.NewWeeklyGoalMetEvent(
			userID.String(), week.Start, outcome.CurrentStreak, outcome.LongestStreak))
		events = append(events, shared.NewStreakExtendedEvent(
			userID.String(), week.Start, outcome.CurrentStreak, outcome.LongestStreak))
	}

	// Step 6: badge evaluation. At most one badge per event; skipped tiers
	// backfill in ascending order on subsequent events.
	badge, bonus, err := h.evaluateBadge(ctx, tx, us, now, &events)
	if err != nil {
		return nil, nil, err
	}
	if badge != nil {
		earned += bonus
		events = append(events, shared.NewBadgeEarnedEvent(userID.String(), badge.Level.String(), badge.StreakWhenEarned))
		result.NewBadge = &BadgeInfo{
			Level:            badge.Level.String(),
			DisplayName:      badge.Meta.DisplayName,
			Icon:             badge.Meta.Icon,
			StreakWhenEarned: badge.StreakWhenEarned,
			EarnedAt:         badge.EarnedAt,
		}
	}

	if err := us.Validate(h.weeklyGoal); err != nil {
		return nil, nil, err
	}
	if err := tx.Streaks().Save(ctx, us); err != nil {
		return nil, nil, err
	}

	result.WeekLessons = outcome.WeekLessons
	result.WeekProgress = fmt.Sprintf("%d/%d", outcome.WeekLessons, h.weeklyGoal)
	result.GoalMet = outcome.GoalMet
	result.GoalJustMet = outcome.GoalJustMet
	result.StreakReset = outcome.StreakReset
	result.PreviousStreak = outcome.PreviousStreak
	result.CurrentStreak = outcome.CurrentStreak
	result.LongestStreak = outcome.LongestStreak
	result.PointsEarned = earned.Int()
	result.TotalPoints = us.TotalPoints.Int()

	return result, events, nil
}

// appendPoints appends one ledger entry and bumps the cached total within
// the same transaction.
func (h *RecordCompletionHandler) appendPoints(
	ctx context.Context,
	tx streak.Tx,
	us *streak.UserStreak,
	amount shared.Points,
	txType streak.TransactionType,
	reason string,
	now time.Time,
	events *[]shared.Event,
) error {
	entry, err := streak.NewPointsTransaction(uuid.NewString(), us.UserID, amount, txType, reason, now)
	if err != nil {
		return err
	}
	if err := tx.Ledger().Append(ctx, entry); err != nil {
		return err
	}
	us.AddPoints(amount, now)
	*events = append(*events, shared.NewPointsAwardedEvent(
		us.UserID.String(), amount.Int(), txType.String(), reason, us.TotalPoints.Int()))
	return nil
}

// evaluateBadge awards the lowest unearned tier reached by the streak.
func (h *RecordCompletionHandler) evaluateBadge(
	ctx context.Context,
	tx streak.Tx,
	us *streak.UserStreak,
	now time.Time,
	events *[]shared.Event,
) (*streak.Badge, shared.Points, error) {
	earned, err := tx.Badges().EarnedLevels(ctx, us.UserID)
	if err != nil {
		return nil, 0, err
	}

	tier, ok := h.tiers.NextUnearned(us.CurrentStreak, earned)
	if !ok {
		return nil, 0, nil
	}

	badge, err := streak.NewBadge(us.UserID, tier.Level, us.CurrentStreak, now)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Badges().Award(ctx, badge); err != nil {
		return nil, 0, err
	}

	reason := fmt.Sprintf("badge %s earned at streak %d", tier.Level, us.CurrentStreak)
	if err := h.appendPoints(ctx, tx, us, tier.Bonus, streak.TxBadgeBonus, reason, now, events); err != nil {
		return nil, 0, err
	}

	return badge, tier.Bonus, nil
}

// fillCurrentStats fills a duplicate result with the user's unchanged stats.
func (h *RecordCompletionHandler) fillCurrentStats(ctx context.Context, userID shared.UserID, week streak.WeekWindow, result *StreakResult) {
	us, err := h.reader.GetStreak(ctx, userID)
	if err != nil {
		// A duplicate implies the streak row exists; treat a miss as empty.
		us = streak.NewUserStreak(userID, result.RecordedAt)
	}

	lessons, goalMet, current := us.ProjectedForWeek(week)
	result.WeekLessons = lessons
	result.WeekProgress = fmt.Sprintf("%d/%d", lessons, h.weeklyGoal)
	result.GoalMet = goalMet
	result.CurrentStreak = current
	result.LongestStreak = us.LongestStreak
	result.TotalPoints = us.TotalPoints.Int()
}

func completionResultLabel(result *StreakResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case result.Duplicate:
		return "duplicate"
	default:
		return "counted"
	}
}

func cacheOpResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
