// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the engine.
const (
	// Engagement events
	EventLessonCounted EventType = "engagement.lesson_counted"

	// Streak events
	EventWeeklyGoalMet  EventType = "streak.weekly_goal_met"
	EventStreakExtended EventType = "streak.extended"
	EventStreakReset    EventType = "streak.reset"

	// Badge events
	EventBadgeEarned EventType = "badge.earned"

	// Ledger events
	EventPointsAwarded EventType = "ledger.points_awarded"

	// System events
	EventLedgerDrift EventType = "system.ledger_drift"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Engagement Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonCountedEvent is emitted when a non-duplicate completion increments
// the weekly counter.
type LessonCountedEvent struct {
	BaseEvent
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	LessonNumber int       `json:"lesson_number"`
	WeekStart    time.Time `json:"week_start"`
	WeekLessons  int       `json:"week_lessons"`
}

// Payload implements Event interface.
func (e LessonCountedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"course_id":     e.CourseID,
		"lesson_number": e.LessonNumber,
		"week_start":    e.WeekStart.Format(time.RFC3339),
		"week_lessons":  e.WeekLessons,
	}
}

// NewLessonCountedEvent creates a new LessonCountedEvent.
func NewLessonCountedEvent(userID, courseID string, lessonNumber int, weekStart time.Time, weekLessons int) LessonCountedEvent {
	return LessonCountedEvent{
		BaseEvent:    NewBaseEvent(EventLessonCounted, userID),
		UserID:       userID,
		CourseID:     courseID,
		LessonNumber: lessonNumber,
		WeekStart:    weekStart,
		WeekLessons:  weekLessons,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// WeeklyGoalMetEvent is emitted at the exact lesson that crosses the weekly goal.
type WeeklyGoalMetEvent struct {
	BaseEvent
	UserID        string    `json:"user_id"`
	WeekStart     time.Time `json:"week_start"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
}

// Payload implements Event interface.
func (e WeeklyGoalMetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"week_start":     e.WeekStart.Format(time.RFC3339),
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
	}
}

// NewWeeklyGoalMetEvent creates a new WeeklyGoalMetEvent.
func NewWeeklyGoalMetEvent(userID string, weekStart time.Time, current, longest int) WeeklyGoalMetEvent {
	return WeeklyGoalMetEvent{
		BaseEvent:     NewBaseEvent(EventWeeklyGoalMet, userID),
		UserID:        userID,
		WeekStart:     weekStart,
		CurrentStreak: current,
		LongestStreak: longest,
	}
}

// StreakExtendedEvent is emitted when the completed week extends the streak
// by one. It always accompanies WeeklyGoalMetEvent: the streak grows exactly
// when the goal is crossed.
type StreakExtendedEvent struct {
	BaseEvent
	UserID        string    `json:"user_id"`
	WeekStart     time.Time `json:"week_start"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakExtendedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"week_start":     e.WeekStart.Format(time.RFC3339),
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
	}
}

// NewStreakExtendedEvent creates a new StreakExtendedEvent.
func NewStreakExtendedEvent(userID string, weekStart time.Time, current, longest int) StreakExtendedEvent {
	return StreakExtendedEvent{
		BaseEvent:     NewBaseEvent(EventStreakExtended, userID),
		UserID:        userID,
		WeekStart:     weekStart,
		CurrentStreak: current,
		LongestStreak: longest,
	}
}

// StreakResetEvent is emitted on rollover when a missed week resets the streak.
type StreakResetEvent struct {
	BaseEvent
	UserID         string    `json:"user_id"`
	PreviousStreak int       `json:"previous_streak"`
	MissedWeek     time.Time `json:"missed_week"`
}

// Payload implements Event interface.
func (e StreakResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"missed_week":     e.MissedWeek.Format(time.RFC3339),
	}
}

// NewStreakResetEvent creates a new StreakResetEvent.
func NewStreakResetEvent(userID string, previousStreak int, missedWeek time.Time) StreakResetEvent {
	return StreakResetEvent{
		BaseEvent:      NewBaseEvent(EventStreakReset, userID),
		UserID:         userID,
		PreviousStreak: previousStreak,
		MissedWeek:     missedWeek,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeEarnedEvent is emitted when a badge tier is awarded for the first time.
type BadgeEarnedEvent struct {
	BaseEvent
	UserID           string `json:"user_id"`
	Level            string `json:"level"`
	StreakWhenEarned int    `json:"streak_when_earned"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":            e.UserID,
		"level":              e.Level,
		"streak_when_earned": e.StreakWhenEarned,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent.
func NewBadgeEarnedEvent(userID, level string, streakWhenEarned int) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent:        NewBaseEvent(EventBadgeEarned, userID),
		UserID:           userID,
		Level:            level,
		StreakWhenEarned: streakWhenEarned,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsAwardedEvent is emitted for every ledger append.
type PointsAwardedEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	Points      int    `json:"points"`
	TxType      string `json:"tx_type"`
	Reason      string `json:"reason"`
	TotalPoints int    `json:"total_points"`
}

// Payload implements Event interface.
func (e PointsAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"points":       e.Points,
		"tx_type":      e.TxType,
		"reason":       e.Reason,
		"total_points": e.TotalPoints,
	}
}

// NewPointsAwardedEvent creates a new PointsAwardedEvent.
func NewPointsAwardedEvent(userID string, points int, txType, reason string, totalPoints int) PointsAwardedEvent {
	return PointsAwardedEvent{
		BaseEvent:   NewBaseEvent(EventPointsAwarded, userID),
		UserID:      userID,
		Points:      points,
		TxType:      txType,
		Reason:      reason,
		TotalPoints: totalPoints,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// LedgerDriftEvent is emitted by the reconciliation job when the cached total
// diverges from the ledger sum.
type LedgerDriftEvent struct {
	BaseEvent
	UserID      string `json:"user_id"`
	CachedTotal int    `json:"cached_total"`
	LedgerTotal int    `json:"ledger_total"`
}

// Payload implements Event interface.
func (e LedgerDriftEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":      e.UserID,
		"cached_total": e.CachedTotal,
		"ledger_total": e.LedgerTotal,
	}
}

// NewLedgerDriftEvent creates a new LedgerDriftEvent.
func NewLedgerDriftEvent(userID string, cachedTotal, ledgerTotal int) LedgerDriftEvent {
	return LedgerDriftEvent{
		BaseEvent:   NewBaseEvent(EventLedgerDrift, userID),
		UserID:      userID,
		CachedTotal: cachedTotal,
		LedgerTotal: ledgerTotal,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
