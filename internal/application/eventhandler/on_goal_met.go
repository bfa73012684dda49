// Package eventhandler contains domain event handlers. They run after the
// write transaction has committed and must never fail the primary flow:
// every handler absorbs its own errors.
package eventhandler

import (
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
	"github.com/kurslab/kurslab-engagement/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON WEEKLY GOAL MET HANDLER
// The motivational high point of the week: the user crossed the weekly
// lesson goal and extended the streak. Downstream this drives the
// congratulation notification; here it drives the audit log and metrics.
// ══════════════════════════════════════════════════════════════════════════════

// OnGoalMetHandler reacts to WeeklyGoalMetEvent.
type OnGoalMetHandler struct {
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewOnGoalMetHandler creates a new OnGoalMetHandler.
func NewOnGoalMetHandler(log *logger.Logger, metrics *observability.Metrics) *OnGoalMetHandler {
	return &OnGoalMetHandler{log: log, metrics: metrics}
}

// Handle implements shared.EventHandler.
func (h *OnGoalMetHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.WeeklyGoalMetEvent)
	if !ok {
		h.log.Warn("unexpected event type",
			logger.F("handler", "on_goal_met"), logger.F("event_type", string(event.EventType())))
		return nil
	}

	h.log.Info("weekly goal met",
		logger.F("user_id", e.UserID),
		logger.F("week_start", timeutil.FormatDateStr(e.WeekStart)),
		logger.F("current_streak", e.CurrentStreak),
		logger.F("longest_streak", e.LongestStreak))

	if h.metrics != nil {
		h.metrics.GoalsMetTotal.Inc()
	}
	return nil
}

// Subscribe registers the handler on the bus.
func (h *OnGoalMetHandler) Subscribe(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventWeeklyGoalMet, h.Handle)
}
