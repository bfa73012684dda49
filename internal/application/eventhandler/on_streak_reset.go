package eventhandler

import (
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON STREAK RESET HANDLER
// A missed or unfinished week reset the streak on rollover. The reset is
// detected lazily, on the first completion of a later week, so the event
// fires at that completion rather than at the week boundary.
// ══════════════════════════════════════════════════════════════════════════════

// OnStreakResetHandler reacts to StreakResetEvent.
type OnStreakResetHandler struct {
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewOnStreakResetHandler creates a new OnStreakResetHandler.
func NewOnStreakResetHandler(log *logger.Logger, metrics *observability.Metrics) *OnStreakResetHandler {
	return &OnStreakResetHandler{log: log, metrics: metrics}
}

// Handle implements shared.EventHandler.
func (h *OnStreakResetHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.StreakResetEvent)
	if !ok {
		h.log.Warn("unexpected event type",
			logger.F("handler", "on_streak_reset"), logger.F("event_type", string(event.EventType())))
		return nil
	}

	h.log.Info("streak reset",
		logger.F("user_id", e.UserID),
		logger.F("previous_streak", e.PreviousStreak))

	if h.metrics != nil {
		h.metrics.StreakResetsTotal.Inc()
	}
	return nil
}

// Subscribe registers the handler on the bus.
func (h *OnStreakResetHandler) Subscribe(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventStreakReset, h.Handle)
}
