package eventhandler

import (
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON BADGE EARNED HANDLER
// A badge tier was awarded for the first time. Badges are permanent and
// unique per (user, level), so this fires at most once per tier per user.
// ══════════════════════════════════════════════════════════════════════════════

// OnBadgeEarnedHandler reacts to BadgeEarnedEvent.
type OnBadgeEarnedHandler struct {
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewOnBadgeEarnedHandler creates a new OnBadgeEarnedHandler.
func NewOnBadgeEarnedHandler(log *logger.Logger, metrics *observability.Metrics) *OnBadgeEarnedHandler {
	return &OnBadgeEarnedHandler{log: log, metrics: metrics}
}

// Handle implements shared.EventHandler.
func (h *OnBadgeEarnedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.BadgeEarnedEvent)
	if !ok {
		h.log.Warn("unexpected event type",
			logger.F("handler", "on_badge_earned"), logger.F("event_type", string(event.EventType())))
		return nil
	}

	h.log.Info("badge earned",
		logger.F("user_id", e.UserID),
		logger.F("level", e.Level),
		logger.F("streak_when_earned", e.StreakWhenEarned))

	if h.metrics != nil {
		h.metrics.BadgesAwardedTotal.WithLabelValues(e.Level).Inc()
	}
	return nil
}

// Subscribe registers the handler on the bus.
func (h *OnBadgeEarnedHandler) Subscribe(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventBadgeEarned, h.Handle)
}
