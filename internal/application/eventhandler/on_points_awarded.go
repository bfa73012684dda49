package eventhandler

import (
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON POINTS AWARDED HANDLER
// Every ledger append emits one of these. The handler keeps the points
// counter per transaction type; the ledger itself stays the source of
// truth for balances.
// ══════════════════════════════════════════════════════════════════════════════

// OnPointsAwardedHandler reacts to PointsAwardedEvent.
type OnPointsAwardedHandler struct {
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewOnPointsAwardedHandler creates a new OnPointsAwardedHandler.
func NewOnPointsAwardedHandler(log *logger.Logger, metrics *observability.Metrics) *OnPointsAwardedHandler {
	return &OnPointsAwardedHandler{log: log, metrics: metrics}
}

// Handle implements shared.EventHandler.
func (h *OnPointsAwardedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.PointsAwardedEvent)
	if !ok {
		h.log.Warn("unexpected event type",
			logger.F("handler", "on_points_awarded"), logger.F("event_type", string(event.EventType())))
		return nil
	}

	h.log.Debug("points awarded",
		logger.F("user_id", e.UserID),
		logger.F("points", e.Points),
		logger.F("tx_type", e.TxType),
		logger.F("total_points", e.TotalPoints))

	if h.metrics != nil {
		h.metrics.PointsAwardedTotal.WithLabelValues(e.TxType).Add(float64(e.Points))
	}
	return nil
}

// Subscribe registers the handler on the bus.
func (h *OnPointsAwardedHandler) Subscribe(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventPointsAwarded, h.Handle)
}
