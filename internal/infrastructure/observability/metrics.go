// Package observability provides Prometheus instrumentation for the
// engagement engine. Metrics are registered on an explicit registry so
// tests can assert on them without touching global state.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "kurslab"
	subsystem = "engagement"
)

// Metrics holds all Prometheus collectors of the engine.
type Metrics struct {
	// CompletionsTotal counts processed completion commands.
	// Labels: result (counted, duplicate, error)
	CompletionsTotal *prometheus.CounterVec

	// ConflictRetriesTotal counts write transactions retried after a
	// same-user serialization conflict.
	ConflictRetriesTotal prometheus.Counter

	// GoalsMetTotal counts weekly goal crossings.
	GoalsMetTotal prometheus.Counter

	// StreakResetsTotal counts streak resets on week rollover.
	StreakResetsTotal prometheus.Counter

	// BadgesAwardedTotal counts awarded badges.
	// Labels: level (bronze, silver, gold, platinum, diamond)
	BadgesAwardedTotal *prometheus.CounterVec

	// PointsAwardedTotal sums points appended to the ledger.
	// Labels: tx_type (per_lesson, goal_bonus, badge_bonus)
	PointsAwardedTotal *prometheus.CounterVec

	// LedgerDriftTotal counts users whose cached total diverged from
	// the ledger sum during reconciliation.
	LedgerDriftTotal prometheus.Counter

	// CommandDurationSeconds measures the record-completion pipeline,
	// including conflict retries.
	CommandDurationSeconds prometheus.Histogram

	// QueryDurationSeconds measures stats queries.
	// Labels: source (cache, storage)
	QueryDurationSeconds *prometheus.HistogramVec

	// CacheOpsTotal counts stats cache operations.
	// Labels: op (get, set, invalidate), result (hit, miss, error, ok)
	CacheOpsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CompletionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "completions_total",
				Help:      "Processed lesson completion commands by result",
			},
			[]string{"result"},
		),

		ConflictRetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "conflict_retries_total",
				Help:      "Write transactions retried after a serialization conflict",
			},
		),

		GoalsMetTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goals_met_total",
				Help:      "Weekly goal crossings",
			},
		),

		StreakResetsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "streak_resets_total",
				Help:      "Streak resets on week rollover",
			},
		),

		BadgesAwardedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "badges_awarded_total",
				Help:      "Badges awarded by tier level",
			},
			[]string{"level"},
		),

		PointsAwardedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "points_awarded_total",
				Help:      "Points appended to the ledger by transaction type",
			},
			[]string{"tx_type"},
		),

		LedgerDriftTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ledger_drift_total",
				Help:      "Users whose cached point total diverged from the ledger sum",
			},
		),

		CommandDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "command_duration_seconds",
				Help:      "Record-completion pipeline duration including retries",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),

		QueryDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "query_duration_seconds",
				Help:      "Streak stats query duration by data source",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"source"},
		),

		CacheOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cache_ops_total",
				Help:      "Stats cache operations by op and result",
			},
			[]string{"op", "result"},
		),
	}
}

// NewDefaultMetrics registers on the default Prometheus registry.
func NewDefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}
