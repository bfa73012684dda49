// Package jobs contains the scheduled jobs of the engagement engine.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/domain/streak"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER RECONCILIATION JOB
// user_streaks.total_points is a cache of SUM(points) over the ledger;
// both are written in the same transaction, so they can only diverge
// through operator mistakes or bugs. This job walks all users and reports
// any divergence. It never repairs: the ledger is the source of truth and
// a drift means something wrote state outside the engine, which a human
// has to look at.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileLedgerJob verifies the cached point totals against the ledger.
type ReconcileLedgerJob struct {
	reader    streak.Reader
	ledger    streak.LedgerRepository
	publisher shared.EventPublisher
	metrics   *observability.Metrics
	log       *logger.Logger

	pageSize int
}

// ReconcileLedgerConfig contains configuration for the job.
type ReconcileLedgerConfig struct {
	// PageSize is how many users are checked per storage round trip.
	PageSize int
}

// DefaultReconcileLedgerConfig returns sensible defaults.
func DefaultReconcileLedgerConfig() ReconcileLedgerConfig {
	return ReconcileLedgerConfig{PageSize: 200}
}

// NewReconcileLedgerJob creates the reconciliation job.
func NewReconcileLedgerJob(
	reader streak.Reader,
	ledger streak.LedgerRepository,
	publisher shared.EventPublisher,
	metrics *observability.Metrics,
	log *logger.Logger,
	cfg ReconcileLedgerConfig,
) *ReconcileLedgerJob {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	return &ReconcileLedgerJob{
		reader:    reader,
		ledger:    ledger,
		publisher: publisher,
		metrics:   metrics,
		log:       log,
		pageSize:  cfg.PageSize,
	}
}

// Name implements scheduler.Job.
func (j *ReconcileLedgerJob) Name() string {
	return "reconcile_ledger"
}

// Description implements scheduler.Job.
func (j *ReconcileLedgerJob) Description() string {
	return "verifies cached point totals against the append-only ledger"
}

// Run implements scheduler.Job.
func (j *ReconcileLedgerJob) Run(ctx context.Context) error {
	var (
		checked int
		drifted int
		offset  int
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := j.reader.ListUserIDs(ctx, j.pageSize, offset)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		for _, userID := range ids {
			ok, err := j.checkUser(ctx, userID)
			if err != nil {
				// One broken user must not abort the whole sweep.
				j.log.Error("reconciliation check failed",
					logger.F("user_id", userID.String()), logger.Err(err))
				continue
			}
			checked++
			if !ok {
				drifted++
			}
		}

		offset += len(ids)
	}

	j.log.Info("ledger reconciliation finished",
		logger.F("users_checked", checked),
		logger.F("users_drifted", drifted))

	return nil
}

// checkUser compares one user's cached total with the ledger sum.
func (j *ReconcileLedgerJob) checkUser(ctx context.Context, userID shared.UserID) (bool, error) {
	us, err := j.reader.GetStreak(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	sum, err := j.ledger.SumForUser(ctx, userID)
	if err != nil {
		return false, err
	}

	if sum == us.TotalPoints {
		return true, nil
	}

	j.log.Error("ledger drift detected",
		logger.F("user_id", userID.String()),
		logger.F("cached_total", us.TotalPoints.Int()),
		logger.F("ledger_total", sum.Int()))

	if j.metrics != nil {
		j.metrics.LedgerDriftTotal.Inc()
	}
	if j.publisher != nil {
		event := shared.NewLedgerDriftEvent(userID.String(), us.TotalPoints.Int(), sum.Int())
		if pubErr := j.publisher.Publish(event); pubErr != nil {
			j.log.Warn("drift event publish failed", logger.Err(pubErr))
		}
	}

	return false, nil
}
