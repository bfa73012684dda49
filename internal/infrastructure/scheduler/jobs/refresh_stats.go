package jobs

import (
	"context"
	"fmt"

	"github.com/kurslab/kurslab-engagement/internal/application/query"
	"github.com/kurslab/kurslab-engagement/internal/domain/streak"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

// RefreshStatsJob re-primes the stats cache from storage. Useful right
// after the Monday week boundary, when every cached projection goes stale
// at once and the first reader of each user would otherwise pay the
// storage round trip.
type RefreshStatsJob struct {
	reader   streak.Reader
	stats    *query.GetStreakStatsHandler
	log      *logger.Logger
	pageSize int
}

// NewRefreshStatsJob creates the cache refresh job.
func NewRefreshStatsJob(reader streak.Reader, stats *query.GetStreakStatsHandler, log *logger.Logger, pageSize int) *RefreshStatsJob {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &RefreshStatsJob{
		reader:   reader,
		stats:    stats,
		log:      log,
		pageSize: pageSize,
	}
}

// Name implements scheduler.Job.
func (j *RefreshStatsJob) Name() string {
	return "refresh_stats"
}

// Description implements scheduler.Job.
func (j *RefreshStatsJob) Description() string {
	return "re-primes the streak stats cache from storage"
}

// Run implements scheduler.Job.
func (j *RefreshStatsJob) Run(ctx context.Context) error {
	var refreshed, failed, offset int

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
			// BypassCache reads storage and re-caches as a side effect.
			_, err := j.stats.Handle(ctx, query.GetStreakStatsQuery{
				UserID:      userID.String(),
				BypassCache: true,
			})
			if err != nil {
				failed++
				j.log.Warn("stats refresh failed",
					logger.F("user_id", userID.String()), logger.Err(err))
				continue
			}
			refreshed++
		}

		offset += len(ids)
	}

	j.log.Info("stats cache refreshed",
		logger.F("users_refreshed", refreshed),
		logger.F("users_failed", failed))

	return nil
}
