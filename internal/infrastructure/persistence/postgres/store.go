package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/kurslab/kurslab-engagement/internal/domain/enrollment"
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGAGEMENT STORE (UNIT OF WORK)
// One database transaction per command: the idempotency mark, the weekly
// counter, the streak row, the badge and the ledger entries all commit
// together or not at all.
// ══════════════════════════════════════════════════════════════════════════════

// Store implements streak.Store on top of a pgx connection pool.
type Store struct {
	conn *Connection
}

// NewStore creates a new Store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// InTx runs fn inside one read-write transaction. Serialization failures
// and deadlocks surface as shared.ErrConcurrentModification so the
// application layer can retry the whole unit of work.
func (s *Store) InTx(ctx context.Context, fn func(tx streak.Tx) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(&engagementTx{q: tx})
	})
	if err == nil {
		return nil
	}
	if IsSerializationFailure(err) {
		return shared.WrapError("postgres", "InTx",
			shared.ErrConcurrentModification, "transaction conflicted with a concurrent write", err)
	}
	return err
}

// engagementTx binds the repositories to one open transaction.
type engagementTx struct {
	q Querier
}

func (t *engagementTx) Enrollments() enrollment.Repository {
	return &EnrollmentRepo{q: t.q}
}

func (t *engagementTx) WeeklyProgress() enrollment.WeeklyRepository {
	return &WeeklyProgressRepo{q: t.q}
}

func (t *engagementTx) Streaks() streak.Repository {
	return &StreakRepo{q: t.q}
}

func (t *engagementTx) Badges() streak.BadgeRepository {
	return &BadgeRepo{q: t.q}
}

func (t *engagementTx) Ledger() streak.LedgerRepository {
	return &LedgerRepo{q: t.q}
}
