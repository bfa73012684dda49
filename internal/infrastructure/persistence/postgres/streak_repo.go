package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REPOSITORY
// The user_streaks row is the serialization point of the engine: every
// write command locks it with FOR UPDATE before touching anything else
// that depends on streak state.
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepo implements streak.Repository over a Querier.
type StreakRepo struct {
	q Querier
}

// NewStreakRepo creates a repository bound to q.
func NewStreakRepo(q Querier) *StreakRepo {
	return &StreakRepo{q: q}
}

// GetForUpdate locks the user's streak row. A missing row is created empty
// first; the ON CONFLICT DO NOTHING insert keeps the create race-free, and
// the subsequent FOR UPDATE serializes concurrent commands of one user.
func (r *StreakRepo) GetForUpdate(ctx context.Context, userID shared.UserID) (*streak.UserStreak, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO user_streaks (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: ensure streak row: %w", err)
	}

	row := r.q.QueryRow(ctx, `
		SELECT user_id, current_week_start, current_week_lessons, current_week_complete,
		       current_streak, longest_streak, total_points, created_at, updated_at
		FROM user_streaks
		WHERE user_id = $1
		FOR UPDATE
	`, userID.String())

	s, err := scanStreak(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: lock streak row: %w", err)
	}
	return s, nil
}

// Save persists the mutated aggregate.
func (r *StreakRepo) Save(ctx context.Context, s *streak.UserStreak) error {
	var weekStart *time.Time
	if !s.CurrentWeekStart.IsZero() {
		weekStart = &s.CurrentWeekStart
	}

	_, err := r.q.Exec(ctx, `
		UPDATE user_streaks SET
			current_week_start = $2,
			current_week_lessons = $3,
			current_week_complete = $4,
			current_streak = $5,
			longest_streak = $6,
			total_points = $7,
			updated_at = $8
		WHERE user_id = $1
	`, s.UserID.String(), weekStart, s.CurrentWeekLessons, s.CurrentWeekComplete,
		s.CurrentStreak, s.LongestStreak, s.TotalPoints.Int(), s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: save streak: %w", err)
	}
	return nil
}

func scanStreak(row rowScanner) (*streak.UserStreak, error) {
	var (
		s           streak.UserStreak
		userID      string
		weekStart   *time.Time
		totalPoints int64
	)
	err := row.Scan(&userID, &weekStart, &s.CurrentWeekLessons, &s.CurrentWeekComplete,
		&s.CurrentStreak, &s.LongestStreak, &totalPoints, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.UserID = shared.UserID(userID)
	if weekStart != nil {
		s.CurrentWeekStart = *weekStart
	}
	s.TotalPoints = shared.Points(totalPoints)
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepo implements streak.BadgeRepository.
type BadgeRepo struct {
	q Querier
}

// NewBadgeRepo creates a repository bound to q.
func NewBadgeRepo(q Querier) *BadgeRepo {
	return &BadgeRepo{q: q}
}

// EarnedLevels returns the set of already awarded levels.
func (r *BadgeRepo) EarnedLevels(ctx context.Context, userID shared.UserID) (map[streak.BadgeLevel]bool, error) {
	rows, err := r.q.Query(ctx, `
		SELECT level FROM badges WHERE user_id = $1
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: earned levels: %w", err)
	}
	defer rows.Close()

	earned := make(map[streak.BadgeLevel]bool)
	for rows.Next() {
		var level string
		if err := rows.Scan(&level); err != nil {
			return nil, fmt.Errorf("postgres: scan badge level: %w", err)
		}
		earned[streak.BadgeLevel(level)] = true
	}
	return earned, rows.Err()
}

// Award inserts the badge. The (user_id, level) primary key turns a repeated
// award into shared.ErrBadgeAlreadyEarned.
func (r *BadgeRepo) Award(ctx context.Context, b *streak.Badge) error {
	meta, err := json.Marshal(b.Meta)
	if err != nil {
		return fmt.Errorf("postgres: marshal badge meta: %w", err)
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO badges (user_id, level, streak_when_earned, earned_at, meta)
		VALUES ($1, $2, $3, $4, $5)
	`, b.UserID.String(), b.Level.String(), b.StreakWhenEarned, b.EarnedAt, meta)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrBadgeAlreadyEarned
		}
		return fmt.Errorf("postgres: award badge: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepo implements streak.LedgerRepository.
type LedgerRepo struct {
	q Querier
}

// NewLedgerRepo creates a repository bound to q.
func NewLedgerRepo(q Querier) *LedgerRepo {
	return &LedgerRepo{q: q}
}

// Append writes one ledger entry. There is no update or delete path for
// points_transactions anywhere in the engine.
func (r *LedgerRepo) Append(ctx context.Context, tx *streak.PointsTransaction) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO points_transactions (id, user_id, points, tx_type, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, tx.ID, tx.UserID.String(), tx.Points.Int(), tx.Type.String(), tx.Reason, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: append ledger entry: %w", err)
	}
	return nil
}

// SumForUser recomputes the user's total from the ledger.
func (r *LedgerRepo) SumForUser(ctx context.Context, userID shared.UserID) (shared.Points, error) {
	var sum int64
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM points_transactions WHERE user_id = $1
	`, userID.String()).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum ledger: %w", err)
	}
	return shared.Points(sum), nil
}

// ListForUser returns the newest ledger entries first.
func (r *LedgerRepo) ListForUser(ctx context.Context, userID shared.UserID, limit int) ([]*streak.PointsTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, points, tx_type, reason, created_at
		FROM points_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger: %w", err)
	}
	defer rows.Close()

	var result []*streak.PointsTransaction
	for rows.Next() {
		var (
			tx     streak.PointsTransaction
			userID string
			points int64
			txType string
		)
		if err := rows.Scan(&tx.ID, &userID, &points, &txType, &tx.Reason, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		tx.UserID = shared.UserID(userID)
		tx.Points = shared.Points(points)
		tx.Type = streak.TransactionType(txType)
		result = append(result, &tx)
	}
	return result, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

// ReaderRepo implements streak.Reader over the pool, outside transactions.
type ReaderRepo struct {
	conn *Connection
}

// NewReaderRepo creates the read-side repository.
func NewReaderRepo(conn *Connection) *ReaderRepo {
	return &ReaderRepo{conn: conn}
}

// GetStreak returns the user's streak row.
func (r *ReaderRepo) GetStreak(ctx context.Context, userID shared.UserID) (*streak.UserStreak, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT user_id, current_week_start, current_week_lessons, current_week_complete,
		       current_streak, longest_streak, total_points, created_at, updated_at
		FROM user_streaks
		WHERE user_id = $1
	`, userID.String())

	s, err := scanStreak(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStreakNotFound
		}
		return nil, fmt.Errorf("postgres: get streak: %w", err)
	}
	return s, nil
}

// ListBadges returns the user's badges ordered by when they were earned.
func (r *ReaderRepo) ListBadges(ctx context.Context, userID shared.UserID) ([]*streak.Badge, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_id, level, streak_when_earned, earned_at, meta
		FROM badges
		WHERE user_id = $1
		ORDER BY earned_at
	`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: list badges: %w", err)
	}
	defer rows.Close()

	var result []*streak.Badge
	for rows.Next() {
		var (
			b      streak.Badge
			userID string
			level  string
			meta   []byte
		)
		if err := rows.Scan(&userID, &level, &b.StreakWhenEarned, &b.EarnedAt, &meta); err != nil {
			return nil, fmt.Errorf("postgres: scan badge: %w", err)
		}
		b.UserID = shared.UserID(userID)
		b.Level = streak.BadgeLevel(level)
		if err := json.Unmarshal(meta, &b.Meta); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal badge meta: %w", err)
		}
		// Rows written before meta existed carry an empty object.
		if b.Meta.SchemaVersion == 0 {
			b.Meta = streak.DefaultBadgeMeta(b.Level)
		}
		result = append(result, &b)
	}
	return result, rows.Err()
}

// ListUserIDs pages through users that have a streak row.
func (r *ReaderRepo) ListUserIDs(ctx context.Context, limit, offset int) ([]shared.UserID, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.conn.Query(ctx, `
		SELECT user_id FROM user_streaks
		ORDER BY user_id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user ids: %w", err)
	}
	defer rows.Close()

	var ids []shared.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan user id: %w", err)
		}
		ids = append(ids, shared.UserID(id))
	}
	return ids, rows.Err()
}
