package command

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurslab/kurslab-engagement/internal/domain/enrollment"
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/internal/domain/streak"
	"github.com/kurslab/kurslab-engagement/internal/infrastructure/observability"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

const (
	userA   = "a1b2c3d4-0000-4000-8000-000000000001"
	courseA = "b2c3d4e5-0000-4000-8000-000000000002"
	courseB = "c3d4e5f6-0000-4000-8000-000000000003"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// One shared state behind Store, Tx and Reader. The fake store applies
// mutations directly, which is enough for the success paths under test.
// ══════════════════════════════════════════════════════════════════════════════

type memState struct {
	completions map[string]bool
	weekly      map[string]*enrollment.WeeklyLessonCompletion
	streaks     map[shared.UserID]*streak.UserStreak
	badges      map[shared.UserID][]*streak.Badge
	ledger      []*streak.PointsTransaction
}

func newMemState() *memState {
	return &memState{
		completions: make(map[string]bool),
		weekly:      make(map[string]*enrollment.WeeklyLessonCompletion),
		streaks:     make(map[shared.UserID]*streak.UserStreak),
		badges:      make(map[shared.UserID][]*streak.Badge),
	}
}

func (s *memState) ledgerSum(userID shared.UserID) int {
	total := 0
	for _, tx := range s.ledger {
		if tx.UserID == userID {
			total += tx.Points.Int()
		}
	}
	return total
}

type memStore struct {
	state *memState

	// conflictsLeft makes the next N transactions fail with a conflict.
	conflictsLeft int
	attempts      int
}

func (st *memStore) InTx(ctx context.Context, fn func(tx streak.Tx) error) error {
	st.attempts++
	if st.conflictsLeft > 0 {
		st.conflictsLeft--
		return shared.ErrConcurrentModification
	}
	return fn(&memTx{state: st.state})
}

type memTx struct {
	state *memState
}

func (t *memTx) Enrollments() enrollment.Repository          { return &memEnrollments{t.state} }
func (t *memTx) WeeklyProgress() enrollment.WeeklyRepository { return &memWeekly{t.state} }
func (t *memTx) Streaks() streak.Repository                  { return &memStreaks{t.state} }
func (t *memTx) Badges() streak.BadgeRepository              { return &memBadges{t.state} }
func (t *memTx) Ledger() streak.LedgerRepository             { return &memLedger{t.state} }

type memEnrollments struct{ state *memState }

func completionKey(userID shared.UserID, courseID shared.CourseID, lesson shared.LessonNumber) string {
	return fmt.Sprintf("%s|%s|%d", userID, courseID, lesson)
}

func (r *memEnrollments) MarkCompleted(_ context.Context, c *enrollment.LessonCompletion) (bool, error) {
	key := completionKey(c.UserID, c.CourseID, c.LessonNumber)
	if r.state.completions[key] {
		return false, nil
	}
	r.state.completions[key] = true
	return true, nil
}

func (r *memEnrollments) HasCompleted(_ context.Context, userID shared.UserID, courseID shared.CourseID, lesson shared.LessonNumber) (bool, error) {
	return r.state.completions[completionKey(userID, courseID, lesson)], nil
}

func (r *memEnrollments) CompletedLessons(_ context.Context, userID shared.UserID, courseID shared.CourseID) ([]shared.LessonNumber, error) {
	var out []shared.LessonNumber
	prefix := fmt.Sprintf("%s|%s|", userID, courseID)
	for key := range r.state.completions {
		if strings.HasPrefix(key, prefix) {
			n, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
			if err != nil {
				continue
			}
			out = append(out, shared.LessonNumber(n))
		}
	}
	return out, nil
}

type memWeekly struct{ state *memState }

func weeklyKey(userID shared.UserID, courseID shared.CourseID, weekStart time.Time) string {
	return fmt.Sprintf("%s|%s|%d", userID, courseID, weekStart.Unix())
}

func (r *memWeekly) RecordLesson(_ context.Context, userID shared.UserID, courseID shared.CourseID, weekStart, lessonAt time.Time) (*enrollment.WeeklyLessonCompletion, error) {
	key := weeklyKey(userID, courseID, weekStart)
	if w, ok := r.state.weekly[key]; ok {
		w.RecordLesson(lessonAt)
		return w, nil
	}
	w := enrollment.NewWeeklyLessonCompletion(userID, courseID, weekStart, lessonAt)
	r.state.weekly[key] = w
	return w, nil
}

func (r *memWeekly) Get(_ context.Context, userID shared.UserID, courseID shared.CourseID, weekStart time.Time) (*enrollment.WeeklyLessonCompletion, error) {
	if w, ok := r.state.weekly[weeklyKey(userID, courseID, weekStart)]; ok {
		return w, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memWeekly) ListForWeek(_ context.Context, userID shared.UserID, weekStart time.Time) ([]*enrollment.WeeklyLessonCompletion, error) {
	var out []*enrollment.WeeklyLessonCompletion
	for _, w := range r.state.weekly {
		if w.UserID == userID && w.WeekStart.Equal(weekStart) {
			out = append(out, w)
		}
	}
	return out, nil
}

type memStreaks struct{ state *memState }

func (r *memStreaks) GetForUpdate(_ context.Context, userID shared.UserID) (*streak.UserStreak, error) {
	if us, ok := r.state.streaks[userID]; ok {
		return us.Clone(), nil
	}
	return streak.NewUserStreak(userID, time.Now()), nil
}

func (r *memStreaks) Save(_ context.Context, us *streak.UserStreak) error {
	r.state.streaks[us.UserID] = us.Clone()
	return nil
}

type memBadges struct{ state *memState }

func (r *memBadges) EarnedLevels(_ context.Context, userID shared.UserID) (map[streak.BadgeLevel]bool, error) {
	earned := make(map[streak.BadgeLevel]bool)
	for _, b := range r.state.badges[userID] {
		earned[b.Level] = true
	}
	return earned, nil
}

func (r *memBadges) Award(_ context.Context, b *streak.Badge) error {
	for _, existing := range r.state.badges[b.UserID] {
		if existing.Level == b.Level {
			return shared.ErrBadgeAlreadyEarned
		}
	}
	r.state.badges[b.UserID] = append(r.state.badges[b.UserID], b)
	return nil
}

type memLedger struct{ state *memState }

func (r *memLedger) Append(_ context.Context, tx *streak.PointsTransaction) error {
	r.state.ledger = append(r.state.ledger, tx)
	return nil
}

func (r *memLedger) SumForUser(_ context.Context, userID shared.UserID) (shared.Points, error) {
	return shared.Points(r.state.ledgerSum(userID)), nil
}

func (r *memLedger) ListForUser(_ context.Context, userID shared.UserID, limit int) ([]*streak.PointsTransaction, error) {
	var out []*streak.PointsTransaction
	for i := len(r.state.ledger) - 1; i >= 0 && len(out) < limit; i-- {
		if r.state.ledger[i].UserID == userID {
			out = append(out, r.state.ledger[i])
		}
	}
	return out, nil
}

type memReader struct{ state *memState }

func (r *memReader) GetStreak(_ context.Context, userID shared.UserID) (*streak.UserStreak, error) {
	if us, ok := r.state.streaks[userID]; ok {
		return us.Clone(), nil
	}
	return nil, shared.ErrStreakNotFound
}

func (r *memReader) ListBadges(_ context.Context, userID shared.UserID) ([]*streak.Badge, error) {
	return r.state.badges[userID], nil
}

func (r *memReader) ListUserIDs(_ context.Context, limit, offset int) ([]shared.UserID, error) {
	ids := make([]shared.UserID, 0, len(r.state.streaks))
	for id := range r.state.streaks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if offset >= len(ids) {
		return nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	return ids[offset:end], nil
}

type capturePublisher struct{ events []shared.Event }

func (p *capturePublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) count(eventType shared.EventType) int {
	n := 0
	for _, e := range p.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

type countInvalidator struct{ calls int }

func (i *countInvalidator) Invalidate(context.Context, shared.UserID) error {
	i.calls++
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TEST SETUP
// ══════════════════════════════════════════════════════════════════════════════

type handlerFixture struct {
	state     *memState
	store     *memStore
	publisher *capturePublisher
	cache     *countInvalidator
	metrics   *observability.Metrics
	handler   *RecordCompletionHandler
}

func newFixture(t *testing.T) *handlerFixture {
	t.Helper()

	state := newMemState()
	store := &memStore{state: state}
	publisher := &capturePublisher{}
	cache := &countInvalidator{}
	log := logger.New(logger.Options{Output: io.Discard, Level: logger.LevelFatal})
	weeks := streak.NewWeekCalculator(time.UTC)
	clock := streak.FixedClock{Time: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	handler := NewRecordCompletionHandler(store, &memReader{state}, weeks, clock, publisher, cache, log, metrics,
		RecordCompletionHandlerConfig{
			WeeklyGoal:   5,
			Points:       streak.DefaultPointsPolicy(),
			Tiers:        streak.DefaultTierTable(),
			MaxConflicts: 3,
		})

	return &handlerFixture{state: state, store: store, publisher: publisher, cache: cache, metrics: metrics, handler: handler}
}

func lessonCmd(lesson int, at time.Time) RecordCompletionCommand {
	return RecordCompletionCommand{
		UserID:       userA,
		CourseID:     courseA,
		LessonNumber: lesson,
		LessonTitle:  fmt.Sprintf("Lesson %d", lesson),
		OccurredAt:   at,
	}
}

// week starting Monday 2025-01-13 UTC.
func weekStart(n int) time.Time {
	return time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*(n-1))
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestHandle_FirstLesson(t *testing.T) {
	fx := newFixture(t)
	at := weekStart(1).Add(10 * time.Hour)

	result, err := fx.handler.Handle(context.Background(), lessonCmd(1, at))
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	assert.Equal(t, weekStart(1), result.WeekStart)
	assert.Equal(t, 1, result.WeekLessons)
	assert.Equal(t, "1/5", result.WeekProgress)
	assert.False(t, result.GoalMet)
	assert.Equal(t, 0, result.CurrentStreak)
	assert.Equal(t, 10, result.PointsEarned)
	assert.Equal(t, 10, result.TotalPoints)
	assert.Nil(t, result.NewBadge)

	assert.Len(t, fx.state.ledger, 1)
	assert.Equal(t, streak.TxPerLesson, fx.state.ledger[0].Type)
	assert.Equal(t, 1, fx.publisher.count(shared.EventLessonCounted))
	assert.Equal(t, 1, fx.publisher.count(shared.EventPointsAwarded))
	assert.Equal(t, 1, fx.cache.calls)
}

func TestHandle_DuplicateIsNoOp(t *testing.T) {
	fx := newFixture(t)
	at := weekStart(1).Add(10 * time.Hour)
	ctx := context.Background()

	_, err := fx.handler.Handle(ctx, lessonCmd(1, at))
	require.NoError(t, err)
	eventsBefore := len(fx.publisher.events)
	invalidationsBefore := fx.cache.calls

	result, err := fx.handler.Handle(ctx, lessonCmd(1, at.Add(time.Hour)))
	require.NoError(t, err)

	assert.True(t, result.Duplicate)
	assert.Equal(t, 1, result.WeekLessons)
	assert.Equal(t, 10, result.TotalPoints)
	assert.Len(t, fx.state.ledger, 1)
	assert.Len(t, fx.publisher.events, eventsBefore)
	assert.Equal(t, invalidationsBefore, fx.cache.calls)
	assert.Equal(t, 1, fx.state.streaks[shared.UserID(userA)].CurrentWeekLessons)
}

func TestHandle_GoalBonusExactlyOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	var result *StreakResult
	for lesson := 1; lesson <= 5; lesson++ {
		var err error
		result, err = fx.handler.Handle(ctx, lessonCmd(lesson, weekStart(1).Add(time.Duration(lesson)*time.Hour)))
		require.NoError(t, err)
	}

	assert.True(t, result.GoalJustMet)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.Equal(t, 60, result.PointsEarned) // 10 per lesson + 50 bonus
	assert.Equal(t, 100, result.TotalPoints) // 5*10 + 50
	assert.Equal(t, 1, fx.publisher.count(shared.EventWeeklyGoalMet))
	assert.Equal(t, 1, fx.publisher.count(shared.EventStreakExtended))

	// The sixth lesson earns base points only
	result, err := fx.handler.Handle(ctx, lessonCmd(6, weekStart(1).Add(20*time.Hour)))
	require.NoError(t, err)
	assert.True(t, result.GoalMet)
	assert.False(t, result.GoalJustMet)
	assert.Equal(t, 10, result.PointsEarned)
	assert.Equal(t, 110, result.TotalPoints)
	assert.Equal(t, 1, fx.publisher.count(shared.EventWeeklyGoalMet))
	assert.Equal(t, 1, fx.publisher.count(shared.EventStreakExtended))
}

func TestHandle_PointsConservation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Four complete consecutive weeks cross the bronze threshold
	lesson := 0
	for week := 1; week <= 4; week++ {
		for i := 0; i < 5; i++ {
			lesson++
			_, err := fx.handler.Handle(ctx, lessonCmd(lesson, weekStart(week).Add(time.Duration(i+1)*time.Hour)))
			require.NoError(t, err)
		}
	}

	us := fx.state.streaks[shared.UserID(userA)]
	require.NotNil(t, us)
	assert.Equal(t, us.TotalPoints.Int(), fx.state.ledgerSum(shared.UserID(userA)))
	// 20 lessons + 4 goal bonuses + bronze bonus
	assert.Equal(t, 20*10+4*50+100, us.TotalPoints.Int())
}

func TestHandle_BadgeAwardedAtThreshold(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	var result *StreakResult
	lesson := 0
	for week := 1; week <= 4; week++ {
		for i := 0; i < 5; i++ {
			lesson++
			var err error
			result, err = fx.handler.Handle(ctx, lessonCmd(lesson, weekStart(week).Add(time.Duration(i+1)*time.Hour)))
			require.NoError(t, err)
		}
	}

	require.NotNil(t, result.NewBadge)
	assert.Equal(t, "bronze", result.NewBadge.Level)
	assert.Equal(t, 4, result.NewBadge.StreakWhenEarned)
	assert.NotEmpty(t, result.NewBadge.DisplayName)
	assert.Equal(t, 4, result.CurrentStreak)
	assert.Equal(t, 160, result.PointsEarned) // 10 + 50 goal + 100 badge
	assert.Equal(t, 1, fx.publisher.count(shared.EventBadgeEarned))

	// Further lessons in the same week never re-award the badge
	lesson++
	result, err := fx.handler.Handle(ctx, lessonCmd(lesson, weekStart(4).Add(30*time.Hour)))
	require.NoError(t, err)
	assert.Nil(t, result.NewBadge)
	assert.Len(t, fx.state.badges[shared.UserID(userA)], 1)
}

func TestHandle_BadgeBackfillAscending(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := weekStart(2).Add(time.Hour)

	// A user migrated with a long streak and no badges yet
	seeded := streak.NewUserStreak(shared.UserID(userA), now)
	seeded.CurrentWeekStart = weekStart(1)
	seeded.CurrentWeekLessons = 5
	seeded.CurrentWeekComplete = true
	seeded.CurrentStreak = 11
	seeded.LongestStreak = 11
	fx.state.streaks[shared.UserID(userA)] = seeded

	result, err := fx.handler.Handle(ctx, lessonCmd(1, now))
	require.NoError(t, err)
	require.NotNil(t, result.NewBadge)
	assert.Equal(t, "bronze", result.NewBadge.Level)
	assert.Equal(t, 11, result.CurrentStreak)

	result, err = fx.handler.Handle(ctx, lessonCmd(2, now.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, result.NewBadge)
	assert.Equal(t, "silver", result.NewBadge.Level)
}

func TestHandle_StreakResetOnMissedWeek(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for lesson := 1; lesson <= 5; lesson++ {
		_, err := fx.handler.Handle(ctx, lessonCmd(lesson, weekStart(1).Add(time.Duration(lesson)*time.Hour)))
		require.NoError(t, err)
	}

	// Week 2 is skipped entirely; the next event lands in week 3
	result, err := fx.handler.Handle(ctx, lessonCmd(6, weekStart(3).Add(time.Hour)))
	require.NoError(t, err)

	assert.True(t, result.StreakReset)
	assert.Equal(t, 1, result.PreviousStreak)
	assert.Equal(t, 0, result.CurrentStreak)
	assert.Equal(t, 1, result.LongestStreak)
	assert.Equal(t, 1, fx.publisher.count(shared.EventStreakReset))
}

func TestHandle_MultipleCoursesShareTheWeeklyGoal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	at := weekStart(1).Add(time.Hour)

	for lesson := 1; lesson <= 3; lesson++ {
		_, err := fx.handler.Handle(ctx, lessonCmd(lesson, at))
		require.NoError(t, err)
	}

	cmd := RecordCompletionCommand{UserID: userA, CourseID: courseB, LessonNumber: 1, OccurredAt: at}
	result, err := fx.handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, 4, result.WeekLessons)

	cmd.LessonNumber = 2
	result, err = fx.handler.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, result.GoalJustMet)
	assert.Equal(t, 5, result.WeekLessons)
}

func TestHandle_ConflictRetried(t *testing.T) {
	fx := newFixture(t)
	fx.store.conflictsLeft = 2

	result, err := fx.handler.Handle(context.Background(), lessonCmd(1, weekStart(1).Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 1, result.WeekLessons)
	assert.Equal(t, 3, fx.store.attempts)
}

func TestHandle_ConflictExhaustsRetries(t *testing.T) {
	fx := newFixture(t)
	fx.store.conflictsLeft = 5

	_, err := fx.handler.Handle(context.Background(), lessonCmd(1, weekStart(1).Add(time.Hour)))
	require.Error(t, err)
	assert.True(t, shared.IsConflictError(err))
	assert.Equal(t, 3, fx.store.attempts)
	assert.Empty(t, fx.state.ledger)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.CompletionsTotal.WithLabelValues("error")))
}

func TestHandle_Validation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	at := weekStart(1).Add(time.Hour)

	tests := []struct {
		name string
		cmd  RecordCompletionCommand
	}{
		{"bad user id", RecordCompletionCommand{UserID: "nope", CourseID: courseA, LessonNumber: 1, OccurredAt: at}},
		{"bad course id", RecordCompletionCommand{UserID: userA, CourseID: "nope", LessonNumber: 1, OccurredAt: at}},
		{"zero lesson", RecordCompletionCommand{UserID: userA, CourseID: courseA, LessonNumber: 0, OccurredAt: at}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.handler.Handle(ctx, tt.cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidationError(err))
		})
	}

	assert.Empty(t, fx.state.ledger)
	assert.Equal(t, 0, fx.store.attempts)
}

func TestHandle_DuplicateReportsCurrentStats(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for lesson := 1; lesson <= 3; lesson++ {
		_, err := fx.handler.Handle(ctx, lessonCmd(lesson, weekStart(1).Add(time.Duration(lesson)*time.Hour)))
		require.NoError(t, err)
	}

	result, err := fx.handler.Handle(ctx, lessonCmd(1, weekStart(1).Add(10*time.Hour)))
	require.NoError(t, err)

	assert.True(t, result.Duplicate)
	assert.Equal(t, 3, result.WeekLessons)
	assert.Equal(t, "3/5", result.WeekProgress)
	assert.Equal(t, 30, result.TotalPoints)
}

func TestHandle_BackdatedLessonKeepsWeekState(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for lesson := 1; lesson <= 5; lesson++ {
		_, err := fx.handler.Handle(ctx, lessonCmd(lesson, weekStart(2).Add(time.Duration(lesson)*time.Hour)))
		require.NoError(t, err)
	}

	// A delayed import delivers a lesson from the already finished first week
	result, err := fx.handler.Handle(ctx, lessonCmd(6, weekStart(1).Add(time.Hour)))
	require.NoError(t, err)

	assert.False(t, result.StreakReset)
	assert.False(t, result.GoalJustMet)
	assert.Equal(t, 5, result.WeekLessons)
	assert.Equal(t, 1, result.CurrentStreak)
	assert.Equal(t, 10, result.PointsEarned)
	assert.Equal(t, 0, fx.publisher.count(shared.EventStreakReset))

	us := fx.state.streaks[shared.UserID(userA)]
	require.NotNil(t, us)
	assert.Equal(t, weekStart(2), us.CurrentWeekStart)
	assert.Equal(t, 5, us.CurrentWeekLessons)
	assert.True(t, us.CurrentWeekComplete)
}

func TestHandle_MetricsRecorded(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	at := weekStart(1).Add(time.Hour)

	_, err := fx.handler.Handle(ctx, lessonCmd(1, at))
	require.NoError(t, err)
	_, err = fx.handler.Handle(ctx, lessonCmd(1, at.Add(time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.CompletionsTotal.WithLabelValues("counted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.CompletionsTotal.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.CacheOpsTotal.WithLabelValues("invalidate", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(fx.metrics.CommandDurationSeconds))
}

func TestHandle_MetricsCountConflictRetries(t *testing.T) {
	fx := newFixture(t)
	fx.store.conflictsLeft = 2

	_, err := fx.handler.Handle(context.Background(), lessonCmd(1, weekStart(1).Add(time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(fx.metrics.ConflictRetriesTotal))
}
