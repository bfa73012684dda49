package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kurslab/kurslab-engagement/internal/domain/enrollment"
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY
// The enrollment_lessons table is the idempotency set of the engine.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepo implements enrollment.Repository over a Querier, so the
// same code serves both transactional and standalone use.
type EnrollmentRepo struct {
	q Querier
}

// NewEnrollmentRepo creates a repository bound to q.
func NewEnrollmentRepo(q Querier) *EnrollmentRepo {
	return &EnrollmentRepo{q: q}
}

// MarkCompleted inserts the completion mark. ON CONFLICT DO NOTHING makes
// the insert race-free: whichever concurrent call loses sees zero rows
// affected and reports the duplicate.
func (r *EnrollmentRepo) MarkCompleted(ctx context.Context, c *enrollment.LessonCompletion) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO enrollment_lessons (user_id, course_id, lesson_number, lesson_title, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, course_id, lesson_number) DO NOTHING
	`, c.UserID.String(), c.CourseID.String(), c.LessonNumber.Int(), c.LessonTitle, c.CompletedAt)
	if err != nil {
		return false, fmt.Errorf("postgres: mark completed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasCompleted reports whether the lesson has been counted.
func (r *EnrollmentRepo) HasCompleted(ctx context.Context, userID shared.UserID, courseID shared.CourseID, lessonNumber shared.LessonNumber) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollment_lessons
			WHERE user_id = $1 AND course_id = $2 AND lesson_number = $3
		)
	`, userID.String(), courseID.String(), lessonNumber.Int()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has completed: %w", err)
	}
	return exists, nil
}

// CompletedLessons returns the counted lesson numbers of a course.
func (r *EnrollmentRepo) CompletedLessons(ctx context.Context, userID shared.UserID, courseID shared.CourseID) ([]shared.LessonNumber, error) {
	rows, err := r.q.Query(ctx, `
		SELECT lesson_number FROM enrollment_lessons
		WHERE user_id = $1 AND course_id = $2
		ORDER BY lesson_number
	`, userID.String(), courseID.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: completed lessons: %w", err)
	}
	defer rows.Close()

	var lessons []shared.LessonNumber
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("postgres: scan lesson number: %w", err)
		}
		lessons = append(lessons, shared.LessonNumber(n))
	}
	return lessons, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyProgressRepo implements enrollment.WeeklyRepository.
type WeeklyProgressRepo struct {
	q Querier
}

// NewWeeklyProgressRepo creates a repository bound to q.
func NewWeeklyProgressRepo(q Querier) *WeeklyProgressRepo {
	return &WeeklyProgressRepo{q: q}
}

// RecordLesson upserts the (user, course, week) row: the first lesson of a
// week creates it with a counter of one, later lessons increment it.
func (r *WeeklyProgressRepo) RecordLesson(ctx context.Context, userID shared.UserID, courseID shared.CourseID, weekStart, lessonAt time.Time) (*enrollment.WeeklyLessonCompletion, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO weekly_lesson_completions (user_id, course_id, week_start, lessons_completed, last_lesson_at, created_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (user_id, course_id, week_start) DO UPDATE SET
			lessons_completed = weekly_lesson_completions.lessons_completed + 1,
			last_lesson_at = EXCLUDED.last_lesson_at
		RETURNING user_id, course_id, week_start, lessons_completed, last_lesson_at, created_at
	`, userID.String(), courseID.String(), weekStart, lessonAt)

	w, err := scanWeekly(row)
	if err != nil {
		return nil, fmt.Errorf("postgres: record lesson: %w", err)
	}
	return w, nil
}

// Get returns one weekly progress row.
func (r *WeeklyProgressRepo) Get(ctx context.Context, userID shared.UserID, courseID shared.CourseID, weekStart time.Time) (*enrollment.WeeklyLessonCompletion, error) {
	row := r.q.QueryRow(ctx, `
		SELECT user_id, course_id, week_start, lessons_completed, last_lesson_at, created_at
		FROM weekly_lesson_completions
		WHERE user_id = $1 AND course_id = $2 AND week_start = $3
	`, userID.String(), courseID.String(), weekStart)

	w, err := scanWeekly(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get weekly progress: %w", err)
	}
	return w, nil
}

// ListForWeek returns the user's weekly rows across all courses.
func (r *WeeklyProgressRepo) ListForWeek(ctx context.Context, userID shared.UserID, weekStart time.Time) ([]*enrollment.WeeklyLessonCompletion, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, course_id, week_start, lessons_completed, last_lesson_at, created_at
		FROM weekly_lesson_completions
		WHERE user_id = $1 AND week_start = $2
		ORDER BY course_id
	`, userID.String(), weekStart)
	if err != nil {
		return nil, fmt.Errorf("postgres: list weekly progress: %w", err)
	}
	defer rows.Close()

	var result []*enrollment.WeeklyLessonCompletion
	for rows.Next() {
		w, err := scanWeekly(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan weekly progress: %w", err)
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWeekly(row rowScanner) (*enrollment.WeeklyLessonCompletion, error) {
	var (
		w        enrollment.WeeklyLessonCompletion
		userID   string
		courseID string
	)
	err := row.Scan(&userID, &courseID, &w.WeekStart, &w.LessonsCompleted, &w.LastLessonAt, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	w.UserID = shared.UserID(userID)
	w.CourseID = shared.CourseID(courseID)
	return &w, nil
}
