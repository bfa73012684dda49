// Package enrollment содержит доменную модель учёта завершённых уроков:
// идемпотентную отметку завершения и недельный прогресс по курсу.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package enrollment

import (
	"strings"
	"time"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LESSON COMPLETION (идемпотентная отметка)
// ══════════════════════════════════════════════════════════════════════════════

// LessonCompletion - факт "пользователь U завершил урок L курса C в момент T".
// Ключ (UserID, CourseID, LessonNumber) гарантирует счёт ровно-один-раз
// независимо от повторов клиента и дублей сети.
type LessonCompletion struct {
	// UserID - идентификатор пользователя.
	UserID shared.UserID

	// CourseID - идентификатор курса.
	CourseID shared.CourseID

	// LessonNumber - номер урока внутри курса (с единицы).
	LessonNumber shared.LessonNumber

	// LessonTitle - название урока для аудита.
	LessonTitle string

	// CompletedAt - момент завершения по данным системы прогресса.
	CompletedAt time.Time
}

// NewLessonCompletion создаёт отметку завершения с валидацией.
// Проверка зачисления на курс - ответственность вызывающей системы.
func NewLessonCompletion(userID shared.UserID, courseID shared.CourseID, lessonNumber shared.LessonNumber, title string, completedAt time.Time) (*LessonCompletion, error) {
	if userID.IsEmpty() || !userID.IsValid() {
		return nil, shared.ErrInvalidUserID
	}
	if courseID.IsEmpty() || !courseID.IsValid() {
		return nil, shared.ErrInvalidCourseID
	}
	if !lessonNumber.IsValid() {
		return nil, shared.ErrInvalidLessonNumber
	}
	if completedAt.IsZero() {
		return nil, shared.NewDomainError("enrollment", "NewLessonCompletion",
			shared.ErrInvalidInput, "completion timestamp is required")
	}

	return &LessonCompletion{
		UserID:       userID,
		CourseID:     courseID,
		LessonNumber: lessonNumber,
		LessonTitle:  strings.TrimSpace(title),
		CompletedAt:  completedAt,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY LESSON COMPLETION (недельный прогресс по курсу)
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyLessonCompletion - счётчик уроков за неделю в рамках одного курса.
// Ключ (UserID, CourseID, WeekStart). Строка нужна для отчётов по курсу;
// сама недельная цель глобальна по всем курсам пользователя.
// LessonsCompleted монотонно не убывает внутри недели; строки не удаляются.
type WeeklyLessonCompletion struct {
	// UserID - идентификатор пользователя.
	UserID shared.UserID

	// CourseID - идентификатор курса.
	CourseID shared.CourseID

	// WeekStart - начало недельного окна.
	WeekStart time.Time

	// LessonsCompleted - уроков завершено за неделю по этому курсу.
	LessonsCompleted int

	// LastLessonAt - момент последнего засчитанного урока.
	LastLessonAt time.Time

	// CreatedAt - время создания строки.
	CreatedAt time.Time
}

// NewWeeklyLessonCompletion создаёт строку недельного прогресса
// с первым засчитанным уроком.
func NewWeeklyLessonCompletion(userID shared.UserID, courseID shared.CourseID, weekStart, lessonAt time.Time) *WeeklyLessonCompletion {
	return &WeeklyLessonCompletion{
		UserID:           userID,
		CourseID:         courseID,
		WeekStart:        weekStart,
		LessonsCompleted: 1,
		LastLessonAt:     lessonAt,
		CreatedAt:        lessonAt,
	}
}

// RecordLesson засчитывает ещё один урок в неделю.
func (w *WeeklyLessonCompletion) RecordLesson(at time.Time) {
	w.LessonsCompleted++
	w.LastLessonAt = at
}
