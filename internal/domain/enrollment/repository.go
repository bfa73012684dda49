package enrollment

import (
	"context"
	"time"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над множеством завершённых уроков.
type Repository interface {
	// MarkCompleted отмечает урок завершённым. Возвращает false,
	// если урок уже был засчитан (дубликат) - тогда вызов не имеет
	// никаких побочных эффектов.
	MarkCompleted(ctx context.Context, c *LessonCompletion) (bool, error)

	// HasCompleted проверяет, засчитан ли урок.
	HasCompleted(ctx context.Context, userID shared.UserID, courseID shared.CourseID, lessonNumber shared.LessonNumber) (bool, error)

	// CompletedLessons возвращает номера засчитанных уроков курса.
	CompletedLessons(ctx context.Context, userID shared.UserID, courseID shared.CourseID) ([]shared.LessonNumber, error)
}

// WeeklyRepository определяет операции над недельным прогрессом по курсу.
type WeeklyRepository interface {
	// RecordLesson создаёт строку (user, course, weekStart) со счётчиком 1
	// или увеличивает существующий счётчик, обновляя LastLessonAt.
	RecordLesson(ctx context.Context, userID shared.UserID, courseID shared.CourseID, weekStart, lessonAt time.Time) (*WeeklyLessonCompletion, error)

	// Get возвращает строку недельного прогресса.
	// Возвращает shared.ErrNotFound, если строки нет.
	Get(ctx context.Context, userID shared.UserID, courseID shared.CourseID, weekStart time.Time) (*WeeklyLessonCompletion, error)

	// ListForWeek возвращает строки пользователя за неделю по всем курсам.
	ListForWeek(ctx context.Context, userID shared.UserID, weekStart time.Time) ([]*WeeklyLessonCompletion, error)
}
