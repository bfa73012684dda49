package streak

import (
	"context"

	"github.com/kurslab/kurslab-engagement/internal/domain/enrollment"
	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции над агрегатом UserStreak внутри
// атомарной единицы работы.
type Repository interface {
	// GetForUpdate возвращает запись серии, захватив блокировку строки.
	// Отсутствующая запись создаётся пустой и блокируется - так
	// конкурентные вызовы одного пользователя сериализуются.
	GetForUpdate(ctx context.Context, userID shared.UserID) (*UserStreak, error)

	// Save сохраняет изменённый агрегат.
	Save(ctx context.Context, s *UserStreak) error
}

// BadgeRepository определяет операции над выданными бейджами.
type BadgeRepository interface {
	// EarnedLevels возвращает множество уже выданных уровней.
	EarnedLevels(ctx context.Context, userID shared.UserID) (map[BadgeLevel]bool, error)

	// Award сохраняет бейдж. Возвращает ErrBadgeAlreadyEarned,
	// если уровень уже выдан.
	Award(ctx context.Context, b *Badge) error
}

// LedgerRepository определяет операции над журналом очков.
type LedgerRepository interface {
	// Append дописывает запись в журнал. Журнал никогда не изменяется
	// и не усекается.
	Append(ctx context.Context, tx *PointsTransaction) error

	// SumForUser пересчитывает сумму очков по журналу.
	// Используется сверкой и тестами, не горячим путём.
	SumForUser(ctx context.Context, userID shared.UserID) (shared.Points, error)

	// ListForUser возвращает последние записи журнала (новые первыми).
	ListForUser(ctx context.Context, userID shared.UserID, limit int) ([]*PointsTransaction, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Tx - репозитории, привязанные к одной атомарной единице работы.
// Либо фиксируются все изменения {отметка идемпотентности, недельный
// счётчик, серия, бейдж, журнал}, либо ни одно.
type Tx interface {
	Enrollments() enrollment.Repository
	WeeklyProgress() enrollment.WeeklyRepository
	Streaks() Repository
	Badges() BadgeRepository
	Ledger() LedgerRepository
}

// Store запускает атомарные единицы работы движка.
// Конфликт сериализации возвращается как shared.ErrConcurrentModification;
// вызывающий повторяет попытку ограниченное число раз.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

// Reader определяет читающие операции вне транзакций (CQRS read side).
type Reader interface {
	// GetStreak возвращает запись серии.
	// Возвращает ErrStreakNotFound, если записи нет.
	GetStreak(ctx context.Context, userID shared.UserID) (*UserStreak, error)

	// ListBadges возвращает бейджи пользователя по возрастанию порога.
	ListBadges(ctx context.Context, userID shared.UserID) ([]*Badge, error)

	// ListUserIDs постранично возвращает пользователей с записью серии.
	// Используется сверкой журнала.
	ListUserIDs(ctx context.Context, limit, offset int) ([]shared.UserID, error)
}
