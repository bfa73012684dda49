package streak

import (
	"strings"
	"time"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION TYPES
// ══════════════════════════════════════════════════════════════════════════════

// TransactionType - тип записи журнала очков.
type TransactionType string

const (
	// TxPerLesson - фиксированное начисление за каждый засчитанный урок.
	TxPerLesson TransactionType = "per_lesson"

	// TxGoalBonus - бонус за достижение недельной цели.
	TxGoalBonus TransactionType = "goal_bonus"

	// TxBadgeBonus - бонус за выданный бейдж.
	TxBadgeBonus TransactionType = "badge_bonus"
)

// IsValid проверяет, что тип известен.
func (t TransactionType) IsValid() bool {
	switch t {
	case TxPerLesson, TxGoalBonus, TxBadgeBonus:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление типа.
func (t TransactionType) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// POINTS TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

// PointsTransaction - запись журнала очков. Журнал только дописывается
// и является источником истины для суммы очков пользователя;
// UserStreak.TotalPoints - лишь кеш этой суммы.
type PointsTransaction struct {
	// ID - уникальный идентификатор записи (UUID).
	ID string

	// UserID - идентификатор пользователя.
	UserID shared.UserID

	// Points - начисленные очки, всегда положительные.
	Points shared.Points

	// Type - тип начисления.
	Type TransactionType

	// Reason - человекочитаемая причина для аудита.
	Reason string

	// CreatedAt - время записи.
	CreatedAt time.Time
}

// NewPointsTransaction создаёт запись журнала с валидацией.
func NewPointsTransaction(id string, userID shared.UserID, points shared.Points, txType TransactionType, reason string, at time.Time) (*PointsTransaction, error) {
	if userID.IsEmpty() {
		return nil, shared.ErrInvalidUserID
	}
	if points <= 0 {
		return nil, shared.ErrZeroPointsAmount
	}
	if !txType.IsValid() {
		return nil, shared.ErrUnknownTxType
	}
	return &PointsTransaction{
		ID:        id,
		UserID:    userID,
		Points:    points,
		Type:      txType,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: at,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// POINTS POLICY
// ══════════════════════════════════════════════════════════════════════════════

// PointsPolicy - настроенные размеры начислений.
type PointsPolicy struct {
	// PerLesson - очки за каждый засчитанный урок.
	PerLesson shared.Points

	// GoalBonus - бонус за достижение недельной цели.
	GoalBonus shared.Points
}

// DefaultPointsPolicy возвращает размеры начислений по умолчанию.
func DefaultPointsPolicy() PointsPolicy {
	return PointsPolicy{
		PerLesson: 10,
		GoalBonus: 50,
	}
}
