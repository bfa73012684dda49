package streak

import (
	"sort"
	"time"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE LEVELS
// ══════════════════════════════════════════════════════════════════════════════

// BadgeLevel - уровень бейджа за длину серии.
type BadgeLevel string

const (
	BadgeBronze   BadgeLevel = "bronze"
	BadgeSilver   BadgeLevel = "silver"
	BadgeGold     BadgeLevel = "gold"
	BadgePlatinum BadgeLevel = "platinum"
	BadgeDiamond  BadgeLevel = "diamond"
)

// IsValid проверяет, что уровень известен.
func (l BadgeLevel) IsValid() bool {
	switch l {
	case BadgeBronze, BadgeSilver, BadgeGold, BadgePlatinum, BadgeDiamond:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление уровня.
func (l BadgeLevel) String() string {
	return string(l)
}

// ══════════════════════════════════════════════════════════════════════════════
// TIER TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Tier - один порог таблицы уровней: длина серии в неделях и бонус очков.
type Tier struct {
	Level     BadgeLevel
	Threshold int
	Bonus     shared.Points
}

// TierTable - упорядоченная по возрастанию порогов таблица уровней.
type TierTable []Tier

// DefaultTierTable возвращает таблицу уровней платформы.
func DefaultTierTable() TierTable {
	return TierTable{
		{Level: BadgeBronze, Threshold: 4, Bonus: 100},
		{Level: BadgeSilver, Threshold: 8, Bonus: 200},
		{Level: BadgeGold, Threshold: 12, Bonus: 300},
		{Level: BadgePlatinum, Threshold: 24, Bonus: 500},
		{Level: BadgeDiamond, Threshold: 52, Bonus: 1000},
	}
}

// Normalized возвращает копию таблицы, отсортированную по порогам.
func (t TierTable) Normalized() TierTable {
	out := make(TierTable, len(t))
	copy(out, t)
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}

// NextUnearned возвращает НИЗШИЙ неполученный уровень, порог которого
// достигнут серией. За одно событие выдаётся не больше одного бейджа;
// пропущенные уровни добираются по возрастанию на следующих событиях.
func (t TierTable) NextUnearned(currentStreak int, earned map[BadgeLevel]bool) (Tier, bool) {
	for _, tier := range t.Normalized() {
		if tier.Threshold > currentStreak {
			break
		}
		if !earned[tier.Level] {
			return tier, true
		}
	}
	return Tier{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// BadgeMeta - типизированные отображаемые данные бейджа.
// Явная версия схемы вместо свободной JSON-карты: движок может
// детерминированно валидировать и мигрировать содержимое.
type BadgeMeta struct {
	SchemaVersion int    `json:"schema_version"`
	DisplayName   string `json:"display_name"`
	Icon          string `json:"icon"`
}

// CurrentBadgeMetaSchema - текущая версия схемы BadgeMeta.
const CurrentBadgeMetaSchema = 1

// DefaultBadgeMeta возвращает отображаемые данные для уровня.
func DefaultBadgeMeta(level BadgeLevel) BadgeMeta {
	meta := BadgeMeta{SchemaVersion: CurrentBadgeMetaSchema}
	switch level {
	case BadgeBronze:
		meta.DisplayName, meta.Icon = "Бронза", "🥉"
	case BadgeSilver:
		meta.DisplayName, meta.Icon = "Серебро", "🥈"
	case BadgeGold:
		meta.DisplayName, meta.Icon = "Золото", "🥇"
	case BadgePlatinum:
		meta.DisplayName, meta.Icon = "Платина", "💠"
	case BadgeDiamond:
		meta.DisplayName, meta.Icon = "Алмаз", "💎"
	}
	return meta
}

// Badge - выданный бейдж. Уникален по (UserID, Level) и никогда не
// выдаётся повторно.
type Badge struct {
	// UserID - идентификатор пользователя.
	UserID shared.UserID

	// Level - уровень бейджа.
	Level BadgeLevel

	// StreakWhenEarned - длина серии в момент выдачи.
	StreakWhenEarned int

	// EarnedAt - время выдачи.
	EarnedAt time.Time

	// Meta - отображаемые данные.
	Meta BadgeMeta
}

// NewBadge создаёт бейдж с валидацией уровня.
func NewBadge(userID shared.UserID, level BadgeLevel, streakWhenEarned int, earnedAt time.Time) (*Badge, error) {
	if userID.IsEmpty() {
		return nil, shared.ErrInvalidUserID
	}
	if !level.IsValid() {
		return nil, shared.ErrUnknownBadgeLevel
	}
	return &Badge{
		UserID:           userID,
		Level:            level,
		StreakWhenEarned: streakWhenEarned,
		EarnedAt:         earnedAt,
		Meta:             DefaultBadgeMeta(level),
	}, nil
}
