package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
)

func TestDefaultTierTable_AscendingThresholds(t *testing.T) {
	table := DefaultTierTable()
	require.Len(t, table, 5)

	for i := 1; i < len(table); i++ {
		assert.Greater(t, table[i].Threshold, table[i-1].Threshold)
		assert.Greater(t, table[i].Bonus, table[i-1].Bonus)
	}
	assert.Equal(t, BadgeBronze, table[0].Level)
	assert.Equal(t, 4, table[0].Threshold)
	assert.Equal(t, BadgeDiamond, table[4].Level)
	assert.Equal(t, 52, table[4].Threshold)
}

func TestTierTable_Normalized(t *testing.T) {
	shuffled := TierTable{
		{Level: BadgeGold, Threshold: 12, Bonus: 300},
		{Level: BadgeBronze, Threshold: 4, Bonus: 100},
		{Level: BadgeSilver, Threshold: 8, Bonus: 200},
	}

	sorted := shuffled.Normalized()

	assert.Equal(t, BadgeBronze, sorted[0].Level)
	assert.Equal(t, BadgeSilver, sorted[1].Level)
	assert.Equal(t, BadgeGold, sorted[2].Level)
	// The original table is not touched
	assert.Equal(t, BadgeGold, shuffled[0].Level)
}

func TestTierTable_NextUnearned(t *testing.T) {
	table := DefaultTierTable()

	tests := []struct {
		name      string
		streak    int
		earned    map[BadgeLevel]bool
		wantLevel BadgeLevel
		wantOK    bool
	}{
		{name: "below first threshold", streak: 3, earned: nil, wantOK: false},
		{name: "bronze at threshold", streak: 4, earned: nil, wantLevel: BadgeBronze, wantOK: true},
		{name: "lowest tier first even when higher reached", streak: 12, earned: nil, wantLevel: BadgeBronze, wantOK: true},
		{
			name:      "skipped tiers backfill in order",
			streak:    12,
			earned:    map[BadgeLevel]bool{BadgeBronze: true},
			wantLevel: BadgeSilver,
			wantOK:    true,
		},
		{
			name:      "next after backfill",
			streak:    12,
			earned:    map[BadgeLevel]bool{BadgeBronze: true, BadgeSilver: true},
			wantLevel: BadgeGold,
			wantOK:    true,
		},
		{
			name:   "all reachable tiers earned",
			streak: 12,
			earned: map[BadgeLevel]bool{BadgeBronze: true, BadgeSilver: true, BadgeGold: true},
			wantOK: false,
		},
		{name: "zero streak", streak: 0, earned: nil, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, ok := table.NextUnearned(tt.streak, tt.earned)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantLevel, tier.Level)
			}
		})
	}
}

func TestNextUnearned_EmptyTableNeverAwards(t *testing.T) {
	var table TierTable
	_, ok := table.NextUnearned(100, nil)
	assert.False(t, ok)
}

func TestNewBadge(t *testing.T) {
	now := time.Date(2025, 2, 3, 9, 0, 0, 0, time.UTC)

	badge, err := NewBadge(testUserID, BadgeSilver, 8, now)
	require.NoError(t, err)
	assert.Equal(t, BadgeSilver, badge.Level)
	assert.Equal(t, 8, badge.StreakWhenEarned)
	assert.Equal(t, CurrentBadgeMetaSchema, badge.Meta.SchemaVersion)
	assert.NotEmpty(t, badge.Meta.DisplayName)
	assert.NotEmpty(t, badge.Meta.Icon)

	_, err = NewBadge("", BadgeSilver, 8, now)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = NewBadge(testUserID, BadgeLevel("wood"), 8, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestBadgeLevel_IsValid(t *testing.T) {
	for _, level := range []BadgeLevel{BadgeBronze, BadgeSilver, BadgeGold, BadgePlatinum, BadgeDiamond} {
		assert.True(t, level.IsValid(), level.String())
	}
	assert.False(t, BadgeLevel("").IsValid())
	assert.False(t, BadgeLevel("wood").IsValid())
}
