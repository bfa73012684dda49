package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	for _, name := range []string{FeatureBadgeAwards, FeatureStatsCache, FeatureReconciliation, FeatureRateLimiting} {
		assert.True(t, ff.IsEnabled(name, nil), name)
	}
	assert.False(t, ff.IsEnabled("unknown.feature", nil))
}

func TestLoadFeatureFlags_EnvOverride(t *testing.T) {
	t.Setenv("FEATURE_STATS_CACHE", "false")
	t.Setenv("FEATURE_BADGES_AWARDS", "true")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureStatsCache, nil))
	assert.True(t, ff.IsEnabled(FeatureBadgeAwards, nil))
}

func TestLoadFeatureFlags_PercentRollout(t *testing.T) {
	t.Setenv("FEATURE_RATE_LIMITING", "50")

	ff := LoadFeatureFlags()
	features := ff.GetAllFeatures()

	require.Contains(t, features, FeatureRateLimiting)
	assert.Equal(t, 50, features[FeatureRateLimiting].RolloutPercent)
	assert.True(t, features[FeatureRateLimiting].Enabled)
}

func TestIsEnabled_RolloutIsDeterministicPerUser(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureBadgeAwards, 50))

	ctx := &FeatureContext{UserID: "a1b2c3d4-0000-4000-8000-000000000001"}
	first := ff.IsEnabled(FeatureBadgeAwards, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureBadgeAwards, ctx))
	}
}

func TestIsEnabled_RolloutBoundaries(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{UserID: "a1b2c3d4-0000-4000-8000-000000000001"}

	require.NoError(t, ff.SetRolloutPercent(FeatureBadgeAwards, 100))
	assert.True(t, ff.IsEnabled(FeatureBadgeAwards, ctx))

	require.NoError(t, ff.SetRolloutPercent(FeatureBadgeAwards, 0))
	assert.False(t, ff.IsEnabled(FeatureBadgeAwards, ctx))
}

func TestUserOverrides(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureBadgeAwards))

	userID := "a1b2c3d4-0000-4000-8000-000000000001"
	ff.SetUserOverride(userID, FeatureBadgeAwards, true)

	assert.True(t, ff.IsEnabled(FeatureBadgeAwards, &FeatureContext{UserID: userID}))
	assert.False(t, ff.IsEnabled(FeatureBadgeAwards, &FeatureContext{UserID: "other"}))
	assert.False(t, ff.IsEnabled(FeatureBadgeAwards, nil))

	ff.ClearUserOverrides(userID)
	assert.False(t, ff.IsEnabled(FeatureBadgeAwards, &FeatureContext{UserID: userID}))
}

func TestSetRolloutPercent_Validation(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("unknown.feature", 50), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureBadgeAwards, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureBadgeAwards, -1), ErrInvalidRolloutPercent)
}

func TestGetAllFeatures_ReturnsCopies(t *testing.T) {
	ff := LoadFeatureFlags()

	features := ff.GetAllFeatures()
	features[FeatureBadgeAwards].Enabled = false

	assert.True(t, ff.IsEnabled(FeatureBadgeAwards, nil))
}
