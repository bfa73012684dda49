package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurslab/kurslab-engagement/pkg/timeutil"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "kurslab-engagement", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, "Asia/Almaty", cfg.App.Timezone)
	assert.Equal(t, 5, cfg.Engagement.WeeklyGoal)
	assert.Equal(t, 10, cfg.Engagement.PerLessonPoints)
	assert.Equal(t, 50, cfg.Engagement.GoalBonusPoints)
	assert.Len(t, cfg.Engagement.Tiers, 5)
}

func TestLoad_TimezoneFallsBackToPlatform(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Not/AZone")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Not/AZone", cfg.App.Timezone)
	assert.Equal(t, timeutil.PlatformTZ, cfg.App.Location)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("ENGAGEMENT_WEEKLY_GOAL", "7")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.App.Location.String())
	assert.Equal(t, 7, cfg.Engagement.WeeklyGoal)
	assert.Equal(t, 5*time.Second, cfg.App.ShutdownTimeout)
}

func TestLoad_ProductionRequiresDatabaseURL(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidate_TierThresholdsMustAscend(t *testing.T) {
	t.Setenv("ENGAGEMENT_TIER_SILVER_WEEKS", "4")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "silver")
}
