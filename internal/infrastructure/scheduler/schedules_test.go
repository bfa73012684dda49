package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalSchedule_Next(t *testing.T) {
	s := NewIntervalSchedule(15 * time.Minute)
	at := time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, at.Add(15*time.Minute), s.Next(at))
	assert.Equal(t, "@every 15m0s", s.String())
}

func TestDailySchedule_Next(t *testing.T) {
	s := NewDailySchedule(3, 0, time.UTC)

	t.Run("before fire time runs today", func(t *testing.T) {
		at := time.Date(2025, 1, 13, 1, 30, 0, 0, time.UTC)
		next := s.Next(at)
		assert.Equal(t, time.Date(2025, 1, 13, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("after fire time rolls to tomorrow", func(t *testing.T) {
		at := time.Date(2025, 1, 13, 14, 0, 0, 0, time.UTC)
		next := s.Next(at)
		assert.Equal(t, time.Date(2025, 1, 14, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("exactly at fire time rolls to tomorrow", func(t *testing.T) {
		at := time.Date(2025, 1, 13, 3, 0, 0, 0, time.UTC)
		next := s.Next(at)
		assert.Equal(t, time.Date(2025, 1, 14, 3, 0, 0, 0, time.UTC), next)
	})
}

func TestDailySchedule_Timezone(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	s := NewDailySchedule(3, 0, almaty)

	// 23:00 UTC on the 13th is already 04:00 on the 14th in UTC+5,
	// so the next 03:00 local fire is on the 15th.
	at := time.Date(2025, 1, 13, 23, 0, 0, 0, time.UTC)
	next := s.Next(at)

	assert.Equal(t, time.Date(2025, 1, 15, 3, 0, 0, 0, almaty).Unix(), next.Unix())
}

func TestDailySchedule_NilLocationDefaultsToUTC(t *testing.T) {
	s := NewDailySchedule(3, 30, nil)
	assert.Equal(t, time.UTC, s.Location)
	assert.Equal(t, "@daily 03:30 UTC", s.String())
}
