package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeekCalculator_MondayAnchor(t *testing.T) {
	calc := NewWeekCalculator(time.UTC)

	// 2025-01-15 is a Wednesday
	week := calc.WeekOf(time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), week.Start)
	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), week.End)
	assert.Equal(t, time.Monday, week.Start.Weekday())
}

func TestWeekCalculator_SundayBelongsToPrecedingMonday(t *testing.T) {
	calc := NewWeekCalculator(time.UTC)

	// 2025-01-19 is a Sunday
	week := calc.WeekOf(time.Date(2025, 1, 19, 23, 59, 59, 0, time.UTC))

	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), week.Start)
}

func TestWeekCalculator_MondayMidnightStartsItsOwnWeek(t *testing.T) {
	calc := NewWeekCalculator(time.UTC)

	monday := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
	week := calc.WeekOf(monday)

	assert.Equal(t, monday, week.Start)
}

func TestWeekCalculator_TimezoneDecidesTheWeek(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	calc := NewWeekCalculator(almaty)

	// Sunday 20:00 UTC is already Monday 01:00 in UTC+5
	sundayEveningUTC := time.Date(2025, 1, 19, 20, 0, 0, 0, time.UTC)
	week := calc.WeekOf(sundayEveningUTC)

	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, almaty).Unix(), week.Start.Unix())

	// The same instant in a UTC calculator still falls into the previous week
	utcWeek := NewWeekCalculator(time.UTC).WeekOf(sundayEveningUTC)
	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), utcWeek.Start)
}

func TestWeekWindow_HalfOpen(t *testing.T) {
	calc := NewWeekCalculator(time.UTC)
	week := calc.WeekOf(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))

	assert.True(t, week.Contains(week.Start))
	assert.True(t, week.Contains(week.End.Add(-time.Nanosecond)))
	assert.False(t, week.Contains(week.End))
	assert.False(t, week.Contains(week.Start.Add(-time.Nanosecond)))
}

func TestWeekWindow_NextPrev(t *testing.T) {
	calc := NewWeekCalculator(time.UTC)
	week := calc.WeekOf(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))

	next := week.Next()
	assert.Equal(t, week.End, next.Start)
	assert.Equal(t, week.Start, next.Prev().Start)
}

func TestWeekCalculator_SameWeek(t *testing.T) {
	calc := NewWeekCalculator(time.UTC)

	monday := time.Date(2025, 1, 13, 8, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 1, 19, 22, 0, 0, 0, time.UTC)
	nextMonday := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	assert.True(t, calc.SameWeek(monday, sunday))
	assert.False(t, calc.SameWeek(sunday, nextMonday))
}

func TestIsImmediatelyAfter(t *testing.T) {
	week1 := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
	week2 := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	week3 := time.Date(2025, 1, 27, 0, 0, 0, 0, time.UTC)

	assert.True(t, IsImmediatelyAfter(week2, week1))
	assert.False(t, IsImmediatelyAfter(week3, week1))
	assert.False(t, IsImmediatelyAfter(week1, week2))
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := FixedClock{Time: at}
	assert.Equal(t, at, clock.Now())
}
