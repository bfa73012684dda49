// Package streak содержит доменную модель движка вовлечённости KursLab:
// недельные окна, машину состояний серии, бейджи и журнал очков.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package streak

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock абстрагирует текущее время для тестируемости.
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает реальное время.
type SystemClock struct{}

// Now реализует Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock возвращает заранее заданное время (для тестов).
type FixedClock struct {
	Time time.Time
}

// Now реализует Clock.
func (c FixedClock) Now() time.Time {
	return c.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEK WINDOW
// ══════════════════════════════════════════════════════════════════════════════

// WeekWindow - полуоткрытый интервал [Start, End), в который попадают
// события завершения уроков. End = Start + 7 дней.
type WeekWindow struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли момент t в окно.
func (w WeekWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Next возвращает окно следующей календарной недели.
func (w WeekWindow) Next() WeekWindow {
	return WeekWindow{Start: w.End, End: w.End.AddDate(0, 0, 7)}
}

// Prev возвращает окно предыдущей календарной недели.
func (w WeekWindow) Prev() WeekWindow {
	return WeekWindow{Start: w.Start.AddDate(0, 0, -7), End: w.Start}
}

// IsZero проверяет, что окно не инициализировано.
func (w WeekWindow) IsZero() bool {
	return w.Start.IsZero()
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEK CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// WeekCalculator отображает момент времени на его календарную неделю.
// Якорь недели - понедельник 00:00 в настроенной таймзоне платформы.
// Чистая детерминированная функция без побочных эффектов.
type WeekCalculator struct {
	loc    *time.Location
	anchor time.Weekday
}

// NewWeekCalculator создаёт калькулятор недель для указанной таймзоны.
// При nil используется UTC.
func NewWeekCalculator(loc *time.Location) WeekCalculator {
	if loc == nil {
		loc = time.UTC
	}
	return WeekCalculator{loc: loc, anchor: time.Monday}
}

// Location возвращает таймзону калькулятора.
func (c WeekCalculator) Location() *time.Location {
	return c.loc
}

// WeekOf возвращает недельное окно, содержащее момент t.
func (c WeekCalculator) WeekOf(t time.Time) WeekWindow {
	local := t.In(c.loc)

	// Дней от якоря недели (понедельника)
	offset := int(local.Weekday()) - int(c.anchor)
	if offset < 0 {
		offset += 7
	}

	day := local.AddDate(0, 0, -offset)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.loc)

	return WeekWindow{Start: start, End: start.AddDate(0, 0, 7)}
}

// SameWeek проверяет, что два момента попадают в одну календарную неделю.
func (c WeekCalculator) SameWeek(a, b time.Time) bool {
	return c.WeekOf(a).Start.Equal(c.WeekOf(b).Start)
}

// IsImmediatelyAfter проверяет, что weekStart - это неделя, следующая
// непосредственно за prevStart. Используется для проверки непрерывности серии.
func IsImmediatelyAfter(weekStart, prevStart time.Time) bool {
	return weekStart.Equal(prevStart.AddDate(0, 0, 7))
}
