package streak

import (
	"time"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: USER STREAK
// ══════════════════════════════════════════════════════════════════════════════

// UserStreak - агрегат серии пользователя. Одна запись на пользователя,
// создаётся при первом завершённом уроке и никогда не удаляется.
//
// Инварианты:
//   - CurrentWeekLessons >= 0
//   - CurrentStreak <= LongestStreak
//   - CurrentWeekComplete == (CurrentWeekLessons >= недельная цель)
type UserStreak struct {
	// UserID - идентификатор пользователя.
	UserID shared.UserID

	// CurrentWeekStart - начало текущей отслеживаемой недели.
	CurrentWeekStart time.Time

	// CurrentWeekLessons - уроков за текущую неделю, суммарно по всем курсам.
	CurrentWeekLessons int

	// CurrentWeekComplete - достигнута ли недельная цель в текущей неделе.
	CurrentWeekComplete bool

	// CurrentStreak - текущая серия недель с достигнутой целью.
	CurrentStreak int

	// LongestStreak - лучшая серия за всё время.
	LongestStreak int

	// TotalPoints - кеш суммы журнала очков. Источник истины - сам журнал.
	TotalPoints shared.Points

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time
}

// NewUserStreak создаёт пустую запись серии для пользователя.
func NewUserStreak(userID shared.UserID, now time.Time) *UserStreak {
	return &UserStreak{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION OUTCOME
// ══════════════════════════════════════════════════════════════════════════════

// CompletionOutcome описывает, что изменилось при применении одного события
// завершения урока. Маркеры "только что случилось" передаются вызывающему
// в составе результата запроса - без глобального разделяемого состояния.
type CompletionOutcome struct {
	// WeekStart - начало недели события.
	WeekStart time.Time

	// WeekLessons - счётчик уроков недели после применения.
	WeekLessons int

	// GoalMet - достигнута ли цель недели (текущее состояние).
	GoalMet bool

	// GoalJustMet - цель пересечена именно этим уроком.
	GoalJustMet bool

	// WeekRolledOver - событие открыло новую неделю.
	WeekRolledOver bool

	// StreakReset - серия сброшена в ноль при открытии новой недели.
	StreakReset bool

	// PreviousStreak - значение серии до сброса (если StreakReset).
	PreviousStreak int

	// CurrentStreak - серия после применения.
	CurrentStreak int

	// LongestStreak - лучшая серия после применения.
	LongestStreak int
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// ApplyCompletion применяет одно недублирующее событие завершения урока.
//
// Шаг 1 - закрытие недели: если неделя события новее текущей, предыдущая
// неделя закрыта. Серия сохраняется только когда закрытая неделя была
// выполнена И является непосредственно предыдущей календарной неделей;
// иначе (цель не достигнута или пропущено больше одной недели) серия
// сбрасывается в ноль. Затем открывается новая неделя с нулевым счётчиком.
// Переход недель только вперёд: запоздавшее событие из уже закрытой недели
// не откатывает состояние - счётчики не меняются, вызывающий начисляет
// только очки за урок.
//
// Шаг 2 - инкремент счётчика недели.
//
// Шаг 3 - переход цели: срабатывает ровно один раз за неделю, на уроке,
// пересёкшем порог. Серия увеличивается на единицу; решение о непрерывности
// уже принято на шаге 1.
//
// Начисление очков выполняет вызывающий по возвращённому результату.
func (s *UserStreak) ApplyCompletion(week WeekWindow, weeklyGoal int, now time.Time) CompletionOutcome {
	outcome := CompletionOutcome{WeekStart: week.Start}

	if !s.CurrentWeekStart.IsZero() && week.Start.Before(s.CurrentWeekStart) {
		s.UpdatedAt = now
		outcome.WeekLessons = s.CurrentWeekLessons
		outcome.GoalMet = s.CurrentWeekComplete
		outcome.CurrentStreak = s.CurrentStreak
		outcome.LongestStreak = s.LongestStreak
		return outcome
	}

	switch {
	case s.CurrentWeekStart.IsZero():
		// Первое событие пользователя - открываем первую неделю
		s.CurrentWeekStart = week.Start
		s.CurrentWeekLessons = 0
		s.CurrentWeekComplete = false

	case !week.Start.Equal(s.CurrentWeekStart):
		outcome.WeekRolledOver = true

		continues := s.CurrentWeekComplete && IsImmediatelyAfter(week.Start, s.CurrentWeekStart)
		if !continues && s.CurrentStreak > 0 {
			outcome.StreakReset = true
			outcome.PreviousStreak = s.CurrentStreak
			s.CurrentStreak = 0
		}

		s.CurrentWeekStart = week.Start
		s.CurrentWeekLessons = 0
		s.CurrentWeekComplete = false
	}

	s.CurrentWeekLessons++

	if !s.CurrentWeekComplete && s.CurrentWeekLessons >= weeklyGoal {
		s.CurrentWeekComplete = true
		s.CurrentStreak++
		if s.CurrentStreak > s.LongestStreak {
			s.LongestStreak = s.CurrentStreak
		}
		outcome.GoalJustMet = true
	}

	s.UpdatedAt = now

	outcome.WeekLessons = s.CurrentWeekLessons
	outcome.GoalMet = s.CurrentWeekComplete
	outcome.CurrentStreak = s.CurrentStreak
	outcome.LongestStreak = s.LongestStreak

	return outcome
}

// ProjectedForWeek возвращает состояние серии, как его следует показывать
// для недели week без записи в хранилище. Закрытие недели выполняется
// лениво на следующем событии, поэтому чтение само проецирует сброс:
// недостигнутая или несмежная прошедшая неделя обнуляет видимую серию.
func (s *UserStreak) ProjectedForWeek(week WeekWindow) (weekLessons int, goalMet bool, currentStreak int) {
	if s.CurrentWeekStart.IsZero() || week.Start.Equal(s.CurrentWeekStart) {
		return s.CurrentWeekLessons, s.CurrentWeekComplete, s.CurrentStreak
	}

	// Сохранённая неделя в прошлом: счётчик текущей недели ещё нулевой
	if s.CurrentWeekComplete && IsImmediatelyAfter(week.Start, s.CurrentWeekStart) {
		return 0, false, s.CurrentStreak
	}
	return 0, false, 0
}

// AddPoints увеличивает кеш суммы очков. Вызывается только в той же
// атомарной единице работы, что и запись в журнал.
func (s *UserStreak) AddPoints(delta shared.Points, now time.Time) {
	s.TotalPoints = s.TotalPoints.Add(delta)
	s.UpdatedAt = now
}

// Validate проверяет инварианты агрегата.
func (s *UserStreak) Validate(weeklyGoal int) error {
	if s.UserID.IsEmpty() {
		return shared.ErrInvalidUserID
	}
	if s.CurrentWeekLessons < 0 {
		return shared.ErrNegativeWeekCount
	}
	if s.CurrentStreak > s.LongestStreak {
		return shared.ErrStreakStateCorrupt
	}
	if s.CurrentWeekComplete != (s.CurrentWeekLessons >= weeklyGoal) {
		return shared.ErrStreakStateCorrupt
	}
	if !s.TotalPoints.IsValid() {
		return shared.ErrStreakStateCorrupt
	}
	return nil
}

// Clone создаёт копию агрегата.
func (s *UserStreak) Clone() *UserStreak {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
