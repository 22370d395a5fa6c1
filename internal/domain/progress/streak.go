package progress

import (
	"context"
	"time"

	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// StreakTransition - какой переход выполнила серия.
type StreakTransition string

const (
	// StreakStarted - первая активность.
	StreakStarted StreakTransition = "started"

	// StreakUnchanged - активность уже была сегодня.
	StreakUnchanged StreakTransition = "unchanged"

	// StreakExtended - активность вчера, серия продолжается.
	StreakExtended StreakTransition = "extended"

	// StreakReset - пропуск двух и более дней (или некорректная дата), серия с 1.
	StreakReset StreakTransition = "reset"
)

// StreakState - счётчики серии.
type StreakState struct {
	// Current - текущая серия.
	Current int `json:"current_streak"`

	// Max - лучшая серия.
	Max int `json:"max_streak"`

	// LastActivityDate - день последней активности (полночь UTC).
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}

// ApplyActivity вычисляет новое состояние серии для активности в день today.
// Повторное применение к уже обновлённому состоянию - no-op.
func ApplyActivity(state StreakState, today time.Time) (StreakState, StreakTransition) {
	today = DateOnly(today)

	next := StreakState{
		Current:          state.Current,
		Max:              state.Max,
		LastActivityDate: &today,
	}

	var transition StreakTransition
	switch {
	case state.LastActivityDate == nil || state.LastActivityDate.IsZero():
		next.Current = 1
		transition = StreakStarted
	default:
		switch DaysBetween(*state.LastActivityDate, today) {
		case 0:
			return state, StreakUnchanged
		case 1:
			next.Current = state.Current + 1
			transition = StreakExtended
		default:
			// Пропуск или дата из будущего.
			next.Current = 1
			transition = StreakReset
		}
	}

	if next.Current > next.Max {
		next.Max = next.Current
	}
	return next, transition
}

// DateOnly приводит время к календарному дню (полночь UTC с теми же Y/M/D).
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween возвращает количество календарных дней от from до to.
func DaysBetween(from, to time.Time) int {
	return int(DateOnly(to).Sub(DateOnly(from)).Hours() / 24)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// Clock возвращает текущее время. Подменяется в тестах.
type Clock func() time.Time

// StreakResult - результат RecordActivity.
type StreakResult struct {
	StreakState

	// Transition - выполненный переход.
	Transition StreakTransition `json:"transition"`

	// PreviousStreak - серия до перехода.
	PreviousStreak int `json:"previous_streak"`
}

// StreakTracker обновляет серию через compare-and-swap по дате последней активности.
type StreakTracker struct {
	repo        ProfileRepository
	clock       Clock
	location    *time.Location
	maxAttempts int
}

// StreakTrackerOption настраивает трекер.
type StreakTrackerOption func(*StreakTracker)

// WithClock задаёт источник времени.
func WithClock(c Clock) StreakTrackerOption {
	return func(t *StreakTracker) { t.clock = c }
}

// WithLocation задаёт часовой пояс, в котором считается "сегодня".
func WithLocation(loc *time.Location) StreakTrackerOption {
	return func(t *StreakTracker) {
		if loc != nil {
			t.location = loc
		}
	}
}

// WithMaxAttempts задаёт число попыток CAS.
func WithMaxAttempts(n int) StreakTrackerOption {
	return func(t *StreakTracker) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// NewStreakTracker создаёт трекер серий.
func NewStreakTracker(repo ProfileRepository, opts ...StreakTrackerOption) *StreakTracker {
	t := &StreakTracker{
		repo:        repo,
		clock:       time.Now,
		location:    time.UTC,
		maxAttempts: 5,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Today возвращает текущий календарный день в настроенном поясе.
func (t *StreakTracker) Today() time.Time {
	return DateOnly(t.clock().In(t.location))
}

// RecordActivity фиксирует активность ученика за сегодня.
// Конкурентные вызовы в один день: один выигрывает CAS, остальные
// перечитывают профиль и попадают в ветку "уже сегодня".
func (t *StreakTracker) RecordActivity(ctx context.Context, userID string) (*StreakResult, error) {
	today := t.Today()

	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		profile, err := t.repo.GetProfile(ctx, userID)
		if err != nil {
			return nil, err
		}

		current := profile.Streak()
		next, transition := ApplyActivity(current, today)
		if transition == StreakUnchanged {
			return &StreakResult{StreakState: current, Transition: transition, PreviousStreak: current.Current}, nil
		}

		swapped, err := t.repo.CompareAndSetStreak(ctx, userID, current.LastActivityDate, next)
		if err != nil {
			return nil, err
		}
		if swapped {
			return &StreakResult{StreakState: next, Transition: transition, PreviousStreak: current.Current}, nil
		}
	}

	return nil, shared.ErrStreakContention
}
