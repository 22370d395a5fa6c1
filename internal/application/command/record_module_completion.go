// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiongozi/gamification-engine/internal/domain/badge"
	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
	"github.com/kiongozi/gamification-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD MODULE COMPLETION COMMAND
// Единственная точка изменения игрового состояния: начисляет XP, обновляет
// серию, пересчитывает уровень и выдаёт бейджи.
// ══════════════════════════════════════════════════════════════════════════════

// RecordModuleCompletionCommand содержит данные о завершении модуля.
type RecordModuleCompletionCommand struct {
	// UserID - UUID ученика.
	UserID string

	// XPAward - сколько XP начислить, от 1 до progress.MaxTotalXP.
	XPAward int

	// ModuleID - завершённый модуль (опционально, для счётчика modules_completed).
	ModuleID string

	// CourseID - курс, к которому относится модуль.
	CourseID string

	// CourseCompleted - этот модуль завершил курс.
	CourseCompleted bool

	// CorrelationID для трассировки.
	CorrelationID string
}

// Validate проверяет команду и возвращает нормализованный UserID.
func (c RecordModuleCompletionCommand) Validate() (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.UserID))
	if err != nil {
		return "", shared.WrapError("progress", "Validate", shared.ErrInvalidUserID, "user_id must be a UUID", err)
	}
	if c.XPAward <= 0 {
		return "", shared.ErrInvalidXPAward
	}
	if c.XPAward > progress.MaxTotalXP {
		return "", shared.ErrXPAwardTooLarge
	}
	if c.CourseCompleted && strings.TrimSpace(c.CourseID) == "" {
		return "", shared.NewDomainError("progress", "Validate", shared.ErrInvalidInput, "course_id is required when course_completed is set")
	}
	return id.String(), nil
}

// RecordModuleCompletionResult - обновлённый профиль и новые бейджи.
type RecordModuleCompletionResult struct {
	// Profile - снимок профиля после всех шагов.
	Profile *progress.Profile

	// LevelInfo - уровень, пересчитанный из TotalXP.
	LevelInfo progress.LevelInfo

	// Streak - результат обновления серии.
	Streak *progress.StreakResult

	// NewBadges - бейджи, выданные этим вызовом.
	NewBadges []badge.EarnedBadge

	// PreviousLevel - уровень до начисления XP.
	PreviousLevel int

	// LevelsGained - на сколько уровней вырос ученик.
	LevelsGained int

	// LeveledUp - уровень вырос.
	LeveledUp bool

	// ModuleRecorded - модуль записан впервые.
	ModuleRecorded bool

	// BadgeEvaluationFailed - проверка бейджей не удалась, повторится на следующем событии.
	BadgeEvaluationFailed bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// BadgeEvaluator - проверка и выдача бейджей.
type BadgeEvaluator interface {
	EvaluateAndAward(ctx context.Context, userID string) ([]badge.EarnedBadge, error)
}

// Observer получает игровые метрики.
type Observer interface {
	ObserveXP(amount int)
	ObserveLevelUp()
	ObserveStreak(transition string)
	ObserveBadgeAwarded(badgeID string)
	ObserveBadgeFailure()
}

type nopObserver struct{}

func (nopObserver) ObserveXP(int)              {}
func (nopObserver) ObserveLevelUp()            {}
func (nopObserver) ObserveStreak(string)       {}
func (nopObserver) ObserveBadgeAwarded(string) {}
func (nopObserver) ObserveBadgeFailure()       {}

// RecordModuleCompletionHandler обрабатывает RecordModuleCompletionCommand.
type RecordModuleCompletionHandler struct {
	profiles    progress.ProfileRepository
	completions progress.CompletionRepository
	streaks     *progress.StreakTracker
	badges      BadgeEvaluator
	events      shared.EventPublisher
	observer    Observer
	log         *logger.Logger
	now         func() time.Time
	maxAward    int
}

// RecordModuleCompletionDeps - зависимости обработчика. Completions, Events и Observer опциональны.
type RecordModuleCompletionDeps struct {
	Profiles    progress.ProfileRepository
	Completions progress.CompletionRepository
	Streaks     *progress.StreakTracker
	Badges      BadgeEvaluator
	Events      shared.EventPublisher
	Observer    Observer
	Logger      *logger.Logger
	Clock       func() time.Time

	// MaxXPAward - предел одной награды. 0 = progress.MaxTotalXP.
	MaxXPAward int
}

// NewRecordModuleCompletionHandler создаёт обработчик.
func NewRecordModuleCompletionHandler(deps RecordModuleCompletionDeps) *RecordModuleCompletionHandler {
	if deps.Streaks == nil {
		deps.Streaks = progress.NewStreakTracker(deps.Profiles)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.MaxXPAward <= 0 || deps.MaxXPAward > progress.MaxTotalXP {
		deps.MaxXPAward = progress.MaxTotalXP
	}

	return &RecordModuleCompletionHandler{
		profiles:    deps.Profiles,
		completions: deps.Completions,
		streaks:     deps.Streaks,
		badges:      deps.Badges,
		events:      deps.Events,
		observer:    deps.Observer,
		log:         deps.Logger.With(logger.Component("record_module_completion")),
		now:         deps.Clock,
		maxAward:    deps.MaxXPAward,
	}
}

// Handle выполняет команду.
// Ошибки начисления XP, серии и уровня возвращаются; ошибка бейджей только логируется.
func (h *RecordModuleCompletionHandler) Handle(ctx context.Context, cmd RecordModuleCompletionCommand) (*RecordModuleCompletionResult, error) {
	userID, err := cmd.Validate()
	if err != nil {
		return nil, err
	}

	if cmd.XPAward > h.maxAward {
		return nil, shared.ErrXPAwardTooLarge
	}

	// Профиль должен существовать до любых записей.
	before, err := h.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("record_module_completion: get profile: %w", err)
	}
	// Ранний отказ без записей; окончательная проверка в AddXP.
	if before.TotalXP > progress.MaxTotalXP-cmd.XPAward {
		return nil, shared.ErrXPLimitReached
	}

	result := &RecordModuleCompletionResult{}
	now := h.now().UTC()

	// 0. Учёт модуля и курса для счётчиков бейджей
	if err := h.recordCompletion(ctx, userID, cmd, now, result); err != nil {
		return nil, err
	}

	// 1. Атомарное начисление XP
	newTotal, err := h.profiles.AddXP(ctx, userID, cmd.XPAward)
	if err != nil {
		return nil, fmt.Errorf("record_module_completion: add xp: %w", err)
	}
	h.observer.ObserveXP(cmd.XPAward)

	// 2. Серия дней
	streak, err := h.streaks.RecordActivity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("record_module_completion: record activity: %w", err)
	}
	result.Streak = streak
	h.observer.ObserveStreak(string(streak.Transition))

	// 3. Уровень - кэш, перезаписываемый при каждом изменении
	newLevel := progress.LevelFor(newTotal)
	result.PreviousLevel = progress.LevelFor(newTotal - cmd.XPAward)
	result.LevelsGained = progress.LevelsGained(newTotal-cmd.XPAward, newTotal)
	result.LeveledUp = result.LevelsGained > 0
	if err := h.profiles.RefreshLevel(ctx, userID, newTotal, newLevel); err != nil {
		return nil, fmt.Errorf("record_module_completion: refresh level: %w", err)
	}
	if result.LeveledUp {
		h.observer.ObserveLevelUp()
	}

	// 4. Бейджи - best-effort
	result.NewBadges = h.evaluateBadges(ctx, userID, result)

	// 5. Снимок профиля
	profile, err := h.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("record_module_completion: reload profile: %w", err)
	}
	result.Profile = profile
	result.LevelInfo = profile.LevelInfo()

	h.publish(cmd, userID, newTotal, newLevel, result)

	h.log.Info("module completion recorded",
		logger.UserID(userID),
		logger.XPAmount(cmd.XPAward),
		logger.Int("total_xp", newTotal),
		logger.Int("level", newLevel),
		logger.Int("current_streak", streak.Current),
		logger.Int("new_badges", len(result.NewBadges)),
	)

	return result, nil
}

func (h *RecordModuleCompletionHandler) recordCompletion(
	ctx context.Context,
	userID string,
	cmd RecordModuleCompletionCommand,
	now time.Time,
	result *RecordModuleCompletionResult,
) error {
	if h.completions == nil {
		return nil
	}

	if cmd.ModuleID != "" {
		inserted, err := h.completions.RecordModuleCompletion(ctx, progress.ModuleCompletion{
			UserID:      userID,
			ModuleID:    cmd.ModuleID,
			CourseID:    cmd.CourseID,
			XPEarned:    cmd.XPAward,
			CompletedAt: now,
		})
		if err != nil {
			return fmt.Errorf("record_module_completion: record module: %w", err)
		}
		result.ModuleRecorded = inserted
	}

	if cmd.CourseCompleted {
		if _, err := h.completions.RecordCourseCompletion(ctx, userID, cmd.CourseID, now); err != nil {
			return fmt.Errorf("record_module_completion: record course: %w", err)
		}
	}

	return nil
}

func (h *RecordModuleCompletionHandler) evaluateBadges(ctx context.Context, userID string, result *RecordModuleCompletionResult) []badge.EarnedBadge {
	if h.badges == nil {
		return nil
	}

	awarded, err := h.badges.EvaluateAndAward(ctx, userID)
	for _, eb := range awarded {
		h.observer.ObserveBadgeAwarded(eb.BadgeID)
	}
	if err != nil {
		result.BadgeEvaluationFailed = true
		h.observer.ObserveBadgeFailure()
		h.log.Warn("badge evaluation failed, will retry on next event",
			logger.UserID(userID),
			logger.Int("awarded", len(awarded)),
			logger.Err(err),
		)
	}
	return awarded
}

// publish отправляет доменные события. Ошибки публикации только логируются.
func (h *RecordModuleCompletionHandler) publish(cmd RecordModuleCompletionCommand, userID string, newTotal, newLevel int, result *RecordModuleCompletionResult) {
	if h.events == nil {
		return
	}

	events := []shared.Event{
		shared.WithCorrelation(shared.NewXPGainedEvent(userID, cmd.XPAward, newTotal, cmd.ModuleID), cmd.CorrelationID),
	}

	if result.LeveledUp {
		events = append(events, shared.WithCorrelation(shared.NewLevelUpEvent(userID, result.PreviousLevel, newLevel, newTotal), cmd.CorrelationID))
	}

	switch result.Streak.Transition {
	case progress.StreakStarted, progress.StreakExtended:
		events = append(events, shared.WithCorrelation(shared.NewStreakUpdatedEvent(userID, result.Streak.Current, result.Streak.Max), cmd.CorrelationID))
	case progress.StreakReset:
		events = append(events, shared.WithCorrelation(shared.NewStreakUpdatedEvent(userID, result.Streak.Current, result.Streak.Max), cmd.CorrelationID))
		if result.Streak.PreviousStreak >= 2 {
			events = append(events, shared.WithCorrelation(shared.NewDailyStreakBrokenEvent(userID, result.Streak.PreviousStreak), cmd.CorrelationID))
		}
	}

	for _, eb := range result.NewBadges {
		name := eb.Badge.Name
		if name == "" {
			name = eb.BadgeID
		}
		events = append(events, shared.WithCorrelation(shared.NewBadgeEarnedEvent(userID, eb.BadgeID, name, eb.EarnedAt), cmd.CorrelationID))
	}

	for _, event := range events {
		if err := h.events.Publish(event); err != nil {
			h.log.Warn("failed to publish event",
				logger.UserID(userID),
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
}
