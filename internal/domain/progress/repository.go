package progress

import (
	"context"
	"time"
)

// ProfileRepository - хранилище игровых профилей.
// Все изменения счётчиков выполняются атомарно на стороне хранилища.
type ProfileRepository interface {
	// GetProfile возвращает профиль или ErrProfileNotFound.
	GetProfile(ctx context.Context, userID string) (*Profile, error)

	// CreateProfile создаёт профиль, если его ещё нет. Возвращает false, если профиль уже был.
	CreateProfile(ctx context.Context, profile *Profile) (bool, error)

	// AddXP атомарно прибавляет delta к total_xp и возвращает новую сумму.
	AddXP(ctx context.Context, userID string, delta int) (int, error)

	// CompareAndSetStreak записывает next, только если last_activity_date
	// всё ещё равна expectedLast (nil означает "не было активности").
	CompareAndSetStreak(ctx context.Context, userID string, expectedLast *time.Time, next StreakState) (bool, error)

	// RefreshLevel записывает кэшированный уровень, если total_xp всё ещё равен totalXP.
	// Если total_xp уже изменился, уровень запишет более поздний писатель.
	RefreshLevel(ctx context.Context, userID string, totalXP, level int) error
}

// ModuleCompletion - факт завершения модуля учеником.
type ModuleCompletion struct {
	UserID      string
	ModuleID    string
	CourseID    string
	XPEarned    int
	CompletedAt time.Time
}

// CompletionRepository - учёт завершённых модулей и курсов.
type CompletionRepository interface {
	// RecordModuleCompletion вставляет запись, если её нет. Возвращает true, если запись новая.
	RecordModuleCompletion(ctx context.Context, completion ModuleCompletion) (bool, error)

	// RecordCourseCompletion вставляет запись, если её нет. Возвращает true, если запись новая.
	RecordCourseCompletion(ctx context.Context, userID, courseID string, at time.Time) (bool, error)
}
