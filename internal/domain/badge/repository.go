package badge

import "context"

// CatalogRepository - источник каталога бейджей.
type CatalogRepository interface {
	// ListBadges возвращает весь каталог.
	ListBadges(ctx context.Context) ([]Badge, error)
}

// EarnedRepository - хранилище полученных бейджей.
type EarnedRepository interface {
	// ListEarnedBadgeIDs возвращает ID уже полученных учеником бейджей.
	ListEarnedBadgeIDs(ctx context.Context, userID string) ([]string, error)

	// AwardBadge вставляет запись, если её ещё нет (insert-if-absent).
	// Возвращает false без ошибки, если запись уже существовала.
	AwardBadge(ctx context.Context, earned EarnedBadge) (bool, error)
}

// StatsSource - источник агрегированных счётчиков ученика.
type StatsSource interface {
	// GetStats возвращает счётчики. Для неизвестного ученика - ErrProfileNotFound.
	GetStats(ctx context.Context, userID string) (Stats, error)
}
