package leaderboard

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository - read model лидерборда над игровыми профилями.
// Реализация находится в infrastructure слое (PostgreSQL, in-memory).
// Все методы читают текущее состояние хранилища, без снапшотов.
type Repository interface {
	// GetTop возвращает первые limit записей в полном порядке.
	GetTop(ctx context.Context, limit int) ([]Entry, error)

	// GetRange возвращает записи с рангами в [from, to].
	GetRange(ctx context.Context, from, to Rank) ([]Entry, error)

	// GetRank возвращает ранг ученика без материализации всего порядка.
	// Для ученика без профиля - ErrProfileNotFound.
	GetRank(ctx context.Context, userID string) (Rank, error)

	// GetEntry возвращает запись ученика вместе с рангом.
	GetEntry(ctx context.Context, userID string) (*Entry, error)

	// CountLearners возвращает число учеников в рейтинге.
	CountLearners(ctx context.Context) (int, error)
}
