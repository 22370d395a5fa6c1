// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
package query

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kiongozi/gamification-engine/internal/domain/leaderboard"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// Leaderboard - операции чтения рейтинга, которые нужны запросам.
type Leaderboard interface {
	TopLearners(ctx context.Context, limit int) ([]leaderboard.Entry, error)
	LeaderboardWithContext(ctx context.Context, userID string, topCount, radius int) ([]leaderboard.Entry, error)
	RankOf(ctx context.Context, userID string) (leaderboard.Rank, error)
	Entry(ctx context.Context, userID string) (*leaderboard.Entry, error)
	TotalLearners(ctx context.Context) (int, error)
}

// LeaderboardEntryDTO - строка лидерборда для API.
type LeaderboardEntryDTO struct {
	// Rank - позиция в рейтинге (начиная с 1).
	Rank int `json:"rank"`

	// UserID - идентификатор ученика.
	UserID string `json:"user_id"`

	// DisplayName - отображаемое имя.
	DisplayName string `json:"display_name"`

	// TotalXP - суммарный XP.
	TotalXP int `json:"total_xp"`

	// Level - уровень.
	Level int `json:"level"`

	// CurrentStreak - текущая серия дней.
	CurrentStreak int `json:"current_streak"`

	// ModulesCompleted, CoursesCompleted, TotalBadges - достижения.
	ModulesCompleted int `json:"modules_completed"`
	CoursesCompleted int `json:"courses_completed"`
	TotalBadges      int `json:"total_badges"`

	// IsCurrentUser - строка запрашивающего ученика.
	IsCurrentUser bool `json:"is_current_user"`
}

// NewLeaderboardEntryDTO преобразует доменную запись в DTO.
func NewLeaderboardEntryDTO(e leaderboard.Entry) LeaderboardEntryDTO {
	return LeaderboardEntryDTO{
		Rank:             int(e.Rank),
		UserID:           e.UserID,
		DisplayName:      e.DisplayName,
		TotalXP:          e.TotalXP,
		Level:            e.Level,
		CurrentStreak:    e.CurrentStreak,
		ModulesCompleted: e.ModulesCompleted,
		CoursesCompleted: e.CoursesCompleted,
		TotalBadges:      e.TotalBadges,
		IsCurrentUser:    e.IsCurrentUser,
	}
}

func toDTOs(entries []leaderboard.Entry) []LeaderboardEntryDTO {
	out := make([]LeaderboardEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewLeaderboardEntryDTO(e))
	}
	return out
}

// parseUserID нормализует UUID ученика.
func parseUserID(op, raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", shared.WrapError("leaderboard", op, shared.ErrInvalidUserID, "user_id must be a UUID", err)
	}
	return id.String(), nil
}
