package query

import (
	"context"
	"fmt"
	"math"

	"github.com/kiongozi/gamification-engine/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER RANK QUERY
// Позиция одного ученика с прогрессом уровня.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserRankQuery содержит параметры запроса.
type GetUserRankQuery struct {
	UserID string
}

// UserRankDTO - позиция ученика.
type UserRankDTO struct {
	LeaderboardEntryDTO

	// TotalLearners - всего учеников в рейтинге.
	TotalLearners int `json:"total_learners"`

	// Percentile - доля учеников позади (0-100).
	Percentile float64 `json:"percentile"`

	// XP в пределах текущего уровня.
	CurrentLevelXP  int `json:"current_level_xp"`
	XPToNextLevel   int `json:"xp_to_next_level"`
	ProgressPercent int `json:"progress_percent"`
}

// GetUserRankHandler обрабатывает GetUserRankQuery.
type GetUserRankHandler struct {
	board Leaderboard
}

// NewGetUserRankHandler создаёт обработчик.
func NewGetUserRankHandler(board Leaderboard) *GetUserRankHandler {
	return &GetUserRankHandler{board: board}
}

// Handle возвращает запись ученика или ErrProfileNotFound.
func (h *GetUserRankHandler) Handle(ctx context.Context, q GetUserRankQuery) (*UserRankDTO, error) {
	userID, err := parseUserID("GetUserRank", q.UserID)
	if err != nil {
		return nil, err
	}

	entry, err := h.board.Entry(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get_user_rank: %w", err)
	}

	total, err := h.board.TotalLearners(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_user_rank: count: %w", err)
	}

	info := progress.CalculateLevel(entry.TotalXP)

	return &UserRankDTO{
		LeaderboardEntryDTO: NewLeaderboardEntryDTO(*entry),
		TotalLearners:       total,
		Percentile:          percentile(int(entry.Rank), total),
		CurrentLevelXP:      info.CurrentLevelXP,
		XPToNextLevel:       info.XPToNextLevel,
		ProgressPercent:     info.ProgressPercent,
	}, nil
}

// percentile - доля учеников ниже rank, округлённая до десятых.
func percentile(rank, total int) float64 {
	if total <= 0 || rank <= 0 {
		return 0
	}
	behind := float64(total-rank) / float64(total) * 100
	return math.Round(behind*10) / 10
}
