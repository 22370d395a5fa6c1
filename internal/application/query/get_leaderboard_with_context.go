package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kiongozi/gamification-engine/internal/domain/leaderboard"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD WITH CONTEXT QUERY
// Топ плюс окно вокруг ученика: "где я нахожусь".
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardWithContextQuery содержит параметры запроса.
// Создавайте через NewGetLeaderboardWithContextQuery, чтобы получить значения по умолчанию.
type GetLeaderboardWithContextQuery struct {
	// UserID - ученик, вокруг которого строится окно.
	UserID string

	// TopCount - размер топа.
	TopCount int

	// Radius - сколько соседей выше и ниже ученика.
	Radius int
}

// NewGetLeaderboardWithContextQuery возвращает запрос с TopCount=10 и Radius=3.
func NewGetLeaderboardWithContextQuery(userID string) GetLeaderboardWithContextQuery {
	return GetLeaderboardWithContextQuery{
		UserID:   userID,
		TopCount: leaderboard.DefaultTopCount,
		Radius:   leaderboard.DefaultContextRadius,
	}
}

// Validate проверяет параметры.
func (q *GetLeaderboardWithContextQuery) Validate() error {
	id, err := parseUserID("LeaderboardWithContext", q.UserID)
	if err != nil {
		return err
	}
	q.UserID = id

	if q.TopCount < 0 {
		return shared.ErrInvalidLimit
	}
	if q.Radius < 0 {
		return shared.ErrInvalidRadius
	}
	return nil
}

// GetLeaderboardWithContextResult - результат запроса.
type GetLeaderboardWithContextResult struct {
	Entries []LeaderboardEntryDTO `json:"entries"`

	// UserRank - позиция ученика, nil если у него нет профиля.
	UserRank *int `json:"user_rank"`

	TotalLearners int       `json:"total_learners"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// GetLeaderboardWithContextHandler обрабатывает GetLeaderboardWithContextQuery.
type GetLeaderboardWithContextHandler struct {
	board Leaderboard
}

// NewGetLeaderboardWithContextHandler создаёт обработчик.
func NewGetLeaderboardWithContextHandler(board Leaderboard) *GetLeaderboardWithContextHandler {
	return &GetLeaderboardWithContextHandler{board: board}
}

// Handle выполняет запрос.
func (h *GetLeaderboardWithContextHandler) Handle(ctx context.Context, q GetLeaderboardWithContextQuery) (*GetLeaderboardWithContextResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	entries, err := h.board.LeaderboardWithContext(ctx, q.UserID, q.TopCount, q.Radius)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard_with_context: %w", err)
	}

	total, err := h.board.TotalLearners(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard_with_context: count: %w", err)
	}

	result := &GetLeaderboardWithContextResult{
		Entries:       toDTOs(entries),
		TotalLearners: total,
		GeneratedAt:   time.Now().UTC(),
	}
	for _, e := range entries {
		if e.IsCurrentUser {
			rank := int(e.Rank)
			result.UserRank = &rank
			break
		}
	}

	return result, nil
}
