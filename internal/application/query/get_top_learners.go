package query

import (
	"context"
	"fmt"
	"time"

	"github.com/kiongozi/gamification-engine/internal/domain/leaderboard"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TOP LEARNERS QUERY
// Топ-N учеников по (TotalXP DESC, UserID ASC).
// ══════════════════════════════════════════════════════════════════════════════

// MaxTopLimit - предел размера топа за один запрос.
const MaxTopLimit = 100

// GetTopLearnersQuery содержит параметры запроса.
type GetTopLearnersQuery struct {
	// Limit - количество записей, берётся как есть (0 = пустой топ, максимум MaxTopLimit).
	Limit int
}

// NewGetTopLearnersQuery возвращает запрос с Limit=10.
func NewGetTopLearnersQuery() GetTopLearnersQuery {
	return GetTopLearnersQuery{Limit: leaderboard.DefaultTopLimit}
}

// Validate проверяет параметры и ограничивает размер топа.
func (q *GetTopLearnersQuery) Validate() error {
	if q.Limit < 0 {
		return shared.ErrInvalidLimit
	}
	if q.Limit > MaxTopLimit {
		q.Limit = MaxTopLimit
	}
	return nil
}

// GetTopLearnersResult - результат запроса.
type GetTopLearnersResult struct {
	Entries       []LeaderboardEntryDTO `json:"entries"`
	TotalLearners int                   `json:"total_learners"`
	GeneratedAt   time.Time             `json:"generated_at"`
}

// GetTopLearnersHandler обрабатывает GetTopLearnersQuery.
type GetTopLearnersHandler struct {
	board Leaderboard
}

// NewGetTopLearnersHandler создаёт обработчик.
func NewGetTopLearnersHandler(board Leaderboard) *GetTopLearnersHandler {
	return &GetTopLearnersHandler{board: board}
}

// Handle выполняет запрос.
func (h *GetTopLearnersHandler) Handle(ctx context.Context, q GetTopLearnersQuery) (*GetTopLearnersResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	entries, err := h.board.TopLearners(ctx, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_top_learners: %w", err)
	}

	total, err := h.board.TotalLearners(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_top_learners: count: %w", err)
	}

	return &GetTopLearnersResult{
		Entries:       toDTOs(entries),
		TotalLearners: total,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}
