package leaderboard

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD RANKER
// ══════════════════════════════════════════════════════════════════════════════

// Ranker отвечает на запросы рейтинга поверх Repository.
// Только чтение: изменения профилей видны в следующем запросе.
type Ranker struct {
	repo    Repository
	maxRows int
}

// NewRanker создаёт ранкер. maxRows <= 0 или больше MaxContextRows заменяется на MaxContextRows.
func NewRanker(repo Repository, maxRows int) *Ranker {
	if maxRows <= 0 || maxRows > MaxContextRows {
		maxRows = MaxContextRows
	}
	return &Ranker{repo: repo, maxRows: maxRows}
}

// MaxRows возвращает предел строк ответа с контекстом.
func (r *Ranker) MaxRows() int {
	return r.maxRows
}

// TopLearners возвращает limit лучших учеников, ранги с 1.
func (r *Ranker) TopLearners(ctx context.Context, limit int) ([]Entry, error) {
	if limit < 0 {
		return nil, shared.ErrInvalidLimit
	}
	if limit == 0 {
		return []Entry{}, nil
	}
	return r.repo.GetTop(ctx, limit)
}

// RankOf возвращает 1-based позицию ученика в полном порядке.
func (r *Ranker) RankOf(ctx context.Context, userID string) (Rank, error) {
	return r.repo.GetRank(ctx, userID)
}

// Entry возвращает строку лидерборда для одного ученика.
func (r *Ranker) Entry(ctx context.Context, userID string) (*Entry, error) {
	entry, err := r.repo.GetEntry(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry.IsCurrentUser = true
	return entry, nil
}

// TotalLearners возвращает число учеников в рейтинге.
func (r *Ranker) TotalLearners(ctx context.Context) (int, error) {
	return r.repo.CountLearners(ctx)
}

// LeaderboardWithContext возвращает объединение топа и окна вокруг ученика,
// без дублей, по возрастанию ранга, не больше MaxRows строк.
// Ученик без профиля считается Unranked: остаётся только топ.
func (r *Ranker) LeaderboardWithContext(ctx context.Context, userID string, topCount, radius int) ([]Entry, error) {
	if topCount < 0 {
		return nil, shared.ErrInvalidLimit
	}
	if radius < 0 {
		return nil, shared.ErrInvalidRadius
	}

	rank, err := r.repo.GetRank(ctx, userID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, err
		}
		rank = Unranked
	}

	window := ContextWindow(rank, radius, r.maxRows)
	if topCount > r.maxRows {
		topCount = r.maxRows
	}

	var top, around []Entry
	g, gctx := errgroup.WithContext(ctx)
	if topCount > 0 {
		g.Go(func() error {
			var err error
			top, err = r.repo.GetTop(gctx, topCount)
			return err
		})
	}
	if !window.Empty() {
		g.Go(func() error {
			var err error
			around, err = r.repo.GetRange(gctx, window.From, window.To)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergeContext(top, around, userID, r.maxRows), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT WINDOW
// ══════════════════════════════════════════════════════════════════════════════

// Window - диапазон рангов [From, To].
type Window struct {
	From Rank
	To   Rank
}

// Empty возвращает true для пустого окна.
func (w Window) Empty() bool {
	return w.From > w.To
}

// Contains проверяет, попадает ли ранг в окно.
func (w Window) Contains(r Rank) bool {
	return !w.Empty() && r >= w.From && r <= w.To
}

// ContextWindow вычисляет окно [rank-radius, rank+radius], обрезанное снизу до 1.
// Радиус ограничен так, чтобы окно помещалось в maxRows.
func ContextWindow(rank Rank, radius, maxRows int) Window {
	if !rank.IsRanked() {
		return Window{From: 1, To: 0}
	}
	if limit := (maxRows - 1) / 2; radius > limit {
		radius = limit
	}

	from := rank - Rank(radius)
	if from < 1 {
		from = 1
	}
	return Window{From: from, To: rank + Rank(radius)}
}

// MergeContext объединяет топ и окно: каждый ученик попадает в ответ один раз,
// порядок по рангу. Если топ и окно прочитаны в разные моменты и ранг ученика
// успел сдвинуться, остаётся строка из окна.
// Если строк больше maxRows, сокращается хвост топа, а окно сохраняется целиком,
// чтобы строка самого ученика всегда попадала в ответ.
func MergeContext(top, around []Entry, userID string, maxRows int) []Entry {
	seen := make(map[string]bool, len(top)+len(around))

	merged := make([]Entry, 0, len(top)+len(around))
	for _, e := range around {
		if seen[e.UserID] {
			continue
		}
		seen[e.UserID] = true
		merged = append(merged, e)
	}

	topBudget := maxRows - len(merged)
	for _, e := range top {
		if seen[e.UserID] {
			continue
		}
		if topBudget <= 0 {
			break
		}
		seen[e.UserID] = true
		merged = append(merged, e)
		topBudget--
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Rank != merged[j].Rank {
			return merged[i].Rank < merged[j].Rank
		}
		return merged[i].UserID < merged[j].UserID
	})

	if len(merged) > maxRows {
		merged = merged[:maxRows]
	}

	for i := range merged {
		merged[i].IsCurrentUser = merged[i].UserID == userID
	}
	return merged
}
