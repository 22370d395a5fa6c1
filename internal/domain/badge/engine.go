package badge

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE RULE ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine проверяет все ещё не полученные бейджи и выдаёт те, чьи пороги достигнуты.
// Каждый вызов перепроверяет весь каталог, поэтому сбой записи на прошлом
// событии исправляется на следующем.
type Engine struct {
	stats   StatsSource
	catalog CatalogRepository
	earned  EarnedRepository
	rules   *Rules
	clock   func() time.Time

	// onUnknown вызывается для бейджей с незарегистрированным типом требования.
	onUnknown func(Badge)
}

// EngineOption настраивает движок.
type EngineOption func(*Engine)

// WithRules задаёт таблицу правил.
func WithRules(r *Rules) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.rules = r
		}
	}
}

// WithEngineClock задаёт источник времени для EarnedAt.
func WithEngineClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithUnknownRequirementHandler задаёт обработчик бейджей с неизвестным типом.
func WithUnknownRequirementHandler(fn func(Badge)) EngineOption {
	return func(e *Engine) { e.onUnknown = fn }
}

// NewEngine создаёт движок бейджей.
func NewEngine(stats StatsSource, catalog CatalogRepository, earned EarnedRepository, opts ...EngineOption) *Engine {
	e := &Engine{
		stats:   stats,
		catalog: catalog,
		earned:  earned,
		rules:   DefaultRules(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateAndAward возвращает только бейджи, выданные этим вызовом.
// Конфликт вставки (бейдж уже выдан параллельным вызовом) не ошибка и не попадает в результат.
// Ошибка вставки одного бейджа не мешает остальным: выданные возвращаются вместе с ошибкой.
func (e *Engine) EvaluateAndAward(ctx context.Context, userID string) ([]EarnedBadge, error) {
	var (
		stats     Stats
		catalog   []Badge
		earnedIDs []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = e.stats.GetStats(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = e.catalog.ListBadges(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		earnedIDs, err = e.earned.ListEarnedBadgeIDs(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := e.Pending(stats, catalog, earnedIDs)

	var (
		awarded []EarnedBadge
		errs    []error
	)
	for _, b := range candidates {
		eb := EarnedBadge{
			UserID:   userID,
			BadgeID:  b.ID,
			EarnedAt: e.clock().UTC(),
			Badge:    b,
		}

		inserted, err := e.earned.AwardBadge(ctx, eb)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if inserted {
			awarded = append(awarded, eb)
		}
	}

	return awarded, errors.Join(errs...)
}

// Pending возвращает бейджи каталога, которые не получены и чьи пороги достигнуты.
// Порядок детерминирован: по порогу, затем по ID.
func (e *Engine) Pending(stats Stats, catalog []Badge, earnedIDs []string) []Badge {
	earned := make(map[string]bool, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = true
	}

	var pending []Badge
	for _, b := range catalog {
		if earned[b.ID] {
			continue
		}

		qualifies, known := e.rules.Qualifies(b, stats)
		if !known {
			if e.onUnknown != nil {
				e.onUnknown(b)
			}
			continue
		}
		if qualifies {
			pending = append(pending, b)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].RequirementValue != pending[j].RequirementValue {
			return pending[i].RequirementValue < pending[j].RequirementValue
		}
		return pending[i].ID < pending[j].ID
	})
	return pending
}
