package postgres

import (
	"context"

	"github.com/kiongozi/gamification-engine/internal/domain/badge"
	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository implements badge.CatalogRepository, badge.EarnedRepository
// and badge.StatsSource for PostgreSQL.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

// ListBadges returns the full catalog.
func (r *BadgeRepository) ListBadges(ctx context.Context) ([]badge.Badge, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, description, icon, requirement_type, requirement_value
		FROM badges
		ORDER BY requirement_value, id
	`)
	if err != nil {
		return nil, classify("badge", "ListBadges", err)
	}
	defer rows.Close()

	var badges []badge.Badge
	for rows.Next() {
		var (
			b       badge.Badge
			reqType string
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &reqType, &b.RequirementValue); err != nil {
			return nil, classify("badge", "ListBadges", err)
		}
		b.RequirementType = badge.RequirementType(reqType)
		badges = append(badges, b)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("badge", "ListBadges", err)
	}
	return badges, nil
}

// ListEarnedBadgeIDs returns the IDs of badges the user already holds.
func (r *BadgeRepository) ListEarnedBadgeIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT badge_id FROM earned_badges WHERE user_id = $1 ORDER BY badge_id
	`, userID)
	if err != nil {
		return nil, classify("badge", "ListEarnedBadgeIDs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("badge", "ListEarnedBadgeIDs", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("badge", "ListEarnedBadgeIDs", err)
	}
	return ids, nil
}

// AwardBadge inserts the earned badge if absent. A concurrent duplicate is not an error.
func (r *BadgeRepository) AwardBadge(ctx context.Context, eb badge.EarnedBadge) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO earned_badges (user_id, badge_id, earned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, eb.UserID, eb.BadgeID, eb.EarnedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, classify("badge", "AwardBadge", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetStats aggregates the counters used by badge rules in one round trip.
func (r *BadgeRepository) GetStats(ctx context.Context, userID string) (badge.Stats, error) {
	var s badge.Stats

	err := r.conn.QueryRow(ctx, `
		SELECT
			p.total_xp,
			p.current_streak,
			p.max_streak,
			(SELECT COUNT(*) FROM module_progress mp WHERE mp.user_id = p.user_id AND mp.status = 'completed'),
			(SELECT COUNT(*) FROM course_completions cc WHERE cc.user_id = p.user_id)
		FROM learner_profiles p
		WHERE p.user_id = $1
	`, userID).Scan(
		&s.TotalXP,
		&s.CurrentStreak,
		&s.MaxStreak,
		&s.ModulesCompleted,
		&s.CoursesCompleted,
	)
	if IsNoRows(err) {
		return badge.Stats{}, shared.ErrProfileNotFound
	}
	if err != nil {
		return badge.Stats{}, classify("badge", "GetStats", err)
	}

	s.Level = progress.LevelFor(s.TotalXP)
	return s, nil
}
