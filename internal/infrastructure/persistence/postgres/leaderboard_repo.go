package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/kiongozi/gamification-engine/internal/domain/leaderboard"
	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRepository implements leaderboard.Repository on top of the
// leaderboard_entries view. Nothing is cached: every call reads live rows.
type LeaderboardRepository struct {
	conn *Connection
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn}
}

const entryColumns = `
	rank, user_id, display_name, total_xp, current_streak,
	modules_completed, courses_completed, total_badges
`

// GetTop returns the first limit entries.
func (r *LeaderboardRepository) GetTop(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		ORDER BY rank
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, classify("leaderboard", "GetTop", err)
	}
	return collectEntries(rows, "GetTop")
}

// GetRange returns entries with ranks in [from, to].
func (r *LeaderboardRepository) GetRange(ctx context.Context, from, to leaderboard.Rank) ([]leaderboard.Entry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE rank BETWEEN $1 AND $2
		ORDER BY rank
	`, int(from), int(to))
	if err != nil {
		return nil, classify("leaderboard", "GetRange", err)
	}
	return collectEntries(rows, "GetRange")
}

// GetRank counts learners ahead of userID in (total_xp DESC, user_id ASC) order.
func (r *LeaderboardRepository) GetRank(ctx context.Context, userID string) (leaderboard.Rank, error) {
	var rank int

	err := r.conn.QueryRow(ctx, `
		SELECT 1 + (
			SELECT COUNT(*)
			FROM learner_profiles o
			WHERE o.total_xp > me.total_xp
			   OR (o.total_xp = me.total_xp AND o.user_id < me.user_id)
		)
		FROM learner_profiles me
		WHERE me.user_id = $1
	`, userID).Scan(&rank)
	if IsNoRows(err) {
		return 0, shared.ErrProfileNotFound
	}
	if err != nil {
		return 0, classify("leaderboard", "GetRank", err)
	}

	return leaderboard.Rank(rank), nil
}

// GetEntry returns the ranked entry for userID.
func (r *LeaderboardRepository) GetEntry(ctx context.Context, userID string) (*leaderboard.Entry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+entryColumns+`
		FROM leaderboard_entries
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, classify("leaderboard", "GetEntry", err)
	}

	entries, err := collectEntries(rows, "GetEntry")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, shared.ErrProfileNotFound
	}
	return &entries[0], nil
}

// CountLearners returns the number of ranked learners.
func (r *LeaderboardRepository) CountLearners(ctx context.Context) (int, error) {
	var count int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM learner_profiles`).Scan(&count); err != nil {
		return 0, classify("leaderboard", "CountLearners", err)
	}
	return count, nil
}

func collectEntries(rows pgx.Rows, op string) ([]leaderboard.Entry, error) {
	defer rows.Close()

	entries := make([]leaderboard.Entry, 0)
	for rows.Next() {
		var (
			e    leaderboard.Entry
			rank int
		)
		if err := rows.Scan(
			&rank,
			&e.UserID,
			&e.DisplayName,
			&e.TotalXP,
			&e.CurrentStreak,
			&e.ModulesCompleted,
			&e.CoursesCompleted,
			&e.TotalBadges,
		); err != nil {
			return nil, classify("leaderboard", op, err)
		}
		e.Rank = leaderboard.Rank(rank)
		e.Level = progress.LevelFor(e.TotalXP)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("leaderboard", op, err)
	}
	return entries, nil
}
