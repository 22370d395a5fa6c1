package postgres

import (
	"context"
	"time"

	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements progress.ProfileRepository and
// progress.CompletionRepository for PostgreSQL. Every counter mutation is a
// single statement, so concurrent writers never need application-side locks.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// GetProfile returns the profile for userID.
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*progress.Profile, error) {
	var p progress.Profile

	err := r.conn.QueryRow(ctx, `
		SELECT user_id, full_name, first_name, last_name, email,
		       total_xp, level, current_streak, max_streak, last_activity_date,
		       created_at, updated_at
		FROM learner_profiles
		WHERE user_id = $1
	`, userID).Scan(
		&p.UserID,
		&p.FullName,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&p.TotalXP,
		&p.Level,
		&p.CurrentStreak,
		&p.MaxStreak,
		&p.LastActivityDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrProfileNotFound
	}
	if err != nil {
		return nil, classify("progress", "GetProfile", err)
	}

	return &p, nil
}

// CreateProfile inserts the profile unless the user already has one.
func (r *ProfileRepository) CreateProfile(ctx context.Context, p *progress.Profile) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO learner_profiles (user_id, full_name, first_name, last_name, email, total_xp, level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
	`,
		p.UserID,
		p.FullName,
		p.FirstName,
		p.LastName,
		p.Email,
		p.TotalXP,
		progress.LevelFor(p.TotalXP),
	)
	if err != nil {
		return false, classify("progress", "CreateProfile", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AddXP adds delta in place and returns the new total.
// A sum above progress.MaxTotalXP leaves the row untouched and returns ErrXPLimitReached.
func (r *ProfileRepository) AddXP(ctx context.Context, userID string, delta int) (int, error) {
	if delta > progress.MaxTotalXP {
		return 0, shared.ErrXPLimitReached
	}

	var total int
	err := r.conn.QueryRow(ctx, `
		UPDATE learner_profiles
		SET total_xp = total_xp + $2, updated_at = NOW()
		WHERE user_id = $1 AND total_xp <= $3 - $2
		RETURNING total_xp
	`, userID, delta, progress.MaxTotalXP).Scan(&total)
	if IsNoRows(err) {
		return 0, r.addXPMiss(ctx, userID)
	}
	if err != nil {
		return 0, classify("progress", "AddXP", err)
	}

	return total, nil
}

// addXPMiss tells a missing profile apart from a full XP counter.
func (r *ProfileRepository) addXPMiss(ctx context.Context, userID string) error {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM learner_profiles WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return classify("progress", "AddXP", err)
	}
	if !exists {
		return shared.ErrProfileNotFound
	}
	return shared.ErrXPLimitReached
}

// CompareAndSetStreak writes the streak only if last_activity_date still equals expectedLast.
func (r *ProfileRepository) CompareAndSetStreak(ctx context.Context, userID string, expectedLast *time.Time, next progress.StreakState) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		UPDATE learner_profiles
		SET current_streak = $3,
		    max_streak = GREATEST(max_streak, $3, $4),
		    last_activity_date = $5,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND last_activity_date IS NOT DISTINCT FROM $2::date
	`,
		userID,
		expectedLast,
		next.Current,
		next.Max,
		next.LastActivityDate,
	)
	if err != nil {
		return false, classify("progress", "CompareAndSetStreak", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RefreshLevel writes the cached level only while total_xp still equals totalXP.
func (r *ProfileRepository) RefreshLevel(ctx context.Context, userID string, totalXP, level int) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE learner_profiles
		SET level = $3
		WHERE user_id = $1 AND total_xp = $2
	`, userID, totalXP, level)
	if err != nil {
		return classify("progress", "RefreshLevel", err)
	}
	return nil
}

// RecordModuleCompletion inserts a completed module row, or promotes an
// in-progress row to completed. Already completed modules are left untouched.
func (r *ProfileRepository) RecordModuleCompletion(ctx context.Context, c progress.ModuleCompletion) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO module_progress (user_id, module_id, course_id, status, xp_earned, completed_at)
		VALUES ($1, $2, $3, 'completed', $4, $5)
		ON CONFLICT (user_id, module_id) DO UPDATE
		SET status = 'completed',
		    xp_earned = EXCLUDED.xp_earned,
		    completed_at = EXCLUDED.completed_at
		WHERE module_progress.status <> 'completed'
	`,
		c.UserID,
		c.ModuleID,
		c.CourseID,
		c.XPEarned,
		c.CompletedAt,
	)
	if err != nil {
		return false, classify("progress", "RecordModuleCompletion", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordCourseCompletion inserts the course completion if absent.
func (r *ProfileRepository) RecordCourseCompletion(ctx context.Context, userID, courseID string, at time.Time) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO course_completions (user_id, course_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, course_id) DO NOTHING
	`, userID, courseID, at)
	if err != nil {
		return false, classify("progress", "RecordCourseCompletion", err)
	}
	return tag.RowsAffected() == 1, nil
}
