// Package memory provides an in-process implementation of every gamification
// repository. It backs STORAGE_DRIVER=memory and the service-level tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kiongozi/gamification-engine/internal/domain/badge"
	"github.com/kiongozi/gamification-engine/internal/domain/leaderboard"
	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

type moduleKey struct {
	userID   string
	moduleID string
}

type courseKey struct {
	userID   string
	courseID string
}

// Store keeps all gamification state behind a single RWMutex, so every
// method is atomic with respect to the others.
type Store struct {
	mu sync.RWMutex

	profiles map[string]*progress.Profile
	badges   map[string]badge.Badge
	earned   map[string]map[string]badge.EarnedBadge
	modules  map[moduleKey]progress.ModuleCompletion
	courses  map[courseKey]time.Time

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		profiles: make(map[string]*progress.Profile),
		badges:   make(map[string]badge.Badge),
		earned:   make(map[string]map[string]badge.EarnedBadge),
		modules:  make(map[moduleKey]progress.ModuleCompletion),
		courses:  make(map[courseKey]time.Time),
		now:      time.Now,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// progress.ProfileRepository
// ──────────────────────────────────────────────────────────────────────────────

// GetProfile returns a copy of the stored profile.
func (s *Store) GetProfile(ctx context.Context, userID string) (*progress.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

// CreateProfile inserts the profile unless one already exists.
func (s *Store) CreateProfile(ctx context.Context, profile *progress.Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[profile.UserID]; ok {
		return false, nil
	}
	p := cloneProfile(profile)
	if p.Level < progress.MinLevel {
		p.Level = progress.MinLevel
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	p.UpdatedAt = p.CreatedAt
	s.profiles[p.UserID] = p
	return true, nil
}

// AddXP adds delta in place. A sum above progress.MaxTotalXP is refused.
func (s *Store) AddXP(ctx context.Context, userID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return 0, shared.ErrProfileNotFound
	}
	if delta > progress.MaxTotalXP-p.TotalXP {
		return 0, shared.ErrXPLimitReached
	}
	p.TotalXP += delta
	p.UpdatedAt = s.now()
	return p.TotalXP, nil
}

// CompareAndSetStreak applies next only if the stored date still equals expectedLast.
func (s *Store) CompareAndSetStreak(ctx context.Context, userID string, expectedLast *time.Time, next progress.StreakState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return false, shared.ErrProfileNotFound
	}
	if !sameDate(p.LastActivityDate, expectedLast) {
		return false, nil
	}

	p.CurrentStreak = next.Current
	if next.Max > p.MaxStreak {
		p.MaxStreak = next.Max
	}
	if p.CurrentStreak > p.MaxStreak {
		p.MaxStreak = p.CurrentStreak
	}
	p.LastActivityDate = copyDate(next.LastActivityDate)
	p.UpdatedAt = s.now()
	return true, nil
}

// RefreshLevel writes the cached level when total XP has not moved since it was computed.
func (s *Store) RefreshLevel(ctx context.Context, userID string, totalXP, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return shared.ErrProfileNotFound
	}
	if p.TotalXP == totalXP {
		p.Level = level
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// progress.CompletionRepository
// ──────────────────────────────────────────────────────────────────────────────

// RecordModuleCompletion inserts the completion if absent.
func (s *Store) RecordModuleCompletion(ctx context.Context, c progress.ModuleCompletion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[c.UserID]; !ok {
		return false, shared.ErrProfileNotFound
	}
	key := moduleKey{userID: c.UserID, moduleID: c.ModuleID}
	if _, ok := s.modules[key]; ok {
		return false, nil
	}
	s.modules[key] = c
	return true, nil
}

// RecordCourseCompletion inserts the course completion if absent.
func (s *Store) RecordCourseCompletion(ctx context.Context, userID, courseID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[userID]; !ok {
		return false, shared.ErrProfileNotFound
	}
	key := courseKey{userID: userID, courseID: courseID}
	if _, ok := s.courses[key]; ok {
		return false, nil
	}
	s.courses[key] = at
	return true, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// badge repositories
// ──────────────────────────────────────────────────────────────────────────────

// PutBadge adds or replaces a catalog entry.
func (s *Store) PutBadge(b badge.Badge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.badges[b.ID] = b
}

// ListBadges returns the catalog ordered by ID.
func (s *Store) ListBadges(ctx context.Context) ([]badge.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]badge.Badge, 0, len(s.badges))
	for _, b := range s.badges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListEarnedBadgeIDs returns the IDs of badges the user holds.
func (s *Store) ListEarnedBadgeIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.earned[userID]))
	for id := range s.earned[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// AwardBadge inserts the earned badge if absent.
func (s *Store) AwardBadge(ctx context.Context, eb badge.EarnedBadge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.badges[eb.BadgeID]; !ok {
		return false, shared.ErrBadgeNotFound
	}
	held, ok := s.earned[eb.UserID]
	if !ok {
		held = make(map[string]badge.EarnedBadge)
		s.earned[eb.UserID] = held
	}
	if _, dup := held[eb.BadgeID]; dup {
		return false, nil
	}
	held[eb.BadgeID] = eb
	return true, nil
}

// GetStats aggregates the counters used by badge rules.
func (s *Store) GetStats(ctx context.Context, userID string) (badge.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return badge.Stats{}, shared.ErrProfileNotFound
	}
	return badge.Stats{
		ModulesCompleted: s.countModules(userID),
		CoursesCompleted: s.countCourses(userID),
		CurrentStreak:    p.CurrentStreak,
		MaxStreak:        p.MaxStreak,
		TotalXP:          p.TotalXP,
		Level:            progress.LevelFor(p.TotalXP),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// leaderboard.Repository
// ──────────────────────────────────────────────────────────────────────────────

// GetTop returns the first limit entries.
func (s *Store) GetTop(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	return s.ranking().Top(limit), nil
}

// GetRange returns entries with ranks in [from, to].
func (s *Store) GetRange(ctx context.Context, from, to leaderboard.Rank) ([]leaderboard.Entry, error) {
	return s.ranking().Range(from, to), nil
}

// GetRank counts learners ahead of userID instead of sorting everyone.
func (s *Store) GetRank(ctx context.Context, userID string) (leaderboard.Rank, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	me, ok := s.profiles[userID]
	if !ok {
		return 0, shared.ErrProfileNotFound
	}

	ahead := 0
	for id, p := range s.profiles {
		if p.TotalXP > me.TotalXP || (p.TotalXP == me.TotalXP && id < userID) {
			ahead++
		}
	}
	return leaderboard.Rank(ahead + 1), nil
}

// GetEntry returns the ranked entry for userID.
func (s *Store) GetEntry(ctx context.Context, userID string) (*leaderboard.Entry, error) {
	entry, ok := s.ranking().Find(userID)
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return &entry, nil
}

// CountLearners returns the number of profiles.
func (s *Store) CountLearners(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles), nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) ranking() *leaderboard.Ranking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*leaderboard.Entry, 0, len(s.profiles))
	for id, p := range s.profiles {
		entries = append(entries, &leaderboard.Entry{
			UserID:           id,
			DisplayName:      p.DisplayName(),
			TotalXP:          p.TotalXP,
			Level:            progress.LevelFor(p.TotalXP),
			CurrentStreak:    p.CurrentStreak,
			ModulesCompleted: s.countModules(id),
			CoursesCompleted: s.countCourses(id),
			TotalBadges:      len(s.earned[id]),
		})
	}
	return leaderboard.NewRanking(entries)
}

func (s *Store) countModules(userID string) int {
	n := 0
	for k := range s.modules {
		if k.userID == userID {
			n++
		}
	}
	return n
}

func (s *Store) countCourses(userID string) int {
	n := 0
	for k := range s.courses {
		if k.userID == userID {
			n++
		}
	}
	return n
}

func cloneProfile(p *progress.Profile) *progress.Profile {
	c := *p
	c.LastActivityDate = copyDate(p.LastActivityDate)
	return &c
}

func copyDate(d *time.Time) *time.Time {
	if d == nil {
		return nil
	}
	v := progress.DateOnly(*d)
	return &v
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return progress.DateOnly(*a).Equal(progress.DateOnly(*b))
}
