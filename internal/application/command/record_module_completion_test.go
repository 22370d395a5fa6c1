package command

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiongozi/gamification-engine/internal/domain/badge"
	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/persistence/memory"
)

const learnerID = "7f3c2a10-0000-4000-8000-000000000001"

type fixture struct {
	store   *memory.Store
	events  *eventRecorder
	handler *RecordModuleCompletionHandler
	now     time.Time
}

type eventRecorder struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (r *eventRecorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *eventRecorder) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

type failingBadges struct{}

func (failingBadges) EvaluateAndAward(context.Context, string) ([]badge.EarnedBadge, error) {
	return nil, shared.WrapError("badge", "Award", shared.ErrStoreUnavailable, "insert failed", errors.New("connection reset"))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	_, err := store.CreateProfile(context.Background(), progress.NewProfile(learnerID, now))
	require.NoError(t, err)

	store.PutBadge(badge.Badge{ID: "first-steps", Name: "First Steps", RequirementType: badge.RequirementModulesCompleted, RequirementValue: 1})
	store.PutBadge(badge.Badge{ID: "level-2", Name: "Level 2", RequirementType: badge.RequirementLevel, RequirementValue: 2})

	clock := func() time.Time { return now }
	events := &eventRecorder{}

	h := NewRecordModuleCompletionHandler(RecordModuleCompletionDeps{
		Profiles:    store,
		Completions: store,
		Streaks:     progress.NewStreakTracker(store, progress.WithClock(clock)),
		Badges:      badge.NewEngine(store, store, store, badge.WithEngineClock(clock)),
		Events:      events,
		Clock:       clock,
	})

	return &fixture{store: store, events: events, handler: h, now: now}
}

func TestRecordModuleCompletion_FullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.handler.Handle(ctx, RecordModuleCompletionCommand{
		UserID:   learnerID,
		XPAward:  200,
		ModuleID: "m-1",
		CourseID: "c-1",
	})
	require.NoError(t, err)

	assert.Equal(t, 200, res.Profile.TotalXP)
	assert.Equal(t, 2, res.Profile.Level)
	assert.Equal(t, 2, res.LevelInfo.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1, res.LevelsGained)
	assert.Equal(t, 1, res.PreviousLevel)
	assert.True(t, res.ModuleRecorded)
	assert.Equal(t, progress.StreakStarted, res.Streak.Transition)
	assert.Equal(t, 1, res.Profile.CurrentStreak)
	assert.False(t, res.BadgeEvaluationFailed)

	ids := make([]string, 0, len(res.NewBadges))
	for _, eb := range res.NewBadges {
		ids = append(ids, eb.BadgeID)
	}
	assert.ElementsMatch(t, []string{"first-steps", "level-2"}, ids)

	assert.Equal(t, []shared.EventType{
		shared.EventXPGained,
		shared.EventLevelUp,
		shared.EventDailyStreakUpdated,
		shared.EventBadgeEarned,
		shared.EventBadgeEarned,
	}, f.events.types())
}

func TestRecordModuleCompletion_SecondCallSameDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cmd := RecordModuleCompletionCommand{UserID: learnerID, XPAward: 50, ModuleID: "m-1"}

	_, err := f.handler.Handle(ctx, cmd)
	require.NoError(t, err)
	res, err := f.handler.Handle(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, 100, res.Profile.TotalXP)
	assert.Equal(t, 1, res.Profile.CurrentStreak)
	assert.Equal(t, progress.StreakUnchanged, res.Streak.Transition)
	assert.False(t, res.ModuleRecorded)
	assert.Empty(t, res.NewBadges)
}

func TestRecordModuleCompletion_InvalidInputLeavesProfileUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, xp := range []int{-10, 0} {
		_, err := f.handler.Handle(ctx, RecordModuleCompletionCommand{UserID: learnerID, XPAward: xp, ModuleID: "m-1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	}

	profile, err := f.store.GetProfile(ctx, learnerID)
	require.NoError(t, err)
	assert.Zero(t, profile.TotalXP)
	assert.Zero(t, profile.CurrentStreak)
	assert.Nil(t, profile.LastActivityDate)
	assert.Empty(t, f.events.types())
}

func TestRecordModuleCompletion_TotalXPNeverOverflows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, xp := range []int{math.MaxInt / 4, math.MaxInt, progress.MaxTotalXP + 1} {
		_, err := f.handler.Handle(ctx, RecordModuleCompletionCommand{UserID: learnerID, XPAward: xp, ModuleID: "m-1"})
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrXPAwardTooLarge)
		assert.True(t, shared.IsValidation(err))
	}

	profile, err := f.store.GetProfile(ctx, learnerID)
	require.NoError(t, err)
	assert.Zero(t, profile.TotalXP)
	assert.Nil(t, profile.LastActivityDate)

	res, err := f.handler.Handle(ctx, RecordModuleCompletionCommand{UserID: learnerID, XPAward: progress.MaxTotalXP - 10})
	require.NoError(t, err)
	assert.Equal(t, progress.MaxTotalXP-10, res.Profile.TotalXP)
	assert.Equal(t, progress.LevelFor(progress.MaxTotalXP-10), res.Profile.Level)
	assert.Equal(t, res.Profile.Level-1, res.LevelsGained)

	_, err = f.handler.Handle(ctx, RecordModuleCompletionCommand{UserID: learnerID, XPAward: 11, ModuleID: "m-2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrXPLimitReached)
	assert.True(t, shared.IsValidation(err))

	stats, err := f.store.GetStats(ctx, learnerID)
	require.NoError(t, err)
	assert.Zero(t, stats.ModulesCompleted, "a rejected award records nothing")

	res, err = f.handler.Handle(ctx, RecordModuleCompletionCommand{UserID: learnerID, XPAward: 10})
	require.NoError(t, err)
	assert.Equal(t, progress.MaxTotalXP, res.Profile.TotalXP)
	assert.Zero(t, res.LevelsGained)
}

func TestRecordModuleCompletion_ConfiguredMaxAward(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	_, err := store.CreateProfile(ctx, progress.NewProfile(learnerID, time.Now()))
	require.NoError(t, err)

	h := NewRecordModuleCompletionHandler(RecordModuleCompletionDeps{Profiles: store, MaxXPAward: 500})

	_, err = h.Handle(ctx, RecordModuleCompletionCommand{UserID: learnerID, XPAward: 501})
	assert.ErrorIs(t, err, shared.ErrXPAwardTooLarge)

	res, err := h.Handle(ctx, RecordModuleCompletionCommand{UserID: learnerID, XPAward: 500})
	require.NoError(t, err)
	assert.Equal(t, 500, res.Profile.TotalXP)
}

func TestRecordModuleCompletion_Validation(t *testing.T) {
	_, err := RecordModuleCompletionCommand{UserID: "not-a-uuid", XPAward: 10}.Validate()
	assert.ErrorIs(t, err, shared.ErrInvalidID)
	assert.True(t, shared.IsValidation(err))

	_, err = RecordModuleCompletionCommand{UserID: learnerID, XPAward: 10, CourseCompleted: true}.Validate()
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	id, err := RecordModuleCompletionCommand{UserID: " 7F3C2A10-0000-4000-8000-000000000001 ", XPAward: 10}.Validate()
	require.NoError(t, err)
	assert.Equal(t, learnerID, id)
}

func TestRecordModuleCompletion_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.handler.Handle(context.Background(), RecordModuleCompletionCommand{
		UserID:  "7f3c2a10-0000-4000-8000-0000000000ff",
		XPAward: 10,
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestRecordModuleCompletion_BadgeFailureIsNotPropagated(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	_, err := store.CreateProfile(ctx, progress.NewProfile(learnerID, time.Now()))
	require.NoError(t, err)

	h := NewRecordModuleCompletionHandler(RecordModuleCompletionDeps{
		Profiles: store,
		Badges:   failingBadges{},
	})

	res, err := h.Handle(ctx, RecordModuleCompletionCommand{UserID: learnerID, XPAward: 75})
	require.NoError(t, err)
	assert.True(t, res.BadgeEvaluationFailed)
	assert.Equal(t, 75, res.Profile.TotalXP)
	assert.Equal(t, 1, res.Profile.CurrentStreak)
}

func TestRecordModuleCompletion_CourseCompletionFeedsBadges(t *testing.T) {
	f := newFixture(t)
	f.store.PutBadge(badge.Badge{ID: "course-finisher", Name: "Course Finisher", RequirementType: badge.RequirementCoursesCompleted, RequirementValue: 1})

	res, err := f.handler.Handle(context.Background(), RecordModuleCompletionCommand{
		UserID:          learnerID,
		XPAward:         10,
		ModuleID:        "m-9",
		CourseID:        "c-1",
		CourseCompleted: true,
		CorrelationID:   "req-1",
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(res.NewBadges))
	for _, eb := range res.NewBadges {
		ids = append(ids, eb.BadgeID)
	}
	assert.Contains(t, ids, "course-finisher")

	for _, e := range f.events.events {
		base, ok := e.(interface{ Base() shared.BaseEvent })
		require.True(t, ok)
		assert.Equal(t, "req-1", base.Base().CorrelationID)
	}
}

func TestRecordModuleCompletion_PublishFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("bus closed")

	res, err := f.handler.Handle(context.Background(), RecordModuleCompletionCommand{UserID: learnerID, XPAward: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Profile.TotalXP)
}

func TestRecordModuleCompletion_ConcurrentCompletions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.handler.Handle(ctx, RecordModuleCompletionCommand{UserID: learnerID, XPAward: 10})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	profile, err := f.store.GetProfile(ctx, learnerID)
	require.NoError(t, err)
	assert.Equal(t, 200, profile.TotalXP)
	assert.Equal(t, 2, profile.Level)
	assert.Equal(t, 1, profile.CurrentStreak)

	earned, err := f.store.ListEarnedBadgeIDs(ctx, learnerID)
	require.NoError(t, err)
	assert.Equal(t, []string{"level-2"}, earned)
}

func TestEnsureProfile(t *testing.T) {
	store := memory.NewStore()
	h := NewEnsureProfileHandler(store, nil)
	ctx := context.Background()

	res, err := h.Handle(ctx, EnsureProfileCommand{UserID: learnerID, Email: "amina.otieno@example.com"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, res.Profile.Level)
	assert.Equal(t, "Amina.Otieno", res.Profile.DisplayName())

	res, err = h.Handle(ctx, EnsureProfileCommand{UserID: learnerID})
	require.NoError(t, err)
	assert.False(t, res.Created)

	_, err = h.Handle(ctx, EnsureProfileCommand{UserID: "nope"})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}
