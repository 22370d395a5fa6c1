package leaderboard_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiongozi/gamification-engine/internal/domain/leaderboard"
	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/persistence/memory"
)

func userID(i int) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
}

// seed creates n learners; learner i has xp[i] XP.
func seed(t *testing.T, xp []int) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	for i, amount := range xp {
		_, err := store.CreateProfile(ctx, progress.NewProfile(userID(i), time.Now()))
		require.NoError(t, err)
		if amount > 0 {
			_, err = store.AddXP(ctx, userID(i), amount)
			require.NoError(t, err)
		}
	}
	return store
}

func TestRanker_TopLearnersOrderAndTies(t *testing.T) {
	store := seed(t, []int{300, 500, 300, 100, 500})
	ranker := leaderboard.NewRanker(store, 0)
	ctx := context.Background()

	top, err := ranker.TopLearners(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 5)

	want := []string{userID(1), userID(4), userID(0), userID(2), userID(3)}
	for i, e := range top {
		assert.Equal(t, leaderboard.Rank(i+1), e.Rank)
		assert.Equal(t, want[i], e.UserID)
	}

	limited, err := ranker.TopLearners(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, top[0], limited[0])
}

func TestRanker_RankOfAgreesWithTop(t *testing.T) {
	store := seed(t, []int{300, 500, 300, 100, 500, 0, 0})
	ranker := leaderboard.NewRanker(store, 0)
	ctx := context.Background()

	top, err := ranker.TopLearners(ctx, 100)
	require.NoError(t, err)

	for _, e := range top {
		rank, err := ranker.RankOf(ctx, e.UserID)
		require.NoError(t, err)
		assert.Equal(t, e.Rank, rank, "rank of %s", e.UserID)
	}

	first, err := ranker.RankOf(ctx, userID(1))
	require.NoError(t, err)
	assert.Equal(t, leaderboard.Rank(1), first)
}

func TestRanker_RankOfUnknown(t *testing.T) {
	ranker := leaderboard.NewRanker(seed(t, []int{10}), 0)

	_, err := ranker.RankOf(context.Background(), "nobody")
	assert.True(t, shared.IsNotFound(err))
}

func TestRanker_TopLearnersValidation(t *testing.T) {
	ranker := leaderboard.NewRanker(seed(t, []int{10}), 0)

	_, err := ranker.TopLearners(context.Background(), -1)
	assert.True(t, shared.IsValidation(err))

	empty, err := ranker.TopLearners(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRanker_ContextIncludesUserAndTop(t *testing.T) {
	xp := make([]int, 100)
	for i := range xp {
		xp[i] = 10_000 - i*10
	}
	store := seed(t, xp)
	ranker := leaderboard.NewRanker(store, 0)
	ctx := context.Background()

	rows, err := ranker.LeaderboardWithContext(ctx, userID(59), 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 17)

	for i := 0; i < 10; i++ {
		assert.Equal(t, leaderboard.Rank(i+1), rows[i].Rank)
	}
	assert.Equal(t, leaderboard.Rank(57), rows[10].Rank)
	assert.Equal(t, leaderboard.Rank(63), rows[16].Rank)

	current := 0
	for _, r := range rows {
		if r.IsCurrentUser {
			current++
			assert.Equal(t, userID(59), r.UserID)
			assert.Equal(t, leaderboard.Rank(60), r.Rank)
		}
	}
	assert.Equal(t, 1, current)
}

func TestRanker_ContextOverlapDeduplicated(t *testing.T) {
	store := seed(t, []int{900, 800, 700, 600, 500, 400})
	ranker := leaderboard.NewRanker(store, 0)

	rows, err := ranker.LeaderboardWithContext(context.Background(), userID(2), 3, 3)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	for i, r := range rows {
		assert.Equal(t, leaderboard.Rank(i+1), r.Rank)
	}
	assert.True(t, rows[2].IsCurrentUser)
}

func TestMergeContext_DeduplicatesByUser(t *testing.T) {
	// Между чтением топа и окна ученик 2 обогнал ученика 1.
	top := []leaderboard.Entry{
		{Rank: 1, UserID: userID(0), TotalXP: 900},
		{Rank: 2, UserID: userID(1), TotalXP: 800},
		{Rank: 3, UserID: userID(2), TotalXP: 700},
	}
	around := []leaderboard.Entry{
		{Rank: 2, UserID: userID(2), TotalXP: 850},
		{Rank: 3, UserID: userID(1), TotalXP: 800},
		{Rank: 4, UserID: userID(3), TotalXP: 600},
	}

	rows := leaderboard.MergeContext(top, around, userID(2), 10)

	require.Len(t, rows, 4)
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.UserID]++
	}
	for id, n := range counts {
		assert.Equal(t, 1, n, "user %s appears %d times", id, n)
	}

	assert.Equal(t, userID(0), rows[0].UserID)
	assert.Equal(t, userID(2), rows[1].UserID)
	assert.Equal(t, leaderboard.Rank(2), rows[1].Rank)
	assert.Equal(t, 850, rows[1].TotalXP)
	assert.True(t, rows[1].IsCurrentUser)
	assert.Equal(t, userID(1), rows[2].UserID)
	assert.Equal(t, leaderboard.Rank(3), rows[2].Rank)
}

func TestRanker_ContextUnknownUserFallsBackToTop(t *testing.T) {
	store := seed(t, []int{900, 800, 700, 600, 500, 400})
	ranker := leaderboard.NewRanker(store, 0)

	rows, err := ranker.LeaderboardWithContext(context.Background(), "ghost", 4, 3)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.False(t, r.IsCurrentUser)
	}
}

func TestRanker_ContextCappedAndKeepsUser(t *testing.T) {
	xp := make([]int, 200)
	for i := range xp {
		xp[i] = 100_000 - i
	}
	store := seed(t, xp)
	ranker := leaderboard.NewRanker(store, 0)

	rows, err := ranker.LeaderboardWithContext(context.Background(), userID(150), 50, 40)
	require.NoError(t, err)
	assert.Len(t, rows, leaderboard.MaxContextRows)

	found := false
	for i, r := range rows {
		if i > 0 {
			assert.Less(t, rows[i-1].Rank, r.Rank)
		}
		if r.IsCurrentUser {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRanker_ContextValidation(t *testing.T) {
	ranker := leaderboard.NewRanker(seed(t, []int{1}), 0)
	ctx := context.Background()

	_, err := ranker.LeaderboardWithContext(ctx, userID(0), -1, 3)
	assert.True(t, shared.IsValidation(err))

	_, err = ranker.LeaderboardWithContext(ctx, userID(0), 10, -3)
	assert.True(t, shared.IsValidation(err))
}

func TestRanker_Entry(t *testing.T) {
	store := seed(t, []int{200, 450})
	ranker := leaderboard.NewRanker(store, 0)

	entry, err := ranker.Entry(context.Background(), userID(0))
	require.NoError(t, err)
	assert.Equal(t, leaderboard.Rank(2), entry.Rank)
	assert.Equal(t, 2, entry.Level)
	assert.True(t, entry.IsCurrentUser)

	total, err := ranker.TotalLearners(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestContextWindow(t *testing.T) {
	assert.Equal(t, leaderboard.Window{From: 1, To: 5}, leaderboard.ContextWindow(2, 3, 50))
	assert.Equal(t, leaderboard.Window{From: 7, To: 13}, leaderboard.ContextWindow(10, 3, 50))
	assert.Equal(t, leaderboard.Window{From: 76, To: 124}, leaderboard.ContextWindow(100, 40, 50))
	assert.True(t, leaderboard.ContextWindow(leaderboard.Unranked, 3, 50).Empty())
}

func TestRanking_Range(t *testing.T) {
	r := leaderboard.NewRanking([]*leaderboard.Entry{
		{UserID: "b", TotalXP: 10},
		{UserID: "a", TotalXP: 10},
		{UserID: "c", TotalXP: 30},
	})

	assert.Equal(t, 3, r.Count())
	all := r.Top(10)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{all[0].UserID, all[1].UserID, all[2].UserID})
	assert.Empty(t, r.Range(4, 8))

	e, ok := r.Find("b")
	require.True(t, ok)
	assert.Equal(t, leaderboard.Rank(3), e.Rank)
}
