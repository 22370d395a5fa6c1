package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiongozi/gamification-engine/internal/application/command"
	"github.com/kiongozi/gamification-engine/internal/application/query"
	"github.com/kiongozi/gamification-engine/internal/domain/badge"
	"github.com/kiongozi/gamification-engine/internal/domain/leaderboard"
	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/metrics"
	"github.com/kiongozi/gamification-engine/internal/infrastructure/persistence/memory"
	"github.com/kiongozi/gamification-engine/internal/interface/http/handlers"
)

const (
	aliceID = "11111111-1111-4111-8111-111111111111"
	bobID   = "22222222-2222-4222-8222-222222222222"
	ghostID = "99999999-9999-4999-8999-999999999999"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func newTestServer(t *testing.T, mutate func(*Dependencies, *memory.Store)) (*Server, *memory.Store) {
	t.Helper()

	store := memory.NewStore()
	ctx := context.Background()
	for _, id := range []string{aliceID, bobID} {
		_, err := store.CreateProfile(ctx, progress.NewProfile(id, time.Now()))
		require.NoError(t, err)
	}
	_, err := store.AddXP(ctx, bobID, 300)
	require.NoError(t, err)
	store.PutBadge(badge.Badge{ID: "first-steps", Name: "First Steps", RequirementType: badge.RequirementModulesCompleted, RequirementValue: 1})

	ranker := leaderboard.NewRanker(store, leaderboard.MaxContextRows)
	deps := Dependencies{
		TopLearners:            query.NewGetTopLearnersHandler(ranker),
		LeaderboardWithContext: query.NewGetLeaderboardWithContextHandler(ranker),
		UserRank:               query.NewGetUserRankHandler(ranker),
		RecordCompletion: command.NewRecordModuleCompletionHandler(command.RecordModuleCompletionDeps{
			Profiles:    store,
			Completions: store,
			Badges:      badge.NewEngine(store, store, store),
		}),
		DefaultXPAward: progress.DefaultXPPerModule,
		Metrics:        metrics.New(),
	}
	if mutate != nil {
		mutate(&deps, store)
	}

	cfg := DefaultConfig()
	cfg.RateLimitPerSecond = 0
	return NewServer(cfg, deps), store
}

func do(t *testing.T, s *Server, method, path string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestServer_TopLearners(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec, env := do(t, s, http.MethodGet, "/api/v1/leaderboard?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(handlers.RequestIDHeader))

	var result query.GetTopLearnersResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Entries, 2)
	assert.Equal(t, bobID, result.Entries[0].UserID)
	assert.Equal(t, 1, result.Entries[0].Rank)
	assert.Equal(t, aliceID, result.Entries[1].UserID)

	rec, env = do(t, s, http.MethodGet, "/api/v1/leaderboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Len(t, result.Entries, 2, "absent limit falls back to the default")

	rec, env = do(t, s, http.MethodGet, "/api/v1/leaderboard?limit=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	result = query.GetTopLearnersResult{}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Empty(t, result.Entries)
	assert.Equal(t, 2, result.TotalLearners)

	rec, env = do(t, s, http.MethodGet, "/api/v1/leaderboard?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", env.Error.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/leaderboard?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_LeaderboardContext(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec, env := do(t, s, http.MethodGet, "/api/v1/leaderboard/context/"+aliceID+"?top=1&radius=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result query.GetLeaderboardWithContextResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Entries, 2)
	assert.False(t, result.Entries[0].IsCurrentUser)
	assert.True(t, result.Entries[1].IsCurrentUser)
	require.NotNil(t, result.UserRank)
	assert.Equal(t, 2, *result.UserRank)

	rec, _ = do(t, s, http.MethodGet, "/api/v1/leaderboard/context/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_UserRank(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec, env := do(t, s, http.MethodGet, "/api/v1/learners/"+bobID+"/rank", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var dto query.UserRankDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, 1, dto.Rank)
	assert.Equal(t, 300, dto.TotalXP)
	assert.Equal(t, 2, dto.Level)

	rec, env = do(t, s, http.MethodGet, "/api/v1/learners/"+ghostID+"/rank", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestServer_RecordCompletion(t *testing.T) {
	s, store := newTestServer(t, nil)

	body := []byte(`{"xp_award": 250, "module_id": "m-1", "course_id": "c-1"}`)
	rec, env := do(t, s, http.MethodPost, "/api/v1/learners/"+aliceID+"/completions", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp completionResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 250, resp.TotalXP)
	assert.Equal(t, 2, resp.Level.Level)
	assert.True(t, resp.LeveledUp)
	assert.Equal(t, 1, resp.LevelsGained)
	assert.Equal(t, 1, resp.Streak.Current)
	require.Len(t, resp.NewBadges, 1)
	assert.Equal(t, "first-steps", resp.NewBadges[0].BadgeID)

	profile, err := store.GetProfile(context.Background(), aliceID)
	require.NoError(t, err)
	assert.Equal(t, 250, profile.TotalXP)
}

func TestServer_RecordCompletionDefaultsAndErrors(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec, env := do(t, s, http.MethodPost, "/api/v1/learners/"+aliceID+"/completions", []byte(`{}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp completionResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, progress.DefaultXPPerModule, resp.TotalXP)
	assert.NotNil(t, resp.NewBadges)

	rec, env = do(t, s, http.MethodPost, "/api/v1/learners/"+aliceID+"/completions", []byte(`{"xp_award": -5}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", env.Error.Code)

	rec, env = do(t, s, http.MethodPost, "/api/v1/learners/"+aliceID+"/completions", []byte(`{"xp_award": 3000000000}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", env.Error.Code)

	rec, env = do(t, s, http.MethodPost, "/api/v1/learners/"+aliceID+"/completions", []byte(`{"xp": 5}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", env.Error.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/learners/"+ghostID+"/completions", []byte(`{"xp_award": 5}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_AutoCreateProfiles(t *testing.T) {
	s, store := newTestServer(t, func(d *Dependencies, store *memory.Store) {
		d.EnsureProfile = command.NewEnsureProfileHandler(store, nil)
	})

	rec, _ := do(t, s, http.MethodPost, "/api/v1/learners/"+ghostID+"/completions", []byte(`{"xp_award": 5}`))
	require.Equal(t, http.StatusOK, rec.Code)

	profile, err := store.GetProfile(context.Background(), ghostID)
	require.NoError(t, err)
	assert.Equal(t, 5, profile.TotalXP)
}

type failingRepo struct {
	leaderboard.Repository
}

func (failingRepo) GetTop(context.Context, int) ([]leaderboard.Entry, error) {
	return nil, shared.WrapError("leaderboard", "GetTop", shared.ErrStoreUnavailable, "database unreachable", errors.New("dial tcp: connection refused"))
}

func TestServer_StoreUnavailableMapsTo503(t *testing.T) {
	s, _ := newTestServer(t, func(d *Dependencies, _ *memory.Store) {
		d.TopLearners = query.NewGetTopLearnersHandler(leaderboard.NewRanker(failingRepo{}, 0))
	})

	rec, env := do(t, s, http.MethodGet, "/api/v1/leaderboard", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", env.Error.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("store", func(context.Context) error { return nil })

	s, _ := newTestServer(t, func(d *Dependencies, _ *memory.Store) { d.HealthChecker = checker })

	rec, _ := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, s, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, _ = do(t, s, http.MethodGet, "/api/v1/leaderboard", nil)
	rec, _ = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="GET /api/v1/leaderboard"`)

	checker.AddCheck("redis", func(context.Context) error { return errors.New("down") })
	rec, env := do(t, s, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, env.Error.Message, "redis")
}

func TestServer_RecoversFromPanic(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.router.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec, env := do(t, s, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_server_error", env.Error.Code)
}

func TestServer_RateLimit(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.rateLimiter = handlers.NewRateLimiter(0.001, 1)
	s.handler = s.buildMiddlewareChain(s.router)

	rec, _ := do(t, s, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env := do(t, s, http.MethodGet, "/live", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)
}
