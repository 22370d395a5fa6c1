package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kiongozi/gamification-engine/internal/application/command"
	"github.com/kiongozi/gamification-engine/internal/application/query"
	"github.com/kiongozi/gamification-engine/internal/domain/badge"
	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
	"github.com/kiongozi/gamification-engine/internal/interface/http/handlers"
	"github.com/kiongozi/gamification-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{
			"status": "healthy",
			"uptime": s.Uptime().Round(time.Second).String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetTopLearners handles GET /api/v1/leaderboard?limit=
func (s *Server) handleGetTopLearners(w http.ResponseWriter, r *http.Request) {
	if s.deps.TopLearners == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Leaderboard handler not configured")
		return
	}

	q := query.NewGetTopLearnersQuery()

	var err error
	if q.Limit, err = queryInt(r, "limit", q.Limit); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.TopLearners.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleGetLeaderboardWithContext handles GET /api/v1/leaderboard/context/{userId}?top=&radius=
func (s *Server) handleGetLeaderboardWithContext(w http.ResponseWriter, r *http.Request) {
	if s.deps.LeaderboardWithContext == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Leaderboard handler not configured")
		return
	}

	q := query.NewGetLeaderboardWithContextQuery(r.PathValue("userId"))

	var err error
	if q.TopCount, err = queryInt(r, "top", q.TopCount); err != nil {
		s.writeError(w, r, err)
		return
	}
	if q.Radius, err = queryInt(r, "radius", q.Radius); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.LeaderboardWithContext.Handle(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleGetUserRank handles GET /api/v1/learners/{userId}/rank
func (s *Server) handleGetUserRank(w http.ResponseWriter, r *http.Request) {
	if s.deps.UserRank == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Rank handler not configured")
		return
	}

	result, err := s.deps.UserRank.Handle(r.Context(), query.GetUserRankQuery{UserID: r.PathValue("userId")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Debug("rank resolved",
		logger.UserID(result.UserID),
		logger.RankPosition(result.Rank),
	)

	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// completionRequest is the body of POST /api/v1/learners/{userId}/completions.
type completionRequest struct {
	XPAward         *int   `json:"xp_award"`
	ModuleID        string `json:"module_id"`
	CourseID        string `json:"course_id"`
	CourseCompleted bool   `json:"course_completed"`
}

// completionResponse is the outcome returned to the caller.
type completionResponse struct {
	UserID        string               `json:"user_id"`
	TotalXP       int                  `json:"total_xp"`
	Level         progress.LevelInfo   `json:"level"`
	PreviousLevel int                  `json:"previous_level"`
	LevelsGained  int                  `json:"levels_gained"`
	LeveledUp     bool                 `json:"leveled_up"`
	Streak        progress.StreakState `json:"streak"`
	NewBadges     []badge.EarnedBadge  `json:"new_badges"`
}

// handleRecordCompletion handles POST /api/v1/learners/{userId}/completions
func (s *Server) handleRecordCompletion(w http.ResponseWriter, r *http.Request) {
	if s.deps.RecordCompletion == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Completion handler not configured")
		return
	}

	var req completionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return
		}
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "Request body must be a JSON completion object")
		return
	}

	xp := s.deps.DefaultXPAward
	if req.XPAward != nil {
		xp = *req.XPAward
	}

	userID := r.PathValue("userId")
	if s.deps.EnsureProfile != nil {
		if _, err := s.deps.EnsureProfile.Handle(r.Context(), command.EnsureProfileCommand{UserID: userID}); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	result, err := s.deps.RecordCompletion.Handle(r.Context(), command.RecordModuleCompletionCommand{
		UserID:          userID,
		XPAward:         xp,
		ModuleID:        req.ModuleID,
		CourseID:        req.CourseID,
		CourseCompleted: req.CourseCompleted,
		CorrelationID:   handlers.RequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Debug("completion recorded",
		logger.UserID(result.Profile.UserID),
		logger.XPAmount(xp),
		logger.Bool("leveled_up", result.LeveledUp),
		logger.Int("new_badges", len(result.NewBadges)),
	)

	newBadges := result.NewBadges
	if newBadges == nil {
		newBadges = []badge.EarnedBadge{}
	}

	writeJSON(w, r, http.StatusOK, completionResponse{
		UserID:        result.Profile.UserID,
		TotalXP:       result.Profile.TotalXP,
		Level:         result.LevelInfo,
		PreviousLevel: result.PreviousLevel,
		LevelsGained:  result.LevelsGained,
		LeveledUp:     result.LeveledUp,
		Streak:        result.Profile.Streak(),
		NewBadges:     newBadges,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		RequestID: handlers.RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		RequestID: handlers.RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_input", errorMessage(err))
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", errorMessage(err))
	case shared.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		logger.FromContext(r.Context()).Warn("store unavailable", logger.Err(err))
		writeJSONError(w, r, http.StatusServiceUnavailable, "store_unavailable", "Storage is temporarily unavailable, retry later")
	default:
		logger.FromContext(r.Context()).Error("request failed", logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "Internal error")
	}
}

// errorMessage returns the human-readable part of a domain error.
func errorMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// queryInt parses an integer query parameter. Missing means def; malformed is InvalidInput.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.WrapError("http", "ParseQuery", shared.ErrInvalidInput, key+" must be an integer", err)
	}
	return v, nil
}
