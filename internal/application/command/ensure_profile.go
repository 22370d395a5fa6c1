package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiongozi/gamification-engine/internal/domain/progress"
	"github.com/kiongozi/gamification-engine/internal/domain/shared"
	"github.com/kiongozi/gamification-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENSURE PROFILE COMMAND
// Создаёт игровой профиль с нулевыми счётчиками, если его ещё нет.
// ══════════════════════════════════════════════════════════════════════════════

// EnsureProfileCommand содержит данные нового профиля.
type EnsureProfileCommand struct {
	UserID    string
	FullName  string
	FirstName string
	LastName  string
	Email     string
}

// EnsureProfileResult - профиль и признак создания.
type EnsureProfileResult struct {
	Profile *progress.Profile
	Created bool
}

// EnsureProfileHandler обрабатывает EnsureProfileCommand.
type EnsureProfileHandler struct {
	profiles progress.ProfileRepository
	log      *logger.Logger
	now      func() time.Time
}

// NewEnsureProfileHandler создаёт обработчик.
func NewEnsureProfileHandler(profiles progress.ProfileRepository, log *logger.Logger) *EnsureProfileHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &EnsureProfileHandler{
		profiles: profiles,
		log:      log.With(logger.Component("ensure_profile")),
		now:      time.Now,
	}
}

// Handle создаёт профиль, если его нет, и возвращает актуальное состояние.
func (h *EnsureProfileHandler) Handle(ctx context.Context, cmd EnsureProfileCommand) (*EnsureProfileResult, error) {
	id, err := uuid.Parse(strings.TrimSpace(cmd.UserID))
	if err != nil {
		return nil, shared.WrapError("progress", "EnsureProfile", shared.ErrInvalidUserID, "user_id must be a UUID", err)
	}
	userID := id.String()

	profile := progress.NewProfile(userID, h.now().UTC())
	profile.FullName = strings.TrimSpace(cmd.FullName)
	profile.FirstName = strings.TrimSpace(cmd.FirstName)
	profile.LastName = strings.TrimSpace(cmd.LastName)
	profile.Email = strings.TrimSpace(cmd.Email)

	created, err := h.profiles.CreateProfile(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("ensure_profile: create: %w", err)
	}
	if created {
		h.log.Info("learner profile created", logger.UserID(userID))
	}

	stored, err := h.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ensure_profile: get: %w", err)
	}

	return &EnsureProfileResult{Profile: stored, Created: created}, nil
}
