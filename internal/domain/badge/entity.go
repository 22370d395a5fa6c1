// Package badge содержит каталог бейджей, правила их выдачи и движок оценки.
package badge

import (
	"time"

	"github.com/kiongozi/gamification-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// RequirementType - тип счётчика, с которым сравнивается порог бейджа.
type RequirementType string

const (
	RequirementModulesCompleted RequirementType = "modules_completed"
	RequirementCoursesCompleted RequirementType = "courses_completed"
	RequirementCurrentStreak    RequirementType = "current_streak"
	RequirementMaxStreak        RequirementType = "max_streak"
	RequirementTotalXP          RequirementType = "total_xp"
	RequirementLevel            RequirementType = "level"
)

// Badge - запись каталога. Справочные данные, движок их не изменяет.
type Badge struct {
	// ID - идентификатор бейджа.
	ID string `json:"id"`

	// Name - название для UI.
	Name string `json:"name"`

	// Description - описание условия.
	Description string `json:"description"`

	// Icon - имя иконки или URL.
	Icon string `json:"icon"`

	// RequirementType - какой счётчик проверяется.
	RequirementType RequirementType `json:"requirement_type"`

	// RequirementValue - порог: бейдж выдаётся при counter >= RequirementValue.
	RequirementValue int `json:"requirement_value"`
}

// Validate проверяет корректность записи каталога.
func (b Badge) Validate() error {
	if b.ID == "" {
		return shared.NewDomainError("badge", "Validate", shared.ErrInvalidID, "badge ID is empty")
	}
	if b.RequirementValue <= 0 {
		return shared.ErrInvalidRequirement
	}
	return nil
}

// EarnedBadge - факт получения бейджа. Не больше одной записи на пару (UserID, BadgeID).
type EarnedBadge struct {
	// UserID - ученик.
	UserID string `json:"user_id"`

	// BadgeID - бейдж.
	BadgeID string `json:"badge_id"`

	// EarnedAt - время выдачи.
	EarnedAt time.Time `json:"earned_at"`

	// Badge - запись каталога (заполняется движком для уведомлений).
	Badge Badge `json:"badge"`
}
