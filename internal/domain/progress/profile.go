// Package progress содержит игровое состояние ученика: XP, уровень и серию дней.
package progress

import (
	"strings"
	"time"
	"unicode"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile представляет игровой профиль ученика (одна запись на аккаунт).
type Profile struct {
	// UserID - идентификатор аккаунта (UUID в каноническом виде).
	UserID string

	// FullName, FirstName, LastName, Email - используются только для отображаемого имени.
	FullName  string
	FirstName string
	LastName  string
	Email     string

	// TotalXP - суммарный XP, только растёт (кроме ручной коррекции).
	TotalXP int

	// Level - кэшированный уровень. Источник истины - TotalXP.
	Level int

	// CurrentStreak - текущая серия дней.
	CurrentStreak int

	// MaxStreak - лучшая серия дней, всегда >= CurrentStreak.
	MaxStreak int

	// LastActivityDate - календарный день последней активности (nil, если не было).
	LastActivityDate *time.Time

	// CreatedAt, UpdatedAt - служебные временные метки.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProfile создаёт профиль с нулевыми счётчиками и уровнем 1.
func NewProfile(userID string, now time.Time) *Profile {
	return &Profile{
		UserID:    userID,
		Level:     MinLevel,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LevelInfo пересчитывает уровень из TotalXP, игнорируя кэш.
func (p *Profile) LevelInfo() LevelInfo {
	return CalculateLevel(p.TotalXP)
}

// RefreshLevel перезаписывает кэшированный уровень.
func (p *Profile) RefreshLevel() {
	p.Level = LevelFor(p.TotalXP)
}

// Streak возвращает текущее состояние серии.
func (p *Profile) Streak() StreakState {
	return StreakState{
		Current:          p.CurrentStreak,
		Max:              p.MaxStreak,
		LastActivityDate: p.LastActivityDate,
	}
}

// DisplayName возвращает имя для лидерборда:
// полное имя, затем имя+фамилия, затем часть email до @, затем "Learner".
func (p *Profile) DisplayName() string {
	return ResolveDisplayName(p.FullName, p.FirstName, p.LastName, p.Email)
}

// ResolveDisplayName - общая логика выбора отображаемого имени.
func ResolveDisplayName(fullName, firstName, lastName, email string) string {
	if name := strings.TrimSpace(fullName); name != "" {
		return name
	}

	joined := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if joined != "" {
		return joined
	}

	if at := strings.IndexByte(email, '@'); at > 0 {
		return titleCase(email[:at])
	}

	return "Learner"
}

// titleCase повторяет INITCAP из Postgres: заглавная буква после любого не-буквенно-цифрового символа.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	upperNext := true
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if upperNext {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			upperNext = false
			continue
		}
		b.WriteRune(r)
		upperNext = true
	}
	return b.String()
}
