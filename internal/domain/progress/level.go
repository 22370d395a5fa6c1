package progress

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

const (
	// XPPerLevelUnit - коэффициент квадратичной формулы: для уровня L нужно 50*L^2 XP.
	XPPerLevelUnit = 50

	// MinLevel - минимальный уровень, даже при 0 XP.
	MinLevel = 1

	// DefaultXPPerModule - награда за модуль по умолчанию.
	DefaultXPPerModule = 100

	// MaxTotalXP - предел суммарного XP (колонка total_xp имеет тип INTEGER).
	MaxTotalXP = math.MaxInt32
)

// maxLevel - наибольший уровень, порог которого помещается в int.
var maxLevel = isqrt(math.MaxInt / XPPerLevelUnit)

// LevelInfo описывает уровень и прогресс внутри него.
type LevelInfo struct {
	// Level - текущий уровень (>= 1).
	Level int `json:"level"`

	// CurrentLevelXP - XP, набранный сверх порога текущего уровня.
	CurrentLevelXP int `json:"current_level_xp"`

	// XPToNextLevel - ширина текущего уровня в XP.
	XPToNextLevel int `json:"xp_to_next_level"`

	// ProgressPercent - прогресс до следующего уровня, 0..100.
	ProgressPercent int `json:"progress_percent"`
}

// CalculateLevel вычисляет уровень по суммарному XP.
// Чистая функция: одинаковый вход всегда даёт одинаковый результат.
// Отрицательный XP трактуется как 0.
func CalculateLevel(totalXP int) LevelInfo {
	if totalXP < 0 {
		totalXP = 0
	}

	level := LevelFor(totalXP)
	floor := XPForLevel(level)
	width := XPForLevel(level+1) - floor

	current := totalXP - floor
	if current < 0 {
		// Ниже 50 XP уровень всё равно 1, а порог уровня 1 равен 50.
		current = 0
	}

	percent := int(math.Round(100 * float64(current) / float64(width)))
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	return LevelInfo{
		Level:           level,
		CurrentLevelXP:  current,
		XPToNextLevel:   width,
		ProgressPercent: percent,
	}
}

// LevelFor возвращает только номер уровня: max(1, floor(sqrt(xp/50))).
// floor(sqrt(xp/50)) == isqrt(xp/50) для целых xp, поэтому float64 не нужен.
func LevelFor(totalXP int) int {
	if totalXP <= 0 {
		return MinLevel
	}
	if level := isqrt(totalXP / XPPerLevelUnit); level > MinLevel {
		return level
	}
	return MinLevel
}

// XPForLevel возвращает XP, необходимый для достижения уровня.
// Порог выше math.MaxInt насыщается до math.MaxInt.
func XPForLevel(level int) int {
	if level <= 0 {
		return 0
	}
	if level > maxLevel {
		return math.MaxInt
	}
	return XPPerLevelUnit * level * level
}

// isqrt - целый квадратный корень floor(sqrt(n)) без переполнения.
func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	r := int(math.Sqrt(float64(n)))
	for r > 0 && r > n/r {
		r--
	}
	for r+1 <= n/(r+1) {
		r++
	}
	return r
}

// LevelsGained возвращает, на сколько уровней вырос ученик.
func LevelsGained(beforeXP, afterXP int) int {
	gained := LevelFor(afterXP) - LevelFor(beforeXP)
	if gained < 0 {
		return 0
	}
	return gained
}
