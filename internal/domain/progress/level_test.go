package progress

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateLevel_Boundaries(t *testing.T) {
	tests := []struct {
		xp      int
		level   int
		current int
		width   int
		percent int
	}{
		{xp: 0, level: 1, current: 0, width: 150, percent: 0},
		{xp: 49, level: 1, current: 0, width: 150, percent: 0},
		{xp: 50, level: 1, current: 0, width: 150, percent: 0},
		{xp: 125, level: 1, current: 75, width: 150, percent: 50},
		{xp: 199, level: 1, current: 149, width: 150, percent: 99},
		{xp: 200, level: 2, current: 0, width: 250, percent: 0},
		{xp: 449, level: 2, current: 249, width: 250, percent: 100},
		{xp: 450, level: 3, current: 0, width: 350, percent: 0},
		{xp: 5000, level: 10, current: 0, width: 1050, percent: 0},
	}

	for _, tt := range tests {
		info := CalculateLevel(tt.xp)
		assert.Equal(t, tt.level, info.Level, "level for %d xp", tt.xp)
		assert.Equal(t, tt.current, info.CurrentLevelXP, "current level xp for %d", tt.xp)
		assert.Equal(t, tt.width, info.XPToNextLevel, "width for %d", tt.xp)
		assert.Equal(t, tt.percent, info.ProgressPercent, "percent for %d", tt.xp)
	}
}

func TestCalculateLevel_MonotonicAndBounded(t *testing.T) {
	prev := 0
	for xp := 0; xp <= 100_000; xp += 7 {
		info := CalculateLevel(xp)
		assert.GreaterOrEqual(t, info.Level, 1)
		assert.GreaterOrEqual(t, info.Level, prev)
		assert.GreaterOrEqual(t, info.ProgressPercent, 0)
		assert.LessOrEqual(t, info.ProgressPercent, 100)
		prev = info.Level
	}
}

func TestCalculateLevel_ZeroAtEachThreshold(t *testing.T) {
	for level := 2; level <= 200; level++ {
		info := CalculateLevel(XPForLevel(level))
		assert.Equal(t, level, info.Level)
		assert.Equal(t, 0, info.ProgressPercent)

		below := CalculateLevel(XPForLevel(level) - 1)
		assert.Equal(t, level-1, below.Level)
	}
}

func TestCalculateLevel_NegativeTreatedAsZero(t *testing.T) {
	assert.Equal(t, CalculateLevel(0), CalculateLevel(-500))
}

func TestLevelsGained(t *testing.T) {
	assert.Equal(t, 0, LevelsGained(0, 150))
	assert.Equal(t, 1, LevelsGained(150, 200))
	assert.Equal(t, 2, LevelsGained(100, 450))
	assert.Equal(t, 0, LevelsGained(450, 100))
}

func TestCalculateLevel_LargestInt(t *testing.T) {
	done := make(chan LevelInfo, 1)
	go func() { done <- CalculateLevel(math.MaxInt) }()

	var info LevelInfo
	select {
	case info = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CalculateLevel(math.MaxInt) did not return")
	}

	assert.Equal(t, isqrt(math.MaxInt/XPPerLevelUnit), info.Level)
	assert.Positive(t, info.XPToNextLevel)
	assert.GreaterOrEqual(t, info.CurrentLevelXP, 0)
	assert.GreaterOrEqual(t, info.ProgressPercent, 0)
	assert.LessOrEqual(t, info.ProgressPercent, 100)
}

func TestCalculateLevel_MaxTotalXP(t *testing.T) {
	info := CalculateLevel(MaxTotalXP)
	assert.Equal(t, 6553, info.Level)
	assert.Equal(t, XPForLevel(6554)-XPForLevel(6553), info.XPToNextLevel)
}

func TestXPForLevel_Saturates(t *testing.T) {
	assert.Equal(t, math.MaxInt, XPForLevel(maxLevel+1))
	assert.Equal(t, math.MaxInt, XPForLevel(math.MaxInt))
	assert.LessOrEqual(t, XPForLevel(maxLevel), math.MaxInt)
	assert.Positive(t, XPForLevel(maxLevel))
	assert.Equal(t, 0, XPForLevel(0))
}

func TestIsqrt(t *testing.T) {
	for n := 0; n <= 10_000; n++ {
		r := isqrt(n)
		assert.LessOrEqual(t, r*r, n)
		assert.Greater(t, (r+1)*(r+1), n)
	}

	r := isqrt(math.MaxInt)
	assert.LessOrEqual(t, r, math.MaxInt/r)
	assert.Greater(t, r+1, math.MaxInt/(r+1))
}
