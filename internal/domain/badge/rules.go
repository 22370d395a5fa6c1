package badge

import "sync"

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT STATS & RULES
// ══════════════════════════════════════════════════════════════════════════════

// Stats - агрегированные счётчики ученика, по которым проверяются пороги.
type Stats struct {
	ModulesCompleted int
	CoursesCompleted int
	CurrentStreak    int
	MaxStreak        int
	TotalXP          int
	Level            int
}

// CounterFunc извлекает значение счётчика из Stats.
type CounterFunc func(Stats) int

// Rules - таблица "тип требования -> счётчик".
// Новый тип требования добавляется регистрацией, без изменения движка.
type Rules struct {
	mu       sync.RWMutex
	counters map[RequirementType]CounterFunc
}

// NewRules создаёт пустую таблицу правил.
func NewRules() *Rules {
	return &Rules{counters: make(map[RequirementType]CounterFunc)}
}

// DefaultRules возвращает таблицу со всеми встроенными типами требований.
func DefaultRules() *Rules {
	r := NewRules()
	r.Register(RequirementModulesCompleted, func(s Stats) int { return s.ModulesCompleted })
	r.Register(RequirementCoursesCompleted, func(s Stats) int { return s.CoursesCompleted })
	r.Register(RequirementCurrentStreak, func(s Stats) int { return s.CurrentStreak })
	r.Register(RequirementMaxStreak, func(s Stats) int { return s.MaxStreak })
	r.Register(RequirementTotalXP, func(s Stats) int { return s.TotalXP })
	r.Register(RequirementLevel, func(s Stats) int { return s.Level })
	return r
}

// Register добавляет или заменяет счётчик для типа требования.
func (r *Rules) Register(t RequirementType, fn CounterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[t] = fn
}

// Counter возвращает значение счётчика для типа требования.
// ok=false, если тип не зарегистрирован.
func (r *Rules) Counter(t RequirementType, stats Stats) (value int, ok bool) {
	r.mu.RLock()
	fn, ok := r.counters[t]
	r.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return fn(stats), true
}

// Qualifies проверяет, выполнено ли условие бейджа.
func (r *Rules) Qualifies(b Badge, stats Stats) (qualifies bool, known bool) {
	value, ok := r.Counter(b.RequirementType, stats)
	if !ok {
		return false, false
	}
	return value >= b.RequirementValue, true
}
