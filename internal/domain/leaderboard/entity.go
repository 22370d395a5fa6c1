// Package leaderboard содержит доменную модель глобального рейтинга учеников.
// Рейтинг не хранится отдельно: это проекция над игровыми профилями,
// которая вычисляется при каждом запросе.
package leaderboard

import (
	"fmt"
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank представляет позицию ученика в лидерборде.
// Rank начинается с 1 (первое место).
type Rank int

// Unranked - ранг "за концом списка" для ученика без профиля.
// Окно контекста вокруг него пустое, остаётся только топ.
const Unranked Rank = math.MaxInt32

const (
	// DefaultTopLimit - размер топа по умолчанию.
	DefaultTopLimit = 10

	// DefaultTopCount - размер топа в режиме "топ + контекст".
	DefaultTopCount = 10

	// DefaultContextRadius - сколько позиций выше и ниже ученика показывать.
	DefaultContextRadius = 3

	// MaxContextRows - жёсткий предел числа строк в ответе с контекстом.
	MaxContextRows = 50
)

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// IsRanked возвращает false для Unranked.
func (r Rank) IsRanked() bool {
	return r.IsValid() && r != Unranked
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	if r == Unranked {
		return "unranked"
	}
	return fmt.Sprintf("#%d", r)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - строка лидерборда. Вычисляется на лету и не хранится.
type Entry struct {
	// Rank - позиция в полном порядке (TotalXP DESC, UserID ASC).
	Rank Rank `json:"rank"`

	// UserID - идентификатор ученика.
	UserID string `json:"user_id"`

	// DisplayName - отображаемое имя.
	DisplayName string `json:"display_name"`

	// TotalXP - суммарный XP.
	TotalXP int `json:"total_xp"`

	// Level - уровень, вычисленный из TotalXP.
	Level int `json:"level"`

	// CurrentStreak - текущая серия дней.
	CurrentStreak int `json:"current_streak"`

	// ModulesCompleted - завершённые модули.
	ModulesCompleted int `json:"modules_completed"`

	// CoursesCompleted - завершённые курсы.
	CoursesCompleted int `json:"courses_completed"`

	// TotalBadges - количество полученных бейджей.
	TotalBadges int `json:"total_badges"`

	// IsCurrentUser - строка принадлежит запрашивающему ученику.
	IsCurrentUser bool `json:"is_current_user"`
}

// Before реализует полный порядок: больше XP выше, при равенстве - меньший UserID.
func Before(a, b *Entry) bool {
	if a.TotalXP != b.TotalXP {
		return a.TotalXP > b.TotalXP
	}
	return a.UserID < b.UserID
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING (in-memory total order)
// ══════════════════════════════════════════════════════════════════════════════

// Ranking - упорядоченный список записей с плотными рангами 1..n.
// Используется хранилищами без оконных функций.
type Ranking struct {
	entries []*Entry
	byID    map[string]int
}

// NewRanking сортирует записи по полному порядку и присваивает ранги.
func NewRanking(entries []*Entry) *Ranking {
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)

	sort.Slice(sorted, func(i, j int) bool {
		return Before(sorted[i], sorted[j])
	})

	byID := make(map[string]int, len(sorted))
	for i, e := range sorted {
		// Ранги уникальны: тай-брейк по UserID исключает совпадения.
		e.Rank = Rank(i + 1)
		byID[e.UserID] = i
	}

	return &Ranking{entries: sorted, byID: byID}
}

// Count возвращает количество записей.
func (r *Ranking) Count() int {
	return len(r.entries)
}

// Top возвращает первые n записей.
func (r *Ranking) Top(n int) []Entry {
	return r.Range(1, Rank(n))
}

// Range возвращает записи с рангами в [from, to].
func (r *Ranking) Range(from, to Rank) []Entry {
	if from < 1 {
		from = 1
	}
	if int(to) > len(r.entries) {
		to = Rank(len(r.entries))
	}
	if from > to {
		return nil
	}

	result := make([]Entry, 0, to-from+1)
	for _, e := range r.entries[from-1 : to] {
		result = append(result, *e)
	}
	return result
}

// Find возвращает запись ученика.
func (r *Ranking) Find(userID string) (Entry, bool) {
	idx, ok := r.byID[userID]
	if !ok {
		return Entry{}, false
	}
	return *r.entries[idx], true
}
