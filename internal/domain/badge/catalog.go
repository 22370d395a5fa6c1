package badge

// DefaultCatalog - стартовый каталог бейджей.
// Совпадает с сидом миграции seed_badge_catalog, чтобы memory-хранилище
// выдавало те же бейджи, что и PostgreSQL.
func DefaultCatalog() []Badge {
	return []Badge{
		{ID: "first-steps", Name: "First Steps", Description: "Complete your first module", Icon: "footprints", RequirementType: RequirementModulesCompleted, RequirementValue: 1},
		{ID: "getting-started", Name: "Getting Started", Description: "Complete 5 modules", Icon: "rocket", RequirementType: RequirementModulesCompleted, RequirementValue: 5},
		{ID: "dedicated-learner", Name: "Dedicated Learner", Description: "Complete 25 modules", Icon: "book-open", RequirementType: RequirementModulesCompleted, RequirementValue: 25},
		{ID: "course-finisher", Name: "Course Finisher", Description: "Complete a full course", Icon: "graduation-cap", RequirementType: RequirementCoursesCompleted, RequirementValue: 1},
		{ID: "on-fire", Name: "On Fire", Description: "Learn 7 days in a row", Icon: "flame", RequirementType: RequirementCurrentStreak, RequirementValue: 7},
		{ID: "level-5", Name: "Rising Star", Description: "Reach level 5", Icon: "star", RequirementType: RequirementLevel, RequirementValue: 5},
	}
}
