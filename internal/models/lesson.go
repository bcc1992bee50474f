package models

import "github.com/shopspring/decimal"

type LessonType string

const (
	LessonQuickJourney       LessonType = "quick-journey"
	LessonDualQuest          LessonType = "dual-quest"
	LessonDeepDive           LessonType = "deep-dive"
	LessonPartnerProgression LessonType = "partner-progression"
)

// LessonPolicy describes the limits and price of a lesson type.
type LessonPolicy struct {
	Name          string          `json:"name"`
	Minutes       int             `json:"minutes"`
	Athletes      int             `json:"athletes"`
	MaxFocusAreas int             `json:"max_focus_areas"`
	Price         decimal.Decimal `json:"price"`
}

var lessonPolicies = map[LessonType]LessonPolicy{
	LessonQuickJourney: {
		Name:          "Quick Journey",
		Minutes:       30,
		Athletes:      1,
		MaxFocusAreas: 2,
		Price:         decimal.NewFromInt(40),
	},
	LessonDualQuest: {
		Name:          "Dual Quest",
		Minutes:       30,
		Athletes:      2,
		MaxFocusAreas: 2,
		Price:         decimal.NewFromInt(50),
	},
	LessonDeepDive: {
		Name:          "Deep Dive",
		Minutes:       60,
		Athletes:      1,
		MaxFocusAreas: 4,
		Price:         decimal.NewFromInt(60),
	},
	LessonPartnerProgression: {
		Name:          "Partner Progression",
		Minutes:       60,
		Athletes:      2,
		MaxFocusAreas: 4,
		Price:         decimal.NewFromInt(80),
	},
}

func (l LessonType) Policy() (LessonPolicy, bool) {
	p, ok := lessonPolicies[l]
	return p, ok
}

func (l LessonType) Valid() bool {
	_, ok := lessonPolicies[l]
	return ok
}

// IsDual reports whether the lesson is shared by two athletes.
func (l LessonType) IsDual() bool {
	p, ok := lessonPolicies[l]
	return ok && p.Athletes > 1
}

// MaxFocusAreas returns 0 for unknown lesson types.
func (l LessonType) MaxFocusAreas() int {
	return lessonPolicies[l].MaxFocusAreas
}

// Minutes is the lesson length, or DefaultLessonMinutes for unknown types.
func (l LessonType) Minutes() int {
	if p, ok := lessonPolicies[l]; ok {
		return p.Minutes
	}
	return DefaultLessonMinutes
}
