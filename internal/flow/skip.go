package flow

import "lessonflow/internal/models"

// skipRule bypasses a step when the information it collects is already known.
// Rules depend only on session state, never on the direction of travel, so
// advance and retreat skip the same steps.
type skipRule struct {
	step models.StepName
	when func(s *State) bool
}

var skipRules = []skipRule{
	{
		step: models.StepLessonType,
		when: func(s *State) bool {
			return s.Draft.LessonTypeLocked && s.Draft.LessonType.Valid()
		},
	},
	{
		step: models.StepAthleteSelect,
		when: func(s *State) bool {
			return !s.Draft.LessonType.IsDual()
		},
	},
	{
		step: models.StepAthleteInfo,
		when: func(s *State) bool {
			p, ok := s.Draft.LessonType.Policy()
			return ok && len(s.Draft.SelectedAthletes) >= p.Athletes
		},
	},
	{
		step: models.StepParentInfo,
		when: func(s *State) bool {
			return s.Identity.Authenticated() && IsSatisfied(models.StepParentInfo, &s.Draft)
		},
	},
	{
		step: models.StepWaiver,
		when: func(s *State) bool {
			return s.Draft.Waiver.Signed
		},
	},
}

func shouldSkip(s *State, step models.StepName) bool {
	for _, rule := range skipRules {
		if rule.step == step && rule.when(s) {
			return true
		}
	}
	return false
}

// settle walks from index in direction dir (+1 or -1) until it reaches a step
// that is not skipped. The result may fall outside the flow.
func settle(s *State, index, dir int) int {
	n := stepCount(s.FlowType)
	for index >= 0 && index < n && shouldSkip(s, stepAt(s.FlowType, index)) {
		index += dir
	}
	return index
}
