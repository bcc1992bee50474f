package flow

import (
	"fmt"

	"lessonflow/internal/models"
)

var registry = map[models.FlowType][]models.StepName{
	models.FlowNewUser: {
		models.StepLessonType,
		models.StepAthleteInfo,
		models.StepFocusAreas,
		models.StepSchedule,
		models.StepParentInfo,
		models.StepSafety,
		models.StepWaiver,
		models.StepPayment,
	},
	models.FlowParentPortal: {
		models.StepLessonType,
		models.StepAthleteSelect,
		models.StepAthleteInfo,
		models.StepFocusAreas,
		models.StepSchedule,
		models.StepParentInfo,
		models.StepSafety,
		models.StepWaiver,
		models.StepPayment,
	},
	models.FlowAthleteModal: {
		models.StepLessonType,
		models.StepAthleteSelect,
		models.StepFocusAreas,
		models.StepSchedule,
		models.StepParentInfo,
		models.StepSafety,
		models.StepWaiver,
		models.StepPayment,
	},
	models.FlowAdminNewAthlete: {
		models.StepLessonType,
		models.StepAthleteInfo,
		models.StepFocusAreas,
		models.StepSchedule,
		models.StepParentInfo,
		models.StepSafety,
		models.StepAdminPayment,
	},
	models.FlowAdminExistingAthlete: {
		models.StepLessonType,
		models.StepAthleteSelect,
		models.StepFocusAreas,
		models.StepSchedule,
		models.StepParentInfo,
		models.StepSafety,
		models.StepAdminPayment,
	},
	models.FlowAdminFromAthlete: {
		models.StepLessonType,
		models.StepFocusAreas,
		models.StepSchedule,
		models.StepParentInfo,
		models.StepSafety,
		models.StepAdminPayment,
	},
}

// StepsFor returns the ordered steps of a flow. An unknown flow type is a
// programming error and panics.
func StepsFor(flowType models.FlowType) []models.StepName {
	steps, ok := registry[flowType]
	if !ok {
		panic(fmt.Sprintf("flow: unknown flow type %q", flowType))
	}
	return append([]models.StepName(nil), steps...)
}

// IndexOf returns the position of step within the flow.
func IndexOf(flowType models.FlowType, step models.StepName) (int, bool) {
	for i, s := range registry[flowType] {
		if s == step {
			return i, true
		}
	}
	return -1, false
}

func stepAt(flowType models.FlowType, index int) models.StepName {
	return registry[flowType][index]
}

func stepCount(flowType models.FlowType) int {
	return len(registry[flowType])
}
