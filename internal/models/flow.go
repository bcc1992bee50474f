package models

// FlowType selects the step sequence of a booking session.
type FlowType string

const (
	FlowNewUser              FlowType = "new-user"
	FlowParentPortal         FlowType = "parent-portal"
	FlowAthleteModal         FlowType = "athlete-modal"
	FlowAdminNewAthlete      FlowType = "admin-new-athlete"
	FlowAdminExistingAthlete FlowType = "admin-existing-athlete"
	FlowAdminFromAthlete     FlowType = "admin-from-athlete"
)

// FlowTypes lists every flow type in a stable order.
var FlowTypes = []FlowType{
	FlowNewUser,
	FlowParentPortal,
	FlowAthleteModal,
	FlowAdminNewAthlete,
	FlowAdminExistingAthlete,
	FlowAdminFromAthlete,
}

func (f FlowType) Valid() bool {
	switch f {
	case FlowNewUser, FlowParentPortal, FlowAthleteModal,
		FlowAdminNewAthlete, FlowAdminExistingAthlete, FlowAdminFromAthlete:
		return true
	}
	return false
}

func (f FlowType) IsAdmin() bool {
	switch f {
	case FlowAdminNewAthlete, FlowAdminExistingAthlete, FlowAdminFromAthlete:
		return true
	}
	return false
}

// StepName identifies one page of the booking wizard.
type StepName string

const (
	StepLessonType    StepName = "lesson-type"
	StepAthleteSelect StepName = "athlete-select"
	StepAthleteInfo   StepName = "athlete-info"
	StepFocusAreas    StepName = "focus-areas"
	StepSchedule      StepName = "schedule"
	StepParentInfo    StepName = "parent-info"
	StepSafety        StepName = "safety"
	StepWaiver        StepName = "waiver"
	StepPayment       StepName = "payment"
	StepAdminPayment  StepName = "admin-payment"
)

var StepNames = []StepName{
	StepLessonType,
	StepAthleteSelect,
	StepAthleteInfo,
	StepFocusAreas,
	StepSchedule,
	StepParentInfo,
	StepSafety,
	StepWaiver,
	StepPayment,
	StepAdminPayment,
}

func (s StepName) Valid() bool {
	for _, name := range StepNames {
		if name == s {
			return true
		}
	}
	return false
}

// Identity is the caller context supplied when a session starts.
type Identity struct {
	ParentID int64 `json:"parent_id,omitempty"`
	IsAdmin  bool  `json:"is_admin"`
}

func (i Identity) Authenticated() bool {
	return i.ParentID != 0
}
