package flow

import (
	"strconv"
	"strings"

	"lessonflow/internal/domain"
	"lessonflow/internal/models"
)

type validator func(d *models.Draft) []string

var validators = map[models.StepName]validator{
	models.StepLessonType:    checkLessonType,
	models.StepAthleteSelect: checkAthleteSelect,
	models.StepAthleteInfo:   checkAthleteInfo,
	models.StepFocusAreas:    checkFocusAreas,
	models.StepSchedule:      checkSchedule,
	models.StepParentInfo:    checkParentInfo,
	models.StepSafety:        checkSafety,
	models.StepWaiver:        checkWaiver,
	models.StepPayment:       func(*models.Draft) []string { return nil },
	models.StepAdminPayment:  checkAdminPayment,
}

// IsSatisfied reports whether the draft completes the given step.
func IsSatisfied(step models.StepName, draft *models.Draft) bool {
	return Check(step, draft) == nil
}

// Check returns the unmet fields of a step, or nil when it is satisfied.
func Check(step models.StepName, draft *models.Draft) *domain.ValidationError {
	v, ok := validators[step]
	if !ok {
		return &domain.ValidationError{Step: step, Fields: []string{"step"}}
	}
	if draft == nil {
		draft = &models.Draft{}
	}
	if missing := v(draft); len(missing) > 0 {
		return &domain.ValidationError{Step: step, Fields: missing}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func checkLessonType(d *models.Draft) []string {
	if !d.LessonType.Valid() {
		return []string{"lesson_type"}
	}
	return nil
}

func checkAthleteSelect(d *models.Draft) []string {
	limit := 1
	if p, ok := d.LessonType.Policy(); ok {
		limit = p.Athletes
	}
	n := len(d.SelectedAthletes)
	if n == 0 || n > limit {
		return []string{"selected_athletes"}
	}
	return nil
}

func checkAthleteInfo(d *models.Draft) []string {
	if len(d.Athletes) == 0 {
		return []string{"athletes"}
	}
	var missing []string
	for i, a := range d.Athletes {
		prefix := "athletes[" + strconv.Itoa(i) + "]."
		if blank(a.FirstName) {
			missing = append(missing, prefix+"first_name")
		}
		if blank(a.LastName) {
			missing = append(missing, prefix+"last_name")
		}
		if blank(a.DateOfBirth) {
			missing = append(missing, prefix+"date_of_birth")
		}
		if blank(a.Experience) {
			missing = append(missing, prefix+"experience")
		}
	}
	return missing
}

func checkFocusAreas(d *models.Draft) []string {
	limit := d.LessonType.MaxFocusAreas()
	n := len(d.FocusAreas)
	if n == 0 || n > limit {
		return []string{"focus_areas"}
	}
	return nil
}

func checkSchedule(d *models.Draft) []string {
	var missing []string
	if d.Slot == nil || blank(d.Slot.Date) {
		missing = append(missing, "slot.date")
	}
	if d.Slot == nil || blank(d.Slot.Time) {
		missing = append(missing, "slot.time")
	}
	return missing
}

func checkParentInfo(d *models.Draft) []string {
	p := d.Parent
	if p == nil {
		p = &models.ParentInfo{}
	}
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"parent.first_name", p.FirstName},
		{"parent.last_name", p.LastName},
		{"parent.email", p.Email},
		{"parent.phone", p.Phone},
		{"parent.emergency_contact_name", p.EmergencyContactName},
		{"parent.emergency_contact_phone", p.EmergencyContactPhone},
	} {
		if blank(f.value) {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func checkSafety(d *models.Draft) []string {
	s := d.Safety
	if s == nil {
		return []string{"safety.will_drop_off", "safety.will_pick_up"}
	}
	var missing []string
	if s.WillDropOff == nil {
		missing = append(missing, "safety.will_drop_off")
	} else if !*s.WillDropOff {
		if blank(s.DropoffPersonName) {
			missing = append(missing, "safety.dropoff_person_name")
		}
		if blank(s.DropoffPersonRelationship) {
			missing = append(missing, "safety.dropoff_person_relationship")
		}
		if blank(s.DropoffPersonPhone) {
			missing = append(missing, "safety.dropoff_person_phone")
		}
	}
	if s.WillPickUp == nil {
		missing = append(missing, "safety.will_pick_up")
	} else if !*s.WillPickUp {
		if blank(s.PickupPersonName) {
			missing = append(missing, "safety.pickup_person_name")
		}
		if blank(s.PickupPersonRelationship) {
			missing = append(missing, "safety.pickup_person_relationship")
		}
		if blank(s.PickupPersonPhone) {
			missing = append(missing, "safety.pickup_person_phone")
		}
	}
	return missing
}

func checkWaiver(d *models.Draft) []string {
	if !d.Waiver.Signed {
		return []string{"waiver.signed"}
	}
	return nil
}

func checkAdminPayment(d *models.Draft) []string {
	switch d.Admin.PaymentMethod {
	case models.AdminPaymentStripe, models.AdminPaymentCash, models.AdminPaymentCheck, models.AdminPaymentPending:
		return nil
	}
	return []string{"admin.payment_method"}
}
