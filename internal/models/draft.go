package models

import "time"

type SlotSelection struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type AthleteInfo struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Allergies   string `json:"allergies,omitempty"`
	Experience  string `json:"experience"`
	Gender      string `json:"gender,omitempty"`
}

type ParentInfo struct {
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	Email                 string `json:"email"`
	Phone                 string `json:"phone"`
	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
}

// SafetyContact holds pickup/dropoff authorization. A nil answer means the
// question has not been answered; false means "someone else".
type SafetyContact struct {
	WillDropOff               *bool  `json:"will_drop_off"`
	WillPickUp                *bool  `json:"will_pick_up"`
	DropoffPersonName         string `json:"dropoff_person_name,omitempty"`
	DropoffPersonRelationship string `json:"dropoff_person_relationship,omitempty"`
	DropoffPersonPhone        string `json:"dropoff_person_phone,omitempty"`
	PickupPersonName          string `json:"pickup_person_name,omitempty"`
	PickupPersonRelationship  string `json:"pickup_person_relationship,omitempty"`
	PickupPersonPhone         string `json:"pickup_person_phone,omitempty"`
}

type WaiverStatus struct {
	Signed   bool       `json:"signed"`
	SignedAt *time.Time `json:"signed_at,omitempty"`
}

// FocusArea is one skill on one apparatus, e.g. Tumbling / Cartwheel.
type FocusArea struct {
	Apparatus string `json:"apparatus"`
	Skill     string `json:"skill"`
}

type AdminMeta struct {
	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Draft is the session-scoped aggregate of everything entered so far.
type Draft struct {
	LessonType       LessonType     `json:"lesson_type"`
	LessonTypeLocked bool           `json:"lesson_type_locked,omitempty"`
	ParentID         int64          `json:"parent_id,omitempty"`
	SelectedAthletes []int64        `json:"selected_athletes"`
	Athletes         []AthleteInfo  `json:"athletes"`
	FocusAreas       []FocusArea    `json:"focus_areas"`
	FocusAreaOther   string         `json:"focus_area_other,omitempty"`
	SideQuests       []string       `json:"side_quests,omitempty"`
	Slot             *SlotSelection `json:"slot"`
	Parent           *ParentInfo    `json:"parent"`
	Safety           *SafetyContact `json:"safety"`
	Waiver           WaiverStatus   `json:"waiver"`
	Admin            AdminMeta      `json:"admin"`
	SpecialRequests  string         `json:"special_requests,omitempty"`
}

// Clone returns a deep copy so callers can read a draft without sharing it.
func (d Draft) Clone() Draft {
	out := d
	out.SelectedAthletes = append([]int64(nil), d.SelectedAthletes...)
	out.Athletes = append([]AthleteInfo(nil), d.Athletes...)
	out.FocusAreas = append([]FocusArea(nil), d.FocusAreas...)
	out.SideQuests = append([]string(nil), d.SideQuests...)
	if d.Slot != nil {
		slot := *d.Slot
		out.Slot = &slot
	}
	if d.Parent != nil {
		parent := *d.Parent
		out.Parent = &parent
	}
	if d.Safety != nil {
		safety := *d.Safety
		if d.Safety.WillDropOff != nil {
			v := *d.Safety.WillDropOff
			safety.WillDropOff = &v
		}
		if d.Safety.WillPickUp != nil {
			v := *d.Safety.WillPickUp
			safety.WillPickUp = &v
		}
		out.Safety = &safety
	}
	if d.Waiver.SignedAt != nil {
		at := *d.Waiver.SignedAt
		out.Waiver.SignedAt = &at
	}
	return out
}

// DraftPatch is a partial draft update; nil fields are left untouched.
// ClearSlot drops the selected slot.
type DraftPatch struct {
	LessonType       *LessonType    `json:"lesson_type,omitempty"`
	SelectedAthletes *[]int64       `json:"selected_athletes,omitempty"`
	Athletes         *[]AthleteInfo `json:"athletes,omitempty"`
	FocusAreas       *[]FocusArea   `json:"focus_areas,omitempty"`
	FocusAreaOther   *string        `json:"focus_area_other,omitempty"`
	SideQuests       *[]string      `json:"side_quests,omitempty"`
	Slot             *SlotSelection `json:"slot,omitempty"`
	ClearSlot        bool           `json:"clear_slot,omitempty"`
	Parent           *ParentInfo    `json:"parent,omitempty"`
	Safety           *SafetyContact `json:"safety,omitempty"`
	Waiver           *WaiverStatus  `json:"waiver,omitempty"`
	Admin            *AdminMeta     `json:"admin,omitempty"`
	SpecialRequests  *string        `json:"special_requests,omitempty"`
}

// ChangesSlot reports whether applying the patch would move the draft off
// the given slot.
func (p DraftPatch) ChangesSlot(current *SlotSelection) bool {
	if p.ClearSlot {
		return current != nil
	}
	if p.Slot == nil {
		return false
	}
	return current == nil || *current != *p.Slot
}
