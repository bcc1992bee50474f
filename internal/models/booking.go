package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Parent struct {
	ID                    int64     `json:"id"`
	FirstName             string    `json:"first_name"`
	LastName              string    `json:"last_name"`
	Email                 string    `json:"email"`
	Phone                 string    `json:"phone"`
	EmergencyContactName  string    `json:"emergency_contact_name"`
	EmergencyContactPhone string    `json:"emergency_contact_phone"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type Athlete struct {
	ID          int64     `json:"id"`
	ParentID    int64     `json:"parent_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth string    `json:"date_of_birth"`
	Gender      string    `json:"gender,omitempty"`
	Allergies   string    `json:"allergies,omitempty"`
	Experience  string    `json:"experience"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (a *Athlete) Name() string {
	return a.FirstName + " " + a.LastName
}

type Booking struct {
	ID                        int64           `json:"id"`
	SessionID                 string          `json:"session_id"`
	ParentID                  int64           `json:"parent_id"`
	LessonType                LessonType      `json:"lesson_type"`
	Date                      string          `json:"date"`
	Time                      string          `json:"time"`
	EndTime                   string          `json:"end_time"`
	Amount                    decimal.Decimal `json:"amount"`
	Status                    string          `json:"status"` // pending, confirmed, completed, cancelled, no-show
	PaymentStatus             string          `json:"payment_status"`
	BookingMethod             string          `json:"booking_method"`
	FocusAreaOther            string          `json:"focus_area_other,omitempty"`
	SpecialRequests           string          `json:"special_requests,omitempty"`
	AdminPaymentMethod        string          `json:"admin_payment_method,omitempty"`
	AdminNotes                string          `json:"admin_notes,omitempty"`
	DropoffPersonName         string          `json:"dropoff_person_name,omitempty"`
	DropoffPersonRelationship string          `json:"dropoff_person_relationship,omitempty"`
	DropoffPersonPhone        string          `json:"dropoff_person_phone,omitempty"`
	PickupPersonName          string          `json:"pickup_person_name,omitempty"`
	PickupPersonRelationship  string          `json:"pickup_person_relationship,omitempty"`
	PickupPersonPhone         string          `json:"pickup_person_phone,omitempty"`
	WaiverSigned              bool            `json:"waiver_signed"`
	WaiverSignedAt            *time.Time      `json:"waiver_signed_at,omitempty"`
	CreatedAt                 time.Time       `json:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at"`
}

// BookingAthlete is one row of the booking/athlete relation.
type BookingAthlete struct {
	AthleteID int64 `json:"athlete_id"`
	SlotOrder int   `json:"slot_order"`
}

// BookingLinks lists the join rows that currently exist for a booking.
type BookingLinks struct {
	Athletes   []BookingAthlete `json:"athletes"`
	FocusAreas []int64          `json:"focus_areas"`
	Apparatus  []int64          `json:"apparatus"`
	SideQuests []int64          `json:"side_quests"`
}

// PaymentHandoff is what the payment collaborator needs to start checkout.
type PaymentHandoff struct {
	BookingID int64           `json:"booking_id"`
	Amount    decimal.Decimal `json:"amount"`
}
