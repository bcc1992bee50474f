package models

import "time"

// Reservation is a TTL-bounded soft lock on one (date, time) slot.
type Reservation struct {
	Date       string     `json:"date"`
	Time       string     `json:"time"`
	LessonType LessonType `json:"lesson_type"`
	SessionID  string     `json:"session_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// LiveAt reports whether the reservation still holds the slot at now.
func (r *Reservation) LiveAt(now time.Time) bool {
	return r != nil && r.ExpiresAt.After(now)
}

// ActiveSlot is the availability projection of a live reservation.
type ActiveSlot struct {
	Time       string     `json:"time"`
	LessonType LessonType `json:"lesson_type"`
}

// Availability is the bookable projection of one date.
type Availability struct {
	Date      string   `json:"date"`
	Available []string `json:"available"`
	Reserved  []string `json:"reserved"`
	Booked    []string `json:"booked"`
}
