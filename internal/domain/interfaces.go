package domain

import (
	"context"
	"time"

	"lessonflow/internal/models"
)

// ReservationRepository stores slot reservations. Every mutating method is a
// single conditional write keyed by (date, time).
type ReservationRepository interface {
	// InsertIfAvailable stores res unless a reservation owned by another
	// session is live at now. On conflict it returns the live holder.
	InsertIfAvailable(ctx context.Context, res *models.Reservation, now time.Time) (holder *models.Reservation, ok bool, err error)
	GetReservation(ctx context.Context, date, slotTime string) (*models.Reservation, error)
	// DeleteIfOwner removes the reservation only when it belongs to sessionID.
	DeleteIfOwner(ctx context.Context, date, slotTime, sessionID string) (bool, error)
	ListReservations(ctx context.Context, date string) ([]*models.Reservation, error)
	// DeleteExpired removes reservations with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionRepository persists in-progress booking sessions.
type SessionRepository interface {
	GetSession(ctx context.Context, sessionID string) ([]byte, error)
	SaveSession(ctx context.Context, sessionID string, data []byte) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// BookingStore is the persistence contract of the booking commit. It offers
// single-row create/read operations only; there is no cross-table transaction.
type BookingStore interface {
	GetParent(ctx context.Context, id int64) (*models.Parent, error)
	FindParentByContact(ctx context.Context, email, phone string) (*models.Parent, error)
	CreateParent(ctx context.Context, parent *models.Parent) error

	GetAthlete(ctx context.Context, id int64) (*models.Athlete, error)
	FindAthlete(ctx context.Context, parentID int64, firstName, lastName, dateOfBirth string) (*models.Athlete, error)
	CreateAthlete(ctx context.Context, athlete *models.Athlete) error

	FindBookingBySession(ctx context.Context, sessionID string) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBookingLinks(ctx context.Context, bookingID int64) (*models.BookingLinks, error)

	LinkBookingAthlete(ctx context.Context, bookingID, athleteID int64, slotOrder int) error
	ResolveApparatus(ctx context.Context, name string) (int64, error)
	ResolveFocusArea(ctx context.Context, apparatusID int64, name string) (int64, error)
	ResolveSideQuest(ctx context.Context, name string) (int64, error)
	LinkBookingFocusArea(ctx context.Context, bookingID, focusAreaID int64) error
	LinkBookingApparatus(ctx context.Context, bookingID, apparatusID int64) error
	LinkBookingSideQuest(ctx context.Context, bookingID, sideQuestID int64) error
}

// BookingReader serves availability and export queries.
type BookingReader interface {
	GetBookedSlots(ctx context.Context, date string) ([]models.BookedSlot, error)
	GetBookingsByDateRange(ctx context.Context, from, to string) ([]*models.Booking, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
