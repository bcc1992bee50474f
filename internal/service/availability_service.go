package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"lessonflow/internal/config"
	"lessonflow/internal/domain"
	"lessonflow/internal/models"
)

// AvailabilityService combines the coach's weekly hours with committed
// bookings and live reservations.
type AvailabilityService struct {
	bookings     domain.BookingReader
	reservations *ReservationService
	weekly       config.AvailabilityConfig
	now          func() time.Time
}

func NewAvailabilityService(bookings domain.BookingReader, reservations *ReservationService, weekly config.AvailabilityConfig) *AvailabilityService {
	return &AvailabilityService{
		bookings:     bookings,
		reservations: reservations,
		weekly:       weekly,
		now:          time.Now,
	}
}

// ForDate lists the start times still open on date for a lesson of the
// default length.
func (s *AvailabilityService) ForDate(ctx context.Context, date string) (*models.Availability, error) {
	return s.ForLesson(ctx, date, "", "")
}

// ForLesson lists the start times where a lesson of the given type fits
// without overlapping a booking or another session's reservation.
// Reservations held by sessionID do not count against it.
func (s *AvailabilityService) ForLesson(ctx context.Context, date string, lesson models.LessonType, sessionID string) (*models.Availability, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", domain.ErrInvalidSlot, date)
	}

	booked, err := s.bookings.GetBookedSlots(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("booked slots %s: %w", date, err)
	}
	live, err := s.reservations.live(ctx, date)
	if err != nil {
		return nil, err
	}

	busy := make([]models.Span, 0, len(booked)+len(live))
	bookedTimes := make([]string, 0, len(booked))
	for _, b := range booked {
		bookedTimes = append(bookedTimes, b.Time)
		if span, ok := b.Span(); ok {
			busy = append(busy, span)
		}
	}
	reserved := make([]string, 0, len(live))
	for _, r := range live {
		reserved = append(reserved, r.Time)
		if sessionID != "" && r.SessionID == sessionID {
			continue
		}
		if span, ok := models.LessonSpan(r.Time, r.LessonType); ok {
			busy = append(busy, span)
		}
	}

	// время сравнивается в локальной зоне процесса
	now := s.now()
	today := now.Format(models.DateLayout)
	clock := now.Format(models.TimeLayout)

	available := make([]string, 0)
	if date >= today {
		for _, t := range s.weekly.TimesFor(day) {
			if date == today && t <= clock {
				continue
			}
			span, ok := models.LessonSpan(t, lesson)
			if !ok || overlapsAny(span, busy) {
				continue
			}
			available = append(available, t)
		}
	}

	return &models.Availability{
		Date:      date,
		Available: available,
		Reserved:  reserved,
		Booked:    bookedTimes,
	}, nil
}

// Offers reports whether a lesson of the given type may start at slotTime
// for sessionID. The returned availability is the one the answer was based on.
func (s *AvailabilityService) Offers(ctx context.Context, date, slotTime string, lesson models.LessonType, sessionID string) (*models.Availability, bool, error) {
	av, err := s.ForLesson(ctx, date, lesson, sessionID)
	if err != nil {
		return nil, false, err
	}
	return av, slices.Contains(av.Available, slotTime), nil
}

func overlapsAny(span models.Span, busy []models.Span) bool {
	for _, b := range busy {
		if span.Overlaps(b) {
			return true
		}
	}
	return false
}
