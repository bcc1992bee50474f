package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lessonflow/internal/domain"
	"lessonflow/internal/events"
	"lessonflow/internal/metrics"
	"lessonflow/internal/models"

	"github.com/rs/zerolog"
)

// ReserveResult reports the outcome of a reservation attempt. A conflict is
// a normal result, not an error.
type ReserveResult struct {
	OK        bool                `json:"ok"`
	ExpiresAt time.Time           `json:"expires_at"`
	Holder    *models.Reservation `json:"-"`
}

type ReservationService struct {
	repo     domain.ReservationRepository
	eventBus domain.EventPublisher
	ttl      time.Duration
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewReservationService(repo domain.ReservationRepository, eventBus domain.EventPublisher, ttl time.Duration, logger *zerolog.Logger) *ReservationService {
	if ttl <= 0 {
		ttl = models.DefaultReservationTTL * time.Second
	}
	return &ReservationService{
		repo:     repo,
		eventBus: eventBus,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *ReservationService) TTL() time.Duration {
	return s.ttl
}

// ValidateSlot checks the date and time formats of a slot.
func ValidateSlot(date, slotTime string) error {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return fmt.Errorf("%w: date %q", domain.ErrInvalidSlot, date)
	}
	if _, err := time.Parse(models.TimeLayout, slotTime); err != nil {
		return fmt.Errorf("%w: time %q", domain.ErrInvalidSlot, slotTime)
	}
	return nil
}

// Reserve claims (date, time) for sessionID. Re-reserving a slot the session
// already holds refreshes its expiry.
//
// The store guards the exact (date, time) key. Reservations of other start
// times that overlap the lesson are checked before and after the write; an
// attempt that finds one after writing removes its own row again. Two
// overlapping attempts racing each other may both lose, but both can never
// win.
func (s *ReservationService) Reserve(ctx context.Context, date, slotTime string, lessonType models.LessonType, sessionID string) (ReserveResult, error) {
	if err := ValidateSlot(date, slotTime); err != nil {
		return ReserveResult{}, err
	}
	if sessionID == "" {
		return ReserveResult{}, fmt.Errorf("reserve %s %s: empty session id", date, slotTime)
	}
	span, _ := models.LessonSpan(slotTime, lessonType)

	now := s.now()
	res := &models.Reservation{
		Date:       date,
		Time:       slotTime,
		LessonType: lessonType,
		SessionID:  sessionID,
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
	}

	live, err := s.live(ctx, date)
	if err != nil {
		return ReserveResult{}, err
	}
	if holder := overlapping(live, res, span); holder != nil {
		return s.conflict(res, holder), nil
	}

	holder, ok, err := s.repo.InsertIfAvailable(ctx, res, now)
	if err != nil {
		return ReserveResult{}, fmt.Errorf("reserve %s %s: %w", date, slotTime, err)
	}
	if !ok {
		return s.conflict(res, holder), nil
	}

	live, err = s.live(ctx, date)
	if err != nil {
		return ReserveResult{}, err
	}
	if holder := overlapping(live, res, span); holder != nil {
		if _, err := s.repo.DeleteIfOwner(ctx, date, slotTime, sessionID); err != nil {
			return ReserveResult{}, fmt.Errorf("back off %s %s: %w", date, slotTime, err)
		}
		return s.conflict(res, holder), nil
	}

	metrics.IncReservation(metrics.ReservationReserved)
	s.logger.Debug().Str("date", date).Str("time", slotTime).Str("session_id", sessionID).Time("expires_at", res.ExpiresAt).Msg("slot reserved")
	s.publish(events.EventSlotReserved, res)

	return ReserveResult{OK: true, ExpiresAt: res.ExpiresAt}, nil
}

func (s *ReservationService) conflict(res, holder *models.Reservation) ReserveResult {
	metrics.IncReservation(metrics.ReservationConflict)
	s.logger.Info().Str("date", res.Date).Str("time", res.Time).Str("session_id", res.SessionID).Msg("slot already reserved")
	result := ReserveResult{Holder: holder}
	if holder != nil {
		result.ExpiresAt = holder.ExpiresAt
	}
	return result
}

// overlapping returns a live reservation of another session whose lesson
// overlaps span at a different start time. Same-key conflicts are left to
// the store.
func overlapping(live []*models.Reservation, res *models.Reservation, span models.Span) *models.Reservation {
	for _, r := range live {
		if r.SessionID == res.SessionID || r.Time == res.Time {
			continue
		}
		if other, ok := models.LessonSpan(r.Time, r.LessonType); ok && other.Overlaps(span) {
			return r
		}
	}
	return nil
}

// Release drops the reservation when sessionID owns it. Releasing a slot held
// by someone else, or not held at all, is a no-op.
func (s *ReservationService) Release(ctx context.Context, date, slotTime, sessionID string) error {
	deleted, err := s.repo.DeleteIfOwner(ctx, date, slotTime, sessionID)
	if err != nil {
		return fmt.Errorf("release %s %s: %w", date, slotTime, err)
	}
	if deleted {
		metrics.IncReservation(metrics.ReservationReleased)
		s.publish(events.EventSlotReleased, &models.Reservation{Date: date, Time: slotTime, SessionID: sessionID})
	}
	return nil
}

// ListActive returns the live reservations of a date, ordered by time.
// Expired rows are filtered even if the sweeper has not run yet.
func (s *ReservationService) ListActive(ctx context.Context, date string) ([]models.ActiveSlot, error) {
	live, err := s.live(ctx, date)
	if err != nil {
		return nil, err
	}
	active := make([]models.ActiveSlot, 0, len(live))
	for _, r := range live {
		active = append(active, models.ActiveSlot{Time: r.Time, LessonType: r.LessonType})
	}
	return active, nil
}

func (s *ReservationService) live(ctx context.Context, date string) ([]*models.Reservation, error) {
	rows, err := s.repo.ListReservations(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list reservations %s: %w", date, err)
	}

	now := s.now()
	live := make([]*models.Reservation, 0, len(rows))
	for _, r := range rows {
		if r.LiveAt(now) {
			live = append(live, r)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Time < live[j].Time })
	return live, nil
}

// SweepExpired deletes expired reservations. It implements worker.Sweeper.
func (s *ReservationService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep reservations: %w", err)
	}
	metrics.AddSwept(n)
	return n, nil
}

// Holds reports whether sessionID still owns a live reservation on the slot.
func (s *ReservationService) Holds(ctx context.Context, date, slotTime, sessionID string) (bool, error) {
	r, err := s.repo.GetReservation(ctx, date, slotTime)
	if err != nil {
		return false, fmt.Errorf("get reservation %s %s: %w", date, slotTime, err)
	}
	return r != nil && r.SessionID == sessionID && r.LiveAt(s.now()), nil
}

func (s *ReservationService) publish(eventType string, r *models.Reservation) {
	if s.eventBus == nil {
		return
	}
	payload := events.SlotEventPayload{
		Date:       r.Date,
		Time:       r.Time,
		LessonType: string(r.LessonType),
		SessionID:  r.SessionID,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("session_id", r.SessionID).Msg("publish event error")
	}
}
