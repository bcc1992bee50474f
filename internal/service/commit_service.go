package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lessonflow/internal/database"
	"lessonflow/internal/domain"
	"lessonflow/internal/events"
	"lessonflow/internal/metrics"
	"lessonflow/internal/models"
	"lessonflow/internal/worker"

	"github.com/rs/zerolog"
)

// Стадии коммита, на которых может остаться частично созданная запись
const (
	StageAthleteLinks   = "athlete_links"
	StageFocusAreaLinks = "focus_area_links"
	StageApparatusLinks = "apparatus_links"
	StageSideQuestLinks = "side_quest_links"
)

// CommitResult is the durable outcome of a commit plus what the payment
// collaborator needs to start checkout.
type CommitResult struct {
	Booking  *models.Booking       `json:"booking"`
	Athletes []*models.Athlete     `json:"athletes,omitempty"`
	Handoff  models.PaymentHandoff `json:"payment"`
}

// CommitService turns a complete draft into persisted rows. The store has no
// cross-table transaction, so every step is resolve-or-create and the whole
// commit may be repeated for the same session.
type CommitService struct {
	store        domain.BookingStore
	reservations *ReservationService
	eventBus     domain.EventPublisher
	retry        worker.RetryPolicy
	logger       *zerolog.Logger
}

func NewCommitService(store domain.BookingStore, reservations *ReservationService, eventBus domain.EventPublisher, retry worker.RetryPolicy, logger *zerolog.Logger) *CommitService {
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = models.DefaultCommitRetries
	}
	return &CommitService{
		store:        store,
		reservations: reservations,
		eventBus:     eventBus,
		retry:        retry,
		logger:       logger,
	}
}

func (s *CommitService) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.retry.Do(ctx, database.IsTransient, fn)
}

// Commit persists draft for sessionID.
//
// Guarantees on failure:
//   - *domain.SlotLostError: no booking was written. When the slot turned
//     out to be booked by someone else, parent and athlete rows may exist.
//   - any error before the booking row exists: parent and athlete rows may
//     exist without a booking; a retry reuses them.
//   - *domain.PartialCommitError: the booking and all its parent/athlete rows
//     exist, some join rows do not; the reservation is still held.
func (s *CommitService) Commit(ctx context.Context, draft models.Draft, sessionID string) (*CommitResult, error) {
	if err := precheck(&draft); err != nil {
		return nil, err
	}
	log := s.logger.With().Str("session_id", sessionID).Str("date", draft.Slot.Date).Str("time", draft.Slot.Time).Logger()

	var existing *models.Booking
	if err := s.do(ctx, func(ctx context.Context) error {
		var err error
		existing, err = s.store.FindBookingBySession(ctx, sessionID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("look up booking for session: %w", err)
	}

	// Once the booking row exists it claims the slot itself.
	if existing == nil {
		var held bool
		if err := s.do(ctx, func(ctx context.Context) error {
			var err error
			held, err = s.reservations.Holds(ctx, draft.Slot.Date, draft.Slot.Time, sessionID)
			return err
		}); err != nil {
			return nil, err
		}
		if !held {
			metrics.IncCommit(metrics.CommitSlotLost)
			log.Info().Msg("reservation lost before commit")
			return nil, &domain.SlotLostError{Date: draft.Slot.Date, Time: draft.Slot.Time}
		}
	}

	parent, err := s.resolveParent(ctx, &draft)
	if err != nil {
		metrics.IncCommit(metrics.CommitFailed)
		return nil, err
	}

	athletes, err := s.resolveAthletes(ctx, &draft, parent)
	if err != nil {
		metrics.IncCommit(metrics.CommitFailed)
		return nil, err
	}

	booking := existing
	if booking == nil {
		booking, err = s.createBooking(ctx, &draft, sessionID, parent)
		if errors.Is(err, database.ErrSlotTaken) {
			metrics.IncCommit(metrics.CommitSlotLost)
			log.Info().Msg("slot booked by another session before commit")
			return nil, &domain.SlotLostError{Date: draft.Slot.Date, Time: draft.Slot.Time}
		}
		if err != nil {
			metrics.IncCommit(metrics.CommitFailed)
			return nil, err
		}
		log.Info().Int64("booking_id", booking.ID).Msg("booking created")
	}

	if stage, err := s.linkBooking(ctx, &draft, booking.ID, athletes); err != nil {
		metrics.IncCommit(metrics.CommitPartial)
		log.Error().Err(err).Int64("booking_id", booking.ID).Str("stage", stage).Msg("booking created but incomplete")
		s.publish(events.EventBookingPartial, booking, stage)
		return nil, &domain.PartialCommitError{BookingID: booking.ID, Stage: stage, Err: err}
	}

	if err := s.reservations.Release(ctx, draft.Slot.Date, draft.Slot.Time, sessionID); err != nil {
		// the reservation still expires on its own
		log.Warn().Err(err).Msg("failed to release reservation after commit")
	}

	result := &CommitResult{
		Booking:  booking,
		Athletes: athletes,
		Handoff:  models.PaymentHandoff{BookingID: booking.ID, Amount: booking.Amount},
	}

	metrics.IncCommit(metrics.CommitSuccess)
	s.publish(events.EventBookingCreated, booking, "")
	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(events.EventPaymentRequested, result.Handoff); err != nil {
			log.Error().Err(err).Int64("booking_id", booking.ID).Msg("payment hand-off publish error")
		}
	}

	return result, nil
}

// Lookup returns the commit result of a session that has already committed,
// or nil when there is no booking for it.
func (s *CommitService) Lookup(ctx context.Context, sessionID string) (*CommitResult, error) {
	b, err := s.store.FindBookingBySession(ctx, sessionID)
	if err != nil || b == nil {
		return nil, err
	}
	return &CommitResult{
		Booking: b,
		Handoff: models.PaymentHandoff{BookingID: b.ID, Amount: b.Amount},
	}, nil
}

func precheck(d *models.Draft) error {
	var missing []string
	if _, ok := d.LessonType.Policy(); !ok {
		missing = append(missing, "lesson_type")
	}
	if d.Slot == nil || d.Slot.Date == "" || d.Slot.Time == "" {
		missing = append(missing, "slot")
	}
	if d.ParentID == 0 && d.Parent == nil {
		missing = append(missing, "parent")
	}
	if len(d.SelectedAthletes) == 0 && len(d.Athletes) == 0 {
		missing = append(missing, "athletes")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrIncompleteDraft, strings.Join(missing, ", "))
	}
	return nil
}

func (s *CommitService) resolveParent(ctx context.Context, d *models.Draft) (*models.Parent, error) {
	var parent *models.Parent
	err := s.do(ctx, func(ctx context.Context) error {
		if d.ParentID != 0 {
			p, err := s.store.GetParent(ctx, d.ParentID)
			if err == nil {
				parent = p
				return nil
			}
			if !errors.Is(err, database.ErrNotFound) || d.Parent == nil {
				return err
			}
		}

		p, err := s.store.FindParentByContact(ctx, d.Parent.Email, d.Parent.Phone)
		if err != nil {
			return err
		}
		if p != nil {
			parent = p
			return nil
		}

		p = &models.Parent{
			FirstName:             d.Parent.FirstName,
			LastName:              d.Parent.LastName,
			Email:                 d.Parent.Email,
			Phone:                 d.Parent.Phone,
			EmergencyContactName:  d.Parent.EmergencyContactName,
			EmergencyContactPhone: d.Parent.EmergencyContactPhone,
		}
		if err := s.store.CreateParent(ctx, p); err != nil {
			return err
		}
		parent = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve parent: %w", err)
	}
	return parent, nil
}

// resolveAthletes returns the booking's athletes in slot order: preselected
// ones first, then inline entries, capped at the lesson's athlete count.
// Preselected athletes must belong to parent.
func (s *CommitService) resolveAthletes(ctx context.Context, d *models.Draft, parent *models.Parent) ([]*models.Athlete, error) {
	policy, _ := d.LessonType.Policy()
	athletes := make([]*models.Athlete, 0, policy.Athletes)
	seen := make(map[int64]bool)

	add := func(a *models.Athlete) {
		if seen[a.ID] || len(athletes) >= policy.Athletes {
			return
		}
		seen[a.ID] = true
		athletes = append(athletes, a)
	}

	for _, id := range d.SelectedAthletes {
		var a *models.Athlete
		if err := s.do(ctx, func(ctx context.Context) error {
			var err error
			a, err = s.store.GetAthlete(ctx, id)
			return err
		}); err != nil {
			return nil, fmt.Errorf("resolve athlete %d: %w", id, err)
		}
		if a.ParentID != parent.ID {
			s.logger.Warn().Int64("athlete_id", id).Int64("parent_id", parent.ID).Msg("selected athlete belongs to another parent")
			return nil, &domain.ValidationError{Step: models.StepAthleteSelect, Fields: []string{"selected_athletes"}}
		}
		add(a)
	}

	for _, info := range d.Athletes {
		if len(athletes) >= policy.Athletes {
			break
		}
		var a *models.Athlete
		err := s.do(ctx, func(ctx context.Context) error {
			found, err := s.store.FindAthlete(ctx, parent.ID, info.FirstName, info.LastName, info.DateOfBirth)
			if err != nil {
				return err
			}
			if found != nil {
				a = found
				return nil
			}
			created := &models.Athlete{
				ParentID:    parent.ID,
				FirstName:   info.FirstName,
				LastName:    info.LastName,
				DateOfBirth: info.DateOfBirth,
				Gender:      info.Gender,
				Allergies:   info.Allergies,
				Experience:  info.Experience,
			}
			if err := s.store.CreateAthlete(ctx, created); err != nil {
				return err
			}
			a = created
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("resolve athlete %s %s: %w", info.FirstName, info.LastName, err)
		}
		add(a)
	}

	if len(athletes) == 0 {
		return nil, fmt.Errorf("%w: no athletes resolved", domain.ErrIncompleteDraft)
	}
	return athletes, nil
}

func (s *CommitService) createBooking(ctx context.Context, d *models.Draft, sessionID string, parent *models.Parent) (*models.Booking, error) {
	policy, _ := d.LessonType.Policy()
	b := &models.Booking{
		SessionID:       sessionID,
		ParentID:        parent.ID,
		LessonType:      d.LessonType,
		Date:            d.Slot.Date,
		Time:            d.Slot.Time,
		Amount:          policy.Price,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentUnpaid,
		BookingMethod:   models.BookingMethodOnline,
		FocusAreaOther:  d.FocusAreaOther,
		SpecialRequests: d.SpecialRequests,
		WaiverSigned:    d.Waiver.Signed,
		WaiverSignedAt:  d.Waiver.SignedAt,
	}
	if d.Admin.PaymentMethod != "" {
		b.BookingMethod = models.BookingMethodAdmin
		b.AdminPaymentMethod = d.Admin.PaymentMethod
		b.AdminNotes = d.Admin.Notes
	}
	if sc := d.Safety; sc != nil {
		if sc.WillDropOff != nil && !*sc.WillDropOff {
			b.DropoffPersonName = sc.DropoffPersonName
			b.DropoffPersonRelationship = sc.DropoffPersonRelationship
			b.DropoffPersonPhone = sc.DropoffPersonPhone
		}
		if sc.WillPickUp != nil && !*sc.WillPickUp {
			b.PickupPersonName = sc.PickupPersonName
			b.PickupPersonRelationship = sc.PickupPersonRelationship
			b.PickupPersonPhone = sc.PickupPersonPhone
		}
	}

	err := s.do(ctx, func(ctx context.Context) error {
		createErr := s.store.CreateBooking(ctx, b)
		if createErr == nil {
			return nil
		}
		// A failed insert may still have landed; re-check before retrying.
		found, err := s.store.FindBookingBySession(ctx, sessionID)
		if err == nil && found != nil {
			b = found
			return nil
		}
		return createErr
	})
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return b, nil
}

// linkBooking writes every join row. Links are insert-if-absent, so rows
// written by an earlier attempt are left as they are.
func (s *CommitService) linkBooking(ctx context.Context, d *models.Draft, bookingID int64, athletes []*models.Athlete) (string, error) {
	for i, a := range athletes {
		order := i + 1
		if err := s.do(ctx, func(ctx context.Context) error {
			return s.store.LinkBookingAthlete(ctx, bookingID, a.ID, order)
		}); err != nil {
			return StageAthleteLinks, err
		}
	}

	apparatusIDs := make(map[string]int64)
	var apparatusOrder []string
	for _, fa := range d.FocusAreas {
		err := s.do(ctx, func(ctx context.Context) error {
			appID, ok := apparatusIDs[fa.Apparatus]
			if !ok {
				id, err := s.store.ResolveApparatus(ctx, fa.Apparatus)
				if err != nil {
					return err
				}
				appID = id
				apparatusIDs[fa.Apparatus] = id
				apparatusOrder = append(apparatusOrder, fa.Apparatus)
			}
			focusID, err := s.store.ResolveFocusArea(ctx, appID, fa.Skill)
			if err != nil {
				return err
			}
			return s.store.LinkBookingFocusArea(ctx, bookingID, focusID)
		})
		if err != nil {
			return StageFocusAreaLinks, err
		}
	}

	for _, name := range apparatusOrder {
		id := apparatusIDs[name]
		if err := s.do(ctx, func(ctx context.Context) error {
			return s.store.LinkBookingApparatus(ctx, bookingID, id)
		}); err != nil {
			return StageApparatusLinks, err
		}
	}

	for _, name := range d.SideQuests {
		err := s.do(ctx, func(ctx context.Context) error {
			id, err := s.store.ResolveSideQuest(ctx, name)
			if err != nil {
				return err
			}
			return s.store.LinkBookingSideQuest(ctx, bookingID, id)
		})
		if err != nil {
			return StageSideQuestLinks, err
		}
	}
	return "", nil
}

func (s *CommitService) publish(eventType string, b *models.Booking, stage string) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:     b.ID,
		SessionID:     b.SessionID,
		ParentID:      b.ParentID,
		LessonType:    string(b.LessonType),
		Date:          b.Date,
		Time:          b.Time,
		Amount:        b.Amount,
		BookingMethod: b.BookingMethod,
		Stage:         stage,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}
