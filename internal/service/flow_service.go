package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lessonflow/internal/domain"
	"lessonflow/internal/flow"
	"lessonflow/internal/metrics"
	"lessonflow/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FlowService keeps booking sessions in a session store and couples the
// schedule step of each session to a slot reservation.
type FlowService struct {
	sessions     domain.SessionRepository
	reservations *ReservationService
	commits      *CommitService
	availability *AvailabilityService
	newID        func() string
	logger       *zerolog.Logger
}

func NewFlowService(sessions domain.SessionRepository, reservations *ReservationService, commits *CommitService, availability *AvailabilityService, logger *zerolog.Logger) *FlowService {
	return &FlowService{
		sessions:     sessions,
		reservations: reservations,
		commits:      commits,
		availability: availability,
		newID:        uuid.NewString,
		logger:       logger,
	}
}

// Start opens a new session. A slot in prefill is ignored: slots are only
// taken through UpdateDraft so that every selected slot is reserved.
func (s *FlowService) Start(ctx context.Context, flowType models.FlowType, identity models.Identity, prefill models.Draft) (flow.View, error) {
	if flowType.IsAdmin() && !identity.IsAdmin {
		return flow.View{}, fmt.Errorf("%w: %s", domain.ErrAdminOnly, flowType)
	}

	prefill.Slot = nil
	m, err := flow.New(s.newID(), flowType, identity, prefill)
	if err != nil {
		return flow.View{}, err
	}
	if err := s.save(ctx, m); err != nil {
		return flow.View{}, err
	}

	metrics.IncSessionStarted(string(flowType))
	s.logger.Info().Str("session_id", m.SessionID()).Str("flow_type", string(flowType)).Str("step", string(m.CurrentStep())).Msg("booking session started")
	return m.View(), nil
}

func (s *FlowService) Get(ctx context.Context, sessionID string) (flow.View, error) {
	m, err := s.load(ctx, sessionID)
	if err != nil {
		return flow.View{}, err
	}
	return m.View(), nil
}

// UpdateDraft merges patch into the session draft. Selecting a slot reserves
// it first; on conflict nothing is stored. Moving off a slot releases it.
func (s *FlowService) UpdateDraft(ctx context.Context, sessionID string, patch models.DraftPatch) (flow.View, error) {
	m, err := s.loadOpen(ctx, sessionID)
	if err != nil {
		return flow.View{}, err
	}

	draft := m.Draft()
	previous := draft.Slot
	lessonType := draft.LessonType
	if patch.LessonType != nil {
		lessonType = *patch.LessonType
	}

	var reserved *models.SlotSelection
	switch {
	case !patch.ClearSlot && patch.Slot != nil:
		if err := s.reserve(ctx, *patch.Slot, lessonType, sessionID); err != nil {
			return flow.View{}, err
		}
		if previous == nil || *previous != *patch.Slot {
			reserved = patch.Slot
		}
	case previous != nil && !patch.ClearSlot && patch.LessonType != nil && lessonType != draft.LessonType:
		// a longer lesson may no longer fit the held slot
		if err := s.reserve(ctx, *previous, lessonType, sessionID); err != nil {
			return flow.View{}, err
		}
	}

	if err := m.UpdateDraft(patch); err != nil {
		if reserved != nil {
			s.release(ctx, *reserved, sessionID)
		}
		return flow.View{}, err
	}

	if previous != nil && patch.ChangesSlot(previous) {
		s.release(ctx, *previous, sessionID)
	}

	if err := s.save(ctx, m); err != nil {
		return flow.View{}, err
	}
	return m.View(), nil
}

// SetWaiver records the waiver collaborator's signal.
func (s *FlowService) SetWaiver(ctx context.Context, sessionID string, signed bool, signedAt *time.Time) (flow.View, error) {
	status := models.WaiverStatus{Signed: signed}
	if signed {
		at := time.Now()
		if signedAt != nil {
			at = *signedAt
		}
		status.SignedAt = &at
	}
	return s.UpdateDraft(ctx, sessionID, models.DraftPatch{Waiver: &status})
}

// Advance moves the session forward. Leaving the schedule step re-checks the
// reservation; a slot that was lost in the meantime is cleared and reported
// as a conflict.
func (s *FlowService) Advance(ctx context.Context, sessionID string) (flow.View, error) {
	m, err := s.loadOpen(ctx, sessionID)
	if err != nil {
		return flow.View{}, err
	}

	if m.CurrentStep() == models.StepSchedule {
		draft := m.Draft()
		if draft.Slot != nil {
			if err := s.reserve(ctx, *draft.Slot, draft.LessonType, sessionID); err != nil {
				var conflict *domain.SlotConflictError
				if errors.As(err, &conflict) {
					if uerr := m.UpdateDraft(models.DraftPatch{ClearSlot: true}); uerr == nil {
						if serr := s.save(ctx, m); serr != nil {
							return flow.View{}, serr
						}
					}
				}
				return flow.View{}, err
			}
		}
	}

	if err := m.Advance(); err != nil {
		return flow.View{}, err
	}
	if err := s.save(ctx, m); err != nil {
		return flow.View{}, err
	}
	return m.View(), nil
}

func (s *FlowService) Retreat(ctx context.Context, sessionID string) (flow.View, error) {
	m, err := s.loadOpen(ctx, sessionID)
	if err != nil {
		return flow.View{}, err
	}
	m.Retreat()
	if err := s.save(ctx, m); err != nil {
		return flow.View{}, err
	}
	return m.View(), nil
}

func (s *FlowService) Jump(ctx context.Context, sessionID string, step models.StepName) (flow.View, error) {
	m, err := s.loadOpen(ctx, sessionID)
	if err != nil {
		return flow.View{}, err
	}
	if err := m.JumpTo(step); err != nil {
		return flow.View{}, err
	}
	if err := s.save(ctx, m); err != nil {
		return flow.View{}, err
	}
	return m.View(), nil
}

// Reset discards the draft and releases the session's reservation.
func (s *FlowService) Reset(ctx context.Context, sessionID string) (flow.View, error) {
	m, err := s.loadOpen(ctx, sessionID)
	if err != nil {
		return flow.View{}, err
	}
	if held := m.Reset(); held != nil {
		s.release(ctx, *held, sessionID)
	}
	if err := s.save(ctx, m); err != nil {
		return flow.View{}, err
	}
	return m.View(), nil
}

// Commit books the session. It is idempotent: a committed session returns
// its existing booking. When the reservation was lost the session is sent
// back to the schedule step with the slot cleared.
func (s *FlowService) Commit(ctx context.Context, sessionID string) (*CommitResult, error) {
	m, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if m.BookingID() != 0 && !m.Incomplete() {
		res, err := s.commits.Lookup(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	if !m.IsTerminal() {
		return nil, fmt.Errorf("%w: at %s", domain.ErrNotTerminal, m.CurrentStep())
	}
	if verr := m.Pending(); verr != nil {
		return nil, verr
	}

	result, err := s.commits.Commit(ctx, m.Draft(), sessionID)
	if err != nil {
		var (
			lost    *domain.SlotLostError
			partial *domain.PartialCommitError
		)
		switch {
		case errors.As(err, &lost):
			s.returnToSchedule(ctx, m)
		case errors.As(err, &partial):
			// черновик замораживается до завершения коммита
			m.MarkIncomplete(partial.BookingID)
			if serr := s.save(ctx, m); serr != nil {
				s.logger.Error().Err(serr).Str("session_id", sessionID).Int64("booking_id", partial.BookingID).Msg("failed to save incomplete session")
			}
		}
		return nil, err
	}

	m.MarkCommitted(result.Booking.ID)
	if err := s.save(ctx, m); err != nil {
		// the booking exists; a retry finds it by session id
		s.logger.Error().Err(err).Str("session_id", sessionID).Int64("booking_id", result.Booking.ID).Msg("failed to save committed session")
	}
	return result, nil
}

func (s *FlowService) returnToSchedule(ctx context.Context, m *flow.Machine) {
	if err := m.UpdateDraft(models.DraftPatch{ClearSlot: true}); err != nil {
		return
	}
	if err := m.JumpTo(models.StepSchedule); err != nil {
		s.logger.Error().Err(err).Str("session_id", m.SessionID()).Msg("failed to return session to schedule")
	}
	if err := s.save(ctx, m); err != nil {
		s.logger.Error().Err(err).Str("session_id", m.SessionID()).Msg("failed to save session")
	}
}

// reserve takes slot for the session. The slot must be one availability
// still offers for the lesson: inside the coach's hours, in the future, and
// not overlapping a booking or another session's reservation.
func (s *FlowService) reserve(ctx context.Context, slot models.SlotSelection, lessonType models.LessonType, sessionID string) error {
	if err := ValidateSlot(slot.Date, slot.Time); err != nil {
		return err
	}
	if s.availability != nil {
		av, offered, err := s.availability.Offers(ctx, slot.Date, slot.Time, lessonType, sessionID)
		if err != nil {
			return err
		}
		if !offered {
			metrics.IncReservation(metrics.ReservationConflict)
			return &domain.SlotConflictError{Date: slot.Date, Time: slot.Time, Alternatives: av.Available}
		}
	}

	res, err := s.reservations.Reserve(ctx, slot.Date, slot.Time, lessonType, sessionID)
	if err != nil {
		return err
	}
	if res.OK {
		return nil
	}

	conflict := &domain.SlotConflictError{Date: slot.Date, Time: slot.Time}
	if s.availability != nil {
		if av, err := s.availability.ForLesson(ctx, slot.Date, lessonType, sessionID); err == nil {
			conflict.Alternatives = av.Available
		}
	}
	return conflict
}

func (s *FlowService) release(ctx context.Context, slot models.SlotSelection, sessionID string) {
	if err := s.reservations.Release(ctx, slot.Date, slot.Time, sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Str("date", slot.Date).Str("time", slot.Time).Msg("failed to release slot")
	}
}

func (s *FlowService) load(ctx context.Context, sessionID string) (*flow.Machine, error) {
	data, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return flow.Restore(data)
}

// loadOpen loads a session that may still be edited. Once a booking row
// exists the draft is frozen, including while its links are incomplete.
func (s *FlowService) loadOpen(ctx context.Context, sessionID string) (*flow.Machine, error) {
	m, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case m.BookingID() == 0:
		return m, nil
	case m.Incomplete():
		return nil, fmt.Errorf("%w: booking %d", domain.ErrCommitIncomplete, m.BookingID())
	default:
		return nil, fmt.Errorf("%w: booking %d", domain.ErrAlreadyCommitted, m.BookingID())
	}
}

func (s *FlowService) save(ctx context.Context, m *flow.Machine) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", m.SessionID(), err)
	}
	if err := s.sessions.SaveSession(ctx, m.SessionID(), data); err != nil {
		return fmt.Errorf("save session %s: %w", m.SessionID(), err)
	}
	return nil
}
