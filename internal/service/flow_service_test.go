package service

import (
	"context"
	"testing"
	"time"

	"lessonflow/internal/domain"
	"lessonflow/internal/events"
	"lessonflow/internal/flow"
	"lessonflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lesson(l models.LessonType) *models.LessonType { return &l }

func slot(date, t string) *models.SlotSelection {
	return &models.SlotSelection{Date: date, Time: t}
}

func mustUpdate(t *testing.T, env *testEnv, id string, patch models.DraftPatch) flow.View {
	t.Helper()
	v, err := env.flows.UpdateDraft(context.Background(), id, patch)
	require.NoError(t, err)
	return v
}

func mustAdvance(t *testing.T, env *testEnv, id string, want models.StepName) flow.View {
	t.Helper()
	v, err := env.flows.Advance(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, want, v.Step)
	return v
}

// walkToPayment drives a new-user session from the first step to payment.
func walkToPayment(t *testing.T, env *testEnv, date, slotTime string) string {
	t.Helper()
	ctx := context.Background()

	v, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{})
	require.NoError(t, err)
	id := v.SessionID
	require.Equal(t, models.StepLessonType, v.Step)

	mustUpdate(t, env, id, models.DraftPatch{LessonType: lesson(models.LessonQuickJourney)})
	mustAdvance(t, env, id, models.StepAthleteInfo)

	mustUpdate(t, env, id, models.DraftPatch{Athletes: &[]models.AthleteInfo{athleteInfo("Mia")}})
	mustAdvance(t, env, id, models.StepFocusAreas)

	mustUpdate(t, env, id, models.DraftPatch{FocusAreas: &[]models.FocusArea{
		{Apparatus: "Beam", Skill: "Cartwheel"},
		{Apparatus: "Floor", Skill: "Round-off"},
	}})
	mustAdvance(t, env, id, models.StepSchedule)

	mustUpdate(t, env, id, models.DraftPatch{Slot: slot(date, slotTime)})
	mustAdvance(t, env, id, models.StepParentInfo)

	mustUpdate(t, env, id, models.DraftPatch{Parent: parentInfo()})
	mustAdvance(t, env, id, models.StepSafety)

	mustUpdate(t, env, id, models.DraftPatch{Safety: &models.SafetyContact{WillDropOff: boolPtr(true), WillPickUp: boolPtr(true)}})
	mustAdvance(t, env, id, models.StepWaiver)

	_, err = env.flows.SetWaiver(ctx, id, true, nil)
	require.NoError(t, err)
	v = mustAdvance(t, env, id, models.StepPayment)
	require.True(t, v.Terminal)
	return id
}

// New user books Quick Journey with one athlete and two focus areas.
func TestFlowService_NewUserCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := walkToPayment(t, env, "2025-03-01", "10:00")

	res, err := env.flows.Commit(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 1, env.count(t, "bookings"))
	assert.Equal(t, 1, env.count(t, "parents"))
	assert.Equal(t, 1, env.count(t, "athletes"))
	assert.Equal(t, 2, env.count(t, "booking_focus_areas"))

	v, err := env.flows.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.ID, v.BookingID)

	active, err := env.reservations.ListActive(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Empty(t, active)

	// commit again returns the same booking
	again, err := env.flows.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.ID, again.Booking.ID)
	assert.Equal(t, 1, env.count(t, "bookings"))
	assert.Equal(t, 1, env.events.count(events.EventPaymentRequested))

	_, err = env.flows.UpdateDraft(ctx, id, models.DraftPatch{SpecialRequests: new(string)})
	assert.ErrorIs(t, err, domain.ErrAlreadyCommitted)
}

// Two sessions pick the same time; the loser is offered the other times.
func TestFlowService_SlotConflictOffersAlternatives(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonQuickJourney})
	require.NoError(t, err)
	b, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonQuickJourney})
	require.NoError(t, err)

	mustUpdate(t, env, a.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:00")})

	_, err = env.flows.UpdateDraft(ctx, b.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:00")})
	var conflict *domain.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"10:30", "11:00"}, conflict.Alternatives)

	v, err := env.flows.Get(ctx, b.SessionID)
	require.NoError(t, err)
	assert.Nil(t, v.Draft.Slot, "a conflicting slot is never stored")

	mustUpdate(t, env, b.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:30")})
	active, err := env.reservations.ListActive(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestFlowService_ChangingSlotReleasesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonDeepDive})
	require.NoError(t, err)

	mustUpdate(t, env, v.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:00")})
	mustUpdate(t, env, v.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "11:00")})

	active, err := env.reservations.ListActive(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, []models.ActiveSlot{{Time: "11:00", LessonType: models.LessonDeepDive}}, active)

	mustUpdate(t, env, v.SessionID, models.DraftPatch{ClearSlot: true})
	active, err = env.reservations.ListActive(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestFlowService_FocusLimitReleasesNewSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonQuickJourney})
	require.NoError(t, err)

	_, err = env.flows.UpdateDraft(ctx, v.SessionID, models.DraftPatch{
		Slot: slot("2025-03-01", "10:00"),
		FocusAreas: &[]models.FocusArea{
			{Apparatus: "Beam", Skill: "A"}, {Apparatus: "Beam", Skill: "B"}, {Apparatus: "Beam", Skill: "C"},
		},
	})
	assert.ErrorIs(t, err, domain.ErrFocusAreaLimit)

	active, err := env.reservations.ListActive(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Empty(t, active)
}

// The reservation expires before commit and another session takes the time.
func TestFlowService_SlotLostReturnsToSchedule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := walkToPayment(t, env, "2025-03-01", "10:00")

	env.clock.Advance(6 * time.Minute)
	other, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonQuickJourney})
	require.NoError(t, err)
	mustUpdate(t, env, other.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:00")})

	_, err = env.flows.Commit(ctx, id)
	var lost *domain.SlotLostError
	require.ErrorAs(t, err, &lost)

	v, err := env.flows.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepSchedule, v.Step)
	assert.Nil(t, v.Draft.Slot)
	assert.Zero(t, env.count(t, "bookings"))

	// pick another time and finish
	mustUpdate(t, env, id, models.DraftPatch{Slot: slot("2025-03-01", "10:30")})
	mustAdvance(t, env, id, models.StepParentInfo)
	_, err = env.flows.Jump(ctx, id, models.StepPayment)
	require.NoError(t, err)
	res, err := env.flows.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "10:30", res.Booking.Time)
}

func TestFlowService_AdvanceRechecksReservation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.flows.Start(ctx, models.FlowAdminFromAthlete, models.Identity{IsAdmin: true}, models.Draft{
		LessonType:       models.LessonQuickJourney,
		LessonTypeLocked: true,
		FocusAreas:       []models.FocusArea{{Apparatus: "Bars", Skill: "Kip"}},
	})
	require.NoError(t, err)
	id := v.SessionID
	require.Equal(t, models.StepFocusAreas, v.Step)
	mustAdvance(t, env, id, models.StepSchedule)
	mustUpdate(t, env, id, models.DraftPatch{Slot: slot("2025-03-01", "11:00")})

	// still free after expiry: advancing simply re-reserves
	env.clock.Advance(6 * time.Minute)
	mustAdvance(t, env, id, models.StepParentInfo)
	held, err := env.reservations.Holds(ctx, "2025-03-01", "11:00", id)
	require.NoError(t, err)
	assert.True(t, held)

	// taken by someone else: advancing fails and clears the slot
	_, err = env.flows.Retreat(ctx, id)
	require.NoError(t, err)
	env.clock.Advance(6 * time.Minute)
	_, err = env.reservations.Reserve(ctx, "2025-03-01", "11:00", models.LessonQuickJourney, "intruder")
	require.NoError(t, err)

	_, err = env.flows.Advance(ctx, id)
	var conflict *domain.SlotConflictError
	require.ErrorAs(t, err, &conflict)

	v, err = env.flows.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepSchedule, v.Step)
	assert.Nil(t, v.Draft.Slot)
}

func TestFlowService_ResetReleasesSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonQuickJourney})
	require.NoError(t, err)
	mustUpdate(t, env, v.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:00")})

	v, err = env.flows.Reset(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Nil(t, v.Draft.Slot)
	assert.Equal(t, models.LessonQuickJourney, v.Draft.LessonType)
	assert.Equal(t, models.StepLessonType, v.Step)

	active, err := env.reservations.ListActive(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestFlowService_StartAndLookupErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.flows.Start(ctx, models.FlowAdminNewAthlete, models.Identity{ParentID: 3}, models.Draft{})
	assert.ErrorIs(t, err, domain.ErrAdminOnly)

	_, err = env.flows.Start(ctx, "walk-in", models.Identity{}, models.Draft{})
	assert.ErrorIs(t, err, domain.ErrUnknownFlowType)

	_, err = env.flows.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	// a prefilled slot is dropped rather than trusted
	v, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{Slot: slot("2025-03-01", "10:00")})
	require.NoError(t, err)
	assert.Nil(t, v.Draft.Slot)

	_, err = env.flows.Commit(ctx, v.SessionID)
	assert.ErrorIs(t, err, domain.ErrNotTerminal)

	_, err = env.flows.Jump(ctx, v.SessionID, models.StepAthleteSelect)
	assert.ErrorIs(t, err, domain.ErrUnknownStep)

	_, err = env.flows.Advance(ctx, v.SessionID)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"lesson_type"}, verr.Fields)
}

// An authenticated parent with a signed waiver and a preselected dual lesson
// starts at athlete selection and never sees parent info or waiver.
func TestFlowService_ParentPortalSkips(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.flows.Start(ctx, models.FlowParentPortal, models.Identity{ParentID: 7}, models.Draft{
		LessonType:       models.LessonDualQuest,
		LessonTypeLocked: true,
		Parent:           parentInfo(),
		Waiver:           models.WaiverStatus{Signed: true},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StepAthleteSelect, v.Step)
	assert.Equal(t, int64(7), v.Draft.ParentID)

	id := v.SessionID
	mustUpdate(t, env, id, models.DraftPatch{SelectedAthletes: &[]int64{1, 2}})
	mustAdvance(t, env, id, models.StepFocusAreas)
	mustUpdate(t, env, id, models.DraftPatch{FocusAreas: &[]models.FocusArea{{Apparatus: "Floor", Skill: "Handstand"}}})
	mustAdvance(t, env, id, models.StepSchedule)
	mustUpdate(t, env, id, models.DraftPatch{Slot: slot("2025-03-01", "10:00")})
	mustAdvance(t, env, id, models.StepSafety)
	mustUpdate(t, env, id, models.DraftPatch{Safety: &models.SafetyContact{WillDropOff: boolPtr(true), WillPickUp: boolPtr(true)}})
	v = mustAdvance(t, env, id, models.StepPayment)
	assert.True(t, v.Terminal)

	v, err = env.flows.Retreat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepSafety, v.Step)
}

// A committed booking keeps its time out of every later selection.
func TestFlowService_BookedSlotIsNotOffered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := walkToPayment(t, env, "2025-03-01", "10:00")
	_, err := env.flows.Commit(ctx, id)
	require.NoError(t, err)

	b, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonQuickJourney})
	require.NoError(t, err)

	_, err = env.flows.UpdateDraft(ctx, b.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:00")})
	var conflict *domain.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"10:30", "11:00"}, conflict.Alternatives)

	active, err := env.reservations.ListActive(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestFlowService_LessonLengthConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonDeepDive})
	require.NoError(t, err)
	b, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonQuickJourney})
	require.NoError(t, err)

	mustUpdate(t, env, a.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:00")})

	_, err = env.flows.UpdateDraft(ctx, b.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:30")})
	var conflict *domain.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"11:00"}, conflict.Alternatives)

	// a shorter lesson for A frees 10:30
	mustUpdate(t, env, a.SessionID, models.DraftPatch{LessonType: lesson(models.LessonQuickJourney)})
	mustUpdate(t, env, b.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "10:30")})

	// and A can no longer grow back into B's lesson
	_, err = env.flows.UpdateDraft(ctx, a.SessionID, models.DraftPatch{LessonType: lesson(models.LessonDeepDive)})
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"11:00"}, conflict.Alternatives)

	v, err := env.flows.Get(ctx, a.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.LessonQuickJourney, v.Draft.LessonType)
	require.NotNil(t, v.Draft.Slot)
	assert.Equal(t, "10:00", v.Draft.Slot.Time)
}

func TestFlowService_SlotOutsideHours(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	v, err := env.flows.Start(ctx, models.FlowNewUser, models.Identity{}, models.Draft{LessonType: models.LessonQuickJourney})
	require.NoError(t, err)

	_, err = env.flows.UpdateDraft(ctx, v.SessionID, models.DraftPatch{Slot: slot("2025-03-01", "12:00")})
	var conflict *domain.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"10:00", "10:30", "11:00"}, conflict.Alternatives)

	// no hours on Sundays
	_, err = env.flows.UpdateDraft(ctx, v.SessionID, models.DraftPatch{Slot: slot("2025-03-02", "10:00")})
	require.ErrorAs(t, err, &conflict)
	assert.Empty(t, conflict.Alternatives)

	// past Saturday
	_, err = env.flows.UpdateDraft(ctx, v.SessionID, models.DraftPatch{Slot: slot("2025-02-15", "10:00")})
	require.ErrorAs(t, err, &conflict)

	active, err := env.reservations.ListActive(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Empty(t, active)
}

// After a partial commit the draft stays as it was booked until the commit
// is finished.
func TestFlowService_PartialCommitFreezesDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := walkToPayment(t, env, "2025-03-01", "10:00")

	env.store.failFocusLinks = 1
	_, err := env.flows.Commit(ctx, id)
	var partial *domain.PartialCommitError
	require.ErrorAs(t, err, &partial)

	v, err := env.flows.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, v.Incomplete)
	assert.Equal(t, partial.BookingID, v.BookingID)

	_, err = env.flows.UpdateDraft(ctx, id, models.DraftPatch{Slot: slot("2025-03-01", "11:00")})
	assert.ErrorIs(t, err, domain.ErrCommitIncomplete)
	_, err = env.flows.Reset(ctx, id)
	assert.ErrorIs(t, err, domain.ErrCommitIncomplete)
	_, err = env.flows.Retreat(ctx, id)
	assert.ErrorIs(t, err, domain.ErrCommitIncomplete)

	held, err := env.reservations.Holds(ctx, "2025-03-01", "10:00", id)
	require.NoError(t, err)
	assert.True(t, held)

	res, err := env.flows.Commit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, partial.BookingID, res.Booking.ID)
	assert.Equal(t, 1, env.count(t, "bookings"))
	assert.Equal(t, 2, env.count(t, "booking_focus_areas"))

	v, err = env.flows.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, v.Incomplete)

	_, err = env.flows.Reset(ctx, id)
	assert.ErrorIs(t, err, domain.ErrAlreadyCommitted)
}
