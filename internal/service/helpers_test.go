package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"lessonflow/internal/config"
	"lessonflow/internal/database"
	"lessonflow/internal/domain"
	"lessonflow/internal/events"
	"lessonflow/internal/models"
	"lessonflow/internal/repository"
	"lessonflow/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 2, 20, 9, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// eventLog records every published event by type.
type eventLog struct {
	mu       sync.Mutex
	payloads map[string][][]byte
}

func newEventLog(bus *events.EventBus) *eventLog {
	l := &eventLog{payloads: make(map[string][][]byte)}
	for _, et := range []string{
		events.EventSlotReserved, events.EventSlotReleased, events.EventBookingCreated,
		events.EventBookingPartial, events.EventPaymentRequested,
	} {
		bus.Subscribe(et, func(e *events.Event) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.payloads[e.Type] = append(l.payloads[e.Type], e.Payload)
			return nil
		})
	}
	return l
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payloads[eventType])
}

func (l *eventLog) last(t *testing.T, eventType string, v interface{}) {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	list := l.payloads[eventType]
	require.NotEmpty(t, list, "no %s event", eventType)
	require.NoError(t, json.Unmarshal(list[len(list)-1], v))
}

// flakyStore fails selected calls before delegating to the real store.
type flakyStore struct {
	domain.BookingStore

	mu               sync.Mutex
	transientParents int
	failFocusLinks   int
	createParentHits int
}

func (f *flakyStore) CreateParent(ctx context.Context, p *models.Parent) error {
	f.mu.Lock()
	f.createParentHits++
	fail := f.transientParents > 0
	if fail {
		f.transientParents--
	}
	f.mu.Unlock()
	if fail {
		return database.ErrTransient
	}
	return f.BookingStore.CreateParent(ctx, p)
}

func (f *flakyStore) LinkBookingFocusArea(ctx context.Context, bookingID, focusAreaID int64) error {
	f.mu.Lock()
	fail := f.failFocusLinks > 0
	if fail {
		f.failFocusLinks--
	}
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.BookingStore.LinkBookingFocusArea(ctx, bookingID, focusAreaID)
}

type testEnv struct {
	db           *database.DB
	store        *flakyStore
	clock        *fakeClock
	events       *eventLog
	reservations *ReservationService
	commits      *CommitService
	availability *AvailabilityService
	flows        *FlowService
}

var saturdayHours = config.AvailabilityConfig{Weekly: map[string][]string{
	"saturday": {"10:00", "10:30", "11:00"},
}}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus()
	env := &testEnv{
		db:     db,
		store:  &flakyStore{BookingStore: db},
		clock:  newClock(),
		events: newEventLog(bus),
	}

	env.reservations = NewReservationService(repository.NewMemoryReservationRepository(), bus, 5*time.Minute, &logger)
	env.reservations.now = env.clock.Now

	retry := worker.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	env.commits = NewCommitService(env.store, env.reservations, bus, retry, &logger)

	env.availability = NewAvailabilityService(db, env.reservations, saturdayHours)
	env.availability.now = env.clock.Now

	env.flows = NewFlowService(repository.NewMemorySessionRepository(time.Hour), env.reservations, env.commits, env.availability, &logger)
	return env
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func boolPtr(b bool) *bool { return &b }

func parentInfo() *models.ParentInfo {
	return &models.ParentInfo{
		FirstName:             "Dana",
		LastName:              "Reyes",
		Email:                 "dana@example.com",
		Phone:                 "555-0101",
		EmergencyContactName:  "Luis Reyes",
		EmergencyContactPhone: "555-0102",
	}
}

func athleteInfo(first string) models.AthleteInfo {
	return models.AthleteInfo{FirstName: first, LastName: "Reyes", DateOfBirth: "2016-05-04", Experience: models.ExperienceBeginner}
}

// quickDraft is a complete quick-journey draft for a new family.
func quickDraft(date, slotTime string) models.Draft {
	return models.Draft{
		LessonType: models.LessonQuickJourney,
		Athletes:   []models.AthleteInfo{athleteInfo("Mia")},
		FocusAreas: []models.FocusArea{
			{Apparatus: "Beam", Skill: "Cartwheel"},
			{Apparatus: "Floor", Skill: "Round-off"},
		},
		SideQuests: []string{"Flexibility"},
		Slot:       &models.SlotSelection{Date: date, Time: slotTime},
		Parent:     parentInfo(),
		Safety: &models.SafetyContact{
			WillDropOff:              boolPtr(true),
			WillPickUp:               boolPtr(false),
			PickupPersonName:         "Ana Reyes",
			PickupPersonRelationship: "Aunt",
			PickupPersonPhone:        "555-0103",
		},
		Waiver: models.WaiverStatus{Signed: true},
	}
}
