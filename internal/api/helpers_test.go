package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lessonflow/internal/config"
	"lessonflow/internal/database"
	"lessonflow/internal/events"
	"lessonflow/internal/export"
	"lessonflow/internal/models"
	"lessonflow/internal/repository"
	"lessonflow/internal/service"
	"lessonflow/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var weekendHours = config.AvailabilityConfig{Weekly: map[string][]string{
	"saturday": {"10:00", "10:30", "11:00"},
}}

type apiEnv struct {
	db *database.DB
	ts *httptest.Server
}

func newAPIEnv(t *testing.T, cfg config.APIConfig) *apiEnv {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus()
	reservations := service.NewReservationService(repository.NewMemoryReservationRepository(), bus, 5*time.Minute, &logger)
	retry := worker.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	commits := service.NewCommitService(db, reservations, bus, retry, &logger)
	availability := service.NewAvailabilityService(db, reservations, weekendHours)
	flows := service.NewFlowService(repository.NewMemorySessionRepository(time.Hour), reservations, commits, availability, &logger)

	server := NewHTTPServer(cfg, Services{
		Flows:        flows,
		Reservations: reservations,
		Availability: availability,
		Parents:      db,
		Exporter:     export.NewBookingExporter(db, t.TempDir(), &logger),
		Ready:        db.PingContext,
	}, &logger)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &apiEnv{db: db, ts: ts}
}

// do sends a JSON request. headers are key/value pairs.
func (e *apiEnv) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode(t *testing.T, data []byte, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v), string(data))
}

// nextSaturday is a bookable date at least one day ahead.
func nextSaturday() string {
	d := time.Now().AddDate(0, 0, 1)
	for d.Weekday() != time.Saturday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format(models.DateLayout)
}

func boolPtr(b bool) *bool { return &b }

// fullPatch fills every step of a new-user quick-journey booking.
func fullPatch(date, slotTime string) models.DraftPatch {
	lesson := models.LessonQuickJourney
	athletes := []models.AthleteInfo{{
		FirstName: "Mia", LastName: "Reyes", DateOfBirth: "2016-05-04", Experience: models.ExperienceBeginner,
	}}
	focus := []models.FocusArea{{Apparatus: "Beam", Skill: "Cartwheel"}}
	return models.DraftPatch{
		LessonType: &lesson,
		Athletes:   &athletes,
		FocusAreas: &focus,
		Slot:       &models.SlotSelection{Date: date, Time: slotTime},
		Parent: &models.ParentInfo{
			FirstName:             "Dana",
			LastName:              "Reyes",
			Email:                 "dana@example.com",
			Phone:                 "555-0101",
			EmergencyContactName:  "Luis Reyes",
			EmergencyContactPhone: "555-0102",
		},
		Safety: &models.SafetyContact{WillDropOff: boolPtr(true), WillPickUp: boolPtr(true)},
	}
}
