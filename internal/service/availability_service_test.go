package service

import (
	"context"
	"testing"
	"time"

	"lessonflow/internal/domain"
	"lessonflow/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityService_ForDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	parent := &models.Parent{FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com", Phone: "555-0101"}
	require.NoError(t, env.db.CreateParent(ctx, parent))
	require.NoError(t, env.db.CreateBooking(ctx, &models.Booking{
		SessionID: "old", ParentID: parent.ID, LessonType: models.LessonQuickJourney,
		Date: "2025-03-01", Time: "11:00", Amount: decimal.NewFromInt(40),
		Status: models.StatusConfirmed, PaymentStatus: models.PaymentUnpaid, BookingMethod: models.BookingMethodOnline,
	}))

	_, err := env.reservations.Reserve(ctx, "2025-03-01", "10:30", models.LessonQuickJourney, "A")
	require.NoError(t, err)

	av, err := env.availability.ForDate(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, av.Available)
	assert.Equal(t, []string{"10:30"}, av.Reserved)
	assert.Equal(t, []string{"11:00"}, av.Booked)

	// an expired reservation frees the time again
	env.clock.Advance(10 * time.Minute)
	av, err = env.availability.ForDate(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30"}, av.Available)
	assert.Empty(t, av.Reserved)
}

func TestAvailabilityService_NoHoursOrPast(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Sunday has no hours configured
	av, err := env.availability.ForDate(ctx, "2025-03-02")
	require.NoError(t, err)
	assert.Empty(t, av.Available)

	// a Saturday before the clock's date
	av, err = env.availability.ForDate(ctx, "2025-02-15")
	require.NoError(t, err)
	assert.Empty(t, av.Available)

	_, err = env.availability.ForDate(ctx, "tomorrow")
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)
}

func TestAvailabilityService_Today(t *testing.T) {
	env := newTestEnv(t)
	env.clock.t = time.Date(2025, 3, 1, 10, 15, 0, 0, time.Local)

	av, err := env.availability.ForDate(context.Background(), "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:30", "11:00"}, av.Available)
}

func TestAvailabilityService_LessonLength(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	parent := &models.Parent{FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com", Phone: "555-0101"}
	require.NoError(t, env.db.CreateParent(ctx, parent))
	require.NoError(t, env.db.CreateBooking(ctx, &models.Booking{
		SessionID: "old", ParentID: parent.ID, LessonType: models.LessonDeepDive,
		Date: "2025-03-01", Time: "10:00", Amount: decimal.NewFromInt(60),
		Status: models.StatusConfirmed, PaymentStatus: models.PaymentUnpaid, BookingMethod: models.BookingMethodOnline,
	}))

	// the deep dive runs until 11:00
	av, err := env.availability.ForDate(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"11:00"}, av.Available)
	assert.Equal(t, []string{"10:00"}, av.Booked)

	other := "2025-03-08"
	require.NoError(t, env.db.CreateBooking(ctx, &models.Booking{
		SessionID: "old-2", ParentID: parent.ID, LessonType: models.LessonQuickJourney,
		Date: other, Time: "11:00", Amount: decimal.NewFromInt(40),
		Status: models.StatusConfirmed, PaymentStatus: models.PaymentUnpaid, BookingMethod: models.BookingMethodOnline,
	}))

	av, err = env.availability.ForLesson(ctx, other, models.LessonDeepDive, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, av.Available)

	av, err = env.availability.ForLesson(ctx, other, models.LessonQuickJourney, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30"}, av.Available)
}

func TestAvailabilityService_OwnReservationIsNotBusy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.reservations.Reserve(ctx, "2025-03-01", "10:00", models.LessonDeepDive, "A")
	require.NoError(t, err)
	require.True(t, res.OK)

	av, ok, err := env.availability.Offers(ctx, "2025-03-01", "10:30", models.LessonQuickJourney, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"10:00"}, av.Reserved)

	av, ok, err = env.availability.Offers(ctx, "2025-03-01", "10:30", models.LessonQuickJourney, "B")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"11:00"}, av.Available)

	_, ok, err = env.availability.Offers(ctx, "2025-03-01", "12:00", models.LessonQuickJourney, "A")
	require.NoError(t, err)
	assert.False(t, ok, "outside the weekly hours")
}
