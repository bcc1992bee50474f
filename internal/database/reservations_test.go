package database

import (
	"context"
	"testing"
	"time"

	"lessonflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reservation(session string, now time.Time, ttl time.Duration) *models.Reservation {
	return &models.Reservation{
		Date:       "2025-06-02",
		Time:       "15:00",
		LessonType: models.LessonQuickJourney,
		SessionID:  session,
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}
}

func TestReservations_InsertIfAvailable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	_, ok, err := db.InsertIfAvailable(ctx, reservation("a", now, 5*time.Minute), now)
	require.NoError(t, err)
	assert.True(t, ok)

	holder, ok, err := db.InsertIfAvailable(ctx, reservation("b", now, 5*time.Minute), now)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, holder)
	assert.Equal(t, "a", holder.SessionID)

	// same session refreshes the expiry and keeps created_at
	later := now.Add(time.Minute)
	_, ok, err = db.InsertIfAvailable(ctx, reservation("a", later, 5*time.Minute), later)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := db.GetReservation(ctx, "2025-06-02", "15:00")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ExpiresAt.Equal(later.Add(5*time.Minute)))
	assert.True(t, got.CreatedAt.Equal(now))

	// expired reservations can be taken over without a sweep
	expired := later.Add(6 * time.Minute)
	_, ok, err = db.InsertIfAvailable(ctx, reservation("b", expired, 5*time.Minute), expired)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = db.GetReservation(ctx, "2025-06-02", "15:00")
	require.NoError(t, err)
	assert.Equal(t, "b", got.SessionID)
	assert.True(t, got.CreatedAt.Equal(expired))
}

func TestReservations_DeleteIfOwner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	_, ok, err := db.InsertIfAvailable(ctx, reservation("a", now, time.Minute), now)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := db.DeleteIfOwner(ctx, "2025-06-02", "15:00", "b")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = db.DeleteIfOwner(ctx, "2025-06-02", "15:00", "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = db.DeleteIfOwner(ctx, "2025-06-02", "15:00", "a")
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := db.GetReservation(ctx, "2025-06-02", "15:00")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReservations_ListAndSweep(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	for i, slot := range []string{"16:00", "15:00", "17:00"} {
		r := reservation("s", now, time.Duration(i+1)*time.Minute)
		r.Time = slot
		_, ok, err := db.InsertIfAvailable(ctx, r, now)
		require.NoError(t, err)
		require.True(t, ok)
	}
	other := reservation("s", now, time.Minute)
	other.Date = "2025-06-03"
	_, _, err := db.InsertIfAvailable(ctx, other, now)
	require.NoError(t, err)

	list, err := db.ListReservations(ctx, "2025-06-02")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "15:00", list[0].Time)
	assert.Equal(t, "17:00", list[2].Time)

	n, err := db.DeleteExpired(ctx, now.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n) // 16:00 and the 2025-06-03 reservation

	n, err = db.DeleteExpired(ctx, now.Add(90*time.Second))
	require.NoError(t, err)
	assert.Zero(t, n)

	list, err = db.ListReservations(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
