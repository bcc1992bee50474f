package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"lessonflow/internal/models"
)

type slotKey struct {
	date string
	time string
}

// MemoryReservationRepository is a single-process reservation store.
type MemoryReservationRepository struct {
	mu    sync.Mutex
	items map[slotKey]models.Reservation
}

func NewMemoryReservationRepository() *MemoryReservationRepository {
	return &MemoryReservationRepository{items: make(map[slotKey]models.Reservation)}
}

func (r *MemoryReservationRepository) InsertIfAvailable(_ context.Context, res *models.Reservation, now time.Time) (*models.Reservation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{res.Date, res.Time}
	stored := *res
	if cur, ok := r.items[key]; ok {
		if cur.SessionID != res.SessionID && cur.LiveAt(now) {
			holder := cur
			return &holder, false, nil
		}
		if cur.SessionID == res.SessionID {
			stored.CreatedAt = cur.CreatedAt
		}
	}
	r.items[key] = stored
	return nil, true, nil
}

func (r *MemoryReservationRepository) GetReservation(_ context.Context, date, slotTime string) (*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.items[slotKey{date, slotTime}]
	if !ok {
		return nil, nil
	}
	return &cur, nil
}

func (r *MemoryReservationRepository) DeleteIfOwner(_ context.Context, date, slotTime, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{date, slotTime}
	cur, ok := r.items[key]
	if !ok || cur.SessionID != sessionID {
		return false, nil
	}
	delete(r.items, key)
	return true, nil
}

func (r *MemoryReservationRepository) ListReservations(_ context.Context, date string) ([]*models.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Reservation
	for key, cur := range r.items {
		if key.date == date {
			res := cur
			out = append(out, &res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (r *MemoryReservationRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, cur := range r.items {
		if !cur.LiveAt(now) {
			delete(r.items, key)
			n++
		}
	}
	return n, nil
}
