package repository

import (
	"context"
	"sync"
	"time"
)

type sessionEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemorySessionRepository keeps sessions in process memory. It backs the
// failover repository when redis is unavailable.
type MemorySessionRepository struct {
	sessions sync.Map
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemorySessionRepository) GetSession(_ context.Context, sessionID string) ([]byte, error) {
	val, ok := r.sessions.Load(sessionID)
	if !ok {
		return nil, nil
	}
	entry := val.(*sessionEntry)
	if r.ttl > 0 && !r.now().Before(entry.expiresAt) {
		r.sessions.CompareAndDelete(sessionID, entry)
		return nil, nil
	}
	return append([]byte(nil), entry.data...), nil
}

func (r *MemorySessionRepository) SaveSession(_ context.Context, sessionID string, data []byte) error {
	r.sessions.Store(sessionID, &sessionEntry{
		data:      append([]byte(nil), data...),
		expiresAt: r.now().Add(r.ttl),
	})
	return nil
}

func (r *MemorySessionRepository) DeleteSession(_ context.Context, sessionID string) error {
	r.sessions.Delete(sessionID)
	return nil
}
