package repository

import (
	"context"
	"sync/atomic"
	"time"

	"lessonflow/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository writes to primary (redis) and switches to the
// fallback (memory) after a primary failure, probing primary again once a minute.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSessionRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSessionRepository) recovered() {
	if r.isDown.CompareAndSwap(true, false) {
		r.logger.Info().Msg("Primary session repository recovered")
	}
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, sessionID string) ([]byte, error) {
	if r.usePrimary() {
		data, err := r.primary.GetSession(ctx, sessionID)
		if err == nil {
			r.recovered()
			if data != nil {
				return data, nil
			}
			// written while primary was down
			return r.fallback.GetSession(ctx, sessionID)
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, sessionID)
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, sessionID string, data []byte) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, sessionID, data)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveSession(ctx, sessionID, data)
}

func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if r.usePrimary() {
		err := r.primary.DeleteSession(ctx, sessionID)
		if err == nil {
			r.recovered()
			return r.fallback.DeleteSession(ctx, sessionID)
		}
		r.markDown(err)
	}
	return r.fallback.DeleteSession(ctx, sessionID)
}
