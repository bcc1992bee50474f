package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper removes expired slot reservations.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// ReservationSweeper calls SweepExpired on a fixed interval. Correctness does
// not depend on it; reads already ignore expired reservations.
type ReservationSweeper struct {
	target   Sweeper
	interval time.Duration
	logger   *zerolog.Logger
}

func NewReservationSweeper(target Sweeper, interval time.Duration, logger *zerolog.Logger) *ReservationSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReservationSweeper{
		target:   target,
		interval: interval,
		logger:   logger,
	}
}

// Start blocks until ctx is done.
func (s *ReservationSweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("Reservation sweeper started")
	defer s.logger.Info().Msg("Reservation sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of removed reservations.
func (s *ReservationSweeper) RunOnce(ctx context.Context) int64 {
	removed, err := s.target.SweepExpired(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to sweep expired reservations")
		return 0
	}
	if removed > 0 {
		s.logger.Debug().Int64("removed", removed).Msg("Expired reservations swept")
	}
	return removed
}
