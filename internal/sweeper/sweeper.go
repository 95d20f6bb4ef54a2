// Package sweeper reclaims seats from pending bookings whose hold
// deadline passed without a payment confirmation. It bounds how long a
// seat can stay unavailable because of an abandoned checkout.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// Store is the ledger slice the sweeper scans.
type Store interface {
	ExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Booking, error)
}

// Releaser frees the seats of one booking; satisfied by engine.Engine.
type Releaser interface {
	Release(ctx context.Context, showID uint64, bookingID string) error
}

// Options tune the sweeper.
type Options struct {
	// Interval between scans (default 30s).
	Interval time.Duration
	// BatchSize bounds how many expired holds one scan processes
	// (default 100).
	BatchSize int
	// OnReleased, when set, is invoked for every booking the sweeper
	// released, after the release committed. Used to publish
	// booking.released events.
	OnReleased func(*model.Booking)
	Logger     zerolog.Logger
}

// Sweeper periodically releases expired holds.
type Sweeper struct {
	store      Store
	releaser   Releaser
	interval   time.Duration
	batchSize  int
	onReleased func(*model.Booking)
	log        zerolog.Logger
}

// New builds a Sweeper over the given store and releaser.
func New(store Store, releaser Releaser, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Sweeper{
		store:      store,
		releaser:   releaser,
		interval:   opts.Interval,
		batchSize:  opts.BatchSize,
		onReleased: opts.OnReleased,
		log:        opts.Logger,
	}
}

// Run sweeps once immediately and then on every tick until the context
// is cancelled. It always returns the context's error.
func (s *Sweeper) Run(ctx context.Context) error {
	s.Sweep(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep releases every pending booking in the current batch whose hold
// deadline has passed and returns how many it released. Each booking is
// released at most once: a lost race against a concurrent Confirm comes
// back as ErrInvalidTransition and is ignored, never retried.
func (s *Sweeper) Sweep(ctx context.Context) int {
	expired, err := s.store.ExpiredPending(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		s.log.Warn().Err(err).Msg("sweeper: expired holds scan failed")
		return 0
	}
	released := 0
	for _, b := range expired {
		err := s.releaser.Release(ctx, b.ShowID, b.ID)
		switch {
		case err == nil:
			released++
			if s.onReleased != nil {
				b.Status = model.StatusReleased
				s.onReleased(b)
			}
		case errors.Is(err, repository.ErrInvalidTransition):
			// payment confirmation landed first; the booking keeps its seats
			s.log.Debug().Str("booking_id", b.ID).Msg("sweeper: hold already settled")
		default:
			s.log.Warn().Err(err).Str("booking_id", b.ID).Msg("sweeper: release failed")
		}
	}
	if released > 0 {
		s.log.Info().Int("released", released).Msg("sweeper: expired holds released")
	}
	return released
}
