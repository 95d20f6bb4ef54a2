// Package engine implements the seat reservation protocol: atomic
// version-gated claims against a show's seat map, idempotent booking
// creation, confirmation and release. It is the only component allowed
// to mutate a show's occupancy.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/layout"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// ErrConflict is returned when the bounded retry loop exhausts its
// attempts without committing a claim. The request did not happen; the
// caller may retry after backoff.
var ErrConflict = errors.New("reservation conflict, retry later")

// ErrMissingIdempotencyKey is returned when a reserve request carries
// no idempotency key. Exactly-once semantics are not optional.
var ErrMissingIdempotencyKey = errors.New("idempotency key required")

// SeatsUnavailableError reports the requested seats that are already
// held or booked. This is a genuine conflict the caller resolves by
// re-selecting, not by retrying.
type SeatsUnavailableError struct {
	Seats []string
}

func (e *SeatsUnavailableError) Error() string {
	return "seats unavailable: " + strings.Join(e.Seats, ",")
}

// SeatStore is the seat map surface the engine needs from storage.
type SeatStore interface {
	Show(ctx context.Context, showID uint64) (*model.Show, error)
	Occupancy(ctx context.Context, showID uint64) (map[string]string, uint64, error)
	Claim(ctx context.Context, showID, version uint64, b *model.Booking) error
	Release(ctx context.Context, showID uint64, bookingID string) error
}

// Ledger is the booking surface the engine needs from storage.
type Ledger interface {
	BookingByID(ctx context.Context, id string) (*model.Booking, error)
	BookingByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error)
	Transition(ctx context.Context, id string, from, to model.BookingStatus) error
}

// Store combines the two surfaces; both repository implementations
// satisfy it.
type Store interface {
	SeatStore
	Ledger
}

// Options tune the engine. Zero values fall back to the defaults used
// throughout the reference configuration.
type Options struct {
	// MaxSeats is the per-booking seat cap (default 5).
	MaxSeats int
	// HoldWindow is how long a PENDING booking keeps its seats before
	// the sweeper may reclaim them (default 10m).
	HoldWindow time.Duration
	// Retries bounds the internal claim loop on version conflicts
	// (default 3 attempts).
	Retries int
	Logger  zerolog.Logger
}

// Engine coordinates seat claims for all shows. It holds no mutable
// state of its own; the show's version column is the only concurrency
// control, so any number of Engine instances (or processes) can operate
// on the same store.
type Engine struct {
	store      Store
	maxSeats   int
	holdWindow time.Duration
	retries    int
	log        zerolog.Logger
}

// New builds an Engine over the given store.
func New(store Store, opts Options) *Engine {
	if opts.MaxSeats <= 0 {
		opts.MaxSeats = 5
	}
	if opts.HoldWindow <= 0 {
		opts.HoldWindow = 10 * time.Minute
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	return &Engine{
		store:      store,
		maxSeats:   opts.MaxSeats,
		holdWindow: opts.HoldWindow,
		retries:    opts.Retries,
		log:        opts.Logger,
	}
}

// ReserveRequest is one attempt to claim seats for a show on behalf of
// a verified user. The engine is identity-agnostic beyond attaching
// UserID to the booking.
type ReserveRequest struct {
	UserID         string
	ShowID         uint64
	Seats          []string
	IdempotencyKey string
}

// GetOccupancy returns the sorted list of occupied seat ids for a show.
// It is a snapshot read for display purposes and may be briefly stale;
// TryReserve always re-reads fresh state at claim time.
func (e *Engine) GetOccupancy(ctx context.Context, showID uint64) ([]string, error) {
	occupied, _, err := e.store.Occupancy(ctx, showID)
	if err != nil {
		return nil, err
	}
	seats := make([]string, 0, len(occupied))
	for seat := range occupied {
		seats = append(seats, seat)
	}
	sort.Strings(seats)
	return seats, nil
}

// TryReserve claims the requested seats for the user, creating a
// PENDING booking with a hold deadline. Submitting the same idempotency
// key again returns the original booking unchanged. Possible failures:
// layout.ErrInvalidSelection, repository.ErrShowNotFound,
// *SeatsUnavailableError, and ErrConflict when the bounded retry loop
// loses the version race on every attempt.
func (e *Engine) TryReserve(ctx context.Context, req ReserveRequest) (*model.Booking, error) {
	// Shape validation runs before any show state is read.
	if err := layout.ValidateSelection(req.Seats, e.maxSeats); err != nil {
		return nil, err
	}
	if req.IdempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}

	// Client retries with the same key converge to the first outcome.
	if b, err := e.store.BookingByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		return b, nil
	} else if !errors.Is(err, repository.ErrBookingNotFound) {
		return nil, err
	}

	show, err := e.store.Show(ctx, req.ShowID)
	if err != nil {
		return nil, err
	}
	if err := layout.Validate(show.Geometry(), req.Seats, e.maxSeats); err != nil {
		return nil, err
	}

	seats := append([]string(nil), req.Seats...)
	sort.Strings(seats)
	booking := &model.Booking{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		ShowID:         show.ID,
		Seats:          seats,
		AmountCents:    show.PriceCents * uint32(len(seats)),
		Status:         model.StatusPending,
		IdempotencyKey: req.IdempotencyKey,
		HoldExpiresAt:  time.Now().UTC().Add(e.holdWindow),
	}

	for attempt := 1; attempt <= e.retries; attempt++ {
		occupied, version, err := e.store.Occupancy(ctx, req.ShowID)
		if err != nil {
			return nil, err
		}
		var taken []string
		for _, seat := range seats {
			if _, held := occupied[seat]; held {
				taken = append(taken, seat)
			}
		}
		if len(taken) > 0 {
			return nil, &SeatsUnavailableError{Seats: taken}
		}

		err = e.store.Claim(ctx, req.ShowID, version, booking)
		switch {
		case err == nil:
			e.log.Info().
				Str("booking_id", booking.ID).
				Uint64("show_id", show.ID).
				Strs("seats", seats).
				Int("attempt", attempt).
				Msg("seats reserved")
			return booking, nil
		case errors.Is(err, repository.ErrDuplicateIdempotencyKey):
			// A concurrent duplicate submission won; return its result.
			return e.store.BookingByIdempotencyKey(ctx, req.IdempotencyKey)
		case errors.Is(err, repository.ErrVersionConflict),
			errors.Is(err, repository.ErrSeatsUnavailable):
			// Another writer mutated the show between the read and the
			// conditional write. Re-read and retry after jitter; a
			// genuine seat overlap surfaces on the next read.
			e.log.Debug().
				Uint64("show_id", show.ID).
				Int("attempt", attempt).
				Msg("claim lost version race, retrying")
			if attempt < e.retries {
				if err := sleepJitter(ctx); err != nil {
					return nil, err
				}
			}
		default:
			return nil, err
		}
	}

	e.log.Warn().
		Uint64("show_id", show.ID).
		Int("attempts", e.retries).
		Msg("reservation retries exhausted")
	return nil, fmt.Errorf("%w (after %d attempts)", ErrConflict, e.retries)
}

// Confirm moves a booking from PENDING to CONFIRMED. It never touches
// the seat map: the seats are already held. A race with the sweeper is
// resolved by the ledger's monotonic-transition rule; the loser gets
// repository.ErrInvalidTransition.
func (e *Engine) Confirm(ctx context.Context, bookingID string) (*model.Booking, error) {
	if err := e.store.Transition(ctx, bookingID, model.StatusPending, model.StatusConfirmed); err != nil {
		return nil, err
	}
	e.log.Info().Str("booking_id", bookingID).Msg("booking confirmed")
	return e.store.BookingByID(ctx, bookingID)
}

// Release reverses a pending claim: the booking becomes RELEASED and
// its seat slots go back to empty, making them claimable again. Used by
// the hold expiry sweeper and by the failed-payment callback.
func (e *Engine) Release(ctx context.Context, showID uint64, bookingID string) error {
	if err := e.store.Release(ctx, showID, bookingID); err != nil {
		return err
	}
	e.log.Info().Str("booking_id", bookingID).Uint64("show_id", showID).Msg("booking released")
	return nil
}

// sleepJitter pauses 10-50ms before the next claim attempt so that
// colliding writers do not retry in lockstep.
func sleepJitter(ctx context.Context) error {
	d := 10*time.Millisecond + time.Duration(rand.Int63n(int64(40*time.Millisecond)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
