package repository

import (
	"context"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// MovieListing is one entry of the now-showing catalog: a movie that
// has at least one upcoming show.
type MovieListing struct {
	MovieID    string `json:"movie_id"`
	MovieTitle string `json:"movie_title"`
}

// Store is the full persistence surface of the service. Two
// implementations exist: MySQL for production and Memory for tests and
// local development. The engine depends only on the narrow interfaces
// it declares itself; handlers and the sweeper use Store directly.
type Store interface {
	// Show registry.
	CreateShows(ctx context.Context, shows []*model.Show) error
	Show(ctx context.Context, showID uint64) (*model.Show, error)
	UpcomingShowsByMovie(ctx context.Context, movieID string, from time.Time) ([]*model.Show, error)
	NowShowing(ctx context.Context, from time.Time) ([]MovieListing, error)

	// Seat map. Occupancy returns the seat->booking map of all slots
	// referenced by a pending or confirmed booking, together with the
	// show's current version. Claim atomically bumps the version from
	// the given value, records the seat slots and creates the PENDING
	// booking; it fails with ErrVersionConflict when the version moved.
	// Release frees a pending booking's slots and marks it RELEASED.
	Occupancy(ctx context.Context, showID uint64) (map[string]string, uint64, error)
	Claim(ctx context.Context, showID, version uint64, b *model.Booking) error
	Release(ctx context.Context, showID uint64, bookingID string) error

	// Booking ledger.
	BookingByID(ctx context.Context, id string) (*model.Booking, error)
	BookingByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error)
	BookingsByUser(ctx context.Context, userID string) ([]*model.Booking, error)
	Transition(ctx context.Context, id string, from, to model.BookingStatus) error
	ExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Booking, error)
}
