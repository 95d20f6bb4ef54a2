package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

func newTestShow(t *testing.T, store *Memory) *model.Show {
	t.Helper()
	sh := &model.Show{
		MovieID:     "tt0133093",
		MovieTitle:  "The Matrix",
		StartsAt:    time.Now().UTC().Add(24 * time.Hour),
		PriceCents:  1500,
		RowLabels:   "ABCDEFGHIJ",
		SeatsPerRow: 9,
	}
	require.NoError(t, store.CreateShows(context.Background(), []*model.Show{sh}))
	return sh
}

func pendingBooking(show *model.Show, id, key string, seats ...string) *model.Booking {
	return &model.Booking{
		ID:             id,
		UserID:         "user-1",
		ShowID:         show.ID,
		Seats:          seats,
		AmountCents:    show.PriceCents * uint32(len(seats)),
		Status:         model.StatusPending,
		IdempotencyKey: key,
		HoldExpiresAt:  time.Now().UTC().Add(10 * time.Minute),
	}
}

func TestClaimBumpsVersionAndOccupiesSeats(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	show := newTestShow(t, store)

	occupied, version, err := store.Occupancy(ctx, show.ID)
	require.NoError(t, err)
	assert.Empty(t, occupied)
	assert.EqualValues(t, 0, version)

	require.NoError(t, store.Claim(ctx, show.ID, version, pendingBooking(show, "b1", "k1", "A1", "A2")))

	occupied, version, err = store.Occupancy(ctx, show.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.Equal(t, map[string]string{"A1": "b1", "A2": "b1"}, occupied)
}

func TestClaimAtStaleVersionFails(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	show := newTestShow(t, store)

	require.NoError(t, store.Claim(ctx, show.ID, 0, pendingBooking(show, "b1", "k1", "A1")))
	err := store.Claim(ctx, show.ID, 0, pendingBooking(show, "b2", "k2", "B1"))
	require.ErrorIs(t, err, ErrVersionConflict)

	// nothing from the failed claim may be visible
	_, err = store.BookingByID(ctx, "b2")
	require.ErrorIs(t, err, ErrBookingNotFound)
}

func TestClaimDuplicateIdempotencyKey(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	show := newTestShow(t, store)

	require.NoError(t, store.Claim(ctx, show.ID, 0, pendingBooking(show, "b1", "same-key", "A1")))
	err := store.Claim(ctx, show.ID, 1, pendingBooking(show, "b2", "same-key", "B1"))
	require.ErrorIs(t, err, ErrDuplicateIdempotencyKey)

	b, err := store.BookingByIdempotencyKey(ctx, "same-key")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)
}

func TestTransitionIsMonotonic(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	show := newTestShow(t, store)
	require.NoError(t, store.Claim(ctx, show.ID, 0, pendingBooking(show, "b1", "k1", "A1")))

	require.NoError(t, store.Transition(ctx, "b1", model.StatusPending, model.StatusConfirmed))

	// confirmed bookings cannot be released
	err := store.Transition(ctx, "b1", model.StatusPending, model.StatusReleased)
	require.ErrorIs(t, err, ErrInvalidTransition)
	err = store.Release(ctx, show.ID, "b1")
	require.ErrorIs(t, err, ErrInvalidTransition)

	// but may be cancelled by an external action
	require.NoError(t, store.Transition(ctx, "b1", model.StatusConfirmed, model.StatusCancelled))

	// terminal states accept nothing
	err = store.Transition(ctx, "b1", model.StatusCancelled, model.StatusPending)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReleaseFreesSeats(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	show := newTestShow(t, store)
	require.NoError(t, store.Claim(ctx, show.ID, 0, pendingBooking(show, "b1", "k1", "A1", "A2")))

	require.NoError(t, store.Release(ctx, show.ID, "b1"))

	occupied, version, err := store.Occupancy(ctx, show.ID)
	require.NoError(t, err)
	assert.Empty(t, occupied)
	assert.EqualValues(t, 2, version, "release must advance the version")

	b, err := store.BookingByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReleased, b.Status)

	// double release is rejected, not repeated
	require.ErrorIs(t, store.Release(ctx, show.ID, "b1"), ErrInvalidTransition)
}

func TestExpiredPending(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	show := newTestShow(t, store)

	expired := pendingBooking(show, "b1", "k1", "A1")
	expired.HoldExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.Claim(ctx, show.ID, 0, expired))

	fresh := pendingBooking(show, "b2", "k2", "B1")
	require.NoError(t, store.Claim(ctx, show.ID, 1, fresh))

	got, err := store.ExpiredPending(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ID)
	assert.Equal(t, []string{"A1"}, got[0].Seats)
}
