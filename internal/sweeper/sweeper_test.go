package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-booking/internal/engine"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

func setup(t *testing.T, holdWindow time.Duration) (*engine.Engine, *repository.Memory, *model.Show) {
	t.Helper()
	store := repository.NewMemory()
	show := &model.Show{
		MovieID:     "tt0468569",
		MovieTitle:  "The Dark Knight",
		StartsAt:    time.Now().UTC().Add(24 * time.Hour),
		PriceCents:  1000,
		RowLabels:   "ABCDEFGHIJ",
		SeatsPerRow: 9,
	}
	require.NoError(t, store.CreateShows(context.Background(), []*model.Show{show}))
	e := engine.New(store, engine.Options{HoldWindow: holdWindow, Logger: zerolog.Nop()})
	return e, store, show
}

func TestSweepReleasesExpiredHolds(t *testing.T) {
	e, store, show := setup(t, time.Millisecond)
	ctx := context.Background()

	expired, err := e.TryReserve(ctx, engine.ReserveRequest{
		UserID: "user-1", ShowID: show.ID, Seats: []string{"A1", "A2"}, IdempotencyKey: "expired",
	})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	var notified []*model.Booking
	s := New(store, e, Options{
		Logger:     zerolog.Nop(),
		OnReleased: func(b *model.Booking) { notified = append(notified, b) },
	})
	assert.Equal(t, 1, s.Sweep(ctx))

	b, err := store.BookingByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReleased, b.Status)

	require.Len(t, notified, 1)
	assert.Equal(t, expired.ID, notified[0].ID)

	// the freed seats are claimable again
	again, err := e.TryReserve(ctx, engine.ReserveRequest{
		UserID: "user-2", ShowID: show.ID, Seats: []string{"A1"}, IdempotencyKey: "reclaim",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, again.Seats)
}

func TestSweepLeavesFreshAndConfirmedHoldsAlone(t *testing.T) {
	e, store, show := setup(t, time.Millisecond)
	ctx := context.Background()

	confirmed, err := e.TryReserve(ctx, engine.ReserveRequest{
		UserID: "user-1", ShowID: show.ID, Seats: []string{"B1"}, IdempotencyKey: "confirmed",
	})
	require.NoError(t, err)
	_, err = e.Confirm(ctx, confirmed.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	// a fresh hold created with a longer window
	e2 := engine.New(store, engine.Options{HoldWindow: time.Hour, Logger: zerolog.Nop()})
	fresh, err := e2.TryReserve(ctx, engine.ReserveRequest{
		UserID: "user-2", ShowID: show.ID, Seats: []string{"C1"}, IdempotencyKey: "fresh",
	})
	require.NoError(t, err)

	s := New(store, e, Options{Logger: zerolog.Nop()})
	assert.Equal(t, 0, s.Sweep(ctx))

	b, err := store.BookingByID(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)
	b, err = store.BookingByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	e, store, _ := setup(t, time.Minute)
	s := New(store, e, Options{Interval: time.Millisecond, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
