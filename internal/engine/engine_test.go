package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/movie-ticket-booking/internal/layout"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *repository.Memory, *model.Show) {
	t.Helper()
	store := repository.NewMemory()
	show := &model.Show{
		MovieID:     "tt1375666",
		MovieTitle:  "Inception",
		StartsAt:    time.Now().UTC().Add(48 * time.Hour),
		PriceCents:  1200,
		RowLabels:   "ABCDEFGHIJ",
		SeatsPerRow: 9,
	}
	require.NoError(t, store.CreateShows(context.Background(), []*model.Show{show}))
	opts.Logger = zerolog.Nop()
	return New(store, opts), store, show
}

func TestTryReserveHappyPath(t *testing.T) {
	e, _, show := newTestEngine(t, Options{})
	ctx := context.Background()

	b, err := e.TryReserve(ctx, ReserveRequest{
		UserID:         "user-1",
		ShowID:         show.ID,
		Seats:          []string{"B2", "A1"},
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.Equal(t, []string{"A1", "B2"}, b.Seats, "seat set is stored in canonical order")
	assert.EqualValues(t, 2400, b.AmountCents)
	assert.True(t, b.HoldExpiresAt.After(time.Now().UTC()), "pending booking carries a hold deadline")

	occupied, err := e.GetOccupancy(ctx, show.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "B2"}, occupied)
}

func TestTryReserveValidation(t *testing.T) {
	e, _, show := newTestEngine(t, Options{})
	ctx := context.Background()

	// cap violation is rejected before any show state is read: even a
	// nonexistent show id yields the validation error, not not-found
	_, err := e.TryReserve(ctx, ReserveRequest{
		UserID:         "user-1",
		ShowID:         99999,
		Seats:          []string{"A1", "A2", "A3", "A4", "A5", "A6"},
		IdempotencyKey: "key-cap",
	})
	require.ErrorIs(t, err, layout.ErrInvalidSelection)

	_, err = e.TryReserve(ctx, ReserveRequest{
		UserID:         "user-1",
		ShowID:         show.ID,
		Seats:          []string{"Z1"},
		IdempotencyKey: "key-geom",
	})
	require.ErrorIs(t, err, layout.ErrInvalidSelection)

	_, err = e.TryReserve(ctx, ReserveRequest{
		UserID: "user-1",
		ShowID: show.ID,
		Seats:  []string{"A1"},
	})
	require.ErrorIs(t, err, ErrMissingIdempotencyKey)

	_, err = e.TryReserve(ctx, ReserveRequest{
		UserID:         "user-1",
		ShowID:         99999,
		Seats:          []string{"A1"},
		IdempotencyKey: "key-404",
	})
	require.ErrorIs(t, err, repository.ErrShowNotFound)
}

func TestTryReserveRejectsSeatAliases(t *testing.T) {
	e, _, show := newTestEngine(t, Options{})
	ctx := context.Background()

	_, err := e.TryReserve(ctx, ReserveRequest{
		UserID: "user-1", ShowID: show.ID, Seats: []string{"A1"}, IdempotencyKey: "alias-1",
	})
	require.NoError(t, err)

	// "A01" addresses the same physical seat as "A1" but would be stored
	// under a different slot label; it must never get past validation
	for _, alias := range []string{"A01", "A+1"} {
		_, err = e.TryReserve(ctx, ReserveRequest{
			UserID: "user-2", ShowID: show.ID, Seats: []string{alias}, IdempotencyKey: "alias-" + alias,
		})
		require.ErrorIs(t, err, layout.ErrInvalidSelection, "seat id %q must be rejected", alias)
	}

	occupied, err := e.GetOccupancy(ctx, show.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, occupied, "only the canonical slot label is ever occupied")
}

func TestTryReserveIdempotency(t *testing.T) {
	e, _, show := newTestEngine(t, Options{})
	ctx := context.Background()

	first, err := e.TryReserve(ctx, ReserveRequest{
		UserID: "user-1", ShowID: show.ID, Seats: []string{"C3"}, IdempotencyKey: "same",
	})
	require.NoError(t, err)

	second, err := e.TryReserve(ctx, ReserveRequest{
		UserID: "user-1", ShowID: show.ID, Seats: []string{"C3"}, IdempotencyKey: "same",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same key must yield the same booking")

	// even with a different seat selection the original result is returned
	third, err := e.TryReserve(ctx, ReserveRequest{
		UserID: "user-1", ShowID: show.ID, Seats: []string{"D4"}, IdempotencyKey: "same",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, []string{"C3"}, third.Seats)
}

func TestTryReserveIdempotencyConcurrent(t *testing.T) {
	e, _, show := newTestEngine(t, Options{})
	ctx := context.Background()

	const callers = 16
	results := make([]*model.Booking, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = e.TryReserve(ctx, ReserveRequest{
				UserID: "user-1", ShowID: show.ID, Seats: []string{"E5"}, IdempotencyKey: "burst",
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, results[0].ID, results[i].ID, "all concurrent submissions converge to one booking")
	}
}

func TestTryReserveFullOverlap(t *testing.T) {
	e, _, show := newTestEngine(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, outcomes[i] = e.TryReserve(ctx, ReserveRequest{
				UserID:         fmt.Sprintf("user-%d", i),
				ShowID:         show.ID,
				Seats:          []string{"F1", "F2"},
				IdempotencyKey: fmt.Sprintf("overlap-%d", i),
			})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range outcomes {
		if err == nil {
			won++
			continue
		}
		var unavailable *SeatsUnavailableError
		require.ErrorAs(t, err, &unavailable)
		lost++
	}
	assert.Equal(t, 1, won, "exactly one caller gets the seats")
	assert.Equal(t, 1, lost)
}

func TestTryReservePartialOverlap(t *testing.T) {
	e, _, show := newTestEngine(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	bookings := make([]*model.Booking, 2)
	errs := make([]error, 2)
	requests := [][]string{{"A1", "A2"}, {"A2", "A3"}}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bookings[i], errs[i] = e.TryReserve(ctx, ReserveRequest{
				UserID:         fmt.Sprintf("user-%d", i),
				ShowID:         show.ID,
				Seats:          requests[i],
				IdempotencyKey: fmt.Sprintf("partial-%d", i),
			})
		}(i)
	}
	wg.Wait()

	// at most one of the two may hold A2
	holders := 0
	for i := 0; i < 2; i++ {
		if errs[i] == nil {
			for _, s := range bookings[i].Seats {
				if s == "A2" {
					holders++
				}
			}
		}
	}
	assert.LessOrEqual(t, holders, 1)

	if errs[0] == nil && errs[1] != nil {
		// the {A1,A2} request won; a follow-up {A3}-only request succeeds
		b, err := e.TryReserve(ctx, ReserveRequest{
			UserID: "user-1", ShowID: show.ID, Seats: []string{"A3"}, IdempotencyKey: "retry-a3",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"A3"}, b.Seats)
	}
}

func TestNoDoubleBookingUnderContention(t *testing.T) {
	e, store, show := newTestEngine(t, Options{Retries: 10})
	ctx := context.Background()

	// 30 goroutines fight over 3 rows of 9 seats, two seats each with
	// deliberate overlaps
	grid := show.Geometry().SeatIDs()
	const callers = 30
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seats := []string{grid[i%27], grid[(i+1)%27]}
			_, _ = e.TryReserve(ctx, ReserveRequest{
				UserID:         fmt.Sprintf("user-%d", i),
				ShowID:         show.ID,
				Seats:          seats,
				IdempotencyKey: fmt.Sprintf("contend-%d", i),
			})
		}(i)
	}
	wg.Wait()

	// every occupied slot must reference exactly one live booking, and
	// every live booking's seats must all be present in the slot map
	occupied, _, err := store.Occupancy(ctx, show.ID)
	require.NoError(t, err)
	seen := make(map[string]string)
	for i := 0; i < callers; i++ {
		b, err := store.BookingByIdempotencyKey(ctx, fmt.Sprintf("contend-%d", i))
		if errors.Is(err, repository.ErrBookingNotFound) {
			continue
		}
		require.NoError(t, err)
		if b.Status != model.StatusPending {
			continue
		}
		for _, seat := range b.Seats {
			owner, clash := seen[seat]
			require.False(t, clash, "seat %s assigned to bookings %s and %s", seat, owner, b.ID)
			seen[seat] = b.ID
			assert.Equal(t, b.ID, occupied[seat])
		}
	}
	assert.Equal(t, len(occupied), len(seen))
}

func TestConfirmAndReleaseRace(t *testing.T) {
	e, store, show := newTestEngine(t, Options{})
	ctx := context.Background()

	b, err := e.TryReserve(ctx, ReserveRequest{
		UserID: "user-1", ShowID: show.ID, Seats: []string{"G7"}, IdempotencyKey: "race",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var confirmErr, releaseErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = e.Confirm(ctx, b.ID)
	}()
	go func() {
		defer wg.Done()
		releaseErr = e.Release(ctx, show.ID, b.ID)
	}()
	wg.Wait()

	// exactly one transition lands; the other is rejected
	require.True(t, (confirmErr == nil) != (releaseErr == nil),
		"confirm=%v release=%v", confirmErr, releaseErr)

	final, err := store.BookingByID(ctx, b.ID)
	require.NoError(t, err)
	occupied, err := e.GetOccupancy(ctx, show.ID)
	require.NoError(t, err)
	if confirmErr == nil {
		require.ErrorIs(t, releaseErr, repository.ErrInvalidTransition)
		assert.Equal(t, model.StatusConfirmed, final.Status)
		assert.Equal(t, []string{"G7"}, occupied, "confirmed seats stay occupied")
	} else {
		require.ErrorIs(t, confirmErr, repository.ErrInvalidTransition)
		assert.Equal(t, model.StatusReleased, final.Status)
		assert.Empty(t, occupied, "released seats are freed")
	}
}

func TestReleasedSeatsAreClaimable(t *testing.T) {
	e, _, show := newTestEngine(t, Options{})
	ctx := context.Background()

	b, err := e.TryReserve(ctx, ReserveRequest{
		UserID: "user-1", ShowID: show.ID, Seats: []string{"H8"}, IdempotencyKey: "first",
	})
	require.NoError(t, err)
	require.NoError(t, e.Release(ctx, show.ID, b.ID))

	again, err := e.TryReserve(ctx, ReserveRequest{
		UserID: "user-2", ShowID: show.ID, Seats: []string{"H8"}, IdempotencyKey: "second",
	})
	require.NoError(t, err)
	assert.NotEqual(t, b.ID, again.ID)
	assert.Equal(t, []string{"H8"}, again.Seats)
}
