package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// Memory is an in-process Store with the exact same semantics as the
// MySQL implementation: version-gated claims, unique idempotency keys
// and monotonic status transitions. It backs the unit tests and local
// development (STORE_DRIVER=memory) where no database is available.
type Memory struct {
	mu       sync.Mutex
	nextShow uint64
	shows    map[uint64]*model.Show
	slots    map[uint64]map[string]string // show -> seat -> booking id
	bookings map[string]*model.Booking
	byKey    map[string]string // idempotency key -> booking id
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		shows:    make(map[uint64]*model.Show),
		slots:    make(map[uint64]map[string]string),
		bookings: make(map[string]*model.Booking),
		byKey:    make(map[string]string),
	}
}

func copyShow(sh *model.Show) *model.Show {
	cp := *sh
	return &cp
}

func copyBooking(b *model.Booking) *model.Booking {
	cp := *b
	cp.Seats = append([]string(nil), b.Seats...)
	return &cp
}

// CreateShows registers the shows and assigns sequential IDs.
func (m *Memory) CreateShows(_ context.Context, shows []*model.Show) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, sh := range shows {
		m.nextShow++
		sh.ID = m.nextShow
		sh.Version = 0
		sh.CreatedAt = now
		sh.UpdatedAt = now
		m.shows[sh.ID] = copyShow(sh)
		m.slots[sh.ID] = make(map[string]string)
	}
	return nil
}

// Show returns the show with the given ID.
func (m *Memory) Show(_ context.Context, showID uint64) (*model.Show, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shows[showID]
	if !ok {
		return nil, ErrShowNotFound
	}
	return copyShow(sh), nil
}

// UpcomingShowsByMovie returns shows of a movie starting at or after
// the given instant, ordered by start time.
func (m *Memory) UpcomingShowsByMovie(_ context.Context, movieID string, from time.Time) ([]*model.Show, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var shows []*model.Show
	for _, sh := range m.shows {
		if sh.MovieID == movieID && !sh.StartsAt.Before(from) {
			shows = append(shows, copyShow(sh))
		}
	}
	sort.Slice(shows, func(i, j int) bool { return shows[i].StartsAt.Before(shows[j].StartsAt) })
	return shows, nil
}

// NowShowing returns the distinct movies with upcoming shows, ordered
// by their earliest upcoming show.
func (m *Memory) NowShowing(_ context.Context, from time.Time) ([]MovieListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	first := make(map[string]time.Time)
	titles := make(map[string]string)
	for _, sh := range m.shows {
		if sh.StartsAt.Before(from) {
			continue
		}
		if t, ok := first[sh.MovieID]; !ok || sh.StartsAt.Before(t) {
			first[sh.MovieID] = sh.StartsAt
			titles[sh.MovieID] = sh.MovieTitle
		}
	}
	listings := make([]MovieListing, 0, len(first))
	for id := range first {
		listings = append(listings, MovieListing{MovieID: id, MovieTitle: titles[id]})
	}
	sort.Slice(listings, func(i, j int) bool {
		return first[listings[i].MovieID].Before(first[listings[j].MovieID])
	})
	return listings, nil
}

// Occupancy returns a copy of the show's seat map and its version.
func (m *Memory) Occupancy(_ context.Context, showID uint64) (map[string]string, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shows[showID]
	if !ok {
		return nil, 0, ErrShowNotFound
	}
	occupied := make(map[string]string, len(m.slots[showID]))
	for seat, bookingID := range m.slots[showID] {
		occupied[seat] = bookingID
	}
	return occupied, sh.Version, nil
}

// Claim applies the conditional seat write; see Store for the contract.
func (m *Memory) Claim(_ context.Context, showID, version uint64, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shows[showID]
	if !ok {
		return ErrShowNotFound
	}
	if sh.Version != version {
		return ErrVersionConflict
	}
	if _, dup := m.byKey[b.IdempotencyKey]; dup {
		return ErrDuplicateIdempotencyKey
	}
	for _, seat := range b.Seats {
		if _, taken := m.slots[showID][seat]; taken {
			return ErrSeatsUnavailable
		}
	}
	sh.Version++
	sh.UpdatedAt = time.Now().UTC()
	for _, seat := range b.Seats {
		m.slots[showID][seat] = b.ID
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	m.bookings[b.ID] = copyBooking(b)
	m.byKey[b.IdempotencyKey] = b.ID
	return nil
}

// Release frees a pending booking's seats; see Store for the contract.
func (m *Memory) Release(_ context.Context, showID uint64, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok || b.ShowID != showID {
		return ErrBookingNotFound
	}
	if b.Status != model.StatusPending {
		return ErrInvalidTransition
	}
	b.Status = model.StatusReleased
	b.UpdatedAt = time.Now().UTC()
	for _, seat := range b.Seats {
		delete(m.slots[showID], seat)
	}
	if sh, ok := m.shows[showID]; ok {
		sh.Version++
	}
	return nil
}

// BookingByID returns a copy of the booking with the given ID.
func (m *Memory) BookingByID(_ context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return copyBooking(b), nil
}

// BookingByIdempotencyKey returns the booking created under the key.
func (m *Memory) BookingByIdempotencyKey(_ context.Context, key string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byKey[key]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return copyBooking(m.bookings[id]), nil
}

// BookingsByUser returns all bookings of a user, newest first.
func (m *Memory) BookingsByUser(_ context.Context, userID string) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bookings := make([]*model.Booking, 0)
	for _, b := range m.bookings {
		if b.UserID == userID {
			bookings = append(bookings, copyBooking(b))
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
	return bookings, nil
}

// Transition moves a booking between statuses under the monotonic rule.
func (m *Memory) Transition(_ context.Context, id string, from, to model.BookingStatus) error {
	if !model.ValidTransition(from, to) {
		return ErrInvalidTransition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrBookingNotFound
	}
	if b.Status != from {
		return ErrInvalidTransition
	}
	b.Status = to
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// ExpiredPending returns up to limit PENDING bookings whose hold
// deadline passed before the given instant, oldest deadline first.
func (m *Memory) ExpiredPending(_ context.Context, before time.Time, limit int) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expired := make([]*model.Booking, 0)
	for _, b := range m.bookings {
		if b.Status == model.StatusPending && !b.HoldExpiresAt.After(before) {
			expired = append(expired, copyBooking(b))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].HoldExpiresAt.Before(expired[j].HoldExpiresAt) })
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}
