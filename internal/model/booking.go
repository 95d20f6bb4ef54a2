package model

import "time"

// BookingStatus enumerates the lifecycle states of a booking. Status
// transitions are monotonic; see ValidTransition.
type BookingStatus string

const (
	// StatusPending means the seats are held but payment has not been
	// confirmed. A pending booking carries a hold deadline after which
	// the sweeper may reclaim its seats.
	StatusPending BookingStatus = "PENDING"
	// StatusConfirmed means payment succeeded; the seats stay occupied.
	StatusConfirmed BookingStatus = "CONFIRMED"
	// StatusReleased means the hold expired or payment failed; the
	// seats were freed.
	StatusReleased BookingStatus = "RELEASED"
	// StatusCancelled means an explicit cancellation after
	// confirmation, driven by an external action.
	StatusCancelled BookingStatus = "CANCELLED"
)

// ValidTransition reports whether a booking may move from one status to
// another. PENDING may become CONFIRMED or RELEASED; CONFIRMED may only
// become CANCELLED. RELEASED and CANCELLED are terminal.
func ValidTransition(from, to BookingStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusReleased
	case StatusConfirmed:
		return to == StatusCancelled
	default:
		return false
	}
}

// Booking records one reservation attempt's outcome and lifecycle. The
// seat set is immutable once created; only the status changes. A
// booking owns its seats exclusively while PENDING or CONFIRMED.
//
// Fields:
//
//	ID             – UUID primary key.
//	UserID         – identity of the patron, supplied by the caller.
//	ShowID         – show whose seats are booked.
//	Seats          – ordered seat identifiers, 1 to the configured cap.
//	AmountCents    – price × seat count, computed at claim time.
//	Status         – current lifecycle state.
//	IdempotencyKey – client token; unique across all bookings.
//	HoldExpiresAt  – deadline after which a PENDING booking may be swept.
type Booking struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	ShowID         uint64        `json:"show_id"`
	Seats          []string      `json:"seats"`
	AmountCents    uint32        `json:"amount_cents"`
	Status         BookingStatus `json:"status"`
	IdempotencyKey string        `json:"-"`
	HoldExpiresAt  time.Time     `json:"hold_expires_at"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"-"`
}
