// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names used on the default exchange. Both queues are declared
// durable by publisher and consumer alike.
const (
	BookingConfirmedQueue = "booking.confirmed"
	BookingReleasedQueue  = "booking.released"
)

// BookingConfirmedEvent is published after a booking's payment is
// confirmed. It carries enough information for downstream consumers to
// log, notify, or trigger analytics without querying the primary
// database.
type BookingConfirmedEvent struct {
	BookingID   string   `json:"booking_id"`
	UserID      string   `json:"user_id"`
	ShowID      uint64   `json:"show_id"`
	MovieTitle  string   `json:"movie_title"`
	StartsAt    string   `json:"starts_at"`
	Seats       []string `json:"seats"`
	AmountCents uint32   `json:"amount_cents"`
	ConfirmedAt string   `json:"confirmed_at"`
}

// BookingReleasedEvent is published when a pending booking's seats are
// freed, either because the hold expired or because payment failed.
type BookingReleasedEvent struct {
	BookingID  string   `json:"booking_id"`
	UserID     string   `json:"user_id"`
	ShowID     uint64   `json:"show_id"`
	Seats      []string `json:"seats"`
	Reason     string   `json:"reason"` // "hold_expired" or "payment_failed"
	ReleasedAt string   `json:"released_at"`
}
