package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

const bookingColumns = `id, user_id, show_id, amount_cents, status, idempotency_key, hold_expires_at, created_at, updated_at`

func scanBooking(row interface{ Scan(...interface{}) error }) (*model.Booking, error) {
	var b model.Booking
	var status string
	err := row.Scan(&b.ID, &b.UserID, &b.ShowID, &b.AmountCents, &status,
		&b.IdempotencyKey, &b.HoldExpiresAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	return &b, nil
}

// loadSeats populates the Seats field of each booking with one batched
// query, ordered by seat label for deterministic output.
func (s *MySQL) loadSeats(ctx context.Context, bookings []*model.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	index := make(map[string]*model.Booking, len(bookings))
	args := make([]interface{}, 0, len(bookings))
	placeholders := make([]string, 0, len(bookings))
	for _, b := range bookings {
		b.Seats = []string{}
		index[b.ID] = b
		args = append(args, b.ID)
		placeholders = append(placeholders, "?")
	}
	q := `SELECT booking_id, seat_label FROM booking_seats
	      WHERE booking_id IN (` + strings.Join(placeholders, ",") + `)
	      ORDER BY booking_id, seat_label`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, seat string
		if err := rows.Scan(&id, &seat); err != nil {
			return err
		}
		if b, ok := index[id]; ok {
			b.Seats = append(b.Seats, seat)
		}
	}
	return rows.Err()
}

// BookingByID loads one booking and its seats.
func (s *MySQL) BookingByID(ctx context.Context, id string) (*model.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadSeats(ctx, []*model.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// BookingByIdempotencyKey loads the booking created under the given
// client key, if any. Used to make TryReserve exactly-once across
// client retries.
func (s *MySQL) BookingByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = ?`, key)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadSeats(ctx, []*model.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// BookingsByUser returns all bookings of a user, newest first.
func (s *MySQL) BookingsByUser(ctx context.Context, userID string) ([]*model.Booking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bookings := make([]*model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadSeats(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// Transition moves a booking from one status to another, enforcing the
// monotonic lifecycle. The conditional UPDATE is the concurrency guard:
// of two racing transitions exactly one matches the `from` status and
// wins; the loser gets ErrInvalidTransition.
func (s *MySQL) Transition(ctx context.Context, id string, from, to model.BookingStatus) error {
	if !model.ValidTransition(from, to) {
		return ErrInvalidTransition
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM bookings WHERE id = ?)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrBookingNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

// ExpiredPending returns up to limit PENDING bookings whose hold
// deadline passed before the given instant, oldest deadline first. The
// sweeper releases each of them.
func (s *MySQL) ExpiredPending(ctx context.Context, before time.Time, limit int) ([]*model.Booking, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE status = ? AND hold_expires_at <= ?
		 ORDER BY hold_expires_at LIMIT ?`,
		string(model.StatusPending), before.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bookings := make([]*model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadSeats(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}
