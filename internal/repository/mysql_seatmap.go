package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// Occupancy returns the seat->booking map for a show together with the
// version the map was read at. The version is read before the slots so
// that a claim attempted against it can only succeed if nothing changed
// after either read.
func (s *MySQL) Occupancy(ctx context.Context, showID uint64) (map[string]string, uint64, error) {
	var version uint64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM shows WHERE id = ?`, showID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrShowNotFound
	}
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seat_label, booking_id FROM seat_slots WHERE show_id = ?`, showID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	occupied := make(map[string]string)
	for rows.Next() {
		var seat, bookingID string
		if err := rows.Scan(&seat, &bookingID); err != nil {
			return nil, 0, err
		}
		occupied[seat] = bookingID
	}
	return occupied, version, rows.Err()
}

// Claim performs the conditional seat write for a new booking: bump the
// show's version from the value the caller read, insert the PENDING
// booking plus its seats and occupy the seat slots, all in one
// transaction. Outcomes:
//
//   - nil: the claim committed and b is now the authoritative booking.
//   - ErrVersionConflict: another writer got in between; re-read and retry.
//   - ErrDuplicateIdempotencyKey: a booking with this key already exists.
//   - ErrSeatsUnavailable: a requested slot is already occupied (only
//     reachable if the caller skipped the overlap check; the slot
//     primary key is the final guard).
//
// An interrupted claim rolls back entirely, so there is never partial
// seat state.
func (s *MySQL) Claim(ctx context.Context, showID, version uint64, b *model.Booking) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE shows SET version = version + 1 WHERE id = ? AND version = ?`, showID, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM shows WHERE id = ?)`, showID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrShowNotFound
		}
		return ErrVersionConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookings (id, user_id, show_id, amount_cents, status, idempotency_key, hold_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.ShowID, b.AmountCents, string(b.Status), b.IdempotencyKey, b.HoldExpiresAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}

	seatQ := `INSERT INTO booking_seats (booking_id, show_id, seat_label) VALUES `
	slotQ := `INSERT INTO seat_slots (show_id, seat_label, booking_id) VALUES `
	seatArgs := make([]interface{}, 0, len(b.Seats)*3)
	slotArgs := make([]interface{}, 0, len(b.Seats)*3)
	for i, seat := range b.Seats {
		if i > 0 {
			seatQ += ","
			slotQ += ","
		}
		seatQ += "(?, ?, ?)"
		slotQ += "(?, ?, ?)"
		seatArgs = append(seatArgs, b.ID, showID, seat)
		slotArgs = append(slotArgs, showID, seat, b.ID)
	}
	if _, err := tx.ExecContext(ctx, seatQ, seatArgs...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, slotQ, slotArgs...); err != nil {
		if isDuplicate(err) {
			return ErrSeatsUnavailable
		}
		return err
	}
	return tx.Commit()
}

// Release frees the seats of a pending booking and marks it RELEASED.
// The status update is the monotonic-transition guard: when the booking
// already moved to CONFIRMED (or was released before), nothing is
// touched and ErrInvalidTransition is returned. The show version is
// bumped in the same transaction so every successful seat mutation
// advances it.
func (s *MySQL) Release(ctx context.Context, showID uint64, bookingID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ? WHERE id = ? AND show_id = ? AND status = ?`,
		string(model.StatusReleased), bookingID, showID, string(model.StatusPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM bookings WHERE id = ? AND show_id = ?)`,
			bookingID, showID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrBookingNotFound
		}
		return ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM seat_slots WHERE show_id = ? AND booking_id = ?`, showID, bookingID); err != nil {
		return err
	}

	// Same conditional shape as the claim path. The locking read pins the
	// version for the rest of the transaction, so the gated bump cannot
	// lose a race once the booking row is ours.
	var version uint64
	if err := tx.QueryRowContext(ctx,
		`SELECT version FROM shows WHERE id = ? FOR UPDATE`, showID).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrShowNotFound
		}
		return err
	}
	res, err = tx.ExecContext(ctx,
		`UPDATE shows SET version = version + 1 WHERE id = ? AND version = ?`, showID, version)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrVersionConflict
	}
	return tx.Commit()
}
