package repository

import (
	"context"
	"database/sql"
)

// schema holds the DDL for the tables this service owns. Statements are
// idempotent so Migrate can run on every startup.
//
// seat_slots is the authoritative occupancy of a show: a row exists for
// every seat referenced by a PENDING or CONFIRMED booking and nothing
// else. The primary key (show_id, seat_label) means the database itself
// refuses a second booking for the same seat even if the version gate
// were ever bypassed. shows.version is the compare-and-swap column; it
// only ever increases.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS shows (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		movie_id      VARCHAR(64)  NOT NULL,
		movie_title   VARCHAR(255) NOT NULL,
		starts_at     DATETIME     NOT NULL,
		price_cents   INT UNSIGNED NOT NULL,
		row_labels    VARCHAR(64)  NOT NULL,
		seats_per_row INT          NOT NULL,
		version       BIGINT UNSIGNED NOT NULL DEFAULT 0,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_shows_movie_starts (movie_id, starts_at)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id              CHAR(36)     NOT NULL,
		user_id         VARCHAR(64)  NOT NULL,
		show_id         BIGINT UNSIGNED NOT NULL,
		amount_cents    INT UNSIGNED NOT NULL,
		status          ENUM('PENDING','CONFIRMED','RELEASED','CANCELLED') NOT NULL,
		idempotency_key VARCHAR(128) NOT NULL,
		hold_expires_at DATETIME     NOT NULL,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_bookings_idem (idempotency_key),
		KEY idx_bookings_user (user_id, created_at),
		KEY idx_bookings_expiry (status, hold_expires_at)
	)`,
	`CREATE TABLE IF NOT EXISTS booking_seats (
		booking_id CHAR(36)    NOT NULL,
		show_id    BIGINT UNSIGNED NOT NULL,
		seat_label VARCHAR(8)  NOT NULL,
		PRIMARY KEY (booking_id, seat_label),
		KEY idx_booking_seats_show (show_id)
	)`,
	`CREATE TABLE IF NOT EXISTS seat_slots (
		show_id    BIGINT UNSIGNED NOT NULL,
		seat_label VARCHAR(8)  NOT NULL,
		booking_id CHAR(36)    NOT NULL,
		PRIMARY KEY (show_id, seat_label),
		KEY idx_seat_slots_booking (booking_id)
	)`,
}

// Migrate creates the service's tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
