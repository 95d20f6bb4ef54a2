// Package repository provides the persistence layer for shows, seat
// slots and bookings. The sentinel errors defined here are shared by
// every Store implementation so that the engine and the handlers can
// distinguish failure scenarios with errors.Is regardless of the
// backing store.
package repository

import "errors"

// ErrShowNotFound is returned when the referenced show does not exist.
var ErrShowNotFound = errors.New("show not found")

// ErrBookingNotFound is returned when the referenced booking does not exist.
var ErrBookingNotFound = errors.New("booking not found")

// ErrVersionConflict is returned by Claim when the show's version moved
// between the caller's read and the conditional write. The claim did
// not happen; the caller re-reads and retries.
var ErrVersionConflict = errors.New("show version conflict")

// ErrSeatsUnavailable is returned when a claim would occupy a seat slot
// that already references a pending or confirmed booking.
var ErrSeatsUnavailable = errors.New("seats unavailable")

// ErrDuplicateIdempotencyKey is returned by Claim when a booking with
// the same idempotency key already exists. The caller should load and
// return that booking instead of treating this as a failure.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

// ErrInvalidTransition is returned when a status change violates the
// monotonic booking lifecycle (e.g. releasing a confirmed booking). It
// signals a benign internal race and is logged, never surfaced to users.
var ErrInvalidTransition = errors.New("invalid booking status transition")
