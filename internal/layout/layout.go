// Package layout validates requested seat selections against a show's
// seat geometry. All functions are pure; they never touch storage and
// run before any locking is attempted so that malformed requests fail
// fast without contending for the show's critical section.
package layout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSelection is the sentinel wrapped by every validation
// failure in this package. Handlers should translate it into an HTTP
// 400 response; the wrapped message explains what was wrong.
var ErrInvalidSelection = errors.New("invalid seat selection")

// Geometry describes the fixed seat grid of a show. RowLabels holds one
// letter per row (e.g. "ABCDEFGHIJ") and SeatsPerRow the number of
// seats in each row. Seat identifiers are the row letter followed by a
// 1-based seat number, such as "A1" or "J9". Geometry is configuration,
// not code: each show carries its own copy.
type Geometry struct {
	RowLabels   string
	SeatsPerRow int
}

// Contains reports whether the seat identifier addresses a slot inside
// the geometry. Only the canonical spelling is accepted: variants like
// "A01" or "A+1" would be stored as slot labels distinct from "A1"
// while addressing the same physical seat, defeating the one-slot-per-
// seat guarantee.
func (g Geometry) Contains(seatID string) bool {
	if len(seatID) < 2 {
		return false
	}
	row := seatID[:1]
	if !strings.Contains(g.RowLabels, row) {
		return false
	}
	n, err := strconv.Atoi(seatID[1:])
	if err != nil || strconv.Itoa(n) != seatID[1:] {
		return false
	}
	return n >= 1 && n <= g.SeatsPerRow
}

// Capacity returns the total number of seat slots in the geometry.
func (g Geometry) Capacity() int {
	return len(g.RowLabels) * g.SeatsPerRow
}

// SeatIDs enumerates every seat identifier in the geometry, row by row.
func (g Geometry) SeatIDs() []string {
	ids := make([]string, 0, g.Capacity())
	for _, r := range g.RowLabels {
		for n := 1; n <= g.SeatsPerRow; n++ {
			ids = append(ids, string(r)+strconv.Itoa(n))
		}
	}
	return ids
}

// ValidateSelection checks the shape of a seat selection without
// consulting any show state: the selection must be non-empty, must not
// exceed maxSeats, and must not contain duplicates. It is the part of
// validation that can run before the show record is even looked up.
func ValidateSelection(seatIDs []string, maxSeats int) error {
	if len(seatIDs) == 0 {
		return fmt.Errorf("%w: no seats requested", ErrInvalidSelection)
	}
	if len(seatIDs) > maxSeats {
		return fmt.Errorf("%w: at most %d seats per booking", ErrInvalidSelection, maxSeats)
	}
	seen := make(map[string]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate seat %s", ErrInvalidSelection, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Validate runs the full selection check against a concrete geometry:
// everything ValidateSelection covers plus rejection of seat ids that
// fall outside the show's declared grid.
func Validate(g Geometry, seatIDs []string, maxSeats int) error {
	if err := ValidateSelection(seatIDs, maxSeats); err != nil {
		return err
	}
	for _, id := range seatIDs {
		if !g.Contains(id) {
			return fmt.Errorf("%w: seat %s is not part of this show", ErrInvalidSelection, id)
		}
	}
	return nil
}
