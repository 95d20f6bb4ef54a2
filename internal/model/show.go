package model

import (
	"time"

	"github.com/iliyamo/movie-ticket-booking/internal/layout"
)

// Show represents one scheduled screening of a movie. It carries the
// ticket price, the seat geometry for the screening and a version
// counter incremented on every successful seat mutation. The version is
// the compare-and-swap guard for the whole seat map: all seats of one
// show form a single logical aggregate and are never mutated without it.
//
// Fields:
//
//	ID          – primary key identifier.
//	MovieID     – external catalog identifier of the movie.
//	MovieTitle  – display title recorded when the show was created.
//	StartsAt    – when the screening begins (UTC).
//	PriceCents  – ticket price per seat in cents.
//	RowLabels   – one letter per seat row (e.g. "ABCDEFGHIJ").
//	SeatsPerRow – seats per row.
//	Version     – optimistic concurrency counter, strictly increasing.
type Show struct {
	ID          uint64    `json:"id"`
	MovieID     string    `json:"movie_id"`
	MovieTitle  string    `json:"movie_title"`
	StartsAt    time.Time `json:"starts_at"`
	PriceCents  uint32    `json:"price_cents"`
	RowLabels   string    `json:"row_labels"`
	SeatsPerRow int       `json:"seats_per_row"`
	Version     uint64    `json:"-"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// Geometry returns the seat grid of the show for validation.
func (s *Show) Geometry() layout.Geometry {
	return layout.Geometry{RowLabels: s.RowLabels, SeatsPerRow: s.SeatsPerRow}
}
