package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/movie-ticket-booking/internal/model"
)

// MySQL implements Store on top of a MySQL database. All timestamps are
// stored and compared in UTC; the connection must be opened with
// parseTime=true and loc=UTC (see internal/database).
type MySQL struct {
	db *sql.DB
}

var _ Store = (*MySQL)(nil)

// NewMySQL returns a Store bound to the given database handle.
func NewMySQL(db *sql.DB) *MySQL { return &MySQL{db: db} }

// DB exposes the underlying handle, e.g. for migrations and health checks.
func (s *MySQL) DB() *sql.DB { return s.db }

// isDuplicate reports whether err is a MySQL duplicate-key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// CreateShows inserts the given shows in one transaction and populates
// their generated IDs. Each show starts at version 0 with no occupied
// seats.
func (s *MySQL) CreateShows(ctx context.Context, shows []*model.Show) error {
	if len(shows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO shows (movie_id, movie_title, starts_at, price_cents, row_labels, seats_per_row)
	           VALUES (?, ?, ?, ?, ?, ?)`
	for _, sh := range shows {
		res, err := tx.ExecContext(ctx, q,
			sh.MovieID, sh.MovieTitle, sh.StartsAt.UTC(), sh.PriceCents, sh.RowLabels, sh.SeatsPerRow)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		sh.ID = uint64(id)
	}
	return tx.Commit()
}

// Show loads a single show by ID, including its current version.
func (s *MySQL) Show(ctx context.Context, showID uint64) (*model.Show, error) {
	const q = `SELECT id, movie_id, movie_title, starts_at, price_cents, row_labels, seats_per_row, version, created_at, updated_at
	           FROM shows WHERE id = ?`
	var sh model.Show
	err := s.db.QueryRowContext(ctx, q, showID).Scan(
		&sh.ID, &sh.MovieID, &sh.MovieTitle, &sh.StartsAt, &sh.PriceCents,
		&sh.RowLabels, &sh.SeatsPerRow, &sh.Version, &sh.CreatedAt, &sh.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// UpcomingShowsByMovie returns all shows for a movie starting at or
// after the given instant, ordered by start time.
func (s *MySQL) UpcomingShowsByMovie(ctx context.Context, movieID string, from time.Time) ([]*model.Show, error) {
	const q = `SELECT id, movie_id, movie_title, starts_at, price_cents, row_labels, seats_per_row, version, created_at, updated_at
	           FROM shows WHERE movie_id = ? AND starts_at >= ? ORDER BY starts_at`
	rows, err := s.db.QueryContext(ctx, q, movieID, from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shows []*model.Show
	for rows.Next() {
		var sh model.Show
		if err := rows.Scan(
			&sh.ID, &sh.MovieID, &sh.MovieTitle, &sh.StartsAt, &sh.PriceCents,
			&sh.RowLabels, &sh.SeatsPerRow, &sh.Version, &sh.CreatedAt, &sh.UpdatedAt,
		); err != nil {
			return nil, err
		}
		shows = append(shows, &sh)
	}
	return shows, rows.Err()
}

// NowShowing returns the distinct movies that have at least one show
// starting at or after the given instant, ordered by their earliest
// upcoming show.
func (s *MySQL) NowShowing(ctx context.Context, from time.Time) ([]MovieListing, error) {
	const q = `SELECT movie_id, movie_title, MIN(starts_at) AS first_show
	           FROM shows WHERE starts_at >= ?
	           GROUP BY movie_id, movie_title
	           ORDER BY first_show`
	rows, err := s.db.QueryContext(ctx, q, from.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	listings := make([]MovieListing, 0)
	for rows.Next() {
		var m MovieListing
		var first time.Time
		if err := rows.Scan(&m.MovieID, &m.MovieTitle, &first); err != nil {
			return nil, err
		}
		listings = append(listings, m)
	}
	return listings, rows.Err()
}
