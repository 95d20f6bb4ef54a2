package handler

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/config"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
)

// ShowHandler serves the public show catalog and the admin show
// creation endpoint.
type ShowHandler struct {
	Store repository.Store
	Cfg   config.Config
	Log   zerolog.Logger
}

func NewShowHandler(store repository.Store, cfg config.Config, log zerolog.Logger) *ShowHandler {
	if store == nil {
		panic("nil store passed to NewShowHandler")
	}
	return &ShowHandler{Store: store, Cfg: cfg, Log: log}
}

// showTime is one bookable screening slot within a day.
type showTime struct {
	Time   string `json:"time"`
	ShowID uint64 `json:"show_id"`
}

// GetShow handles GET /v1/show/:movieId. It returns the movie's
// upcoming screenings grouped by date, each slot carrying the show id
// the client needs for seat queries and booking.
func (h *ShowHandler) GetShow(c echo.Context) error {
	movieID := c.Param("movieId")
	if movieID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "movie id required"})
	}

	shows, err := h.Store.UpcomingShowsByMovie(c.Request().Context(), movieID, time.Now().UTC())
	if err != nil {
		h.Log.Error().Err(err).Str("movie_id", movieID).Msg("list shows failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if len(shows) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no upcoming shows for movie"})
	}

	byDate := make(map[string][]showTime)
	for _, s := range shows {
		date := s.StartsAt.Format("2006-01-02")
		byDate[date] = append(byDate[date], showTime{
			Time:   s.StartsAt.Format("15:04"),
			ShowID: s.ID,
		})
	}
	for _, slots := range byDate {
		sort.Slice(slots, func(i, j int) bool { return slots[i].Time < slots[j].Time })
	}

	return c.JSON(http.StatusOK, echo.Map{
		"movie_id":    movieID,
		"movie_title": shows[0].MovieTitle,
		"price_cents": shows[0].PriceCents,
		"shows":       byDate,
	})
}

// ListShows handles GET /v1/shows: the now-showing catalog of movies
// with at least one upcoming screening.
func (h *ShowHandler) ListShows(c echo.Context) error {
	movies, err := h.Store.NowShowing(c.Request().Context(), time.Now().UTC())
	if err != nil {
		h.Log.Error().Err(err).Msg("now showing query failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if movies == nil {
		movies = []repository.MovieListing{}
	}
	return c.JSON(http.StatusOK, echo.Map{"movies": movies})
}

type addShowsRequest struct {
	MovieID    string `json:"movie_id"`
	MovieTitle string `json:"movie_title"`
	PriceCents uint32 `json:"price_cents"`
	Shows      []struct {
		Date  string   `json:"date"`  // "2006-01-02"
		Times []string `json:"times"` // "15:04"
	} `json:"shows"`
}

// AddShows handles POST /v1/show/add (admin only). It bulk-creates
// screenings for one movie; every screening gets the configured seat
// geometry and starts at version zero with an empty seat map.
func (h *ShowHandler) AddShows(c echo.Context) error {
	var body addShowsRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.MovieID == "" || body.MovieTitle == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "movie_id and movie_title are required"})
	}
	if body.PriceCents == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price_cents must be positive"})
	}
	if len(body.Shows) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "shows is required"})
	}

	shows, err := h.buildShows(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	if err := h.Store.CreateShows(c.Request().Context(), shows); err != nil {
		h.Log.Error().Err(err).Str("movie_id", body.MovieID).Msg("create shows failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	ids := make([]uint64, len(shows))
	for i, s := range shows {
		ids[i] = s.ID
	}
	h.Log.Info().Str("movie_id", body.MovieID).Int("count", len(ids)).Msg("shows created")
	return c.JSON(http.StatusCreated, echo.Map{"show_ids": ids})
}

func (h *ShowHandler) buildShows(body addShowsRequest) ([]*model.Show, error) {
	var shows []*model.Show
	seen := make(map[time.Time]bool)
	for _, day := range body.Shows {
		date, err := time.ParseInLocation("2006-01-02", day.Date, time.UTC)
		if err != nil {
			return nil, errors.New("invalid date: " + day.Date)
		}
		if len(day.Times) == 0 {
			return nil, errors.New("no times for date " + day.Date)
		}
		for _, t := range day.Times {
			clock, err := time.Parse("15:04", t)
			if err != nil {
				return nil, errors.New("invalid time: " + t)
			}
			startsAt := date.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
			if seen[startsAt] {
				return nil, errors.New("duplicate screening at " + startsAt.Format(time.RFC3339))
			}
			seen[startsAt] = true
			shows = append(shows, &model.Show{
				MovieID:     body.MovieID,
				MovieTitle:  body.MovieTitle,
				StartsAt:    startsAt,
				PriceCents:  body.PriceCents,
				RowLabels:   h.Cfg.RowLabels,
				SeatsPerRow: h.Cfg.SeatsPerRow,
			})
		}
	}
	return shows, nil
}
