package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/movie-ticket-booking/internal/engine"
	"github.com/iliyamo/movie-ticket-booking/internal/layout"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/queue"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
	queue_publisher "github.com/iliyamo/movie-ticket-booking/internal/service"
)

// BookingHandler serves seat occupancy reads, booking creation, the
// payment callback and the user's booking history. All seat mutations
// go through the reservation engine.
type BookingHandler struct {
	Engine *engine.Engine
	Store  repository.Store
	Log    zerolog.Logger

	// Publish toggles event emission; tests turn it off so they do not
	// dial a broker.
	Publish bool
}

func NewBookingHandler(eng *engine.Engine, store repository.Store, log zerolog.Logger) *BookingHandler {
	if eng == nil || store == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: eng, Store: store, Log: log, Publish: true}
}

// Seats handles GET /v1/booking/seats/:showId. It returns the occupied
// seat ids of a show so the client can render the seat picker. The
// snapshot may be briefly stale; the create endpoint re-validates.
func (h *BookingHandler) Seats(c echo.Context) error {
	showID, err := strconv.ParseUint(c.Param("showId"), 10, 64)
	if err != nil || showID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid show id"})
	}
	ctx := c.Request().Context()

	show, err := h.Store.Show(ctx, showID)
	if err != nil {
		if errors.Is(err, repository.ErrShowNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		}
		h.Log.Error().Err(err).Uint64("show_id", showID).Msg("show lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	occupied, err := h.Engine.GetOccupancy(ctx, showID)
	if err != nil {
		h.Log.Error().Err(err).Uint64("show_id", showID).Msg("occupancy read failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if occupied == nil {
		occupied = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"show_id":        showID,
		"occupied_seats": occupied,
		"total_seats":    show.Geometry().Capacity(),
		"price_cents":    show.PriceCents,
	})
}

type createBookingRequest struct {
	ShowID         uint64   `json:"show_id"`
	Seats          []string `json:"seats"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// Create handles POST /v1/booking/create. Outcomes:
//
//	201 booking created (or the original booking on an idempotent replay)
//	400 malformed selection or missing idempotency key
//	404 show does not exist
//	409 requested seats already taken, body lists them
//	503 persistent version contention, Retry-After advises backoff
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ShowID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show_id is required"})
	}

	booking, err := h.Engine.TryReserve(c.Request().Context(), engine.ReserveRequest{
		UserID:         userID,
		ShowID:         body.ShowID,
		Seats:          body.Seats,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		var unavailable *engine.SeatsUnavailableError
		switch {
		case errors.Is(err, layout.ErrInvalidSelection),
			errors.Is(err, engine.ErrMissingIdempotencyKey):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		case errors.Is(err, repository.ErrShowNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "show not found"})
		case errors.As(err, &unavailable):
			return c.JSON(http.StatusConflict, echo.Map{
				"error":             "seats unavailable",
				"unavailable_seats": unavailable.Seats,
			})
		case errors.Is(err, engine.ErrConflict):
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "high contention, retry later"})
		default:
			h.Log.Error().Err(err).Uint64("show_id", body.ShowID).Msg("reserve failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
	}
	return c.JSON(http.StatusCreated, booking)
}

type paymentCallbackRequest struct {
	Status string `json:"status"` // "succeeded" or "failed"
}

// PaymentCallback handles POST /v1/booking/:id/payment, the webhook the
// payment collaborator calls with the outcome of a charge. Success
// confirms the booking; failure releases its seats. Either way the
// transition is guarded by the ledger, so a concurrent hold expiry
// cannot be overwritten.
func (h *BookingHandler) PaymentCallback(c echo.Context) error {
	bookingID := c.Param("id")
	if bookingID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking id required"})
	}
	var body paymentCallbackRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()

	booking, err := h.Store.BookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
		}
		h.Log.Error().Err(err).Str("booking_id", bookingID).Msg("booking lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	switch body.Status {
	case "succeeded":
		confirmed, err := h.Engine.Confirm(ctx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				return c.JSON(http.StatusConflict, echo.Map{
					"error":  "booking is no longer pending",
					"status": booking.Status,
				})
			}
			h.Log.Error().Err(err).Str("booking_id", bookingID).Msg("confirm failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
		h.publishConfirmed(confirmed)
		return c.JSON(http.StatusOK, confirmed)

	case "failed":
		if err := h.Engine.Release(ctx, booking.ShowID, bookingID); err != nil {
			if errors.Is(err, repository.ErrInvalidTransition) {
				return c.JSON(http.StatusConflict, echo.Map{
					"error":  "booking is no longer pending",
					"status": booking.Status,
				})
			}
			h.Log.Error().Err(err).Str("booking_id", bookingID).Msg("release failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
		h.publishReleased(booking, "payment_failed")
		return c.JSON(http.StatusOK, echo.Map{"id": bookingID, "status": "RELEASED"})

	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status must be succeeded or failed"})
	}
}

// MyBookings handles GET /v1/my-bookings for the authenticated user,
// newest first.
func (h *BookingHandler) MyBookings(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	bookings, err := h.Store.BookingsByUser(c.Request().Context(), userID)
	if err != nil {
		h.Log.Error().Err(err).Str("user_id", userID).Msg("booking history query failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": bookings})
}

// publishConfirmed emits the confirmed event off the request path. The
// show lookup and broker round trip must not delay the webhook reply.
func (h *BookingHandler) publishConfirmed(b *model.Booking) {
	if !h.Publish {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		event := queue.BookingConfirmedEvent{
			BookingID:   b.ID,
			UserID:      b.UserID,
			ShowID:      b.ShowID,
			Seats:       b.Seats,
			AmountCents: b.AmountCents,
			ConfirmedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if show, err := h.Store.Show(ctx, b.ShowID); err == nil {
			event.MovieTitle = show.MovieTitle
			event.StartsAt = show.StartsAt.Format(time.RFC3339)
		}
		_ = queue_publisher.PublishBookingConfirmed(ctx, h.Log, event)
	}()
}

func (h *BookingHandler) publishReleased(b *model.Booking, reason string) {
	if !h.Publish {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue_publisher.PublishBookingReleased(ctx, h.Log, queue.BookingReleasedEvent{
			BookingID:  b.ID,
			UserID:     b.UserID,
			ShowID:     b.ShowID,
			Seats:      b.Seats,
			Reason:     reason,
			ReleasedAt: time.Now().UTC().Format(time.RFC3339),
		})
	}()
}
