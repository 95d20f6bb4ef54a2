// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/movie-ticket-booking/internal/config"
	"github.com/iliyamo/movie-ticket-booking/internal/handler"
	"github.com/iliyamo/movie-ticket-booking/internal/middleware"
)

// Deps carries everything route registration needs.
type Deps struct {
	Shows    *handler.ShowHandler
	Bookings *handler.BookingHandler

	JWTSecret string
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig

	// Redis may be nil; caching and rate limiting then degrade to
	// pass-through middleware.
	Redis *redis.Client
}

// Register attaches all routes to the Echo instance.
//
// Public (no token):
//
//	GET  /healthz
//	GET  /v1/shows
//	GET  /v1/show/:movieId
//	GET  /v1/booking/seats/:showId
//	POST /v1/booking/:id/payment   (called by the payment collaborator)
//
// Authenticated (Bearer token):
//
//	POST /v1/booking/create
//	GET  /v1/my-bookings
//
// Admin:
//
//	POST /v1/show/add
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	cached := middleware.NewRedisCache(d.Cache, d.Redis)
	limited := middleware.NewTokenBucket(d.RateLimit, d.Redis)

	e.GET("/v1/shows", d.Shows.ListShows, cached)
	e.GET("/v1/show/:movieId", d.Shows.GetShow, cached)
	e.GET("/v1/booking/seats/:showId", d.Bookings.Seats, cached)

	// The payment callback is authenticated out of band (the payment
	// provider signs its webhooks at the gateway), not with user JWTs.
	e.POST("/v1/booking/:id/payment", d.Bookings.PaymentCallback)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(d.JWTSecret))
	auth.POST("/booking/create", d.Bookings.Create, limited)
	auth.GET("/my-bookings", d.Bookings.MyBookings)

	admin := e.Group("/v1", middleware.JWTAuth(d.JWTSecret), middleware.RequireRole("ADMIN"))
	admin.POST("/show/add", d.Shows.AddShows)
}
