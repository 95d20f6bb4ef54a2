package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/movie-ticket-booking/internal/config"
	"github.com/iliyamo/movie-ticket-booking/internal/database"
	"github.com/iliyamo/movie-ticket-booking/internal/engine"
	"github.com/iliyamo/movie-ticket-booking/internal/handler"
	"github.com/iliyamo/movie-ticket-booking/internal/model"
	"github.com/iliyamo/movie-ticket-booking/internal/queue"
	"github.com/iliyamo/movie-ticket-booking/internal/repository"
	"github.com/iliyamo/movie-ticket-booking/internal/router"
	queue_publisher "github.com/iliyamo/movie-ticket-booking/internal/service"
	"github.com/iliyamo/movie-ticket-booking/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("APP_ENV") == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	cfg := config.Load()

	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}

	eng := engine.New(store, engine.Options{
		MaxSeats:   cfg.SeatCap,
		HoldWindow: cfg.HoldWindow,
		Retries:    cfg.ReserveRetries,
		Logger:     log,
	})

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable, cache and rate limiting disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	router.Register(e, router.Deps{
		Shows:     handler.NewShowHandler(store, cfg, log),
		Bookings:  handler.NewBookingHandler(eng, store, log),
		JWTSecret: cfg.JWTSecret,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		Redis:     rdb,
	})

	// Expired holds publish the same released event as failed payments,
	// with the reason telling consumers apart.
	sw := sweeper.New(store, eng, sweeper.Options{
		Interval: cfg.SweepInterval,
		Logger:   log,
		OnReleased: func(b *model.Booking) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = queue_publisher.PublishBookingReleased(ctx, log, queue.BookingReleasedEvent{
				BookingID:  b.ID,
				UserID:     b.UserID,
				ShowID:     b.ShowID,
				Seats:      b.Seats,
				Reason:     "hold_expired",
				ReleasedAt: time.Now().UTC().Format(time.RFC3339),
			})
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := sw.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := queue.StartBookingConsumer(ctx, log)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}

// openStore builds the persistence backend selected by STORE_DRIVER.
// The memory driver keeps everything in process and is meant for local
// development without MySQL.
func openStore(cfg config.Config, log zerolog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("using in-memory store, data will not survive restarts")
		return repository.NewMemory(), nil
	case "mysql":
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := repository.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return repository.NewMySQL(db), nil
	default:
		return nil, errors.New("unknown STORE_DRIVER: " + cfg.StoreDriver)
	}
}
