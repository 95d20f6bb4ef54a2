// Package config loads application configuration from environment
// variables.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds
// to an environment variable; required variables are enforced by must()
// and missing values cause the program to exit with a fatal log message.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	// StoreDriver selects the persistence backend: "mysql" (default)
	// or "memory" for local development without a database.
	StoreDriver string

	DBUser string
	DBPass string // optional
	DBHost string
	DBPort string
	DBName string

	JWTSecret string // secret verifying externally issued access tokens

	// Reservation engine settings.
	SeatCap        int           // max seats per booking
	HoldWindow     time.Duration // how long pending bookings keep their seats
	SweepInterval  time.Duration // how often the hold expiry sweeper scans
	ReserveRetries int           // claim attempts before surfacing a conflict

	// Seat geometry applied to newly created shows.
	RowLabels   string
	SeatsPerRow int
}

// Load reads configuration from the environment. Database credentials
// are only required when the MySQL store driver is selected.
func Load() Config {
	cfg := Config{
		Env:            getenv("APP_ENV", "dev"),
		Port:           must("APP_PORT"),
		StoreDriver:    strings.ToLower(getenv("STORE_DRIVER", "mysql")),
		JWTSecret:      must("JWT_SECRET"),
		SeatCap:        envInt("BOOKING_SEAT_CAP", 5),
		HoldWindow:     envDur("BOOKING_HOLD_WINDOW", 10*time.Minute),
		SweepInterval:  envDur("BOOKING_SWEEP_INTERVAL", 30*time.Second),
		ReserveRetries: envInt("BOOKING_RESERVE_RETRIES", 3),
		RowLabels:      getenv("SEAT_ROW_LABELS", "ABCDEFGHIJ"),
		SeatsPerRow:    envInt("SEATS_PER_ROW", 9),
	}
	if cfg.StoreDriver == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}
	return cfg
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	case "0", "false", "FALSE", "False", "no", "off":
		return false
	}
	return def
}
