// Package config reads client and devserver settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the binaries need. Values come from environment
// variables with sensible local-development defaults; a .env file in the
// working directory is honored when present.
type Config struct {
	// Env selects logger behavior: "production" or "development".
	Env string

	// StreamURL is the websocket endpoint of the reservation event
	// channel. Empty disables live updates (catalog-only mode).
	StreamURL string

	// APIBaseURL is the catalog/booking backend base URL.
	APIBaseURL string

	// AuthToken and ChannelKey are supplied by the auth collaborator.
	AuthToken  string
	ChannelKey string

	// UserID identifies the current user for self-reservation checks.
	UserID int64

	// Devserver settings.
	Addr      string
	DataDir   string
	JWTSecret string
	HoldTTL   time.Duration
}

// Load reads the configuration. A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:        getEnv("APP_ENV", "development"),
		StreamURL:  getEnv("RESERVE_STREAM_URL", "ws://localhost:8099/api/ws"),
		APIBaseURL: getEnv("RESERVE_API_URL", "http://localhost:8099"),
		AuthToken:  getEnv("RESERVE_AUTH_TOKEN", ""),
		ChannelKey: getEnv("RESERVE_CHANNEL_KEY", "default"),
		UserID:     getEnvInt64("RESERVE_USER_ID", 0),
		Addr:       getEnv("DEVSERVER_ADDR", ":8099"),
		DataDir:    getEnv("DEVSERVER_DATA", "./data"),
		JWTSecret:  getEnv("DEVSERVER_JWT_SECRET", "dev-secret"),
		HoldTTL:    getEnvDuration("DEVSERVER_HOLD_TTL", 5*time.Minute),
	}
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
