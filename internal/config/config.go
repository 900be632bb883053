// Package config loads application configuration from the environment.
// It is read once at startup and treated as immutable afterward.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable named in the spec's external-interfaces
// section. Optional fields carry sane production defaults; required fields
// fail startup loudly rather than silently running degraded.
type Config struct {
	// Durable store
	DatabaseURL   string
	DBPoolSize    int
	DBMaxOverflow int

	// Timeline cache
	CacheURL   string
	TimelineCap int

	// Event bus
	EventBusURL              string
	EventBusVisibilityTimeout time.Duration
	EventBusMaxReceives      int

	// Classification / fan-out tuning
	CelebrityThreshold int
	FanoutBatchSize    int
	WorkerConcurrency  int

	// Timeline read tuning. PullWindow bounds how far back the celebrity
	// pull and the database fallback scan look; PullLimit caps celebrity
	// posts pulled per read.
	TimelinePullWindow time.Duration
	TimelinePullLimit  int

	// Auth
	TokenSecret string
	TokenTTL    time.Duration

	// Server
	ServerPort        string
	MaxConnections    int
	CORSAllowedOrigin string
}

// Load reads environment variables (after attempting to load a local .env
// file, which is a no-op in production where no such file exists) into a
// Config. Required variables are DB_URL, CACHE_URL, EVENT_BUS_URL,
// and TOKEN_SECRET; everything else has a documented default.
func Load() (*Config, error) {
	_ = godotenv.Load() // best-effort; real deployments set the environment directly

	cfg := &Config{}
	var missing []string

	cfg.DatabaseURL = os.Getenv("DB_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DB_URL")
	}
	cfg.CacheURL = os.Getenv("CACHE_URL")
	if cfg.CacheURL == "" {
		missing = append(missing, "CACHE_URL")
	}
	cfg.EventBusURL = os.Getenv("EVENT_BUS_URL")
	if cfg.EventBusURL == "" {
		missing = append(missing, "EVENT_BUS_URL")
	}
	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.DBPoolSize = getEnvInt("DB_POOL_SIZE", 10)
	cfg.DBMaxOverflow = getEnvInt("DB_MAX_OVERFLOW", 20)
	cfg.TimelineCap = getEnvInt("TIMELINE_CAP", 1000)
	cfg.EventBusVisibilityTimeout = getEnvDuration("EVENT_BUS_VISIBILITY_TIMEOUT", 30*time.Second)
	cfg.EventBusMaxReceives = getEnvInt("EVENT_BUS_MAX_RECEIVES", 3)
	cfg.CelebrityThreshold = getEnvInt("CELEBRITY_THRESHOLD", 100_000)
	cfg.FanoutBatchSize = getEnvInt("FANOUT_BATCH_SIZE", 1000)
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 10)
	cfg.TimelinePullWindow = getEnvDuration("TIMELINE_PULL_WINDOW", 24*time.Hour)
	cfg.TimelinePullLimit = getEnvInt("TIMELINE_PULL_LIMIT", 20)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MaxConnections = getEnvInt("MAX_CONNECTIONS", 1000)
	cfg.CORSAllowedOrigin = os.Getenv("CORS_ALLOWED_ORIGIN")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
