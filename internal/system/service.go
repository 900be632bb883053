// Package system reports service health and operational counters over
// the JSON API. The Prometheus scrape surface lives in internal/metrics;
// these endpoints compute their numbers from the store and cache
// directly so they stay meaningful even with a fresh registry.
package system

import (
	"context"
	"log/slog"
	"time"

	"github.com/darshjasani/Pulse/internal/bus"
	"github.com/darshjasani/Pulse/internal/cache"
	"github.com/darshjasani/Pulse/internal/repository"
)

const (
	// StatusHealthy and StatusUnavailable are the per-subsystem states
	// reported by the health endpoint.
	StatusHealthy     = "healthy"
	StatusUnavailable = "unavailable"

	healthProbeTimeout = 2 * time.Second
)

// Pinger is the durable-store liveness probe; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health summarizes subsystem liveness.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
	Bus      string `json:"bus"`
}

// Metrics carries the human-facing counters.
type Metrics struct {
	TotalUsers     int64 `json:"total_users"`
	TotalPosts     int64 `json:"total_posts"`
	TotalFollows   int64 `json:"total_follows"`
	CelebrityCount int64 `json:"celebrity_count"`
	CacheAvailable bool  `json:"cache_available"`
}

// Service computes health and metrics snapshots.
type Service struct {
	db        Pinger
	timelines cache.TimelineCache
	eventBus  bus.EventBus
	users     repository.UserRepository
	posts     repository.PostRepository
	follows   repository.FollowRepository
	logger    *slog.Logger
}

// NewService constructs a system Service.
func NewService(
	db Pinger,
	timelines cache.TimelineCache,
	eventBus bus.EventBus,
	users repository.UserRepository,
	posts repository.PostRepository,
	follows repository.FollowRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:        db,
		timelines: timelines,
		eventBus:  eventBus,
		users:     users,
		posts:     posts,
		follows:   follows,
		logger:    logger,
	}
}

// Health probes each subsystem. It never returns an error: a degraded
// dependency is data, not a failure of the health endpoint itself.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Database: StatusHealthy, Cache: StatusHealthy, Bus: StatusHealthy}

	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()
	if err := s.db.PingContext(probeCtx); err != nil {
		s.logger.Error("database health probe failed", slog.String("error", err.Error()))
		h.Database = StatusUnavailable
	}
	if !s.timelines.Available(ctx) {
		h.Cache = StatusUnavailable
	}
	if !s.eventBus.Available(ctx) {
		h.Bus = StatusUnavailable
	}

	switch {
	case h.Database == StatusHealthy && h.Cache == StatusHealthy && h.Bus == StatusHealthy:
		h.Status = StatusHealthy
	default:
		// Reads survive a degraded cache or bus via the fallback paths,
		// so anything short of full health is "degraded", not "down".
		h.Status = "degraded"
	}
	return h
}

// Metrics reads the counters from the store. Store errors surface to the
// caller; unlike health, a metrics read without a database has nothing
// useful to report.
func (s *Service) Metrics(ctx context.Context) (*Metrics, error) {
	users, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.CountPosts(ctx)
	if err != nil {
		return nil, err
	}
	follows, err := s.follows.CountFollows(ctx)
	if err != nil {
		return nil, err
	}
	celebrities, err := s.users.CountCelebrities(ctx)
	if err != nil {
		return nil, err
	}
	return &Metrics{
		TotalUsers:     users,
		TotalPosts:     posts,
		TotalFollows:   follows,
		CelebrityCount: celebrities,
		CacheAvailable: s.timelines.Available(ctx),
	}, nil
}
