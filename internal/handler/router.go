package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/darshjasani/Pulse/internal/metrics"
	"github.com/darshjasani/Pulse/internal/middleware"
)

// RouterDeps bundles everything NewRouter wires together.
type RouterDeps struct {
	Logger            *slog.Logger
	TokenVerifier     middleware.TokenVerifier
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string

	PostService     PostServiceInterface
	TimelineService TimelineServiceInterface
	FollowService   FollowServiceInterface
	UserLookup      UserLookup
	SystemService   SystemServiceInterface

	// Gatherer feeds the Prometheus scrape endpoint; nil disables it.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the full API router.
//
// Middleware order, outermost first:
//
//	CORS → Recovery → Logging → [Auth → RateLimit on protected routes]
//
// The system endpoints and the Prometheus scrape stay outside the auth
// group so probes and scrapers need no credential.
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	postHandler := NewPostHandler(deps.PostService)
	timelineHandler := NewTimelineHandler(deps.TimelineService)
	userHandler := NewUserHandler(deps.FollowService, deps.UserLookup)
	systemHandler := NewSystemHandler(deps.SystemService)

	// --- unauthenticated routes ---

	r.Route("/system", func(r chi.Router) {
		r.Get("/health", systemHandler.Health)
		r.Get("/metrics", systemHandler.Metrics)
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- authenticated routes ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/posts", func(r chi.Router) {
			r.Post("/", postHandler.CreatePost)
			r.Get("/{post_id}", postHandler.GetPost)
		})

		r.Get("/timeline", timelineHandler.GetTimeline)

		r.Route("/users", func(r chi.Router) {
			r.Post("/follow/{user_id}", userHandler.Follow)
			r.Delete("/follow/{user_id}", userHandler.Unfollow)

			r.Route("/{user_id}", func(r chi.Router) {
				r.Get("/", userHandler.GetProfile)
				r.Get("/followers", userHandler.ListFollowers)
				r.Get("/following", userHandler.ListFollowing)
				r.Get("/posts", postHandler.ListUserPosts)
			})
		})
	})

	return r
}
