// Package app wires configuration, storage, cache, bus, services, and
// transport into the runnable process modes.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/rueidis"
	"golang.org/x/net/netutil"

	"github.com/darshjasani/Pulse/internal/auth"
	"github.com/darshjasani/Pulse/internal/bus"
	"github.com/darshjasani/Pulse/internal/cache"
	"github.com/darshjasani/Pulse/internal/config"
	"github.com/darshjasani/Pulse/internal/database"
	"github.com/darshjasani/Pulse/internal/follow"
	"github.com/darshjasani/Pulse/internal/handler"
	"github.com/darshjasani/Pulse/internal/logger"
	"github.com/darshjasani/Pulse/internal/metrics"
	"github.com/darshjasani/Pulse/internal/middleware"
	"github.com/darshjasani/Pulse/internal/post"
	"github.com/darshjasani/Pulse/internal/repository"
	"github.com/darshjasani/Pulse/internal/security"
	"github.com/darshjasani/Pulse/internal/system"
	"github.com/darshjasani/Pulse/internal/timeline"
	"github.com/darshjasani/Pulse/internal/worker/fanout"
)

// Init sets up structured logging and loads configuration from the
// environment. When w is non-nil log output goes there instead of
// stdout.
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Run is the application entry point. args is os.Args[1:].
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck skips full initialization; it only needs the port.
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newRedisClient connects a rueidis client from a redis:// URL.
func newRedisClient(url string) (rueidis.Client, error) {
	opt, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opt.DisableCache = true
	client, err := rueidis.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return client, nil
}

// runServe starts the HTTP API server, wiring all dependencies and
// shutting down gracefully on SIGINT/SIGTERM. An unreachable database
// at boot is an unrecoverable startup failure. So is a cache or bus
// that cannot be reached when its client is created, since creating the
// client connects; a bus consumer group that cannot be created is only
// logged. Once serving, reads degrade rather than fail when the cache or
// bus goes away.
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL, cfg.DBPoolSize, cfg.DBMaxOverflow)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	cacheClient, err := newRedisClient(cfg.CacheURL)
	if err != nil {
		return fmt.Errorf("failed to connect timeline cache: %w", err)
	}
	defer cacheClient.Close()

	busClient, err := newRedisClient(cfg.EventBusURL)
	if err != nil {
		return fmt.Errorf("failed to connect event bus: %w", err)
	}
	defer busClient.Close()

	userRepo := repository.NewPostgresUserRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	followRepo := repository.NewPostgresFollowRepo(db)

	timelineCache := cache.NewRedisTimelineCache(cacheClient, cfg.TimelineCap, slog.Default())
	eventBus, err := bus.NewRedisStreamBus(context.Background(), busClient, bus.Options{
		VisibilityTimeout: cfg.EventBusVisibilityTimeout,
		MaxReceives:       cfg.EventBusMaxReceives,
	}, slog.Default())
	if err != nil {
		// The bus being down must not block serving: publishes fail soft
		// and the pull/fallback paths still work. Log and continue.
		slog.Error("event bus unavailable at boot; publishes will fail soft",
			slog.String("error", err.Error()))
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	sanitizer := security.NewContentSanitizer()
	tokens := auth.NewTokenService(cfg.TokenSecret, cfg.TokenTTL)

	postService := post.NewService(postRepo, userRepo, eventBus, sanitizer, collector, slog.Default())
	timelineService := timeline.NewService(timelineCache, postRepo, followRepo, collector, slog.Default(), timeline.Options{
		PullWindow: cfg.TimelinePullWindow,
		PullLimit:  cfg.TimelinePullLimit,
	})
	followService := follow.NewService(followRepo, userRepo, timelineCache, cfg.CelebrityThreshold, slog.Default())
	systemService := system.NewService(db, timelineCache, eventBus, userRepo, postRepo, followRepo, slog.Default())

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     tokens,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		PostService:       postService,
		TimelineService:   timelineService,
		FollowService:     followService,
		UserLookup:        userRepo,
		SystemService:     systemService,
		Gatherer:          registry,
	})

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.ServerPort, err)
	}
	// Bound total concurrent connections like every other pool in the
	// system.
	ln = netutil.LimitListener(ln, cfg.MaxConnections)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker starts the fan-out worker pool and blocks until
// SIGINT/SIGTERM. Unlike serve, the worker cannot run without the bus,
// so an unreachable bus at boot is fatal here.
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL, cfg.DBPoolSize, cfg.DBMaxOverflow)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established (worker)")

	cacheClient, err := newRedisClient(cfg.CacheURL)
	if err != nil {
		return fmt.Errorf("failed to connect timeline cache: %w", err)
	}
	defer cacheClient.Close()

	busClient, err := newRedisClient(cfg.EventBusURL)
	if err != nil {
		return fmt.Errorf("failed to connect event bus: %w", err)
	}
	defer busClient.Close()

	eventBus, err := bus.NewRedisStreamBus(context.Background(), busClient, bus.Options{
		VisibilityTimeout: cfg.EventBusVisibilityTimeout,
		MaxReceives:       cfg.EventBusMaxReceives,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	userRepo := repository.NewPostgresUserRepo(db)
	followRepo := repository.NewPostgresFollowRepo(db)
	timelineCache := cache.NewRedisTimelineCache(cacheClient, cfg.TimelineCap, slog.Default())

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	worker := fanout.NewWorker(eventBus, timelineCache, userRepo, followRepo, collector, slog.Default(), fanout.Options{
		Concurrency:   cfg.WorkerConcurrency,
		FollowerChunk: cfg.FanoutBatchSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	if err := worker.Run(ctx); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate applies all pending database migrations.
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck probes the local server's health endpoint and exits
// non-zero when it is unreachable.
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/system/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// maskDatabaseURL hides credentials embedded in the database URL.
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
