package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/duynhne/account-dashboard/config"
	database "github.com/duynhne/account-dashboard/internal/core"
	"github.com/duynhne/account-dashboard/internal/core/domain"
	"github.com/duynhne/account-dashboard/internal/core/identity"
	"github.com/duynhne/account-dashboard/internal/core/repository"
	logicv1 "github.com/duynhne/account-dashboard/internal/logic/v1"
	webv1 "github.com/duynhne/account-dashboard/internal/web/v1"
	"github.com/duynhne/account-dashboard/middleware"
	"github.com/duynhne/pkg/logger/zerolog"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	// Initialize Zerolog with LOG_LEVEL from config
	zerolog.Setup(cfg.Logging.Level)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("port", cfg.Service.Port).
		Str("session_store", cfg.Session.Store).
		Msg("Service starting")

	// Initialize OpenTelemetry tracing
	var tp interface{ Shutdown(context.Context) error }
	if cfg.Tracing.Enabled {
		provider, err := middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			tp = provider
			log.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	} else {
		log.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	// Initialize Pyroscope profiling
	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize profiling")
		} else {
			log.Info().
				Str("endpoint", cfg.Profiling.Endpoint).
				Msg("Profiling initialized")
			defer middleware.StopProfiling()
		}
	} else {
		log.Info().Msg("Profiling disabled (PROFILING_ENABLED=false)")
	}

	// Session storage. Postgres also backs the principal login log.
	var (
		sessions   domain.SessionRepository
		opts       []identity.Option
		closeStore func()
	)
	switch cfg.Session.Store {
	case config.StorePostgres:
		pool, err := database.Connect(context.Background(), cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		sessions = repository.NewSessionRepository(pool)
		opts = append(opts, identity.WithPrincipals(repository.NewPrincipalRepository(pool)))
		closeStore = pool.Close
		log.Info().Msg("Database connection pool established")
	default:
		rdb, err := database.ConnectRedis(context.Background(), cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		sessions = repository.NewRedisSessionRepository(rdb, cfg.Redis.KeyPrefix)
		closeStore = func() { _ = rdb.Close() }
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis client established")
	}
	defer closeStore()

	// Identity provider discovery
	provider, err := identity.Discover(context.Background(), cfg.OIDC.Authority, cfg.OIDC.ClientID)
	if err != nil {
		log.Fatal().Err(err).Str("authority", cfg.OIDC.Authority).Msg("Failed to discover identity provider")
	}
	log.Info().
		Str("authority", cfg.OIDC.Authority).
		Bool("end_session", provider.EndSessionURL != "").
		Msg("Identity provider discovered")

	tokens, err := identity.NewManager(cfg, provider, sessions, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token manager")
	}
	resolver := logicv1.NewSessionResolver(tokens, cfg.OIDC)
	handler := webv1.NewHandler(resolver, tokens)

	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(webv1.Templates())

	var isShuttingDown atomic.Bool

	// Tracing middleware
	r.Use(middleware.TracingMiddleware(cfg.Service.Name))

	// Logging middleware
	r.Use(middleware.LoggingMiddleware())

	// Prometheus middleware
	r.Use(middleware.PrometheusMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness check
	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Dashboard pages
	handler.RegisterRoutes(r.Group("/"))

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Service.Port).Msg("Starting account dashboard")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	// Fail readiness first and wait for propagation.
	isShuttingDown.Store(true)
	drainDelay := cfg.GetReadinessDrainDelayDuration()
	if drainDelay > 0 {
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay started")
		time.Sleep(drainDelay)
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay completed")
	}

	// Shutdown context with configurable timeout
	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server...")

	// 1. Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		log.Info().Msg("HTTP server shutdown complete")
	}

	// 2. Shutdown tracer
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown error")
		} else {
			log.Info().Msg("Tracer shutdown complete")
		}
	}

	// Session store is closed by the deferred closeStore.
	log.Info().Msg("Graceful shutdown complete")
}
