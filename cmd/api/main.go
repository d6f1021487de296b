package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smartcare-health/smartqueue/internal/adapters/cache"
	"github.com/smartcare-health/smartqueue/internal/adapters/database"
	"github.com/smartcare-health/smartqueue/internal/adapters/events"
	"github.com/smartcare-health/smartqueue/internal/api/handlers"
	"github.com/smartcare-health/smartqueue/internal/api/routes"
	"github.com/smartcare-health/smartqueue/internal/application/services"
	"github.com/smartcare-health/smartqueue/internal/domain/providers"
	"github.com/smartcare-health/smartqueue/internal/domain/repositories"
	"github.com/smartcare-health/smartqueue/internal/infrastructure/clients/postgres"
	"github.com/smartcare-health/smartqueue/internal/infrastructure/clients/redis"
	"github.com/smartcare-health/smartqueue/internal/infrastructure/observability"
	"github.com/smartcare-health/smartqueue/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// OpenTelemetry is optional; the service runs without it.
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	// Postgres persists the audit trail. The log keeps a full in-memory
	// copy, so the service stays up when the database is unreachable.
	var activityRepo repositories.ActivityRepository
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Warn().Err(err).Msg("PostgreSQL unavailable, audit trail is in-memory only")
	} else {
		defer pgClient.Close()
		activityRepo = database.NewActivityAdapter(pgClient)
		log.Info().Msg("PostgreSQL client initialized")
	}

	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, caching and live updates disabled")
	} else {
		defer redisClient.Close()
		cacheProvider = cache.NewRedisAdapter(redisClient)
		eventBus = events.NewRedisEventBus(redisClient)
		log.Info().Msg("Redis client initialized")
	}

	var invalidation *services.CacheInvalidationService
	if cacheProvider != nil && eventBus != nil {
		invalidation = services.NewCacheInvalidationService(cacheProvider, eventBus)
		if err := invalidation.Start(); err != nil {
			log.Warn().Err(err).Msg("failed to start cache invalidation service")
			invalidation = nil
		}
	}

	// Services
	activityLog := services.NewActivityLog(activityRepo, eventBus)
	registry := services.NewRegistryService(cfg.Registry)
	triage := services.NewTriageService(cfg.Triage)
	estimator := services.NewWaitEstimator()

	queueService := services.NewQueueService(
		cfg,
		registry,
		triage,
		estimator,
		activityLog,
		cacheProvider,
		metrics,
	)

	pool := services.NewSparePool()
	allocator := services.NewAllocatorService(
		cfg.Allocator,
		queueService,
		pool,
		activityLog,
		metrics,
	)

	// Critical arrivals trigger an immediate protection pass for the
	// affected department instead of waiting for the next rescore tick.
	queueService.SetCriticalHandler(allocator.OnCriticalArrival)

	rescoreLoop := services.NewRescoreLoop(queueService, allocator, cfg.Queue.RescoreInterval)
	go rescoreLoop.Run(ctx)
	log.Info().Dur("interval", cfg.Queue.RescoreInterval).Msg("rescore loop started")

	// Handlers and router
	queueHandler := handlers.NewQueueHandler(queueService, allocator)
	allocationHandler := handlers.NewAllocationHandler(allocator)
	dashboardHandler := handlers.NewDashboardHandler(queueService, activityLog)

	router := routes.NewRouter(
		queueHandler,
		allocationHandler,
		dashboardHandler,
		metrics,
	)
	handler := router.SetupRoutes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	if invalidation != nil {
		invalidation.Stop()
	}

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("error closing event bus")
		}
	}

	log.Info().Msg("server stopped")
}
