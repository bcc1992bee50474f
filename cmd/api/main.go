package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lessonflow/internal/api"
	"lessonflow/internal/config"
	"lessonflow/internal/database"
	"lessonflow/internal/domain"
	"lessonflow/internal/events"
	"lessonflow/internal/export"
	"lessonflow/internal/logging"
	"lessonflow/internal/metrics"
	"lessonflow/internal/repository"
	"lessonflow/internal/service"
	"lessonflow/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	reservationRepo, err := newReservationRepository(cfg, db, redisClient)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()
	retry := worker.RetryPolicy{
		MaxRetries:   cfg.Booking.CommitRetries,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
	}

	reservations := service.NewReservationService(reservationRepo, bus, cfg.Booking.ReservationTTL(), &logger)
	commits := service.NewCommitService(db, reservations, bus, retry, &logger)
	availability := service.NewAvailabilityService(db, reservations, cfg.Availability)
	flows := service.NewFlowService(newSessionRepository(cfg, redisClient, &logger), reservations, commits, availability, &logger)

	startWorkers(ctx, cfg, db, redisClient, bus, reservations, &logger)
	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Flows:        flows,
		Reservations: reservations,
		Availability: availability,
		Parents:      db,
		Exporter:     export.NewBookingExporter(db, cfg.Exports.Path, &logger),
		Ready:        db.PingContext,
	}, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func newReservationRepository(cfg *config.Config, db *database.DB, redisClient *redis.Client) (domain.ReservationRepository, error) {
	switch cfg.Booking.ReservationBackend {
	case config.ReservationBackendRedis:
		if redisClient == nil {
			return nil, errors.New("reservation backend redis requires a reachable redis")
		}
		return repository.NewRedisReservationRepository(redisClient), nil
	case config.ReservationBackendMemory:
		return repository.NewMemoryReservationRepository(), nil
	default:
		return db, nil
	}
}

// newSessionRepository prefers redis and falls back to process memory while
// redis is unavailable.
func newSessionRepository(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SessionRepository {
	memory := repository.NewMemorySessionRepository(cfg.Booking.SessionTTL())
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisSessionRepository(redisClient, cfg.Booking.SessionTTL())
	return repository.NewFailoverSessionRepository(primary, memory, logger)
}

func startWorkers(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	bus *events.EventBus,
	reservations *service.ReservationService,
	logger *zerolog.Logger,
) {
	sweeper := worker.NewReservationSweeper(reservations, cfg.Booking.SweepInterval(), logger)
	go sweeper.Start(ctx)

	if redisClient != nil {
		handoff := worker.NewHandoffPublisher(redisClient, worker.RetryPolicy{}, logger)
		bus.Subscribe(events.EventPaymentRequested, handoff.Handle)
		go handoff.Start(ctx)
	} else {
		bus.Subscribe(events.EventPaymentRequested, func(event *events.Event) error {
			logger.Warn().RawJSON("payload", event.Payload).Msg("payment hand-off not forwarded: redis is not configured")
			return nil
		})
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db, cfg.Backup, logger)
		go backup.Start(ctx)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Str("reservation_backend", cfg.Booking.ReservationBackend).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
