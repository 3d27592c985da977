package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"example.com/vitals/internal/api"
	"example.com/vitals/internal/auth"
	"example.com/vitals/internal/config"
	"example.com/vitals/internal/observability"
	"example.com/vitals/internal/outbox"
	"example.com/vitals/internal/persistence"
	"example.com/vitals/internal/persistence/postgres"
	"example.com/vitals/internal/pipeline"
	"example.com/vitals/internal/schedule"
	"example.com/vitals/internal/source"
	httptransport "example.com/vitals/internal/transport/http"
	"example.com/vitals/internal/vitals"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("failed to configure logger: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("invalid timezone: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var src source.Source
	if cfg.SourceURL != "" {
		src = source.NewHTTPSource(source.HTTPConfig{
			BaseURL:       cfg.SourceURL,
			Timeout:       cfg.SourceTimeout,
			RatePerSecond: cfg.SourceRatePerSecond,
			Burst:         cfg.SourceBurst,
			Logger:        logger,
		})
	} else {
		logger.Warn("SOURCE_URL not set, serving demo records from memory")
		src = source.NewDemoSource(time.Now(), loc)
	}

	var (
		history    api.HistoryStore
		recorder   vitals.SnapshotRecorder
		dispatcher *outbox.Dispatcher
	)
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		repo := postgres.NewRepository(pool)
		history = repo
		recorder = repo.Recorder(cfg.TenantID, cfg.UserID)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, outbox.WithLogger(logger))
		go dispatcher.Start(ctx)
	} else {
		logger.Warn("POSTGRES_URL not set, keeping snapshot history in memory")
		store := persistence.NewMemoryStore()
		history = store
		recorder = store.Recorder(cfg.TenantID, cfg.UserID)
	}

	coordinator := vitals.NewCoordinator(src,
		vitals.WithLogger(logger),
		vitals.WithLocation(loc),
		vitals.WithInterStepDelay(cfg.InterStepDelay),
		vitals.WithRecorder(recorder),
		vitals.WithPipelineOptions(
			pipeline.WithMaxAttempts(cfg.RetryMaxAttempts),
			pipeline.WithBaseDelay(cfg.RetryBaseDelay),
		),
	)

	if err := coordinator.Initialize(ctx); err != nil {
		logger.WithError(err).Error("session initialization failed, vitals will stay empty until permissions are re-requested")
	} else {
		go func() {
			outcome, err := coordinator.Fetch(ctx, false)
			entry := logger.WithField("outcome", outcome)
			if err != nil {
				entry.WithError(err).Warn("initial fetch failed")
				return
			}
			entry.Info("initial fetch finished")
		}()
	}

	rollover, err := schedule.NewRollover(cfg.RolloverSchedule, loc, coordinator, logger)
	if err != nil {
		logger.Fatalf("invalid rollover schedule: %v", err)
	}
	rollover.Start(ctx)

	handler := api.NewHandler(coordinator, history, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.SkipHealth, logger)

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(mux,
			httptransport.RequestLogger(logger),
			httptransport.CORS(cfg.CORSOrigin),
			authMiddleware.Wrap,
		))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), metricsMux)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.WithField("address", cfg.HTTPAddress).Info("vitals-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server error: %v", err)
		}
	}()
	go func() {
		logger.WithField("address", cfg.MetricsAddress).Info("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("metrics server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics shutdown failed")
	}

	rollover.Stop()
	if dispatcher != nil {
		dispatcher.Wait()
	}
}
