package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"money_transfer/internal/api"
	"money_transfer/internal/config"
	"money_transfer/internal/processor"
	"money_transfer/internal/repository"
	"money_transfer/internal/repository/memory"
	"money_transfer/internal/repository/postgres"
	"money_transfer/internal/scheduler"
	"money_transfer/internal/service"
	"money_transfer/pkg/auth"
	"money_transfer/pkg/crypto"
	"money_transfer/pkg/lock"
	"money_transfer/pkg/metrics"
	"money_transfer/pkg/rabbitmq"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type closer func()

func runServe(cfg config.Config) error {
	logger := setupLogger(cfg)
	logger.Info("Starting application",
		slog.String("name", appName),
		slog.String("storage", cfg.StorageDriver))

	ctx := context.Background()
	var cleanups []closer
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	store, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, store.Close)

	locker, closeLocker, err := setupLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeLocker)

	publisher, closePublisher := setupPublisher(cfg, logger)
	cleanups = append(cleanups, closePublisher)

	metricsCollector := metrics.NewMetricsCollector(logger)
	signer := crypto.NewSigner(cfg.SigningSecret, logger)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL())

	events := service.NewEventService(publisher, signer, metricsCollector,
		cfg.TransferEventExchange, cfg.EventWorkers, logger)

	transfers := processor.NewTransferProcessor(store,
		processor.NewFailureLogger(store, cfg.FailureLogTimeout(), logger),
		locker,
		processor.WithLogger(logger),
		processor.WithMetrics(metricsCollector),
		processor.WithEventSink(events),
		processor.WithMaxAttempts(cfg.TransferMaxAttempts))
	history := processor.NewHistoryService(store.Transactions(), logger)
	accounts := service.NewAccountService(store, nil, logger)
	authService := service.NewAuthService(store, accounts, issuer, nil, logger)

	if err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	jobs := scheduler.NewScheduler(store.Accounts(), metricsCollector, cfg.BalanceSnapshotSchedule, logger,
		scheduler.WithAccountSeriesLimit(cfg.BalanceSeriesLimit))
	if err := jobs.Start(); err != nil {
		return err
	}

	handler := api.NewAPIHandler(transfers, history, accounts, authService, signer, logger)
	handler.RequireSignature(cfg.RequireSignature)
	router := api.NewRouter(handler, api.RouterOptions{
		Issuer:         issuer,
		Metrics:        metricsCollector,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
	})

	metricsCollector.StartMetricsServer(":" + cfg.MetricsPort)
	httpServer := startHTTPServer(":"+cfg.ServerPort, router, logger)

	waitForShutdown(logger, httpServer, metricsCollector, events, jobs)
	logger.Info("Application shutdown complete")
	return nil
}

func setupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func setupStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.StorageDriver != config.DriverPostgres {
		logger.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store, err := postgres.NewStore(connectCtx, cfg.DatabaseURL, cfg.DatabaseMaxConns, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(connectCtx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// setupLocker uses Redis when configured so that several instances share the
// account locks. A single instance falls back to the in-process locker.
func setupLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (processor.Locker, closer, error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, using in-process account locks")
		return processor.NewMemoryLocker(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info("Using Redis account locks", slog.String("prefix", cfg.LockPrefix))
	return lock.NewRedisLocker(client, cfg.LockPrefix, cfg.LockTTL(), logger), func() { _ = client.Close() }, nil
}

func setupPublisher(cfg config.Config, logger *slog.Logger) (service.Publisher, closer) {
	if cfg.RabbitMQURL == "" {
		logger.Info("RABBITMQ_URL not set, transfer events are only logged")
		p := rabbitmq.NewFallbackProducer(logger)
		return p, p.Close
	}

	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, transfer events are only logged", slog.String("error", err.Error()))
		p := rabbitmq.NewFallbackProducer(logger)
		return p, p.Close
	}
	return producer, producer.Close
}

func startHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(
	logger *slog.Logger,
	httpServer *http.Server,
	metricsCollector *metrics.MetricsCollector,
	events *service.EventService,
	jobs *scheduler.Scheduler,
) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}

	select {
	case <-jobs.Stop().Done():
	case <-ctx.Done():
		logger.Warn("Scheduler did not stop in time")
	}

	if err := events.Shutdown(ctx); err != nil {
		logger.Error("Event service shutdown failed", slog.String("error", err.Error()))
	}

	if err := metricsCollector.Shutdown(ctx); err != nil {
		logger.Error("Metrics server shutdown failed", slog.String("error", err.Error()))
	}
}
