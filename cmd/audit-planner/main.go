// cmd/audit-planner/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"audit-planner/internal/api"
	"audit-planner/internal/api/health"
	awsclients "audit-planner/internal/common/aws"
	"audit-planner/internal/common/config"
	"audit-planner/internal/common/database"
	"audit-planner/internal/common/lock"
	"audit-planner/internal/common/logger"
	"audit-planner/internal/common/observability"
	"audit-planner/internal/journal"
	"audit-planner/internal/notify"
	"audit-planner/internal/planning/cascade"
	"audit-planner/internal/planning/optimizer"
	"audit-planner/internal/repository"
	"audit-planner/internal/repository/memory"
	"audit-planner/internal/repository/postgres"
	"audit-planner/internal/services"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting audit planner...",
		zap.String("environment", cfg.App.Environment),
		zap.String("driver", cfg.Database.Driver),
	)

	obs := observability.New(observability.Options{
		ServiceName:    cfg.Observability.ServiceName,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
	}, log)

	ctx := context.Background()
	ready := health.NewHandler(log)

	// --- Storage ---
	var uow repository.UnitOfWork
	switch cfg.Database.Driver {
	case config.DriverMemory:
		zapLog.Warn("Using in-memory storage; data is lost on restart")
		uow = memory.New()
	default:
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")

		if cfg.Database.Postgres.AutoMigrate {
			applied, err := pg.Migrate(ctx)
			if err != nil {
				zapLog.Fatal("schema migration failed", zap.Error(err))
			}
			zapLog.Info("Schema up to date", zap.Strings("applied", applied))
		}
		ready.Require("postgres", pg.Ping)
		uow = postgres.NewUnitOfWork(pg)
	}

	// --- Leases ---
	lockOpts := lock.Options{
		TTL:    config.GetDuration(cfg.Planning.LockTTL),
		Wait:   config.GetDuration(cfg.Planning.LockWait),
		Prefix: cfg.Planning.LockPrefix,
	}
	var locker lock.Locker
	if cfg.Database.Redis.Enabled {
		redis := database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error {
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
		ready.Require("redis", redis.Ping)
		locker = lock.NewRedisLocker(redis.Client, lockOpts)
	} else {
		zapLog.Warn("Redis disabled; planner leases are process-local")
		locker = lock.NewLocalLocker(lockOpts)
	}

	rec := newJournal(ctx, cfg, log, zapLog, ready)
	notifier := newNotifier(ctx, cfg.Notifications, log, zapLog)

	opt := optimizer.NewClient(optimizer.Config{
		BaseURL: cfg.Optimizer.BaseURL,
		Path:    cfg.Optimizer.Path,
		APIKey:  cfg.Optimizer.APIKey,
		Timeout: config.GetDuration(cfg.Optimizer.Timeout),
	}, log)
	ready.Inform("optimizer", opt.Health)

	// --- Services ---
	ctrl := cascade.New(cascade.Deps{
		UnitOfWork:    uow,
		Optimizer:     opt,
		Locker:        locker,
		Journal:       rec,
		Notifier:      notifier,
		Observability: obs,
	}, cascade.Policy{
		CandidatePolicy:    cfg.Planning.CandidatePolicy,
		OnOptimizerFailure: cfg.Planning.OnOptimizerFailure,
	}, log)

	router := api.NewRouter(api.Deps{
		Plans: services.NewPlanService(services.PlanDeps{
			UnitOfWork:    uow,
			Optimizer:     opt,
			Locker:        locker,
			Journal:       rec,
			Observability: obs,
		}, log),
		Auditors:           services.NewAuditorService(uow, ctrl, log),
		Stores:             services.NewStoreService(uow, rec, notifier, log),
		Health:             ready,
		BasePath:           cfg.Server.BasePath,
		AllowedOrigins:     cfg.Server.CORSAllowedOrigins,
		ExposeErrorDetails: cfg.Server.ExposeErrorDetails,
		Logger:             log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", srv.Addr), zap.String("basePath", cfg.Server.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	timeout := config.GetDuration(cfg.Server.ShutdownTimeout)
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	obs.Shutdown(shutdownCtx)

	zapLog.Info("Audit planner stopped gracefully")
}

func newJournal(ctx context.Context, cfg *config.Config, log logger.Logger, zapLog *zap.Logger, ready *health.Handler) journal.Recorder {
	if !cfg.Journal.Enabled {
		return journal.NewLogRecorder(log)
	}

	var esClient *database.ElasticsearchClient
	err := retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully", zap.String("index", cfg.Journal.Index))
	ready.Inform("elasticsearch", esClient.Ping)
	return journal.NewElasticsearchRecorder(esClient.Client, cfg.Journal.Index)
}

func newNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger, zapLog *zap.Logger) notify.Notifier {
	switch cfg.Channel {
	case config.ChannelSNS:
		client, err := awsclients.NewSNSClient(ctx, cfg.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		return notify.NewSNSNotifier(client, cfg.TopicARN, log)
	case config.ChannelSES:
		client, err := awsclients.NewSESClient(ctx, cfg.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		return notify.NewSESNotifier(client, cfg.FromEmail, cfg.Recipients, log)
	default:
		return notify.Nop{}
	}
}
