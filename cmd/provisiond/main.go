// Command provisiond runs the storefront provisioning service: an HTTP
// API in front of the staged pipeline, with pluggable persistence and
// lifecycle hooks for audit, webhooks, metrics and live event streams.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/storeforge/provision/api"
	"github.com/storeforge/provision/audit"
	"github.com/storeforge/provision/hook"
	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/middleware"
	"github.com/storeforge/provision/observability"
	"github.com/storeforge/provision/orchestrator"
	"github.com/storeforge/provision/runner"
	"github.com/storeforge/provision/step"
	"github.com/storeforge/provision/steps"
	bunstore "github.com/storeforge/provision/store/bun"
	"github.com/storeforge/provision/store/memory"
	mongostore "github.com/storeforge/provision/store/mongo"
	redisstore "github.com/storeforge/provision/store/redis"
	"github.com/storeforge/provision/stream"
	"github.com/storeforge/provision/webhook"
)

func main() {
	loadDotEnv()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("backend", cfg.Store), slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := store.Migrate(ctx); err != nil {
		logger.Error("migrate store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := store.Ping(ctx); err != nil {
		logger.Error("ping store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	reg := step.NewRegistry()
	if err := steps.RegisterAll(reg); err != nil {
		logger.Error("register steps", slog.String("error", err.Error()))
		os.Exit(1)
	}

	broker := stream.NewBroker(logger)
	hooks := hook.NewRegistry(logger)
	hooks.Register(broker)
	hooks.Register(audit.New(slogRecorder(logger)))
	hooks.Register(observability.NewMetricsHook())
	if cfg.WebhookURL != "" {
		hooks.Register(webhook.New(cfg.WebhookURL))
		logger.Info("webhook notifications enabled", slog.String("endpoint", cfg.WebhookURL))
	}

	orch := orchestrator.New(store, reg, hooks, logger,
		middleware.Recover(logger),
		middleware.Logging(logger),
		middleware.Timeout(cfg.StageTimeout),
		middleware.Metrics(),
		middleware.Tracing(),
	)
	run := runner.New(orch, store, logger)

	if cfg.Resume {
		if err := run.ResumeAll(ctx); err != nil {
			logger.Error("resume jobs", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	srv := &api.Server{Orch: orch, Runner: run, Store: store, Logger: logger, Stream: broker}
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("provisiond listening",
			slog.String("addr", cfg.Addr),
			slog.String("store", cfg.Store),
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Stop accepting requests first, then drain in-flight pipelines.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", slog.String("error", err.Error()))
	}
	if err := run.Stop(shutdownCtx); err != nil {
		logger.Warn("runner drain", slog.String("error", err.Error()))
	}
	hooks.EmitShutdown(shutdownCtx)
	closeStore(shutdownCtx)

	logger.Info("provisiond stopped")
}

// openStore builds the persistence backend named by the configuration
// and returns it with a close function for connection teardown.
func openStore(cfg Config, logger *slog.Logger) (job.Store, func(context.Context), error) {
	switch cfg.Store {
	case "memory":
		s := memory.New()
		return s, func(context.Context) { _ = s.Close() }, nil

	case "postgres":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.PostgresDSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		s := bunstore.New(db, bunstore.WithLogger(logger))
		return s, func(context.Context) { _ = s.Close() }, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		s := redisstore.New(client, redisstore.WithLogger(logger))
		return s, func(context.Context) { _ = client.Close() }, nil

	case "mongo":
		client, err := mongod.Connect(mongoopts.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, err
		}
		s := mongostore.New(client.Database(cfg.MongoDB), mongostore.WithLogger(logger))
		return s, func(ctx context.Context) { _ = client.Disconnect(ctx) }, nil

	default:
		return nil, nil, errors.New("unknown store backend: " + cfg.Store)
	}
}

// slogRecorder writes audit events to the structured log. Deployments
// with a dedicated audit sink swap in their own Recorder.
func slogRecorder(logger *slog.Logger) audit.Recorder {
	return audit.RecorderFunc(func(_ context.Context, event *audit.Event) error {
		logger.Info("audit event",
			slog.String("action", event.Action),
			slog.String("resource", event.Resource),
			slog.String("resource_id", event.ResourceID),
			slog.String("outcome", event.Outcome),
			slog.String("severity", event.Severity),
		)
		return nil
	})
}

// loadDotEnv loads the nearest .env file, walking up a few directories
// so the daemon can be started from a subdirectory during development.
func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
