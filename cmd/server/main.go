// Package main is the entrypoint for the sketchforge queue server.
package main

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

	"github.com/kiranshivaraju/sketchforge/internal/ai"
	"github.com/kiranshivaraju/sketchforge/internal/api"
	"github.com/kiranshivaraju/sketchforge/internal/api/handler"
	mw "github.com/kiranshivaraju/sketchforge/internal/api/middleware"
	"github.com/kiranshivaraju/sketchforge/internal/cache"
	"github.com/kiranshivaraju/sketchforge/internal/config"
	"github.com/kiranshivaraju/sketchforge/internal/monitor"
	"github.com/kiranshivaraju/sketchforge/internal/processor"
	"github.com/kiranshivaraju/sketchforge/internal/queue"
	"github.com/kiranshivaraju/sketchforge/internal/status"
	"github.com/kiranshivaraju/sketchforge/internal/store"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)
	logger.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"status_store", cfg.Status.Store,
		"env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Wire queue, tracker, processors and router
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.queue.Start(ctx); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}

	// 3. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "queue_mode", a.queue.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

// app is the wired service. close releases everything newApp opened, in
// reverse order.
type app struct {
	queue   *queue.Queue
	tracker *status.Tracker
	router  http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	// Broker probe decides the backend once for the life of the process.
	client, err := queue.ProbeBroker(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("queue broker probe failed", "addr", cfg.Redis.Addr(), "error", err)
		client = nil
	} else {
		a.closers = append(a.closers, func() { client.Close() })
	}

	backend := queue.NewBackend(client, cfg.Queue, logger)
	q := queue.New(backend, queue.NewRegistry(), logger)
	a.queue = q

	st, err := newStore(ctx, cfg, logger, a)
	if err != nil {
		return nil, err
	}
	tracker := status.NewTracker(st, logger, status.WithQuotaLimits(cfg.Quota.DailyLimit, cfg.Quota.MonthlyLimit))
	a.tracker = tracker

	provider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	aiService := ai.NewService(provider, cfg.AI.Timeout, logger)
	logger.Info("AI provider initialized", "provider", aiService.Name())

	if err := processor.RegisterAll(q, processor.Deps{
		Tracker:  tracker,
		Provider: aiService,
		Mailer:   processor.LogMailer{Logger: logger},
		Gateway:  &processor.LogGateway{Logger: logger},
		Logger:   logger,
	}); err != nil {
		return nil, err
	}

	c := newCache(client)
	mon := monitor.New(q, logger,
		monitor.WithCache(c, monitor.DefaultSnapshotTTL),
		monitor.WithSketchReader(tracker))
	workflow := processor.NewSketchWorkflow(tracker, queue.NewProducer(q), logger)

	trusted, err := mw.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse TRUSTED_PROXIES: %w", err)
	}

	admin := mw.NewAdminAuth(cfg.Auth.AdminTokenHash)
	if !admin.Enabled() {
		logger.Warn("ADMIN_TOKEN_HASH not set, destructive routes are unprotected")
	}

	a.router = api.NewRouter(api.Dependencies{
		Logger:    logger,
		Admin:     admin,
		RateLimit: mw.NewRateLimit(c, cfg.Server.RateLimitPerMinute, trusted),

		HealthHandler:    handler.NewHealthHandler(mon, logger),
		DashboardHandler: handler.NewDashboardHandler(mon, logger),
		AllStatsHandler:  handler.NewAllStatsHandler(q, logger),
		StatsHandler:     handler.NewStatsHandler(q, logger),
		ClearHandler:     handler.NewClearHandler(q, logger),

		SubmitSketchHandler: handler.NewSubmitSketchHandler(workflow, logger),
		SketchStatsHandler:  handler.NewSketchStatsHandler(tracker, logger),
		SketchHealthHandler: handler.NewSketchHealthHandler(tracker, logger),
		SketchJobHandler:    handler.NewSketchJobHandler(tracker, logger),
		JobsByUserHandler:   handler.NewSketchJobsHandler(tracker, handler.ByUser, logger),
		JobsByStoryHandler:  handler.NewSketchJobsHandler(tracker, handler.ByStory, logger),
		JobsByStatusHandler: handler.NewSketchJobsHandler(tracker, handler.ByStatus, logger),
		QuotaHandler:        handler.NewQuotaHandler(tracker, logger),
		CleanupHandler:      handler.NewCleanupHandler(tracker, logger),
	})

	// The queue drains before the store and broker it depends on are closed.
	a.closers = append(a.closers, func() {
		if err := q.Close(); err != nil {
			logger.Error("queue close failed", "error", err)
		}
	})
	ok = true
	return a, nil
}

// newStore opens the sketch job store selected by STATUS_STORE.
func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, a *app) (store.Store, error) {
	if cfg.Status.Store != "postgres" {
		logger.Info("using in-memory status store")
		return store.NewMemoryStore(), nil
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	logger.Info("database connected")

	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied")
	return store.NewPostgresStore(pool), nil
}

// newCache shares the broker connection when there is one.
func newCache(client *redis.Client) cache.Cache {
	if client == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCache(client)
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
