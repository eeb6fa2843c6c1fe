// Package main is the entry point of the Attendify service.
//
// The process owns the whole attendance engine: course and session storage,
// the state orchestrator behind the HTTP API, the threshold watcher that
// sends below-threshold warnings, and the periodic dashboard refresh.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/attendify/attendify/config"
	"github.com/attendify/attendify/internal/application/scheduling"
	"github.com/attendify/attendify/internal/application/tracker"
	"github.com/attendify/attendify/internal/application/watcher"
	"github.com/attendify/attendify/internal/domain/attendance"
	"github.com/attendify/attendify/internal/infrastructure/external/telegram"
	"github.com/attendify/attendify/internal/infrastructure/messaging"
	"github.com/attendify/attendify/internal/infrastructure/persistence/memory"
	"github.com/attendify/attendify/internal/infrastructure/persistence/postgres"
	"github.com/attendify/attendify/internal/infrastructure/persistence/redis"
	"github.com/attendify/attendify/internal/infrastructure/scheduler"
	"github.com/attendify/attendify/internal/infrastructure/scheduler/jobs"
	"github.com/attendify/attendify/internal/infrastructure/service"
	httpserver "github.com/attendify/attendify/internal/interface/http"
	"github.com/attendify/attendify/internal/interface/http/handlers"
	"github.com/attendify/attendify/pkg/circuitbreaker"
	"github.com/attendify/attendify/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	slog.SetDefault(log)
	log.Info("starting Attendify",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE (PostgreSQL, or in-memory when no database is configured)
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	var store attendance.Store
	if cfg.Database.URL != "" {
		log.Info("connecting to database...")
		dbOptions := postgres.DefaultOptions()
		dbOptions.QueryTimeout = cfg.Database.QueryTimeout
		dbOptions.Logger = log
		dbConn, err := postgres.Connect(ctx, cfg.Database.URL, dbOptions)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			dbConn.Close()
		}()

		if cfg.Database.MigrateOnStart {
			log.Info("running database migrations...")
			if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		store = postgres.NewStore(dbConn)
		health.AddCheck("postgres", handlers.NewPingCheck(dbConn))
		log.Info("database connection established")
	} else {
		log.Warn("DATABASE_URL is not set, using in-memory store")
		store = memory.NewStore()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if cfg.Redis.Enabled {
		log.Info("connecting to Redis...")
		cache, err = redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   3,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("failed to connect to Redis, continuing without it", "error", err)
			cache = nil
		} else {
			defer cache.Close()
			health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultConfig()
	busConfig.Logger = log
	if cache != nil {
		busConfig.Mirror = cache
		busConfig.Channel = cfg.Redis.EventsChannel
	}
	bus := messaging.New(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = bus.Close()
	}()

	if err := messaging.SubscribeAuditLog(bus, log.With("component", "audit")); err != nil {
		return fmt.Errorf("failed to subscribe audit log: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. STATE ORCHESTRATOR
	// ─────────────────────────────────────────────────────────────────────────
	ids := service.NewIDGenerator()
	sessionScheduler := scheduling.NewScheduler(store, ids, cfg.App.Location)
	attendanceTracker := tracker.New(store, sessionScheduler, ids, tracker.Config{
		TransientErrorDelay: cfg.Tracker.TransientErrorDelay,
		Events:              bus,
		Logger:              log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. THRESHOLD WATCHER
	// ─────────────────────────────────────────────────────────────────────────
	notifier := setupNotifier(cfg, cache, log)
	thresholdWatcher := watcher.New(notifier, watcher.Config{
		Events:        bus,
		Logger:        log,
		NotifyTimeout: cfg.Tracker.NotifyTimeout,
	})

	watchCtx, stopWatcher := context.WithCancel(ctx)
	defer stopWatcher()
	go thresholdWatcher.Run(watchCtx, attendanceTracker.Dashboard())

	// ─────────────────────────────────────────────────────────────────────────
	// 8. PERIODIC JOBS
	// ─────────────────────────────────────────────────────────────────────────
	jobScheduler := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Timezone: cfg.App.Location,
	})
	if cfg.Scheduler.Enabled {
		if err := registerJobs(cfg, jobScheduler, attendanceTracker, log); err != nil {
			return fmt.Errorf("failed to register jobs: %w", err)
		}
		if err := jobScheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.APIKeyHash = cfg.HTTP.APIKeyHash
	httpConfig.Version = cfg.App.Version
	if cfg.IsDevelopment() {
		httpConfig.Mode = "debug"
	}

	server, err := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Tracker: attendanceTracker,
		Health:  health,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}
	serverErrCh := server.StartAsync()

	// First snapshot, so the dashboard and the watcher start from real data.
	if _, err := attendanceTracker.RefreshDashboard(ctx); err != nil {
		log.Warn("initial dashboard refresh failed", "error", err)
	}

	log.Info("Attendify is running", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErrCh:
		if err != nil {
			runErr = fmt.Errorf("http server failed: %w", err)
			log.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}
	if jobScheduler.IsRunning() {
		if err := jobScheduler.Stop(); err != nil {
			log.Error("scheduler stop failed", "error", err)
		}
	}
	stopWatcher()

	log.Info("Attendify stopped")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// SETUP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func setupLogger(cfg *config.Config) *slog.Logger {
	return logger.New(logger.Options{
		Level:     cfg.Observability.LogLevel,
		Format:    logger.Format(cfg.Observability.LogFormat),
		Output:    os.Stdout,
		AddSource: cfg.App.Debug,
	}).With("app", cfg.App.Name)
}

// setupNotifier returns the Telegram notifier when a bot is configured,
// otherwise a notifier that only logs.
func setupNotifier(cfg *config.Config, cache *redis.Cache, log *slog.Logger) attendance.Notifier {
	if cfg.Telegram.Token == "" {
		log.Info("TELEGRAM_BOT_TOKEN is not set, warnings go to the log only")
		return service.NewLogNotifier(log)
	}

	clientConfig := telegram.DefaultClientConfig(cfg.Telegram.Token)
	clientConfig.Timeout = cfg.Telegram.RequestTimeout
	clientConfig.RetryAttempts = cfg.Telegram.RetryAttempts
	clientConfig.RetryDelay = cfg.Telegram.RetryDelay
	clientConfig.Logger = log
	clientConfig.Debug = cfg.App.Debug

	notifierConfig := service.TelegramNotifierConfig{
		ChatID: cfg.Telegram.ChatID,
		Breaker: circuitbreaker.NotifierBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
		Logger: log,
	}
	if cache != nil {
		notifierConfig.Throttle = redis.NewNotificationThrottle(cache, cfg.Redis.NotificationCooldown)
	}

	return service.NewTelegramNotifier(telegram.NewClient(clientConfig), notifierConfig)
}

// registerJobs schedules the periodic dashboard refresh and, when enabled,
// a refresh right after local midnight so day-bound summaries roll over.
func registerJobs(cfg *config.Config, s *scheduler.Scheduler, refresher jobs.DashboardRefresher, log *slog.Logger) error {
	refresh := jobs.NewRefreshDashboardJob(
		"refresh_dashboard",
		"Recompute every course summary",
		refresher,
		log,
	)
	if err := s.Register(refresh, scheduler.NewIntervalSchedule(cfg.Scheduler.RefreshInterval)); err != nil {
		return err
	}

	if !cfg.Scheduler.DayRolloverRefresh {
		return nil
	}

	rollover := jobs.NewRefreshDashboardJob(
		"day_rollover_refresh",
		"Recompute summaries after local midnight",
		refresher,
		log,
	)
	return s.Register(rollover, scheduler.NewDailySchedule(0, 0, 5, cfg.App.Location))
}
