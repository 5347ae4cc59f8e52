package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/lengolf/timeclock/backend/internal/admin"
	"github.com/lengolf/timeclock/backend/internal/config"
	"github.com/lengolf/timeclock/backend/internal/events"
	"github.com/lengolf/timeclock/backend/internal/feed"
	"github.com/lengolf/timeclock/backend/internal/health"
	"github.com/lengolf/timeclock/backend/internal/logger"
	"github.com/lengolf/timeclock/backend/internal/metrics"
	appmw "github.com/lengolf/timeclock/backend/internal/middleware"
	"github.com/lengolf/timeclock/backend/internal/photo"
	"github.com/lengolf/timeclock/backend/internal/punch"
	"github.com/lengolf/timeclock/backend/internal/repository"
	"github.com/lengolf/timeclock/backend/internal/staff"
	"github.com/lengolf/timeclock/backend/internal/storage"
	"github.com/lengolf/timeclock/backend/internal/timesheet"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg := config.Load()

	appLogger := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(appLogger)

	if err := cfg.Validate(); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Punch.Location()
	if err != nil {
		appLogger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	// Database pools. Credentials ride pgxpool for the advisory locks and
	// atomic counter updates; entries ride sqlx for the query surface.
	pool, err := setupPgxPool(cfg)
	if err != nil {
		appLogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	entryDB, err := setupEntryDB(cfg)
	if err != nil {
		appLogger.Error("failed to open entry database", "error", err)
		os.Exit(1)
	}
	defer entryDB.Close()

	credRepo := repository.NewCredentialRepository(pool)
	entryRepo := repository.NewTimeEntryRepo(entryDB)

	// Event plumbing for the live feed
	eventStore := events.NewEventStore(cfg.Feed.EventBufferSize)
	eventBus := events.NewEventBus(eventStore)

	// Admin auth
	tokenService := admin.NewTokenService(admin.TokenServiceConfig{
		Secret:      cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		Issuer:      cfg.Auth.Issuer,
	})
	adminService, err := admin.NewService(admin.ServiceConfig{
		Username:     cfg.Auth.AdminUsername,
		PasswordHash: cfg.Auth.AdminPasswordHash,
		Tokens:       tokenService,
		Logger:       appLogger,
	})
	if err != nil {
		appLogger.Error("failed to configure admin auth", "error", err)
		os.Exit(1)
	}
	adminHandler := admin.NewHandler(adminService, appLogger)
	authMiddleware := appmw.NewAuthMiddleware(tokenService)

	// Object storage and the photo pipeline are optional: a venue without a
	// bucket still clocks people in, photos just settle as failed.
	var storageService *storage.StorageService
	if cfg.Storage.Endpoint != "" {
		storageService, err = storage.NewStorageService(&cfg.Storage)
		if err != nil {
			appLogger.Error("failed to configure object storage", "error", err)
			os.Exit(1)
		}
	} else {
		appLogger.Warn("photo storage not configured, captures will be recorded as failed")
	}

	var pipeline *photo.Pipeline
	if storageService != nil {
		pipeline = photo.NewPipeline(photo.PipelineConfig{
			Uploader:      storageService,
			Entries:       entryRepo,
			EventBus:      eventBus,
			Logger:        appLogger,
			MaxBytes:      cfg.Photo.MaxBytes,
			MaxDimension:  cfg.Photo.MaxDimension,
			JPEGQuality:   cfg.Photo.JPEGQuality,
			UploadTimeout: cfg.Photo.UploadTimeout,
			Workers:       cfg.Photo.Workers,
			QueueSize:     cfg.Photo.QueueSize,
			MaxRetries:    cfg.Photo.MaxRetries,
		})
		pipeline.Start()
	}

	// Punch core
	resolver := punch.NewResolver(cfg.Punch.ResolverWorkers, appLogger)
	lockout := punch.NewLockoutPolicy(credRepo, cfg.Punch.LockoutThreshold, cfg.Punch.LockoutDuration, appLogger)

	punchCfg := punch.ServiceConfig{
		Credentials:  credRepo,
		Entries:      entryRepo,
		Resolver:     resolver,
		Lockout:      lockout,
		EventBus:     eventBus,
		Logger:       appLogger,
		Location:     loc,
		DedupeWindow: cfg.Punch.DedupeWindow,
	}
	if pipeline != nil {
		punchCfg.Photos = pipeline
	}
	punchService := punch.NewService(punchCfg)
	punchHandler := punch.NewHandler(punchService, appLogger)

	// Staff management
	pins := punch.NewPinValidator(cfg.Punch.BcryptCost)
	staffService := staff.NewService(staff.ServiceConfig{
		Credentials: credRepo,
		Pins:        pins,
		Resolver:    resolver,
		EventBus:    eventBus,
		Logger:      appLogger,
	})
	staffHandler := staff.NewHandler(staffService, appLogger)

	// Timesheet reads
	timesheetCfg := timesheet.ServiceConfig{
		Entries:     entryRepo,
		Credentials: credRepo,
		Logger:      appLogger,
		Location:    loc,
	}
	if storageService != nil {
		timesheetCfg.Presigner = storageService
	}
	timesheetService := timesheet.NewService(timesheetCfg)
	timesheetHandler := timesheet.NewHandler(timesheetService, appLogger)

	// Live feed
	feedManager := feed.NewConnectionManager(feed.Config{
		HeartbeatInterval: cfg.Feed.HeartbeatInterval,
		ConnectionTimeout: cfg.Feed.ConnectionTimeout,
		MaxConnections:    cfg.Feed.MaxConnections,
	})
	feedHandler := feed.NewHandler(feed.Config{
		HeartbeatInterval: cfg.Feed.HeartbeatInterval,
		ConnectionTimeout: cfg.Feed.ConnectionTimeout,
		MaxConnections:    cfg.Feed.MaxConnections,
	}, feedManager, eventBus, tokenService, appLogger)
	stopFeedCleanup := feedManager.StartCleanupRoutine(time.Minute)

	// Health and metrics
	healthCfg := health.Config{
		DBPool:  pool,
		Version: Version,
	}
	if storageService != nil {
		healthCfg.Storage = storageService
	}
	healthHandler := health.NewHandler(healthCfg)

	dbCollector := metrics.NewDBStatsCollector(pool, entryDB.DB)
	dbCollector.Start(15 * time.Second)

	// Photo retention sweep
	var cleanupJob *storage.OrphanCleanupJob
	if storageService != nil {
		cleanupJob = storage.NewOrphanCleanupJob(
			storageService,
			entryRepo,
			storage.DefaultOrphanCleanupConfig(photo.KeyPrefix),
			appLogger,
		)
		if err := cleanupJob.Start(); err != nil {
			appLogger.Warn("failed to start photo retention sweep", "error", err)
		}
	}

	// Rate limiters
	var punchLimiter func(next http.Handler) http.Handler
	var loginLimiter func(next http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		punchLimiter = appmw.NewPunchRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window).RateLimitPunch
		loginLimiter = appmw.NewLoginRateLimiter().RateLimitLogin
	}

	// Router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(appmw.NewLoggingMiddleware(appLogger).Handler)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The feed holds its connection open for up to an hour, so it
		// stays outside the request timeout group.
		feed.RegisterRoutes(r, feedHandler)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

			punch.RegisterRoutes(r, punchHandler, punchLimiter)
			admin.RegisterRoutes(r, adminHandler, loginLimiter)
			staff.RegisterRoutes(r, staffHandler, timesheetHandler.DaySummary, authMiddleware.Authenticate)
			timesheet.RegisterRoutes(r, timesheetHandler, authMiddleware.Authenticate)
		})
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
		// No WriteTimeout: it would sever feed streams mid-heartbeat.
		// The timeout middleware bounds every JSON endpoint instead.
	}

	go func() {
		appLogger.Info("terminal API listening", "addr", addr, "timezone", loc.String(), "version", Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down")

	// Drain order: stop routing new punches, close the streams holding the
	// server open, drain HTTP, then let the photo queue settle before the
	// collectors and pools go away.
	healthHandler.SetReady(false)
	feedManager.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("forced server shutdown", "error", err)
	}

	if pipeline != nil {
		if err := pipeline.Stop(shutdownCtx); err != nil {
			appLogger.Warn("photo queue did not drain before deadline", "error", err)
		}
	}

	if cleanupJob != nil {
		cleanupJob.Stop()
	}
	stopFeedCleanup()
	dbCollector.Stop()

	appLogger.Info("server exited")
}

// setupPgxPool creates and configures the credential database pool
func setupPgxPool(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// setupEntryDB opens the sqlx pool used by the time entry repository
func setupEntryDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
