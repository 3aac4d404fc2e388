// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/pagecraft/internal/auth"
	"github.com/olegiv/pagecraft/internal/cache"
	"github.com/olegiv/pagecraft/internal/config"
	"github.com/olegiv/pagecraft/internal/content"
	"github.com/olegiv/pagecraft/internal/handler"
	"github.com/olegiv/pagecraft/internal/handler/api"
	"github.com/olegiv/pagecraft/internal/logging"
	"github.com/olegiv/pagecraft/internal/middleware"
	"github.com/olegiv/pagecraft/internal/render"
	"github.com/olegiv/pagecraft/internal/scheduler"
	"github.com/olegiv/pagecraft/internal/staging"
	"github.com/olegiv/pagecraft/internal/store"
	"github.com/olegiv/pagecraft/internal/version"
	"github.com/olegiv/pagecraft/internal/webhook"
	"github.com/olegiv/pagecraft/web"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "pagecraft - section staging and publishing for marketing sites\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PAGECRAFT_DB_DRIVER          sqlite|postgres (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PAGECRAFT_DB_PATH            SQLite database path (default: ./data/pagecraft.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PAGECRAFT_DATABASE_URL       PostgreSQL URL (postgres driver)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PAGECRAFT_SERVER_PORT        Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PAGECRAFT_ENV                development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PAGECRAFT_ADMIN_API_KEY      Bootstrapped admin API key (min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PAGECRAFT_REDIS_URL          Redis URL for distributed caching (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PAGECRAFT_BACKUP_SCHEDULE    Cron expression for automatic backups (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PAGECRAFT_WEBHOOK_URLS       Comma-separated webhook endpoints (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		_, _ = fmt.Printf("pagecraft %s\n", version.Get())
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	versionInfo := version.Get()

	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(textHandler)
	slog.SetDefault(logger)

	ctx := context.Background()

	dialect, err := store.ParseDialect(cfg.DBDriver)
	if err != nil {
		return err
	}
	if dialect == store.DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	slog.Info("initializing database", "driver", dialect)
	db, err := store.NewDB(ctx, dialect, cfg.DSN())
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}()

	slog.Info("running database migrations")
	if err := store.Migrate(db, dialect); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	st := store.NewStore(db, dialect)
	slog.Info("database ready")

	// Mirror WARN and ERROR records into the event log.
	logger = slog.New(logging.NewEventLogHandler(textHandler, st))
	slog.SetDefault(logger)

	if cfg.DoSeed {
		if err := st.Seed(ctx); err != nil {
			return fmt.Errorf("seeding database: %w", err)
		}
	}

	cacheTTL := time.Duration(cfg.CacheTTL) * time.Second
	cacheManager := cache.NewManager(cache.Config{
		RedisURL:        cfg.RedisURL,
		Prefix:          cfg.CachePrefix,
		DefaultTTL:      cacheTTL,
		MaxSize:         cfg.CacheMaxSize,
		CleanupInterval: time.Minute,
	}, logger)
	defer func() { _ = cacheManager.Close() }()
	slog.Info("cache manager initialized", "backend", cacheManager.Backend())

	keys := auth.NewKeyring(st, logger)
	if cfg.AdminAPIKey != "" {
		if err := keys.Bootstrap(ctx, cfg.AdminAPIKey); err != nil {
			return fmt.Errorf("bootstrapping admin api key: %w", err)
		}
	}

	var notifier staging.Notifier
	if cfg.WebhooksEnabled() {
		endpoints := make([]webhook.Endpoint, 0, len(cfg.WebhookURLs))
		for _, u := range cfg.WebhookURLs {
			if u = strings.TrimSpace(u); u != "" {
				endpoints = append(endpoints, webhook.Endpoint{URL: u, Secret: cfg.WebhookSecret})
			}
		}
		whCfg := webhook.DefaultConfig()
		whCfg.AllowPrivateNetworks = cfg.IsDevelopment()
		dispatcher, err := webhook.NewDispatcher(endpoints, st, logger, whCfg)
		if err != nil {
			return fmt.Errorf("initializing webhooks: %w", err)
		}
		dispatcher.Start(ctx)
		defer dispatcher.Stop()
		notifier = dispatcher
	}

	service := staging.New(st, auth.Rights{}, cacheManager.Gateway, notifier, logger, staging.Options{
		PublishConcurrency: cfg.PublishConcurrency,
		BackupUniqueNames:  cfg.BackupUniqueNames,
	})
	reader := content.NewReader(st, cacheManager.Gateway, cacheTTL, logger)

	sched := scheduler.New(logger, 5*time.Minute)
	if cfg.BackupsScheduled() {
		if err := sched.Add(scheduler.JobAutoBackup, "Snapshot published content", cfg.BackupSchedule, &scheduler.BackupJob{
			Service:   service,
			Retention: cfg.BackupRetention,
			Logger:    logger,
		}); err != nil {
			return fmt.Errorf("scheduling backups: %w", err)
		}
	}
	if cfg.EventRetention > 0 {
		if err := sched.Add(scheduler.JobPruneEvents, "Delete expired events", "@daily", &scheduler.EventPruneJob{
			Store:  st,
			MaxAge: cfg.EventRetention,
			Logger: logger,
		}); err != nil {
			return fmt.Errorf("scheduling event pruning: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	templatesFS, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		return fmt.Errorf("getting templates fs: %w", err)
	}
	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		return fmt.Errorf("getting static fs: %w", err)
	}
	renderer, err := render.New(render.Config{TemplatesFS: templatesFS, IsDev: cfg.IsDevelopment()})
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}

	healthHandler := handler.NewHealthHandler(st, handler.PingFunc(cacheManager.HealthCheck), keys, versionInfo.Version)
	frontendHandler := handler.NewFrontendHandler(reader, renderer, cacheManager.Gateway, handler.FrontendConfig{
		SiteName: cfg.SiteName,
		PageTTL:  cacheTTL,
	}, logger)
	apiHandler := api.NewHandler(api.Config{
		Service: service,
		Reader:  reader,
		Store:   st,
		Cache:   cacheManager,
		Jobs:    sched,
		Logger:  logger,
		Version: versionInfo.Version,
	})

	securityCfg := middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())
	securityCfg.ExcludePaths = []string{"/api/"}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.SecurityHeaders(securityCfg))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	frontendHandler.Routes(r, nil)
	r.With(middleware.StaticCache(24*time.Hour)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	apiHandler.Routes(r, api.RouteConfig{
		Keys:      keys,
		RateLimit: cfg.APIRateLimit,
		RateBurst: cfg.APIRateBurst,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", versionInfo.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
