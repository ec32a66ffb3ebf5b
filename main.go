// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/danielhkuo/real-hero/auth"
	"github.com/danielhkuo/real-hero/cliparse"
	"github.com/danielhkuo/real-hero/db"
	"github.com/danielhkuo/real-hero/geo"
	"github.com/danielhkuo/real-hero/lifecycle"
	"github.com/danielhkuo/real-hero/middleware"
	"github.com/danielhkuo/real-hero/notify"
	"github.com/danielhkuo/real-hero/router"
	"github.com/danielhkuo/real-hero/scheduler"
	"github.com/danielhkuo/real-hero/store"
)

const (
	jwtIssuer       = "real-hero"
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}
	// After parsing, so LOG_LEVEL can come from .env
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open storage
	st, closeStore, err := openStore(cfg)
	if err != nil {
		slog.Error("storage setup failed", "type", cfg.DatabaseType, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Notifications are delivered by a background queue
	sink, closeSink, err := openNotifier(ctx, cfg)
	if err != nil {
		slog.Error("notifier setup failed", "error", err)
		os.Exit(1)
	}
	defer closeSink()
	notifier := notify.NewAsync(sink, 0)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctrl, err := lifecycle.New(lifecycle.Config{
		Store:          st,
		Notifier:       notifier,
		Geocoder:       geo.NewNominatim(cfg.GeocoderURL),
		Signer:         auth.NewLinkSigner(cfg.LinkSecret),
		BaseURL:        cfg.ServerBase,
		ResponseWindow: cfg.ResponseWindow,
		Metrics:        lifecycle.NewMetrics(reg),
	})
	if err != nil {
		slog.Error("controller setup failed", "error", err)
		os.Exit(1)
	}

	sched, err := scheduler.New(scheduler.Config{
		Lifecycle:    ctrl,
		Lister:       st,
		Interval:     cfg.SweepInterval,
		Window:       ctrl.ResponseWindow(),
		ExpiryPolicy: cfg.ExpiryPolicy,
	})
	if err != nil {
		slog.Error("scheduler setup failed", "error", err)
		os.Exit(1)
	}

	// Create router
	mux := router.NewRouter(ctrl, auth.NewJWTResolver(cfg.JWTSecret, jwtIssuer), reg)

	// Create server
	server := http.Server{
		Handler:           middleware.CORS(cfg.AllowedOrigins)(mux),
		Addr:              ":" + strconv.Itoa(cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Listening", "port", cfg.Port, "base", cfg.ServerBase)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if cerr := notifier.Close(shutdownCtx); cerr != nil {
			slog.Warn("notification queue not drained", "dropped", notifier.Dropped(), "error", cerr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server closed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server closed")
}

// setupLogging installs a JSON handler, or a text handler when attached to
// a terminal. LOG_LEVEL sets the minimum level.
func setupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewJSONHandler(os.Stderr, opts)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func openStore(cfg cliparse.Config) (store.Store, func(), error) {
	if cfg.DatabaseType == "memory" {
		slog.Warn("using in-memory storage, data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	driver := "postgres"
	if cfg.DatabaseType == "sqlite" {
		driver = "sqlite"
	}

	// Connect to the database
	dbConn, err := sql.Open(driver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if driver == "sqlite" {
		// One writer keeps sqlite transactions from failing with SQLITE_BUSY
		dbConn.SetMaxOpenConns(1)
	}

	// Verify connection
	if err := dbConn.Ping(); err != nil {
		dbConn.Close()
		return nil, nil, err
	}

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		dbConn.Close()
		return nil, nil, err
	}
	slog.Info("Database schema ready", "driver", driver)

	return store.NewSQL(dbConn), func() { dbConn.Close() }, nil
}

func openNotifier(ctx context.Context, cfg cliparse.Config) (notify.Notifier, func(), error) {
	if cfg.RedisURL == "" {
		slog.Info("no redis configured, notifications are logged only")
		return notify.Log{}, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	slog.Info("publishing notifications to redis", "stream", cfg.NotifyStream, "addr", opts.Addr)

	return notify.NewRedisStream(client, cfg.NotifyStream), func() { client.Close() }, nil
}
