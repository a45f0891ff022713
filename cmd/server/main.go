// Package main is the entry point for the Parlor server. It loads
// configuration, connects the user store and Redis, wires the plugins and
// starts the HTTP server. If a store is unreachable it serves the degraded
// app instead of exiting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keyxmakerx/parlor/internal/app"
	"github.com/keyxmakerx/parlor/internal/config"
	"github.com/keyxmakerx/parlor/internal/database"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting Parlor",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("db_driver", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, cleanup := build(ctx, cfg)
	defer cleanup()

	// --- Graceful Shutdown ---
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")

		// Give in-flight requests 10 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", slog.Any("error", err))
		return
	}
	slog.Info("server stopped")
}

// build connects the stores and returns the full app, or the degraded app
// when a store cannot be reached. cleanup closes whatever was opened.
func build(ctx context.Context, cfg *config.Config) (*app.App, func()) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	// --- Connect to the user store ---
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to the user store", slog.Any("error", err))
		return app.NewDegraded(cfg, err), cleanup
	}
	closers = append(closers, db.Close)
	slog.Info("connected to the user store", slog.String("driver", cfg.Database.Driver))

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db, cfg.Database.Driver); err != nil {
			slog.Error("failed to run migrations", slog.Any("error", err))
			return app.NewDegraded(cfg, fmt.Errorf("migrating user store: %w", err)), cleanup
		}
	}

	// --- Connect to Redis ---
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		return app.NewDegraded(cfg, err), cleanup
	}
	closers = append(closers, rdb.Close)
	slog.Info("connected to Redis")

	// --- Create Application ---
	application := app.New(cfg, db, rdb, app.BuildProviders(ctx, cfg)...)
	application.RegisterRoutes()
	return application, cleanup
}

// setupLogging configures the global slog logger. Development uses the
// text handler for readability, production uses JSON for log aggregation.
// LOG_LEVEL overrides the level.
func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
