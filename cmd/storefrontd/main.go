// storefrontd runs the storefront client as a local daemon. It holds the
// session, cart, and payment state and exposes them over a JSON API and an
// MCP endpoint for CLIs and agents.
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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/storefront"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("api_version", cfg.APIVersion),
		slog.Bool("redis", cfg.RedisAddr != ""),
	)

	app, err := storefront.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating storefront: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("closing storefront", slog.String("error", err.Error()))
		}
	}()

	// A stored credential that no longer validates is cleared; the daemon
	// still starts logged out.
	if user, err := app.Restore(ctx); err != nil {
		logger.Warn("session restore failed", slog.String("error", err.Error()))
	} else if user != nil {
		logger.Info("session restored", slog.String("user", user.Email))
	}

	h := handler.New(app, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(httpHandler, "storefrontd"),
		ReadTimeout: 30 * time.Second,
		// Payment confirmation can outlive the API timeout when the card
		// processor is slow.
		WriteTimeout: 2*cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting", slog.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for log collectors, development uses text.
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if cfg.Environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
