package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/arvales/mailindex/internal/api"
	"github.com/arvales/mailindex/internal/config"
	"github.com/arvales/mailindex/internal/database"
	"github.com/arvales/mailindex/internal/email"
	"github.com/arvales/mailindex/internal/index"
	"github.com/arvales/mailindex/internal/secrets"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailindex")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Bootstrap the search index before any worker starts
	gateway := index.NewGateway(db, logger)
	if err := gateway.EnsureIndex(ctx); err != nil {
		logger.Error("failed to ensure index", "error", err)
		os.Exit(1)
	}

	codec := secrets.NewCodec(cfg.MasterKey, logger)
	if cfg.MasterKey == "" {
		logger.Warn("MASTER_KEY not set, account passwords will not be encrypted at rest")
	}

	registry := email.NewRegistry(email.RegistryConfig{
		Dial:           email.Dial,
		Gateway:        gateway,
		Codec:          codec,
		BackfillWindow: cfg.BackfillWindow,
		DialTimeout:    cfg.IMAPDialTimeout,
		Logger:         logger,
	})

	// Start a worker for every enabled account
	accounts, err := db.ListEnabledAccounts(ctx)
	if err != nil {
		logger.Error("failed to list enabled accounts", "error", err)
		os.Exit(1)
	}
	registry.StartAll(accounts)

	router := api.NewRouter(api.Deps{
		DB:       db,
		Registry: registry,
		Gateway:  gateway,
		Codec:    codec,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.Info("control plane listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", "signal", sig)

	registry.StopAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	logger.Info("stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
