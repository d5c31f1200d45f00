// Command server runs the forum search service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/EcommerceGo/pkg/logger"
	"github.com/utafrali/EcommerceGo/services/forum/internal/app"
	"github.com/utafrali/EcommerceGo/services/forum/internal/config"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code, so deferred cleanup runs before exit.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return 1
	}

	log := logger.NewWithOptions(logger.Options{
		Service: "forum-service",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	slog.SetDefault(log)

	log.Info("starting forum service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("index_provider", cfg.IndexProvider),
		slog.String("storage", cfg.Storage),
		slog.Bool("events", cfg.EventsEnabled),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Error("forum service failed", slog.String("error", err.Error()))
		return 1
	}

	log.Info("forum service stopped")
	return 0
}
