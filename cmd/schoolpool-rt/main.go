package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schoolpool/realtime/internal/collab"
	"github.com/schoolpool/realtime/internal/server"
	"github.com/schoolpool/realtime/pkg/config"
	"github.com/schoolpool/realtime/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelDebug)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collabClient := collab.NewHTTPClient(logger, collab.HTTPClientConfig{
		BaseURL:      cfg.Collab.BaseURL,
		ServiceToken: cfg.Collab.ServiceToken,
		Timeout:      cfg.Collab.Timeout,
	})

	app := server.NewApp(logger, ctx, cfg, collabClient, collabClient)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
