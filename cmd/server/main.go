package main

import (
	"context"
	"log/slog"
	"os"

	"project-reaper/internal/app"
	"project-reaper/internal/logger"
)

func main() {
	slog.SetDefault(logger.New(os.Stdout, "info"))

	application, err := app.New(context.Background())
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
