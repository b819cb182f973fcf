package app

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

	"golang.org/x/sync/errgroup"

	"project-reaper/internal/config"
	"project-reaper/internal/handler"
	"project-reaper/internal/logger"
	"project-reaper/internal/middleware"
	"project-reaper/internal/router"
	"project-reaper/internal/stream"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	core   *Core
	server *http.Server
	hub    *stream.Hub
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.SetDefault(logger.New(os.Stdout, cfg.LogLevel))

	core, err := NewCore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	hub := stream.NewHub(core.Bus, cfg.CORSOrigins)
	authMiddleware := middleware.NewAuthMiddleware(core.Auth)

	appRouter := router.New(cfg, authMiddleware, router.Handlers{
		Auth:    handler.NewAuthHandler(core.Auth),
		Project: handler.NewProjectHandler(core.Projects, core.Destroy),
		Jobs:    handler.NewJobsHandler(core.Jobs),
		Health:  handler.NewHealthHandler(core.DB),
		Events:  hub,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{core: core, server: server, hub: hub}, nil
}

// Run serves HTTP and processes jobs until SIGINT or SIGTERM.
func (a *App) Run() error {
	defer a.core.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return a.core.Pool.Run(ctx)
	})

	g.Go(func() error {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped")
	return nil
}
