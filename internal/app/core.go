package app

import (
	"context"
	"fmt"
	"log/slog"

	"project-reaper/internal/cache"
	"project-reaper/internal/config"
	"project-reaper/internal/database"
	"project-reaper/internal/event"
	"project-reaper/internal/model"
	"project-reaper/internal/registry"
	"project-reaper/internal/repository"
	"project-reaper/internal/service"
	"project-reaper/internal/storage"
	"project-reaper/internal/worker"
)

// Core holds the wired services shared by the HTTP server and the CLI.
type Core struct {
	Config   *config.Config
	DB       *database.DB
	Storage  *storage.Storage
	Projects *repository.Store
	Jobs     *repository.JobRepository
	Users    *repository.UserRepository
	Bus      *event.InMemoryBus
	Auth     *service.AuthService
	Hooks    *service.HookService
	Destroy  *service.DestroyService
	Creator  *service.ProjectService
	Pool     *worker.Pool

	cleanupFuncs []func()
}

func NewCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	store, err := storage.New(cfg.RepositoryRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	c := &Core{Config: cfg, DB: db, Storage: store}
	c.cleanupFuncs = append(c.cleanupFuncs, db.Close)

	if err := db.EnsureSchema(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	c.Projects = repository.NewStore(pool)
	c.Jobs = repository.NewJobRepository(pool)
	c.Users = repository.NewUserRepository(pool)
	hookRepo := repository.NewHookRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	slog.Info("database ready")

	invalidator, err := c.newInvalidator(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	var tags service.TagRegistry
	if cfg.RegistryEnabled {
		client, err := registry.New(registry.Config{BaseURL: cfg.RegistryURL, Token: cfg.RegistryToken})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize registry client: %w", err)
		}
		tags = client
	}

	c.Bus = event.NewBus()
	c.Auth = service.NewAuthService(c.Users, cfg.JWTSecret, cfg.JWTAccessTTL)
	c.Hooks = service.NewHookService(hookRepo, cfg.HookTimeout)
	c.cleanupFuncs = append(c.cleanupFuncs, c.Hooks.Wait)

	c.Creator = service.NewProjectService(c.Projects)

	scheduler := service.NewRemovalScheduler(cfg.JobMaxAttempts)
	c.Destroy = service.NewDestroyService(service.DestroyDeps{
		Projects:       c.Projects,
		Users:          c.Users,
		Policy:         service.NewPolicy(repository.NewMemberRepository(pool)),
		Cache:          invalidator,
		Registry:       tags,
		Relocator:      service.NewRelocator(store, scheduler, cfg.RemovalDelay),
		Hooks:          c.Hooks,
		Bus:            c.Bus,
		Audit:          service.NewAuditService(auditRepo),
		Capabilities:   service.TeardownCapabilities{Registry: cfg.RegistryEnabled},
		JobMaxAttempts: cfg.JobMaxAttempts,
	})

	handlers := worker.NewRegistry()
	handlers.Register(model.JobDestroyProject, c.Destroy.HandleDestroyJob)
	handlers.Register(model.JobRemoveRepository, service.NewRepositoryRemover(store, c.Bus).HandleJob)

	c.Pool = worker.NewPool(c.Jobs, handlers, c.Bus, worker.Config{
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		RetryDelay:   cfg.JobRetryDelay,
		StaleAfter:   cfg.JobStaleAfter,
		Heartbeat:    cfg.JobHeartbeat,
	})

	return c, nil
}

func (c *Core) newInvalidator(ctx context.Context) (service.CacheInvalidator, error) {
	if c.Config.RedisAddr == "" {
		slog.Info("cache invalidation disabled", "reason", "REDIS_ADDR not set")
		return cache.NopInvalidator{}, nil
	}

	client, err := cache.Dial(ctx, c.Config.RedisAddr, c.Config.RedisPassword, c.Config.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.cleanupFuncs = append(c.cleanupFuncs, func() { _ = client.Close() })

	return cache.NewRedisInvalidator(client, c.Storage, c.Config.CacheKeyPrefix), nil
}

// Close releases resources in reverse order of acquisition.
func (c *Core) Close() {
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		c.cleanupFuncs[i]()
	}
	c.cleanupFuncs = nil
}
