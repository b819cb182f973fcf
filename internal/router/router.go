package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"project-reaper/internal/config"
	"project-reaper/internal/handler"
	"project-reaper/internal/middleware"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Project *handler.ProjectHandler
	Jobs    *handler.JobsHandler
	Health  *handler.HealthHandler
	Events  http.Handler
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM, cfg.DestroyRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", h.Health.Check)

	// The event stream is long-lived and stays outside the request timeout.
	if h.Events != nil {
		r.With(authMiddleware.RequireAuth, authMiddleware.RequireRoles("admin")).Handle("/api/v1/events", h.Events)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Post("/auth/login", h.Auth.Login)

		api.Group(func(protected chi.Router) {
			protected.Use(authMiddleware.RequireAuth)

			protected.Get("/projects/{id}", h.Project.Get)
			protected.Delete("/projects/{id}", h.Project.Destroy)
			protected.Post("/projects/{id}/destroy", h.Project.ScheduleDestroy)
			protected.Get("/jobs/{job_id}", h.Jobs.GetJob)
		})
	})

	return r
}
