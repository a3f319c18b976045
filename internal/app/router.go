package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-hr/meridian-hr/internal/audit"
	"github.com/meridian-hr/meridian-hr/internal/auth"
	"github.com/meridian-hr/meridian-hr/internal/observability"
	"github.com/meridian-hr/meridian-hr/internal/roles"
	"github.com/meridian-hr/meridian-hr/internal/users"
	"github.com/meridian-hr/meridian-hr/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	AuthHandler    *auth.Handler
	AuthMiddleware auth.Middleware
	RolesHandler   *roles.Handler
	UsersHandler   *users.Handler
	AuditHandler   *audit.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with platform defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(LoginRateLimiter())
			params.AuthHandler.MountPublicRoutes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Authenticate)
			params.AuthHandler.MountRoutes(r)
			params.RolesHandler.MountRoutes(r)
			params.UsersHandler.MountRoutes(r)
			params.AuditHandler.MountRoutes(r)
		})
	})

	return r
}
