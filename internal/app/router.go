package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kitchenops/backoffice/internal/auth"
	"github.com/kitchenops/backoffice/internal/observability"
	"github.com/kitchenops/backoffice/internal/platform/httpx"
	"github.com/kitchenops/backoffice/internal/rbac"
	"github.com/kitchenops/backoffice/internal/roles"
	"github.com/kitchenops/backoffice/internal/shared"
	"github.com/kitchenops/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	Gate           *rbac.Middleware
	AuthHandler    *auth.Handler

	AdminRolesHandler         *roles.Handler
	PartnerRolesHandler       *roles.Handler
	AdminPermissionsHandler   *rbac.PermissionsHandler
	PartnerPermissionsHandler *rbac.PermissionsHandler

	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
}

// NewRouter constructs the chi.Router with back office defaults. Every
// request passes the authorization gate; paths outside the protected areas
// are let through by the resolver itself.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	if params.Gate != nil {
		r.Use(params.Gate.Gate)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get(httpx.NoAccessPath, httpx.NoAccessPage)

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.AdminRolesHandler != nil {
		r.Route(shared.PathAdminRoles, params.AdminRolesHandler.MountRoutes)
	}
	if params.AdminPermissionsHandler != nil {
		r.Route(shared.PrefixAdmin+"/permissions", params.AdminPermissionsHandler.MountRoutes)
	}
	if params.PartnerRolesHandler != nil {
		r.Route(shared.PathPartnerRoles, params.PartnerRolesHandler.MountRoutes)
	}
	if params.PartnerPermissionsHandler != nil {
		r.Route(shared.PrefixPartner+"/office/permissions", params.PartnerPermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
