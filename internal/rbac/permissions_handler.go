package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kitchenops/backoffice/internal/permissions"
	"github.com/kitchenops/backoffice/internal/platform/httpx"
)

// CatalogLoader loads the permission catalog.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (*permissions.Catalog, error)
}

// CategoryLoader is implemented by loaders that can read a single category
// without loading the rest of the catalog.
type CategoryLoader interface {
	ListByCategory(ctx context.Context, category permissions.Category) ([]permissions.Permission, error)
}

var _ CategoryLoader = (*permissions.Repository)(nil)

// PermissionsHandler serves the permission catalog as a tree.
type PermissionsHandler struct {
	logger *slog.Logger
	loader CatalogLoader
	// fixed pins the category; empty lets the caller choose.
	fixed permissions.Category
}

// NewPermissionsHandler builds a PermissionsHandler. A non-empty fixed
// category ignores the category query parameter, so partner mounts never
// expose admin nodes.
func NewPermissionsHandler(logger *slog.Logger, loader CatalogLoader, fixed permissions.Category) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, loader: loader, fixed: fixed}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

type permissionsResponse struct {
	Category permissions.Category `json:"category"`
	Nodes    []permissions.Node   `json:"nodes"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	category := h.fixed
	if category == "" {
		raw := r.URL.Query().Get("category")
		if raw == "" {
			raw = string(permissions.CategoryAdmin)
		}
		c, err := permissions.ParseCategory(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		category = c
	}
	catalog, err := h.load(r.Context(), category)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("load permission catalog", slog.Any("error", err))
		}
		httpx.RespondError(w, fmt.Errorf("permission catalog: %w", httpx.ErrUnavailable))
		return
	}
	nodes := catalog.Tree(category)
	if nodes == nil {
		nodes = []permissions.Node{}
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{Category: category, Nodes: nodes})
}

// load reads the catalog for category. Fixed mounts narrow the query when
// the loader supports it.
func (h *PermissionsHandler) load(ctx context.Context, category permissions.Category) (*permissions.Catalog, error) {
	if cl, ok := h.loader.(CategoryLoader); ok && h.fixed != "" {
		perms, err := cl.ListByCategory(ctx, category)
		if err != nil {
			return nil, err
		}
		return permissions.NewCatalog(perms)
	}
	return h.loader.LoadCatalog(ctx)
}
