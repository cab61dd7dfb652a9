package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kitchenops/backoffice/internal/platform/httpx"
	"github.com/kitchenops/backoffice/internal/shared"
)

// DefaultTrustedHeader carries the identity asserted by the upstream provider.
const DefaultTrustedHeader = "X-Authenticated-User"

// Handler wires HTTP endpoints for session issuance.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	header         string
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, trustedHeader string) *Handler {
	if strings.TrimSpace(trustedHeader) == "" {
		trustedHeader = DefaultTrustedHeader
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		header:         trustedHeader,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/callback", h.handleCallback)
	r.Post("/logout", h.handleLogout)
	r.Get("/me", h.showPrincipal)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during callback")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	principal, err := h.service.Principal(r.Context(), r.Header.Get(h.header))
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrUnauthenticated):
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "identity not recognised")
		case errors.Is(err, shared.ErrInactiveUser):
			httpx.TypedProblem(w, http.StatusForbidden, httpx.TypeAccessRestricted, "Access Restricted", "account disabled")
		default:
			h.logger.Error("resolve principal", slog.Any("error", err))
			w.Header().Set("Retry-After", "5")
			httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "sign in temporarily unavailable")
		}
		return
	}
	sess.SetPrincipal(principal)
	h.logger.Info("session issued",
		slog.String("user_id", principal.UserID.String()),
		slog.String("role_tag", principal.RoleTag),
		slog.Int("permissions", len(principal.PermissionNames)),
	)
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, principal)
		return
	}
	http.Redirect(w, r, safeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessionManager.Destroy(sess)
	}
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) showPrincipal(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no session")
		return
	}
	httpx.JSON(w, http.StatusOK, principal)
}

// safeNext only follows same-site relative targets.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
