package roles

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kitchenops/backoffice/internal/permissions"
	"github.com/kitchenops/backoffice/internal/platform/httpx"
	"github.com/kitchenops/backoffice/internal/rbac"
	"github.com/kitchenops/backoffice/internal/shared"
)

// Handler serves the role grant editor API for one scope.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	scope     Scope
	validator *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler builds a Handler mounted for scope.
func NewHandler(logger *slog.Logger, service *Service, scope Scope) *Handler {
	limiter := httprate.Limit(20, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if p := shared.PrincipalFromContext(r.Context()); p != nil {
			return "user:" + p.UserID.String(), nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{
		logger:    logger,
		service:   service,
		scope:     scope,
		validator: validator.New(),
		rateLimit: limiter,
	}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Post("/", h.createRole)
	r.Route("/{roleID}/permissions", func(r chi.Router) {
		r.Get("/", h.showGrants)
		r.Post("/toggle", h.toggle)
		r.With(h.rateLimit).Put("/", h.commit)
	})
}

type grantsResponse struct {
	Role     rbac.Role          `json:"role"`
	Version  int64              `json:"version"`
	Tree     []permissions.Node `json:"tree"`
	Selected []uuid.UUID        `json:"selected"`
	State    string             `json:"state"`
}

type toggleRequest struct {
	Selected []uuid.UUID `json:"selected"`
	NodeID   uuid.UUID   `json:"nodeId" validate:"required"`
}

type commitRequest struct {
	PermissionIDs []uuid.UUID `json:"permissionIds"`
	Version       *int64      `json:"version,omitempty" validate:"omitempty,min=0"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	ec, ok := h.editorContext(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListRoles(r.Context(), ec)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": list})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	ec, ok := h.editorContext(w, r)
	if !ok {
		return
	}
	var input CreateRoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		h.validationProblem(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), ec, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) showGrants(w http.ResponseWriter, r *http.Request) {
	editor, ok := h.openEditor(w, r)
	if !ok {
		return
	}
	h.respondEditor(w, http.StatusOK, editor)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.validationProblem(w, err)
		return
	}
	editor, ok := h.openEditor(w, r)
	if !ok {
		return
	}
	if err := editor.Restore(req.Selected, editor.Version()); err != nil {
		h.respondError(w, err)
		return
	}
	if _, err := editor.Toggle(req.NodeID); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondEditor(w, http.StatusOK, editor)
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.validationProblem(w, err)
		return
	}
	ec, ok := h.editorContext(w, r)
	if !ok {
		return
	}
	roleID, ok := h.roleID(w, r)
	if !ok {
		return
	}
	version := AnyVersion
	if req.Version != nil {
		version = *req.Version
	}
	newVersion, err := h.service.Commit(r.Context(), ec, roleID, req.PermissionIDs, version)
	if err != nil {
		h.respondError(w, err)
		return
	}
	editor := h.service.NewEditor(ec)
	if err := editor.Load(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	if err := editor.SelectRole(r.Context(), roleID); err != nil {
		h.respondError(w, err)
		return
	}
	h.logger.Debug("role grants committed", slog.String("role_id", roleID.String()), slog.Int64("version", newVersion))
	h.respondEditor(w, http.StatusOK, editor)
}

func (h *Handler) openEditor(w http.ResponseWriter, r *http.Request) (*Editor, bool) {
	ec, ok := h.editorContext(w, r)
	if !ok {
		return nil, false
	}
	roleID, ok := h.roleID(w, r)
	if !ok {
		return nil, false
	}
	editor := h.service.NewEditor(ec)
	if err := editor.Load(r.Context()); err != nil {
		h.respondError(w, err)
		return nil, false
	}
	if err := editor.SelectRole(r.Context(), roleID); err != nil {
		h.respondError(w, err)
		return nil, false
	}
	return editor, true
}

func (h *Handler) respondEditor(w http.ResponseWriter, status int, editor *Editor) {
	role, _ := editor.Role()
	tree := editor.Tree()
	if tree == nil {
		tree = []permissions.Node{}
	}
	httpx.JSON(w, status, grantsResponse{
		Role:     role,
		Version:  editor.Version(),
		Tree:     tree,
		Selected: editor.Selected().IDs(),
		State:    editor.State().String(),
	})
}

func (h *Handler) editorContext(w http.ResponseWriter, r *http.Request) (EditorContext, bool) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
		return EditorContext{}, false
	}
	if h.scope == ScopePartner {
		if p.TenantID == nil {
			httpx.TypedProblem(w, http.StatusForbidden, httpx.TypeAccessRestricted, "Access Restricted", "no establishment bound to this account")
			return EditorContext{}, false
		}
		return PartnerContext(p.UserID, *p.TenantID), true
	}
	return AdminContext(p.UserID), true
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "roleID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) validationProblem(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field()+" "+fe.Tag())
	}
	httpx.Problem(w, http.StatusBadRequest, "Validation Failed", strings.Join(fields, "; "))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSecurityViolation):
		httpx.TypedProblem(w, http.StatusForbidden, httpx.TypeForbiddenCategory, "Forbidden Category", err.Error())
	case errors.Is(err, ErrStorage):
		h.logger.Error("role editor storage failure", slog.Any("error", err))
		w.Header().Set("Retry-After", "5")
		httpx.TypedProblem(w, http.StatusServiceUnavailable, httpx.TypeSaveFailed, "Save Failed", "grants could not be saved, try again")
	case errors.Is(err, ErrRoleNotFound), errors.Is(err, ErrPermissionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrDuplicateRole):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrDanglingChild), errors.Is(err, ErrInvalidName):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.logger.Error("role editor failure", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
