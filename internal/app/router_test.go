package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenops/backoffice/internal/observability"
	"github.com/kitchenops/backoffice/internal/permissions"
	"github.com/kitchenops/backoffice/internal/rbac"
	"github.com/kitchenops/backoffice/internal/roles"
	"github.com/kitchenops/backoffice/internal/shared"
)

type emptyRoles struct{}

func (emptyRoles) GetRole(context.Context, uuid.UUID) (rbac.Role, error) {
	return rbac.Role{}, roles.ErrRoleNotFound
}

func (emptyRoles) ListRoles(context.Context, *uuid.UUID, bool) ([]rbac.Role, error) {
	return []rbac.Role{}, nil
}

func (emptyRoles) CreateRole(_ context.Context, name string, owner *uuid.UUID) (rbac.Role, error) {
	return rbac.Role{ID: uuid.New(), Name: name, OwnerID: owner}, nil
}

func (emptyRoles) FindByRole(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (emptyRoles) ReplaceAll(context.Context, uuid.UUID, []uuid.UUID, int64) (int64, error) {
	return 1, nil
}

type staticCatalog struct{ catalog *permissions.Catalog }

func (s staticCatalog) LoadCatalog(context.Context) (*permissions.Catalog, error) {
	return s.catalog, nil
}

type routerHarness struct {
	handler  http.Handler
	sessions *shared.SessionManager
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "sid", "secret", time.Hour, false)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()

	catalog, err := permissions.NewCatalog(nil)
	require.NoError(t, err)
	svc := roles.NewService(emptyRoles{}, staticCatalog{catalog}, roles.ServiceConfig{Logger: logger, Observer: metrics})
	gate, err := rbac.NewMiddleware(rbac.NewResolver(rbac.ResolverConfig{}), logger, metrics, 16)
	require.NoError(t, err)

	handler := NewRouter(RouterParams{
		Logger:                    logger,
		Config:                    &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second},
		SessionManager:            sessions,
		Gate:                      gate,
		AdminRolesHandler:         roles.NewHandler(logger, svc, roles.ScopeAdmin),
		PartnerRolesHandler:       roles.NewHandler(logger, svc, roles.ScopePartner),
		AdminPermissionsHandler:   rbac.NewPermissionsHandler(logger, staticCatalog{catalog}, ""),
		PartnerPermissionsHandler: rbac.NewPermissionsHandler(logger, staticCatalog{catalog}, permissions.CategoryPartner),
		Metrics:                   metrics,
	})
	return &routerHarness{handler: handler, sessions: sessions}
}

// login stores a session for p and returns its cookie.
func (h *routerHarness) login(t *testing.T, p shared.Principal) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetPrincipal(p)
	rr := httptest.NewRecorder()
	require.NoError(t, h.sessions.Commit(context.Background(), rr, req, sess))
	for _, c := range rr.Result().Cookies() {
		if c.Name == h.sessions.CookieName() {
			return c
		}
	}
	t.Fatal("session cookie missing")
	return nil
}

func (h *routerHarness) get(path string, cookie *http.Cookie, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthz(t *testing.T) {
	h := newRouterHarness(t)
	rr := h.get("/healthz", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestRouterDeniesAnonymousOnProtectedAreas(t *testing.T) {
	h := newRouterHarness(t)

	rr := h.get("/admin/roles", nil, "")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "/no-access?from="))

	rr = h.get("/partner/office/roles", nil, "application/json")
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Access Restricted")

	rr = h.get("/no-access?from=/admin/roles", nil, "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Contains(t, rr.Body.String(), "Access restricted")
}

func TestRouterGrantsByPermissionName(t *testing.T) {
	h := newRouterHarness(t)
	tenant := uuid.New()
	cookie := h.login(t, shared.Principal{
		UserID:          uuid.New(),
		RoleTag:         shared.RoleTagPartner,
		TenantID:        &tenant,
		PermissionNames: []string{"/partner/office/roles"},
	})

	rr := h.get("/partner/office/roles", cookie, "application/json")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"roles":[]}`, rr.Body.String())

	rr = h.get("/admin/roles", cookie, "application/json")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = h.get("/partner/office/permissions", cookie, "application/json")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouterSuperTagPassesEverywhere(t *testing.T) {
	h := newRouterHarness(t)
	cookie := h.login(t, shared.Principal{UserID: uuid.New(), RoleTag: "admin"})

	rr := h.get("/admin/roles", cookie, "application/json")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.get("/admin/permissions?category=partner", cookie, "application/json")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"category":"partner","nodes":[]}`, rr.Body.String())
}

func TestRouterExposesMetrics(t *testing.T) {
	h := newRouterHarness(t)
	h.get("/admin/roles", nil, "application/json")

	rr := h.get("/metrics", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `backoffice_authz_decisions_total{reason="no_principal"} 1`)
}
