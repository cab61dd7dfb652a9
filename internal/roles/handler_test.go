package roles

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenops/backoffice/internal/platform/httpx"
	"github.com/kitchenops/backoffice/internal/shared"
)

func newTestRouter(h *serviceHarness, scope Scope, principal *shared.Principal) http.Handler {
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), h.svc, scope)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if principal != nil {
				sess := &shared.Session{ID: "test"}
				sess.SetPrincipal(*principal)
				req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/roles", handler.MountRoutes)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, payload)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeGrants(t *testing.T, rr *httptest.ResponseRecorder) grantsResponse {
	t.Helper()
	var out grantsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestHandlerToggleAndCommit(t *testing.T) {
	h := newServiceHarness(t)
	role := h.repo.addRole("CHEF", nil)
	router := newTestRouter(h, ScopeAdmin, &shared.Principal{UserID: uuid.New(), RoleTag: shared.RoleTagManager})
	base := "/roles/" + role.ID.String() + "/permissions"

	rr := doJSON(t, router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	initial := decodeGrants(t, rr)
	assert.Len(t, initial.Tree, 2)
	assert.Empty(t, initial.Selected)

	rr = doJSON(t, router, http.MethodPost, base+"/toggle", toggleRequest{NodeID: h.f.ids["/partner/office/roles"]})
	require.Equal(t, http.StatusOK, rr.Code)
	toggled := decodeGrants(t, rr)
	assert.Equal(t, "dirty", toggled.State)
	assert.ElementsMatch(t, h.f.idsOf("/partner", "/partner/office", "/partner/office/roles"), toggled.Selected)

	version := initial.Version
	rr = doJSON(t, router, http.MethodPut, base, commitRequest{PermissionIDs: toggled.Selected, Version: &version})
	require.Equal(t, http.StatusOK, rr.Code)
	saved := decodeGrants(t, rr)
	assert.Equal(t, int64(1), saved.Version)
	assert.ElementsMatch(t, toggled.Selected, saved.Selected)

	rr = doJSON(t, router, http.MethodPut, base, commitRequest{PermissionIDs: nil, Version: &version})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlerForbiddenCategory(t *testing.T) {
	h := newServiceHarness(t)
	tenant := uuid.New()
	role := h.repo.addRole("WAITER", &tenant)
	router := newTestRouter(h, ScopePartner, &shared.Principal{UserID: uuid.New(), RoleTag: shared.RoleTagPartner, TenantID: &tenant})

	rr := doJSON(t, router, http.MethodPut, "/roles/"+role.ID.String()+"/permissions", commitRequest{PermissionIDs: h.f.idsOf("/admin")})
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, httpx.TypeForbiddenCategory, problem.Type)
	assert.Equal(t, "Forbidden Category", problem.Title)
}

func TestHandlerSaveFailed(t *testing.T) {
	h := newServiceHarness(t)
	role := h.repo.addRole("CHEF", nil)
	h.repo.replaceErr = errDiskFull
	router := newTestRouter(h, ScopeAdmin, &shared.Principal{UserID: uuid.New()})

	rr := doJSON(t, router, http.MethodPut, "/roles/"+role.ID.String()+"/permissions", commitRequest{PermissionIDs: h.f.idsOf("/partner")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "Save Failed", problem.Title)
}

func TestHandlerCreateAndListRoles(t *testing.T) {
	h := newServiceHarness(t)
	tenant := uuid.New()
	router := newTestRouter(h, ScopePartner, &shared.Principal{UserID: uuid.New(), TenantID: &tenant})

	rr := doJSON(t, router, http.MethodPost, "/roles", CreateRoleInput{Name: "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/roles", CreateRoleInput{Name: "bartender"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/roles", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "BARTENDER")
}

func TestHandlerRequiresPrincipalAndTenant(t *testing.T) {
	h := newServiceHarness(t)

	rr := doJSON(t, newTestRouter(h, ScopeAdmin, nil), http.MethodGet, "/roles", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doJSON(t, newTestRouter(h, ScopePartner, &shared.Principal{UserID: uuid.New()}), http.MethodGet, "/roles", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerRejectsBadRoleID(t *testing.T) {
	h := newServiceHarness(t)
	router := newTestRouter(h, ScopeAdmin, &shared.Principal{UserID: uuid.New()})

	rr := doJSON(t, router, http.MethodGet, "/roles/not-a-uuid/permissions", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/roles/"+uuid.NewString()+"/permissions", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
