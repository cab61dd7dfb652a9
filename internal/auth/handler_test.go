package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kitchenops/backoffice/internal/app"
	"github.com/kitchenops/backoffice/internal/auth"
	"github.com/kitchenops/backoffice/internal/shared"
	_ "github.com/kitchenops/backoffice/testing"
)

type stubRepo struct {
	users map[uuid.UUID]*auth.User
}

func (s *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

type stubResolver struct {
	names map[uuid.UUID][]string
	err   error
}

func (s *stubResolver) EffectivePermissionNames(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.names[roleID], nil
}

type authFixture struct {
	handler  *auth.Handler
	sessions *shared.SessionManager
	redis    *miniredis.Miniredis
	user     *auth.User
	roleID   uuid.UUID
	resolver *stubResolver
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)

	roleID := uuid.New()
	tenantID := uuid.New()
	user := &auth.User{ID: uuid.New(), Email: "chef@kitchen.test", RoleTag: "partner", RoleID: &roleID, TenantID: &tenantID, IsActive: true}
	repo := &stubRepo{users: map[uuid.UUID]*auth.User{user.ID: user}}
	resolver := &stubResolver{names: map[uuid.UUID][]string{roleID: {"/partner/office", "/partner/office/roles"}}}
	handler := auth.NewHandler(nil, auth.NewService(repo, resolver), sessionManager, "")
	return &authFixture{handler: handler, sessions: sessionManager, redis: mr, user: user, roleID: roleID, resolver: resolver}
}

// serve runs req through the production session middleware so the cookie
// is committed before the handler writes its status.
func (f *authFixture) serve(t *testing.T, method, target string, prepare func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if prepare != nil {
		prepare(req)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := httptest.NewRecorder()
	app.SessionMiddleware(f.sessions, logger)(f.mount()).ServeHTTP(res, req)
	return res
}

func (f *authFixture) mount() http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", f.handler.MountRoutes)
	return r
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range res.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestCallbackIssuesSession(t *testing.T) {
	f := newAuthFixture(t)

	res := f.serve(t, http.MethodGet, "/auth/callback?next=/partner/office", func(r *http.Request) {
		r.Header.Set(auth.DefaultTrustedHeader, f.user.ID.String())
	})
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/partner/office" {
		t.Fatalf("unexpected redirect %q", loc)
	}

	cookie := sessionCookie(t, res, f.sessions.CookieName())
	id, _, _ := strings.Cut(cookie.Value, ".")
	stored, err := f.sessions.Get(context.Background(), id)
	if err != nil || stored == nil {
		t.Fatalf("session not stored: %v", err)
	}
	p := stored.Principal()
	if p.UserID != f.user.ID || p.RoleTag != "PARTNER" || len(p.PermissionNames) != 2 {
		t.Fatalf("unexpected principal %+v", p)
	}
	ids, err := f.sessions.SessionsForRole(context.Background(), f.roleID)
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Fatalf("session not indexed by role: %v %v", ids, err)
	}
}

func TestCallbackAcceptsEmailAndJSON(t *testing.T) {
	f := newAuthFixture(t)

	res := f.serve(t, http.MethodGet, "/auth/callback", func(r *http.Request) {
		r.Header.Set(auth.DefaultTrustedHeader, "CHEF@kitchen.test")
		r.Header.Set("Accept", "application/json")
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var p shared.Principal
	if err := json.Unmarshal(res.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode principal: %v", err)
	}
	if p.Email != f.user.Email {
		t.Fatalf("unexpected email %q", p.Email)
	}
}

func TestCallbackRejectsUnknownOrInactive(t *testing.T) {
	f := newAuthFixture(t)

	res := f.serve(t, http.MethodGet, "/auth/callback", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("missing header: expected 401, got %d", res.Code)
	}
	if len(res.Result().Cookies()) != 0 {
		t.Fatalf("anonymous session must not be issued")
	}

	res = f.serve(t, http.MethodGet, "/auth/callback", func(r *http.Request) {
		r.Header.Set(auth.DefaultTrustedHeader, uuid.NewString())
	})
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: expected 401, got %d", res.Code)
	}

	f.user.IsActive = false
	res = f.serve(t, http.MethodGet, "/auth/callback", func(r *http.Request) {
		r.Header.Set(auth.DefaultTrustedHeader, f.user.ID.String())
	})
	if res.Code != http.StatusForbidden {
		t.Fatalf("inactive user: expected 403, got %d", res.Code)
	}
}

func TestCallbackResolverFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.resolver.err = errors.New("db down")

	res := f.serve(t, http.MethodGet, "/auth/callback", func(r *http.Request) {
		r.Header.Set(auth.DefaultTrustedHeader, f.user.ID.String())
	})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestCallbackIgnoresOffsiteNext(t *testing.T) {
	f := newAuthFixture(t)

	res := f.serve(t, http.MethodGet, "/auth/callback?next=//evil.test", func(r *http.Request) {
		r.Header.Set(auth.DefaultTrustedHeader, f.user.ID.String())
	})
	if loc := res.Header().Get("Location"); loc != "/" {
		t.Fatalf("expected redirect to /, got %q", loc)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newAuthFixture(t)
	res := f.serve(t, http.MethodGet, "/auth/callback", func(r *http.Request) {
		r.Header.Set(auth.DefaultTrustedHeader, f.user.ID.String())
	})
	cookie := sessionCookie(t, res, f.sessions.CookieName())

	res = f.serve(t, http.MethodPost, "/auth/logout", func(r *http.Request) {
		r.AddCookie(cookie)
	})
	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", res.Code)
	}
	id, _, _ := strings.Cut(cookie.Value, ".")
	if f.redis.Exists("session:" + id) {
		t.Fatalf("session still stored after logout")
	}
	ids, _ := f.sessions.SessionsForRole(context.Background(), f.roleID)
	if len(ids) != 0 {
		t.Fatalf("role index not cleaned: %v", ids)
	}
}

func TestMeRequiresSession(t *testing.T) {
	f := newAuthFixture(t)
	res := f.serve(t, http.MethodGet, "/auth/me", nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}
