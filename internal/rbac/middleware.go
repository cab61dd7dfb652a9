package rbac

import (
	"fmt"
	"log/slog"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kitchenops/backoffice/internal/platform/httpx"
	"github.com/kitchenops/backoffice/internal/shared"
)

// DecisionObserver records authorization outcomes.
type DecisionObserver interface {
	ObserveAuthzDecision(reason string)
}

// Middleware gates protected areas using the principal embedded in the
// request session.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
	Observer DecisionObserver

	shapes *lru.Cache[string, Shape]
}

// NewMiddleware builds the gate. cacheSize bounds the number of parsed
// request paths kept; zero disables the cache.
func NewMiddleware(resolver *Resolver, logger *slog.Logger, observer DecisionObserver, cacheSize int) (*Middleware, error) {
	if resolver == nil {
		return nil, fmt.Errorf("rbac: middleware requires a resolver")
	}
	m := &Middleware{Resolver: resolver, Logger: logger, Observer: observer}
	if cacheSize > 0 {
		cache, err := lru.New[string, Shape](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("rbac: path cache: %w", err)
		}
		m.shapes = cache
	}
	return m, nil
}

// Gate continues the request when the session principal may reach the
// requested path and answers with the access restricted presentation
// otherwise.
func (m *Middleware) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := shared.PrincipalFromContext(r.Context())
		decision := m.Resolver.DecideShape(m.shape(r.URL.Path), principal)
		if m.Observer != nil {
			m.Observer.ObserveAuthzDecision(string(decision.Reason))
		}
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		if m.Logger != nil {
			attrs := []any{
				slog.String("path", r.URL.Path),
				slog.String("reason", string(decision.Reason)),
			}
			if principal != nil {
				attrs = append(attrs, slog.String("user_id", principal.UserID.String()), slog.String("role_tag", principal.RoleTag))
			}
			m.Logger.Info("authz denied", attrs...)
		}
		httpx.DenyAccess(w, r)
	})
}

func (m *Middleware) shape(path string) Shape {
	if m.shapes == nil {
		return ParsePath(path)
	}
	if s, ok := m.shapes.Get(path); ok {
		return s
	}
	s := ParsePath(path)
	m.shapes.Add(path, s)
	return s
}
