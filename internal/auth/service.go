package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kitchenops/backoffice/internal/shared"
)

// PermissionResolver resolves the permission names granted to a role.
type PermissionResolver interface {
	EffectivePermissionNames(ctx context.Context, roleID uuid.UUID) ([]string, error)
}

// Service turns an upstream identity into the principal stored in the session.
type Service struct {
	repo     Repository
	resolver PermissionResolver
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, resolver PermissionResolver) *Service {
	return &Service{repo: repo, resolver: resolver, now: time.Now}
}

// Principal loads the user named by identity, a user id or an email, and
// snapshots its grants.
func (s *Service) Principal(ctx context.Context, identity string) (shared.Principal, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return shared.Principal{}, shared.ErrUnauthenticated
	}
	var (
		user *User
		err  error
	)
	if id, parseErr := uuid.Parse(identity); parseErr == nil {
		user, err = s.repo.FindByID(ctx, id)
	} else {
		user, err = s.repo.FindByEmail(ctx, identity)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Principal{}, shared.ErrUnauthenticated
		}
		return shared.Principal{}, err
	}
	if !user.IsActive {
		return shared.Principal{}, shared.ErrInactiveUser
	}

	principal := shared.Principal{
		UserID:   user.ID,
		Email:    user.Email,
		RoleTag:  strings.ToUpper(strings.TrimSpace(user.RoleTag)),
		RoleID:   user.RoleID,
		TenantID: user.TenantID,
		IssuedAt: s.now().UTC(),
	}
	if user.RoleID != nil {
		names, err := s.resolver.EffectivePermissionNames(ctx, *user.RoleID)
		if err != nil {
			return shared.Principal{}, fmt.Errorf("auth: resolve permissions: %w", err)
		}
		principal.PermissionNames = names
	}
	return principal, nil
}
