package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kitchenops/backoffice/internal/permissions"
	"github.com/kitchenops/backoffice/internal/rbac"
)

// Repository persists roles and their grants.
type Repository interface {
	GetRole(ctx context.Context, id uuid.UUID) (rbac.Role, error)
	ListRoles(ctx context.Context, owner *uuid.UUID, all bool) ([]rbac.Role, error)
	CreateRole(ctx context.Context, name string, owner *uuid.UUID) (rbac.Role, error)
	FindByRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
	ReplaceAll(ctx context.Context, roleID uuid.UUID, ids []uuid.UUID, expectedVersion int64) (int64, error)
}

// CatalogLoader loads the permission catalog.
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (*permissions.Catalog, error)
}

// GrantNotifier is told after a role's grants were replaced.
type GrantNotifier interface {
	RoleGrantsChanged(ctx context.Context, roleID uuid.UUID) error
}

// CommitObserver records commit outcomes.
type CommitObserver interface {
	ObserveRoleCommit(outcome string)
}

// Commit outcomes reported to the observer.
const (
	OutcomeSaved     = "saved"
	OutcomeRejected  = "rejected"
	OutcomeViolation = "security_violation"
	OutcomeConflict  = "conflict"
	OutcomeFailed    = "storage_failed"
)

// ServiceConfig carries optional collaborators.
type ServiceConfig struct {
	Logger   *slog.Logger
	Notifier GrantNotifier
	Observer CommitObserver
}

// Service enforces tenant and category isolation on role grants.
type Service struct {
	repo     Repository
	catalogs CatalogLoader
	logger   *slog.Logger
	notifier GrantNotifier
	observer CommitObserver
	upper    cases.Caser
}

// NewService constructs a Service.
func NewService(repo Repository, catalogs CatalogLoader, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		catalogs: catalogs,
		logger:   logger,
		notifier: cfg.Notifier,
		observer: cfg.Observer,
		upper:    cases.Upper(language.Und),
	}
}

// ListRoles returns the roles visible to ec: every role for admins, the
// tenant's own roles for partners.
func (s *Service) ListRoles(ctx context.Context, ec EditorContext) ([]rbac.Role, error) {
	switch ec.Scope {
	case ScopeAdmin:
		return s.repo.ListRoles(ctx, nil, true)
	case ScopePartner:
		if ec.TenantID == nil {
			return nil, &SecurityViolationError{Reason: "partner editor without tenant"}
		}
		return s.repo.ListRoles(ctx, ec.TenantID, false)
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidState, ec.Scope)
	}
}

// CreateRole creates a role. Names are trimmed and upper-cased.
func (s *Service) CreateRole(ctx context.Context, ec EditorContext, input CreateRoleInput) (rbac.Role, error) {
	name := s.upper.String(strings.TrimSpace(input.Name))
	if name == "" || len(name) > MaxRoleNameLength {
		return rbac.Role{}, ErrInvalidName
	}
	owner := input.OwnerID
	if ec.Scope == ScopePartner {
		if ec.TenantID == nil {
			return rbac.Role{}, &SecurityViolationError{Reason: "partner editor without tenant"}
		}
		if owner != nil && *owner != *ec.TenantID {
			return rbac.Role{}, &SecurityViolationError{Reason: "role owner outside tenant"}
		}
		owner = ec.TenantID
	}
	role, err := s.repo.CreateRole(ctx, name, owner)
	if err != nil {
		if errors.Is(err, ErrDuplicateRole) {
			return rbac.Role{}, err
		}
		return rbac.Role{}, &StorageError{Op: "create role", Err: err}
	}
	s.logger.Info("role created",
		slog.String("role_id", role.ID.String()),
		slog.String("name", role.Name),
		slog.String("actor_id", ec.ActorID.String()),
	)
	return role, nil
}

// Role returns a role the context may manage.
func (s *Service) Role(ctx context.Context, ec EditorContext, roleID uuid.UUID) (rbac.Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return rbac.Role{}, s.readError("get role", err)
	}
	if !ec.CanManage(role) {
		return rbac.Role{}, s.violation(ec, &SecurityViolationError{RoleID: roleID, Reason: "role outside tenant"})
	}
	return role, nil
}

// FindByRole returns the role and its persisted permission ids.
func (s *Service) FindByRole(ctx context.Context, ec EditorContext, roleID uuid.UUID) (RoleGrants, error) {
	role, err := s.Role(ctx, ec, roleID)
	if err != nil {
		return RoleGrants{}, err
	}
	ids, err := s.repo.FindByRole(ctx, roleID)
	if err != nil {
		return RoleGrants{}, s.readError("find grants", err)
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return RoleGrants{Role: role, Selected: ids}, nil
}

// Catalog loads the permission catalog.
func (s *Service) Catalog(ctx context.Context) (*permissions.Catalog, error) {
	catalog, err := s.catalogs.LoadCatalog(ctx)
	if err != nil {
		return nil, &StorageError{Op: "load catalog", Err: err}
	}
	return catalog, nil
}

// Commit replaces the role's grants with ids after checking, in order:
// role existence, tenant ownership, permission existence, category scope
// and ancestor closure. expectedVersion guards against concurrent edits
// unless it is AnyVersion. The new grant version is returned.
func (s *Service) Commit(ctx context.Context, ec EditorContext, roleID uuid.UUID, ids []uuid.UUID, expectedVersion int64) (int64, error) {
	version, err := s.commit(ctx, ec, roleID, ids, expectedVersion)
	s.observe(err)
	return version, err
}

func (s *Service) commit(ctx context.Context, ec EditorContext, roleID uuid.UUID, ids []uuid.UUID, expectedVersion int64) (int64, error) {
	role, err := s.Role(ctx, ec, roleID)
	if err != nil {
		return 0, err
	}
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return 0, err
	}
	selected := NewSelection(ids...)
	for _, id := range selected.IDs() {
		p, ok := catalog.Get(id)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrPermissionNotFound, id)
		}
		if !ec.AllowedCategory(role, p.Category) {
			return 0, s.violation(ec, &SecurityViolationError{
				RoleID:       roleID,
				PermissionID: id,
				Category:     p.Category,
			})
		}
	}
	if dangling := Dangling(ec.View(catalog, role), selected); len(dangling) > 0 {
		return 0, fmt.Errorf("%w: %s", ErrDanglingChild, dangling[0])
	}

	version, err := s.repo.ReplaceAll(ctx, roleID, selected.IDs(), expectedVersion)
	if err != nil {
		switch {
		case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrRoleNotFound), errors.Is(err, ErrPermissionNotFound):
			return 0, err
		default:
			s.logger.Error("role grants save failed",
				slog.String("role_id", roleID.String()),
				slog.Any("error", err),
			)
			return 0, &StorageError{Op: "replace grants", Err: err}
		}
	}
	s.logger.Info("role grants saved",
		slog.String("role_id", roleID.String()),
		slog.Int("permissions", selected.Len()),
		slog.Int64("version", version),
		slog.String("actor_id", ec.ActorID.String()),
	)
	if s.notifier != nil {
		if err := s.notifier.RoleGrantsChanged(ctx, roleID); err != nil {
			s.logger.Warn("session refresh not scheduled",
				slog.String("role_id", roleID.String()),
				slog.Any("error", err),
			)
		}
	}
	return version, nil
}

func (s *Service) violation(ec EditorContext, v *SecurityViolationError) error {
	attrs := []any{
		slog.String("event", "security_violation"),
		slog.String("scope", string(ec.Scope)),
		slog.String("actor_id", ec.ActorID.String()),
		slog.String("role_id", v.RoleID.String()),
	}
	if ec.TenantID != nil {
		attrs = append(attrs, slog.String("tenant_id", ec.TenantID.String()))
	}
	if v.PermissionID != uuid.Nil {
		attrs = append(attrs, slog.String("permission_id", v.PermissionID.String()), slog.String("category", string(v.Category)))
	}
	if v.Reason != "" {
		attrs = append(attrs, slog.String("reason", v.Reason))
	}
	s.logger.Warn("role edit rejected", attrs...)
	return v
}

func (s *Service) readError(op string, err error) error {
	if errors.Is(err, ErrRoleNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (s *Service) observe(err error) {
	if s.observer == nil {
		return
	}
	switch {
	case err == nil:
		s.observer.ObserveRoleCommit(OutcomeSaved)
	case errors.Is(err, ErrSecurityViolation):
		s.observer.ObserveRoleCommit(OutcomeViolation)
	case errors.Is(err, ErrVersionConflict):
		s.observer.ObserveRoleCommit(OutcomeConflict)
	case errors.Is(err, ErrStorage):
		s.observer.ObserveRoleCommit(OutcomeFailed)
	default:
		s.observer.ObserveRoleCommit(OutcomeRejected)
	}
}
