package roles

import (
	"github.com/google/uuid"

	"github.com/kitchenops/backoffice/internal/permissions"
	"github.com/kitchenops/backoffice/internal/rbac"
)

// Scope names the area an editor is mounted in.
type Scope string

const (
	ScopeAdmin   Scope = "admin"
	ScopePartner Scope = "partner"
)

// AnyVersion skips the optimistic grant version check on commit.
const AnyVersion int64 = -1

// MaxRoleNameLength bounds role names.
const MaxRoleNameLength = 64

// EditorContext identifies who is editing grants and from where.
type EditorContext struct {
	Scope Scope
	// TenantID is the partner establishment of a partner editor.
	TenantID *uuid.UUID
	ActorID  uuid.UUID
}

// AdminContext returns an admin editing context for actor.
func AdminContext(actor uuid.UUID) EditorContext {
	return EditorContext{Scope: ScopeAdmin, ActorID: actor}
}

// PartnerContext returns a partner editing context bound to tenant.
func PartnerContext(actor, tenant uuid.UUID) EditorContext {
	return EditorContext{Scope: ScopePartner, TenantID: &tenant, ActorID: actor}
}

// CanManage reports whether the context may read or edit role.
func (ec EditorContext) CanManage(role rbac.Role) bool {
	switch ec.Scope {
	case ScopeAdmin:
		return true
	case ScopePartner:
		return ec.TenantID != nil && role.OwnedBy(*ec.TenantID)
	default:
		return false
	}
}

// AllowedCategory reports whether permissions of category may be granted
// to role from this context. Partner editors and partner-owned roles are
// limited to partner permissions; admins editing system roles may grant
// any category.
func (ec EditorContext) AllowedCategory(role rbac.Role, category permissions.Category) bool {
	if ec.Scope != ScopeAdmin || !role.IsSystem() {
		return category == permissions.CategoryPartner
	}
	return category.Valid()
}

// View narrows catalog to what the context may grant to role.
func (ec EditorContext) View(catalog *permissions.Catalog, role rbac.Role) *permissions.Catalog {
	if ec.Scope == ScopeAdmin && role.IsSystem() {
		return catalog
	}
	return catalog.Filter(permissions.CategoryPartner)
}

// Categories lists the categories visible before a role is chosen.
func (ec EditorContext) Categories() []permissions.Category {
	if ec.Scope == ScopeAdmin {
		return []permissions.Category{permissions.CategoryAdmin, permissions.CategoryPartner}
	}
	return []permissions.Category{permissions.CategoryPartner}
}

// CreateRoleInput carries a role creation request.
type CreateRoleInput struct {
	Name string `json:"name" validate:"required,min=2,max=64"`
	// OwnerID assigns a tenant; admins only. Partner editors always own
	// what they create.
	OwnerID *uuid.UUID `json:"ownerId,omitempty"`
}

// RoleGrants is a role with its persisted selection.
type RoleGrants struct {
	Role     rbac.Role   `json:"role"`
	Selected []uuid.UUID `json:"selected"`
}
