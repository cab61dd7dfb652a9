package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Role is a named bundle of permissions. A nil OwnerID marks a system
// role; otherwise the role belongs to one partner tenant and may only hold
// partner-category permissions.
type Role struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	OwnerID            *uuid.UUID `json:"ownerId,omitempty"`
	PermissionsVersion int64      `json:"permissionsVersion"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// IsSystem reports whether the role is platform-owned.
func (r Role) IsSystem() bool {
	return r.OwnerID == nil
}

// OwnedBy reports whether the role belongs to tenant.
func (r Role) OwnedBy(tenant uuid.UUID) bool {
	return r.OwnerID != nil && *r.OwnerID == tenant
}

// RolePermission links a permission to a role.
type RolePermission struct {
	RoleID       uuid.UUID
	PermissionID uuid.UUID
}
