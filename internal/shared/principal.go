package shared

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Coarse role tags carried by every user record.
const (
	RoleTagAdmin   = "ADMIN"
	RoleTagOwner   = "OWNER"
	RoleTagPartner = "PARTNER"
	RoleTagManager = "MANAGER"
	RoleTagUser    = "USER"
)

// Principal is the authenticated actor as embedded in the session. The
// permission names are resolved once at issuance and refreshed only when
// the role's grants change.
type Principal struct {
	UserID          uuid.UUID  `json:"user_id"`
	Email           string     `json:"email,omitempty"`
	RoleTag         string     `json:"role_tag"`
	RoleID          *uuid.UUID `json:"role_id,omitempty"`
	TenantID        *uuid.UUID `json:"tenant_id,omitempty"`
	PermissionNames []string   `json:"permission_names,omitempty"`
	IssuedAt        time.Time  `json:"issued_at"`
}

// NormalizedTag returns the role tag upper-cased and trimmed.
func (p *Principal) NormalizedTag() string {
	if p == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(p.RoleTag))
}

// Clone returns a deep copy safe to hand to another request.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	if p.RoleID != nil {
		id := *p.RoleID
		c.RoleID = &id
	}
	if p.TenantID != nil {
		id := *p.TenantID
		c.TenantID = &id
	}
	c.PermissionNames = append([]string(nil), p.PermissionNames...)
	return &c
}
