package auth

import "github.com/google/uuid"

// User is an account known to the back office. Credentials live with the
// upstream identity provider.
type User struct {
	ID       uuid.UUID
	Email    string
	RoleTag  string
	RoleID   *uuid.UUID
	TenantID *uuid.UUID
	IsActive bool
}
