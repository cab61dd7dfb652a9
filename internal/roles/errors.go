package roles

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kitchenops/backoffice/internal/permissions"
)

var (
	// ErrRoleNotFound indicates the role id does not exist.
	ErrRoleNotFound = errors.New("roles: role not found")
	// ErrPermissionNotFound indicates a permission id that does not exist.
	ErrPermissionNotFound = errors.New("roles: permission not found")
	// ErrDuplicateRole indicates the owner already has a role of that name.
	ErrDuplicateRole = errors.New("roles: role name taken")
	// ErrInvalidName indicates an empty or oversized role name.
	ErrInvalidName = errors.New("roles: invalid role name")
	// ErrDanglingChild indicates a selection holding a child without its parent.
	ErrDanglingChild = errors.New("roles: permission selected without its parent")
	// ErrVersionConflict indicates the role's grants changed since they were loaded.
	ErrVersionConflict = errors.New("roles: grants changed concurrently")
	// ErrInvalidState indicates an editor operation out of sequence.
	ErrInvalidState = errors.New("roles: invalid editor state")
	// ErrSecurityViolation matches every *SecurityViolationError.
	ErrSecurityViolation = errors.New("roles: security violation")
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("roles: storage failure")
)

// SecurityViolationError reports an attempt to edit outside the editing
// context's tenant or category scope. It is distinct from validation
// failures so callers can flag it.
type SecurityViolationError struct {
	RoleID       uuid.UUID
	PermissionID uuid.UUID
	Category     permissions.Category
	Reason       string
}

func (e *SecurityViolationError) Error() string {
	if e.PermissionID != uuid.Nil {
		return fmt.Sprintf("roles: security violation on role %s: permission %s has forbidden category %q", e.RoleID, e.PermissionID, e.Category)
	}
	return fmt.Sprintf("roles: security violation on role %s: %s", e.RoleID, e.Reason)
}

// Is lets errors.Is match ErrSecurityViolation.
func (e *SecurityViolationError) Is(target error) bool {
	return target == ErrSecurityViolation
}

// StorageError wraps a persistence failure. The operation may be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("roles: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
