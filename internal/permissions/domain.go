package permissions

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Category partitions permissions by tenant scope.
type Category string

const (
	// CategoryAdmin tags platform-wide back office permissions.
	CategoryAdmin Category = "admin"
	// CategoryPartner tags permissions grantable inside a partner tenant.
	CategoryPartner Category = "partner"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryAdmin || c == CategoryPartner
}

// ParseCategory normalises raw input into a Category.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}

// Permission is one grantable capability named after a route shape.
type Permission struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    Category   `json:"category"`
	ParentID    *uuid.UUID `json:"parentId,omitempty"`
}

// HasParent reports whether the permission references a parent.
func (p Permission) HasParent() bool {
	return p.ParentID != nil && *p.ParentID != uuid.Nil
}

var (
	// ErrNotFound indicates the permission does not exist.
	ErrNotFound = errors.New("permissions: not found")
	// ErrUnknownCategory indicates a category other than admin or partner.
	ErrUnknownCategory = errors.New("permissions: unknown category")
	// ErrDuplicate indicates a repeated id or name in a catalog.
	ErrDuplicate = errors.New("permissions: duplicate entry")
	// ErrCycle indicates the parent graph is not a forest.
	ErrCycle = errors.New("permissions: parent cycle")
	// ErrInvalidName indicates a permission name that is not an absolute path.
	ErrInvalidName = errors.New("permissions: invalid name")
)
