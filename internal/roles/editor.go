package roles

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kitchenops/backoffice/internal/permissions"
	"github.com/kitchenops/backoffice/internal/rbac"
)

// State is the lifecycle position of an Editor.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateRoleSelected
	StateDirty
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateRoleSelected:
		return "role_selected"
	case StateDirty:
		return "dirty"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Editor is one grant editing session: load the catalog, pick a role,
// toggle nodes, commit. It is not safe for concurrent use.
type Editor struct {
	svc *Service
	ec  EditorContext

	state     State
	catalog   *permissions.Catalog
	view      *permissions.Catalog
	role      rbac.Role
	version   int64
	persisted Selection
	selected  Selection
}

// NewEditor starts an editing session for ec.
func (s *Service) NewEditor(ec EditorContext) *Editor {
	return &Editor{svc: s, ec: ec}
}

// State returns the current lifecycle state.
func (e *Editor) State() State {
	return e.state
}

// Load fetches the catalog. It may be called again to pick up catalog
// changes; any role selection is kept only if still valid.
func (e *Editor) Load(ctx context.Context) error {
	catalog, err := e.svc.Catalog(ctx)
	if err != nil {
		return err
	}
	e.catalog = catalog
	if e.state == StateUnloaded {
		e.state = StateLoaded
		return nil
	}
	if e.state >= StateRoleSelected {
		e.view = e.ec.View(catalog, e.role)
	}
	return nil
}

// Tree returns the nodes the editing context may see. After a role is
// selected it is narrowed to what that role may hold.
func (e *Editor) Tree() []permissions.Node {
	if e.state == StateUnloaded {
		return nil
	}
	var nodes []permissions.Node
	if e.state >= StateRoleSelected {
		for _, c := range []permissions.Category{permissions.CategoryAdmin, permissions.CategoryPartner} {
			nodes = append(nodes, e.view.Tree(c)...)
		}
		return nodes
	}
	for _, c := range e.ec.Categories() {
		nodes = append(nodes, e.catalog.Tree(c)...)
	}
	return nodes
}

// SelectRole loads roleID's persisted grants, discarding unsaved edits.
func (e *Editor) SelectRole(ctx context.Context, roleID uuid.UUID) error {
	if e.state == StateUnloaded {
		return fmt.Errorf("%w: select role before load", ErrInvalidState)
	}
	grants, err := e.svc.FindByRole(ctx, e.ec, roleID)
	if err != nil {
		return err
	}
	e.role = grants.Role
	e.version = grants.Role.PermissionsVersion
	e.view = e.ec.View(e.catalog, grants.Role)
	e.persisted = NewSelection(grants.Selected...)
	e.selected = e.persisted.Clone()
	e.state = StateRoleSelected
	return nil
}

// Role returns the selected role.
func (e *Editor) Role() (rbac.Role, bool) {
	return e.role, e.state >= StateRoleSelected
}

// Version returns the grant version commits are checked against.
func (e *Editor) Version() int64 {
	return e.version
}

// Selected returns the working selection.
func (e *Editor) Selected() Selection {
	return e.selected.Clone()
}

// Restore replaces the working selection with ids held by a client,
// checked against version on commit. Unknown ids are rejected.
func (e *Editor) Restore(ids []uuid.UUID, version int64) error {
	if e.state < StateRoleSelected {
		return fmt.Errorf("%w: restore before role selection", ErrInvalidState)
	}
	next := NewSelection(ids...)
	for id := range next {
		if _, ok := e.view.Get(id); !ok {
			return fmt.Errorf("%w: %s", ErrPermissionNotFound, id)
		}
	}
	e.selected = next
	e.version = version
	e.state = StateDirty
	return nil
}

// Toggle flips id in the working selection and returns the result.
func (e *Editor) Toggle(id uuid.UUID) (Selection, error) {
	if e.state < StateRoleSelected {
		return nil, fmt.Errorf("%w: toggle before role selection", ErrInvalidState)
	}
	next, err := Toggle(e.view, e.selected, id)
	if err != nil {
		return nil, err
	}
	e.selected = next
	e.state = StateDirty
	return next.Clone(), nil
}

// Reset drops unsaved edits.
func (e *Editor) Reset() error {
	if e.state < StateRoleSelected {
		return fmt.Errorf("%w: nothing to reset", ErrInvalidState)
	}
	e.selected = e.persisted.Clone()
	e.state = StateRoleSelected
	return nil
}

// Commit saves the working selection. A failed commit keeps the working
// selection so it can be retried.
func (e *Editor) Commit(ctx context.Context) error {
	switch e.state {
	case StateRoleSelected:
		return nil
	case StateDirty:
	default:
		return fmt.Errorf("%w: commit before role selection", ErrInvalidState)
	}
	version, err := e.svc.Commit(ctx, e.ec, e.role.ID, e.selected.IDs(), e.version)
	if err != nil {
		return err
	}
	e.version = version
	e.role.PermissionsVersion = version
	e.persisted = e.selected.Clone()
	e.state = StateRoleSelected
	return nil
}
