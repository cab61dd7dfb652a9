package roles

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kitchenops/backoffice/internal/permissions"
)

// Toggle flips id in selected and returns the new selection; selected is
// not modified. Activating a node also activates every unselected ancestor
// up to the first one already selected. Deactivating a node removes it
// together with all of its descendants. Both directions keep the rule that
// no permission is selected without its parent.
func Toggle(catalog *permissions.Catalog, selected Selection, id uuid.UUID) (Selection, error) {
	node, ok := catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPermissionNotFound, id)
	}
	next := selected.Clone()
	if !next.Has(node.ID) {
		activate(catalog, next, node)
		return next, nil
	}
	delete(next, node.ID)
	for _, child := range catalog.Descendants(node.ID) {
		delete(next, child)
	}
	return next, nil
}

func activate(catalog *permissions.Catalog, selected Selection, node permissions.Permission) {
	selected[node.ID] = struct{}{}
	current := node
	for current.HasParent() {
		parent, ok := catalog.Get(*current.ParentID)
		if !ok || selected.Has(parent.ID) {
			return
		}
		selected[parent.ID] = struct{}{}
		current = parent
	}
}

// Dangling returns the ids in selected whose loaded parent is unselected.
func Dangling(catalog *permissions.Catalog, selected Selection) []uuid.UUID {
	var out []uuid.UUID
	for _, id := range selected.IDs() {
		p, ok := catalog.Get(id)
		if !ok || !p.HasParent() {
			continue
		}
		if _, loaded := catalog.Get(*p.ParentID); loaded && !selected.Has(*p.ParentID) {
			out = append(out, id)
		}
	}
	return out
}
