package permissions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Catalog is an immutable, indexed snapshot of the permission forest.
// Lookups by id, by parent and by name are map hits; the catalog is safe
// for concurrent readers once built.
type Catalog struct {
	ordered  []Permission
	byID     map[uuid.UUID]int
	byName   map[string]int
	children map[uuid.UUID][]int
}

// Node is the nested shape rendered by permission editors.
type Node struct {
	Permission
	Children []Node `json:"children,omitempty"`
}

// NewCatalog indexes perms after checking the forest invariants.
// Parents missing from perms are allowed; such nodes act as roots.
func NewCatalog(perms []Permission) (*Catalog, error) {
	c := &Catalog{
		ordered:  make([]Permission, len(perms)),
		byID:     make(map[uuid.UUID]int, len(perms)),
		byName:   make(map[string]int, len(perms)),
		children: make(map[uuid.UUID][]int),
	}
	copy(c.ordered, perms)
	sort.SliceStable(c.ordered, func(i, j int) bool {
		return strings.ToLower(c.ordered[i].Name) < strings.ToLower(c.ordered[j].Name)
	})

	for i, p := range c.ordered {
		if p.ID == uuid.Nil {
			return nil, fmt.Errorf("permissions: %q has no id", p.Name)
		}
		if _, ok := c.byID[p.ID]; ok {
			return nil, fmt.Errorf("%w: id %s", ErrDuplicate, p.ID)
		}
		key := strings.ToLower(p.Name)
		if _, ok := c.byName[key]; ok {
			return nil, fmt.Errorf("%w: name %s", ErrDuplicate, p.Name)
		}
		c.byID[p.ID] = i
		c.byName[key] = i
	}
	for i, p := range c.ordered {
		if !p.HasParent() {
			continue
		}
		if *p.ParentID == p.ID {
			return nil, fmt.Errorf("%w: %s is its own parent", ErrCycle, p.Name)
		}
		c.children[*p.ParentID] = append(c.children[*p.ParentID], i)
	}
	if err := c.checkAcyclic(); err != nil {
		return nil, err
	}
	return c, nil
}

// checkAcyclic walks every parent chain; a chain longer than the catalog
// can only mean a cycle.
func (c *Catalog) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(c.ordered))
	for start := range c.ordered {
		if state[start] == done {
			continue
		}
		var path []int
		idx, ok := start, true
		for ok && state[idx] != done {
			if state[idx] == visiting {
				return fmt.Errorf("%w: through %s", ErrCycle, c.ordered[idx].Name)
			}
			state[idx] = visiting
			path = append(path, idx)
			idx, ok = c.parentIndex(idx)
		}
		for _, i := range path {
			state[i] = done
		}
	}
	return nil
}

func (c *Catalog) parentIndex(i int) (int, bool) {
	p := c.ordered[i]
	if !p.HasParent() {
		return 0, false
	}
	idx, ok := c.byID[*p.ParentID]
	return idx, ok
}

// Len returns the number of permissions held.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ordered)
}

// All returns every permission ordered by name.
func (c *Catalog) All() []Permission {
	if c == nil {
		return nil
	}
	out := make([]Permission, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Get returns the permission with the given id.
func (c *Catalog) Get(id uuid.UUID) (Permission, bool) {
	if c == nil {
		return Permission{}, false
	}
	idx, ok := c.byID[id]
	if !ok {
		return Permission{}, false
	}
	return c.ordered[idx], true
}

// Lookup finds a permission by name, case-insensitively.
func (c *Catalog) Lookup(name string) (Permission, bool) {
	if c == nil {
		return Permission{}, false
	}
	idx, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Permission{}, false
	}
	return c.ordered[idx], true
}

// ListByCategory returns the permissions tagged with category, by name.
func (c *Catalog) ListByCategory(category Category) []Permission {
	if c == nil {
		return nil
	}
	var out []Permission
	for _, p := range c.ordered {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// ChildrenOf returns the direct children of id.
func (c *Catalog) ChildrenOf(id uuid.UUID) []Permission {
	if c == nil {
		return nil
	}
	idxs := c.children[id]
	out := make([]Permission, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, c.ordered[i])
	}
	return out
}

// AncestorChainOf returns the parents of p from nearest to root. The walk
// stops at a parent that is not loaded in this catalog.
func (c *Catalog) AncestorChainOf(p Permission) []Permission {
	if c == nil {
		return nil
	}
	var chain []Permission
	current := p
	for current.HasParent() {
		idx, ok := c.byID[*current.ParentID]
		if !ok {
			break
		}
		current = c.ordered[idx]
		chain = append(chain, current)
		if len(chain) > len(c.ordered) {
			break
		}
	}
	return chain
}

// Descendants returns the ids of every node below id, breadth first.
func (c *Catalog) Descendants(id uuid.UUID) []uuid.UUID {
	if c == nil {
		return nil
	}
	var out []uuid.UUID
	queue := []uuid.UUID{id}
	seen := map[uuid.UUID]struct{}{id: {}}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, i := range c.children[next] {
			childID := c.ordered[i].ID
			if _, ok := seen[childID]; ok {
				continue
			}
			seen[childID] = struct{}{}
			out = append(out, childID)
			queue = append(queue, childID)
		}
	}
	return out
}

// Roots returns the nodes without a loaded parent.
func (c *Catalog) Roots() []Permission {
	if c == nil {
		return nil
	}
	var out []Permission
	for i := range c.ordered {
		if _, ok := c.parentIndex(i); !ok {
			out = append(out, c.ordered[i])
		}
	}
	return out
}

// Filter returns a catalog restricted to category. Cross-category parents
// drop out and their children become roots of the filtered view.
func (c *Catalog) Filter(category Category) *Catalog {
	filtered, err := NewCatalog(c.ListByCategory(category))
	if err != nil {
		// A subset of a valid forest is a valid forest.
		panic(err)
	}
	return filtered
}

// Tree returns the nested node view of category.
func (c *Catalog) Tree(category Category) []Node {
	view := c.Filter(category)
	roots := view.Roots()
	out := make([]Node, 0, len(roots))
	for _, r := range roots {
		out = append(out, view.node(r))
	}
	return out
}

func (c *Catalog) node(p Permission) Node {
	n := Node{Permission: p}
	for _, child := range c.ChildrenOf(p.ID) {
		n.Children = append(n.Children, c.node(child))
	}
	return n
}
