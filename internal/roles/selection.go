package roles

import (
	"sort"

	"github.com/google/uuid"
)

// Selection is a set of selected permission ids.
type Selection map[uuid.UUID]struct{}

// NewSelection builds a selection from ids.
func NewSelection(ids ...uuid.UUID) Selection {
	s := make(Selection, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is selected.
func (s Selection) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of selected ids.
func (s Selection) Len() int {
	return len(s)
}

// Clone returns an independent copy.
func (s Selection) Clone() Selection {
	c := make(Selection, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Equal reports whether both selections hold the same ids.
func (s Selection) Equal(other Selection) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// IDs returns the selected ids in a stable order.
func (s Selection) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}
