package rbac

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// GrantReader loads the permission names granted to a role.
type GrantReader interface {
	PermissionNamesForRole(ctx context.Context, roleID uuid.UUID) ([]string, error)
}

// Service computes effective permissions for roles.
type Service struct {
	grants GrantReader
	group  singleflight.Group
}

// NewService constructs a Service backed by the provided grant reader.
func NewService(grants GrantReader) *Service {
	return &Service{grants: grants}
}

// EffectivePermissionNames returns the deduplicated, sorted names granted
// to roleID. Concurrent calls for the same role share one lookup.
func (s *Service) EffectivePermissionNames(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	v, err, _ := s.group.Do(roleID.String(), func() (interface{}, error) {
		return s.grants.PermissionNamesForRole(ctx, roleID)
	})
	if err != nil {
		return nil, err
	}
	return normalizeNames(v.([]string)), nil
}

func normalizeNames(names []string) []string {
	unique := make(map[string]string, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		key := strings.ToLower(n)
		if _, ok := unique[key]; !ok {
			unique[key] = n
		}
	}
	out := make([]string, 0, len(unique))
	for _, n := range unique {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}
