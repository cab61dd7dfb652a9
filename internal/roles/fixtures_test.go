package roles

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kitchenops/backoffice/internal/permissions"
	"github.com/kitchenops/backoffice/internal/rbac"
)

type fixture struct {
	catalog *permissions.Catalog
	ids     map[string]uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	seed := &permissions.Seed{Permissions: []permissions.SeedNode{
		{Name: "/admin", Category: "admin", Children: []permissions.SeedNode{
			{Name: "/admin/roles", Children: []permissions.SeedNode{
				{Name: "/admin/roles/edit"},
			}},
			{Name: "/admin/reports"},
		}},
		{Name: "/partner", Category: "partner", Children: []permissions.SeedNode{
			{Name: "/partner/office", Children: []permissions.SeedNode{
				{Name: "/partner/office/roles"},
			}},
			{Name: "/partner/establishments"},
		}},
	}}
	perms, err := seed.Flatten()
	require.NoError(t, err)
	catalog, err := permissions.NewCatalog(perms)
	require.NoError(t, err)
	ids := make(map[string]uuid.UUID, len(perms))
	for _, p := range perms {
		ids[p.Name] = p.ID
	}
	return fixture{catalog: catalog, ids: ids}
}

func (f fixture) sel(names ...string) Selection {
	s := NewSelection()
	for _, n := range names {
		s[f.ids[n]] = struct{}{}
	}
	return s
}

func (f fixture) idsOf(names ...string) []uuid.UUID {
	return f.sel(names...).IDs()
}

func (f fixture) LoadCatalog(context.Context) (*permissions.Catalog, error) {
	return f.catalog, nil
}

type memoryRepo struct {
	mu         sync.Mutex
	roles      map[uuid.UUID]rbac.Role
	grants     map[uuid.UUID][]uuid.UUID
	replaceErr error
	replaced   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{roles: map[uuid.UUID]rbac.Role{}, grants: map[uuid.UUID][]uuid.UUID{}}
}

func (m *memoryRepo) addRole(name string, owner *uuid.UUID) rbac.Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	role := rbac.Role{ID: uuid.New(), Name: name, OwnerID: owner, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.roles[role.ID] = role
	return role
}

func (m *memoryRepo) GetRole(_ context.Context, id uuid.UUID) (rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return rbac.Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (m *memoryRepo) ListRoles(_ context.Context, owner *uuid.UUID, all bool) ([]rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []rbac.Role{}
	for _, role := range m.roles {
		if all || (owner != nil && role.OwnedBy(*owner)) {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryRepo) CreateRole(_ context.Context, name string, owner *uuid.UUID) (rbac.Role, error) {
	m.mu.Lock()
	for _, role := range m.roles {
		sameOwner := (role.OwnerID == nil && owner == nil) || (role.OwnerID != nil && owner != nil && *role.OwnerID == *owner)
		if sameOwner && role.Name == name {
			m.mu.Unlock()
			return rbac.Role{}, ErrDuplicateRole
		}
	}
	m.mu.Unlock()
	return m.addRole(name, owner), nil
}

func (m *memoryRepo) FindByRole(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.grants[roleID]...), nil
}

func (m *memoryRepo) ReplaceAll(_ context.Context, roleID uuid.UUID, ids []uuid.UUID, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return 0, m.replaceErr
	}
	role, ok := m.roles[roleID]
	if !ok {
		return 0, ErrRoleNotFound
	}
	if expected != AnyVersion && role.PermissionsVersion != expected {
		return 0, ErrVersionConflict
	}
	role.PermissionsVersion++
	m.roles[roleID] = role
	m.grants[roleID] = append([]uuid.UUID(nil), ids...)
	m.replaced++
	return role.PermissionsVersion, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	roles []uuid.UUID
	err   error
}

func (n *recordingNotifier) RoleGrantsChanged(_ context.Context, roleID uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.roles = append(n.roles, roleID)
	return n.err
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveRoleCommit(outcome string) {
	o.outcomes = append(o.outcomes, outcome)
}

var errDiskFull = errors.New("disk full")
