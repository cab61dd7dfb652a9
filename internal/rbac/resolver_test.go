package rbac

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitchenops/backoffice/internal/shared"
)

func principalWith(tag string, names ...string) *shared.Principal {
	return &shared.Principal{UserID: uuid.New(), RoleTag: tag, PermissionNames: names}
}

func TestUngatedPathsAlwaysPass(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	for _, path := range []string{"/", "/healthz", "/no-access", "/public/menu", "/ad/min"} {
		for _, p := range []*shared.Principal{nil, principalWith(shared.RoleTagUser), principalWith(shared.RoleTagUser, "/admin")} {
			d := r.Decide(path, p)
			assert.True(t, d.Allowed, path)
			assert.Equal(t, ReasonUngated, d.Reason, path)
		}
	}
}

func TestPrefixLookalikesStayGated(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	manager := principalWith(shared.RoleTagManager)
	for _, path := range []string{"/administrator", "/partnerx/foo", "/partners/list", "/ADMINISTRATOR/../admins"} {
		assert.True(t, r.Gated(path), path)
		d := r.Decide(path, manager)
		assert.False(t, d.Allowed, path)
		assert.Equal(t, ReasonDenied, d.Reason, path)
	}
	// A grant on /admin does not reach a lookalike path.
	assert.False(t, r.IsAuthorized("/administrator", principalWith(shared.RoleTagManager, "/admin")))
	assert.False(t, r.IsAuthorized("/partnerx/foo", nil))
}

func TestSuperAccessCoversEveryPath(t *testing.T) {
	r := NewResolver(ResolverConfig{OwnerEmails: []string{"Owner@Kitchen.test"}})
	supers := []*shared.Principal{
		principalWith(" admin "),
		principalWith("OWNER"),
		{UserID: uuid.New(), RoleTag: shared.RoleTagPartner, Email: "owner@kitchen.test"},
	}
	for _, p := range supers {
		for _, path := range []string{"/admin/roles", "/partner/office/staff/roles", "%%%/../admin", "", "/admin/" + uuid.NewString()} {
			d := r.Decide(path, p)
			assert.True(t, d.Allowed, path)
			assert.Equal(t, ReasonSuperAccess, d.Reason)
		}
	}
}

func TestCustomSuperTags(t *testing.T) {
	r := NewResolver(ResolverConfig{SuperTags: []string{"root"}})
	assert.True(t, r.IsAuthorized("/admin", principalWith("ROOT")))
	assert.False(t, r.IsAuthorized("/admin", principalWith(shared.RoleTagAdmin)))
}

func TestDepthGuard(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	path := "/partner/office/staff/roles"

	assert.False(t, r.IsAuthorized(path, principalWith(shared.RoleTagPartner, "/partner/office")))
	assert.True(t, r.IsAuthorized(path, principalWith(shared.RoleTagPartner, "/partner/office/staff")))

	// shallow routes are still covered by shallow grants
	assert.True(t, r.IsAuthorized("/partner/office", principalWith(shared.RoleTagPartner, "/partner")))
	assert.False(t, r.IsAuthorized("/partner/office/roles", principalWith(shared.RoleTagPartner, "/partner")))
}

func TestUUIDSegmentsAreStripped(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	p := principalWith(shared.RoleTagPartner, "/partner/establishments/staff")

	d := r.Decide("/partner/establishments/3fa85f64-5717-4562-b3fc-2c963f66afa6/staff", p)
	require.True(t, d.Allowed)
	assert.Equal(t, ReasonGranted, d.Reason)
	assert.Equal(t, "/partner/establishments/staff", d.MatchedBy)

	assert.True(t, r.IsAuthorized("/partner/establishments/3fa85f64-5717-4562-b3fc-2c963f66afa6/staff/"+uuid.NewString(), p))
	assert.False(t, r.IsAuthorized("/partner/establishments/3fa85f64-5717-4562-b3fc-2c963f66afa6/menu", p))
}

func TestRawSegmentsAlsoMatch(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	p := principalWith(shared.RoleTagPartner, "/partner/establishments")
	assert.True(t, r.IsAuthorized("/partner/establishments", p))
	assert.True(t, r.IsAuthorized("/partner/establishments/"+uuid.NewString(), p))
}

func TestSegmentBoundaries(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	p := principalWith(shared.RoleTagPartner, "/partner/establishment")
	assert.False(t, r.IsAuthorized("/partner/establishments", p))
}

func TestFailClosed(t *testing.T) {
	r := NewResolver(ResolverConfig{})

	d := r.Decide("/admin/roles", nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoPrincipal, d.Reason)

	d = r.Decide("/admin/roles", principalWith(shared.RoleTagUser))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDenied, d.Reason)

	assert.False(t, r.IsAuthorized("/admin/roles", principalWith("", "", "/", "   ")))
	assert.False(t, r.IsAuthorized("/admin/roles", &shared.Principal{}))
}

func TestDotSegmentsCannotEscapeGate(t *testing.T) {
	r := NewResolver(ResolverConfig{})
	p := principalWith(shared.RoleTagUser)
	assert.False(t, r.IsAuthorized("/public/../admin/roles", p))
	assert.False(t, r.IsAuthorized("/ADMIN/Roles", p))
}

func TestCustomProtectedPrefixes(t *testing.T) {
	r := NewResolver(ResolverConfig{ProtectedPrefixes: []string{"/ops"}})
	assert.True(t, r.Gated("/ops/queues"))
	assert.False(t, r.Gated("/admin"))
	assert.True(t, r.IsAuthorized("/admin/roles", nil))
	assert.False(t, r.IsAuthorized("/ops/queues", nil))
}

func TestMatch(t *testing.T) {
	name, ok := Match("/admin/roles/"+uuid.NewString()+"/permissions", []string{"/partner", "/admin/roles/permissions"})
	require.True(t, ok)
	assert.Equal(t, "/admin/roles/permissions", name)

	_, ok = Match("/admin/roles", nil)
	assert.False(t, ok)
}
