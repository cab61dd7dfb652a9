package shared

// Protected areas of the back office.
const (
	PrefixAdmin   = "/admin"
	PrefixPartner = "/partner"
)

// Role editor mount points. The partner editor lives inside the partner
// office so that its permission name gates it like any other partner route.
const (
	PathAdminRoles   = PrefixAdmin + "/roles"
	PathPartnerRoles = PrefixPartner + "/office/roles"
)

// ProtectedPrefixes lists the gated areas in their default configuration.
func ProtectedPrefixes() []string {
	return []string{PrefixAdmin, PrefixPartner}
}
