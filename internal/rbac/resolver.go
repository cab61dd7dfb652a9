package rbac

import (
	"strings"

	"github.com/kitchenops/backoffice/internal/shared"
)

// DeepRouteSegments is the depth from which coarse grants stop covering
// sub-routes. A permission shorter than this only authorizes paths of at
// most DeepRouteSegments-1 segments; longer permissions cover everything
// nested under them.
const DeepRouteSegments = 3

// Reason explains an authorization decision.
type Reason string

const (
	ReasonSuperAccess Reason = "super_access"
	ReasonUngated     Reason = "ungated"
	ReasonGranted     Reason = "granted"
	ReasonDenied      Reason = "denied"
	ReasonNoPrincipal Reason = "no_principal"
)

// Decision is the outcome of one authorization check.
type Decision struct {
	Allowed   bool
	Reason    Reason
	MatchedBy string
}

// ResolverConfig configures a Resolver. Empty fields take the defaults.
type ResolverConfig struct {
	// SuperTags are coarse role tags granted every path.
	SuperTags []string
	// OwnerEmails are platform-owner identities granted every path.
	OwnerEmails []string
	// ProtectedPrefixes are the gated areas; other paths pass.
	ProtectedPrefixes []string
}

// Resolver decides whether a principal may reach a request path. It holds
// only configuration and is safe for concurrent use.
type Resolver struct {
	superTags   map[string]struct{}
	ownerEmails map[string]struct{}
	prefixes    []string
}

// NewResolver builds a Resolver from cfg.
func NewResolver(cfg ResolverConfig) *Resolver {
	if len(cfg.SuperTags) == 0 {
		cfg.SuperTags = []string{shared.RoleTagAdmin, shared.RoleTagOwner}
	}
	if len(cfg.ProtectedPrefixes) == 0 {
		cfg.ProtectedPrefixes = shared.ProtectedPrefixes()
	}
	r := &Resolver{
		superTags:   make(map[string]struct{}, len(cfg.SuperTags)),
		ownerEmails: make(map[string]struct{}, len(cfg.OwnerEmails)),
	}
	for _, tag := range cfg.SuperTags {
		if tag = strings.ToUpper(strings.TrimSpace(tag)); tag != "" {
			r.superTags[tag] = struct{}{}
		}
	}
	for _, email := range cfg.OwnerEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			r.ownerEmails[email] = struct{}{}
		}
	}
	for _, prefix := range cfg.ProtectedPrefixes {
		if segs := ParsePath(prefix).Segments; len(segs) > 0 {
			r.prefixes = append(r.prefixes, join(segs))
		}
	}
	return r
}

// IsAuthorized reports whether principal may access path.
func (r *Resolver) IsAuthorized(path string, principal *shared.Principal) bool {
	return r.Decide(path, principal).Allowed
}

// Decide evaluates path for principal.
func (r *Resolver) Decide(path string, principal *shared.Principal) Decision {
	return r.DecideShape(ParsePath(path), principal)
}

// DecideShape evaluates an already parsed path.
func (r *Resolver) DecideShape(shape Shape, principal *shared.Principal) Decision {
	if r.superAccess(principal) {
		return Decision{Allowed: true, Reason: ReasonSuperAccess}
	}
	if !r.gated(shape) {
		return Decision{Allowed: true, Reason: ReasonUngated}
	}
	if principal == nil {
		return Decision{Reason: ReasonNoPrincipal}
	}
	if name, ok := MatchShape(shape, principal.PermissionNames); ok {
		return Decision{Allowed: true, Reason: ReasonGranted, MatchedBy: name}
	}
	return Decision{Reason: ReasonDenied}
}

// Gated reports whether path falls under a protected prefix. The prefix is
// compared as a string, so "/administrator" is gated by "/admin".
func (r *Resolver) Gated(path string) bool {
	return r.gated(ParsePath(path))
}

func (r *Resolver) gated(shape Shape) bool {
	cleaned := join(shape.Segments)
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(cleaned, prefix) {
			return true
		}
	}
	return false
}

func (r *Resolver) superAccess(p *shared.Principal) bool {
	if p == nil {
		return false
	}
	if _, ok := r.superTags[p.NormalizedTag()]; ok {
		return true
	}
	if email := strings.ToLower(strings.TrimSpace(p.Email)); email != "" {
		if _, ok := r.ownerEmails[email]; ok {
			return true
		}
	}
	return false
}

// Match reports the first permission name that authorizes path.
func Match(path string, names []string) (string, bool) {
	return MatchShape(ParsePath(path), names)
}

// MatchShape applies the prefix and depth rules to a parsed path. A name
// matches when its static segments prefix either the raw segments or the
// UUID-stripped segments of the path, subject to DeepRouteSegments.
func MatchShape(shape Shape, names []string) (string, bool) {
	for _, name := range names {
		perm := ParsePath(name).Static
		if len(perm) == 0 {
			continue
		}
		if covers(perm, shape.Segments) || covers(perm, shape.Static) {
			return name, true
		}
	}
	return "", false
}

func covers(perm, target []string) bool {
	if !hasSegmentPrefix(perm, target) {
		return false
	}
	if len(perm) < len(target) && len(target) >= DeepRouteSegments && len(perm) < DeepRouteSegments {
		return false
	}
	return true
}
