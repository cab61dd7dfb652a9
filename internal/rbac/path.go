package rbac

import (
	"path"
	"regexp"
	"strings"
)

var uuidSegment = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Shape is a request path reduced to comparable segments.
type Shape struct {
	// Segments is the cleaned, lower-cased path split on "/".
	Segments []string
	// Static is Segments with every UUID segment removed.
	Static []string
}

// ParsePath cleans raw, lower-cases it and splits it into segments. Dot
// segments are resolved first so "/public/../admin" is seen as "/admin".
func ParsePath(raw string) Shape {
	cleaned := path.Clean("/" + strings.ToLower(strings.TrimSpace(raw)))
	var shape Shape
	for _, seg := range strings.Split(cleaned, "/") {
		if seg == "" {
			continue
		}
		shape.Segments = append(shape.Segments, seg)
		if !IsUUIDSegment(seg) {
			shape.Static = append(shape.Static, seg)
		}
	}
	return shape
}

// IsUUIDSegment reports whether seg is an 8-4-4-4-12 hexadecimal identifier.
func IsUUIDSegment(seg string) bool {
	return len(seg) == 36 && uuidSegment.MatchString(seg)
}

// NormalizePath returns the lower-cased path with UUID segments stripped,
// e.g. "/partner/establishments/<uuid>/staff" becomes
// "/partner/establishments/staff".
func NormalizePath(raw string) string {
	return join(ParsePath(raw).Static)
}

func join(segs []string) string {
	return "/" + strings.Join(segs, "/")
}

// hasSegmentPrefix compares whole segments, so "/partner/establishment"
// never prefixes "/partner/establishments".
func hasSegmentPrefix(prefix, segs []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if prefix[i] != segs[i] {
			return false
		}
	}
	return true
}
