package audittrail

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// pathInfo is the resource identity inferred from a request path.
// For /api/v1/observations/{uuid}/evidence the parent is "observations"
// with the uuid as parentID and "evidence" as the sub-resource.
type pathInfo struct {
	parentResource string
	parentID       string
	subResource    string
	subResourceID  string
}

// resource returns the effective resource type for the log entry: the
// sub-resource when one was found, the parent otherwise.
func (p pathInfo) resource() string {
	if p.subResource != "" {
		return p.subResource
	}
	return p.parentResource
}

// resourceID returns the effective resource instance id for the log
// entry.
func (p pathInfo) resourceID() string {
	if p.subResourceID != "" {
		return p.subResourceID
	}
	return p.parentID
}

// nested reports whether the path addressed a sub-resource of a known
// parent instance.
func (p pathInfo) nested() bool {
	return p.subResource != "" && p.parentID != ""
}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// inferPath derives the resource identity from a request path. The
// leading API-version prefix is stripped; the first segment is the
// parent resource; a UUID-shaped second segment is the parent id; a
// non-UUID third segment is a sub-resource; a UUID-shaped fourth segment
// is the sub-resource id.
func inferPath(path string) pathInfo {
	segments := splitPath(path)
	if len(segments) > 0 && segments[0] == "api" {
		segments = segments[1:]
	}
	if len(segments) > 0 && versionSegment.MatchString(segments[0]) {
		segments = segments[1:]
	}

	var info pathInfo
	if len(segments) == 0 {
		return info
	}
	info.parentResource = segments[0]

	if len(segments) > 1 && isUUID(segments[1]) {
		info.parentID = segments[1]
	}
	if len(segments) > 2 && !isUUID(segments[2]) {
		info.subResource = segments[2]
	}
	if len(segments) > 3 && info.subResource != "" && isUUID(segments[3]) {
		info.subResourceID = segments[3]
	}
	return info
}

func splitPath(path string) []string {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// isUUID matches the canonical 36-character UUID shape. Other id formats
// are treated as path words, not instance ids.
func isUUID(segment string) bool {
	if len(segment) != 36 {
		return false
	}
	_, err := uuid.Parse(segment)
	return err == nil
}

// singularize renders a plural path segment as the singular resource
// noun used in descriptions and permission checks.
func singularize(resource string) string {
	switch {
	case strings.HasSuffix(resource, "ies"):
		return strings.TrimSuffix(resource, "ies") + "y"
	case strings.HasSuffix(resource, "ses"):
		return strings.TrimSuffix(resource, "es")
	case strings.HasSuffix(resource, "ss"), strings.HasSuffix(resource, "us"):
		// "status", "progress": not plurals.
		return resource
	case strings.HasSuffix(resource, "s"):
		return strings.TrimSuffix(resource, "s")
	default:
		return resource
	}
}
