package obs

import "strings"

// CanonicalPath collapses resource identifiers out of request paths so metric
// label cardinality stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "cases":
			if len(parts) == 3 {
				return "/v1/cases/:id"
			}
			if len(parts) == 4 && parts[3] == "submit" {
				return "/v1/cases/:id/submit"
			}
			if len(parts) == 4 && parts[3] == "family" {
				return "/v1/cases/:id/family"
			}
		case "invites":
			if len(parts) == 3 {
				return "/v1/invites/:role"
			}
		}
	}
	return path
}
