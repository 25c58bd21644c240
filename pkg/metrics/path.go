package metrics

import "strings"

// NormalizePath collapses dynamic path segments (UUIDs, numeric ids,
// short alphanumeric ids) to a ":id" placeholder before a path is used as
// a metric label, preventing the cardinality explosion a raw r.URL.Path
// would cause.
func NormalizePath(path string) string {
	segments := splitPath(path)
	for i, seg := range segments {
		if looksLikeID(seg) {
			segments[i] = ":id"
		}
	}
	return joinPath(path, segments)
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func joinPath(original string, segments []string) string {
	leading := strings.HasPrefix(original, "/")
	trailing := len(original) > 1 && strings.HasSuffix(original, "/")
	joined := strings.Join(segments, "/")
	if leading {
		joined = "/" + joined
	}
	if trailing {
		joined += "/"
	}
	if joined == "" {
		return "/"
	}
	return joined
}

// looksLikeID reports whether seg is a dynamic identifier rather than a
// static route segment: every rune is a digit or hyphen (numeric/UUID
// ids), or the segment mixes letters and digits (short alphanumeric
// ids) and is longer than a typical static word.
func looksLikeID(seg string) bool {
	if seg == "" {
		return false
	}
	hasDigit, hasAlpha, hasHyphen := false, false, false
	for _, r := range seg {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '-':
			hasHyphen = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasAlpha = true
		default:
			return false
		}
	}
	if hasDigit && !hasAlpha {
		return true
	}
	if hasHyphen {
		return true
	}
	if hasDigit && hasAlpha && len(seg) >= 8 {
		return true
	}
	return false
}
