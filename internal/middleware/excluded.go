package middleware

import "strings"

// ExcludedPrefixes is the single authoritative bypass list: requests whose
// path matches one of these skip token verification and tenant resolution
// entirely. Every middleware consults this list; do not duplicate it.
var ExcludedPrefixes = []string{
	"/api/v1/health-check",
	"/api/v1/health",
	"/api/v1/shop/",
	"/api/v1/auth/",
	"/api/v1/equipment/",
	"/api/v1/admin/",
}

// Bypassed reports whether a request path is exempt from tenant resolution.
func Bypassed(path string) bool {
	for _, prefix := range ExcludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
