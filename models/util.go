package models

import "strings"

// normalizeAddress lowercases and trims an email address. Every suppression
// comparison in the system goes through this so invariant 3 (§8) holds:
// the stored address always equals its own normalised form.
func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// NormalizeAddress is the exported form, used by repositories and services
// outside this package.
func NormalizeAddress(addr string) string {
	return normalizeAddress(addr)
}
