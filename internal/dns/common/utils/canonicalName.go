package utils

import "strings"

// CanonicalDNSName returns a DNS name in the form used for authority lookups:
//   - lowercased
//   - trimmed of surrounding whitespace
//   - fully qualified, ending in exactly one dot
//
// The root stays "." and an empty or whitespace-only name stays empty.
func CanonicalDNSName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = strings.TrimRight(name, ".")
	if name == "" {
		return "."
	}
	return name + "."
}

// SameDNSName reports whether a and b name the same node, ignoring case
// and a trailing dot.
func SameDNSName(a, b string) bool {
	return CanonicalDNSName(a) == CanonicalDNSName(b)
}
