// Package allocator derives the isolated cluster namespace for an owner/project pair.
package allocator

import "strings"

// MaxNamespaceLength is the DNS-1123 label limit enforced by the API server.
const MaxNamespaceLength = 63

// Namespace returns the namespace for (owner, project). The result depends only
// on its inputs, contains only [a-z0-9-], is at most 63 characters long and
// never ends with a hyphen. It may be empty when both inputs sanitize to
// nothing; request validation rejects that case.
func Namespace(owner, project string) string {
	name := sanitize(owner) + "-" + sanitize(project)
	if len(name) > MaxNamespaceLength {
		name = name[:MaxNamespaceLength]
	}
	return strings.TrimRight(name, "-")
}

// sanitize lowercases s and drops every character outside [a-z0-9-].
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
