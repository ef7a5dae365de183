package allocator

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var namespacePattern = regexp.MustCompile(`^[a-z0-9-]*$`)

func TestNamespace(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		project string
		want    string
	}{
		{name: "mixed case and punctuation", owner: "User1!", project: "Project A", want: "user1-projecta"},
		{name: "already clean", owner: "alice", project: "shop", want: "alice-shop"},
		{name: "hyphens kept", owner: "team-a", project: "my-app", want: "team-a-my-app"},
		{name: "trailing hyphen stripped", owner: "bob", project: "app-", want: "bob-app"},
		{name: "project sanitizes to nothing", owner: "bob", project: "!!!", want: "bob"},
		{name: "unicode dropped", owner: "Zoë", project: "Café", want: "zo-caf"},
		{name: "both empty", owner: "", project: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Namespace(tt.owner, tt.project))
		})
	}
}

func TestNamespaceTruncation(t *testing.T) {
	owner := strings.Repeat("a", 40)
	project := strings.Repeat("b", 40)

	ns := Namespace(owner, project)

	assert.Len(t, ns, MaxNamespaceLength)
	assert.True(t, strings.HasPrefix(ns, owner+"-"))
}

func TestNamespaceTruncationLandsOnHyphen(t *testing.T) {
	// 62 chars of owner puts the joining hyphen at position 63.
	owner := strings.Repeat("x", 62)

	ns := Namespace(owner, "project")

	assert.Equal(t, owner, ns)
	assert.False(t, strings.HasSuffix(ns, "-"))
}

func TestNamespaceProperties(t *testing.T) {
	inputs := []string{
		"", "-", "---", "A", "user_name", "UPPER", "dots.and.dots", "spaces in name",
		"trailing-", "-leading", strings.Repeat("z-", 50), "ünïcödé", "123", "a/b\\c",
	}

	for _, owner := range inputs {
		for _, project := range inputs {
			ns := Namespace(owner, project)

			assert.LessOrEqual(t, len(ns), MaxNamespaceLength)
			assert.Regexp(t, namespacePattern, ns)
			assert.False(t, strings.HasSuffix(ns, "-"), "owner=%q project=%q -> %q", owner, project, ns)
			assert.Equal(t, ns, Namespace(owner, project), "namespace must be deterministic")
		}
	}
}
