package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-orchestrator-go/internal/domain"
)

func writeRequest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRenderPrintsDocumentsInOrder(t *testing.T) {
	path := writeRequest(t, `
project_id: "42"
project_name: Shop
username: alice
service_name: frontend
image_name: ghcr.io/alice/shop-frontend:1.0.0
env_vars:
  LOG_LEVEL: debug
`)

	var out bytes.Buffer
	err := Execute([]string{"render", "-f", path, "--id", "d-123", "--domain", "apps.example.com"}, &out, nil)
	require.NoError(t, err)

	rendered := out.String()
	docs := strings.Split(rendered, "\n---\n")
	require.Len(t, docs, 5)
	for i, want := range []string{"# namespace", "# workload", "# service", "# ingress", "# configmap"} {
		assert.True(t, strings.HasPrefix(docs[i], want), "document %d starts with %q", i, want)
	}
	assert.Contains(t, rendered, "namespace: alice-shop")
	assert.Contains(t, rendered, "host: apps.example.com")
	assert.Contains(t, rendered, "d-123")
}

func TestRenderRejectsInvalidRequest(t *testing.T) {
	path := writeRequest(t, `
project_id: "42"
project_name: Shop
username: alice
service_name: frontend
`)

	err := Execute([]string{"render", "-f", path}, &bytes.Buffer{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "image_name")
}

func TestRenderRejectsUnknownFields(t *testing.T) {
	path := writeRequest(t, `
project_id: "42"
project_name: Shop
username: alice
service_name: frontend
image_name: nginx
replica_count: 3
`)

	err := Execute([]string{"render", "-f", path}, &bytes.Buffer{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica_count")
}

func TestRenderRequiresFile(t *testing.T) {
	err := Execute([]string{"render"}, &bytes.Buffer{}, nil)
	require.Error(t, err)
}

func TestNamespaceCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Execute([]string{"namespace", "Alice_Smith", "My Project!"}, &out, nil))
	assert.Equal(t, "alicesmith-myproject\n", out.String())

	err := Execute([]string{"namespace", "!!!", "???"}, &bytes.Buffer{}, nil)
	assert.Error(t, err)

	err = Execute([]string{"namespace", "alice"}, &bytes.Buffer{}, nil)
	assert.Error(t, err)
}
