package tenant

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenantsYAML = `tenants:
  - hash: abc123
    name: Acme Support
    pageOrigins:
      - https://acme.example.com
  - hash: def456
    name: Globex
`

func writeTenants(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAndLookup(t *testing.T) {
	path := writeTenants(t, t.TempDir(), tenantsYAML)
	reg, err := Load(path, slog.Default())
	require.NoError(t, err)
	defer reg.Close()

	assert.Equal(t, 2, reg.Count())

	acme, ok := reg.Lookup("abc123")
	require.True(t, ok)
	assert.Equal(t, "Acme Support", acme.Name)
	assert.Equal(t, []string{"https://acme.example.com"}, acme.PageOrigins)

	_, ok = reg.Lookup("nope")
	assert.False(t, ok)
}

func TestLoadRejectsMissingHash(t *testing.T) {
	path := writeTenants(t, t.TempDir(), "tenants:\n  - name: anonymous\n")
	_, err := Load(path, slog.Default())
	require.Error(t, err)
}

func TestNilRegistryAllowsEverything(t *testing.T) {
	var reg *Registry
	tn, ok := reg.Lookup("anything")
	assert.True(t, ok)
	assert.Equal(t, "anything", tn.Hash)
	assert.Zero(t, reg.Count())
	assert.NoError(t, reg.Close())
}

func TestHotReload(t *testing.T) {
	dir := t.TempDir()
	path := writeTenants(t, dir, tenantsYAML)
	reg, err := Load(path, slog.Default())
	require.NoError(t, err)
	defer reg.Close()

	writeTenants(t, dir, tenantsYAML+"  - hash: ghi789\n    name: Initech\n")

	require.Eventually(t, func() bool {
		_, ok := reg.Lookup("ghi789")
		return ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestBadReloadKeepsLastGoodRegistry(t *testing.T) {
	dir := t.TempDir()
	path := writeTenants(t, dir, tenantsYAML)
	reg, err := Load(path, slog.Default())
	require.NoError(t, err)
	defer reg.Close()

	writeTenants(t, dir, "tenants: [")

	// Give the watcher a moment; the registry must keep serving.
	time.Sleep(200 * time.Millisecond)
	_, ok := reg.Lookup("abc123")
	assert.True(t, ok)
	assert.Equal(t, 2, reg.Count())
}
