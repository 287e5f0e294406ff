package roles

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSnapshot = `
tenants:
  "1":
    subjects:
      "100": [42, 43]
      "200": []
  "2":
    subjects:
      "100": [7]
`

// TestPurpose: Validates that the role snapshot is parsed per tenant and subject.
// Scope: Unit Test
// Security: Roles are tenant scoped; the same subject can hold different roles per tenant
// Expected: Lookups return exactly the roles listed for (tenant, subject).
// Test Case ID: ROL-01
func TestParse_TenantScopedRoles(t *testing.T) {
	snapshot, err := Parse([]byte(sampleSnapshot))
	require.NoError(t, err)

	d := NewStatic(snapshot)
	ctx := context.Background()

	roles, err := d.Roles(ctx, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 43}, roles.IDs())

	roles, err = d.Roles(ctx, 2, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, roles.IDs())
}

// TestPurpose: Validates that unknown tenants and subjects hold no roles.
// Scope: Unit Test
// Security: Fail-closed role lookup
// Expected: Empty role set, no error.
// Test Case ID: ROL-02
func TestRoles_UnknownSubject(t *testing.T) {
	snapshot, err := Parse([]byte(sampleSnapshot))
	require.NoError(t, err)
	d := NewStatic(snapshot)

	roles, err := d.Roles(context.Background(), 1, 999)
	require.NoError(t, err)
	assert.Empty(t, roles)

	roles, err = d.Roles(context.Background(), 3, 100)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

// Test Case ID: ROL-03
func TestParse_InvalidKeys(t *testing.T) {
	_, err := Parse([]byte("tenants:\n  abc:\n    subjects: {}\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("tenants:\n  \"1\":\n    subjects:\n      xyz: [1]\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("tenants: ["))
	assert.Error(t, err)
}

// TestPurpose: Validates that a broken file does not replace a good snapshot.
// Scope: Unit Test
// Security: A bad deploy of the role file must not wipe or corrupt access
// Expected: Reload fails and previous roles remain.
// Test Case ID: ROL-04
func TestReload_KeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSnapshot), 0o600))

	d, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tenants: ["), 0o600))
	assert.Error(t, d.Reload())

	roles, err := d.Roles(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.True(t, roles.Has(42))
}

// TestPurpose: Validates that changes to the snapshot file are picked up while watching.
// Scope: Unit Test
// Expected: After rewriting the file, the new roles are served.
// Test Case ID: ROL-05
func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSnapshot), 0o600))

	d, err := Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx) }()

	// Give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	updated := "tenants:\n  \"1\":\n    subjects:\n      \"100\": [99]\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		roles, _ := d.Roles(context.Background(), 1, 100)
		return roles.Has(99) && !roles.Has(42)
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
