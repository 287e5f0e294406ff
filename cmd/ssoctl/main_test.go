package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryEnv points the CLI at a throwaway in-memory store
func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("SECRET_PASSPHRASE", "passphrase")
	t.Setenv("SECRET_SALT", "saltsaltsalt")
	t.Setenv("ARGON2_MEMORY", "1024")
	t.Setenv("ARGON2_ITERATIONS", "1")
	t.Setenv("ARGON2_PARALLELISM", "1")
	t.Setenv("ROLES_FILE", "")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	tenantID = 0
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// TestPurpose: Validates that audit flags translate into a query filter.
// Scope: Unit Test
// Expected: Set flags populate the filter; unset flags leave fields nil.
// Test Case ID: CLI-01
func TestAuditFilter_FromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addFilterFlags(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--origin", "192.0.2.1", "--failed", "--since", "1h"}))

	tenantID = 3
	defer func() { tenantID = 0 }()

	f, err := auditFilter(cmd)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", f.Origin)
	require.NotNil(t, f.TenantID)
	assert.Equal(t, int64(3), *f.TenantID)
	require.NotNil(t, f.Success)
	assert.False(t, *f.Success)
	require.NotNil(t, f.Since)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), *f.Since, time.Minute)
	assert.Nil(t, f.SubjectID)
	assert.Zero(t, f.Limit)

	bad := &cobra.Command{Use: "test"}
	addFilterFlags(bad)
	require.NoError(t, bad.ParseFlags([]string{"--since", "yesterday"}))
	_, err = auditFilter(bad)
	assert.Error(t, err)
}

// TestPurpose: Validates that tenant scoped commands refuse to run without a tenant.
// Scope: Unit Test
// Expected: account list without --tenant fails before touching the store.
// Test Case ID: CLI-02
func TestCommands_RequireTenant(t *testing.T) {
	memoryEnv(t)
	err := execute(t, "account", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant")
}

// TestPurpose: Validates that a mutating command runs against the in-memory store.
// Scope: Unit Test
// Expected: group create succeeds and a bad role id is rejected.
// Test Case ID: CLI-03
func TestGroupCreate_Memory(t *testing.T) {
	memoryEnv(t)
	require.NoError(t, execute(t, "--tenant", "1", "group", "create", "raiders", "42"))

	err := execute(t, "--tenant", "1", "group", "create", "raiders", "forty-two")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role id")
}

// TestPurpose: Validates that rows referencing unknown groups are written to the rejects file.
// Scope: Unit Test
// Expected: The command fails and the rejects file carries the row with its error.
// Test Case ID: CLI-04
func TestImport_WritesRejectedRows(t *testing.T) {
	memoryEnv(t)
	dir := t.TempDir()
	input := filepath.Join(dir, "accounts.csv")
	rejects := filepath.Join(dir, "rejected.csv")
	require.NoError(t, os.WriteFile(input, []byte(
		"account_name,account_password,group_name,aliases,tags\n"+
			"healer1,pw1,,h1,healer\n"+
			"tank1,pw2,missing,,\n"), 0o600))

	err := execute(t, "--tenant", "1", "import", input, "--errors", rejects)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 row(s) failed")

	data, err := os.ReadFile(rejects)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tank1,pw2,missing")
	assert.NotContains(t, string(data), "healer1")
}

// TestPurpose: Validates that admin tokens cannot be minted without a signing secret.
// Scope: Unit Test
// Security: Tokens are never signed with an empty key
// Expected: token issue fails when ADMIN_JWT_SECRET is unset.
// Test Case ID: CLI-05
func TestTokenIssue_RequiresSecret(t *testing.T) {
	memoryEnv(t)
	t.Setenv("ADMIN_JWT_SECRET", "")
	err := execute(t, "token", "issue", "ops")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_JWT_SECRET")
}
