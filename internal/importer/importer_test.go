package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/secret"
	"github.com/opentrusty/ssoproxy/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant int64 = 1

func newDirectory(t *testing.T) *directory.Service {
	t.Helper()
	cipher, err := secret.NewCipherFromKey(make([]byte, 32))
	require.NoError(t, err)
	store := memory.New()
	return directory.NewService(store.Accounts(), store.Aliases(), store.Tags(), store.Groups(), cipher)
}

// TestPurpose: Validates a mixed import: header, creation, update, missing group and short row.
// Scope: Unit Test
// Expected: Valid rows are imported with aliases, tags and membership; bad rows are reported.
// Test Case ID: IMP-01
func TestImport(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	_, err := dir.CreateGroup(ctx, tenant, "raiders", 42)
	require.NoError(t, err)
	_, err = dir.CreateAccount(ctx, tenant, "tank1", "old")
	require.NoError(t, err)

	input := strings.Join([]string{
		"account_name,account_password,group_name,aliases,tags",
		"healer1,pw1,raiders,h1|heal,support|pool",
		"tank1,new,raiders,,",
		"rogue1,pw3,ghosts,,",
		"short,row",
		"bard1,pw4,,,support",
	}, "\n")

	report, err := New(dir).Import(ctx, tenant, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Updated)
	require.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors[0].Error(), `group "ghosts" does not exist`)
	assert.Equal(t, 4, report.Errors[0].Line)
	assert.Contains(t, report.Errors[1].Error(), "fewer than 3 columns")
	assert.Empty(t, report.Warnings)

	healer, err := dir.Resolve(ctx, tenant, "heal")
	require.NoError(t, err)
	assert.Equal(t, "healer1", healer.Name)

	tank, err := dir.GetAccount(ctx, tenant, "tank1")
	require.NoError(t, err)
	plain, err := dir.RevealSecret(tank)
	require.NoError(t, err)
	assert.Equal(t, "new", plain)

	group, err := dir.GetGroup(ctx, tenant, "raiders")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"healer1", "tank1"}, group.Members)

	tags, err := dir.ListTags(ctx, tenant)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"bard1", "healer1"}, tags["support"])

	_, err = dir.GetAccount(ctx, tenant, "rogue1")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)
}

// TestPurpose: Validates that reimporting the same file is idempotent apart from warnings.
// Scope: Unit Test
// Expected: Second run updates every row; duplicate aliases are reported as warnings.
// Test Case ID: IMP-02
func TestImport_Rerun(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	input := "healer1,pw1,,h1,support\n"

	im := New(dir)
	_, err := im.Import(ctx, tenant, strings.NewReader(input))
	require.NoError(t, err)

	report, err := im.Import(ctx, tenant, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Updated)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], `alias "h1"`)
}

// Test Case ID: IMP-03
func TestWriteErrors(t *testing.T) {
	ctx := context.Background()
	report, err := New(newDirectory(t)).Import(ctx, tenant, strings.NewReader("a,b\n"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteErrors(&buf, report))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "error", rows[0][5])
	assert.Equal(t, []string{"a", "b", "", "", ""}, rows[1][:5])
	assert.Contains(t, rows[1][5], "fewer than 3 columns")
}
