// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/opentrusty/ssoproxy/internal/authz"
	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/revocation"
	"github.com/opentrusty/ssoproxy/internal/secret"
	"github.com/opentrusty/ssoproxy/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	dir     *directory.Service
	revoke  *revocation.Service
	engine  *authz.Engine
	store   *memory.Store
	healer  *directory.Account
	orphan  *directory.Account
	foreign *directory.Account
}

// newFixture builds tenant 1 with healer1 in group raiders (role 42) and an
// ungrouped account, plus tenant 2 with a raiders group of its own
func newFixture(t *testing.T) *fixture {
	t.Helper()
	cipher, err := secret.NewCipherFromKey(make([]byte, 32))
	require.NoError(t, err)

	store := memory.New()
	dir := directory.NewService(store.Accounts(), store.Aliases(), store.Tags(), store.Groups(), cipher)
	rev := revocation.NewService(store.Revocations())
	ctx := context.Background()

	healer, err := dir.CreateAccount(ctx, 1, "healer1", "pw")
	require.NoError(t, err)
	orphan, err := dir.CreateAccount(ctx, 1, "orphan", "pw")
	require.NoError(t, err)
	foreign, err := dir.CreateAccount(ctx, 2, "healer1", "pw")
	require.NoError(t, err)

	_, err = dir.CreateGroup(ctx, 1, "raiders", 42)
	require.NoError(t, err)
	_, err = dir.CreateGroup(ctx, 2, "raiders", 42)
	require.NoError(t, err)
	require.NoError(t, dir.AddAccountToGroup(ctx, 1, "raiders", "healer1"))
	require.NoError(t, dir.AddAccountToGroup(ctx, 2, "raiders", "healer1"))

	return &fixture{
		dir:     dir,
		revoke:  rev,
		engine:  authz.NewEngine(dir, rev),
		store:   store,
		healer:  healer,
		orphan:  orphan,
		foreign: foreign,
	}
}

// TestPurpose: Validates that a matching group role grants access.
// Scope: Unit Test
// Security: Group based access control
// Expected: Allowed with the granting group named.
// Test Case ID: AUZ-01
func TestIsAuthorized_MatchingRole(t *testing.T) {
	f := newFixture(t)

	d, err := f.engine.IsAuthorized(context.Background(), 1, 100, f.healer.ID, authz.NewRoleSet(7, 42))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, authz.ReasonAllowed, d.Reason)
	assert.Equal(t, "raiders", d.Group)
}

// TestPurpose: Validates fail-closed behavior for missing roles and ungrouped accounts.
// Scope: Unit Test
// Security: Default deny
// Expected: Denied with no matching group in both cases.
// Test Case ID: AUZ-02
func TestIsAuthorized_FailClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.engine.IsAuthorized(ctx, 1, 100, f.healer.ID, authz.NewRoleSet(7))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, authz.ReasonNoMatchingGroup, d.Reason)

	d, err = f.engine.IsAuthorized(ctx, 1, 100, f.orphan.ID, authz.NewRoleSet(42))
	require.NoError(t, err)
	assert.False(t, d.Allowed, "ungrouped accounts are never accessible")

	d, err = f.engine.IsAuthorized(ctx, 1, 100, f.healer.ID, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

// TestPurpose: Validates that a revocation overrides any granted role.
// Scope: Unit Test
// Security: Revocation takes precedence over group membership
// Expected: Denied with reason revoked; access returns after Clear.
// Test Case ID: AUZ-03
func TestIsAuthorized_RevokedOverridesRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.revoke.Revoke(ctx, 1, 100, revocation.Permanent, "")
	require.NoError(t, err)

	d, err := f.engine.IsAuthorized(ctx, 1, 100, f.healer.ID, authz.NewRoleSet(42))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, authz.ReasonRevoked, d.Reason)

	_, err = f.revoke.Clear(ctx, 1, 100)
	require.NoError(t, err)

	d, err = f.engine.IsAuthorized(ctx, 1, 100, f.healer.ID, authz.NewRoleSet(42))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

// TestPurpose: Validates that a group in another tenant never grants access.
// Scope: Unit Test
// Security: Tenant isolation
// Expected: A tenant 1 decision ignores tenant 2 accounts and groups.
// Test Case ID: AUZ-04
func TestIsAuthorized_CrossTenantDenied(t *testing.T) {
	f := newFixture(t)

	d, err := f.engine.IsAuthorized(context.Background(), 1, 100, f.foreign.ID, authz.NewRoleSet(42))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

// TestPurpose: Validates that lookup failures deny instead of allowing.
// Scope: Unit Test
// Security: Fail-closed on store errors
// Expected: Error returned and decision not allowed.
// Test Case ID: AUZ-05
func TestIsAuthorized_StoreError(t *testing.T) {
	f := newFixture(t)

	f.store.FailNext(errors.New("connection reset"))
	d, err := f.engine.IsAuthorized(context.Background(), 1, 100, f.healer.ID, authz.NewRoleSet(42))
	assert.Error(t, err)
	assert.False(t, d.Allowed)
}

// TestPurpose: Validates bulk filtering matches the single-account decision.
// Scope: Unit Test
// Expected: Only healer1 of tenant 1 is returned; nothing when revoked or without roles.
// Test Case ID: AUZ-06
func TestFilterAccessible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	accounts, err := f.dir.ListAccounts(ctx, 1, directory.Filter{})
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	got, err := f.engine.FilterAccessible(ctx, 1, 100, accounts, authz.NewRoleSet(42))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "healer1", got[0].Name)

	got, err = f.engine.FilterAccessible(ctx, 1, 100, accounts, authz.NewRoleSet())
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.revoke.Revoke(ctx, 1, 100, 1, "")
	require.NoError(t, err)
	got, err = f.engine.FilterAccessible(ctx, 1, 100, accounts, authz.NewRoleSet(42))
	require.NoError(t, err)
	assert.Empty(t, got)
}

// Test Case ID: AUZ-07
func TestRoleSet_IDsSorted(t *testing.T) {
	set := authz.NewRoleSet(43, 7, 42, 7)
	assert.Equal(t, []int64{7, 42, 43}, set.IDs())
	assert.True(t, set.Has(42))
	assert.False(t, set.Has(1))
}
