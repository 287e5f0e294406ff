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

//go:build integration
// +build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/ssoproxy/internal/accesskey"
	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/ratelimit"
	"github.com/opentrusty/ssoproxy/internal/revocation"
	"github.com/opentrusty/ssoproxy/internal/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ssoproxy_test"),
		tcpostgres.WithUsername("ssoproxy"),
		tcpostgres.WithPassword("ssoproxy"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "skipping integration tests: failed to start postgres container: %v\n", err)
		os.Exit(0)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	cfg := Config{
		Host:         host,
		Port:         port.Port(),
		User:         "ssoproxy",
		Password:     "ssoproxy",
		Database:     "ssoproxy_test",
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	}

	if _, err := MigrateUp(cfg); err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	testDB, err = New(ctx, cfg)
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newDirectory(t *testing.T) *directory.Service {
	t.Helper()
	cipher, err := secret.NewCipherFromKey(make([]byte, 32))
	require.NoError(t, err)
	return directory.NewService(
		NewAccountRepository(testDB),
		NewAliasRepository(testDB),
		NewTagRepository(testDB),
		NewGroupRepository(testDB),
		cipher,
	)
}

// tenantFor gives every test its own tenant so tests share one database
func tenantFor(t *testing.T) int64 {
	return time.Now().UnixNano()
}

// TestPurpose: Validates that the directory keeps names unique per tenant only.
// Scope: Database Integration Test
// Security: Multi-tenant Data Separation (CWE-284)
// Expected: Same name in two tenants succeeds; duplicate in one tenant maps to ErrAccountExists.
// Test Case ID: ISO-01
// Metadata:
//   - Category: Tenant
//   - Priority: High
//   - Tags: multi-tenancy, security, data-isolation
func TestAccountRepository_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	svc := newDirectory(t)
	tenantA := tenantFor(t)
	tenantB := tenantA + 1

	a, err := svc.CreateAccount(ctx, tenantA, "shared", "pw-a")
	require.NoError(t, err)
	_, err = svc.CreateAccount(ctx, tenantB, "shared", "pw-b")
	require.NoError(t, err)

	_, err = svc.CreateAccount(ctx, tenantA, "SHARED", "again")
	assert.ErrorIs(t, err, directory.ErrAccountExists)

	got, err := svc.Resolve(ctx, tenantA, "shared")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	plain, err := svc.RevealSecret(got)
	require.NoError(t, err)
	assert.Equal(t, "pw-a", plain)
}

// TestPurpose: Validates resolution order, tag round robin and cascading delete against the schema.
// Scope: Database Integration Test
// Expected: Same behavior as the in-memory store.
// Test Case ID: DB-01
func TestDirectory_ResolveAndCascade(t *testing.T) {
	ctx := context.Background()
	svc := newDirectory(t)
	tenant := tenantFor(t)

	for _, name := range []string{"farm1", "farm2"} {
		_, err := svc.CreateAccount(ctx, tenant, name, "pw")
		require.NoError(t, err)
		_, err = svc.CreateTag(ctx, tenant, name, "farm")
		require.NoError(t, err)
	}
	_, err := svc.CreateAlias(ctx, tenant, "farm1", "f1")
	require.NoError(t, err)
	_, err = svc.CreateGroup(ctx, tenant, "raiders", 42)
	require.NoError(t, err)
	require.NoError(t, svc.AddAccountToGroup(ctx, tenant, "raiders", "farm1"))
	assert.ErrorIs(t, svc.AddAccountToGroup(ctx, tenant, "raiders", "farm1"), directory.ErrMembershipExists)

	first, err := svc.Resolve(ctx, tenant, "farm")
	require.NoError(t, err)
	assert.Equal(t, "farm1", first.Name)
	require.NoError(t, svc.MarkAccessed(ctx, first.ID, time.Now()))
	second, err := svc.Resolve(ctx, tenant, "farm")
	require.NoError(t, err)
	assert.Equal(t, "farm2", second.Name)

	accounts, err := svc.ListAccounts(ctx, tenant, directory.Filter{Group: "raiders"})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, []string{"f1"}, accounts[0].Aliases)
	assert.Equal(t, []string{"farm"}, accounts[0].Tags)

	require.NoError(t, svc.DeleteAccount(ctx, tenant, "farm1"))
	_, err = svc.Resolve(ctx, tenant, "f1")
	assert.ErrorIs(t, err, directory.ErrAccountNotFound)
	g, err := svc.GetGroup(ctx, tenant, "raiders")
	require.NoError(t, err)
	assert.Empty(t, g.Members)
}

// TestPurpose: Validates that a tag rename colliding with an existing membership is rolled back.
// Scope: Database Integration Test
// Expected: ErrTagExists and no partial rename.
// Test Case ID: DB-02
func TestTagRepository_RenameAtomic(t *testing.T) {
	ctx := context.Background()
	svc := newDirectory(t)
	tenant := tenantFor(t)

	for _, name := range []string{"a", "b"} {
		_, err := svc.CreateAccount(ctx, tenant, name, "pw")
		require.NoError(t, err)
		_, err = svc.CreateTag(ctx, tenant, name, "old")
		require.NoError(t, err)
	}
	_, err := svc.CreateTag(ctx, tenant, "b", "new")
	require.NoError(t, err)
	_, err = svc.SetTagAnnotation(ctx, tenant, "old", []byte("blob"))
	require.NoError(t, err)

	_, err = svc.RenameTag(ctx, tenant, "old", "new")
	assert.ErrorIs(t, err, directory.ErrTagExists)

	tags, err := svc.ListTags(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tags["old"])

	require.NoError(t, svc.RemoveTag(ctx, tenant, "b", "new"))
	n, err := svc.RenameTag(ctx, tenant, "old", "new")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ann, err := svc.GetTagAnnotation(ctx, tenant, "new")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), ann.Data)
}

// TestPurpose: Validates that concurrent key issuance for one subject converges on one row.
// Scope: Database Integration Test
// Expected: All callers see the same secret; lookup by secret finds the subject.
// Test Case ID: DB-03
func TestKeyRepository_ConcurrentIssue(t *testing.T) {
	ctx := context.Background()
	cipher, err := secret.NewCipherFromKey(make([]byte, 32))
	require.NoError(t, err)
	svc := accesskey.NewService(NewKeyRepository(testDB), cipher, nil)
	tenant := tenantFor(t)

	const callers = 8
	secrets := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key, err := svc.GetOrCreate(ctx, tenant, 77)
			if assert.NoError(t, err) {
				secrets[i] = key.Secret
			}
		}(i)
	}
	wg.Wait()
	for _, s := range secrets {
		assert.Equal(t, secrets[0], s)
	}

	found, err := svc.LookupBySecret(ctx, secrets[0])
	require.NoError(t, err)
	assert.Equal(t, int64(77), found.SubjectID)
}

// TestPurpose: Validates revocation persistence and the failure counting used for rate limiting.
// Scope: Database Integration Test
// Expected: Active revocations are listed until cleared; failures are counted until acknowledged.
// Test Case ID: DB-04
func TestRevocationAndAudit(t *testing.T) {
	ctx := context.Background()
	tenant := tenantFor(t)

	revs := revocation.NewService(NewRevocationRepository(testDB))
	_, err := revs.Revoke(ctx, tenant, 9, 0, "test")
	require.NoError(t, err)
	revoked, err := revs.IsRevoked(ctx, tenant, 9, time.Now())
	require.NoError(t, err)
	assert.True(t, revoked)
	n, err := revs.Clear(ctx, tenant, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	repo := NewAuditRepository(testDB)
	log := audit.NewLog(repo, nil)
	origin := fmt.Sprintf("10.%d.0.1", tenant%200)
	for i := 0; i < 3; i++ {
		log.Record(ctx, audit.Entry{Origin: origin, Identifier: "x", TenantID: &tenant, Details: audit.DetailInvalidKey})
	}
	log.Record(ctx, audit.Entry{Origin: origin, Identifier: audit.ListingIdentifier, TenantID: &tenant, Success: true})

	count, err := repo.CountFailures(ctx, origin, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	entries, err := log.Query(ctx, audit.Filter{TenantID: &tenant})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	acked, err := repo.Acknowledge(ctx, origin)
	require.NoError(t, err)
	assert.Equal(t, int64(3), acked)
	count, err = repo.CountFailures(ctx, origin, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)
}

// TestPurpose: Validates that crafted identifiers and origins are stored and counted by the schema.
// Scope: Database Integration Test
// Security: Input the columns cannot hold must not skip the audit trail (CWE-307)
// Expected: A 300 character identifier, a NUL byte identifier, and a 100 byte origin are
// all inserted and counted by CountFailures and the limiter.
// Test Case ID: DB-05
func TestAuditRepository_CraftedInput(t *testing.T) {
	ctx := context.Background()
	tenant := tenantFor(t)
	repo := NewAuditRepository(testDB)
	log := audit.NewLog(repo, nil)
	since := time.Now().Add(-time.Minute)

	origin := fmt.Sprintf("10.%d.0.2", tenant%200)
	for _, identifier := range []string{strings.Repeat("a", 300), "healer1\x00", "healer\xff"} {
		entry := log.Record(ctx, audit.Entry{Origin: origin, Identifier: identifier, TenantID: &tenant, Details: audit.DetailInvalidKey})
		assert.NotZero(t, entry.ID)
	}
	count, err := repo.CountFailures(ctx, origin, since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	longOrigin := fmt.Sprintf("%d-%s", tenant, strings.Repeat("f", 100))
	limiter := ratelimit.New(repo, ratelimit.Policy{MaxAttempts: 2, Window: time.Minute})
	for i := 0; i < 2; i++ {
		entry := log.Record(ctx, audit.Entry{Origin: longOrigin, Identifier: "x", TenantID: &tenant, Details: audit.DetailInvalidKey})
		assert.NotZero(t, entry.ID)
	}
	blocked, err := limiter.IsBlocked(ctx, longOrigin, time.Now())
	require.NoError(t, err)
	assert.True(t, blocked)
}
