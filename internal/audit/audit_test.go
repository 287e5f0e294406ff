package audit_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/opentrusty/ssoproxy/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that a failing audit store never fails the caller.
// Scope: Unit Test
// Security: Audit outages must not turn into authentication outages or leak through the API
// Expected: Record returns the prepared entry; the next write succeeds normally.
// Test Case ID: AUD-01
func TestRecord_BestEffort(t *testing.T) {
	store := memory.New()
	log := audit.NewLog(store.Audit(), nil)
	ctx := context.Background()

	store.FailNext(errors.New("disk full"))
	entry := log.Record(ctx, audit.Entry{Origin: "10.0.0.1", Identifier: "x", Details: audit.DetailInvalidKey})
	require.NotNil(t, entry)
	assert.NotEmpty(t, entry.RequestID)
	assert.False(t, entry.Timestamp.IsZero())

	log.Record(ctx, audit.Entry{Origin: "10.0.0.1", Identifier: "y", Details: audit.DetailInvalidKey})
	entries, err := log.Query(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "y", entries[0].Identifier)
}

// TestPurpose: Validates that details are capped at the stored column width without splitting runes.
// Scope: Unit Test
// Expected: Long details are cut to at most MaxDetailsLength bytes of valid UTF-8.
// Test Case ID: AUD-02
func TestRecord_TruncatesDetails(t *testing.T) {
	store := memory.New()
	log := audit.NewLog(store.Audit(), nil)

	long := strings.Repeat("é", 200)
	entry := log.Record(context.Background(), audit.Entry{Details: long})
	assert.LessOrEqual(t, len(entry.Details), audit.MaxDetailsLength)
	assert.True(t, strings.HasPrefix(long, entry.Details))
	assert.Equal(t, 254, len(entry.Details))
}

// TestPurpose: Validates the default query filters and ordering.
// Scope: Unit Test
// Expected: Newest first; listing attempts hidden unless requested; limit and success filters apply.
// Test Case ID: AUD-03
func TestQuery_Filters(t *testing.T) {
	store := memory.New()
	log := audit.NewLog(store.Audit(), nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log.Record(ctx, audit.Entry{Timestamp: base, Identifier: "a", Success: true})
	log.Record(ctx, audit.Entry{Timestamp: base.Add(time.Minute), Identifier: audit.ListingIdentifier, Success: true})
	log.Record(ctx, audit.Entry{Timestamp: base.Add(2 * time.Minute), Identifier: "b"})

	entries, err := log.Query(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Identifier)
	assert.Equal(t, "a", entries[1].Identifier)

	entries, err = log.Query(ctx, audit.Filter{IncludeListing: true})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	ok := true
	entries, err = log.Query(ctx, audit.Filter{Success: &ok, IncludeListing: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ListingIdentifier, entries[0].Identifier)

	since := base.Add(90 * time.Second)
	entries, err = log.Query(ctx, audit.Filter{Since: &since})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Identifier)
}

// TestPurpose: Validates the summary statistics and suspicious origin report.
// Scope: Unit Test
// Security: Surfaces origins probing for keys
// Expected: Counts and rates match the recorded entries; only origins above the threshold are reported.
// Test Case ID: AUD-04
func TestStatistics_AndSuspiciousOrigins(t *testing.T) {
	store := memory.New()
	log := audit.NewLog(store.Audit(), nil)
	ctx := context.Background()

	log.Record(ctx, audit.Entry{Origin: "1.1.1.1", Identifier: "a", Success: true})
	for i := 0; i < 3; i++ {
		log.Record(ctx, audit.Entry{Origin: "2.2.2.2", Identifier: "b"})
	}
	for i := 0; i < 2; i++ {
		log.Record(ctx, audit.Entry{Origin: "3.3.3.3", Identifier: "c"})
	}

	stats, err := log.Statistics(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 5, stats.Failed)
	assert.Equal(t, 3, stats.UniqueIdentifiers)
	assert.Equal(t, 3, stats.UniqueOrigins)
	assert.InDelta(t, 16.67, stats.SuccessRate, 0.01)

	suspicious, err := log.SuspiciousOrigins(ctx, audit.Filter{}, audit.DefaultSuspiciousThreshold)
	require.NoError(t, err)
	assert.Equal(t, []audit.OriginFailures{{Origin: "2.2.2.2", Failures: 3}}, suspicious)

	empty, err := audit.NewLog(memory.New().Audit(), nil).Statistics(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Zero(t, empty.SuccessRate)
}

// columnRepository rejects values the Postgres audit_entries columns refuse
type columnRepository struct {
	audit.Repository
}

func (r columnRepository) Insert(ctx context.Context, entry *audit.Entry) error {
	for _, field := range []struct {
		value string
		width int
	}{
		{entry.Origin, 64},
		{entry.Identifier, 255},
		{entry.Details, 255},
	} {
		if utf8.RuneCountInString(field.value) > field.width {
			return fmt.Errorf("value too long for type character varying(%d)", field.width)
		}
		if strings.ContainsRune(field.value, 0) || !utf8.ValidString(field.value) {
			return errors.New("invalid byte sequence for encoding UTF8")
		}
	}
	return r.Repository.Insert(ctx, entry)
}

// TestPurpose: Validates that oversized or malformed request fields still produce a stored failure.
// Scope: Unit Test
// Security: A crafted username or origin must not skip the audit trail and with it the rate limit (CWE-307)
// Expected: Entries with a 300 character identifier, a NUL byte, invalid UTF-8, or a long origin are stored
// within the column widths and counted as failures for their origin.
// Test Case ID: AUD-05
func TestRecord_BoundsRequestFields(t *testing.T) {
	store := memory.New()
	repo := columnRepository{Repository: store.Audit()}
	log := audit.NewLog(repo, nil)
	ctx := context.Background()
	since := time.Now().Add(-time.Minute)

	longOrigin := strings.Repeat("f", 100)
	cases := []struct {
		name       string
		origin     string
		identifier string
	}{
		{name: "long identifier", origin: "10.0.0.9", identifier: strings.Repeat("a", 300)},
		{name: "nul identifier", origin: "10.0.0.9", identifier: "healer1\x00"},
		{name: "invalid utf8 identifier", origin: "10.0.0.9", identifier: "healer\xff"},
		{name: "long origin", origin: longOrigin, identifier: "healer1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := log.Record(ctx, audit.Entry{Origin: tc.origin, Identifier: tc.identifier, Details: audit.DetailInvalidKey})
			assert.LessOrEqual(t, len(entry.Identifier), audit.MaxIdentifierLength)
			assert.LessOrEqual(t, len(entry.Origin), audit.MaxOriginLength)
			assert.NotContains(t, entry.Identifier, "\x00")
			assert.True(t, utf8.ValidString(entry.Identifier))
			assert.NotZero(t, entry.ID, "entry must reach the store")
		})
	}

	n, err := repo.CountFailures(ctx, "10.0.0.9", since)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.CountFailures(ctx, audit.CleanOrigin(longOrigin), since)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, longOrigin[:audit.MaxOriginLength], audit.CleanOrigin(longOrigin))
}
