package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates that domain sentinels match their kind sentinel and survive wrapping.
// Scope: Unit Test
// Security: Callers map internal failures to external results by kind
// Expected: errors.Is and KindOf agree for wrapped domain errors.
// Test Case ID: ERR-01
func TestKindOf_WrappedDomainError(t *testing.T) {
	errAccountNotFound := New(NotFound, "account not found")
	wrapped := fmt.Errorf("failed to resolve: %w", errAccountNotFound)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.True(t, errors.Is(wrapped, errAccountNotFound))
	assert.False(t, errors.Is(wrapped, ErrConflict))
	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.Equal(t, "account not found", errAccountNotFound.Error())
}

// TestPurpose: Validates that store failures are classified as StoreUnavailable.
// Scope: Unit Test
// Expected: Unavailable keeps the cause and reports StoreUnavailable.
// Test Case ID: ERR-02
func TestUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable("failed to query accounts", cause)

	assert.True(t, Is(err, StoreUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

// Test Case ID: ERR-03
func TestKindOf_Unknown(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(nil))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, "rate_limited", RateLimited.String())
}
