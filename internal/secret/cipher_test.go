package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKDF = KDFParams{Memory: 1024, Iterations: 1, Parallelism: 1}

// TestPurpose: Validates that sealed credentials round-trip and are not stored in clear text.
// Scope: Unit Test
// Security: Real account secrets are encrypted at rest
// Expected: Open(Seal(x)) == x and the ciphertext does not contain x.
// Test Case ID: SEC-01
func TestCipher_SealOpen(t *testing.T) {
	c, err := NewCipher("passphrase", "salt", testKDF)
	require.NoError(t, err)

	sealed, err := c.Seal("hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "hunter2")

	plain, err := c.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

// TestPurpose: Validates that a different passphrase cannot open sealed data.
// Scope: Unit Test
// Security: Key separation between deployments
// Expected: Open fails with a decryption error.
// Test Case ID: SEC-02
func TestCipher_WrongKey(t *testing.T) {
	a, err := NewCipher("one", "salt", testKDF)
	require.NoError(t, err)
	b, err := NewCipher("two", "salt", testKDF)
	require.NoError(t, err)

	sealed, err := a.Seal("value")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	assert.Error(t, err)

	_, err = b.Open([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

// Test Case ID: SEC-03
func TestCipher_Validation(t *testing.T) {
	_, err := NewCipher("", "salt", testKDF)
	assert.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = NewCipherFromKey([]byte("short"))
	assert.Error(t, err)
}

// Test Case ID: SEC-04
func TestHash_Stable(t *testing.T) {
	assert.Equal(t, Hash("RunBraveOtter"), Hash("RunBraveOtter"))
	assert.NotEqual(t, Hash("RunBraveOtter"), Hash("runbraveotter"))
}
