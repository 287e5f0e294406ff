package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that disabled metrics still hand out usable instruments.
// Scope: Unit Test
// Expected: All instruments are non-nil and accept measurements.
// Test Case ID: MET-01
func TestNewInstruments_Disabled(t *testing.T) {
	ctx := context.Background()
	m, err := New(ctx, Config{Enabled: false}, "ssoproxy")
	require.NoError(t, err)

	in, err := m.NewInstruments()
	require.NoError(t, err)
	assert.NotNil(t, in.AuthAttempts)
	assert.NotNil(t, in.AuditWriteFailures)
	assert.NotNil(t, in.RolesReloads)
	assert.NotNil(t, in.AuthDuration)

	in.AuthAttempts.Add(ctx, 1)
	in.AuthDuration.Record(ctx, 0.01)
}
