package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TestPurpose: Validates that a disabled tracer needs no exporter and shuts down cleanly.
// Scope: Unit Test
// Expected: Spans are non-recording and Shutdown returns nil.
// Test Case ID: TRC-01
func TestNew_Disabled(t *testing.T) {
	ctx := context.Background()
	tr, err := New(ctx, Config{ServiceName: "ssoproxy"})
	require.NoError(t, err)

	_, span := tr.GetTracer().Start(ctx, "test-span")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, tr.Shutdown(ctx))
}

// Test Case ID: TRC-02
func TestSampler_ClampsRate(t *testing.T) {
	assert.Equal(t, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1)).Description(), Sampler(0).Description())
	assert.Equal(t, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(1)).Description(), Sampler(7).Description())
	assert.Equal(t, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description(), Sampler(0.25).Description())
}
