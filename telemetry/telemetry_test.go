package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInit_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Init(context.Background(), Config{Enabled: false, Endpoint: "localhost:4317"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())

	shutdown, err = Init(context.Background(), Config{Enabled: true})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
