package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cory-johannsen/gamerunner/internal/config"
)

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	tp, shutdown, err := SetupTracing(context.Background(), config.TracingConfig{ServiceName: "gamerunner"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	_, isSDK := tp.(*sdktrace.TracerProvider)
	assert.False(t, isSDK)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracing_WithEndpoint(t *testing.T) {
	tp, shutdown, err := SetupTracing(context.Background(), config.TracingConfig{
		Endpoint:    "http://127.0.0.1:4318",
		ServiceName: "gamerunner",
		SampleRatio: 1,
	})
	require.NoError(t, err)
	_, isSDK := tp.(*sdktrace.TracerProvider)
	assert.True(t, isSDK)

	// Nothing was exported, so shutdown has nothing to flush.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
