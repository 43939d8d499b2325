package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statusflow/internal/config"
)

func TestInitProviders_Disabled(t *testing.T) {
	p, err := InitProviders(context.Background(), config.TelemetryConfig{ServiceName: "status-consumer"})
	require.NoError(t, err)

	require.NotNil(t, p.MeterProvider)
	require.NotNil(t, p.TracerProvider)
	assert.Empty(t, p.shutdownFuncs)

	_, span := p.TracerProvider.Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}
