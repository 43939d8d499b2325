// Package metricstest provides an in-memory recorder for tests
package metricstest

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"statusflow/internal/metrics"
)

// A Collector reads back what a Recorder reported
type Collector struct {
	t      testing.TB
	reader *sdkmetric.ManualReader
}

// NewRecorder returns a Recorder backed by a manual reader
func NewRecorder(t testing.TB) (*metrics.Recorder, *Collector) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	rec, err := metrics.NewRecorder(provider)
	if err != nil {
		t.Fatalf("error: failed to create recorder: %v", err)
	}
	return rec, &Collector{t: t, reader: reader}
}

// Sum returns the total of an int64 counter across all attribute sets
func (c *Collector) Sum(name string) int64 {
	c.t.Helper()

	var rm metricdata.ResourceMetrics
	if err := c.reader.Collect(context.Background(), &rm); err != nil {
		c.t.Fatalf("error: failed to collect metrics: %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}
