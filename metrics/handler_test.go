package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	result := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			result[m.Name] = m.Data
		}
	}
	return result
}

func TestMetricsHandler_CounterAndTimer(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	handler := NewMetricsHandler(MetricsHandlerOptions{
		Meter:             mp.Meter("test"),
		InitialAttributes: attribute.NewSet(attribute.String("provider", "primitive")),
	})

	handler.Counter(HandleCacheHits).Inc(2)
	handler.Counter(HandleCacheHits).Inc(3)
	handler.Timer(HandleAcquireLatency).Record(10 * time.Millisecond)

	data := collect(t, reader)

	sum, ok := data[HandleCacheHits].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(5), sum.DataPoints[0].Value)
	value, found := sum.DataPoints[0].Attributes.Value("provider")
	assert.True(t, found)
	assert.Equal(t, "primitive", value.AsString())

	hist, ok := data[HandleAcquireLatency].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestMetricsHandler_AddAttributes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	handler := NewMetricsHandler(MetricsHandlerOptions{Meter: mp.Meter("test")})
	handler.AddAttributes(attribute.String("encryption_key", "key-1"))
	handler.Counter(KeyStoreOperationCount).Inc(1)

	data := collect(t, reader)
	sum := data[KeyStoreOperationCount].(metricdata.Sum[int64])
	value, found := sum.DataPoints[0].Attributes.Value("encryption_key")
	assert.True(t, found)
	assert.Equal(t, "key-1", value.AsString())
}

func TestNopHandler(t *testing.T) {
	assert.NotPanics(t, func() {
		NopHandler.Counter("x").Inc(1)
		NopHandler.Timer("y").Record(time.Second)
	})
}
