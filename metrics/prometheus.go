package metrics

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// latencyBoundaries are in seconds; block and hash operations sit mostly below a millisecond.
var latencyBoundaries = []float64{
	0.000001, // 1 microsecond
	0.000005,
	0.00001,
	0.00005,
	0.0001,
	0.0005,
	0.001, // 1 millisecond
	0.005,
	0.01,
	0.05,
	0.1,
	0.5,
	1.0,
	5.0,
}

// InitPrometheus installs a global meter provider backed by the prometheus exporter.
func InitPrometheus() (*metric.MeterProvider, error) {
	exporter, err := prometheus.New(prometheus.WithoutScopeInfo())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}

	histogramView := metric.NewView(
		metric.Instrument{Kind: metric.InstrumentKindHistogram},
		metric.Stream{
			Aggregation: metric.AggregationExplicitBucketHistogram{
				Boundaries: latencyBoundaries,
			},
		},
	)

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithView(histogramView),
	)
	otel.SetMeterProvider(provider)

	return provider, nil
}
