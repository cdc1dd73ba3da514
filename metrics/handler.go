package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "temporal-sa/crypto-provider"

type (
	Counter interface {
		Inc(delta int64)
	}

	Timer interface {
		Record(d time.Duration)
	}

	// Handler hands out named instruments. Implementations are safe for concurrent use.
	Handler interface {
		Counter(name string) Counter
		Timer(name string) Timer
	}

	MetricsHandlerOptions struct {
		// Meter defaults to the global otel meter provider.
		Meter             metric.Meter
		InitialAttributes attribute.Set
	}

	MetricsHandler struct {
		meter      metric.Meter
		mu         sync.RWMutex
		attributes []attribute.KeyValue
		counters   map[string]metric.Int64Counter
		timers     map[string]metric.Float64Histogram
	}

	nopHandler struct{}
	nopMetric  struct{}

	otelCounter struct {
		counter metric.Int64Counter
		options metric.MeasurementOption
	}

	otelTimer struct {
		histogram metric.Float64Histogram
		options   metric.MeasurementOption
	}
)

// NopHandler discards every measurement.
var NopHandler Handler = nopHandler{}

func NewMetricsHandler(options MetricsHandlerOptions) *MetricsHandler {
	meter := options.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	return &MetricsHandler{
		meter:      meter,
		attributes: options.InitialAttributes.ToSlice(),
		counters:   make(map[string]metric.Int64Counter),
		timers:     make(map[string]metric.Float64Histogram),
	}
}

// AddAttributes appends attributes recorded with every subsequent measurement.
func (m *MetricsHandler) AddAttributes(attrs ...attribute.KeyValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attributes = append(m.attributes, attrs...)
}

func (m *MetricsHandler) Counter(name string) Counter {
	m.mu.Lock()
	defer m.mu.Unlock()

	counter, ok := m.counters[name]
	if !ok {
		var err error
		counter, err = m.meter.Int64Counter(name)
		if err != nil {
			otel.Handle(err)
			return nopMetric{}
		}
		m.counters[name] = counter
	}

	return otelCounter{counter: counter, options: m.measurementOptions()}
}

func (m *MetricsHandler) Timer(name string) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	histogram, ok := m.timers[name]
	if !ok {
		var err error
		histogram, err = m.meter.Float64Histogram(name, metric.WithUnit("s"))
		if err != nil {
			otel.Handle(err)
			return nopMetric{}
		}
		m.timers[name] = histogram
	}

	return otelTimer{histogram: histogram, options: m.measurementOptions()}
}

func (m *MetricsHandler) measurementOptions() metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, len(m.attributes))
	copy(attrs, m.attributes)
	return metric.WithAttributes(attrs...)
}

func (c otelCounter) Inc(delta int64) {
	c.counter.Add(context.Background(), delta, c.options)
}

func (t otelTimer) Record(d time.Duration) {
	t.histogram.Record(context.Background(), d.Seconds(), t.options)
}

func (nopHandler) Counter(string) Counter { return nopMetric{} }
func (nopHandler) Timer(string) Timer     { return nopMetric{} }

func (nopMetric) Inc(int64)             {}
func (nopMetric) Record(time.Duration) {}
