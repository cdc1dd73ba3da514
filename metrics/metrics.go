package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"temporal-sa/crypto-provider/config"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type (
	MetricsProvider interface {
		Handler() Handler
		Start() error
		Stop(ctx context.Context) error
	}

	httpPromMetricsProvider struct {
		host          string
		port          int
		path          string
		server        *http.Server
		meterProvider *metric.MeterProvider
		handler       Handler
		logger        *zap.Logger
	}

	nopMetricsProvider struct{}
)

func newMetricsProvider(lc fx.Lifecycle, configProvider config.ConfigProvider, logger *zap.Logger) (MetricsProvider, error) {
	cfg := configProvider.GetProviderConfig().Metrics
	if !cfg.Enabled {
		logger.Debug("metrics disabled")
		return nopMetricsProvider{}, nil
	}

	meterProvider, err := InitPrometheus()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus provider: %w", err)
	}

	provider := &httpPromMetricsProvider{
		host:          cfg.Host,
		port:          cfg.Port,
		path:          DefaultPrometheusPath,
		meterProvider: meterProvider,
		handler: NewMetricsHandler(MetricsHandlerOptions{
			Meter: meterProvider.Meter(meterName),
		}),
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.Handle(provider.path, promhttp.Handler())
	provider.server = &http.Server{
		Addr:              provider.getHostPort(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return provider.Start()
		},
		OnStop: func(ctx context.Context) error {
			return provider.Stop(ctx)
		},
	})

	return provider, nil
}

func newMetricsHandler(provider MetricsProvider) Handler {
	return provider.Handler()
}

func (h *httpPromMetricsProvider) Handler() Handler {
	return h.handler
}

func (h *httpPromMetricsProvider) Start() error {
	go func() {
		h.logger.Info("metrics server started", zap.String("endpoint", h.getHostPortPath()))
		if err := h.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return nil
}

func (h *httpPromMetricsProvider) Stop(ctx context.Context) error {
	return errors.Join(h.server.Shutdown(ctx), h.meterProvider.Shutdown(ctx))
}

func (h *httpPromMetricsProvider) getHostPort() string {
	return fmt.Sprintf("%s:%d", h.host, h.port)
}

func (h *httpPromMetricsProvider) getHostPortPath() string {
	return fmt.Sprintf("%s:%d%s", h.host, h.port, h.path)
}

func (nopMetricsProvider) Handler() Handler             { return NopHandler }
func (nopMetricsProvider) Start() error                 { return nil }
func (nopMetricsProvider) Stop(ctx context.Context) error { return nil }
