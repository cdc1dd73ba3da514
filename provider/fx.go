package provider

import (
	"context"
	"temporal-sa/crypto-provider/config"
	"temporal-sa/crypto-provider/metrics"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Provide(
	newManagerProvider,
)

func newManagerProvider(
	lc fx.Lifecycle,
	registry *Registry,
	configProvider config.ConfigProvider,
	logger *zap.Logger,
	metricsHandler metrics.Handler,
) (*Manager, error) {
	cfg := configProvider.GetProviderConfig().Providers

	manager, err := NewManager(registry, ManagerOptions{
		CacheSize:              cfg.CacheSize,
		DefaultImplementations: cfg.DefaultImplementations,
		Logger:                 logger,
		MetricsHandler:         metricsHandler,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return manager.Close()
		},
	})

	return manager, nil
}
