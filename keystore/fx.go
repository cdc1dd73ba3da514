package keystore

import (
	"context"
	"temporal-sa/crypto-provider/config"
	"temporal-sa/crypto-provider/metrics"
	"temporal-sa/crypto-provider/provider"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Provide(
	newKeyStoreProvider,
)

func newKeyStoreProvider(
	lc fx.Lifecycle,
	configProvider config.ConfigProvider,
	manager *provider.Manager,
	logger *zap.Logger,
	metricsHandler metrics.Handler,
) (KeyStore, error) {
	store, err := New(context.Background(), configProvider.GetProviderConfig().KeyStore, FactoryOptions{
		Acquirer:       manager,
		MetricsHandler: metricsHandler,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})

	return store, nil
}
