package key

import (
	"temporal-sa/crypto-provider/keystore"
	"temporal-sa/crypto-provider/provider"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Provide(
	newStorageProviderProvider,
)

func newStorageProviderProvider(manager *provider.Manager, store keystore.KeyStore, logger *zap.Logger) *StorageProvider {
	return NewStorageProvider(manager, store, StorageOptions{Logger: logger})
}
