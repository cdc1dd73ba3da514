package keystore

import (
	"context"
	"fmt"
	"temporal-sa/crypto-provider/config"
	"temporal-sa/crypto-provider/envelope"
	"temporal-sa/crypto-provider/metrics"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

type (
	// FactoryOptions carries what the factory needs besides the config block.
	FactoryOptions struct {
		// Acquirer backs the static protector.
		Acquirer       envelope.Acquirer
		MetricsHandler metrics.Handler
		Logger         *zap.Logger
	}
)

// New builds the configured backend and, when protection is configured,
// wraps it in a SealedStore.
func New(ctx context.Context, cfg config.KeyStoreConfig, options FactoryOptions) (KeyStore, error) {
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	options.Logger.Info("key store opened", zap.String("backend", backendName(cfg.Backend)))

	if cfg.Protection == nil || cfg.Protection.Type == config.ProtectionNone {
		return backend, nil
	}

	keyProvider, closeFn, err := newKeyProvider(ctx, cfg.Protection, options)
	if err != nil {
		backend.Close()
		return nil, err
	}

	store := NewSealedStore(backend, envelope.NewSealer(keyProvider), options.MetricsHandler, options.Logger)
	if closeFn != nil {
		store.onClose = append(store.onClose, closeFn)
	}
	options.Logger.Info("key store sealed",
		zap.String("protection", cfg.Protection.Type),
		zap.String("keyID", keyProvider.KeyID()))

	return store, nil
}

func backendName(backend string) string {
	if backend == "" {
		return config.BackendMemory
	}
	return backend
}

func newBackend(cfg config.KeyStoreConfig) (KeyStore, error) {
	switch backendName(cfg.Backend) {
	case config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendLevelDB:
		var options LevelDBOptions
		if err := decodeOptions(cfg.Options, &options); err != nil {
			return nil, err
		}
		return NewLevelDBStore(options)
	case config.BackendKeyring:
		var options KeyringOptions
		if err := decodeOptions(cfg.Options, &options); err != nil {
			return nil, err
		}
		return NewKeyringStore(options)
	default:
		return nil, fmt.Errorf("unknown key store backend %q", cfg.Backend)
	}
}

func newKeyProvider(ctx context.Context, cfg *config.ProtectionConfig, options FactoryOptions) (envelope.KeyProvider, func() error, error) {
	var (
		keyProvider envelope.KeyProvider
		closeFn     func() error
	)

	switch cfg.Type {
	case config.ProtectionStatic:
		var staticOptions envelope.StaticKeyOptions
		if err := decodeOptions(cfg.Options, &staticOptions); err != nil {
			return nil, nil, err
		}
		if options.Acquirer == nil {
			return nil, nil, fmt.Errorf("static protection requires a provider manager")
		}
		p, err := envelope.NewStaticKeyProvider(options.Acquirer, staticOptions)
		if err != nil {
			return nil, nil, err
		}
		keyProvider = p

	case config.ProtectionAWSKMS:
		var awsOptions envelope.AWSKMSOptions
		if err := decodeOptions(cfg.Options, &awsOptions); err != nil {
			return nil, nil, err
		}
		client, err := envelope.NewAWSKMSClient(awsOptions.Region)
		if err != nil {
			return nil, nil, err
		}
		keyProvider = envelope.NewAWSKMSProvider(client, awsOptions)

	case config.ProtectionGCPKMS:
		var gcpOptions envelope.GCPKMSOptions
		if err := decodeOptions(cfg.Options, &gcpOptions); err != nil {
			return nil, nil, err
		}
		client, err := envelope.NewGCPKMSClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		keyProvider = envelope.NewGCPKMSProvider(client, gcpOptions)
		closeFn = client.Close

	default:
		return nil, nil, fmt.Errorf("unknown key protection type %q", cfg.Type)
	}

	cachingConfig, err := newCachingConfig(cfg.Caching)
	if err != nil {
		return nil, nil, err
	}
	caching, err := envelope.NewCachingKeyProvider(keyProvider, cachingConfig, options.MetricsHandler)
	if err != nil {
		return nil, nil, err
	}

	return caching, closeFn, nil
}

func newCachingConfig(cfg config.CachingConfig) (envelope.CachingConfig, error) {
	out := envelope.CachingConfig{
		MaxCache: cfg.MaxCache,
		MaxUses:  cfg.MaxUsage,
	}
	if cfg.MaxAge != "" {
		maxAge, err := time.ParseDuration(cfg.MaxAge)
		if err != nil {
			return out, fmt.Errorf("invalid caching max_age: %w", err)
		}
		out.MaxAge = maxAge
	}
	return out, nil
}

func decodeOptions(input map[string]interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("invalid key store options: %w", err)
	}
	return nil
}
