package metrics

const (
	DefaultPrometheusPath = "/metrics"

	CryptoProviderPrefix = "crypto_provider_"

	// Provider handle metrics
	HandleAcquireRequests = CryptoProviderPrefix + "handle_acquire_requests"
	HandleAcquireErrors   = CryptoProviderPrefix + "handle_acquire_errors"
	HandleAcquireLatency  = CryptoProviderPrefix + "handle_acquire_latency"
	HandleCacheHits       = CryptoProviderPrefix + "handle_cache_hits"
	HandleCacheMisses     = CryptoProviderPrefix + "handle_cache_misses"
	HandleCacheEvictions  = CryptoProviderPrefix + "handle_cache_evictions"
	HandleCacheStale      = CryptoProviderPrefix + "handle_cache_stale"

	// Key store metrics
	KeyStoreSealLatency    = CryptoProviderPrefix + "keystore_seal_latency"
	KeyStoreSealErrors     = CryptoProviderPrefix + "keystore_seal_errors"
	KeyStoreUnsealLatency  = CryptoProviderPrefix + "keystore_unseal_latency"
	KeyStoreUnsealErrors   = CryptoProviderPrefix + "keystore_unseal_errors"
	KeyStoreOperationCount = CryptoProviderPrefix + "keystore_operations"

	// Data key metrics
	DataKeyGenerateLatency  = CryptoProviderPrefix + "data_key_generate_latency"
	DataKeyGenerateRequests = CryptoProviderPrefix + "data_key_generate_requests"
	DataKeyGenerateErrors   = CryptoProviderPrefix + "data_key_generate_errors"
	DataKeyGenerateSuccess  = CryptoProviderPrefix + "data_key_generate_success"
	DataKeyUnwrapLatency    = CryptoProviderPrefix + "data_key_unwrap_latency"
	DataKeyUnwrapRequests   = CryptoProviderPrefix + "data_key_unwrap_requests"
	DataKeyUnwrapErrors     = CryptoProviderPrefix + "data_key_unwrap_errors"
	DataKeyUnwrapSuccess    = CryptoProviderPrefix + "data_key_unwrap_success"
	DataKeyCacheHits        = CryptoProviderPrefix + "data_key_cache_hits"
)
