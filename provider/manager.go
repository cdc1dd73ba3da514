package provider

import (
	"errors"
	"fmt"
	"sync"
	"temporal-sa/crypto-provider/cryptoerr"
	"temporal-sa/crypto-provider/metrics"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

const DefaultCacheSize = 64

type (
	ManagerOptions struct {
		// CacheSize bounds the number of cached engines, DefaultCacheSize when zero.
		CacheSize int
		// DefaultImplementations overrides registration order per algorithm.
		DefaultImplementations map[string]string
		Logger                 *zap.Logger
		MetricsHandler         metrics.Handler
	}

	// Manager hands out provider handles, caching one opened engine per
	// (algorithm, implementation, flags). Safe for concurrent use.
	Manager struct {
		registry       *Registry
		cache          *lru.Cache
		mu             sync.Mutex
		closed         bool
		dropping       bool
		defaults       map[string]string
		logger         *zap.Logger
		metricsHandler metrics.Handler
	}

	Stats struct {
		CachedEngines int
	}

	cacheKey struct {
		algorithm      string
		implementation string
		flags          OpenFlags
	}
)

func NewManager(registry *Registry, options ManagerOptions) (*Manager, error) {
	if registry == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "provider.NewManager", "registry is required")
	}

	size := options.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metricsHandler := options.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = metrics.NopHandler
	}

	m := &Manager{
		registry:       registry,
		defaults:       make(map[string]string, len(options.DefaultImplementations)),
		logger:         logger,
		metricsHandler: metricsHandler,
	}
	for alg, impl := range options.DefaultImplementations {
		m.defaults[alg] = impl
	}

	cache, err := lru.NewWithEvict(size, m.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create handle cache: %w", err)
	}
	m.cache = cache

	return m, nil
}

// Registry returns the registry the manager resolves engines from.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Acquire returns a handle for algorithm from implementation; an empty
// implementation picks the configured or first registered provider. The
// caller owns the handle and must Release it.
func (m *Manager) Acquire(algorithm, implementation string, flags OpenFlags) (*Handle, error) {
	start := time.Now()
	m.metricsHandler.Counter(metrics.HandleAcquireRequests).Inc(1)
	defer func() {
		m.metricsHandler.Timer(metrics.HandleAcquireLatency).Record(time.Since(start))
	}()

	handle, err := m.acquire(algorithm, implementation, flags)
	if err != nil {
		m.metricsHandler.Counter(metrics.HandleAcquireErrors).Inc(1)
		return nil, err
	}
	return handle, nil
}

func (m *Manager) acquire(algorithm, implementation string, flags OpenFlags) (*Handle, error) {
	if algorithm == "" {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "provider.Acquire", "algorithm is required")
	}

	if implementation == "" {
		implementation = m.defaults[algorithm]
	}

	name, factory, err := m.registry.Resolve(algorithm, implementation)
	if err != nil {
		return nil, err
	}

	key := cacheKey{algorithm: algorithm, implementation: name, flags: flags}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, cryptoerr.New(cryptoerr.KindInvalidState, "provider.Acquire", "manager is closed")
	}

	if cached, found := m.cache.Get(key); found {
		if dup, err := cached.(*Handle).Duplicate(); err == nil {
			m.metricsHandler.Counter(metrics.HandleCacheHits).Inc(1)
			return dup, nil
		}
		// the cached handle was closed behind our back; reopen below
		m.metricsHandler.Counter(metrics.HandleCacheStale).Inc(1)
		m.drop(func() { m.cache.Remove(key) })
	}
	m.metricsHandler.Counter(metrics.HandleCacheMisses).Inc(1)

	engine, err := factory(algorithm, flags)
	if err != nil {
		var cerr *cryptoerr.Error
		if errors.As(err, &cerr) && cerr.Kind == cryptoerr.KindPlatformUnsupported {
			return nil, err
		}
		return nil, &cryptoerr.Error{
			Kind: cryptoerr.KindProviderError,
			Op:   "provider.Acquire",
			Msg:  fmt.Sprintf("failed to open %s from %s", algorithm, name),
			Err:  err,
		}
	}

	m.logger.Debug("engine opened",
		zap.String("algorithm", algorithm),
		zap.String("implementation", name),
		zap.Uint32("flags", uint32(flags)))

	cached := newHandle(algorithm, name, flags, engine)
	m.cache.Add(key, cached)

	return cached.Duplicate()
}

// Duplicate returns an independently released copy of h.
func (m *Manager) Duplicate(h *Handle) (*Handle, error) {
	if h == nil {
		return nil, cryptoerr.New(cryptoerr.KindArgumentNull, "provider.Duplicate", "nil handle")
	}
	return h.Duplicate()
}

// Release closes h. Releasing nil or an already released handle is a no-op.
func (m *Manager) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}

func (m *Manager) Stats() Stats {
	return Stats{CachedEngines: m.cache.Len()}
}

// Close drops every cached engine reference. Handles already handed out stay
// valid until released.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.drop(m.cache.Purge)
	return nil
}

// drop runs remove with eviction counting suppressed. Callers hold m.mu.
func (m *Manager) drop(remove func()) {
	m.dropping = true
	defer func() { m.dropping = false }()
	remove()
}

func (m *Manager) onEvict(key interface{}, value interface{}) {
	handle := value.(*Handle)
	if !m.dropping {
		m.metricsHandler.Counter(metrics.HandleCacheEvictions).Inc(1)
	}
	if err := handle.Close(); err != nil {
		m.logger.Warn("failed to release evicted engine", zap.Stringer("handle", handle), zap.Error(err))
	}
}
