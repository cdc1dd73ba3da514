package envelope

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"temporal-sa/crypto-provider/metrics"

	lru "github.com/hashicorp/golang-lru"
)

const (
	DefaultMaxCache = 100
	DefaultMaxAge   = 5 * time.Minute
	DefaultMaxUses  = 1000
)

type (
	CachingConfig struct {
		MaxCache int
		MaxAge   time.Duration
		// MaxUses bounds how often one cached data key is handed out.
		MaxUses int
	}

	// CachingKeyProvider reuses data keys from an underlying provider until
	// they reach MaxAge or MaxUses. Callers receive copies.
	CachingKeyProvider struct {
		mu             sync.Mutex
		cache          *lru.Cache
		maxAge         time.Duration
		maxUses        int
		underlying     KeyProvider
		metricsHandler metrics.Handler
	}
)

func NewCachingKeyProvider(underlying KeyProvider, config CachingConfig, metricsHandler metrics.Handler) (*CachingKeyProvider, error) {
	if config.MaxCache <= 0 {
		config.MaxCache = DefaultMaxCache
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultMaxAge
	}
	if config.MaxUses <= 0 {
		config.MaxUses = DefaultMaxUses
	}
	if metricsHandler == nil {
		metricsHandler = metrics.NopHandler
	}

	cache, err := lru.NewWithEvict(config.MaxCache, func(_ interface{}, value interface{}) {
		value.(*DataKey).Destroy()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return &CachingKeyProvider{
		cache:          cache,
		maxAge:         config.MaxAge,
		maxUses:        config.MaxUses,
		underlying:     underlying,
		metricsHandler: metricsHandler,
	}, nil
}

func (c *CachingKeyProvider) KeyID() string {
	return c.underlying.KeyID()
}

func (c *CachingKeyProvider) GenerateDataKey(ctx context.Context, keyCtx Context) (*DataKey, error) {
	cacheKey := "generate:" + contextDigest(keyCtx)
	if key, ok := c.lookup(cacheKey); ok {
		return key, nil
	}

	start := time.Now()
	c.metricsHandler.Counter(metrics.DataKeyGenerateRequests).Inc(1)
	key, err := c.underlying.GenerateDataKey(ctx, keyCtx)
	c.metricsHandler.Timer(metrics.DataKeyGenerateLatency).Record(time.Since(start))
	if err != nil {
		c.metricsHandler.Counter(metrics.DataKeyGenerateErrors).Inc(1)
		return nil, err
	}
	c.metricsHandler.Counter(metrics.DataKeyGenerateSuccess).Inc(1)

	return c.store(cacheKey, key), nil
}

func (c *CachingKeyProvider) UnwrapDataKey(ctx context.Context, keyCtx Context, wrapped []byte) (*DataKey, error) {
	h := sha256.New()
	h.Write([]byte(contextDigest(keyCtx)))
	h.Write([]byte{':'})
	h.Write(wrapped)
	cacheKey := "unwrap:" + hex.EncodeToString(h.Sum(nil))

	if key, ok := c.lookup(cacheKey); ok {
		return key, nil
	}

	start := time.Now()
	c.metricsHandler.Counter(metrics.DataKeyUnwrapRequests).Inc(1)
	key, err := c.underlying.UnwrapDataKey(ctx, keyCtx, wrapped)
	c.metricsHandler.Timer(metrics.DataKeyUnwrapLatency).Record(time.Since(start))
	if err != nil {
		c.metricsHandler.Counter(metrics.DataKeyUnwrapErrors).Inc(1)
		return nil, err
	}
	c.metricsHandler.Counter(metrics.DataKeyUnwrapSuccess).Inc(1)

	return c.store(cacheKey, key), nil
}

// Purge drops and zeroes every cached key.
func (c *CachingKeyProvider) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

func (c *CachingKeyProvider) lookup(cacheKey string) (*DataKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, found := c.cache.Get(cacheKey)
	if !found {
		return nil, false
	}

	key := value.(*DataKey)
	if time.Since(key.CreatedAt) > c.maxAge || key.Uses >= c.maxUses {
		c.cache.Remove(cacheKey)
		return nil, false
	}

	key.Uses++
	c.metricsHandler.Counter(metrics.DataKeyCacheHits).Inc(1)
	return key.clone(), true
}

func (c *CachingKeyProvider) store(cacheKey string, key *DataKey) *DataKey {
	key.CreatedAt = time.Now()
	key.Uses = 1

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(cacheKey, key)
	return key.clone()
}

func contextDigest(keyCtx Context) string {
	sum := sha256.Sum256(keyCtx.Bytes())
	return hex.EncodeToString(sum[:])
}
