package bundler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"apex-preview/internal/cache"
	"apex-preview/internal/logging"
)

// BundleCache stores synthesized bundles in a cache.Store, keyed by workspace
// hash and the options that shape the output.
type BundleCache struct {
	store cache.Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewBundleCache wraps store. A zero ttl defers to the store's default.
func NewBundleCache(store cache.Store, ttl time.Duration) *BundleCache {
	return &BundleCache{store: store, ttl: ttl, log: logging.Named("bundle-cache")}
}

// Get returns the bundle cached under key, or cache.ErrCacheMiss.
func (c *BundleCache) Get(ctx context.Context, key string) (*Bundle, error) {
	data, err := c.store.Get(ctx, cache.BundleKey(key))
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		_ = c.store.Delete(ctx, cache.BundleKey(key))
		return nil, cache.ErrCacheMiss
	}
	return &b, nil
}

// Set caches b under key.
func (c *BundleCache) Set(ctx context.Context, key string, b *Bundle) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	return c.store.Set(ctx, cache.BundleKey(key), data, c.ttl)
}

// Invalidate drops the bundle cached under key.
func (c *BundleCache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, cache.BundleKey(key))
}

// GetOrBuild returns the cached bundle for key or calls build and caches its
// result. The boolean reports a cache hit. Cache write failures are logged and
// do not fail the call.
func (c *BundleCache) GetOrBuild(ctx context.Context, key string, build func() (*Bundle, error)) (*Bundle, bool, error) {
	b, err := c.Get(ctx, key)
	if err == nil {
		return b, true, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.log.Warn("bundle cache read failed", zap.String("key", key), zap.Error(err))
	}

	b, err = build()
	if err != nil {
		return nil, false, err
	}
	if err := c.Set(ctx, key, b); err != nil {
		c.log.Warn("bundle cache write failed", zap.String("key", key), zap.Error(err))
	}
	return b, false, nil
}
