// Package cache stores synthesized preview documents and project snapshots.
// An in-memory LRU tier is always present; a Redis tier is added when a
// REDIS_URL is configured so several service instances share results.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Store is a byte-valued cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Stats holds cache statistics.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	HitRatio    float64 `json:"hit_ratio"`
	MemorySize  int     `json:"memory_size"`
	MemoryBytes int64   `json:"memory_bytes"`
}

// Config holds cache configuration.
type Config struct {
	// RedisURL enables the shared tier (redis://host:port/db).
	RedisURL string
	// MaxItems bounds the in-memory tier.
	MaxItems int
	// DefaultTTL applies when Set is called with a zero ttl.
	DefaultTTL time.Duration
	// CleanupInterval is how often expired memory entries are swept.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxItems:        100,
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// BundleKey returns the cache key of a synthesized document.
func BundleKey(hash string) string {
	return fmt.Sprintf("bundle:%s", hash)
}

// ProjectKey returns the cache key of a stored project's files.
func ProjectKey(name string) string {
	return fmt.Sprintf("project:%s", name)
}

// ProjectPattern matches every project key.
func ProjectPattern() string {
	return "project:*"
}
