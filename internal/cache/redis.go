package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"apex-preview/internal/logging"
)

// RedisClient is the subset of Redis operations the shared tier needs.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Tiered reads through Redis when configured and always keeps a memory copy,
// so a Redis outage degrades to per-instance caching.
type Tiered struct {
	mem        *Memory
	redis      RedisClient
	defaultTTL time.Duration

	statsMu     sync.Mutex
	redisHits   int64
	redisErrors int64

	log *zap.Logger
}

// NewTiered builds a cache from cfg. When cfg.RedisURL is set but Redis is
// unreachable the error is logged and the memory tier is used alone.
func NewTiered(cfg Config) *Tiered {
	var client RedisClient
	if cfg.RedisURL != "" {
		adapter, err := NewGoRedisClient(cfg.RedisURL)
		if err != nil {
			logging.Named("cache").Warn("redis unavailable, using memory cache only", zap.Error(err))
		} else {
			client = adapter
		}
	}
	return NewTieredWithClient(client, cfg)
}

// NewTieredWithClient builds a cache over an existing client, which may be nil.
func NewTieredWithClient(client RedisClient, cfg Config) *Tiered {
	mem := NewMemory(cfg)
	return &Tiered{
		mem:        mem,
		redis:      client,
		defaultTTL: mem.defaultTTL,
		log:        logging.Named("cache"),
	}
}

// Get checks memory first, then Redis. Redis hits are copied into memory.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := t.mem.Get(ctx, key); err == nil {
		return v, nil
	}
	if t.redis == nil {
		return nil, ErrCacheMiss
	}
	val, err := t.redis.Get(ctx, key)
	if err != nil {
		return nil, ErrCacheMiss
	}
	t.statsMu.Lock()
	t.redisHits++
	t.statsMu.Unlock()
	_ = t.mem.Set(ctx, key, []byte(val), 0)
	return []byte(val), nil
}

// Set writes both tiers. A Redis failure is logged, not returned.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.defaultTTL
	}
	if t.redis != nil {
		if err := t.redis.Set(ctx, key, string(value), ttl); err != nil {
			t.recordRedisError("set", key, err)
		}
	}
	return t.mem.Set(ctx, key, value, ttl)
}

// Delete removes key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	if t.redis != nil {
		if err := t.redis.Del(ctx, key); err != nil {
			t.recordRedisError("del", key, err)
		}
	}
	return t.mem.Delete(ctx, key)
}

// DeletePattern removes every key matching pattern from both tiers.
func (t *Tiered) DeletePattern(ctx context.Context, pattern string) error {
	if t.redis != nil {
		keys, err := t.redis.Keys(ctx, pattern)
		if err == nil && len(keys) > 0 {
			err = t.redis.Del(ctx, keys...)
		}
		if err != nil {
			t.recordRedisError("delete pattern", pattern, err)
		}
	}
	t.mem.DeletePattern(pattern)
	return nil
}

// GetJSON retrieves and unmarshals a JSON value.
func (t *Tiered) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := t.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON marshals and stores a JSON value.
func (t *Tiered) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return t.Set(ctx, key, data, ttl)
}

// GetOrSet returns the cached value or stores the loader's result.
func (t *Tiered) GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func() ([]byte, error)) ([]byte, error) {
	if data, err := t.Get(ctx, key); err == nil {
		return data, nil
	}
	data, err := loader()
	if err != nil {
		return nil, err
	}
	_ = t.Set(ctx, key, data, ttl)
	return data, nil
}

// Stats returns the memory tier statistics with Redis hits folded in.
func (t *Tiered) Stats() Stats {
	s := t.mem.Stats()
	t.statsMu.Lock()
	s.Hits += t.redisHits
	s.Misses -= t.redisHits
	t.statsMu.Unlock()
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	return s
}

// HasRedis reports whether the shared tier is active.
func (t *Tiered) HasRedis() bool {
	return t.redis != nil
}

// Ping checks the Redis connection. Without a shared tier there is nothing to
// reach and Ping returns nil.
func (t *Tiered) Ping(ctx context.Context) error {
	if t.redis == nil {
		return nil
	}
	if err := t.redis.Ping(ctx); err != nil {
		t.recordRedisError("ping", "", err)
		return err
	}
	return nil
}

// Close releases the memory tier and the Redis connection.
func (t *Tiered) Close() error {
	t.mem.Close()
	if t.redis != nil {
		return t.redis.Close()
	}
	return nil
}

func (t *Tiered) recordRedisError(op, key string, err error) {
	t.statsMu.Lock()
	t.redisErrors++
	t.statsMu.Unlock()
	t.log.Warn("redis operation failed", zap.String("op", op), zap.String("key", shortKey(key)), zap.Error(err))
}
