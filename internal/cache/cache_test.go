package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"apex-preview/internal/workspace"
)

type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	failOn map[string]bool
	closed bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, failOn: map[string]bool{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn["set"] {
		return errors.New("connection refused")
	}
	f.data[key] = value.(string)
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) Keys(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.data {
		if matchPattern(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeRedis) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn["ping"] {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestMemory_LRUEviction(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Config{MaxItems: 2})
	defer m.Close()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	_, err := m.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, m.Set(ctx, "c", []byte("3"), 0))

	_, err = m.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss, "least recently used entry should be evicted")
	v, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 2, stats.MemorySize)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Config{MaxItems: 10})
	defer m.Close()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, int64(1), m.Stats().Expirations)
}

func TestMemory_CleanupExpiredAndPattern(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMemory(Config{MaxItems: 10})
	defer m.Close()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "project:a", []byte("1"), time.Second))
	require.NoError(t, m.Set(ctx, "project:b", []byte("2"), time.Hour))
	require.NoError(t, m.Set(ctx, "bundle:x", []byte("3"), time.Hour))

	now = now.Add(time.Minute)
	assert.Equal(t, 1, m.cleanupExpired())
	assert.Equal(t, 1, m.DeletePattern("project:*"))
	assert.Equal(t, 1, m.Len())
}

func TestMemory_CloseStopsSweeper(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewMemory(Config{CleanupInterval: time.Millisecond})
	m.Close()
	m.Close()
}

func TestTiered_ReadsThroughRedis(t *testing.T) {
	ctx := context.Background()
	redis := newFakeRedis()
	redis.data["bundle:abc"] = "<html></html>"

	c := NewTieredWithClient(redis, Config{MaxItems: 10})
	defer c.Close()

	v, err := c.Get(ctx, "bundle:abc")
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(v))

	delete(redis.data, "bundle:abc")
	v, err = c.Get(ctx, "bundle:abc")
	require.NoError(t, err, "memory copy should serve the second read")
	assert.Equal(t, "<html></html>", string(v))
	assert.True(t, c.HasRedis())
}

func TestTiered_RedisFailureFallsBackToMemory(t *testing.T) {
	ctx := context.Background()
	redis := newFakeRedis()
	redis.failOn["set"] = true

	c := NewTieredWithClient(redis, Config{MaxItems: 10})
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	require.NoError(t, c.Close())
	assert.True(t, redis.closed)
}

func TestTiered_GetOrSet(t *testing.T) {
	ctx := context.Background()
	c := NewTieredWithClient(nil, Config{MaxItems: 10})
	defer c.Close()

	calls := 0
	load := func() ([]byte, error) {
		calls++
		return []byte("built"), nil
	}
	for i := 0; i < 3; i++ {
		v, err := c.GetOrSet(ctx, "k", 0, load)
		require.NoError(t, err)
		assert.Equal(t, "built", string(v))
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrSet(ctx, "other", 0, func() ([]byte, error) { return nil, errors.New("boom") })
	assert.Error(t, err)
}

func TestProjectCache(t *testing.T) {
	ctx := context.Background()
	redis := newFakeRedis()
	c := NewTieredWithClient(redis, Config{MaxItems: 10})
	defer c.Close()
	pc := NewProjectCache(c)

	files := []workspace.FlatFile{{Path: "src/App.jsx", Content: "x"}}
	require.NoError(t, pc.Set(ctx, "demo", files))

	got, err := pc.Get(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Name)
	assert.Equal(t, files, got.Files)

	require.NoError(t, pc.Set(ctx, "other", files))
	require.NoError(t, pc.InvalidateAll(ctx))
	_, err = pc.Get(ctx, "demo")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Empty(t, redis.data)
}

func TestTiered_Ping(t *testing.T) {
	ctx := context.Background()

	memOnly := NewTieredWithClient(nil, Config{MaxItems: 10})
	defer memOnly.Close()
	assert.NoError(t, memOnly.Ping(ctx))

	redis := newFakeRedis()
	c := NewTieredWithClient(redis, Config{MaxItems: 10})
	defer c.Close()
	assert.NoError(t, c.Ping(ctx))

	redis.failOn["ping"] = true
	assert.Error(t, c.Ping(ctx))
}
