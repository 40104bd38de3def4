package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"apex-preview/internal/logging"
)

// Memory is an LRU cache with per-entry expiry.
type Memory struct {
	items map[string]*memItem
	// order holds the most recently used entry at the front
	order *list.List
	mu    sync.Mutex

	maxItems   int
	defaultTTL time.Duration
	now        func() time.Time

	stats Stats

	stopCleanup chan struct{}
	stopOnce    sync.Once
	log         *zap.Logger
}

type memItem struct {
	key       string
	value     []byte
	expiresAt time.Time
	element   *list.Element
}

// NewMemory creates a memory cache. A positive CleanupInterval starts a
// background sweeper that Close stops.
func NewMemory(cfg Config) *Memory {
	def := DefaultConfig()
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = def.MaxItems
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}

	m := &Memory{
		items:       make(map[string]*memItem),
		order:       list.New(),
		maxItems:    cfg.MaxItems,
		defaultTTL:  cfg.DefaultTTL,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
		log:         logging.Named("cache"),
	}
	if cfg.CleanupInterval > 0 {
		go m.cleanupLoop(cfg.CleanupInterval)
	}
	return m
}

// Get returns the value for key or ErrCacheMiss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		m.stats.Misses++
		return nil, ErrCacheMiss
	}
	if m.now().After(item.expiresAt) {
		m.removeItem(item)
		m.stats.Misses++
		m.stats.Expirations++
		return nil, ErrCacheMiss
	}
	m.order.MoveToFront(item.element)
	m.stats.Hits++
	return item.value, nil
}

// Set stores value under key, evicting the least recently used entries when
// the cache is full.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.items[key]; ok {
		m.stats.MemoryBytes += int64(len(value) - len(existing.value))
		existing.value = value
		existing.expiresAt = m.now().Add(ttl)
		m.order.MoveToFront(existing.element)
		return nil
	}

	for len(m.items) >= m.maxItems {
		m.evictOldest()
	}

	item := &memItem{key: key, value: value, expiresAt: m.now().Add(ttl)}
	item.element = m.order.PushFront(item)
	m.items[key] = item
	m.stats.MemoryBytes += int64(len(value))
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[key]; ok {
		m.removeItem(item)
	}
	return nil
}

// DeletePattern removes keys matching a glob with an optional trailing "*".
func (m *Memory) DeletePattern(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, item := range m.items {
		if matchPattern(pattern, key) {
			m.removeItem(item)
			n++
		}
	}
	return n
}

// Len returns the number of entries, expired ones included until swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Stats returns a snapshot of the cache statistics.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.MemorySize = len(m.items)
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	return s
}

// Close stops the sweeper and drops every entry.
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stopCleanup) })
	m.mu.Lock()
	m.items = make(map[string]*memItem)
	m.order.Init()
	m.stats.MemoryBytes = 0
	m.mu.Unlock()
}

// removeItem must be called with mu held.
func (m *Memory) removeItem(item *memItem) {
	delete(m.items, item.key)
	m.order.Remove(item.element)
	m.stats.MemoryBytes -= int64(len(item.value))
}

// evictOldest must be called with mu held.
func (m *Memory) evictOldest() {
	oldest := m.order.Back()
	if oldest == nil {
		return
	}
	item := oldest.Value.(*memItem)
	m.removeItem(item)
	m.stats.Evictions++
	m.log.Debug("evicted entry", zap.String("key", shortKey(item.key)))
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			m.cleanupExpired()
		}
	}
}

func (m *Memory) cleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []*memItem
	for _, item := range m.items {
		if now.After(item.expiresAt) {
			expired = append(expired, item)
		}
	}
	for _, item := range expired {
		m.removeItem(item)
		m.stats.Expirations++
	}
	if len(expired) > 0 {
		m.log.Debug("swept expired entries", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// matchPattern supports exact keys and a trailing "*" wildcard.
func matchPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}

func shortKey(key string) string {
	if len(key) > 16 {
		return key[:16]
	}
	return key
}
