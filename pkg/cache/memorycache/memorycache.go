package memorycache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/divingclub/clubattrs/pkg/cache"
)

// baseEntrySize approximates the bookkeeping overhead of one entry.
const baseEntrySize = 100

// entry represents a cache entry with value and metadata
type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
	size      int64
}

// Cache implements a size-bounded LRU cache with TTL support.
type Cache struct {
	mu sync.Mutex

	items     map[string]*list.Element
	evictList *list.List // front = most recent

	maxSize    int64
	defaultTTL time.Duration
	now        func() time.Time

	currentSize int64

	metrics *cache.Metrics
}

var _ cache.Cache = (*Cache)(nil)

// Config holds configuration for the memory cache.
type Config struct {
	// MaxSizeBytes is the maximum total size of cached items in bytes.
	// When this limit is exceeded, least recently used items are evicted.
	// Zero means unbounded.
	MaxSizeBytes int64

	// DefaultTTL applies when Set is called with a non-positive TTL.
	DefaultTTL time.Duration

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New(config *Config) (*Cache, error) {
	c := &Cache{
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		maxSize:    config.MaxSizeBytes,
		defaultTTL: config.DefaultTTL,
		now:        time.Now,
	}

	if config.EnableMetrics {
		c.metrics = &cache.Metrics{}
	}

	return c, nil
}

// Get retrieves a value and marks it most recently used.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.miss()
		return nil, false
	}

	ent := elem.Value.(*entry)
	if !ent.expiresAt.IsZero() && c.now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.miss()
		return nil, false
	}

	c.evictList.MoveToFront(elem)
	if c.metrics != nil {
		c.metrics.Hits++
	}
	return ent.value, true
}

// Set stores a value in cache with the specified TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	size := entrySize(key, value)

	if elem, exists := c.items[key]; exists {
		ent := elem.Value.(*entry)
		c.currentSize += size - ent.size
		ent.value = value
		ent.expiresAt = expiresAt
		ent.size = size
		c.evictList.MoveToFront(elem)
	} else {
		ent := &entry{key: key, value: value, expiresAt: expiresAt, size: size}
		c.items[key] = c.evictList.PushFront(ent)
		c.currentSize += size
		if c.metrics != nil {
			c.metrics.KeysAdded++
		}
	}

	for c.maxSize > 0 && c.currentSize > c.maxSize && c.evictList.Len() > 1 {
		c.removeElement(c.evictList.Back())
		if c.metrics != nil {
			c.metrics.KeysEvicted++
		}
	}

	return nil
}

// Delete removes a value from cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}

	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed, nil
}

// Clear removes all entries from cache.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.currentSize = 0

	return nil
}

// Close releases resources (no-op for memory cache).
func (c *Cache) Close() error {
	return nil
}

// Metrics returns a snapshot of cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	if c.metrics == nil {
		return &cache.Metrics{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := *c.metrics
	return &snapshot
}

// ResetMetrics resets cache statistics.
func (c *Cache) ResetMetrics() {
	if c.metrics == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	*c.metrics = cache.Metrics{}
}

// Len returns the current number of items in cache.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the current total size in bytes.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

func (c *Cache) miss() {
	if c.metrics != nil {
		c.metrics.Misses++
	}
}

// removeElement must be called with the lock held.
func (c *Cache) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	ent := elem.Value.(*entry)
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}

func entrySize(key string, value interface{}) int64 {
	size := int64(baseEntrySize + len(key))
	if s, ok := value.(cache.Sizer); ok {
		size += s.CacheSize()
	}
	return size
}
