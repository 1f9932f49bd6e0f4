package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/divingclub/clubattrs/pkg/cache"
	"github.com/divingclub/clubattrs/pkg/cache/memorycache"
)

// Collector keeps in-process counters that back the health endpoint and
// the gauges refreshed by PrometheusExporter.Update.
type Collector struct {
	routeRequests sync.Map // route -> *uint64
	routeErrors   sync.Map // route -> *uint64 (5xx responses)
	routeDuration sync.Map // route -> *durationValue

	gateAllowed atomic.Uint64
	gateDenied  atomic.Uint64

	cache cache.Cache
}

type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds definition cache metrics.
type CacheMetrics struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	HitRate     float64 `json:"hitRate"`
	KeysCurrent int64   `json:"keysCurrent"`
	MemoryBytes int64   `json:"memoryBytes"`
	Evictions   uint64  `json:"evictions"`
}

// APIMetrics holds HTTP request metrics keyed by route pattern.
type APIMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// GateMetrics counts eligibility decisions.
type GateMetrics struct {
	Allowed uint64 `json:"allowed"`
	Denied  uint64 `json:"denied"`
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(cache cache.Cache) {
	c.cache = cache
}

// RecordRequest records one HTTP request served by route.
func (c *Collector) RecordRequest(route string, status int, durationSeconds float64) {
	atomic.AddUint64(c.counter(&c.routeRequests, route), 1)
	if status >= 500 {
		atomic.AddUint64(c.counter(&c.routeErrors, route), 1)
	}

	val, _ := c.routeDuration.LoadOrStore(route, &durationValue{})
	dv := val.(*durationValue)
	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordDecision records one eligibility gate outcome.
func (c *Collector) RecordDecision(allowed bool) {
	if allowed {
		c.gateAllowed.Add(1)
		return
	}
	c.gateDenied.Add(1)
}

// GetGateMetrics returns the decision counters.
func (c *Collector) GetGateMetrics() GateMetrics {
	return GateMetrics{Allowed: c.gateAllowed.Load(), Denied: c.gateDenied.Load()}
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.cache == nil {
		return &CacheMetrics{}
	}

	m := c.cache.Metrics()
	if m == nil {
		return &CacheMetrics{}
	}

	result := &CacheMetrics{
		Hits:      m.Hits,
		Misses:    m.Misses,
		HitRate:   m.HitRate(),
		Evictions: m.KeysEvicted,
	}

	if memCache, ok := c.cache.(*memorycache.Cache); ok {
		result.KeysCurrent = int64(memCache.Len())
		result.MemoryBytes = memCache.Size()
	}

	return result
}

// GetAPIMetrics returns current HTTP metrics.
func (c *Collector) GetAPIMetrics() *APIMetrics {
	result := &APIMetrics{
		RequestCounts:        make(map[string]uint64),
		ErrorCounts:          make(map[string]uint64),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.routeRequests.Range(func(key, value interface{}) bool {
		result.RequestCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	c.routeErrors.Range(func(key, value interface{}) bool {
		result.ErrorCounts[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	c.routeDuration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

func (c *Collector) counter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
