package compiler

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/sbl8/dualc/model"
)

// DefaultCacheSize is the plan cache capacity when Options.CacheSize is 0.
const DefaultCacheSize = 256

// planCache is a bounded LRU of compiled plans keyed by descriptor
// fingerprint and compile options. Plans are immutable, so entries are
// shared between callers.
type planCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front is most recent

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	key  string
	plan model.Plan
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Len       int
	Hits      int64
	Misses    int64
	Evictions int64
}

func newPlanCache(capacity int) *planCache {
	capacity = max(capacity, 0)
	return &planCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *planCache) get(key string) (model.Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		c.hits.Add(1)
		return el.Value.(*cacheEntry).plan, true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *planCache) put(key string, p model.Plan) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).plan = p
		return
	}
	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
		c.evictions.Add(1)
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, plan: p})
}

func (c *planCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.order.Init()
}

func (c *planCache) stats() CacheStats {
	c.mu.Lock()
	n := c.order.Len()
	c.mu.Unlock()
	return CacheStats{
		Len:       n,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
