package validator

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry pairs a cached Result with its insertion time, for TTL eviction, and
// its list element, for LRU eviction — grounded on the teacher's
// common/cache.MemoryCache TTL map, generalized with an explicit LRU ring.
type cacheEntry struct {
	key       string
	result    Result
	expiresAt time.Time
	elem      *list.Element
}

// resultCache is a bounded, TTL'd cache of validation verdicts keyed by a content
// hash of (nodes, edges). Identical requests within the TTL window return the
// cached verdict; entries beyond the LRU cap are evicted oldest-used-first.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	cap     int
	entries map[string]*cacheEntry
	order   *list.List // front = most recently used
}

func newResultCache(ttl time.Duration, capacity int) *resultCache {
	return &resultCache{
		ttl:     ttl,
		cap:     capacity,
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
	}
}

func (c *resultCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if time.Now().After(e.expiresAt) {
		c.removeLocked(e)
		return Result{}, false
	}
	c.order.MoveToFront(e.elem)
	return e.result, true
}

func (c *resultCache) put(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		existing.result = result
		existing.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(existing.elem)
		return
	}

	e := &cacheEntry{key: key, result: result, expiresAt: time.Now().Add(c.ttl)}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e

	for len(c.entries) > c.cap {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeLocked(back.Value.(*cacheEntry))
	}
}

// removeLocked must be called with mu held.
func (c *resultCache) removeLocked(e *cacheEntry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}
