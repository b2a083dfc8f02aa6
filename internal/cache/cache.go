package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/aqi-alert-service/internal/observability"
)

// Cache defines the interface for bounded key/value caching implementations.
// Get returns the cached value if present and not expired; Set stores a value
// under the TTL fixed at construction.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V) error
	Remove(ctx context.Context, key string) error
}

// LRU implements Cache with a fixed capacity, access-ordered eviction, and a
// per-entry TTL. Both Get and Set refresh recency. When the entry count would
// exceed capacity the least-recently-used entry is evicted regardless of its
// TTL state. Expired entries are removed lazily on Get and proactively by
// Sweep. Safe for concurrent use; recency updates make every access a
// structural write, so a single mutex guards the map and list.
type LRU[V any] struct {
	mu       sync.Mutex
	name     string // metrics label
	capacity int
	ttl      time.Duration
	clock    clockwork.Clock
	ll       *list.List // front = most recently used
	items    map[string]*list.Element
}

type lruEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// NewLRU creates a bounded LRU cache. name labels eviction metrics; capacity
// and ttl are fixed for the cache's lifetime. A nil clock uses real time.
func NewLRU[V any](name string, capacity int, ttl time.Duration, clock clockwork.Clock) *LRU[V] {
	if capacity <= 0 {
		capacity = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LRU[V]{
		name:     name,
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
	}
}

// Get retrieves the cached value for key if present and not expired.
// Returns (value, true, nil) on a hit and refreshes the entry's recency.
// An entry whose expiry has passed is removed and reported as absent.
func (c *LRU[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return zero, false, nil
	}
	ent := el.Value.(*lruEntry[V])
	if c.clock.Now().After(ent.expiresAt) {
		c.removeElement(el)
		observability.CacheExpirationsTotal.WithLabelValues(c.name).Inc()
		return zero, false, nil
	}
	c.ll.MoveToFront(el)
	return ent.value, true, nil
}

// Set stores value under key with the cache's TTL, refreshing recency. When
// the insert would exceed capacity, the least-recently-used entry is evicted.
func (c *LRU[V]) Set(ctx context.Context, key string, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*lruEntry[V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.ll.MoveToFront(el)
		return nil
	}

	el := c.ll.PushFront(&lruEntry[V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.removeElement(oldest)
			observability.CacheEvictionsTotal.WithLabelValues(c.name).Inc()
		}
	}
	return nil
}

// Remove deletes key from the cache if present.
func (c *LRU[V]) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	return nil
}

// Len returns the current entry count, including not-yet-swept expired entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Sweep removes every expired entry and returns the count removed.
// Bounds memory independent of read traffic.
func (c *LRU[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	removed := 0
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*lruEntry[V]).expiresAt) {
			c.removeElement(el)
			observability.CacheExpirationsTotal.WithLabelValues(c.name).Inc()
			removed++
		}
		el = prev
	}
	return removed
}

// StartSweeper runs Sweep at the given interval until ctx is done.
// Call once, typically right after construction.
func (c *LRU[V]) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := c.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				c.Sweep()
			}
		}
	}()
}

func (c *LRU[V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruEntry[V]).key)
}
