package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Memcached implements Cache backed by memcached, for running several
// service replicas against shared cache state. Values are stored as JSON.
// Capacity is memcached's concern; the TTL is fixed at construction to match
// the LRU backend's contract.
type Memcached[V any] struct {
	client *memcache.Client
	prefix string
	ttl    time.Duration
}

// NewMemcached creates a memcached-backed cache. addrs is a comma-separated
// list (e.g. "localhost:11211" or "host1:11211,host2:11211"). prefix
// namespaces keys so multiple caches can share one cluster.
func NewMemcached[V any](addrs, prefix string, ttl, timeout time.Duration, maxIdleConns int) (*Memcached[V], error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &Memcached[V]{client: client, prefix: prefix, ttl: ttl}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *Memcached[V]) key(k string) string {
	return c.prefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *Memcached[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return zero, false, nil
		}
		return zero, false, err
	}
	var value V
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return zero, false, err
	}
	return value, true, nil
}

// Set implements Cache.Set.
func (c *Memcached[V]) Set(ctx context.Context, key string, value V) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expSec := int32(c.ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600 // fallback 1h if invalid
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Remove implements Cache.Remove. Missing keys are not an error.
func (c *Memcached[V]) Remove(ctx context.Context, key string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := c.client.Delete(c.key(key))
	if err == memcache.ErrCacheMiss {
		return nil
	}
	return err
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *Memcached[V]) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *Memcached[V]) Close() error {
	return c.client.Close()
}
