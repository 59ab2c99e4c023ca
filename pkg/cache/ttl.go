package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/flightrelay/errors"
)

type ttlEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	elem      *list.Element
}

// TTLCache evicts entries a fixed duration after they were last set.
//
// Entries are also kept in a list ordered by last Set. With one TTL for all
// entries that is expiry order, so the sweep and capacity eviction stop at the
// first live entry instead of scanning the map.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	items   map[string]*ttlEntry[V]
	order   *list.List // front expires first
	clock   Clock
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
	limit   int

	cleanupInterval time.Duration
	shutdown        chan struct{}
	done            chan struct{}
	closeOnce       sync.Once
}

var _ Cache[string] = (*TTLCache[string])(nil)

// NewTTL creates a TTL cache and starts its background sweep, which stops
// when ctx is done or Close is called.
func NewTTL[V any](ctx context.Context, ttl time.Duration, options ...Option[V]) (*TTLCache[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewTTL", "ttl must be positive")
	}

	opts := applyOptions(ttl, options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewTTL", "metrics registration")
		}
	}

	c := &TTLCache[V]{
		ttl:             ttl,
		items:           make(map[string]*ttlEntry[V]),
		order:           list.New(),
		clock:           opts.clock,
		stats:           NewStatistics(),
		metrics:         metrics,
		evictFn:         opts.evictCallback,
		limit:           opts.capacity,
		cleanupInterval: opts.cleanupInterval,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}

	go c.cleanup(ctx)

	return c, nil
}

// Get returns the live value for key.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	now := c.clock()

	var value V
	c.mu.RLock()
	entry, exists := c.items[key]
	live := exists && now.Before(entry.expiresAt)
	if live {
		value = entry.value
	}
	c.mu.RUnlock()

	if !live {
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return value, false
	}

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return value, true
}

// Set stores value and restarts its expiry. An expired entry that has not
// been swept yet counts as absent.
func (c *TTLCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	now := c.clock()

	c.mu.Lock()
	prev, exists := c.items[key]
	created := !exists || !now.Before(prev.expiresAt)
	var evicted []*ttlEntry[V]
	if exists {
		prev.value = value
		prev.expiresAt = now.Add(c.ttl)
		c.order.MoveToBack(prev.elem)
	} else {
		if c.limit > 0 && len(c.items) >= c.limit {
			evicted = c.makeRoomLocked(now)
		}
		entry := &ttlEntry[V]{key: key, value: value, expiresAt: now.Add(c.ttl)}
		entry.elem = c.order.PushBack(entry)
		c.items[key] = entry
	}
	size := len(c.items)
	c.mu.Unlock()

	c.recordEvictions(evicted, size)
	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}

	return created, nil
}

// Delete removes key.
func (c *TTLCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		c.removeLocked(entry)
	}
	size := len(c.items)
	c.mu.Unlock()

	if !exists {
		return false, nil
	}
	if c.evictFn != nil {
		c.evictFn(key, entry.value)
	}
	c.stats.Delete()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordDelete()
		c.metrics.updateSize(size)
	}
	return true, nil
}

// Clear removes all entries.
func (c *TTLCache[V]) Clear() error {
	c.mu.Lock()
	old := c.items
	c.items = make(map[string]*ttlEntry[V])
	c.order.Init()
	c.mu.Unlock()

	if c.evictFn != nil {
		for _, entry := range old {
			c.evictFn(entry.key, entry.value)
		}
	}
	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	return nil
}

// Size returns the number of live entries. Expired entries awaiting the
// sweep are not counted.
func (c *TTLCache[V]) Size() int {
	now := c.clock()

	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, entry := range c.items {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}

// Keys returns the live keys.
func (c *TTLCache[V]) Keys() []string {
	now := c.clock()

	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key, entry := range c.items {
		if now.Before(entry.expiresAt) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Stats returns the cache statistics.
func (c *TTLCache[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the background sweep.
func (c *TTLCache[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

func (c *TTLCache[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.RemoveExpired()
		}
	}
}

// RemoveExpired sweeps expired entries now and returns how many were removed.
func (c *TTLCache[V]) RemoveExpired() int {
	now := c.clock()

	c.mu.Lock()
	expired := c.expireLocked(now)
	size := len(c.items)
	c.mu.Unlock()

	c.recordEvictions(expired, size)
	return len(expired)
}

// expireLocked removes expired entries from the front of the order list.
// Caller holds mu.
func (c *TTLCache[V]) expireLocked(now time.Time) []*ttlEntry[V] {
	var expired []*ttlEntry[V]
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		entry := front.Value.(*ttlEntry[V])
		if now.Before(entry.expiresAt) {
			break
		}
		c.removeLocked(entry)
		expired = append(expired, entry)
	}
	return expired
}

// makeRoomLocked frees at least one slot, preferring expired entries over
// the live one closest to expiry. Caller holds mu.
func (c *TTLCache[V]) makeRoomLocked(now time.Time) []*ttlEntry[V] {
	evicted := c.expireLocked(now)
	if len(evicted) == 0 {
		if front := c.order.Front(); front != nil {
			entry := front.Value.(*ttlEntry[V])
			c.removeLocked(entry)
			evicted = append(evicted, entry)
		}
	}
	return evicted
}

func (c *TTLCache[V]) removeLocked(entry *ttlEntry[V]) {
	c.order.Remove(entry.elem)
	delete(c.items, entry.key)
}

func (c *TTLCache[V]) recordEvictions(evicted []*ttlEntry[V], size int) {
	if len(evicted) == 0 {
		return
	}

	// Callbacks run outside the lock
	if c.evictFn != nil {
		for _, entry := range evicted {
			c.evictFn(entry.key, entry.value)
		}
	}

	c.stats.Evict(int64(len(evicted)))
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordEvictions(len(evicted))
		c.metrics.updateSize(size)
	}
}
