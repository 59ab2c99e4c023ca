package cache

import (
	"time"

	"github.com/c360/flightrelay/metric"
)

// Option configures cache behavior.
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	metricsReg      *metric.MetricsRegistry
	metricsPrefix   string
	evictCallback   EvictCallback[V]
	cleanupInterval time.Duration
	clock           Clock
	capacity        int
}

// WithMetrics exports cache statistics under the given component label.
// A nil registry or empty prefix is ignored.
func WithMetrics[V any](registry *metric.MetricsRegistry, prefix string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithEvictionCallback sets a function called for every removed entry.
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

// WithCleanupInterval sets how often expired entries are swept.
// Non-positive values are ignored.
func WithCleanupInterval[V any](interval time.Duration) Option[V] {
	return func(opts *cacheOptions[V]) {
		if interval > 0 {
			opts.cleanupInterval = interval
		}
	}
}

// WithCapacity bounds the number of stored entries. When a new key arrives
// at capacity, expired entries are swept and, if none were, the entry
// closest to expiry is evicted. Zero means unbounded.
func WithCapacity[V any](capacity int) Option[V] {
	return func(opts *cacheOptions[V]) {
		if capacity > 0 {
			opts.capacity = capacity
		}
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock[V any](clock Clock) Option[V] {
	return func(opts *cacheOptions[V]) {
		if clock != nil {
			opts.clock = clock
		}
	}
}

func applyOptions[V any](ttl time.Duration, options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{
		cleanupInterval: ttl,
		clock:           time.Now,
	}
	if opts.cleanupInterval <= 0 || opts.cleanupInterval > time.Minute {
		opts.cleanupInterval = time.Minute
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
