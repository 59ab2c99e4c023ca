// Package cache provides a generic, thread-safe expiring key/value store.
//
// Entries expire a fixed time after their last Set. Expired entries are
// invisible to Get, Size and Keys immediately, and are physically removed by
// a background sweep. Statistics are always collected; Prometheus metrics are
// optional via WithMetrics.
package cache

import (
	"time"

	"github.com/c360/flightrelay/errors"
)

// Cache is the read/write surface shared by cache implementations.
type Cache[V any] interface {
	// Get returns the live value for key.
	Get(key string) (V, bool)

	// Set stores value and restarts its expiry. Reports whether key was new.
	Set(key string, value V) (bool, error)

	// Delete removes key. Reports whether it was present.
	Delete(key string) (bool, error)

	// Clear removes all entries.
	Clear() error

	// Size returns the number of live entries.
	Size() int

	// Keys returns the live keys in no particular order.
	Keys() []string

	// Stats returns the cache statistics.
	Stats() *Statistics

	// Close stops background work.
	Close() error
}

// EvictCallback is called when an entry leaves the cache.
type EvictCallback[V any] func(key string, value V)

// Clock returns the current time.
type Clock func() time.Time

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
