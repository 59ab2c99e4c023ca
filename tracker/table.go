// Package tracker keeps the per-aircraft state the feed reader needs to turn
// SBS-1 records into publishable sightings.
//
// SBS-1 sends callsigns and positions in separate messages, so the table
// remembers the last callsign per ICAO address. An aircraft counts as seen
// once its callsign is known, and is forgotten after RetentionWindow without
// observation.
package tracker

import (
	"context"
	"time"

	"github.com/c360/flightrelay/metric"
	"github.com/c360/flightrelay/pkg/cache"
)

const (
	// RetentionWindow is how long an aircraft stays known without messages.
	RetentionWindow = 15 * time.Minute

	// DefaultCapacity soft-caps memory. Steady-state traffic stays far below it.
	DefaultCapacity = 100_000
)

// Sighting is a position for an aircraft whose callsign is known.
type Sighting struct {
	AircraftID string
	Callsign   string
	Latitude   float64
	Longitude  float64
	SeenAt     time.Time
}

// Table maps ICAO addresses to their last callsign. Writes come from a
// single feed reader; Size and Callsign are safe to call concurrently.
type Table struct {
	callsigns *cache.TTLCache[string]
	clock     func() time.Time
}

type options struct {
	clock     func() time.Time
	retention time.Duration
	capacity  int
	registry  *metric.MetricsRegistry
}

// Option configures a Table.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRetention overrides RetentionWindow.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithMetrics exports the backing cache statistics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// New creates a table. Its background sweep stops when ctx is done or Close
// is called.
func New(ctx context.Context, opts ...Option) (*Table, error) {
	o := options{
		clock:     time.Now,
		retention: RetentionWindow,
		capacity:  DefaultCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}

	callsigns, err := cache.NewTTL[string](ctx, o.retention,
		cache.WithClock[string](o.clock),
		cache.WithCapacity[string](o.capacity),
		cache.WithMetrics[string](o.registry, "tracker"),
	)
	if err != nil {
		return nil, err
	}

	return &Table{callsigns: callsigns, clock: o.clock}, nil
}

// Observe records one decoded message. A non-empty callsign replaces the
// remembered one. Any message for an aircraft with a known callsign renews
// its retention. The sighting is returned when both coordinates are present
// and a callsign is known.
func (t *Table) Observe(id, callsign string, lat, lon *float64) (Sighting, bool) {
	if id == "" {
		return Sighting{}, false
	}

	if callsign == "" {
		callsign, _ = t.callsigns.Get(id)
	}
	if callsign == "" {
		return Sighting{}, false
	}

	// Set renews the entry, so the aircraft stays counted as seen
	_, _ = t.callsigns.Set(id, callsign)

	if lat == nil || lon == nil {
		return Sighting{}, false
	}

	return Sighting{
		AircraftID: id,
		Callsign:   callsign,
		Latitude:   *lat,
		Longitude:  *lon,
		SeenAt:     t.clock(),
	}, true
}

// Callsign returns the remembered callsign for id.
func (t *Table) Callsign(id string) (string, bool) {
	return t.callsigns.Get(id)
}

// Size returns the number of aircraft seen within the retention window.
func (t *Table) Size() int {
	return t.callsigns.Size()
}

// Close stops the background sweep.
func (t *Table) Close() error {
	return t.callsigns.Close()
}
