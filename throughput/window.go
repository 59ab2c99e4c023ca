// Package throughput counts events over a trailing time window.
//
// Each event is stored as its own expiring entry, so writers and readers
// never share a counter that must be reset: Count is simply the number of
// entries younger than the window span.
package throughput

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/c360/flightrelay/pkg/cache"
)

// DefaultCapacity bounds memory when events arrive faster than they expire.
const DefaultCapacity = 100_000

// Window is a rolling event count. Safe for concurrent use.
type Window struct {
	span    time.Duration
	entries *cache.TTLCache[struct{}]
}

type options struct {
	clock    func() time.Time
	capacity int
}

// Option configures a Window.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithCapacity bounds how many events can be counted at once.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// NewWindow creates a window of the given span. Background expiry stops
// when ctx is done or Close is called.
func NewWindow(ctx context.Context, span time.Duration, opts ...Option) (*Window, error) {
	o := options{clock: time.Now, capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := cache.NewTTL[struct{}](ctx, span,
		cache.WithClock[struct{}](o.clock),
		cache.WithCapacity[struct{}](o.capacity),
		cache.WithCleanupInterval[struct{}](span),
	)
	if err != nil {
		return nil, err
	}

	return &Window{span: span, entries: entries}, nil
}

// Record counts one event now.
func (w *Window) Record() {
	// uuid keys never collide, so every call is a distinct entry
	_, _ = w.entries.Set(uuid.NewString(), struct{}{})
}

// Count returns the number of events within the span.
func (w *Window) Count() int {
	return w.entries.Size()
}

// Span returns the window length.
func (w *Window) Span() time.Duration {
	return w.span
}

// Close stops background expiry.
func (w *Window) Close() error {
	return w.entries.Close()
}
