package relay

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/flightrelay/metric"
	"github.com/c360/flightrelay/pkg/cache"
)

// DefaultDebounceInterval is the minimum spacing between accepted publishes
// for a single aircraft.
const DefaultDebounceInterval = 5 * time.Second

// Debouncer admits at most burst events per interval for each aircraft.
// With burst 1 an event is admitted iff no event for the same aircraft was
// admitted within the last interval.
type Debouncer struct {
	interval time.Duration
	burst    int
	clock    func() time.Time
	limiters *cache.TTLCache[*rate.Limiter]
}

// NewDebouncer creates a debouncer. An interval of zero or less admits every
// event. A limiter is dropped once it has been idle long enough to refill,
// which is indistinguishable from a fresh one.
func NewDebouncer(ctx context.Context, interval time.Duration, burst int, clock func() time.Time, registry *metric.MetricsRegistry) (*Debouncer, error) {
	if clock == nil {
		clock = time.Now
	}
	if burst < 1 {
		burst = 1
	}

	d := &Debouncer{interval: interval, burst: burst, clock: clock}
	if interval <= 0 {
		return d, nil
	}

	limiters, err := cache.NewTTL[*rate.Limiter](ctx, interval*time.Duration(burst),
		cache.WithClock[*rate.Limiter](clock),
		cache.WithMetrics[*rate.Limiter](registry, "debounce"),
	)
	if err != nil {
		return nil, err
	}
	d.limiters = limiters

	return d, nil
}

// Allow reports whether an event for id may be forwarded now and, if so,
// records it as accepted.
func (d *Debouncer) Allow(id string) bool {
	if d.limiters == nil {
		return true
	}

	now := d.clock()
	limiter, ok := d.limiters.Get(id)
	if !ok {
		limiter = rate.NewLimiter(rate.Every(d.interval), d.burst)
	}
	if !limiter.AllowN(now, 1) {
		return false
	}

	// refresh expiry only on accept so an idle limiter ages out on schedule
	_, _ = d.limiters.Set(id, limiter)
	return true
}

// Tracked returns the number of aircraft currently inside their debounce
// window.
func (d *Debouncer) Tracked() int {
	if d.limiters == nil {
		return 0
	}
	return d.limiters.Size()
}

// Close stops the background sweep.
func (d *Debouncer) Close() error {
	if d.limiters == nil {
		return nil
	}
	return d.limiters.Close()
}
