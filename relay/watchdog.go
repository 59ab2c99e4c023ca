package relay

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/metric"
)

const (
	// DefaultWatchdogInterval is how often the heartbeat is checked.
	DefaultWatchdogInterval = 60 * time.Second

	// DefaultWatchdogTimeout is the longest tolerated publish silence.
	DefaultWatchdogTimeout = 10 * time.Minute
)

// WatchdogDeps holds runtime dependencies for the Watchdog.
type WatchdogDeps struct {
	Heartbeat *Heartbeat
	Interval  time.Duration
	Timeout   time.Duration
	Clock     func() time.Time
	Exit      func(code int) // defaults to os.Exit
	Metrics   *metric.Metrics
	Logger    *slog.Logger
}

// Watchdog terminates the process once the heartbeat is older than the
// timeout. It stays quiet until the first successful publish.
type Watchdog struct {
	heartbeat *Heartbeat
	interval  time.Duration
	timeout   time.Duration
	clock     func() time.Time
	exit      func(int)
	metrics   *metric.Metrics
	logger    *slog.Logger
}

// NewWatchdog creates a watchdog.
func NewWatchdog(deps WatchdogDeps) *Watchdog {
	w := &Watchdog{
		heartbeat: deps.Heartbeat,
		interval:  deps.Interval,
		timeout:   deps.Timeout,
		clock:     deps.Clock,
		exit:      deps.Exit,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
	if w.heartbeat == nil {
		w.heartbeat = &Heartbeat{}
	}
	if w.interval <= 0 {
		w.interval = DefaultWatchdogInterval
	}
	if w.timeout <= 0 {
		w.timeout = DefaultWatchdogTimeout
	}
	if w.clock == nil {
		w.clock = time.Now
	}
	if w.exit == nil {
		w.exit = os.Exit
	}
	if w.logger == nil {
		w.logger = slog.Default().With("component", "watchdog")
	}
	return w
}

// Check reports whether the pipeline is stalled at now.
func (w *Watchdog) Check(now time.Time) bool {
	last, ok := w.heartbeat.Last()
	if !ok {
		return false
	}

	age := now.Sub(last)
	if w.metrics != nil {
		w.metrics.HeartbeatAge.Set(age.Seconds())
	}
	return age > w.timeout
}

// Run checks the heartbeat every interval. On a stall it calls Exit(1)
// without waiting for other loops, then returns a fatal error in case Exit
// was replaced.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := w.clock()
			if !w.Check(now) {
				continue
			}
			last, _ := w.heartbeat.Last()
			w.logger.Error("No successful publish, exiting for restart",
				"last_publish", last, "silence", now.Sub(last), "timeout", w.timeout)
			w.exit(1)
			return errors.WrapFatal(errors.ErrStalled, "Watchdog", "Run", "heartbeat check")
		}
	}
}
