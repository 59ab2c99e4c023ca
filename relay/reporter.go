package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/flightrelay/metric"
	"github.com/c360/flightrelay/topic"
)

// DefaultReportInterval is the stats publish cadence.
const DefaultReportInterval = 60 * time.Second

// Sizer reports a current element count.
type Sizer interface {
	Size() int
}

// Counter reports the number of events in a rolling window.
type Counter interface {
	Count() int
}

// Sample is one statistics snapshot.
type Sample struct {
	FlightsSeen       int
	QueueSize         int
	MessagesPerMinute int
	FailuresPerMinute int
	RunningFor        time.Duration
}

// ReporterDeps holds runtime dependencies for the Reporter. Every source is
// only read.
type ReporterDeps struct {
	Broker    Broker
	Namespace string
	Aircraft  Sizer
	Queue     Sizer
	Successes Counter
	Failures  Counter
	Interval  time.Duration
	// PublishTimeout bounds each stats publish. Defaults to DefaultPublishTimeout.
	PublishTimeout time.Duration
	StartedAt      time.Time
	Clock          func() time.Time
	Metrics        *metric.Metrics
	Logger         *slog.Logger
}

// Reporter periodically publishes retained statistics.
type Reporter struct {
	broker    Broker
	namespace string
	aircraft  Sizer
	queue     Sizer
	successes Counter
	failures  Counter
	interval  time.Duration
	timeout   time.Duration
	startedAt time.Time
	clock     func() time.Time
	metrics   *metric.Metrics
	logger    *slog.Logger
}

// NewReporter creates a reporter.
func NewReporter(deps ReporterDeps) *Reporter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "reporter")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	timeout := deps.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	startedAt := deps.StartedAt
	if startedAt.IsZero() {
		startedAt = clock()
	}

	return &Reporter{
		broker:    deps.Broker,
		namespace: deps.Namespace,
		aircraft:  deps.Aircraft,
		queue:     deps.Queue,
		successes: deps.Successes,
		failures:  deps.Failures,
		interval:  interval,
		timeout:   timeout,
		startedAt: startedAt,
		clock:     clock,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Run reports every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Reporter started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Report(ctx)
		}
	}
}

// Report samples all sources, publishes the stats topics and logs the
// sample. Publish failures are logged and do not stop the remaining stats.
func (r *Reporter) Report(ctx context.Context) Sample {
	s := Sample{
		FlightsSeen:       sizeOf(r.aircraft),
		QueueSize:         sizeOf(r.queue),
		MessagesPerMinute: countOf(r.successes),
		FailuresPerMinute: countOf(r.failures),
		RunningFor:        r.clock().Sub(r.startedAt),
	}

	stats := []struct {
		name  string
		value int
	}{
		{topic.StatFlightsSeen, s.FlightsSeen},
		{topic.StatQueueSize, s.QueueSize},
		{topic.StatMessagesPerMinute, s.MessagesPerMinute},
	}
	for _, stat := range stats {
		name := topic.Stat(r.namespace, stat.name)
		if err := r.publish(ctx, name, stat.value); err != nil {
			r.logger.Warn("Stats publish failed", "topic", name, "error", err)
			continue
		}
		if r.metrics != nil {
			r.metrics.Published.WithLabelValues("stats").Inc()
		}
	}

	if r.metrics != nil {
		r.metrics.AircraftTracked.Set(float64(s.FlightsSeen))
		r.metrics.ThroughputWindow.WithLabelValues("success").Set(float64(s.MessagesPerMinute))
		r.metrics.ThroughputWindow.WithLabelValues("failure").Set(float64(s.FailuresPerMinute))
		r.metrics.Uptime.Set(s.RunningFor.Seconds())
	}

	r.logger.Info("Stats",
		"flights_seen", s.FlightsSeen,
		"queue_size", s.QueueSize,
		"messages_per_minute", s.MessagesPerMinute,
		"failed_messages_per_minute", s.FailuresPerMinute,
		"running_for", int(s.RunningFor.Seconds()))

	return s
}

func (r *Reporter) publish(ctx context.Context, name string, value int) error {
	pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.broker.Publish(pubCtx, name, []byte(topic.FormatCount(value)), true)
}

func sizeOf(s Sizer) int {
	if s == nil {
		return 0
	}
	return s.Size()
}

func countOf(c Counter) int {
	if c == nil {
		return 0
	}
	return c.Count()
}
