package relay

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/health"
	"github.com/c360/flightrelay/metric"
	"github.com/c360/flightrelay/throughput"
	"github.com/c360/flightrelay/topic"
)

// DefaultPublishTimeout bounds a single broker publish.
const DefaultPublishTimeout = 10 * time.Second

// PublisherDeps holds runtime dependencies for the Publisher.
type PublisherDeps struct {
	Broker         Broker
	Queue          Queue
	Namespace      string
	Debouncer      *Debouncer         // nil forwards every event
	Successes      *throughput.Window // optional
	Failures       *throughput.Window // optional
	Heartbeat      *Heartbeat
	PublishTimeout time.Duration
	Clock          func() time.Time
	Metrics        *metric.Metrics
	Monitor        *health.Monitor
	Logger         *slog.Logger
}

// Publisher drains the queue and forwards each event as a retained
// location message. Delivery is at most once: a failed publish is counted
// and dropped.
type Publisher struct {
	broker    Broker
	queue     Queue
	namespace string
	debouncer *Debouncer
	successes *throughput.Window
	failures  *throughput.Window
	heartbeat *Heartbeat
	timeout   time.Duration
	clock     func() time.Time
	metrics   *metric.Metrics
	monitor   *health.Monitor
	logger    *slog.Logger

	forwarded atomic.Int64
	debounced atomic.Int64
	failed    atomic.Int64
	degraded  atomic.Bool
}

// NewPublisher creates a publisher.
func NewPublisher(deps PublisherDeps) *Publisher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "publisher")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	timeout := deps.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	heartbeat := deps.Heartbeat
	if heartbeat == nil {
		heartbeat = &Heartbeat{}
	}

	return &Publisher{
		broker:    deps.Broker,
		queue:     deps.Queue,
		namespace: deps.Namespace,
		debouncer: deps.Debouncer,
		successes: deps.Successes,
		failures:  deps.Failures,
		heartbeat: heartbeat,
		timeout:   timeout,
		clock:     clock,
		metrics:   deps.Metrics,
		monitor:   deps.Monitor,
		logger:    logger,
	}
}

// Run forwards queued events until ctx is done or the queue is closed and
// drained.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("Publisher started", "namespace", p.namespace)
	defer p.logger.Info("Publisher stopped",
		"forwarded", p.forwarded.Load(),
		"debounced", p.debounced.Load(),
		"failed", p.failed.Load())

	for {
		ev, err := p.queue.ReadContext(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, errors.ErrQueueClosed) {
				return nil
			}
			return errors.Wrap(err, "Publisher", "Run", "queue read")
		}
		p.Handle(ctx, ev)
	}
}

// Handle applies the debounce to ev and publishes it if admitted. It
// reports whether the event was handed to the broker, regardless of the
// publish outcome.
func (p *Publisher) Handle(ctx context.Context, ev LocationEvent) bool {
	if p.debouncer != nil && !p.debouncer.Allow(ev.AircraftID) {
		p.debounced.Add(1)
		if p.metrics != nil {
			p.metrics.Debounced.Inc()
		}
		p.logger.Debug("Location debounced", "aircraft_id", ev.AircraftID, "callsign", ev.Callsign)
		return false
	}

	name := topic.Location(p.namespace, ev.Callsign)
	payload := topic.FormatPosition(ev.Latitude, ev.Longitude)

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	start := time.Now()
	err := p.broker.Publish(pubCtx, name, []byte(payload), true)
	cancel()

	if p.metrics != nil {
		p.metrics.PublishDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		p.recordFailure(name, err)
		return true
	}

	p.recordSuccess(name, payload)
	return true
}

func (p *Publisher) recordSuccess(name, payload string) {
	p.forwarded.Add(1)
	p.heartbeat.Beat(p.clock())
	if p.successes != nil {
		p.successes.Record()
	}
	if p.metrics != nil {
		p.metrics.Published.WithLabelValues("location").Inc()
	}
	if p.monitor != nil && p.degraded.CompareAndSwap(true, false) {
		p.monitor.UpdateHealthy(health.ComponentPublisher, "publishing")
	}
	p.logger.Debug("Location published", "topic", name, "payload", payload)
}

func (p *Publisher) recordFailure(name string, err error) {
	p.failed.Add(1)
	if p.failures != nil {
		p.failures.Record()
	}
	if p.metrics != nil {
		p.metrics.PublishFailures.Inc()
	}
	if p.monitor != nil && p.degraded.CompareAndSwap(false, true) {
		p.monitor.UpdateDegraded(health.ComponentPublisher, health.FromError(health.ComponentPublisher, err).Message)
	}
	p.logger.Warn("Location publish failed", "topic", name, "error", err)
}

// Forwarded returns the number of successful publishes.
func (p *Publisher) Forwarded() int64 { return p.forwarded.Load() }

// Debounced returns the number of events dropped by the debounce.
func (p *Publisher) Debounced() int64 { return p.debounced.Load() }

// Failed returns the number of rejected publishes.
func (p *Publisher) Failed() int64 { return p.failed.Load() }
