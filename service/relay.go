// Package service assembles the feed reader, publisher, reporter and
// watchdog into one runnable relay.
package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/flightrelay/config"
	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/feed"
	"github.com/c360/flightrelay/health"
	"github.com/c360/flightrelay/metric"
	"github.com/c360/flightrelay/relay"
	"github.com/c360/flightrelay/throughput"
	"github.com/c360/flightrelay/tracker"
)

// Dependencies holds everything the relay needs beyond its configuration.
// Only Config is required.
type Dependencies struct {
	Config     *config.Config
	Connection Connection // built from Config.Broker when nil
	Registry   *metric.MetricsRegistry
	Monitor    *health.Monitor
	Dialer     feed.Dialer
	Clock      func() time.Time
	Exit       func(code int) // watchdog exit hook
	Logger     *slog.Logger
}

// Relay owns the broker connection and the pipeline goroutines.
type Relay struct {
	cfg      *config.Config
	conn     Connection
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	monitor  *health.Monitor
	dialer   feed.Dialer
	clock    func() time.Time
	exit     func(int)
	logger   *slog.Logger

	heartbeat relay.Heartbeat
	status    atomic.Int32
	server    atomic.Pointer[metric.Server]
}

// New validates the configuration and builds the broker client. Nothing
// connects until Run.
func New(deps Dependencies) (*Relay, error) {
	if deps.Config == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Relay", "New", "config")
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	r := &Relay{
		cfg:      deps.Config,
		registry: deps.Registry,
		monitor:  deps.Monitor,
		dialer:   deps.Dialer,
		clock:    deps.Clock,
		exit:     deps.Exit,
		logger:   deps.Logger,
	}
	if r.registry == nil {
		r.registry = metric.NewMetricsRegistry()
	}
	r.metrics = r.registry.CoreMetrics()
	if r.monitor == nil {
		r.monitor = health.NewMonitor()
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", "relay")
	}

	r.conn = deps.Connection
	if r.conn == nil {
		conn, err := NewConnection(r.cfg.Broker, r.cfg.Topic.Namespace(), r.logger, r.onBrokerHealth)
		if err != nil {
			return nil, err
		}
		r.conn = conn
	}

	r.status.Store(int32(StatusStopped))
	return r, nil
}

// Status returns the lifecycle state.
func (r *Relay) Status() Status {
	return Status(r.status.Load())
}

// Heartbeat exposes the time of the last successful publish.
func (r *Relay) Heartbeat() *relay.Heartbeat {
	return &r.heartbeat
}

// Monitor returns the health monitor fed by the relay's components.
func (r *Relay) Monitor() *health.Monitor {
	return r.monitor
}

// MetricsAddress returns the metrics URL, or "" when the server is off or
// not yet listening.
func (r *Relay) MetricsAddress() string {
	if srv := r.server.Load(); srv != nil {
		return srv.Address()
	}
	return ""
}

func (r *Relay) onBrokerHealth(healthy bool) {
	if healthy {
		r.metrics.BrokerConnected.Set(1)
		r.monitor.UpdateHealthy(health.ComponentBroker, "connected")
		return
	}
	r.metrics.BrokerConnected.Set(0)
	r.monitor.UpdateUnhealthy(health.ComponentBroker, "disconnected")
}

// Run connects to the broker and runs the pipeline until ctx is done or a
// component fails. The broker connection is closed before Run returns.
func (r *Relay) Run(ctx context.Context) error {
	if !r.status.CompareAndSwap(int32(StatusStopped), int32(StatusStarting)) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Relay", "Run", "start relay")
	}
	defer r.status.Store(int32(StatusStopped))

	startedAt := r.clock()
	r.logger.Info("Relay starting",
		"feed", r.cfg.Feed.Address(),
		"broker", r.cfg.Broker.Kind,
		"namespace", r.cfg.Topic.Namespace())

	if err := r.conn.Connect(ctx); err != nil {
		return errors.Wrap(err, "Relay", "Run", "connect broker")
	}
	if _, ok := r.monitor.Get("broker"); !ok && r.conn.IsHealthy() {
		r.onBrokerHealth(true)
	}
	defer r.closeConnection(ctx)

	g, gctx := errgroup.WithContext(ctx)

	table, err := tracker.New(gctx,
		tracker.WithClock(r.clock),
		tracker.WithMetrics(r.registry))
	if err != nil {
		return errors.WrapFatal(err, "Relay", "Run", "create aircraft table")
	}
	defer table.Close()

	queue, err := relay.NewQueue(r.cfg.Relay.QueueCapacity, r.registry)
	if err != nil {
		return errors.WrapFatal(err, "Relay", "Run", "create queue")
	}
	defer queue.Close()

	successes, err := throughput.NewWindow(gctx, time.Minute, throughput.WithClock(r.clock))
	if err != nil {
		return errors.WrapFatal(err, "Relay", "Run", "create success window")
	}
	defer successes.Close()

	failures, err := throughput.NewWindow(gctx, time.Minute, throughput.WithClock(r.clock))
	if err != nil {
		return errors.WrapFatal(err, "Relay", "Run", "create failure window")
	}
	defer failures.Close()

	var debouncer *relay.Debouncer
	if r.cfg.Relay.DebounceInterval > 0 {
		debouncer, err = relay.NewDebouncer(gctx, r.cfg.Relay.DebounceInterval, r.cfg.Relay.DebounceBurst, r.clock, r.registry)
		if err != nil {
			return errors.WrapFatal(err, "Relay", "Run", "create debouncer")
		}
		defer debouncer.Close()
	}

	namespace := r.cfg.Topic.Namespace()

	reader := feed.NewReader(feed.ReaderDeps{
		Address:        r.cfg.Feed.Address(),
		Table:          table,
		Queue:          queue,
		ReconnectDelay: r.cfg.Feed.ReconnectDelay,
		Dialer:         r.dialer,
		Clock:          r.clock,
		Metrics:        r.metrics,
		Monitor:        r.monitor,
		Logger:         r.logger.With("component", "feed-reader"),
	})

	publisher := relay.NewPublisher(relay.PublisherDeps{
		Broker:         r.conn,
		Queue:          queue,
		Namespace:      namespace,
		Debouncer:      debouncer,
		Successes:      successes,
		Failures:       failures,
		Heartbeat:      &r.heartbeat,
		PublishTimeout: r.cfg.Relay.PublishTimeout,
		Clock:          r.clock,
		Metrics:        r.metrics,
		Monitor:        r.monitor,
		Logger:         r.logger.With("component", "publisher"),
	})

	reporter := relay.NewReporter(relay.ReporterDeps{
		Broker:         r.conn,
		Namespace:      namespace,
		Aircraft:       table,
		Queue:          queue,
		Successes:      successes,
		Failures:       failures,
		Interval:       r.cfg.Relay.StatsInterval,
		StartedAt:      startedAt,
		PublishTimeout: r.cfg.Relay.PublishTimeout,
		Clock:          r.clock,
		Metrics:        r.metrics,
		Logger:         r.logger.With("component", "reporter"),
	})

	watchdog := relay.NewWatchdog(relay.WatchdogDeps{
		Heartbeat: &r.heartbeat,
		Interval:  r.cfg.Watchdog.Interval,
		Timeout:   r.cfg.Watchdog.Timeout,
		Clock:     r.clock,
		Exit:      r.exit,
		Metrics:   r.metrics,
		Logger:    r.logger.With("component", "watchdog"),
	})

	g.Go(func() error { return reader.Run(gctx) })
	g.Go(func() error { return publisher.Run(gctx) })
	g.Go(func() error { return reporter.Run(gctx) })
	g.Go(func() error { return watchdog.Run(gctx) })

	if r.cfg.Metrics.Port != 0 {
		srv := metric.NewServer(r.cfg.Metrics.Port, r.registry, r.monitor, r.logger)
		r.server.Store(srv)
		defer r.server.Store(nil)
		g.Go(func() error { return srv.Run(gctx) })
	}

	r.status.Store(int32(StatusRunning))
	r.logger.Info("Relay running")

	err = g.Wait()
	r.status.Store(int32(StatusStopping))
	r.logger.Info("Relay stopping",
		"lines", reader.Lines(),
		"enqueued", reader.Enqueued(),
		"forwarded", publisher.Forwarded(),
		"failed", publisher.Failed())

	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (r *Relay) closeConnection(ctx context.Context) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ShutdownTimeout)
	defer cancel()
	if err := r.conn.Close(closeCtx); err != nil {
		r.logger.Warn("Broker close failed", "error", err)
	}
}
