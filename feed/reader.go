// Package feed reads a BaseStation (SBS-1) TCP feed and turns it into
// queued location events.
//
// The Reader owns the socket and the aircraft table. It cycles through
// Disconnected, Connecting and Connected, waiting ReconnectDelay after any
// dial failure or end of stream, and never gives up while its context is
// live. Bad lines are logged and skipped without touching the connection.
package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/health"
	"github.com/c360/flightrelay/metric"
	"github.com/c360/flightrelay/pkg/retry"
	"github.com/c360/flightrelay/relay"
	"github.com/c360/flightrelay/sbs1"
	"github.com/c360/flightrelay/tracker"
)

const (
	// DefaultReconnectDelay is the pause after a failed dial or a closed stream.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultDialTimeout bounds a single connection attempt.
	DefaultDialTimeout = 10 * time.Second

	// MaxLineLength caps one feed line. BaseStation lines are well under
	// 200 bytes; a longer run without a newline drops the connection.
	MaxLineLength = 4096
)

// State is the connection state of a Reader.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Dialer opens the feed connection. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ReaderDeps holds runtime dependencies for the Reader.
type ReaderDeps struct {
	Address        string // host:port
	Table          *tracker.Table
	Queue          relay.Queue
	ReconnectDelay time.Duration
	Dialer         Dialer
	Clock          func() time.Time
	Metrics        *metric.Metrics
	Monitor        *health.Monitor
	Logger         *slog.Logger
}

// Reader is the single writer of the aircraft table and the only producer
// on the queue.
type Reader struct {
	address        string
	table          *tracker.Table
	queue          relay.Queue
	reconnectDelay time.Duration
	dialer         Dialer
	clock          func() time.Time
	metrics        *metric.Metrics
	monitor        *health.Monitor
	logger         *slog.Logger

	state    atomic.Int32
	lines    atomic.Int64
	skipped  atomic.Int64
	invalid  atomic.Int64
	enqueued atomic.Int64
}

// NewReader creates a reader.
func NewReader(deps ReaderDeps) *Reader {
	r := &Reader{
		address:        deps.Address,
		table:          deps.Table,
		queue:          deps.Queue,
		reconnectDelay: deps.ReconnectDelay,
		dialer:         deps.Dialer,
		clock:          deps.Clock,
		metrics:        deps.Metrics,
		monitor:        deps.Monitor,
		logger:         deps.Logger,
	}
	if r.reconnectDelay <= 0 {
		r.reconnectDelay = DefaultReconnectDelay
	}
	if r.dialer == nil {
		r.dialer = &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: 30 * time.Second}
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default().With("component", "feed-reader", "address", deps.Address)
	}
	return r
}

// State returns the current connection state.
func (r *Reader) State() State {
	return State(r.state.Load())
}

func (r *Reader) setState(s State) {
	r.state.Store(int32(s))
	if r.metrics != nil {
		connected := 0.0
		if s == Connected {
			connected = 1
		}
		r.metrics.FeedConnected.Set(connected)
	}
}

// Run connects and reads until ctx is done. Connection failures are retried
// every ReconnectDelay; Run returns nil on cancellation and an error only
// if the queue was closed underneath it.
func (r *Reader) Run(ctx context.Context) error {
	cfg := retry.Forever(r.reconnectDelay)
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		if r.metrics != nil {
			r.metrics.FeedReconnects.Inc()
		}
		if r.monitor != nil {
			r.monitor.Update(health.ComponentFeed, health.FromError(health.ComponentFeed, err))
		}
		r.logger.Warn("Feed disconnected, reconnecting",
			"attempt", attempt, "retry_in", wait, "error", err)
	}

	r.logger.Info("Feed reader started", "reconnect_delay", r.reconnectDelay)
	err := retry.Do(ctx, cfg, func() error { return r.session(ctx) })
	r.setState(Disconnected)
	r.logger.Info("Feed reader stopped",
		"lines", r.lines.Load(),
		"skipped", r.skipped.Load(),
		"invalid", r.invalid.Load(),
		"enqueued", r.enqueued.Load())

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// session runs one Connecting -> Connected -> Disconnected cycle. It always
// returns an error so the retry loop schedules the next attempt.
func (r *Reader) session(ctx context.Context) error {
	r.setState(Connecting)
	r.logger.Debug("Connecting to feed")

	conn, err := r.dialer.DialContext(ctx, "tcp", r.address)
	if err != nil {
		r.setState(Disconnected)
		return errors.WrapTransient(err, "Reader", "session", "dial feed")
	}

	// closing the socket is what unblocks a pending read on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
		r.setState(Disconnected)
	}()

	r.setState(Connected)
	if r.monitor != nil {
		r.monitor.UpdateHealthy(health.ComponentFeed, "connected")
	}
	r.logger.Info("Connected to feed", "remote", conn.RemoteAddr().String())

	err = r.readLines(ctx, conn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, errors.ErrQueueClosed) {
		return retry.NonRetryable(err)
	}
	if errors.Is(err, bufio.ErrTooLong) {
		r.invalid.Add(1)
		r.decodeError("oversize")
		r.logger.Warn("Dropping feed connection on oversize line", "max_bytes", MaxLineLength)
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = errors.ErrConnectionLost
	}
	return errors.WrapTransient(err, "Reader", "session", "read feed")
}

// readLines returns nil at end of stream and bufio.ErrTooLong when a line
// exceeds MaxLineLength.
func (r *Reader) readLines(ctx context.Context, src io.Reader) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 512), MaxLineLength)
	for scanner.Scan() {
		if err := r.HandleLine(ctx, scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// HandleLine decodes one line and queues a location event when the aircraft
// is eligible. Only a failed queue write is returned; all per-line problems
// are logged.
func (r *Reader) HandleLine(ctx context.Context, line string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.invalid.Add(1)
			r.decodeError("panic")
			r.logger.Error("Recovered from panic while processing line",
				"panic", fmt.Sprint(p), "line", strings.TrimSpace(line))
			err = nil
		}
	}()

	r.lines.Add(1)
	if r.metrics != nil {
		r.metrics.LinesRead.Inc()
	}

	rec, err := sbs1.Decode(line)
	if err != nil {
		if errors.Is(err, sbs1.ErrNotPositionMessage) {
			r.skipped.Add(1)
			r.decodeError("not_msg")
			r.logger.Debug("Skipping line", "line", strings.TrimSpace(line))
			return nil
		}
		r.invalid.Add(1)
		r.decodeError("invalid")
		r.logger.Warn("Failed to decode line", "line", strings.TrimSpace(line), "error", err)
		return nil
	}

	sighting, ok := r.table.Observe(rec.ICAO24, rec.Callsign, rec.Latitude, rec.Longitude)
	if !ok {
		return nil
	}

	ev := relay.LocationEvent{
		AircraftID: sighting.AircraftID,
		Callsign:   sighting.Callsign,
		Latitude:   sighting.Latitude,
		Longitude:  sighting.Longitude,
		EnqueuedAt: r.clock(),
	}
	if err := r.queue.WriteContext(ctx, ev); err != nil {
		return err
	}

	r.enqueued.Add(1)
	if r.metrics != nil {
		r.metrics.Sightings.Inc()
	}
	return nil
}

func (r *Reader) decodeError(reason string) {
	if r.metrics != nil {
		r.metrics.DecodeErrors.WithLabelValues(reason).Inc()
	}
}

// Lines returns the number of lines read.
func (r *Reader) Lines() int64 { return r.lines.Load() }

// Enqueued returns the number of events queued.
func (r *Reader) Enqueued() int64 { return r.enqueued.Load() }
