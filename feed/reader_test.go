package feed

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/health"
	"github.com/c360/flightrelay/metric"
	"github.com/c360/flightrelay/relay"
	"github.com/c360/flightrelay/testutil"
	"github.com/c360/flightrelay/tracker"
)

type fixture struct {
	table    *tracker.Table
	queue    relay.Queue
	registry *metric.MetricsRegistry
	monitor  *health.Monitor
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := metric.NewMetricsRegistry()
	table, err := tracker.New(ctx, tracker.WithMetrics(registry))
	require.NoError(t, err)
	queue, err := relay.NewQueue(capacity, registry)
	require.NoError(t, err)

	return &fixture{table: table, queue: queue, registry: registry, monitor: health.NewMonitor()}
}

func (f *fixture) reader(address string) *Reader {
	return NewReader(ReaderDeps{
		Address:        address,
		Table:          f.table,
		Queue:          f.queue,
		ReconnectDelay: 20 * time.Millisecond,
		Metrics:        f.registry.Metrics,
		Monitor:        f.monitor,
	})
}

func readEvent(t *testing.T, q relay.Queue, timeout time.Duration) relay.LocationEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ev, err := q.ReadContext(ctx)
	require.NoError(t, err, "expected a queued location event")
	return ev
}

func TestHandleLine_PositionWithCallsign(t *testing.T) {
	f := newFixture(t, 8)
	r := f.reader("unused:0")

	require.NoError(t, r.HandleLine(context.Background(), testutil.PositionLine+"\r\n"))
	require.Equal(t, 1, f.queue.Size())

	ev, ok := f.queue.TryRead()
	require.True(t, ok)
	assert.Equal(t, "ABC123", ev.AircraftID)
	assert.Equal(t, "TEST123", ev.Callsign)
	assert.Equal(t, 51.5074, ev.Latitude)
	assert.Equal(t, -0.1278, ev.Longitude)
	assert.False(t, ev.EnqueuedAt.IsZero())

	assert.Equal(t, 1, f.table.Size())
	assert.Equal(t, float64(1), promtest.ToFloat64(f.registry.Metrics.Sightings))
}

func TestHandleLine_CallsignFromEarlierMessage(t *testing.T) {
	f := newFixture(t, 8)
	r := f.reader("unused:0")
	ctx := context.Background()

	require.NoError(t, r.HandleLine(ctx, testutil.IdentLine))
	assert.Equal(t, 0, f.queue.Size(), "ident messages carry no position")

	require.NoError(t, r.HandleLine(ctx, testutil.AnonymousPositionLine))
	ev, ok := f.queue.TryRead()
	require.True(t, ok)
	assert.Equal(t, "4CA2D6", ev.AircraftID)
	assert.Equal(t, "RYR4TX", ev.Callsign)
	assert.Equal(t, 53.3498, ev.Latitude)
	assert.Equal(t, -6.2603, ev.Longitude)
}

func TestHandleLine_SkipsIneligibleLines(t *testing.T) {
	f := newFixture(t, 8)
	r := f.reader("unused:0")
	ctx := context.Background()

	lines := []string{
		"",
		testutil.StatusLine,
		testutil.ShortLine,
		testutil.AirborneVelocityLine,
		testutil.AnonymousPositionLine,
		"garbage without commas",
	}
	for _, line := range lines {
		require.NoError(t, r.HandleLine(ctx, line))
	}

	assert.Equal(t, 0, f.queue.Size())
	assert.Equal(t, int64(len(lines)), r.Lines())
	assert.Equal(t, float64(3), promtest.ToFloat64(f.registry.Metrics.DecodeErrors.WithLabelValues("not_msg")))
	assert.Equal(t, float64(1), promtest.ToFloat64(f.registry.Metrics.DecodeErrors.WithLabelValues("invalid")))
}

func TestHandleLine_DropsInvalidUTF8(t *testing.T) {
	f := newFixture(t, 8)
	r := f.reader("unused:0")

	line := strings.Replace(testutil.PositionLine, "TEST123", "TE\xffST", 1)
	require.NoError(t, r.HandleLine(context.Background(), line))

	assert.Equal(t, 0, f.queue.Size())
	assert.Equal(t, 0, f.table.Size())
	assert.Equal(t, float64(1), promtest.ToFloat64(f.registry.Metrics.DecodeErrors.WithLabelValues("invalid")))
}

func TestHandleLine_QueueClosed(t *testing.T) {
	f := newFixture(t, 8)
	r := f.reader("unused:0")
	require.NoError(t, f.queue.Close())

	err := r.HandleLine(context.Background(), testutil.PositionLine)
	assert.True(t, errors.Is(err, errors.ErrQueueClosed))
}

func TestRun_ReadsAndReconnects(t *testing.T) {
	server := testutil.NewFeedServer(t)
	f := newFixture(t, 8)
	r := f.reader(server.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	server.WaitForConnections(t, 1, 2*time.Second)
	require.Eventually(t, func() bool { return r.State() == Connected }, 2*time.Second, 10*time.Millisecond)

	status, ok := f.monitor.Get(health.ComponentFeed)
	require.True(t, ok)
	assert.True(t, status.IsHealthy())

	server.Send(t, testutil.StatusLine, testutil.PositionLine)
	ev := readEvent(t, f.queue, 2*time.Second)
	assert.Equal(t, "TEST123", ev.Callsign)

	// end of stream triggers a reconnect after the delay
	server.Drop()
	server.WaitForConnections(t, 2, 2*time.Second)
	require.Eventually(t, func() bool { return r.State() == Connected }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, promtest.ToFloat64(f.registry.Metrics.FeedReconnects), float64(1))

	// a position without callsign resolves through the table kept across sessions
	server.Send(t, "MSG,3,1,1,ABC123,1,2023/04/01,12:40:00.000,2023/04/01,12:40:00.000,,37000,,,51.6,-0.13,,,0,0,0,0")
	ev = readEvent(t, f.queue, 2*time.Second)
	assert.Equal(t, "TEST123", ev.Callsign)
	assert.Equal(t, 51.6, ev.Latitude)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop on cancellation")
	}
	assert.Equal(t, Disconnected, r.State())
}

func TestRun_OversizeLineDropsConnection(t *testing.T) {
	server := testutil.NewFeedServer(t)
	f := newFixture(t, 8)
	r := f.reader(server.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	server.WaitForConnections(t, 1, 2*time.Second)
	require.Eventually(t, func() bool { return r.State() == Connected }, 2*time.Second, 10*time.Millisecond)

	server.Send(t, strings.Repeat("A", 2*MaxLineLength))
	server.WaitForConnections(t, 2, 2*time.Second)
	require.Eventually(t, func() bool { return r.State() == Connected }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), promtest.ToFloat64(f.registry.Metrics.DecodeErrors.WithLabelValues("oversize")))
	assert.Equal(t, 0, f.queue.Size())

	server.Send(t, testutil.PositionLine)
	ev := readEvent(t, f.queue, 2*time.Second)
	assert.Equal(t, "TEST123", ev.Callsign)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop on cancellation")
	}
}

func TestRun_RetriesUnreachableFeed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := ln.Addr().String()
	require.NoError(t, ln.Close())

	f := newFixture(t, 8)
	r := f.reader(address)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return promtest.ToFloat64(f.registry.Metrics.FeedReconnects) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	status, ok := f.monitor.Get(health.ComponentFeed)
	require.True(t, ok)
	assert.True(t, status.IsUnhealthy())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop on cancellation")
	}
}

func TestRun_StopsWhenQueueClosed(t *testing.T) {
	server := testutil.NewFeedServer(t)
	f := newFixture(t, 8)
	require.NoError(t, f.queue.Close())
	r := f.reader(server.Addr())

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	server.WaitForConnections(t, 1, 2*time.Second)
	require.Eventually(t, func() bool { return r.State() == Connected }, 2*time.Second, 10*time.Millisecond)
	server.Send(t, testutil.PositionLine)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrQueueClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop on a closed queue")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", State(9).String())
}
