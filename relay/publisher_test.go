package relay

import (
	"context"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/c360/flightrelay/health"
	"github.com/c360/flightrelay/metric"
	"github.com/c360/flightrelay/testutil"
	"github.com/c360/flightrelay/throughput"
)

const testNamespace = "stefan/airplanes"

type PublisherSuite struct {
	suite.Suite

	ctx       context.Context
	cancel    context.CancelFunc
	clock     *testutil.Clock
	broker    *testutil.MockBroker
	queue     Queue
	registry  *metric.MetricsRegistry
	monitor   *health.Monitor
	heartbeat *Heartbeat
	successes *throughput.Window
	failures  *throughput.Window
	publisher *Publisher
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.clock = testutil.NewClock(time.Date(2023, 4, 1, 12, 34, 56, 0, time.UTC))
	s.broker = testutil.NewMockBroker()
	s.registry = metric.NewMetricsRegistry()
	s.monitor = health.NewMonitor()
	s.heartbeat = &Heartbeat{}

	var err error
	s.queue, err = NewQueue(16, s.registry)
	s.Require().NoError(err)

	s.successes, err = throughput.NewWindow(s.ctx, time.Minute, throughput.WithClock(s.clock.Now))
	s.Require().NoError(err)
	s.failures, err = throughput.NewWindow(s.ctx, time.Minute, throughput.WithClock(s.clock.Now))
	s.Require().NoError(err)

	debouncer, err := NewDebouncer(s.ctx, DefaultDebounceInterval, 1, s.clock.Now, s.registry)
	s.Require().NoError(err)

	s.publisher = NewPublisher(PublisherDeps{
		Broker:    s.broker,
		Queue:     s.queue,
		Namespace: testNamespace,
		Debouncer: debouncer,
		Successes: s.successes,
		Failures:  s.failures,
		Heartbeat: s.heartbeat,
		Clock:     s.clock.Now,
		Metrics:   s.registry.Metrics,
		Monitor:   s.monitor,
	})
}

func (s *PublisherSuite) TearDownTest() {
	s.cancel()
}

func event(id, callsign string, lat, lon float64) LocationEvent {
	return LocationEvent{AircraftID: id, Callsign: callsign, Latitude: lat, Longitude: lon}
}

func (s *PublisherSuite) TestHandle_PublishesRetainedLocation() {
	forwarded := s.publisher.Handle(s.ctx, event("ABC123", "TEST123", 51.5074, -0.1278))
	s.True(forwarded)

	msgs := s.broker.Messages()
	s.Require().Len(msgs, 1)
	s.Equal(testNamespace+"/flights/TEST123/location", msgs[0].Topic)
	s.Equal("51.5074,-0.1278", msgs[0].Payload)
	s.True(msgs[0].Retain)

	last, ok := s.heartbeat.Last()
	s.True(ok)
	s.True(s.clock.Now().Equal(last))
	s.Equal(1, s.successes.Count())
	s.Equal(0, s.failures.Count())
	s.Equal(float64(1), promtest.ToFloat64(s.registry.Metrics.Published.WithLabelValues("location")))
}

func (s *PublisherSuite) TestHandle_Debounce() {
	s.True(s.publisher.Handle(s.ctx, event("ABC123", "TEST123", 51.5074, -0.1278)))

	s.clock.Advance(time.Second)
	s.False(s.publisher.Handle(s.ctx, event("ABC123", "TEST123", 51.55, -0.129)))

	s.clock.Advance(5 * time.Second)
	s.True(s.publisher.Handle(s.ctx, event("ABC123", "TEST123", 51.6, -0.13)))

	msgs := s.broker.GetMessagesByTopic(testNamespace + "/flights/TEST123/location")
	s.Require().Len(msgs, 2)
	s.Equal("51.5074,-0.1278", msgs[0].Payload)
	s.Equal("51.6,-0.13", msgs[1].Payload)

	s.Equal(int64(1), s.publisher.Debounced())
	s.Equal(float64(1), promtest.ToFloat64(s.registry.Metrics.Debounced))
}

func (s *PublisherSuite) TestHandle_SanitizesCallsign() {
	s.True(s.publisher.Handle(s.ctx, event("3C6444", "TEST+123 #ÄÖÜ", 48.1, 11.5)))

	_, ok := s.broker.Last(testNamespace + "/flights/TEST-123--AeOeUe/location")
	s.True(ok)
}

func (s *PublisherSuite) TestHandle_FailureIsNotRetried() {
	s.broker.FailWith(testutil.ErrMockConnection)

	s.True(s.publisher.Handle(s.ctx, event("ABC123", "TEST123", 51.5074, -0.1278)))
	s.Equal(0, s.broker.Count())

	_, ok := s.heartbeat.Last()
	s.False(ok, "failed publishes must not feed the watchdog")
	s.Equal(0, s.successes.Count())
	s.Equal(1, s.failures.Count())
	s.Equal(int64(1), s.publisher.Failed())
	s.Equal(float64(1), promtest.ToFloat64(s.registry.Metrics.PublishFailures))

	status, ok := s.monitor.Get("publisher")
	s.Require().True(ok)
	s.True(status.IsDegraded())

	// the debounce window is consumed even though the publish failed
	s.broker.FailWith(nil)
	s.clock.Advance(time.Second)
	s.False(s.publisher.Handle(s.ctx, event("ABC123", "TEST123", 51.5074, -0.1278)))

	s.clock.Advance(5 * time.Second)
	s.True(s.publisher.Handle(s.ctx, event("ABC123", "TEST123", 51.5074, -0.1278)))
	status, _ = s.monitor.Get("publisher")
	s.True(status.IsHealthy())
}

func (s *PublisherSuite) TestRun_DrainsQueueInOrder() {
	events := []LocationEvent{
		event("A1", "ONE", 1, 1),
		event("A2", "TWO", 2, 2),
		event("A3", "THREE", 3, 3),
	}
	for _, ev := range events {
		s.Require().NoError(s.queue.WriteContext(s.ctx, ev))
	}

	done := make(chan error, 1)
	go func() { done <- s.publisher.Run(s.ctx) }()

	msgs := s.broker.WaitForMessages(s.T(), 3, 2*time.Second)
	s.Equal(testNamespace+"/flights/ONE/location", msgs[0].Topic)
	s.Equal(testNamespace+"/flights/TWO/location", msgs[1].Topic)
	s.Equal(testNamespace+"/flights/THREE/location", msgs[2].Topic)

	s.cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("publisher did not stop on cancellation")
	}
}

func (s *PublisherSuite) TestRun_StopsWhenQueueClosed() {
	s.Require().NoError(s.queue.WriteContext(s.ctx, event("A1", "ONE", 1, 1)))
	s.Require().NoError(s.queue.Close())

	s.NoError(s.publisher.Run(s.ctx))
	s.Equal(1, s.broker.Count(), "queued events are drained before stopping")
}

func TestPublisher_NoDebouncer(t *testing.T) {
	broker := testutil.NewMockBroker()
	queue, err := NewQueue(4, nil)
	require.NoError(t, err)

	p := NewPublisher(PublisherDeps{Broker: broker, Queue: queue, Namespace: testNamespace})
	for i := 0; i < 3; i++ {
		assert.True(t, p.Handle(context.Background(), event("ABC123", "TEST123", 51.5074, -0.1278)))
	}
	assert.Equal(t, 3, broker.Count())
}
