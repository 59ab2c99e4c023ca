// Package relay moves tracked aircraft positions from the relay queue to a
// publish/subscribe broker.
//
// Three loops live here. The Publisher drains the queue and forwards each
// event subject to a per-aircraft debounce. The Reporter publishes queue and
// throughput statistics on a fixed cadence. The Watchdog terminates the
// process when no location has been published for too long, leaving
// recovery to the process supervisor.
package relay

import (
	"context"
	"time"

	"github.com/c360/flightrelay/metric"
	"github.com/c360/flightrelay/pkg/buffer"
)

// DefaultQueueCapacity bounds the queue between the feed reader and the
// publisher.
const DefaultQueueCapacity = 100_000

// LocationEvent is a position for an aircraft with a known callsign.
// Events are immutable once queued.
type LocationEvent struct {
	AircraftID string
	Callsign   string
	Latitude   float64
	Longitude  float64
	EnqueuedAt time.Time
}

// Broker is the outbound publish collaborator.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// Queue carries LocationEvents from one producer to one consumer.
type Queue = buffer.Buffer[LocationEvent]

// NewQueue creates a blocking FIFO of the given capacity. Writers wait for
// space when it is full; nothing is dropped.
func NewQueue(capacity int, registry *metric.MetricsRegistry) (Queue, error) {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	opts := []buffer.Option[LocationEvent]{
		buffer.WithOverflowPolicy[LocationEvent](buffer.Block),
	}
	if registry != nil {
		opts = append(opts, buffer.WithMetrics[LocationEvent](registry, "relay_queue"))
	}

	return buffer.NewCircularBuffer(capacity, opts...)
}
