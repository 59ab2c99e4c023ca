package health

import (
	"sync"
	"time"
)

// Component names reported under /health.
const (
	ComponentFeed      = "feed"      // SBS-1 socket
	ComponentPublisher = "publisher" // last publish outcome
	ComponentBroker    = "broker"    // MQTT or NATS session
)

// Monitor holds the latest status of each relay component. The feed reader,
// the publisher and the broker callbacks write to it from their own
// goroutines; the /health handler reads the roll-up.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	now      func() time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock sets the clock used to stamp statuses that arrive without a time.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor returns an empty monitor. With no component reported yet the
// roll-up is healthy.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{statuses: make(map[string]Status), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Update replaces the status of component. A status reported under another
// name is filed under component anyway.
func (m *Monitor) Update(component string, status Status) {
	status.Component = component
	if status.Timestamp.IsZero() {
		status.Timestamp = m.now()
	}

	m.mu.Lock()
	m.statuses[component] = status
	m.mu.Unlock()
}

func (m *Monitor) UpdateHealthy(component, message string) {
	m.Update(component, NewHealthy(component, message))
}

func (m *Monitor) UpdateUnhealthy(component, message string) {
	m.Update(component, NewUnhealthy(component, message))
}

func (m *Monitor) UpdateDegraded(component, message string) {
	m.Update(component, NewDegraded(component, message))
}

// Get returns the last status reported by component.
func (m *Monitor) Get(component string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[component]
	return status, ok
}

// AggregateHealth rolls every component up under system. One unhealthy
// component makes the relay unhealthy; a degraded one makes it degraded.
func (m *Monitor) AggregateHealth(system string) Status {
	m.mu.RLock()
	subs := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subs = append(subs, status)
	}
	m.mu.RUnlock()

	return Aggregate(system, subs)
}
