package health

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected string
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("feed", ""), NewHealthy("broker", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("feed", ""), NewDegraded("broker", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("feed", ""), NewUnhealthy("broker", "")}, StateUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("flightrelay", tt.subs)
			assert.Equal(t, tt.expected, got.Status)
			assert.Equal(t, tt.expected == StateHealthy, got.Healthy)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_OrdersSubStatuses(t *testing.T) {
	got := Aggregate("flightrelay", []Status{
		NewHealthy("watchdog", ""),
		NewHealthy("broker", ""),
		NewHealthy("feed", ""),
	})

	require.Len(t, got.SubStatuses, 3)
	assert.Equal(t, "broker", got.SubStatuses[0].Component)
	assert.Equal(t, "feed", got.SubStatuses[1].Component)
	assert.Equal(t, "watchdog", got.SubStatuses[2].Component)
}

func TestMonitor_UpdateAndAggregate(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy(ComponentFeed, "connected")
	m.UpdateDegraded(ComponentPublisher, "publish failed")

	status, ok := m.Get(ComponentPublisher)
	require.True(t, ok)
	assert.True(t, status.IsDegraded())

	assert.True(t, m.AggregateHealth("flightrelay").IsDegraded())

	m.UpdateUnhealthy(ComponentBroker, "disconnected")
	assert.True(t, m.AggregateHealth("flightrelay").IsUnhealthy())

	// later reports replace earlier ones
	m.UpdateHealthy(ComponentBroker, "connected")
	m.UpdateHealthy(ComponentPublisher, "publishing")
	got := m.AggregateHealth("flightrelay")
	assert.True(t, got.IsHealthy())
	assert.Len(t, got.SubStatuses, 3)
}

func TestMonitor_EmptyIsHealthy(t *testing.T) {
	_, ok := NewMonitor().Get(ComponentFeed)
	assert.False(t, ok)
	assert.True(t, NewMonitor().AggregateHealth("flightrelay").IsHealthy())
}

func TestMonitor_UpdateStampsStatus(t *testing.T) {
	at := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(WithClock(func() time.Time { return at }))
	m.Update(ComponentFeed, Status{Component: "other", Status: StateHealthy, Healthy: true})

	got, ok := m.Get(ComponentFeed)
	require.True(t, ok)
	assert.Equal(t, ComponentFeed, got.Component)
	assert.True(t, at.Equal(got.Timestamp))

	kept := at.Add(-time.Minute)
	m.Update(ComponentBroker, Status{Status: StateHealthy, Healthy: true, Timestamp: kept})
	got, _ = m.Get(ComponentBroker)
	assert.True(t, kept.Equal(got.Timestamp))
}

func TestFromError_Sanitizes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
		absent   string
	}{
		{"broker url", fmt.Errorf("dial ssl://gcmb.io:8883 failed"), "[URL]", "gcmb.io"},
		{"ip and port", fmt.Errorf("connect 192.168.1.10:30003 refused"), "[IP]", "192.168"},
		{"ca file", fmt.Errorf("open /etc/ssl/ca.pem: no such file"), "[PATH]", "ca.pem"},
		{"credential", fmt.Errorf("auth failed password=hunter2"), "[REDACTED]", "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError("broker", tt.err)
			assert.True(t, got.IsUnhealthy())
			assert.Contains(t, got.Message, tt.contains)
			assert.NotContains(t, got.Message, tt.absent)
		})
	}

	assert.True(t, FromError("broker", nil).IsHealthy())
}
