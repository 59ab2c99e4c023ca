package natsclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flightrelay/errors"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
}

func TestNewClient_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  ClientOption
	}{
		{"nil logger", WithLogger(nil)},
		{"empty stream name", WithRetainedStream("")},
		{"stream without subjects", WithRetainedStream("FLIGHTRELAY")},
		{"zero replicas", WithStreamReplicas(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("nats://localhost:4222", tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"stefan/airplanes/flights/TEST123/location", "stefan.airplanes.flights.TEST123.location"},
		{"stefan/airplanes/stats/queue_size", "stefan.airplanes.stats.queue_size"},
		{"/leading/and/trailing/", "leading.and.trailing"},
		{"ns/flights/N1.2/location", "ns.flights.N1_2.location"},
		{"ns/flights/A*B>C/location", "ns.flights.A-B-C.location"},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(tt.topic))
		})
	}
}

func TestPublish_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	err = client.Publish(context.Background(), "ns/stats/queue_size", []byte("0"), true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.True(t, errors.IsTransient(err))
}

func TestClose_Idempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.NoError(t, client.Close(context.Background()))
	assert.NoError(t, client.Close(context.Background()))
	assert.Error(t, client.Connect(context.Background()), "closed clients cannot reconnect")
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}
