package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/flightrelay/config"
	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/mqttclient"
	"github.com/c360/flightrelay/natsclient"
	"github.com/c360/flightrelay/pkg/tlsutil"
	"github.com/c360/flightrelay/relay"
)

// Connection is a broker session the relay can publish through.
type Connection interface {
	relay.Broker
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	IsHealthy() bool
}

var (
	_ Connection = (*mqttclient.Client)(nil)
	_ Connection = (*natsclient.Client)(nil)
)

// NewConnection builds the broker client selected by cfg.Kind. It does not
// connect. onHealth is called on every connection state change.
func NewConnection(cfg config.BrokerConfig, namespace string, logger *slog.Logger, onHealth func(bool)) (Connection, error) {
	switch cfg.Kind {
	case config.BrokerMQTT:
		return newMQTT(cfg.MQTT, logger, onHealth)
	case config.BrokerNATS:
		return newNATS(cfg.NATS, namespace, logger, onHealth)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown broker %q", errors.ErrInvalidConfig, cfg.Kind),
			"Service", "NewConnection", "select broker")
	}
}

func newMQTT(cfg config.MQTTConfig, logger *slog.Logger, onHealth func(bool)) (Connection, error) {
	mc := mqttclient.DefaultConfig(cfg.Address)
	mc.ClientID = cfg.ClientID
	mc.Username = cfg.Username
	mc.Password = cfg.Password
	mc.QoS = byte(cfg.QoS)

	if cfg.TLS.Enabled {
		tlsCfg, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Service", "NewConnection", "mqtt tls")
		}
		mc.TLS = tlsCfg
	}

	client, err := mqttclient.New(mc,
		mqttclient.WithLogger(logger.With("component", "mqttclient")),
		mqttclient.WithHealthChangeCallback(onHealth),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newNATS(cfg config.NATSConfig, namespace string, logger *slog.Logger, onHealth func(bool)) (Connection, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger.With("component", "natsclient")),
		natsclient.WithName("flightrelay"),
		natsclient.WithHealthChangeCallback(onHealth),
		natsclient.WithRetainedStream(cfg.Stream, natsclient.Subject(namespace)+".>"),
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.TLS.Enabled {
		tlsCfg, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Service", "NewConnection", "nats tls")
		}
		opts = append(opts, natsclient.WithTLSConfig(tlsCfg))
	}

	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}
