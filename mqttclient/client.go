// Package mqttclient publishes relay topics to an MQTT 3.1.1 broker.
//
// The client auto-reconnects after the first successful connection;
// publishes made while the session is down fail fast so the caller can
// count them.
package mqttclient

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/pkg/retry"
)

// ErrNotConnected is returned by Publish while the session is down.
var ErrNotConnected = stderrors.New("not connected to MQTT broker")

// Config holds broker connection settings.
type Config struct {
	Broker         string // host:port, or a URL with tcp://, ssl://, ws:// or wss://
	ClientID       string // a random suffix is generated when empty
	Username       string
	Password       string
	TLS            *tls.Config // nil for plain TCP
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	MaxReconnect   time.Duration
	CleanSession   bool
}

// DefaultConfig returns settings for the given broker address.
func DefaultConfig(broker string) Config {
	return Config{
		Broker:         broker,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		MaxReconnect:   time.Minute,
		CleanSession:   true,
	}
}

// BrokerURL normalises an address into a paho broker URL. A bare host:port
// becomes ssl:// when TLS is configured and tcp:// otherwise.
func BrokerURL(address string, secure bool) string {
	if strings.Contains(address, "://") {
		return address
	}
	if secure {
		return "ssl://" + address
	}
	return "tcp://" + address
}

// Client wraps a paho client.
type Client struct {
	cfg       Config
	client    mqtt.Client
	logger    *slog.Logger
	connected atomic.Bool
	onHealth  func(bool)
	retry     retry.Config
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHealthChangeCallback is called whenever the session goes up or down.
func WithHealthChangeCallback(fn func(healthy bool)) Option {
	return func(c *Client) {
		c.onHealth = fn
	}
}

// WithConnectRetry overrides the initial connection retry policy.
func WithConnectRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// New creates a client. It does not connect.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New", "broker address")
	}
	if cfg.QoS > 2 {
		return nil, errors.WrapInvalid(fmt.Errorf("qos %d out of range", cfg.QoS), "Client", "New", "qos")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "flightrelay-" + uuid.NewString()[:8]
	}

	c := &Client{cfg: cfg, retry: retry.Persistent()}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "mqttclient")
	}

	po := mqtt.NewClientOptions()
	po.AddBroker(BrokerURL(cfg.Broker, cfg.TLS != nil))
	po.SetClientID(cfg.ClientID)
	po.SetCleanSession(cfg.CleanSession)
	po.SetAutoReconnect(true)
	po.SetConnectRetry(false)
	if cfg.KeepAlive > 0 {
		po.SetKeepAlive(cfg.KeepAlive)
	}
	if cfg.ConnectTimeout > 0 {
		po.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxReconnect > 0 {
		po.SetMaxReconnectInterval(cfg.MaxReconnect)
	}
	if cfg.Username != "" {
		po.SetUsername(cfg.Username)
		po.SetPassword(cfg.Password)
	}
	if cfg.TLS != nil {
		po.SetTLSConfig(cfg.TLS)
	}
	po.SetOnConnectHandler(c.handleConnect)
	po.SetConnectionLostHandler(c.handleConnectionLost)
	po.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		c.logger.Info("Reconnecting to MQTT broker")
	})

	c.client = mqtt.NewClient(po)
	return c, nil
}

// ClientID returns the MQTT client identifier in use.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

// IsHealthy reports whether the session is up.
func (c *Client) IsHealthy() bool {
	return c.connected.Load()
}

// Connect opens the session, retrying with backoff until it succeeds, the
// attempts run out or ctx is done. Bad credentials are not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to MQTT broker", "broker", c.cfg.Broker, "client_id", c.cfg.ClientID)

	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("MQTT connect failed", "attempt", attempt, "retry_in", wait, "error", err)
	}

	err := retry.Do(ctx, cfg, func() error {
		token := c.client.Connect()
		if err := waitToken(ctx, token, c.cfg.ConnectTimeout); err != nil {
			if isAuthError(err) {
				return retry.NonRetryable(errors.WrapInvalid(err, "Client", "Connect", "authenticate"))
			}
			return errors.WrapTransient(err, "Client", "Connect", "connect")
		}
		return nil
	})
	return err
}

// Publish sends payload to topic and waits for the client to hand it off.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if !c.client.IsConnectionOpen() {
		return errors.WrapTransient(ErrNotConnected, "Client", "Publish", "check connection")
	}

	token := c.client.Publish(topic, c.cfg.QoS, retain, payload)
	if err := waitToken(ctx, token, 0); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrPublishFailed, err), "Client", "Publish", topic)
	}
	return nil
}

// Close disconnects, allowing up to the context deadline for in-flight work.
func (c *Client) Close(ctx context.Context) error {
	quiesce := uint(250)
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			quiesce = uint(min(remaining, time.Second).Milliseconds())
		}
	}
	c.client.Disconnect(quiesce)
	c.setConnected(false)
	c.logger.Info("Disconnected from MQTT broker")
	return nil
}

func (c *Client) handleConnect(_ mqtt.Client) {
	c.logger.Info("Connected to MQTT broker", "broker", c.cfg.Broker)
	c.setConnected(true)
}

func (c *Client) handleConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost", "error", err)
	c.setConnected(false)
}

func (c *Client) setConnected(up bool) {
	if c.connected.Swap(up) == up {
		return
	}
	if c.onHealth != nil {
		c.onHealth(up)
	}
}

// waitToken waits for token until ctx is done or timeout elapses. A zero
// timeout waits for ctx only.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isAuthError(err error) bool {
	return stderrors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		stderrors.Is(err, packets.ErrorRefusedNotAuthorised)
}
