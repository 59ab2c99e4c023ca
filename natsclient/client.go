// Package natsclient publishes relay topics to NATS.
//
// Slash-separated topics map to dot-separated subjects. Retained publishes
// go through a JetStream stream that keeps one message per subject, so a
// late subscriber can fetch the last value the way an MQTT client receives
// a retained message. Non-retained publishes use core NATS.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/flightrelay/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrNoStream     = stderrors.New("no retained stream configured")
)

var subjectReplacer = strings.NewReplacer(
	".", "_",
	"*", "-",
	">", "-",
	" ", "-",
	"/", ".",
)

// Subject converts a slash-separated topic into a NATS subject.
func Subject(topic string) string {
	return subjectReplacer.Replace(strings.Trim(topic, "/"))
}

// Client publishes to a NATS server.
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	// Retained stream
	streamName     string
	streamSubjects []string
	streamReplicas int

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Authentication - sensitive fields cleared on close
	username string
	password string
	token    string

	tlsOption  nats.Option
	clientName string

	onHealthChange func(bool)

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:            url,
		maxReconnects:  -1, // infinite by default
		reconnectWait:  2 * time.Second,
		timeout:        5 * time.Second,
		drainTimeout:   10 * time.Second,
		streamReplicas: 1,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "natsclient")
	}

	c.status.Store(StatusDisconnected)
	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	if s, ok := c.status.Load().(ConnectionStatus); ok {
		return s
	}
	return StatusDisconnected
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

// IsHealthy returns true if connected
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

func (c *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.tlsOption != nil {
		opts = append(opts, c.tlsOption)
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}

	return opts
}

// Connect establishes the connection and, when configured, ensures the
// retained stream exists.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapInvalid(ErrNotConnected, "Client", "Connect", "client closed")
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.buildConnectionOptions()...)
		if err != nil {
			connectDone <- err
			return
		}

		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			connectDone <- err
			return
		}

		c.mu.Lock()
		c.conn = conn
		c.js = js
		c.mu.Unlock()
		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			c.setStatus(StatusDisconnected)
			return errors.WrapTransient(err, "Client", "Connect", "establish connection")
		}
	case <-ctx.Done():
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}

	if c.streamName != "" {
		if err := c.ensureStream(ctx); err != nil {
			c.setStatus(StatusDisconnected)
			return err
		}
	}

	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", c.url, "stream", c.streamName)
	c.notifyHealth(true)
	return nil
}

func (c *Client) ensureStream(ctx context.Context) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              c.streamName,
		Subjects:          c.streamSubjects,
		MaxMsgsPerSubject: 1,
		Discard:           jetstream.DiscardOld,
		Storage:           jetstream.FileStorage,
		Replicas:          c.streamReplicas,
	})
	if err != nil {
		return errors.WrapTransient(err, "Client", "Connect", "create retained stream "+c.streamName)
	}
	return nil
}

// Publish sends payload on the subject derived from topic. Retained
// messages are persisted in the stream and acknowledged by the server.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	c.mu.RLock()
	conn, js := c.conn, c.js
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "Client", "Publish", "check connection")
	}

	subject := Subject(topic)
	if !retain {
		if err := conn.Publish(subject, payload); err != nil {
			return errors.WrapTransient(err, "Client", "Publish", "core publish")
		}
		return nil
	}

	if c.streamName == "" {
		return errors.WrapInvalid(ErrNoStream, "Client", "Publish", "retained publish")
	}
	if _, err := js.Publish(ctx, subject, payload); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "stream publish")
	}
	return nil
}

func (c *Client) jetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, ErrNotConnected
	}
	return c.js, nil
}

// LastRetained returns the retained payload for topic.
func (c *Client) LastRetained(ctx context.Context, topic string) ([]byte, error) {
	js, err := c.jetStream()
	if err != nil {
		return nil, err
	}
	if c.streamName == "" {
		return nil, ErrNoStream
	}

	stream, err := js.Stream(ctx, c.streamName)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "LastRetained", "get stream")
	}
	msg, err := stream.GetLastMsgForSubject(ctx, Subject(topic))
	if err != nil {
		return nil, errors.Wrap(err, "Client", "LastRetained", "get last message")
	}
	return msg.Data, nil
}

// Close drains and closes the connection
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.js = nil
	c.username = ""
	c.password = ""
	c.token = ""
	c.mu.Unlock()

	if conn == nil {
		c.setStatus(StatusDisconnected)
		return nil
	}

	drainTimeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- conn.Drain()
	}()

	var drainErr error
	select {
	case err := <-drainDone:
		if err != nil {
			drainErr = errors.Wrap(err, "Client", "Close", "drain connection")
		}
	case <-time.After(drainTimeout):
		drainErr = errors.WrapTransient(fmt.Errorf("drain timeout after %v", drainTimeout),
			"Client", "Close", "drain timeout")
	case <-ctx.Done():
		drainErr = errors.Wrap(ctx.Err(), "Client", "Close", "context cancelled during drain")
	}

	conn.Close()
	c.setStatus(StatusDisconnected)
	return drainErr
}

func (c *Client) notifyHealth(healthy bool) {
	c.mu.RLock()
	fn := c.onHealthChange
	c.mu.RUnlock()
	if fn != nil {
		fn(healthy)
	}
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closed.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("NATS disconnected", "error", err)
	c.notifyHealth(false)
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.setStatus(StatusConnected)
	c.logger.Info("NATS reconnected", "url", conn.ConnectedUrl())
	c.notifyHealth(true)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	c.setStatus(StatusDisconnected)
	c.notifyHealth(false)
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS error", "error", err)
}
