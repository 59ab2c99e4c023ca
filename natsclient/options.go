package natsclient

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// ClientOption is a functional option for configuring the NATS client
type ClientOption func(*Client) error

// WithMaxReconnects sets the maximum number of reconnection attempts
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.reconnectWait = d
		return nil
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithHealthChangeCallback sets a callback for connection health changes
func WithHealthChangeCallback(fn func(healthy bool)) ClientOption {
	return func(c *Client) error {
		c.onHealthChange = fn
		return nil
	}
}

// WithCredentials sets username and password for authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets a token for authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTLSConfig secures the connection. A nil config is ignored.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) error {
		if cfg != nil {
			c.tlsOption = nats.Secure(cfg)
		}
		return nil
	}
}

// WithName sets the client name for identification
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithTimeout sets the connection timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout sets the timeout for draining on close
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return nil
	}
}

// WithRetainedStream names the JetStream stream that holds retained
// messages and the subjects it captures.
func WithRetainedStream(name string, subjects ...string) ClientOption {
	return func(c *Client) error {
		if name == "" {
			return fmt.Errorf("stream name cannot be empty")
		}
		if len(subjects) == 0 {
			return fmt.Errorf("stream %s needs at least one subject", name)
		}
		c.streamName = name
		c.streamSubjects = subjects
		return nil
	}
}

// WithStreamReplicas sets the replica count of the retained stream
func WithStreamReplicas(n int) ClientOption {
	return func(c *Client) error {
		if n < 1 {
			return fmt.Errorf("replicas must be at least 1, got %d", n)
		}
		c.streamReplicas = n
		return nil
	}
}
