package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/pkg/security"
	"github.com/c360/flightrelay/topic"
)

// Broker kinds
const (
	BrokerMQTT = "mqtt"
	BrokerNATS = "nats"
)

// Stats interval bounds
const (
	MinStatsInterval = 5 * time.Second
	MaxStatsInterval = 60 * time.Second
)

// Config represents the complete relay configuration
type Config struct {
	Feed     FeedConfig     `yaml:"feed"`
	Topic    TopicConfig    `yaml:"topic"`
	Broker   BrokerConfig   `yaml:"broker"`
	Relay    RelayConfig    `yaml:"relay"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// FeedConfig locates the SBS-1 source.
type FeedConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// Address returns host:port.
func (f FeedConfig) Address() string {
	return net.JoinHostPort(f.Host, strconv.Itoa(f.Port))
}

// TopicConfig builds the {org}/{project} namespace.
type TopicConfig struct {
	Org     string `yaml:"org"`
	Project string `yaml:"project"`
}

// Namespace returns the topic prefix.
func (t TopicConfig) Namespace() string {
	return topic.Namespace(t.Org, t.Project)
}

// BrokerConfig selects and configures the publish backend.
type BrokerConfig struct {
	Kind string     `yaml:"kind"`
	MQTT MQTTConfig `yaml:"mqtt"`
	NATS NATSConfig `yaml:"nats"`
}

// MQTTConfig holds MQTT connection settings.
type MQTTConfig struct {
	Address  string                   `yaml:"address"`
	ClientID string                   `yaml:"client_id"`
	Username string                   `yaml:"username"`
	Password string                   `yaml:"password"`
	QoS      int                      `yaml:"qos"`
	TLS      security.ClientTLSConfig `yaml:"tls"`
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL      string                   `yaml:"url"`
	Stream   string                   `yaml:"stream"`
	Username string                   `yaml:"username"`
	Password string                   `yaml:"password"`
	Token    string                   `yaml:"token"`
	TLS      security.ClientTLSConfig `yaml:"tls"`
}

// RelayConfig tunes the queue, publisher and reporter.
type RelayConfig struct {
	QueueCapacity    int           `yaml:"queue_capacity"`
	DebounceInterval time.Duration `yaml:"debounce_interval"` // 0 disables the debounce
	DebounceBurst    int           `yaml:"debounce_burst"`
	PublishTimeout   time.Duration `yaml:"publish_timeout"`
	StatsInterval    time.Duration `yaml:"stats_interval"`
}

// WatchdogConfig controls the stall detector.
type WatchdogConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the /metrics and /health server.
type MetricsConfig struct {
	Port int `yaml:"port"` // 0 disables the server
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			Host:           "localhost",
			Port:           5002,
			ReconnectDelay: 5 * time.Second,
		},
		Topic: TopicConfig{
			Org:     "stefan",
			Project: "airplanes",
		},
		Broker: BrokerConfig{
			Kind: BrokerMQTT,
			MQTT: MQTTConfig{
				Address:  "gcmb.io:8883",
				ClientID: "airplanes/data-generator/pub",
				TLS:      security.ClientTLSConfig{Enabled: true},
			},
			NATS: NATSConfig{
				URL:    "nats://localhost:4222",
				Stream: "FLIGHTRELAY",
			},
		},
		Relay: RelayConfig{
			QueueCapacity:    100_000,
			DebounceInterval: 5 * time.Second,
			DebounceBurst:    1,
			PublishTimeout:   10 * time.Second,
			StatsInterval:    60 * time.Second,
		},
		Watchdog: WatchdogConfig{
			Interval: 60 * time.Second,
			Timeout:  10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Feed.Host == "" {
		add("feed host is required")
	}
	if !validPort(c.Feed.Port) {
		add("feed port %d out of range", c.Feed.Port)
	}
	if c.Feed.ReconnectDelay <= 0 {
		add("feed reconnect delay must be positive")
	}

	if c.Topic.Org == "" || c.Topic.Project == "" {
		add("topic org and project are required")
	}
	if strings.ContainsAny(c.Topic.Org+c.Topic.Project, "+#/") {
		add("topic org and project must not contain '+', '#' or '/'")
	}

	switch c.Broker.Kind {
	case BrokerMQTT:
		if c.Broker.MQTT.Address == "" {
			add("mqtt address is required")
		}
		if c.Broker.MQTT.QoS < 0 || c.Broker.MQTT.QoS > 2 {
			add("mqtt qos %d out of range", c.Broker.MQTT.QoS)
		}
	case BrokerNATS:
		if c.Broker.NATS.URL == "" {
			add("nats url is required")
		}
		if c.Broker.NATS.Stream == "" {
			add("nats stream is required")
		}
	default:
		add("unknown broker %q", c.Broker.Kind)
	}

	if c.Relay.QueueCapacity <= 0 {
		add("queue capacity must be positive")
	}
	if c.Relay.DebounceInterval < 0 {
		add("debounce interval cannot be negative")
	}
	if c.Relay.DebounceBurst < 1 {
		add("debounce burst must be at least 1")
	}
	if c.Relay.PublishTimeout <= 0 {
		add("publish timeout must be positive")
	}
	if c.Relay.StatsInterval < MinStatsInterval || c.Relay.StatsInterval > MaxStatsInterval {
		add("stats interval %v outside [%v, %v]", c.Relay.StatsInterval, MinStatsInterval, MaxStatsInterval)
	}

	if c.Watchdog.Interval <= 0 || c.Watchdog.Timeout <= 0 {
		add("watchdog interval and timeout must be positive")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		add("unknown log format %q", c.Log.Format)
	}

	if c.Metrics.Port != 0 && !validPort(c.Metrics.Port) {
		add("metrics port %d out of range", c.Metrics.Port)
	}
	if c.ShutdownTimeout <= 0 {
		add("shutdown timeout must be positive")
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "check fields")
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// String returns a human-readable summary with secrets redacted
func (c *Config) String() string {
	return fmt.Sprintf("Config{feed=%s namespace=%s broker=%s queue=%d debounce=%v stats=%v watchdog=%v}",
		c.Feed.Address(), c.Topic.Namespace(), c.brokerTarget(),
		c.Relay.QueueCapacity, c.Relay.DebounceInterval, c.Relay.StatsInterval, c.Watchdog.Timeout)
}

func (c *Config) brokerTarget() string {
	if c.Broker.Kind == BrokerNATS {
		return "nats:" + c.Broker.NATS.URL
	}
	return "mqtt:" + c.Broker.MQTT.Address
}
