package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/pkg/security"
)

// envReader applies overrides and keeps the first parse error.
type envReader struct {
	l   *Loader
	err error
}

func (r *envReader) value(key string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	val, ok, err := r.l.get(key)
	if err != nil {
		r.err = err
		return "", false
	}
	return val, ok
}

func (r *envReader) fail(key, val string, err error) {
	r.err = errors.WrapInvalid(
		fmt.Errorf("%w: %s=%q: %v", errors.ErrInvalidConfig, key, val, err),
		"Loader", "Load", "parse env")
}

func (r *envReader) str(key string, dst *string) {
	if val, ok := r.value(key); ok {
		*dst = val
	}
}

func (r *envReader) integer(key string, dst *int) {
	val, ok := r.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.ReplaceAll(val, "_", ""))
	if err != nil {
		r.fail(key, val, err)
		return
	}
	*dst = n
}

func (r *envReader) boolean(key string, dst *bool) {
	val, ok := r.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		r.fail(key, val, err)
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	val, ok := r.value(key)
	if !ok {
		return
	}
	d, err := parseDuration(val)
	if err != nil {
		r.fail(key, val, err)
		return
	}
	*dst = d
}

// tls maps the <PREFIX>_TLS, _CA_FILE, _CERT_FILE, _KEY_FILE and
// _TLS_INSECURE keys onto a client TLS block.
func (r *envReader) tls(prefix string, dst *security.ClientTLSConfig) {
	r.boolean(prefix+"_TLS", &dst.Enabled)
	r.boolean(prefix+"_TLS_INSECURE", &dst.InsecureSkipVerify)
	r.str(prefix+"_TLS_SERVER_NAME", &dst.ServerName)

	var ca string
	r.str(prefix+"_CA_FILE", &ca)
	if ca != "" {
		dst.CAFiles = strings.Split(ca, ",")
	}

	r.str(prefix+"_CERT_FILE", &dst.MTLS.CertFile)
	r.str(prefix+"_KEY_FILE", &dst.MTLS.KeyFile)
	if dst.MTLS.CertFile != "" && dst.MTLS.KeyFile != "" {
		dst.MTLS.Enabled = true
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	r := &envReader{l: l}

	r.str("SBS1_HOST", &cfg.Feed.Host)
	r.integer("SBS1_PORT", &cfg.Feed.Port)
	r.duration("RECONNECT_DELAY", &cfg.Feed.ReconnectDelay)

	r.str("GCMB_ORG", &cfg.Topic.Org)
	r.str("GCMB_PROJECT", &cfg.Topic.Project)

	r.str("BROKER", &cfg.Broker.Kind)
	cfg.Broker.Kind = strings.ToLower(cfg.Broker.Kind)

	r.str("MQTT_BROKER", &cfg.Broker.MQTT.Address)
	r.str("MQTT_CLIENT_ID", &cfg.Broker.MQTT.ClientID)
	r.str("MQTT_USERNAME", &cfg.Broker.MQTT.Username)
	r.str("MQTT_PASSWORD", &cfg.Broker.MQTT.Password)
	r.integer("MQTT_QOS", &cfg.Broker.MQTT.QoS)
	r.tls("MQTT", &cfg.Broker.MQTT.TLS)

	r.str("NATS_URL", &cfg.Broker.NATS.URL)
	r.str("NATS_STREAM", &cfg.Broker.NATS.Stream)
	r.str("NATS_USERNAME", &cfg.Broker.NATS.Username)
	r.str("NATS_PASSWORD", &cfg.Broker.NATS.Password)
	r.str("NATS_TOKEN", &cfg.Broker.NATS.Token)
	r.tls("NATS", &cfg.Broker.NATS.TLS)

	r.integer("QUEUE_CAPACITY", &cfg.Relay.QueueCapacity)
	r.duration("DEBOUNCE_INTERVAL", &cfg.Relay.DebounceInterval)
	r.integer("DEBOUNCE_BURST", &cfg.Relay.DebounceBurst)
	r.duration("PUBLISH_TIMEOUT", &cfg.Relay.PublishTimeout)
	r.duration("STATS_INTERVAL", &cfg.Relay.StatsInterval)

	r.duration("WATCHDOG_INTERVAL", &cfg.Watchdog.Interval)
	r.duration("WATCHDOG_TIMEOUT", &cfg.Watchdog.Timeout)

	r.str("LOG_LEVEL", &cfg.Log.Level)
	r.str("LOG_FORMAT", &cfg.Log.Format)
	r.integer("METRICS_PORT", &cfg.Metrics.Port)
	r.duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	return r.err
}

// parseDuration accepts Go durations, a "d" day suffix, or bare seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
