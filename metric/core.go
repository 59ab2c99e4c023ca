package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay-wide counters and gauges.
type Metrics struct {
	// Feed
	FeedConnected  prometheus.Gauge
	FeedReconnects prometheus.Counter
	LinesRead      prometheus.Counter
	DecodeErrors   *prometheus.CounterVec
	Sightings      prometheus.Counter

	// Tracking
	AircraftTracked prometheus.Gauge

	// Publishing
	Published        *prometheus.CounterVec
	PublishFailures  prometheus.Counter
	Debounced        prometheus.Counter
	PublishDuration  prometheus.Histogram
	BrokerConnected  prometheus.Gauge
	ThroughputWindow *prometheus.GaugeVec

	// Liveness
	HeartbeatAge prometheus.Gauge
	Uptime       prometheus.Gauge
}

// NewMetrics creates the relay metrics without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		FeedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "feed",
			Name:      "connected",
			Help:      "Whether the SBS-1 socket is connected (0/1)",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of SBS-1 connection attempts after a failure",
		}),
		LinesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "feed",
			Name:      "lines_total",
			Help:      "Total number of SBS-1 lines read",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "feed",
			Name:      "decode_errors_total",
			Help:      "Lines that failed to decode, by reason",
		}, []string{"reason"}),
		Sightings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "feed",
			Name:      "sightings_total",
			Help:      "Positions of known callsigns queued for publishing",
		}),
		AircraftTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "tracker",
			Name:      "aircraft",
			Help:      "Aircraft seen within the retention window",
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "broker",
			Name:      "published_total",
			Help:      "Messages accepted by the broker, by kind",
		}, []string{"kind"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "broker",
			Name:      "publish_failures_total",
			Help:      "Location publishes the broker rejected",
		}),
		Debounced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "publisher",
			Name:      "debounced_total",
			Help:      "Location events dropped by the per-callsign debounce",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "broker",
			Name:      "publish_duration_seconds",
			Help:      "Time spent in a single broker publish",
			Buckets:   prometheus.DefBuckets,
		}),
		BrokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "broker",
			Name:      "connected",
			Help:      "Whether the broker session is up (0/1)",
		}),
		ThroughputWindow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "publisher",
			Name:      "per_minute",
			Help:      "Publishes within the last minute, by outcome",
		}, []string{"outcome"}),
		HeartbeatAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "watchdog",
			Name:      "heartbeat_age_seconds",
			Help:      "Seconds since the last successful location publish",
		}),
		Uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the relay started",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FeedConnected,
		m.FeedReconnects,
		m.LinesRead,
		m.DecodeErrors,
		m.Sightings,
		m.AircraftTracked,
		m.Published,
		m.PublishFailures,
		m.Debounced,
		m.PublishDuration,
		m.BrokerConnected,
		m.ThroughputWindow,
		m.HeartbeatAge,
		m.Uptime,
	}
}
