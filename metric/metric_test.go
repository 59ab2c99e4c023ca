package metric

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flightrelay/errors"
	"github.com/c360/flightrelay/health"
)

func TestNewMetricsRegistry_GathersCoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().LinesRead.Add(3)
	registry.CoreMetrics().Published.WithLabelValues("location").Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["flightrelay_feed_lines_total"])
	assert.True(t, names["flightrelay_broker_published_total"])
	assert.True(t, names["go_goroutines"])

	assert.Equal(t, 3.0, testutil.ToFloat64(registry.CoreMetrics().LinesRead))
}

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})
	require.NoError(t, registry.RegisterCounter("feed", "test_counter", counter))

	err := registry.RegisterCounter("feed", "test_counter", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// Same prometheus name under a different key still conflicts
	other := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})
	err = registry.RegisterCounter("publisher", "test_counter", other)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	require.NoError(t, registry.RegisterGauge("feed", "test_gauge", gauge))

	assert.True(t, registry.Unregister("feed", "test_gauge"))
	assert.False(t, registry.Unregister("feed", "test_gauge"))
	assert.NoError(t, registry.RegisterGauge("feed", "test_gauge", gauge))
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	monitor := health.NewMonitor()
	monitor.UpdateHealthy("feed", "connected")

	srv := httptest.NewServer(NewServer(0, registry, monitor, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "flightrelay_feed_connected")

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var status health.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, status.Healthy)

	monitor.UpdateUnhealthy("broker", "disconnected")
	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_RunAndShutdown(t *testing.T) {
	registry := NewMetricsRegistry()
	server := NewServer(0, registry, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	require.Eventually(t, func() bool {
		return !strings.HasSuffix(server.Address(), ":0/metrics")
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(strings.TrimSuffix(server.Address(), "/metrics") + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// scrape fetches /metrics and parses the text exposition format.
func scrape(t *testing.T, url string) map[string]*dto.MetricFamily {
	t.Helper()

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)
	return families
}

func TestServer_ExposesRelayCounters(t *testing.T) {
	registry := NewMetricsRegistry()
	m := registry.CoreMetrics()
	m.Published.WithLabelValues("location").Add(7)
	m.Published.WithLabelValues("stats").Add(3)
	m.DecodeErrors.WithLabelValues("not_msg").Inc()

	srv := httptest.NewServer(NewServer(0, registry, nil, nil).Handler())
	defer srv.Close()

	families := scrape(t, srv.URL)

	published, ok := families["flightrelay_broker_published_total"]
	require.True(t, ok)
	assert.Equal(t, dto.MetricType_COUNTER, published.GetType())

	byKind := make(map[string]float64)
	for _, metric := range published.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "kind" {
				byKind[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"location": 7, "stats": 3}, byKind)

	decode, ok := families["flightrelay_feed_decode_errors_total"]
	require.True(t, ok)
	require.Len(t, decode.GetMetric(), 1)
	assert.Equal(t, 1.0, decode.GetMetric()[0].GetCounter().GetValue())
}
