package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWriteServer decodes remote write requests and forwards every series.
func remoteWriteServer(t *testing.T) (*httptest.Server, <-chan prompb.TimeSeries) {
	t.Helper()
	received := make(chan prompb.TimeSeries, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var writeReq prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &writeReq))

		for _, ts := range writeReq.Timeseries {
			received <- ts
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func startPushing(t *testing.T, registry *PushRegistry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		registry.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func receive(t *testing.T, ch <-chan prompb.TimeSeries) prompb.TimeSeries {
	t.Helper()
	select {
	case ts := <-ch:
		return ts
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for metrics to be received")
		return prompb.TimeSeries{}
	}
}

func TestNewPushRegistry(t *testing.T) {
	tests := []struct {
		name string
		cfg  PushConfig
	}{
		{
			name: "minimal config",
			cfg: PushConfig{
				URL: "http://localhost:9090",
			},
		},
		{
			name: "full config",
			cfg: PushConfig{
				URL:       "http://localhost:9090",
				Prefix:    "test",
				Job:       "testjob",
				Instance:  "testinstance",
				Timeout:   5 * time.Second,
				QueueSize: 8,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewPushRegistry(tt.cfg)
			require.NotNil(t, registry)
			require.NotNil(t, registry.pusher)
			assert.Equal(t, "http://localhost:9090/api/v1/write", registry.pusher.url)
		})
	}
}

func TestPushGauge_Set(t *testing.T) {
	server, received := remoteWriteServer(t)

	registry := NewPushRegistry(PushConfig{
		URL:      server.URL,
		Prefix:   "test",
		Job:      "testjob",
		Instance: "testinstance",
	})
	startPushing(t, registry)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "test_metric",
		Help: "A test metric",
	})
	require.NoError(t, err)
	gauge.Set(42.0)

	ts := receive(t, received)
	assert.Equal(t, "test_test_metric", findLabel(ts.Labels, "__name__"))
	assert.Equal(t, "testjob", findLabel(ts.Labels, "job"))
	assert.Equal(t, "testinstance", findLabel(ts.Labels, "instance"))
	require.Len(t, ts.Samples, 1)
	assert.Equal(t, 42.0, ts.Samples[0].Value)
}

func TestPushGaugeVec_WithLabels(t *testing.T) {
	server, received := remoteWriteServer(t)

	registry := NewPushRegistry(PushConfig{URL: server.URL})
	startPushing(t, registry)

	gaugeVec, err := registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mounted_panels",
		Help: "A test gauge vector",
	}, []string{"profile"})
	require.NoError(t, err)

	gaugeVec.With(prometheus.Labels{"profile": "secondary"}).Set(3)

	ts := receive(t, received)
	assert.Equal(t, "mounted_panels", findLabel(ts.Labels, "__name__"))
	assert.Equal(t, "secondary", findLabel(ts.Labels, "profile"))
	require.Len(t, ts.Samples, 1)
	assert.Equal(t, 3.0, ts.Samples[0].Value)
}

func TestPushCounterVec_Cumulative(t *testing.T) {
	server, received := remoteWriteServer(t)

	registry := NewPushRegistry(PushConfig{URL: server.URL})
	startPushing(t, registry)

	counterVec, err := registry.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_calls_total",
		Help: "A test counter",
	}, []string{"action", "result"})
	require.NoError(t, err)

	labels := prometheus.Labels{"action": "archive", "result": "ok"}
	counterVec.With(labels).Inc()
	counterVec.With(labels).Inc()

	// Counter values are cumulative: 1, then 2
	for i := 0; i < 2; i++ {
		ts := receive(t, received)
		require.Len(t, ts.Samples, 1)
		assert.Equal(t, float64(i+1), ts.Samples[0].Value)
		assert.Equal(t, "archive", findLabel(ts.Labels, "action"))
	}
}

func TestPushRegistry_DropsWhenQueueFull(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost:9090", QueueSize: 1})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "g", Help: "g"})
	require.NoError(t, err)

	// Not running: the second sample is dropped instead of blocking.
	gauge.Set(1)
	gauge.Set(2)
	assert.Len(t, registry.pusher.queue, 1)
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)
	require.NotNil(t, registry)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})
	require.NoError(t, err)
	gauge.Set(42.0)

	counter, err := registry.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})
	require.NoError(t, err)
	counter.Inc()

	_, err = registry.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A duplicate counter",
	})
	assert.Error(t, err)

	handler := registry.Handler()
	require.NotNil(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "test_gauge 42")
	assert.Contains(t, body, "test_counter 1")
}

func TestTee(t *testing.T) {
	a, err := NewScrapeRegistry()
	require.NoError(t, err)
	b, err := NewScrapeRegistry()
	require.NoError(t, err)

	reg := Tee(a, b)
	counterVec, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "activations_total",
		Help: "Panel activations",
	}, []string{"profile"})
	require.NoError(t, err)
	counterVec.With(prometheus.Labels{"profile": "production"}).Add(2)

	for _, r := range []*ScrapeRegistry{a, b} {
		w := httptest.NewRecorder()
		r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Contains(t, w.Body.String(), `activations_total{profile="production"} 2`)
	}

	assert.Same(t, a, Tee(a))
}

func TestScrapeRegistry_Namespace(t *testing.T) {
	registry, err := NewScrapeRegistry(WithNamespace("archivepanel"), WithoutRuntimeCollectors())
	require.NoError(t, err)

	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "mounts_total", Help: "Mounts"})
	require.NoError(t, err)
	counter.Add(3)

	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	assert.Contains(t, body, "archivepanel_mounts_total 3")
	assert.Contains(t, body, `archivepanel_build_info{build_time="unknown",git_commit="unknown"} 1`)
	assert.Contains(t, body, "archivepanel_uptime_seconds")
	assert.NotContains(t, body, "go_goroutines")
}

func TestPushHistogramVec_Observe(t *testing.T) {
	server, received := remoteWriteServer(t)

	registry := NewPushRegistry(PushConfig{URL: server.URL})
	startPushing(t, registry)

	histVec, err := registry.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trigger_duration_seconds",
		Help:    "A test histogram",
		Buckets: []float64{0.25, 1},
	}, []string{"action"})
	require.NoError(t, err)

	histVec.With(prometheus.Labels{"action": "reactivate"}).Observe(0.3)

	got := map[string]float64{}
	for i := 0; i < 5; i++ {
		ts := receive(t, received)
		require.Len(t, ts.Samples, 1)
		assert.Equal(t, "reactivate", findLabel(ts.Labels, "action"))
		key := findLabel(ts.Labels, "__name__")
		if le := findLabel(ts.Labels, "le"); le != "" {
			key += "{le=" + le + "}"
		}
		got[key] = ts.Samples[0].Value
	}

	assert.Equal(t, map[string]float64{
		"trigger_duration_seconds_bucket{le=0.25}": 0,
		"trigger_duration_seconds_bucket{le=1}":    1,
		"trigger_duration_seconds_bucket{le=+Inf}": 1,
		"trigger_duration_seconds_sum":             0.3,
		"trigger_duration_seconds_count":           1,
	}, got)
}

func TestTee_Histogram(t *testing.T) {
	a, err := NewScrapeRegistry(WithoutRuntimeCollectors())
	require.NoError(t, err)
	b, err := NewScrapeRegistry(WithoutRuntimeCollectors())
	require.NoError(t, err)

	vec, err := Tee(a, b).NewHistogramVec(prometheus.HistogramOpts{
		Name: "duration_seconds",
		Help: "d",
	}, []string{"action"})
	require.NoError(t, err)
	vec.With(prometheus.Labels{"action": "archive"}).Observe(2)

	for _, r := range []*ScrapeRegistry{a, b} {
		w := httptest.NewRecorder()
		r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Contains(t, w.Body.String(), `duration_seconds_count{action="archive"} 1`)
	}
}
