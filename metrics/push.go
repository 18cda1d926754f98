package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
	// DefaultQueueSize is the default number of samples buffered before dropping.
	DefaultQueueSize = 256
	// maxBatch caps the number of series sent in one write request.
	maxBatch = 64
)

// PushRegistry implements Registry for push-based metrics collection.
// Metric updates are queued and sent to a VictoriaMetrics/Prometheus remote
// write endpoint by Run, so updating a metric never blocks on the network.
type PushRegistry struct {
	pusher *pusher
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:9090").
	URL string
	// Prefix is the metric name prefix. All metric names will be prefixed with this value
	// followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
	// QueueSize bounds the number of pending samples. Defaults to DefaultQueueSize.
	QueueSize int
	// Logger receives push failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewPushRegistry creates a new PushRegistry that pushes metrics to the given URL.
// Nothing is sent until Run is called.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &pusher{
		url:        cfg.URL + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		timeout:    timeout,
		queue:      make(chan sample, queueSize),
		logger:     logger,
	}
	return &PushRegistry{pusher: p}
}

// Run sends queued samples until ctx is cancelled, then flushes what is left.
func (r *PushRegistry) Run(ctx context.Context) {
	r.pusher.run(ctx)
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{
		pusher: r.pusher,
		name:   opts.Name,
	}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{
		pusher: r.pusher,
		name:   opts.Name,
		labels: labels,
	}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{
		pusher: r.pusher,
		name:   opts.Name,
	}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{
		pusher: r.pusher,
		name:   opts.Name,
		labels: labels,
	}, nil
}

// NewHistogramVec creates a new push-based HistogramVec. Each observation
// sends the cumulative _bucket, _sum and _count series.
func (r *PushRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error) {
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	return &pushHistogramVec{
		pusher:  r.pusher,
		name:    opts.Name,
		labels:  labels,
		buckets: buckets,
	}, nil
}

// sample is one queued metric value.
type sample struct {
	name      string
	value     float64
	labels    map[string]string
	timestamp time.Time
}

// pusher handles remote write to VictoriaMetrics/Prometheus.
type pusher struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
	timeout    time.Duration
	queue      chan sample
	logger     *slog.Logger
}

// enqueue queues a sample, dropping it when the queue is full.
func (p *pusher) enqueue(name string, value float64, labels map[string]string) {
	s := sample{name: name, value: value, labels: labels, timestamp: time.Now()}
	select {
	case p.queue <- s:
	default:
		p.logger.Warn("metrics queue full, dropping sample", "metric", name)
	}
}

func (p *pusher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case s := <-p.queue:
			batch := p.drain([]sample{s})
			if err := p.push(batch); err != nil {
				p.logger.Warn("failed to push metrics", "count", len(batch), "error", err)
			}
		}
	}
}

// drain appends whatever is immediately available to batch, up to maxBatch.
func (p *pusher) drain(batch []sample) []sample {
	for len(batch) < maxBatch {
		select {
		case s := <-p.queue:
			batch = append(batch, s)
		default:
			return batch
		}
	}
	return batch
}

func (p *pusher) flush() {
	for {
		batch := p.drain(nil)
		if len(batch) == 0 {
			return
		}
		if err := p.push(batch); err != nil {
			p.logger.Warn("failed to flush metrics", "count", len(batch), "error", err)
			return
		}
	}
}

// push sends a batch of samples to the remote write endpoint.
func (p *pusher) push(batch []sample) error {
	timeseries := make([]prompb.TimeSeries, 0, len(batch))
	for _, s := range batch {
		timeseries = append(timeseries, p.toTimeSeries(s))
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: timeseries})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// toTimeSeries converts a sample to Prometheus TimeSeries format.
func (p *pusher) toTimeSeries(s sample) prompb.TimeSeries {
	promLabels := make([]prompb.Label, 0, len(s.labels)+3)

	metricName := s.name
	if p.prefix != "" {
		metricName = p.prefix + "_" + s.name
	}
	promLabels = append(promLabels, prompb.Label{Name: "__name__", Value: metricName})

	if p.job != "" {
		promLabels = append(promLabels, prompb.Label{Name: "job", Value: p.job})
	}
	if p.instance != "" {
		promLabels = append(promLabels, prompb.Label{Name: "instance", Value: p.instance})
	}
	for k, v := range s.labels {
		promLabels = append(promLabels, prompb.Label{Name: k, Value: v})
	}

	return prompb.TimeSeries{
		Labels: promLabels,
		Samples: []prompb.Sample{{
			Value:     s.value,
			Timestamp: s.timestamp.UnixMilli(),
		}},
	}
}

// pushGauge implements Gauge for push mode.
type pushGauge struct {
	pusher *pusher
	name   string
	labels map[string]string
}

func (g *pushGauge) Set(v float64) {
	g.pusher.enqueue(g.name, v, g.labels)
}

// pushGaugeVec implements GaugeVec for push mode.
type pushGaugeVec struct {
	pusher *pusher
	name   string
	labels []string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{
		pusher: g.pusher,
		name:   g.name,
		labels: labels,
	}
}

// pushCounter implements Counter for push mode. Remote write expects
// cumulative values, so the running total is sent on every update.
type pushCounter struct {
	mu     sync.Mutex
	pusher *pusher
	name   string
	labels map[string]string
	value  float64
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	c.mu.Lock()
	c.value += v
	value := c.value
	c.mu.Unlock()
	c.pusher.enqueue(c.name, value, c.labels)
}

// pushCounterVec implements CounterVec for push mode.
type pushCounterVec struct {
	mu       sync.Mutex
	pusher   *pusher
	name     string
	labels   []string
	counters map[string]*pushCounter
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	key := labelsToKey(c.labels, labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counters == nil {
		c.counters = make(map[string]*pushCounter)
	}

	if counter, ok := c.counters[key]; ok {
		return counter
	}

	counter := &pushCounter{
		pusher: c.pusher,
		name:   c.name,
		labels: labels,
	}
	c.counters[key] = counter
	return counter
}

// labelsToKey creates a stable map key from labels in declaration order.
func labelsToKey(names []string, labels prometheus.Labels) string {
	var key string
	for _, name := range names {
		key += name + "=" + labels[name] + ","
	}
	return key
}

// pushHistogram implements Observer for push mode.
type pushHistogram struct {
	mu      sync.Mutex
	pusher  *pusher
	name    string
	labels  map[string]string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func (h *pushHistogram) Observe(v float64) {
	h.mu.Lock()
	for i, upper := range h.buckets {
		if v <= upper {
			h.counts[i]++
		}
	}
	h.sum += v
	h.count++
	counts := slices.Clone(h.counts)
	sum, count := h.sum, h.count
	h.mu.Unlock()

	for i, upper := range h.buckets {
		h.pusher.enqueue(h.name+"_bucket", float64(counts[i]), withLabel(h.labels, "le", strconv.FormatFloat(upper, 'g', -1, 64)))
	}
	h.pusher.enqueue(h.name+"_bucket", float64(count), withLabel(h.labels, "le", "+Inf"))
	h.pusher.enqueue(h.name+"_sum", sum, h.labels)
	h.pusher.enqueue(h.name+"_count", float64(count), h.labels)
}

// pushHistogramVec implements HistogramVec for push mode.
type pushHistogramVec struct {
	mu         sync.Mutex
	pusher     *pusher
	name       string
	labels     []string
	buckets    []float64
	histograms map[string]*pushHistogram
}

func (h *pushHistogramVec) With(labels prometheus.Labels) Observer {
	key := labelsToKey(h.labels, labels)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.histograms == nil {
		h.histograms = make(map[string]*pushHistogram)
	}
	if hist, ok := h.histograms[key]; ok {
		return hist
	}
	hist := &pushHistogram{
		pusher:  h.pusher,
		name:    h.name,
		labels:  labels,
		buckets: h.buckets,
		counts:  make([]uint64, len(h.buckets)),
	}
	h.histograms[key] = hist
	return hist
}

func withLabel(labels map[string]string, name, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[name] = value
	return out
}
