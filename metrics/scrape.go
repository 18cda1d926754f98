package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nomis52/archivepanel/buildinfo"
)

// ScrapeRegistry implements Registry for scrape-based metrics collection.
// Metrics are registered with a Prometheus registry and exposed via HTTP.
type ScrapeRegistry struct {
	prom      *prometheus.Registry
	namespace string
	startTime time.Time
}

// ScrapeOption configures a ScrapeRegistry.
type ScrapeOption func(*scrapeOptions)

type scrapeOptions struct {
	namespace string
	runtime   bool
}

// WithNamespace prefixes every metric name with namespace and an underscore,
// matching the names PushRegistry sends for the same prefix.
func WithNamespace(namespace string) ScrapeOption {
	return func(o *scrapeOptions) {
		o.namespace = namespace
	}
}

// WithoutRuntimeCollectors skips the Go and process collectors.
func WithoutRuntimeCollectors() ScrapeOption {
	return func(o *scrapeOptions) {
		o.runtime = false
	}
}

// NewScrapeRegistry creates a new ScrapeRegistry. Besides the runtime
// collectors it always exports build_info and uptime_seconds.
func NewScrapeRegistry(opts ...ScrapeOption) (*ScrapeRegistry, error) {
	o := scrapeOptions{runtime: true}
	for _, opt := range opts {
		opt(&o)
	}

	r := &ScrapeRegistry{
		prom:      prometheus.NewRegistry(),
		namespace: o.namespace,
		startTime: time.Now(),
	}

	if o.runtime {
		if err := r.prom.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("registering go collector: %w", err)
		}
		if err := r.prom.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("registering process collector: %w", err)
		}
	}

	props := buildinfo.Get()
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   r.namespace,
		Name:        "build_info",
		Help:        "Build properties of the running binary.",
		ConstLabels: prometheus.Labels{"build_time": props.BuildTime, "git_commit": props.GitCommit},
	})
	info.Set(1)
	if err := r.prom.Register(info); err != nil {
		return nil, fmt.Errorf("registering build info: %w", err)
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the registry was created.",
	}, func() float64 {
		return time.Since(r.startTime).Seconds()
	})
	if err := r.prom.Register(uptime); err != nil {
		return nil, fmt.Errorf("registering uptime: %w", err)
	}

	return r, nil
}

// Handler returns an http.Handler for the /metrics endpoint.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewGauge creates and registers a new Gauge.
func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	opts.Namespace = r.namespace
	g := prometheus.NewGauge(opts)
	if err := r.prom.Register(g); err != nil {
		return nil, fmt.Errorf("registering gauge %q: %w", opts.Name, err)
	}
	return g, nil
}

// NewGaugeVec creates and registers a new GaugeVec.
func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	opts.Namespace = r.namespace
	g := prometheus.NewGaugeVec(opts, labels)
	if err := r.prom.Register(g); err != nil {
		return nil, fmt.Errorf("registering gauge vec %q: %w", opts.Name, err)
	}
	return gaugeVec{g}, nil
}

// NewCounter creates and registers a new Counter.
func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	opts.Namespace = r.namespace
	c := prometheus.NewCounter(opts)
	if err := r.prom.Register(c); err != nil {
		return nil, fmt.Errorf("registering counter %q: %w", opts.Name, err)
	}
	return c, nil
}

// NewCounterVec creates and registers a new CounterVec.
func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	opts.Namespace = r.namespace
	c := prometheus.NewCounterVec(opts, labels)
	if err := r.prom.Register(c); err != nil {
		return nil, fmt.Errorf("registering counter vec %q: %w", opts.Name, err)
	}
	return counterVec{c}, nil
}

// NewHistogramVec creates and registers a new HistogramVec.
func (r *ScrapeRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error) {
	opts.Namespace = r.namespace
	h := prometheus.NewHistogramVec(opts, labels)
	if err := r.prom.Register(h); err != nil {
		return nil, fmt.Errorf("registering histogram vec %q: %w", opts.Name, err)
	}
	return histogramVec{h}, nil
}

// prometheus.Gauge and prometheus.Counter satisfy Gauge and Counter directly.
// The vec types need With to return the narrower interfaces.

type gaugeVec struct {
	vec *prometheus.GaugeVec
}

func (g gaugeVec) With(labels prometheus.Labels) Gauge {
	return g.vec.With(labels)
}

type counterVec struct {
	vec *prometheus.CounterVec
}

func (c counterVec) With(labels prometheus.Labels) Counter {
	return c.vec.With(labels)
}

type histogramVec struct {
	vec *prometheus.HistogramVec
}

func (h histogramVec) With(labels prometheus.Labels) Observer {
	return h.vec.With(labels)
}
