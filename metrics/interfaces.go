// Package metrics wraps Prometheus metric types behind small interfaces so
// the panel code does not care how samples leave the process.
//
// Two registries implement Registry and can be combined with Tee:
//   - ScrapeRegistry registers with a Prometheus registry served on /metrics.
//   - PushRegistry queues samples for a VictoriaMetrics/Prometheus remote
//     write endpoint. The one-shot CLI uses it, since nothing scrapes it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is a value that can go up and down.
type Gauge interface {
	Set(float64)
}

// Counter only increases. Add panics on a negative value.
type Counter interface {
	Inc()
	Add(float64)
}

// Observer records a distribution, typically durations in seconds.
type Observer interface {
	Observe(float64)
}

// GaugeVec is a Gauge with labels.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec is a Counter with labels.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// HistogramVec is a histogram with labels.
type HistogramVec interface {
	With(prometheus.Labels) Observer
}

// Registry creates and registers metrics. Names are unprefixed; each
// implementation applies its own namespace.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
	NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error)
}
