package panel

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/archivepanel/metrics"
)

// Outcome labels.
const (
	resultOK        = "ok"
	resultError     = "error"
	resultDisabled  = "disabled"
	resultNoMatch   = "no_match"
	resultEditor    = "editor"
	resultNonEditor = "non_editor"
	resultDenied    = "denied"
)

// Metrics records panel activity. A nil *Metrics records nothing.
type Metrics struct {
	activations   metrics.CounterVec
	permissions   metrics.CounterVec
	statusFetches metrics.CounterVec
	triggerCalls  metrics.CounterVec
	triggerTime   metrics.HistogramVec
	mounted       metrics.Gauge
}

// NewMetrics creates the panel metrics in reg.
func NewMetrics(reg metrics.Registry) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.activations, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_activations_total",
		Help: "Panel activations by site profile.",
	}, []string{"profile"}); err != nil {
		return nil, fmt.Errorf("creating activations metric: %w", err)
	}
	if m.permissions, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_permission_checks_total",
		Help: "Edit permission checks by outcome.",
	}, []string{"result"}); err != nil {
		return nil, fmt.Errorf("creating permission metric: %w", err)
	}
	if m.statusFetches, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_status_fetches_total",
		Help: "Project status reads by outcome.",
	}, []string{"result"}); err != nil {
		return nil, fmt.Errorf("creating status fetch metric: %w", err)
	}
	if m.triggerCalls, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "panel_trigger_calls_total",
		Help: "Archive and reactivate trigger calls by outcome.",
	}, []string{"action", "result"}); err != nil {
		return nil, fmt.Errorf("creating trigger metric: %w", err)
	}
	if m.triggerTime, err = reg.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panel_trigger_duration_seconds",
		Help:    "Time spent in archive and reactivate trigger calls.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"action"}); err != nil {
		return nil, fmt.Errorf("creating trigger duration metric: %w", err)
	}
	if m.mounted, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "panel_mounted",
		Help: "Currently mounted panels.",
	}); err != nil {
		return nil, fmt.Errorf("creating mounted metric: %w", err)
	}

	return m, nil
}

func (m *Metrics) activation(profile string) {
	if m == nil {
		return
	}
	m.activations.With(prometheus.Labels{"profile": profile}).Inc()
}

func (m *Metrics) permission(result string) {
	if m == nil {
		return
	}
	m.permissions.With(prometheus.Labels{"result": result}).Inc()
}

func (m *Metrics) statusFetch(result string) {
	if m == nil {
		return
	}
	m.statusFetches.With(prometheus.Labels{"result": result}).Inc()
}

func (m *Metrics) triggerCall(action Action, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.triggerCalls.With(prometheus.Labels{"action": string(action), "result": result}).Inc()
	if result != resultDisabled {
		m.triggerTime.With(prometheus.Labels{"action": string(action)}).Observe(took.Seconds())
	}
}

func (m *Metrics) setMounted(n int) {
	if m == nil {
		return
	}
	m.mounted.Set(float64(n))
}
