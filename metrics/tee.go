package metrics

import "github.com/prometheus/client_golang/prometheus"

// Tee returns a Registry that creates every metric in all of regs, so the
// server can expose /metrics and push to remote write at the same time.
func Tee(regs ...Registry) Registry {
	if len(regs) == 1 {
		return regs[0]
	}
	return teeRegistry(regs)
}

type teeRegistry []Registry

func (t teeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	gauges := make(teeGauge, 0, len(t))
	for _, r := range t {
		g, err := r.NewGauge(opts)
		if err != nil {
			return nil, err
		}
		gauges = append(gauges, g)
	}
	return gauges, nil
}

func (t teeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	vecs := make(teeGaugeVec, 0, len(t))
	for _, r := range t {
		v, err := r.NewGaugeVec(opts, labels)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, v)
	}
	return vecs, nil
}

func (t teeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	counters := make(teeCounter, 0, len(t))
	for _, r := range t {
		c, err := r.NewCounter(opts)
		if err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, nil
}

func (t teeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	vecs := make(teeCounterVec, 0, len(t))
	for _, r := range t {
		v, err := r.NewCounterVec(opts, labels)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, v)
	}
	return vecs, nil
}

func (t teeRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) (HistogramVec, error) {
	vecs := make(teeHistogramVec, 0, len(t))
	for _, r := range t {
		v, err := r.NewHistogramVec(opts, labels)
		if err != nil {
			return nil, err
		}
		vecs = append(vecs, v)
	}
	return vecs, nil
}

type teeGauge []Gauge

func (t teeGauge) Set(v float64) {
	for _, g := range t {
		g.Set(v)
	}
}

type teeGaugeVec []GaugeVec

func (t teeGaugeVec) With(labels prometheus.Labels) Gauge {
	gauges := make(teeGauge, 0, len(t))
	for _, v := range t {
		gauges = append(gauges, v.With(labels))
	}
	return gauges
}

type teeCounter []Counter

func (t teeCounter) Inc() {
	for _, c := range t {
		c.Inc()
	}
}

func (t teeCounter) Add(v float64) {
	for _, c := range t {
		c.Add(v)
	}
}

type teeCounterVec []CounterVec

func (t teeCounterVec) With(labels prometheus.Labels) Counter {
	counters := make(teeCounter, 0, len(t))
	for _, v := range t {
		counters = append(counters, v.With(labels))
	}
	return counters
}

type teeObserver []Observer

func (t teeObserver) Observe(v float64) {
	for _, o := range t {
		o.Observe(v)
	}
}

type teeHistogramVec []HistogramVec

func (t teeHistogramVec) With(labels prometheus.Labels) Observer {
	observers := make(teeObserver, 0, len(t))
	for _, v := range t {
		observers = append(observers, v.With(labels))
	}
	return observers
}
