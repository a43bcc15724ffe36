package autosave

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the autosave Prometheus collectors.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Duration prometheus.Histogram
	Skipped  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pagebuilder",
				Subsystem: "autosave",
				Name:      "attempts_total",
				Help:      "Autosave attempts by result",
			},
			[]string{"result"},
		),
		Duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "pagebuilder",
				Subsystem: "autosave",
				Name:      "save_duration_seconds",
				Help:      "Page Store save latency for autosaves",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Skipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pagebuilder",
				Subsystem: "autosave",
				Name:      "skipped_total",
				Help:      "Timer firings with nothing new to save",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Attempts, m.Duration, m.Skipped)
	}
	return m
}
