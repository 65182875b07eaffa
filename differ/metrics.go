package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors of a StateDiffer.
type Metrics struct {
	diffDuration *prometheus.HistogramVec
	pairsChanged *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "midmatch",
			Subsystem: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Time taken to diff two states.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{}),
		pairsChanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "midmatch",
			Subsystem: "differ",
			Name:      "pairs_changed_total",
			Help:      "Pairs reported by diffs, by kind of change.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.diffDuration, m.pairsChanged)
	return m
}
