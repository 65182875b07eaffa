package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors of the stream server.
type Metrics struct {
	subscribers prometheus.Gauge
	events      *prometheus.CounterVec
	resyncs     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "midmatch",
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Number of active state stream subscribers.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "midmatch",
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "State stream events queued for subscribers.",
		}, []string{"type"}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "midmatch",
			Subsystem: "stream",
			Name:      "resyncs_total",
			Help:      "Lagging subscribers that were sent a full state instead of a diff.",
		}),
	}
	reg.MustRegister(m.subscribers, m.events, m.resyncs)
	return m
}
