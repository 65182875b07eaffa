package feepool

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors shared by every FeePoolSystem of a
// process. Systems are told apart by the "book" label.
type Metrics struct {
	operations *prometheus.CounterVec
	rejections *prometheus.CounterVec
	pools      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "midmatch",
			Subsystem: "feepool",
			Name:      "operations_total",
			Help:      "Committed fee pool registry mutations.",
		}, []string{"book", "op"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "midmatch",
			Subsystem: "feepool",
			Name:      "rejections_total",
			Help:      "Fee pool registry mutations rejected during validation.",
		}, []string{"book", "op", "reason"}),
		pools: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "midmatch",
			Subsystem: "feepool",
			Name:      "pools",
			Help:      "Number of fee pools currently registered.",
		}, []string{"book"}),
	}
	reg.MustRegister(m.operations, m.rejections, m.pools)
	return m
}

func (m *Metrics) observe(book, op string, err error, poolCount uint64) {
	if m == nil {
		return
	}
	if err != nil {
		m.rejections.WithLabelValues(book, op, Reason(err)).Inc()
		return
	}
	m.operations.WithLabelValues(book, op).Inc()
	m.pools.WithLabelValues(book).Set(float64(poolCount))
}
