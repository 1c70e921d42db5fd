package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks request-dispatch Prometheus metrics. All metric names use
// the hyperspace_ prefix.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	LiveSessions     prometheus.Gauge
	WorkerQueueDepth prometheus.Gauge
}

// NewMetrics creates and registers dispatch metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hyperspace_requests_total",
				Help: "Total requests processed by command and error code",
			},
			[]string{"command", "error"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hyperspace_request_duration_seconds",
				Help:    "Request handling duration by command",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		LiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hyperspace_live_sessions",
			Help: "Current number of live sessions",
		}),
		WorkerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hyperspace_worker_queue_depth",
			Help: "Current depth of the dispatch worker queue",
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.LiveSessions, m.WorkerQueueDepth)
	return m
}

func (m *Metrics) recordRequest(command, errCode string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(command, errCode).Inc()
	m.RequestDuration.WithLabelValues(command).Observe(seconds)
}
