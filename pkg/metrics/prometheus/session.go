package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hypertable/hyperspace/pkg/hyperspace/session"
	"github.com/hypertable/hyperspace/pkg/metrics"
)

func init() {
	metrics.RegisterSessionMetricsConstructor(func() session.Metrics { return newSessionMetrics() })
}

// sessionMetrics is the Prometheus implementation of session.Metrics.
type sessionMetrics struct {
	created prometheus.Counter
	expired prometheus.Counter
	live    prometheus.Gauge
}

func newSessionMetrics() session.Metrics {
	reg := metrics.GetRegistry()

	return &sessionMetrics{
		created: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hyperspace_sessions_created_total",
			Help: "Total number of client sessions created.",
		}),
		expired: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "hyperspace_sessions_expired_total",
			Help: "Total number of client sessions that expired without recovery.",
		}),
		live: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "hyperspace_sessions_live",
			Help: "Current number of sessions in safe or jeopardy state.",
		}),
	}
}

func (m *sessionMetrics) SessionCreated()       { m.created.Inc() }
func (m *sessionMetrics) SessionExpired()       { m.expired.Inc() }
func (m *sessionMetrics) SetLiveSessions(n int) { m.live.Set(float64(n)) }
