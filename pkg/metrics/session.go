package metrics

import "github.com/hypertable/hyperspace/pkg/hyperspace/session"

// NewSessionMetrics returns a Prometheus-backed session.Metrics, or nil if
// metrics are disabled. session.Manager treats a nil Metrics as a noop, so
// callers can pass the result straight through regardless of whether
// metrics are enabled.
func NewSessionMetrics() session.Metrics {
	if !IsEnabled() || newPrometheusSessionMetrics == nil {
		return nil
	}
	return newPrometheusSessionMetrics()
}

// newPrometheusSessionMetrics is set by pkg/metrics/prometheus/session.go's
// init(). The indirection lets this package declare the facade without
// importing the prometheus client library.
var newPrometheusSessionMetrics func() session.Metrics

// RegisterSessionMetricsConstructor is called by pkg/metrics/prometheus to
// install its constructor.
func RegisterSessionMetricsConstructor(constructor func() session.Metrics) {
	newPrometheusSessionMetrics = constructor
}
