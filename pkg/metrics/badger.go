package metrics

import "github.com/hypertable/hyperspace/pkg/store"

// NewBadgerMetrics returns a Prometheus-backed store.CacheMetrics, or nil if
// metrics are disabled. badger.Store treats a nil CacheMetrics as "don't
// sample", so callers can pass the result straight through unconditionally.
func NewBadgerMetrics() store.CacheMetrics {
	if !IsEnabled() || newPrometheusBadgerMetrics == nil {
		return nil
	}
	return newPrometheusBadgerMetrics()
}

// newPrometheusBadgerMetrics is set by pkg/metrics/prometheus/badger.go's
// init().
var newPrometheusBadgerMetrics func() store.CacheMetrics

// RegisterBadgerMetricsConstructor is called by pkg/metrics/prometheus to
// install its constructor.
func RegisterBadgerMetricsConstructor(constructor func() store.CacheMetrics) {
	newPrometheusBadgerMetrics = constructor
}
