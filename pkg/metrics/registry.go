// Package metrics provides the facade domain packages use to obtain
// Prometheus-backed metrics implementations without importing the
// prometheus client library themselves. A package here declares the
// interface its concrete component expects (see session.go); the
// implementation lives in pkg/metrics/prometheus and registers itself
// into the facade at init time, avoiding an import cycle.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var registry *prometheus.Registry

// InitRegistry creates and installs the process-wide metrics registry.
// Call this before constructing any component that asks this package for
// its metrics implementation; components constructed beforehand get a
// noop implementation permanently, since IsEnabled is checked once at
// construction time.
func InitRegistry() *prometheus.Registry {
	registry = prometheus.NewRegistry()
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return registry != nil
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}
