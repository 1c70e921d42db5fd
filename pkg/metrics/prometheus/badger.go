package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hypertable/hyperspace/pkg/metrics"
	"github.com/hypertable/hyperspace/pkg/store"
)

func init() {
	metrics.RegisterBadgerMetricsConstructor(func() store.CacheMetrics { return newBadgerMetrics() })
}

// badgerMetrics is the Prometheus implementation of store.CacheMetrics,
// sampled periodically off BadgerDB's own block/index cache counters.
type badgerMetrics struct {
	cacheHitRatio *prometheus.GaugeVec
	cacheMisses   *prometheus.CounterVec
	cacheHits     *prometheus.CounterVec
}

func newBadgerMetrics() store.CacheMetrics {
	reg := metrics.GetRegistry()

	return &badgerMetrics{
		cacheHitRatio: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hyperspace_badger_cache_hit_ratio",
				Help: "BadgerDB cache hit ratio (0.0 to 1.0) by cache type",
			},
			[]string{"cache_type"}, // "block", "index"
		),
		cacheMisses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hyperspace_badger_cache_misses_total",
				Help: "Total number of BadgerDB cache misses by cache type",
			},
			[]string{"cache_type"},
		),
		cacheHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hyperspace_badger_cache_hits_total",
				Help: "Total number of BadgerDB cache hits by cache type",
			},
			[]string{"cache_type"},
		),
	}
}

func (m *badgerMetrics) RecordCacheHitRatio(cacheType string, ratio float64) {
	m.cacheHitRatio.WithLabelValues(cacheType).Set(ratio)
}

func (m *badgerMetrics) RecordCacheHits(cacheType string, n uint64) {
	m.cacheHits.WithLabelValues(cacheType).Add(float64(n))
}

func (m *badgerMetrics) RecordCacheMisses(cacheType string, n uint64) {
	m.cacheMisses.WithLabelValues(cacheType).Add(float64(n))
}
