package store

// CacheMetrics receives periodic BadgerDB block/index cache statistics from
// an engine that exposes them. A nil CacheMetrics is a valid, inert value;
// implementations backed by it must accept a nil receiver.
type CacheMetrics interface {
	RecordCacheHitRatio(cacheType string, ratio float64)
	RecordCacheHits(cacheType string, n uint64)
	RecordCacheMisses(cacheType string, n uint64)
}
