package metrics

// BadgerIndexMetrics is the metrics surface the block cache's badger-backed
// LRU index reports to. A nil BadgerIndexMetrics is valid everywhere below
// and means "collect nothing".
type BadgerIndexMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
	RecordCacheHitRatio(cacheType string, ratio float64)
}

// NewBadgerIndexMetrics returns the registered Prometheus-backed
// implementation, or nil when metrics collection is disabled.
func NewBadgerIndexMetrics() BadgerIndexMetrics {
	if !IsEnabled() || newBadgerIndexMetricsImpl == nil {
		return nil
	}
	return newBadgerIndexMetricsImpl()
}

// newBadgerIndexMetricsImpl is set by pkg/metrics/prometheus's init() to
// avoid an import cycle (prometheus implementations import this package's
// interfaces; this package must not import prometheus implementations).
var newBadgerIndexMetricsImpl func() BadgerIndexMetrics

// RegisterBadgerIndexMetricsConstructor is called by pkg/metrics/prometheus.
func RegisterBadgerIndexMetricsConstructor(ctor func() BadgerIndexMetrics) {
	newBadgerIndexMetricsImpl = ctor
}
