package metrics

import "time"

// GWCacheMetrics is the metrics surface the on-disk block cache reports to.
// A nil GWCacheMetrics is valid everywhere below and means "collect nothing".
type GWCacheMetrics interface {
	ObserveWrite(bytes int64, duration time.Duration)
	ObserveRead(bytes int64, duration time.Duration, hit bool)
	RecordCacheSize(totalBytes uint64)
	RecordEviction(reason string, bytesFreed uint64)
	RecordBlockState(state string, delta int)
}

// NewGWCacheMetrics returns the registered Prometheus-backed implementation,
// or nil when metrics collection is disabled.
func NewGWCacheMetrics() GWCacheMetrics {
	if !IsEnabled() || newGWCacheMetricsImpl == nil {
		return nil
	}
	return newGWCacheMetricsImpl()
}

// newGWCacheMetricsImpl is set by pkg/metrics/prometheus's init() to avoid an
// import cycle (prometheus implementations import this package's
// interfaces; this package must not import prometheus implementations).
var newGWCacheMetricsImpl func() GWCacheMetrics

// RegisterGWCacheMetricsConstructor is called by pkg/metrics/prometheus.
func RegisterGWCacheMetricsConstructor(ctor func() GWCacheMetrics) {
	newGWCacheMetricsImpl = ctor
}
