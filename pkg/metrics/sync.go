package metrics

import "time"

// SyncMetrics is the metrics surface the write/sync pipeline reports to,
// one observation per fsync phase.
type SyncMetrics interface {
	ObservePhase(phase int, outcome string, duration time.Duration)
	RecordQueueDepth(depth int)
	ObserveRPCTiming(volumeMS, gatewayMS, resolveMS, totalMS float64)
}

// NewSyncMetrics returns the registered implementation, or nil when metrics
// collection is disabled.
func NewSyncMetrics() SyncMetrics {
	if !IsEnabled() || newSyncMetricsImpl == nil {
		return nil
	}
	return newSyncMetricsImpl()
}

var newSyncMetricsImpl func() SyncMetrics

// RegisterSyncMetricsConstructor is called by pkg/metrics/prometheus.
func RegisterSyncMetricsConstructor(ctor func() SyncMetrics) {
	newSyncMetricsImpl = ctor
}
