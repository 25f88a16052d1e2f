package metrics

import "time"

// ReplicationMetrics is the metrics surface the replica client and
// vacuumer report to.
type ReplicationMetrics interface {
	ObserveReplicaRequest(kind string, duration time.Duration, err error)
	RecordQueueDepth(depth int)
	RecordVacuumRun(orphansDeleted int, bytesReclaimed int64)
}

// NewReplicationMetrics returns the registered implementation, or nil when
// metrics collection is disabled.
func NewReplicationMetrics() ReplicationMetrics {
	if !IsEnabled() || newReplicationMetricsImpl == nil {
		return nil
	}
	return newReplicationMetricsImpl()
}

var newReplicationMetricsImpl func() ReplicationMetrics

// RegisterReplicationMetricsConstructor is called by pkg/metrics/prometheus.
func RegisterReplicationMetricsConstructor(ctor func() ReplicationMetrics) {
	newReplicationMetricsImpl = ctor
}
