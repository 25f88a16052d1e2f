package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/syndicate-project/gateway/pkg/metrics"
)

func init() {
	metrics.RegisterReplicationMetricsConstructor(newReplicationMetrics)
}

type replicationMetrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	vacuumOrphans  prometheus.Counter
	vacuumBytes    prometheus.Counter
	vacuumRuns     prometheus.Counter
}

func newReplicationMetrics() metrics.ReplicationMetrics {
	reg := metrics.GetRegistry()

	return &replicationMetrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "syndicate_replication_requests_total",
			Help: "Total replica requests by kind (put_block, put_manifest, delete) and outcome.",
		}, []string{"kind", "outcome"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syndicate_replication_duration_seconds",
			Help:    "Duration of a replica request against an RG transport.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "syndicate_replication_queue_depth",
			Help: "Current depth of the replica request queue.",
		}),
		vacuumOrphans: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "syndicate_replication_vacuum_orphans_deleted_total",
			Help: "Total orphan blocks/manifests deleted by the vacuumer.",
		}),
		vacuumBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "syndicate_replication_vacuum_bytes_reclaimed_total",
			Help: "Total bytes reclaimed by the vacuumer.",
		}),
		vacuumRuns: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "syndicate_replication_vacuum_runs_total",
			Help: "Total vacuum runs completed.",
		}),
	}
}

func (m *replicationMetrics) ObserveReplicaRequest(kind string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *replicationMetrics) RecordQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *replicationMetrics) RecordVacuumRun(orphansDeleted int, bytesReclaimed int64) {
	m.vacuumRuns.Inc()
	m.vacuumOrphans.Add(float64(orphansDeleted))
	if bytesReclaimed > 0 {
		m.vacuumBytes.Add(float64(bytesReclaimed))
	}
}
