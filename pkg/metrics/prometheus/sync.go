package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/syndicate-project/gateway/pkg/metrics"
)

func init() {
	metrics.RegisterSyncMetricsConstructor(newSyncMetrics)
}

type syncMetrics struct {
	phaseDuration *prometheus.HistogramVec
	queueDepth    prometheus.Gauge
	volumeTime    prometheus.Histogram
	gatewayTime   prometheus.Histogram
	resolveTime   prometheus.Histogram
	totalTime     prometheus.Histogram
}

func newSyncMetrics() metrics.SyncMetrics {
	reg := metrics.GetRegistry()

	return &syncMetrics{
		phaseDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syndicate_sync_phase_duration_seconds",
			Help:    "Duration of each sync pipeline phase, by phase number and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase", "outcome"}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "syndicate_sync_queue_depth",
			Help: "Current depth of the metadata-sync ordering queue.",
		}),
		// Named after the X-Volume-Time / X-Gateway-Time / X-Resolve-Time /
		// X-Total-Time RPC timing headers.
		volumeTime: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "syndicate_msclient_volume_time_seconds",
			Help:    "Server-reported volume-lookup time component of an MS RPC.",
			Buckets: prometheus.DefBuckets,
		}),
		gatewayTime: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "syndicate_msclient_gateway_time_seconds",
			Help:    "Server-reported gateway-auth time component of an MS RPC.",
			Buckets: prometheus.DefBuckets,
		}),
		resolveTime: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "syndicate_msclient_resolve_time_seconds",
			Help:    "Server-reported path-resolution time component of an MS RPC.",
			Buckets: prometheus.DefBuckets,
		}),
		totalTime: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "syndicate_msclient_total_time_seconds",
			Help:    "Server-reported total processing time of an MS RPC.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *syncMetrics) ObservePhase(phase int, outcome string, duration time.Duration) {
	m.phaseDuration.WithLabelValues(strconv.Itoa(phase), outcome).Observe(duration.Seconds())
}

func (m *syncMetrics) RecordQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *syncMetrics) ObserveRPCTiming(volumeMS, gatewayMS, resolveMS, totalMS float64) {
	m.volumeTime.Observe(volumeMS / 1000)
	m.gatewayTime.Observe(gatewayMS / 1000)
	m.resolveTime.Observe(resolveMS / 1000)
	m.totalTime.Observe(totalMS / 1000)
}
