package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/syndicate-project/gateway/pkg/metrics"
)

func init() {
	metrics.RegisterGWCacheMetricsConstructor(newGWCacheMetrics)
}

type gwCacheMetrics struct {
	writeOps       prometheus.Counter
	writeBytes     prometheus.Histogram
	writeDuration  prometheus.Histogram
	readOps        *prometheus.CounterVec
	readBytes      prometheus.Histogram
	readDuration   prometheus.Histogram
	totalSize      prometheus.Gauge
	evictions      *prometheus.CounterVec
	evictedBytes   *prometheus.CounterVec
	blockStateGaug *prometheus.GaugeVec
}

func newGWCacheMetrics() metrics.GWCacheMetrics {
	reg := metrics.GetRegistry()

	return &gwCacheMetrics{
		writeOps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "syndicate_gwcache_write_operations_total",
			Help: "Total number of block cache write operations.",
		}),
		writeBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "syndicate_gwcache_write_bytes",
			Help:    "Distribution of bytes written per cache write.",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 10),
		}),
		writeDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "syndicate_gwcache_write_duration_seconds",
			Help:    "Duration of block cache writes, including writeback queue wait.",
			Buckets: prometheus.DefBuckets,
		}),
		readOps: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "syndicate_gwcache_read_operations_total",
			Help: "Total number of block cache reads by hit/miss status.",
		}, []string{"status"}),
		readBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "syndicate_gwcache_read_bytes",
			Help:    "Distribution of bytes served per cache read.",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 10),
		}),
		readDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "syndicate_gwcache_read_duration_seconds",
			Help:    "Duration of block cache reads.",
			Buckets: prometheus.DefBuckets,
		}),
		totalSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "syndicate_gwcache_total_size_bytes",
			Help: "Current total size of cached block data on disk.",
		}),
		evictions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "syndicate_gwcache_evictions_total",
			Help: "Total number of blocks evicted by reason.",
		}, []string{"reason"}),
		evictedBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "syndicate_gwcache_evicted_bytes_total",
			Help: "Total bytes freed by eviction, by reason.",
		}, []string{"reason"}),
		blockStateGaug: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "syndicate_gwcache_blocks",
			Help: "Current number of cached blocks by state.",
		}, []string{"state"}),
	}
}

func (m *gwCacheMetrics) ObserveWrite(bytes int64, duration time.Duration) {
	m.writeOps.Inc()
	if bytes > 0 {
		m.writeBytes.Observe(float64(bytes))
	}
	m.writeDuration.Observe(duration.Seconds())
}

func (m *gwCacheMetrics) ObserveRead(bytes int64, duration time.Duration, hit bool) {
	status := "miss"
	if hit {
		status = "hit"
	}
	m.readOps.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.readBytes.Observe(float64(bytes))
	}
	m.readDuration.Observe(duration.Seconds())
}

func (m *gwCacheMetrics) RecordCacheSize(totalBytes uint64) {
	m.totalSize.Set(float64(totalBytes))
}

func (m *gwCacheMetrics) RecordEviction(reason string, bytesFreed uint64) {
	m.evictions.WithLabelValues(reason).Inc()
	m.evictedBytes.WithLabelValues(reason).Add(float64(bytesFreed))
}

func (m *gwCacheMetrics) RecordBlockState(state string, delta int) {
	m.blockStateGaug.WithLabelValues(state).Add(float64(delta))
}
