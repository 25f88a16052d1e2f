package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/syndicate-project/gateway/pkg/metrics"
)

func init() {
	metrics.RegisterDownloaderMetricsConstructor(newDownloaderMetrics)
}

type downloaderMetrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	bytes          *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	manifestResult *prometheus.CounterVec
}

func newDownloaderMetrics() metrics.DownloaderMetrics {
	reg := metrics.GetRegistry()

	return &downloaderMetrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "syndicate_downloader_requests_total",
			Help: "Total number of downloads by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syndicate_downloader_duration_seconds",
			Help:    "Duration of a single block/manifest download.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		bytes: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syndicate_downloader_bytes",
			Help:    "Bytes transferred per download.",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 10),
		}, []string{"kind"}),
		inFlight: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "syndicate_downloader_in_flight",
			Help: "Current number of in-flight downloads.",
		}),
		manifestResult: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "syndicate_downloader_manifest_cache_total",
			Help: "Manifest cache lookups by hit/miss.",
		}, []string{"status"}),
	}
}

func (m *downloaderMetrics) ObserveDownload(kind string, bytes int64, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(duration.Seconds())
	if bytes > 0 {
		m.bytes.WithLabelValues(kind).Observe(float64(bytes))
	}
}

func (m *downloaderMetrics) RecordInFlight(delta int) {
	m.inFlight.Add(float64(delta))
}

func (m *downloaderMetrics) RecordManifestCacheResult(hit bool) {
	status := "miss"
	if hit {
		status = "hit"
	}
	m.manifestResult.WithLabelValues(status).Inc()
}
