package metrics

import "time"

// DownloaderMetrics is the metrics surface the concurrent block/manifest
// downloader reports to.
type DownloaderMetrics interface {
	ObserveDownload(kind string, bytes int64, duration time.Duration, err error)
	RecordInFlight(delta int)
	RecordManifestCacheResult(hit bool)
}

// NewDownloaderMetrics returns the registered implementation, or nil when
// metrics collection is disabled.
func NewDownloaderMetrics() DownloaderMetrics {
	if !IsEnabled() || newDownloaderMetricsImpl == nil {
		return nil
	}
	return newDownloaderMetricsImpl()
}

var newDownloaderMetricsImpl func() DownloaderMetrics

// RegisterDownloaderMetricsConstructor is called by pkg/metrics/prometheus.
func RegisterDownloaderMetricsConstructor(ctor func() DownloaderMetrics) {
	newDownloaderMetricsImpl = ctor
}
