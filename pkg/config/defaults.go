package config

import (
	"strings"
	"time"

	"github.com/syndicate-project/gateway/internal/bytesize"
)

// ApplyDefaults fills in unspecified configuration fields with sensible
// defaults after loading from file and environment.
func ApplyDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyCacheDefaults(&cfg.Cache)
	applyDownloaderDefaults(&cfg.Downloader)
	applySyncDefaults(&cfg.Sync)
	applyReplicationDefaults(&cfg.Replication)
	applyViewStoreDefaults(&cfg.ViewStore)
	applyMetricsDefaults(&cfg.Metrics)
	applyHTTPAPIDefaults(&cfg.HTTPAPI)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyCacheDefaults sets cache defaults. Path has no default: it is
// required and must be configured explicitly.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.HardLimit == 0 {
		cfg.HardLimit = bytesize.ByteSize(4 * bytesize.GiB)
	}
	if cfg.SoftLimit == 0 {
		// Leave headroom under the hard limit so eviction has room to work
		// before writers are forced to block.
		cfg.SoftLimit = bytesize.ByteSize(uint64(cfg.HardLimit) * 3 / 4)
	}
}

func applyDownloaderDefaults(cfg *DownloaderConfig) {
	if cfg.MaxConcurrentTransfers == 0 {
		cfg.MaxConcurrentTransfers = 16
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ManifestCacheEntries == 0 {
		cfg.ManifestCacheEntries = 10_000
	}
}

func applySyncDefaults(cfg *SyncConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.GCInterval == 0 {
		cfg.GCInterval = 5 * time.Minute
	}
}

func applyReplicationDefaults(cfg *ReplicationConfig) {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}
	if cfg.VacuumInterval == 0 {
		cfg.VacuumInterval = 10 * time.Minute
	}
	if cfg.S3.Enabled && cfg.S3.Prefix == "" {
		cfg.S3.Prefix = "syndicate/"
	}
}

func applyViewStoreDefaults(cfg *ViewStoreConfig) {
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.DSN == "" && cfg.Driver == "sqlite" {
		cfg.DSN = "view.db"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyHTTPAPIDefaults(cfg *HTTPAPIConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 8080
	}
}

// GetDefaultConfig returns a Config populated entirely with defaults, for
// use when no configuration file is found. Identity fields are left empty
// since they have no safe default and must be supplied by the operator.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
