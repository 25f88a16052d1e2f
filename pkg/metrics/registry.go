// Package metrics defines the metric interfaces consumed by pkg/gwcache,
// pkg/downloader, pkg/syncpipeline, and pkg/replication, plus the
// Prometheus-backed implementations in pkg/metrics/prometheus.
//
// Each component depends only on its narrow interface here, never on
// Prometheus directly, so metrics stay an optional, swappable concern: a
// component built with a nil metrics value collects nothing at zero
// overhead.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registryOnce sync.Once
	registry     *prometheus.Registry
	enabled      atomic.Bool
)

// InitRegistry enables metrics collection and creates the process-wide
// Prometheus registry. Safe to call multiple times; only the first call
// has effect.
func InitRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(prometheus.NewGoCollector())
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
	enabled.Store(true)
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return enabled.Load()
}

// GetRegistry returns the process-wide registry, initializing it if needed.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}
