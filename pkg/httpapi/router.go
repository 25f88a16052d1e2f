// Package httpapi is the gateway's operator-facing HTTP surface: health
// probes, a stats snapshot, Prometheus metrics, a JSON Schema endpoint
// for the wire messages operators diagnose by hand, and the forced-fsync
// and manual-vacuum operator actions. No POSIX
// operation reaches a client through it; it exists purely for the
// humans and dashboards running the process.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/metrics"
)

// Gateway is the subset of *gateway.Gateway this surface needs. Declared
// here rather than importing pkg/gateway directly so pkg/gateway can
// import pkg/httpapi's handler constructors without a cycle; NewRouter
// takes the concrete type from the caller instead.
type Gateway interface {
	StatsProvider
	FsyncController
}

// NewRouter builds the chi router serving /healthz, /stats, /metrics,
// /schema, POST /files/{volumeID}/{fileID}/fsync and POST /vacuum.
// metricsEnabled controls whether /metrics is mounted at all, matching
// config.MetricsConfig.Enabled.
func NewRouter(gw Gateway, startTime time.Time, metricsEnabled bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := newHealthHandler(startTime)
	r.Get("/healthz", health.Liveness)

	stats := newStatsHandler(gw)
	r.Get("/stats", stats.Get)

	r.Get("/schema", serveSchema)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	r.Route("/files/{volumeID}/{fileID}", func(r chi.Router) {
		fsync := newFsyncHandler(gw)
		r.Post("/fsync", fsync.Trigger)
	})

	vacuum := newVacuumHandler(gw)
	r.Post("/vacuum", vacuum.Trigger)

	return r
}

// requestLogger logs each request the way the teacher's own control-plane
// router does: start at DEBUG, completion at INFO (DEBUG for healthz, to
// avoid drowning logs in k8s probe traffic).
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		fields := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}
		if r.URL.Path == "/healthz" {
			logger.Debug("httpapi request completed", fields...)
		} else {
			logger.Info("httpapi request completed", fields...)
		}
	})
}
