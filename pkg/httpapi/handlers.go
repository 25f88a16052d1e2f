package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/syndicate-project/gateway/internal/cli/health"
	"github.com/syndicate-project/gateway/pkg/gwcache"
	"github.com/syndicate-project/gateway/pkg/msclient"
	"github.com/syndicate-project/gateway/pkg/syncpipeline"
)

// StatsProvider is the read-only subset of *gateway.Gateway the /stats
// endpoint reports.
type StatsProvider interface {
	CacheStats() gwcache.Stats
	ReplicaQueueStats() (pending, completed, failed int)
	MSTiming() msclient.Timing
	VacuumPending() int
	RegisteredFileCount() int
}

// FsyncController is the subset of *gateway.Gateway the forced-sync and
// manual-vacuum operator actions drive.
type FsyncController interface {
	FsyncFile(ctx context.Context, volumeID, fileID uint64) (syncpipeline.Outcome, error)
	TriggerVacuum(ctx context.Context)
}

type healthHandler struct {
	startTime time.Time
}

func newHealthHandler(startTime time.Time) *healthHandler {
	return &healthHandler{startTime: startTime}
}

// Liveness handles GET /healthz, matching the teacher's own liveness
// probe response shape so a single internal/cli/health.Response decodes
// both services' output.
func (h *healthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	resp := health.Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	resp.Data.Service = "syndicate-gateway"
	resp.Data.StartedAt = h.startTime.UTC().Format(time.RFC3339)
	resp.Data.Uptime = uptime.Round(time.Second).String()
	resp.Data.UptimeSec = int64(uptime.Seconds())
	writeJSON(w, http.StatusOK, resp)
}

type statsHandler struct {
	gw StatsProvider
}

func newStatsHandler(gw StatsProvider) *statsHandler {
	return &statsHandler{gw: gw}
}

// statsResponse is the /stats payload: one counter block per subsystem
// the operator might need to diagnose a stuck sync or a filling cache.
type statsResponse struct {
	Cache struct {
		BlocksHeld int   `json:"blocks_held"`
		SoftLimit  int   `json:"soft_limit"`
		HardLimit  int   `json:"hard_limit"`
		Written    int64 `json:"written"`
	} `json:"cache"`
	Replication struct {
		Pending       int `json:"pending"`
		Completed     int `json:"completed"`
		Failed        int `json:"failed"`
		VacuumPending int `json:"vacuum_pending"`
	} `json:"replication"`
	MS struct {
		VolumeMS  float64 `json:"volume_ms"`
		GatewayMS float64 `json:"gateway_ms"`
		TotalMS   float64 `json:"total_ms"`
		ResolveMS float64 `json:"resolve_ms"`
	} `json:"ms"`
	RegisteredFiles int `json:"registered_files"`
}

func (h *statsHandler) Get(w http.ResponseWriter, r *http.Request) {
	cs := h.gw.CacheStats()
	pending, completed, failed := h.gw.ReplicaQueueStats()
	timing := h.gw.MSTiming()

	var resp statsResponse
	resp.Cache.BlocksHeld = cs.BlocksHeld
	resp.Cache.SoftLimit = cs.SoftLimit
	resp.Cache.HardLimit = cs.HardLimit
	resp.Cache.Written = cs.Written
	resp.Replication.Pending = pending
	resp.Replication.Completed = completed
	resp.Replication.Failed = failed
	resp.Replication.VacuumPending = h.gw.VacuumPending()
	resp.MS.VolumeMS = timing.VolumeMS
	resp.MS.GatewayMS = timing.GatewayMS
	resp.MS.TotalMS = timing.TotalMS
	resp.MS.ResolveMS = timing.ResolveMS
	resp.RegisteredFiles = h.gw.RegisteredFileCount()

	writeJSON(w, http.StatusOK, resp)
}

type fsyncHandler struct {
	gw FsyncController
}

func newFsyncHandler(gw FsyncController) *fsyncHandler {
	return &fsyncHandler{gw: gw}
}

// Trigger handles POST /files/{volumeID}/{fileID}/fsync: the operator
// CLI's forced-sync action. Driving Fsync manually is also how an
// operator forces a coordinator handoff for a file this gateway does not
// currently coordinate — metadataSync's own PREPARE/takeover logic runs
// exactly as it would from a real write.
func (h *fsyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	volumeID, err := strconv.ParseUint(chi.URLParam(r, "volumeID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid volume id", http.StatusBadRequest)
		return
	}
	fileID, err := strconv.ParseUint(chi.URLParam(r, "fileID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return
	}

	outcome, err := h.gw.FsyncFile(r.Context(), volumeID, fileID)
	if err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome.String()})
}

type vacuumHandler struct {
	gw FsyncController
}

func newVacuumHandler(gw FsyncController) *vacuumHandler {
	return &vacuumHandler{gw: gw}
}

// Trigger handles POST /vacuum: the operator CLI's manual vacuum action,
// running one reconcile pass immediately instead of waiting for the
// background vacuumer's own interval.
func (h *vacuumHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.gw.TriggerVacuum(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "vacuum triggered"})
}
