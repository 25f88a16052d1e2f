package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/syndicate-project/gateway/internal/cli/health"
	"github.com/syndicate-project/gateway/pkg/gwcache"
	"github.com/syndicate-project/gateway/pkg/msclient"
	"github.com/syndicate-project/gateway/pkg/syncpipeline"
)

type fakeGateway struct {
	cacheStats     gwcache.Stats
	pending        int
	completed      int
	failed         int
	timing         msclient.Timing
	vacuumPending  int
	registeredFile int

	fsyncOutcome syncpipeline.Outcome
	fsyncErr     error
	vacuumCalled bool
}

func (f *fakeGateway) CacheStats() gwcache.Stats { return f.cacheStats }
func (f *fakeGateway) ReplicaQueueStats() (int, int, int) {
	return f.pending, f.completed, f.failed
}
func (f *fakeGateway) MSTiming() msclient.Timing  { return f.timing }
func (f *fakeGateway) VacuumPending() int         { return f.vacuumPending }
func (f *fakeGateway) RegisteredFileCount() int   { return f.registeredFile }
func (f *fakeGateway) FsyncFile(ctx context.Context, volumeID, fileID uint64) (syncpipeline.Outcome, error) {
	return f.fsyncOutcome, f.fsyncErr
}
func (f *fakeGateway) TriggerVacuum(ctx context.Context) { f.vacuumCalled = true }

func TestLiveness_ReturnsOK(t *testing.T) {
	start := time.Now().Add(-time.Minute)
	handler := newHealthHandler(start)
	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, w.Code)
	}

	var resp health.Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Data.Service != "syndicate-gateway" {
		t.Errorf("service = %q, want syndicate-gateway", resp.Data.Service)
	}
	if resp.Data.UptimeSec < 0 {
		t.Errorf("uptime_sec = %d, want non-negative", resp.Data.UptimeSec)
	}
}

func TestStatsHandler_Get(t *testing.T) {
	gw := &fakeGateway{
		cacheStats: gwcache.Stats{BlocksHeld: 10, SoftLimit: 100, HardLimit: 200, Written: 42},
		pending:    1, completed: 2, failed: 3,
		timing:         msclient.Timing{VolumeMS: 1.5, GatewayMS: 2.5, TotalMS: 4, ResolveMS: 0.5},
		vacuumPending:   7,
		registeredFile:  99,
	}
	handler := newStatsHandler(gw)
	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()

	handler.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, w.Code)
	}

	var resp statsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Cache.BlocksHeld != 10 || resp.Cache.Written != 42 {
		t.Errorf("cache stats = %+v", resp.Cache)
	}
	if resp.Replication.Pending != 1 || resp.Replication.VacuumPending != 7 {
		t.Errorf("replication stats = %+v", resp.Replication)
	}
	if resp.RegisteredFiles != 99 {
		t.Errorf("registered files = %d, want 99", resp.RegisteredFiles)
	}
}

func TestFsyncHandler_Trigger(t *testing.T) {
	gw := &fakeGateway{fsyncOutcome: syncpipeline.SyncDone}
	handler := newFsyncHandler(gw)

	r := newRouterForTest(gw)
	req := httptest.NewRequest("POST", "/files/1/42/fsync", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	_ = handler
}

func TestFsyncHandler_TriggerConflict(t *testing.T) {
	gw := &fakeGateway{fsyncErr: errors.New("not coordinator")}
	r := newRouterForTest(gw)

	req := httptest.NewRequest("POST", "/files/1/42/fsync", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestVacuumHandler_Trigger(t *testing.T) {
	gw := &fakeGateway{}
	handler := newVacuumHandler(gw)
	req := httptest.NewRequest("POST", "/vacuum", nil)
	w := httptest.NewRecorder()

	handler.Trigger(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected %d, got %d", http.StatusAccepted, w.Code)
	}
	if !gw.vacuumCalled {
		t.Error("expected TriggerVacuum to be called")
	}
}

func newRouterForTest(gw Gateway) http.Handler {
	return NewRouter(gw, time.Now(), false)
}
