package msclient

import (
	"context"
	"sync"
	"time"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/cert"
)

// view is the client's held volume/certificate state, guarded by
// mu. The reload goroutine is the sole writer; readers take a
// read-lock snapshot.
type view struct {
	mu sync.RWMutex

	volume cert.Volume

	ugCerts map[uint64]cert.GatewayCert
	rgCerts map[uint64]cert.GatewayCert
	agCerts map[uint64]cert.GatewayCert
}

func newView() *view {
	return &view{
		ugCerts: make(map[uint64]cert.GatewayCert),
		rgCerts: make(map[uint64]cert.GatewayCert),
		agCerts: make(map[uint64]cert.GatewayCert),
	}
}

// Volume returns a copy of the currently held volume record.
func (v *view) Volume() cert.Volume {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.volume
}

// CertByID looks up a held certificate across all three role buckets.
func (v *view) CertByID(gatewayID uint64) (cert.GatewayCert, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if c, ok := v.ugCerts[gatewayID]; ok {
		return c, true
	}
	if c, ok := v.rgCerts[gatewayID]; ok {
		return c, true
	}
	if c, ok := v.agCerts[gatewayID]; ok {
		return c, true
	}
	return cert.GatewayCert{}, false
}

// CertsByType returns a copy of the certificate bucket for the given
// gateway role.
func (v *view) CertsByType(t cert.GatewayType) []cert.GatewayCert {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var src map[uint64]cert.GatewayCert
	switch t {
	case cert.GatewayTypeUG:
		src = v.ugCerts
	case cert.GatewayTypeRG:
		src = v.rgCerts
	case cert.GatewayTypeAG:
		src = v.agCerts
	}

	out := make([]cert.GatewayCert, 0, len(src))
	for _, c := range src {
		out = append(out, c)
	}
	return out
}

// applyVolume replaces the held volume record.
func (v *view) applyVolume(vol cert.Volume) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.volume = vol
}

// mergeCerts installs newCerts into the appropriate bucket, rejecting (and
// logging) any whose Version regresses relative to the held copy.
func (v *view) mergeCerts(newCerts []cert.GatewayCert) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, c := range newCerts {
		bucket := v.bucketFor(c.GatewayType)
		if bucket == nil {
			continue
		}
		if existing, ok := bucket[c.GatewayID]; ok && c.Version < existing.Version {
			logger.Warn("msclient: rejecting regressed certificate version",
				logger.Operation("view_reload"))
			continue
		}
		bucket[c.GatewayID] = c
	}
}

func (v *view) bucketFor(t cert.GatewayType) map[uint64]cert.GatewayCert {
	switch t {
	case cert.GatewayTypeUG:
		return v.ugCerts
	case cert.GatewayTypeRG:
		return v.rgCerts
	case cert.GatewayTypeAG:
		return v.agCerts
	default:
		return nil
	}
}

// ViewReloader periodically refetches the held volume and certificate
// view, and can be nudged to reload immediately via Kick (the client
// does so on a failed verify_gateway_message certificate lookup).
type ViewReloader struct {
	client *Client
	freq   time.Duration

	kick     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newViewReloader(c *Client, freq time.Duration) *ViewReloader {
	if freq <= 0 {
		freq = 30 * time.Second
	}
	return &ViewReloader{
		client: c,
		freq:   freq,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Start launches the reload goroutine, doing one synchronous reload first
// so the client has a usable view before serving any request. If a view
// store is configured, it seeds from the last persisted view first so a
// restart still has a usable (if momentarily stale) view even if the
// first network reload is slow or fails.
func (r *ViewReloader) Start(ctx context.Context) error {
	r.client.seedFromStore(ctx)

	if err := r.reload(ctx); err != nil {
		return err
	}

	r.wg.Add(1)
	go r.run(ctx)
	return nil
}

// Kick requests an out-of-cycle reload, coalescing with any already
// pending request.
func (r *ViewReloader) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Stop halts the reload goroutine and waits for it to exit.
func (r *ViewReloader) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *ViewReloader) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.freq)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		case <-r.kick:
		}

		if err := r.reload(ctx); err != nil {
			logger.Warn("msclient: view reload failed", logger.Err(err))
		}
	}
}

// reload fetches GET /VOLUME/{id} once, applies the returned volume
// record only when volume_version changed (or none is held yet), and
// merges every returned certificate when cert_version changed (or none
// is held yet). Certificates are not fetched individually.
func (r *ViewReloader) reload(ctx context.Context) error {
	current := r.client.view.Volume()

	vm, err := r.client.getVolumeMetadata(ctx)
	if err != nil {
		return err
	}

	if err := cert.Verify(r.client.volumePublicKey, &vm.Volume); err != nil {
		return ErrSignatureInvalid
	}

	if vm.Volume.VolumeVersion != current.VolumeVersion || current.VolumeVersion == 0 {
		r.client.view.applyVolume(vm.Volume)
	}

	if vm.Volume.CertVersion != current.CertVersion || current.CertVersion == 0 {
		all := make([]cert.GatewayCert, 0, len(vm.UGCerts)+len(vm.RGCerts)+len(vm.AGCerts))
		all = append(all, vm.UGCerts...)
		all = append(all, vm.RGCerts...)
		all = append(all, vm.AGCerts...)
		r.client.view.mergeCerts(all)
	}

	r.client.persistView(ctx)
	return nil
}
