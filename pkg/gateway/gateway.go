// Package gateway wires every other package into one running process: it
// owns the block cache, the MS client, the downloader, the replica queue
// and GC/vacuumer, the coordinator client and server, and the write/sync
// pipeline, and derives their cross-cutting dependencies (target
// resolution, coordinator lookup, certificate verification) from the MS
// client's held certificate view.
package gateway

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/pkg/cert"
	"github.com/syndicate-project/gateway/pkg/config"
	"github.com/syndicate-project/gateway/pkg/coordinator"
	"github.com/syndicate-project/gateway/pkg/downloader"
	"github.com/syndicate-project/gateway/pkg/driver"
	"github.com/syndicate-project/gateway/pkg/gwcache"
	"github.com/syndicate-project/gateway/pkg/metrics"
	_ "github.com/syndicate-project/gateway/pkg/metrics/prometheus"
	"github.com/syndicate-project/gateway/pkg/msclient"
	"github.com/syndicate-project/gateway/pkg/msclient/viewstore"
	"github.com/syndicate-project/gateway/pkg/replication"
	"github.com/syndicate-project/gateway/pkg/replication/store/s3"
	"github.com/syndicate-project/gateway/pkg/syncpipeline"
)

// Gateway is one running syndicate-gateway process: every long-lived
// dependency plus the goroutines that drive them. Construct with New,
// then Start; Stop tears down in reverse order.
type Gateway struct {
	cfg *config.Config

	selfGatewayID uint64
	volumeID      uint64

	msClient     *msclient.Client
	viewStore    *viewstore.Store
	cache        *gwcache.Cache
	downloader   *downloader.Downloader
	replicaQueue *replication.Queue
	gc           *replication.GC
	vacuumer     *replication.Vacuumer
	coordClient  *coordinator.Client
	coordServer  *coordinator.Server
	pipeline      *syncpipeline.Pipeline
	registry      *fileRegistry
	driver        driver.Driver
	manifestCache *downloader.ManifestCache

	httpTransport *replication.HTTPTransport
	s3Transport   *s3.Transport

	serveOnce sync.Once
}

// New constructs every dependency from cfg but starts nothing; call Start
// to begin serving. drv may be nil, meaning no driver/closure transform
// layer is active for this volume.
func New(cfg *config.Config, drv driver.Driver) (*Gateway, error) {
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})

	privKeyPEM, err := os.ReadFile(cfg.Identity.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("gateway: read private key: %w", err)
	}
	privateKey, err := cert.ParsePrivateKeyPEM(privKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse private key: %w", err)
	}

	volPubPEM, err := os.ReadFile(cfg.Identity.VolumePublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("gateway: read volume public key: %w", err)
	}
	volumePublicKey, err := cert.ParsePublicKeyPEM(volPubPEM)
	if err != nil {
		return nil, fmt.Errorf("gateway: parse volume public key: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	auth, err := newFileAuthenticator(cfg.Identity.SessionPasswordFile)
	if err != nil {
		return nil, fmt.Errorf("gateway: session authenticator: %w", err)
	}

	viewStore, err := viewstore.Open(viewstore.Options{
		Driver: cfg.ViewStore.Driver,
		DSN:    cfg.ViewStore.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: open view store: %w", err)
	}

	msClient, err := msclient.New(msclient.Options{
		BaseURL:         cfg.Identity.MSURL,
		GatewayType:     cfg.Identity.GatewayType,
		GatewayID:       cfg.Identity.GatewayID,
		VolumeID:        cfg.Identity.VolumeID,
		PrivateKey:      privateKey,
		VolumePublicKey: volumePublicKey,
		Authenticator:   auth,
		ViewStore:       viewStore,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: build ms client: %w", err)
	}

	cache, err := gwcache.Open(gwcache.Options{
		Root:          cfg.Cache.Path,
		SoftLimit:     int(cfg.Cache.SoftLimit),
		HardLimit:     int(cfg.Cache.HardLimit),
		Metrics:       metrics.NewGWCacheMetrics(),
		BadgerMetrics: metrics.NewBadgerIndexMetrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: open block cache: %w", err)
	}

	dl := downloader.New(downloader.Options{
		MaxConcurrentTransfers: cfg.Downloader.MaxConcurrentTransfers,
		RequestTimeout:         cfg.Downloader.RequestTimeout,
		Metrics:                metrics.NewDownloaderMetrics(),
	})

	manifestCacheEntries := cfg.Downloader.ManifestCacheEntries
	if manifestCacheEntries <= 0 {
		manifestCacheEntries = 10_000
	}
	manifestCache, err := downloader.NewManifestCache(int64(manifestCacheEntries))
	if err != nil {
		return nil, fmt.Errorf("gateway: build manifest cache: %w", err)
	}

	g := &Gateway{
		cfg:           cfg,
		selfGatewayID: cfg.Identity.GatewayID,
		volumeID:      cfg.Identity.VolumeID,
		msClient:      msClient,
		viewStore:     viewStore,
		cache:         cache,
		downloader:    dl,
		registry:      newFileRegistry(),
		driver:        drv,
		manifestCache: manifestCache,
	}

	if cfg.Replication.S3.Enabled {
		g.s3Transport, err = s3.NewFromConfig(context.Background(), s3.Config{
			Bucket:    cfg.Replication.S3.Bucket,
			Region:    cfg.Replication.S3.Region,
			Endpoint:  cfg.Replication.S3.Endpoint,
			KeyPrefix: cfg.Replication.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gateway: build s3 replica transport: %w", err)
		}
	}
	g.httpTransport = replication.NewHTTPTransport(g.targetLookup, nil)

	g.replicaQueue = replication.NewQueue(g.transportResolver, metrics.NewReplicationMetrics(), replication.Config{
		QueueSize: cfg.Replication.QueueSize,
		Workers:   cfg.Replication.Workers,
	})
	g.vacuumer = replication.NewVacuumer(g.replicaQueue, msClient, g, cfg.Replication.VacuumInterval, metrics.NewReplicationMetrics())
	g.gc = replication.NewGC(g.replicaQueue, driver.Veto(context.Background(), drv), g.vacuumer)

	g.coordClient = coordinator.NewClient(g.coordinatorLookup, privateKey, g.selfGatewayID, nil)

	g.pipeline = syncpipeline.New(g.selfGatewayID, cfg.Identity.BlockSize, cache, g.replicaQueue, g.gc, msClient, g.coordClient, g.targetResolver, metrics.NewSyncMetrics())
	g.pipeline.SetFileLookup(g.registry.Lookup)

	g.coordServer = coordinator.NewServer(g.pipeline, g.certResolver(), privateKey)

	return g, nil
}

// ReplicateOrphan implements replication.OrphanReplicator by delegating to
// the sync pipeline, the only component with cache access.
func (g *Gateway) ReplicateOrphan(ctx context.Context, e replication.VacuumLogEntry) error {
	return g.pipeline.ReplicateOrphan(ctx, e)
}

// CoordinatorServer exposes the coordinator HTTP handler for the operator
// surface to mount.
func (g *Gateway) CoordinatorServer() http.Handler { return g.coordServer }

// Registry exposes the file registry for the operator surface's
// introspection endpoints (/stats).
func (g *Gateway) Registry() *fileRegistry { return g.registry }

// Pipeline exposes the sync pipeline for the operator surface's manual
// fsync/truncate endpoints.
func (g *Gateway) Pipeline() *syncpipeline.Pipeline { return g.pipeline }

// Downloader exposes the downloader for read-path wiring outside this
// package (the FUSE/NFS front end is out of scope here; httpapi's test
// endpoints use it directly).
func (g *Gateway) Downloader() *downloader.Downloader { return g.downloader }

// Cache exposes the block cache for the operator surface's /stats
// endpoint.
func (g *Gateway) Cache() *gwcache.Cache { return g.cache }

// ReplicaQueueStats exposes cumulative replica request counters for the
// operator surface's /stats endpoint.
func (g *Gateway) ReplicaQueueStats() (pending, completed, failed int) {
	return g.replicaQueue.Stats()
}

// CacheStats exposes block cache occupancy for the operator surface's
// /stats endpoint.
func (g *Gateway) CacheStats() gwcache.Stats { return g.cache.Stats() }

// RegisteredFileCount reports how many files the in-memory registry
// currently holds, for the operator surface's /stats endpoint.
func (g *Gateway) RegisteredFileCount() int { return g.registry.Len() }

// MSTiming exposes the most recently observed MS response timing
// breakdown for the operator surface's /stats endpoint.
func (g *Gateway) MSTiming() msclient.Timing { return g.msClient.LastTiming() }

// VacuumPending reports the vacuumer's in-memory retry backlog size, for
// the operator surface's /stats endpoint.
func (g *Gateway) VacuumPending() int { return g.vacuumer.Pending() }

// TriggerVacuum runs one vacuum reconcile pass immediately rather than
// waiting for the next scheduled tick, for the operator CLI's manual
// vacuum trigger.
func (g *Gateway) TriggerVacuum(ctx context.Context) { g.vacuumer.Trigger(ctx) }

// FsyncFile looks up fileID on volumeID in the file registry and runs it
// through the sync pipeline, for the operator CLI's forced sync/
// coordinator-handoff action: if this gateway is not the file's current
// coordinator, Fsync's metadata-sync phase naturally drives the
// PREPARE/takeover exchange that makes it one.
func (g *Gateway) FsyncFile(ctx context.Context, volumeID, fileID uint64) (syncpipeline.Outcome, error) {
	f, ok := g.registry.Lookup(volumeID, fileID)
	if !ok {
		return syncpipeline.Outcome{}, fmt.Errorf("gateway: file %d/%d not registered", volumeID, fileID)
	}
	return g.pipeline.Fsync(ctx, f)
}

// FetchManifest downloads and parses the manifest at url, running it
// through the active driver's read transform first when one is
// configured (an AG's decompression/decryption step). maxLen bounds the
// raw download size; mtimeHint, when non-empty, lets repeated fetches of
// an unchanged manifest skip re-parsing.
func (g *Gateway) FetchManifest(ctx context.Context, url string, maxLen int64, mtimeHint string) (*downloader.ManifestMsg, error) {
	hook := driver.ReadHook(ctx, g.driver)
	return downloader.DownloadManifest(g.downloader, g.manifestCache, url, maxLen, mtimeHint, hook)
}

// Driver exposes the optional driver/closure transform layer.
func (g *Gateway) Driver() driver.Driver { return g.driver }

// Start launches every background goroutine in dependency order: the MS
// client's view loader and pending-update uploader, the replica queue
// workers, then the vacuumer's startup reconciliation pass. It blocks
// until ctx is cancelled, then runs shutdown before returning. Idempotent:
// a second call blocks on the same ctx without re-launching anything.
func (g *Gateway) Start(ctx context.Context) error {
	var startErr error
	g.serveOnce.Do(func() {
		if err := g.msClient.Start(ctx); err != nil {
			startErr = fmt.Errorf("gateway: start ms client: %w", err)
			return
		}
		g.replicaQueue.Start(ctx)
		if err := g.vacuumer.Start(ctx); err != nil {
			startErr = fmt.Errorf("gateway: start vacuumer: %w", err)
			return
		}
	})
	if startErr != nil {
		return startErr
	}

	<-ctx.Done()
	g.shutdown()
	return ctx.Err()
}

// Stop requests a graceful shutdown, bounded by cfg.ShutdownTimeout.
func (g *Gateway) Stop(ctx context.Context) error {
	timeout := g.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	done := make(chan struct{})
	go func() {
		g.shutdown()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("gateway: shutdown timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) shutdown() {
	g.vacuumer.Stop()
	g.replicaQueue.Stop(5 * time.Second)
	g.msClient.Stop()
	if err := g.cache.Close(); err != nil {
		logger.Error("gateway: close block cache", logger.Err(err))
	}
	if err := g.viewStore.Close(); err != nil {
		logger.Error("gateway: close view store", logger.Err(err))
	}
}

// targetResolver returns the gateway IDs of every RG (and, when
// registered, AG) certificate currently held for this gateway's volume:
// the set of replicas a sync must push blocks and manifests to.
func (g *Gateway) targetResolver(volumeID uint64) []uint64 {
	view := g.msClient.View()
	var ids []uint64
	for _, c := range view.CertsByType(cert.GatewayTypeRG) {
		ids = append(ids, c.GatewayID)
	}
	for _, c := range view.CertsByType(cert.GatewayTypeAG) {
		ids = append(ids, c.GatewayID)
	}
	return ids
}

// transportResolver routes a target gateway ID to the HTTP transport, or
// to the S3 transport when the target is an AG and an S3 replica
// transport is configured.
func (g *Gateway) transportResolver(targetID uint64) replication.RGTransport {
	if g.s3Transport != nil {
		if c, ok := g.msClient.View().CertByID(targetID); ok && c.GatewayType == cert.GatewayTypeAG {
			return g.s3Transport
		}
	}
	return g.httpTransport
}

// targetLookup resolves a target gateway ID to its replica HTTP surface
// base URL, for replication.NewHTTPTransport.
func (g *Gateway) targetLookup(targetID uint64) (string, bool) {
	c, ok := g.msClient.View().CertByID(targetID)
	if !ok {
		return "", false
	}
	return "https://" + c.Addr(), true
}

// coordinatorLookup resolves a gateway ID to its finish-endpoint base URL
// and current public key, for coordinator.NewClient.
func (g *Gateway) coordinatorLookup(gatewayID uint64) (string, *rsa.PublicKey, bool) {
	c, ok := g.msClient.View().CertByID(gatewayID)
	if !ok {
		return "", nil, false
	}
	pub, err := cert.ParsePublicKeyPEM(c.PublicKeyPEM)
	if err != nil {
		logger.Error("gateway: parse peer gateway public key", logger.Err(err), logger.Operation("coordinator_lookup"))
		return "", nil, false
	}
	return "https://" + c.Addr(), pub, true
}

// certResolver adapts the held certificate view into coordinator.CertResolver.
func (g *Gateway) certResolver() coordinator.CertResolver {
	return certResolverFunc(func(gatewayID uint64) (*rsa.PublicKey, bool) {
		c, ok := g.msClient.View().CertByID(gatewayID)
		if !ok {
			return nil, false
		}
		pub, err := cert.ParsePublicKeyPEM(c.PublicKeyPEM)
		if err != nil {
			return nil, false
		}
		return pub, true
	})
}

type certResolverFunc func(gatewayID uint64) (*rsa.PublicKey, bool)

func (f certResolverFunc) PublicKeyFor(gatewayID uint64) (*rsa.PublicKey, bool) { return f(gatewayID) }
