package downloader

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// ManifestBlockEntry names one block's current version and writer within a
// manifest, the JSON-over-HTTPS substitute for the protobuf ManifestMsg
// block entries named in the wire protocol.
type ManifestBlockEntry struct {
	BlockID       uint64 `json:"block_id"`
	BlockVersion  uint64 `json:"block_version"`
	WriterGateway uint64 `json:"writer_gateway"`
}

// ManifestMsg is the wire representation of a file's manifest: the ordered
// block map plus the attributes needed for a staleness check against a
// locally held fent (spec S5).
type ManifestMsg struct {
	FileID      uint64                `json:"file_id"`
	FileVersion int64                 `json:"file_version"`
	Size        int64                 `json:"size"`
	Mtime       time.Time             `json:"mtime"`
	Blocks      []ManifestBlockEntry  `json:"blocks"`
	Signature   []byte                `json:"signature"`
}

func (m *ManifestMsg) GetSignature() []byte    { return m.Signature }
func (m *ManifestMsg) SetSignature(sig []byte) { m.Signature = sig }

// DriverHook post-processes the raw bytes fetched for a manifest before
// JSON parsing (the disk AG driver's decompression/decryption transform).
type DriverHook func(raw []byte) ([]byte, error)

// ManifestCache memoizes parsed manifests keyed by "url@mtime" so repeated
// readers of an unchanged manifest don't re-fetch and re-parse it.
type ManifestCache struct {
	cache *ristretto.Cache[string, *ManifestMsg]
}

// NewManifestCache returns a manifest cache sized for roughly maxEntries
// hot manifests.
func NewManifestCache(maxEntries int64) (*ManifestCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, *ManifestMsg]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ManifestCache{cache: c}, nil
}

func manifestCacheKey(url, mtimeHint string) string {
	return url + "@" + mtimeHint
}

// DownloadManifest fetches a manifest by URL, bounded to maxLen bytes,
// optionally running it through a driver hook (decompression/decryption),
// then parses it as a ManifestMsg. Signatures are NOT verified here; the
// caller (msclient or the sync pipeline) verifies against the volume's
// public key separately.
//
// mtimeHint, if non-empty (e.g. from an If-Modified-Since style probe),
// is used as a cache key qualifier so a manifest that hasn't changed is
// not re-parsed.
func DownloadManifest(d *Downloader, cache *ManifestCache, url string, maxLen int64, mtimeHint string, hook DriverHook) (*ManifestMsg, error) {
	if cache != nil && mtimeHint != "" {
		if m, ok := cache.cache.Get(manifestCacheKey(url, mtimeHint)); ok {
			return m, nil
		}
	}

	ctx := ContextInit(url, maxLen)
	if err := d.Start(ctx); err != nil {
		return nil, err
	}
	ctx.Wait(0)

	if ctx.TransferErrno != nil {
		return nil, ctx.TransferErrno
	}
	if ctx.HTTPStatus != 200 {
		return nil, fmt.Errorf("downloader: manifest fetch %s: HTTP %d", url, ctx.HTTPStatus)
	}

	raw := ctx.Bytes
	if hook != nil {
		processed, err := hook(raw)
		if err != nil {
			return nil, fmt.Errorf("downloader: manifest driver hook: %w", err)
		}
		raw = processed
	}

	var m ManifestMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("downloader: parse manifest: %w", err)
	}

	if cache != nil && mtimeHint != "" {
		cache.cache.Set(manifestCacheKey(url, mtimeHint), &m, 1)
		cache.cache.Wait()
	}

	return &m, nil
}
