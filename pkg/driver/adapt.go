package driver

import (
	"context"

	"github.com/syndicate-project/gateway/pkg/downloader"
	"github.com/syndicate-project/gateway/pkg/replication"
)

// Veto adapts a Driver into the replication.VetoFunc that pkg/gateway
// wires into NewGC. A nil Driver yields a nil VetoFunc, matching
// NewGC's own "nil veto means nothing is ever vetoed" contract.
func Veto(ctx context.Context, d Driver) replication.VetoFunc {
	if d == nil {
		return nil
	}
	return func(volumeID, fileID, blockID uint64) bool {
		return !d.IsGarbage(ctx, volumeID, fileID, blockID)
	}
}

// ReadHook adapts Driver.TransformRead into the downloader.DriverHook
// DownloadManifest runs fetched bytes through before JSON parsing. A nil
// Driver yields a nil hook, which DownloadManifest treats as "pass the
// bytes through unchanged."
func ReadHook(ctx context.Context, d Driver) downloader.DriverHook {
	if d == nil {
		return nil
	}
	return func(raw []byte) ([]byte, error) {
		return d.TransformRead(ctx, raw)
	}
}
