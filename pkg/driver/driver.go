// Package driver names the pluggable "driver/closure" boundary: opaque
// transforms over block bytes, URL generation for blocks and manifests,
// GC vetoes for drivers that still own a block's backing bytes, and
// manifest synthesis for volumes whose content lives outside the block
// cache (a disk- or S3-backed acquisition gateway). The transforms
// themselves — compression, encryption, erasure coding, whatever a given
// deployment plugs in — are out of scope; this package is the trait
// boundary a gateway calls through, nothing more.
package driver

import (
	"context"

	"github.com/syndicate-project/gateway/pkg/downloader"
)

// Driver is implemented by whatever closure layer a deployment wires in.
// A gateway with no configured Driver (the common UG/RG case) never
// calls into this package at all; every caller that does hold one must
// treat each method as potentially slow or remote.
type Driver interface {
	// TransformRead reverses whatever TransformWrite applied, run on the
	// raw bytes fetched for a block or manifest before they reach the
	// cache or the manifest parser.
	TransformRead(ctx context.Context, raw []byte) ([]byte, error)

	// TransformWrite applies the driver's transform before bytes are
	// handed to a replica target or a backing store.
	TransformWrite(ctx context.Context, raw []byte) ([]byte, error)

	// BlockURL returns the fetch URL for one version of one block.
	BlockURL(ctx context.Context, volumeID, fileID, blockID, blockVersion uint64) (string, error)

	// ManifestURL returns the fetch URL for a file's current manifest.
	ManifestURL(ctx context.Context, volumeID, fileID uint64) (string, error)

	// IsGarbage is consulted once per garbage block during GC kickoff.
	// Returning false vetoes the delete (DRIVER_NOT_GARBAGE) and hands
	// the block to the vacuumer instead of deleting it inline.
	IsGarbage(ctx context.Context, volumeID, fileID, blockID uint64) bool

	// GenerateManifest synthesizes a manifest for a file whose content
	// the driver owns directly rather than the block cache — the disk
	// AG case, which fabricates a single-range manifest from the
	// backing file's stat. Every synthesized block entry must be
	// present in the returned ManifestMsg even when its BlockVersion is
	// 0: presence in the block list, not the version number, is what
	// distinguishes "written" from "never written" here.
	GenerateManifest(ctx context.Context, volumeID, fileID uint64) (*downloader.ManifestMsg, error)
}
