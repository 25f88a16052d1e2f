package replication

import "context"

// RGTransport is how a replica request actually reaches a replica
// gateway. Swappable per target: the default is an HTTP(S) PUT/DELETE
// against the RG's /replica paths (see HTTPTransport), but an AG-backed volume can
// instead replicate straight into an object store (see store/s3).
type RGTransport interface {
	PutBlock(ctx context.Context, targetID uint64, f FileSnapshot, blockID uint64, payload []byte) error
	PutManifest(ctx context.Context, targetID uint64, f FileSnapshot, payload []byte) error
	DeleteBlock(ctx context.Context, targetID uint64, f FileSnapshot, blockID uint64) error
	DeleteManifest(ctx context.Context, targetID uint64, f FileSnapshot) error
}

// TransportResolver maps a target gateway ID to the transport that
// should carry requests to it. Most deployments have exactly one
// transport (every RG reachable over HTTPS); AG volumes register a
// second resolver entry pointing at an S3-backed transport.
type TransportResolver func(targetID uint64) RGTransport
