package syncpipeline

import (
	"encoding/json"

	"github.com/syndicate-project/gateway/pkg/fent"
)

// wireManifest is the over-the-wire shape of a manifest, matching the RG
// transport's PutManifest payload expectations.
type wireManifest struct {
	Entries map[uint64]fent.ManifestEntry `json:"entries"`
}

// marshalManifest serializes a manifest snapshot for replication. A nil or
// empty manifest still produces a valid (empty) payload so GC's
// zero-value-means-no-manifest convention only applies to the Job field
// itself, never to this encoding.
func marshalManifest(m map[uint64]fent.ManifestEntry) []byte {
	b, err := json.Marshal(wireManifest{Entries: m})
	if err != nil {
		// Manifest entries are plain integers; marshaling cannot fail.
		panic("syncpipeline: marshal manifest: " + err.Error())
	}
	return b
}
