package syncpipeline

import (
	"encoding/json"
	"testing"

	"github.com/syndicate-project/gateway/pkg/fent"
)

func TestMarshalManifest_RoundTrips(t *testing.T) {
	m := map[uint64]fent.ManifestEntry{
		0: {BlockVersion: 1, WriterGateway: 7},
		1: {BlockVersion: 3, WriterGateway: 9},
	}

	raw := marshalManifest(m)

	var decoded wireManifest
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Entries) != 2 || decoded.Entries[1].BlockVersion != 3 {
		t.Fatalf("unexpected decoded manifest: %+v", decoded.Entries)
	}
}

func TestMarshalManifest_EmptyIsValid(t *testing.T) {
	raw := marshalManifest(nil)
	var decoded wireManifest
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal empty manifest: %v", err)
	}
	if len(decoded.Entries) != 0 {
		t.Fatalf("expected empty manifest, got %+v", decoded.Entries)
	}
}
