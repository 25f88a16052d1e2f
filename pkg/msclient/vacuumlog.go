package msclient

import (
	"fmt"
	"net/http"

	"context"

	"github.com/syndicate-project/gateway/pkg/replication"
)

// vacuumLogEntryWire is the wire shape of one replication.VacuumLogEntry,
// the JSON-over-HTTPS substitute for the vacuum log row the original
// vacuumer reads directly off the MS's table.
type vacuumLogEntryWire struct {
	Kind        int    `json:"kind"`
	VolumeID    uint64 `json:"volume_id"`
	FileID      uint64 `json:"file_id"`
	FileVersion int64  `json:"file_version"`
	BlockID     uint64 `json:"block_id,omitempty"`
	IsManifest  bool   `json:"is_manifest,omitempty"`
	TargetID    uint64 `json:"target_id"`
}

func (w vacuumLogEntryWire) toEntry() replication.VacuumLogEntry {
	return replication.VacuumLogEntry{
		Kind: replication.VacuumKind(w.Kind),
		File: replication.FileSnapshot{
			VolumeID:    w.VolumeID,
			FileID:      w.FileID,
			FileVersion: w.FileVersion,
		},
		BlockID:    w.BlockID,
		IsManifest: w.IsManifest,
		TargetID:   w.TargetID,
	}
}

func fromEntry(e replication.VacuumLogEntry) vacuumLogEntryWire {
	return vacuumLogEntryWire{
		Kind:        int(e.Kind),
		VolumeID:    e.File.VolumeID,
		FileID:      e.File.FileID,
		FileVersion: e.File.FileVersion,
		BlockID:     e.BlockID,
		IsManifest:  e.IsManifest,
		TargetID:    e.TargetID,
	}
}

// ListPending fetches this gateway's outstanding vacuum log entries, so
// pkg/replication.Vacuumer can resume GC for writes a prior crash left
// mid-flight. Implements replication.VacuumLogStore.
func (c *Client) ListPending(ctx context.Context) ([]replication.VacuumLogEntry, error) {
	path := fmt.Sprintf("/VOLUME/%d/vacuum_log?gateway_id=%d", c.volumeID, c.gatewayID)

	var wire []vacuumLogEntryWire
	if _, err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, fmt.Errorf("msclient: list vacuum log: %w", err)
	}

	entries := make([]replication.VacuumLogEntry, len(wire))
	for i, w := range wire {
		entries[i] = w.toEntry()
	}
	return entries, nil
}

// ClearEntry removes one vacuum log row once its deferred delete (or
// orphan replication) has finally succeeded. Implements
// replication.VacuumLogStore.
func (c *Client) ClearEntry(ctx context.Context, e replication.VacuumLogEntry) error {
	req := fromEntry(e)
	_, err := c.do(ctx, http.MethodPost, "/vacuum_log/clear", &req, nil)
	if err != nil {
		return fmt.Errorf("msclient: clear vacuum log entry: %w", err)
	}
	return nil
}
