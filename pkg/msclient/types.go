package msclient

import (
	"time"

	"github.com/syndicate-project/gateway/pkg/cert"
)

// EntryUpdate is one queued or direct change to a file's metadata:
// attributes, or a write_nonce bump from update_write. Field semantics
// match the wire's ms_entry message.
type EntryUpdate struct {
	VolumeID uint64 `json:"volume_id" validate:"required"`
	FileID   uint64 `json:"file_id" validate:"required"`

	Size  *int64  `json:"size,omitempty"`
	Mtime *int64  `json:"mtime,omitempty" `
	Mode  *uint32 `json:"mode,omitempty"`

	// WriteNonce, when non-nil, is the new nonce an update_write RPC is
	// asserting (I5: a queued update carrying a stale nonce is dropped in
	// favor of the superseding one rather than applied out of order).
	WriteNonce *uint64 `json:"write_nonce,omitempty"`

	// AffectedBlocks lists block IDs touched by this update, carried only
	// on update_write, for MS-side vacuum-log reconciliation.
	AffectedBlocks []uint64 `json:"affected_blocks,omitempty"`

	// deadline is the uploader's wake time for this queued update; zero
	// for direct RPCs, which bypass the queue entirely.
	deadline time.Time
}

// UpdatesMsg is the batched write the uploader thread POSTs once per
// drained deadline: the wire's ms_updates message. Signed via
// empty-signature-then-sign-then-reinsert before every POST.
type UpdatesMsg struct {
	GatewayID uint64        `json:"gateway_id" validate:"required"`
	Entries   []EntryUpdate `json:"entries" validate:"required,dive"`
	Signature []byte        `json:"signature"`
}

func (m *UpdatesMsg) GetSignature() []byte    { return m.Signature }
func (m *UpdatesMsg) SetSignature(sig []byte) { m.Signature = sig }

// ReplyMsg is the wire's ms_reply: the MS's signed acknowledgement of an
// ms_updates batch or a direct RPC, carrying the new write_nonce for any
// entries that advanced one.
type ReplyMsg struct {
	Accepted    []uint64         `json:"accepted"`
	Rejected    map[uint64]string `json:"rejected,omitempty"`
	WriteNonces map[uint64]uint64 `json:"write_nonces,omitempty"`
	Signature   []byte            `json:"signature"`
}

func (m *ReplyMsg) GetSignature() []byte    { return m.Signature }
func (m *ReplyMsg) SetSignature(sig []byte) { m.Signature = sig }

// VolumeMetadata is the wire's ms_volume_metadata: a Volume record plus
// the current certificate bundle, as returned by GET /VOLUME/{id}.
type VolumeMetadata struct {
	Volume     cert.Volume       `json:"volume"`
	UGCerts    []cert.GatewayCert `json:"ug_certs"`
	RGCerts    []cert.GatewayCert `json:"rg_certs"`
	AGCerts    []cert.GatewayCert `json:"ag_certs"`
	RootEntry  EntrySnapshot      `json:"root_entry"`
}

// EntrySnapshot is the wire's ms_entry when returned as part of a volume
// or create/mkdir reply: a file's attributes at a point in time.
type EntrySnapshot struct {
	FileID      uint64    `json:"file_id"`
	FileVersion int64     `json:"file_version"`
	Size        int64     `json:"size"`
	Mode        uint32    `json:"mode"`
	Mtime       time.Time `json:"mtime"`
	WriteNonce  uint64    `json:"write_nonce"`
}

// CreateRequest is the direct create RPC's request body.
type CreateRequest struct {
	VolumeID     uint64 `json:"volume_id" validate:"required"`
	ParentFileID uint64 `json:"parent_file_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Mode         uint32 `json:"mode"`
}

// MkdirRequest is the direct mkdir RPC's request body.
type MkdirRequest struct {
	VolumeID     uint64 `json:"volume_id" validate:"required"`
	ParentFileID uint64 `json:"parent_file_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Mode         uint32 `json:"mode"`
}

// DeleteRequest is the direct delete RPC's request body.
type DeleteRequest struct {
	VolumeID     uint64 `json:"volume_id" validate:"required"`
	ParentFileID uint64 `json:"parent_file_id" validate:"required"`
	Name         string `json:"name" validate:"required"`
}

// UpdateWriteRequest is update_write's request body: an attribute update
// plus the blocks it touched, used for vacuum-log reconciliation on the
// MS side.
type UpdateWriteRequest struct {
	VolumeID       uint64   `json:"volume_id" validate:"required"`
	FileID         uint64   `json:"file_id" validate:"required"`
	Size           int64    `json:"size"`
	Mtime          int64    `json:"mtime"`
	AffectedBlocks []uint64 `json:"affected_blocks"`
}

// UpdateWriteReply carries the new write_nonce assigned by the MS.
type UpdateWriteReply struct {
	WriteNonce uint64 `json:"write_nonce"`
	Signature  []byte `json:"signature"`
}

func (m *UpdateWriteReply) GetSignature() []byte    { return m.Signature }
func (m *UpdateWriteReply) SetSignature(sig []byte) { m.Signature = sig }

// Timing records the MS's server-side timing breakdown for one request,
// parsed off X-Volume-Time / X-Gateway-Time / X-Total-Time /
// X-Resolve-Time.
type Timing struct {
	VolumeMS  float64
	GatewayMS float64
	TotalMS   float64
	ResolveMS float64
}
