// Package coordinator implements the write coordination protocol of
// spec.md §4.5: a non-coordinator flushing a file sends the coordinator
// a signed WriteMsg describing the blocks it just replicated, and the
// coordinator's finish handler merges, truncates, detaches, or
// acknowledges release depending on the message's Op. It also carries
// the one-way coordinator handoff: a sender that finds its coordinator
// unreachable or ceding becomes the new coordinator itself.
//
// The shape — a remote party asked to give something up, or to
// incorporate a change, before the requester can proceed — mirrors the
// oplock/lease break protocol the teacher implements for SMB: a holder
// is notified, has a bounded window to respond, and the request either
// succeeds, is redirected, or times out into a forced state change.
package coordinator

import "github.com/syndicate-project/gateway/pkg/cert"

// Op identifies what a WriteMsg is asking the coordinator to do.
type Op string

const (
	OpPrepare  Op = "PREPARE"
	OpTruncate Op = "TRUNCATE"
	OpDetach   Op = "DETACH"
	OpAccepted Op = "ACCEPTED"
)

// Status is the coordinator's reply to a WriteMsg.
type Status string

const (
	StatusPromise  Status = "PROMISE"
	StatusAccepted Status = "ACCEPTED"
	StatusStale    Status = "ESTALE"
	StatusRedirect Status = "REDIRECT"
	StatusInvalid  Status = "INVALID"
)

// BlockVersion names a single block's new durable version, as replicated
// by the sender before it asked the coordinator to merge it in.
type BlockVersion struct {
	BlockID      uint64 `json:"block_id"`
	BlockVersion uint64 `json:"block_version"`
}

// WriteMsg is the signed request a non-coordinator sends to its file's
// coordinator. Which fields are meaningful depends on Op: PREPARE and
// ACCEPTED read AffectedBlocks, TRUNCATE reads NewSize, DETACH reads
// neither.
type WriteMsg struct {
	Op              Op             `json:"op"`
	VolumeID        uint64         `json:"volume_id"`
	FileID          uint64         `json:"file_id"`
	FileVersion     int64          `json:"file_version"`
	AffectedBlocks  []BlockVersion `json:"affected_blocks,omitempty"`
	NewSize         int64          `json:"new_size,omitempty"`
	SenderGatewayID uint64         `json:"sender_gateway_id"`
	Signature       []byte         `json:"signature,omitempty"`
}

func (m *WriteMsg) GetSignature() []byte  { return m.Signature }
func (m *WriteMsg) SetSignature(s []byte) { m.Signature = s }

var _ cert.Signable = (*WriteMsg)(nil)

// WriteReply is the coordinator's signed response.
type WriteReply struct {
	Status Status `json:"status"`
	// NewFileVersion is set on PROMISE, ACCEPTED (TRUNCATE), and carries
	// the file_version the coordinator committed to.
	NewFileVersion int64 `json:"new_file_version,omitempty"`
	// ManifestBytes carries the republished manifest on PROMISE, for the
	// sender to replicate onward per spec.md §4.4 Phase 1 step 5.
	ManifestBytes []byte `json:"manifest_bytes,omitempty"`
	// RedirectGatewayID is set on REDIRECT: this coordinator has ceded
	// and the sender should become the new coordinator itself.
	RedirectGatewayID uint64 `json:"redirect_gateway_id,omitempty"`
	Signature         []byte `json:"signature,omitempty"`
}

func (r *WriteReply) GetSignature() []byte  { return r.Signature }
func (r *WriteReply) SetSignature(s []byte) { r.Signature = s }

var _ cert.Signable = (*WriteReply)(nil)
