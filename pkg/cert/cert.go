// Package cert implements the signed records that anchor trust in a
// Syndicate volume: the Volume record itself and per-gateway certificates,
// plus the RSA-PSS signing convention every other wire message reuses.
package cert

import (
	"strconv"
	"time"
)

// GatewayType identifies the role a gateway certificate grants.
type GatewayType string

const (
	GatewayTypeUG GatewayType = "UG" // User gateway: front-end facing, drives reads/writes.
	GatewayTypeRG GatewayType = "RG" // Replica gateway: durable block/manifest storage.
	GatewayTypeAG GatewayType = "AG" // Acquisition gateway: synthesizes content from an external source.
)

// Capability is a single bit in a GatewayCert's caps bitmask.
type Capability uint32

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapCoordinate
	CapReplicate
)

// Has reports whether caps grants the given capability.
func (c Capability) Has(caps uint32) bool {
	return caps&uint32(c) != 0
}

// Volume is the signed record naming a volume's blocksize, version
// counters, owner, root entry, and public key. Immutable within a version;
// a bump of VolumeVersion or CertVersion forces every gateway holding a
// cached copy to reload (spec.md §3).
type Volume struct {
	VolumeID      uint64    `json:"volume_id"`
	Name          string    `json:"name"`
	BlockSize     uint32    `json:"block_size"`
	VolumeVersion uint64    `json:"volume_version"`
	CertVersion   uint64    `json:"cert_version"`
	OwnerUserID   uint64    `json:"owner_user_id"`
	RootEntryID   uint64    `json:"root_entry_id"`
	PublicKeyPEM  []byte    `json:"public_key_pem"`
	CreatedAt     time.Time `json:"created_at"`

	// Signature is populated via the empty-signature-then-sign-then-reinsert
	// convention: empty while computing the signature, then set to the
	// result before the message is considered complete.
	Signature []byte `json:"signature"`
}

// GatewayCert is the per-gateway signed record: identity, role, network
// address, capability bitmask, and public key. Verified against the
// owning Volume's public key.
type GatewayCert struct {
	GatewayID   uint64      `json:"gateway_id"`
	GatewayType GatewayType `json:"gateway_type"`
	OwnerUserID uint64      `json:"owner_user_id"`
	Host        string      `json:"host"`
	Port        int         `json:"port"`
	Caps        uint32      `json:"caps"`
	Version     uint64      `json:"version"`
	PublicKeyPEM []byte     `json:"public_key_pem"`

	// BlockSize is set only for AG certificates, which may synthesize
	// content at a blocksize independent of the volume's native blocksize.
	BlockSize *uint32 `json:"block_size,omitempty"`

	Signature []byte `json:"signature"`
}

// Addr returns the gateway's "host:port" network address.
func (g *GatewayCert) Addr() string {
	return g.Host + ":" + strconv.Itoa(g.Port)
}
