package cert

import (
	"crypto/rsa"
	"sync"
)

// verifierHandle wraps the public key a verification needs. Pooling these
// avoids a fresh allocation per peer-gateway message verified on the hot
// path (every incoming WriteMsg and ms_updates reply).
type verifierHandle struct {
	pub *rsa.PublicKey
}

// VerifierPool hands out pooled verifierHandle values keyed by nothing in
// particular — the pool just amortizes allocation, the public key is set
// fresh on each Get.
type VerifierPool struct {
	pool sync.Pool
}

// NewVerifierPool returns a ready-to-use pool.
func NewVerifierPool() *VerifierPool {
	return &VerifierPool{
		pool: sync.Pool{
			New: func() any { return &verifierHandle{} },
		},
	}
}

// Verify checks m's signature against pub, borrowing a handle from the pool
// for the duration of the call.
func (p *VerifierPool) Verify(pub *rsa.PublicKey, m Signable) error {
	h := p.pool.Get().(*verifierHandle)
	h.pub = pub
	defer func() {
		h.pub = nil
		p.pool.Put(h)
	}()

	return Verify(h.pub, m)
}
