package cert

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
)

// ErrNoPEMBlock is returned when a PEM-encoded key cannot be decoded.
var ErrNoPEMBlock = errors.New("cert: no PEM block found")

// ErrSignatureInvalid is returned when verification fails.
var ErrSignatureInvalid = errors.New("cert: signature verification failed")

// pssOptions is the single RSA-PSS parameterization used for every signed
// message in the system: salt length equal to the digest length, SHA-256.
var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthEqualsHash,
	Hash:       crypto.SHA256,
}

// Signable is any wire message that supports the
// empty-signature-then-sign-then-reinsert convention: callers read the
// current signature bytes (to know how big a gap to zero), clear it,
// marshal, sign, and write the result back.
type Signable interface {
	GetSignature() []byte
	SetSignature(sig []byte)
}

// GetSignature / SetSignature implementations for the two certificate
// types, so both satisfy Signable directly.

func (v *Volume) GetSignature() []byte    { return v.Signature }
func (v *Volume) SetSignature(sig []byte) { v.Signature = sig }

func (g *GatewayCert) GetSignature() []byte    { return g.Signature }
func (g *GatewayCert) SetSignature(sig []byte) { g.Signature = sig }

// Sign implements empty-signature-then-sign-then-reinsert: it clears m's
// signature field, JSON-serializes m, signs the digest with RSA-PSS/SHA-256
// (salt length = digest length), and writes the signature back into m.
func Sign(key *rsa.PrivateKey, m Signable) error {
	m.SetSignature(nil)

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("cert: marshal for signing: %w", err)
	}

	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return fmt.Errorf("cert: sign: %w", err)
	}

	m.SetSignature(sig)
	return nil
}

// Verify re-derives the digest the same way Sign computed it (clear, then
// marshal) and checks it against the signature that was present on entry.
// It restores the original signature on m before returning, regardless of
// outcome, so Verify is safe to call on a live message without mutating it
// permanently.
func Verify(pub *rsa.PublicKey, m Signable) error {
	sig := m.GetSignature()
	if len(sig) == 0 {
		return ErrSignatureInvalid
	}

	m.SetSignature(nil)
	data, err := json.Marshal(m)
	m.SetSignature(sig)
	if err != nil {
		return fmt.Errorf("cert: marshal for verification: %w", err)
	}

	digest := sha256.Sum256(data)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// ParsePrivateKeyPEM decodes a PEM-encoded RSA private key in either
// PKCS#1 or PKCS#8 form.
func ParsePrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cert: parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cert: key is not RSA")
	}
	return rsaKey, nil
}

// ParsePublicKeyPEM decodes a PEM-encoded RSA public key, PKIX form.
func ParsePublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cert: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("cert: key is not RSA")
	}
	return rsaPub, nil
}
