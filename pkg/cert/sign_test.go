package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestSignVerify_RoundTrip(t *testing.T) {
	key := testKey(t)

	v := &Volume{VolumeID: 1, Name: "testvol", BlockSize: 4096, VolumeVersion: 1}
	if err := Sign(key, v); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(v.Signature) == 0 {
		t.Fatal("expected non-empty signature after Sign")
	}

	if err := Verify(&key.PublicKey, v); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

// TestR2_SignVerifyFieldEquality exercises spec property R2: sign/verify
// holds iff the message is unchanged modulo the signature field.
func TestR2_SignVerifyFieldEquality(t *testing.T) {
	key := testKey(t)

	g := &GatewayCert{GatewayID: 7, GatewayType: GatewayTypeUG, Host: "ug0.example.com", Port: 9000}
	if err := Sign(key, g); err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Tamper with a field outside the signature: verification must fail.
	tampered := *g
	tampered.Port = 9001
	tampered.Signature = g.Signature
	if err := Verify(&key.PublicKey, &tampered); err == nil {
		t.Fatal("expected verification to fail for tampered field")
	}

	// The original, untouched message still verifies.
	if err := Verify(&key.PublicKey, g); err != nil {
		t.Fatalf("expected original message to verify: %v", err)
	}
}

func TestVerify_RejectsEmptySignature(t *testing.T) {
	key := testKey(t)
	v := &Volume{VolumeID: 1}
	if err := Verify(&key.PublicKey, v); err == nil {
		t.Fatal("expected error verifying message with empty signature")
	}
}

func TestVerify_RejectsWrongKey(t *testing.T) {
	key := testKey(t)
	other := testKey(t)

	v := &Volume{VolumeID: 2}
	if err := Sign(key, v); err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := Verify(&other.PublicKey, v); err == nil {
		t.Fatal("expected verification with wrong key to fail")
	}
}

func TestVerifierPool_ConcurrentVerify(t *testing.T) {
	key := testKey(t)
	pool := NewVerifierPool()

	g := &GatewayCert{GatewayID: 1, GatewayType: GatewayTypeRG}
	if err := Sign(key, g); err != nil {
		t.Fatalf("sign: %v", err)
	}

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			done <- pool.Verify(&key.PublicKey, g)
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-done; err != nil {
			t.Errorf("pooled verify failed: %v", err)
		}
	}
}
