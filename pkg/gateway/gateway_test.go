package gateway

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/syndicate-project/gateway/pkg/cert"
	"github.com/syndicate-project/gateway/pkg/msclient"
	"github.com/syndicate-project/gateway/pkg/replication"
)

type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(ctx context.Context) (string, time.Time, error) {
	return "sekrit", time.Now().Add(time.Hour), nil
}

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func pemEncodePublic(t *testing.T, pub *rsa.PublicKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// newTestGateway builds a Gateway wired to a fake MS serving one RG and
// one AG certificate for volume 1, skipping New's disk-backed setup
// (private key files, on-disk cache) so the closures that depend only on
// the held certificate view can be tested directly.
func newTestGateway(t *testing.T) (*Gateway, func()) {
	t.Helper()

	volKey := testKey(t)
	rgKey := testKey(t)
	agKey := testKey(t)

	rgPub := pemEncodePublic(t, &rgKey.PublicKey)
	agPub := pemEncodePublic(t, &agKey.PublicKey)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/VOLUME/1" {
			vm := msclient.VolumeMetadata{
				Volume: cert.Volume{VolumeID: 1, VolumeVersion: 1, CertVersion: 1},
				RGCerts: []cert.GatewayCert{
					{GatewayID: 10, GatewayType: cert.GatewayTypeRG, Host: "rg0.internal", Port: 9443, PublicKeyPEM: rgPub, Version: 1},
				},
				AGCerts: []cert.GatewayCert{
					{GatewayID: 20, GatewayType: cert.GatewayTypeAG, Host: "ag0.internal", Port: 9443, PublicKeyPEM: agPub, Version: 1},
				},
			}
			if err := cert.Sign(volKey, &vm.Volume); err != nil {
				t.Fatalf("sign volume: %v", err)
			}
			json.NewEncoder(w).Encode(vm)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	c, err := msclient.New(msclient.Options{
		BaseURL:         srv.URL,
		GatewayType:     "UG",
		GatewayID:       1,
		VolumeID:        1,
		PrivateKey:      testKey(t),
		VolumePublicKey: &volKey.PublicKey,
		Authenticator:   fakeAuthenticator{},
		ViewReloadFreq:  time.Hour,
	})
	if err != nil {
		t.Fatalf("new ms client: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start ms client: %v", err)
	}

	g := &Gateway{msClient: c, selfGatewayID: 1, volumeID: 1}
	return g, func() { c.Stop(); srv.Close() }
}

func TestTargetResolver_ReturnsRGAndAGGatewayIDs(t *testing.T) {
	g, cleanup := newTestGateway(t)
	defer cleanup()

	ids := g.targetResolver(1)
	if len(ids) != 2 {
		t.Fatalf("expected 2 targets, got %d: %v", len(ids), ids)
	}

	seen := map[uint64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[10] || !seen[20] {
		t.Fatalf("expected targets {10,20}, got %v", ids)
	}
}

func TestTargetLookup_ResolvesKnownGateway(t *testing.T) {
	g, cleanup := newTestGateway(t)
	defer cleanup()

	url, ok := g.targetLookup(10)
	if !ok {
		t.Fatal("expected gateway 10 to resolve")
	}
	if url != "https://rg0.internal:9443" {
		t.Fatalf("unexpected url: %s", url)
	}
}

func TestTargetLookup_UnknownGatewayNotFound(t *testing.T) {
	g, cleanup := newTestGateway(t)
	defer cleanup()

	if _, ok := g.targetLookup(999); ok {
		t.Fatal("expected unknown gateway to not resolve")
	}
}

func TestCoordinatorLookup_ParsesPeerPublicKey(t *testing.T) {
	g, cleanup := newTestGateway(t)
	defer cleanup()

	url, pub, ok := g.coordinatorLookup(10)
	if !ok {
		t.Fatal("expected gateway 10 to resolve")
	}
	if url != "https://rg0.internal:9443" {
		t.Fatalf("unexpected url: %s", url)
	}
	if pub == nil {
		t.Fatal("expected a parsed public key")
	}
}

func TestCertResolver_ResolvesAndRejectsUnknown(t *testing.T) {
	g, cleanup := newTestGateway(t)
	defer cleanup()

	resolver := g.certResolver()

	if _, ok := resolver.PublicKeyFor(10); !ok {
		t.Fatal("expected gateway 10's key to resolve")
	}
	if _, ok := resolver.PublicKeyFor(999); ok {
		t.Fatal("expected unknown gateway to not resolve")
	}
}

func TestTransportResolver_UsesHTTPWithoutS3(t *testing.T) {
	g, cleanup := newTestGateway(t)
	defer cleanup()
	g.httpTransport = replication.NewHTTPTransport(g.targetLookup, nil)

	// Without an S3 transport configured, every target (AG included) uses HTTP.
	if got := g.transportResolver(20); got != replication.RGTransport(g.httpTransport) {
		t.Fatalf("expected the http transport when s3Transport unset, got %v", got)
	}
}
