package coordinator

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http/httptest"
	"testing"
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, &key.PublicKey
}

type fakeFileHandler struct {
	prepareErr  error
	truncateErr error
	detachErr   error
	releaseErr  error
}

func (h *fakeFileHandler) Prepare(ctx context.Context, volumeID, fileID uint64, fileVersion int64, blocks []BlockVersion) (int64, []byte, error) {
	if h.prepareErr != nil {
		return 0, nil, h.prepareErr
	}
	return fileVersion + 1, []byte("new-manifest"), nil
}

func (h *fakeFileHandler) Truncate(ctx context.Context, volumeID, fileID uint64, fileVersion int64, newSize int64) (int64, error) {
	if h.truncateErr != nil {
		return 0, h.truncateErr
	}
	return fileVersion + 1, nil
}

func (h *fakeFileHandler) Detach(ctx context.Context, volumeID, fileID uint64, fileVersion int64) error {
	return h.detachErr
}

func (h *fakeFileHandler) ReleaseStaged(ctx context.Context, volumeID, fileID uint64, blocks []uint64) error {
	return h.releaseErr
}

type fakeCertResolver struct {
	keys map[uint64]*rsa.PublicKey
}

func (r *fakeCertResolver) PublicKeyFor(gatewayID uint64) (*rsa.PublicKey, bool) {
	pub, ok := r.keys[gatewayID]
	return pub, ok
}

func newTestServer(t *testing.T, senderID uint64, senderPub *rsa.PublicKey, handler FileHandler) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()
	coordKey, _ := testKeys(t)
	srv := NewServer(handler, &fakeCertResolver{keys: map[uint64]*rsa.PublicKey{senderID: senderPub}}, coordKey)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, coordKey
}

func TestServerClient_PrepareRoundTrip(t *testing.T) {
	senderKey, senderPub := testKeys(t)
	handler := &fakeFileHandler{}
	ts, coordKey := newTestServer(t, 42, senderPub, handler)

	lookup := func(gatewayID uint64) (string, *rsa.PublicKey, bool) {
		return ts.URL, &coordKey.PublicKey, true
	}
	client := NewClient(lookup, senderKey, 42, nil)

	reply, err := client.Send(context.Background(), 1, &WriteMsg{
		Op:             OpPrepare,
		VolumeID:       1,
		FileID:         9,
		FileVersion:    3,
		AffectedBlocks: []BlockVersion{{BlockID: 0, BlockVersion: 5}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Status != StatusPromise || reply.NewFileVersion != 4 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if string(reply.ManifestBytes) != "new-manifest" {
		t.Fatalf("unexpected manifest bytes: %s", reply.ManifestBytes)
	}
}

func TestServerClient_StaleFileVersion(t *testing.T) {
	senderKey, senderPub := testKeys(t)
	handler := &fakeFileHandler{prepareErr: ErrStale}
	ts, coordKey := newTestServer(t, 42, senderPub, handler)

	lookup := func(gatewayID uint64) (string, *rsa.PublicKey, bool) {
		return ts.URL, &coordKey.PublicKey, true
	}
	client := NewClient(lookup, senderKey, 42, nil)

	_, err := client.Send(context.Background(), 1, &WriteMsg{Op: OpPrepare, FileVersion: 1})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestServerClient_MismatchedSenderKeyRejected(t *testing.T) {
	senderKey, _ := testKeys(t)
	_, otherPub := testKeys(t)
	handler := &fakeFileHandler{}
	ts, coordKey := newTestServer(t, 42, otherPub, handler) // registered cert doesn't match senderKey

	lookup := func(gatewayID uint64) (string, *rsa.PublicKey, bool) {
		return ts.URL, &coordKey.PublicKey, true
	}
	client := NewClient(lookup, senderKey, 42, nil)

	reply, err := client.Send(context.Background(), 1, &WriteMsg{Op: OpPrepare, FileVersion: 1})
	if err == nil {
		t.Fatalf("expected error for mismatched sender key")
	}
	if reply != nil && reply.Status != StatusInvalid {
		t.Fatalf("expected INVALID status, got %+v", reply)
	}
}

func TestClient_UnreachableCoordinatorTriggersHandoff(t *testing.T) {
	senderKey, _ := testKeys(t)
	lookup := func(gatewayID uint64) (string, *rsa.PublicKey, bool) {
		return "", nil, false
	}
	client := NewClient(lookup, senderKey, 42, nil)

	_, err := client.Send(context.Background(), 99, &WriteMsg{Op: OpPrepare})
	if !ShouldBecomeCoordinator(err) {
		t.Fatalf("expected ShouldBecomeCoordinator, got %v", err)
	}
}

func TestShouldBecomeCoordinator_StaleIsNotHandoff(t *testing.T) {
	if ShouldBecomeCoordinator(ErrStale) {
		t.Fatal("ESTALE must not trigger coordinator handoff")
	}
}
