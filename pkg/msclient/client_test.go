package msclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/syndicate-project/gateway/pkg/cert"
)

type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(ctx context.Context) (string, time.Time, error) {
	return "sekrit", time.Now().Add(time.Hour), nil
}

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, &key.PublicKey
}

func TestSession_AuthenticatesOnFirstUse(t *testing.T) {
	s := NewSession(fakeAuthenticator{}, "UG", 7)
	user, pass, err := s.BasicAuth(context.Background())
	if err != nil {
		t.Fatalf("basic auth: %v", err)
	}
	if user != "UG_7" || pass != "sekrit" {
		t.Fatalf("unexpected credentials: %s/%s", user, pass)
	}
}

func TestSession_InvalidateForcesReauth(t *testing.T) {
	s := NewSession(fakeAuthenticator{}, "UG", 7)
	if _, _, err := s.BasicAuth(context.Background()); err != nil {
		t.Fatalf("basic auth: %v", err)
	}
	s.Invalidate()
	if s.claims != nil {
		t.Fatal("expected claims cleared after invalidate")
	}
	if _, _, err := s.BasicAuth(context.Background()); err != nil {
		t.Fatalf("basic auth after invalidate: %v", err)
	}
}

func TestParseTiming(t *testing.T) {
	h := http.Header{}
	h.Set("X-Volume-Time", "1.5")
	h.Set("X-Gateway-Time", "2.5")
	h.Set("X-Total-Time", "4.0")
	h.Set("X-Resolve-Time", "0.25")

	timing := parseTiming(h)
	if timing.VolumeMS != 1.5 || timing.GatewayMS != 2.5 || timing.TotalMS != 4.0 || timing.ResolveMS != 0.25 {
		t.Fatalf("unexpected timing: %+v", timing)
	}
}

func TestPendingQueue_CoalescesSameKey(t *testing.T) {
	c := &Client{volumeID: 1, gatewayID: 1}
	q := newPendingQueue(c)

	size1 := int64(10)
	q.Enqueue(1, 42, EntryUpdate{Size: &size1}, time.Minute, 10*time.Second)
	size2 := int64(20)
	q.Enqueue(1, 42, EntryUpdate{Size: &size2}, time.Minute, 10*time.Second)

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) != 1 {
		t.Fatalf("expected 1 coalesced entry, got %d", len(q.entries))
	}
	got := q.entries[entryKey{VolumeID: 1, FileID: 42}]
	if *got.Size != 20 {
		t.Fatalf("expected latest update to win, got size %d", *got.Size)
	}
}

func TestPendingQueue_ReinsertSkipsSuperseded(t *testing.T) {
	c := &Client{volumeID: 1, gatewayID: 1}
	q := newPendingQueue(c)

	stale := EntryUpdate{VolumeID: 1, FileID: 42}
	fresh := int64(99)
	q.Enqueue(1, 42, EntryUpdate{Size: &fresh}, time.Minute, time.Second)

	q.reinsertUnsuperseded([]EntryUpdate{stale})

	q.mu.Lock()
	defer q.mu.Unlock()
	got := q.entries[entryKey{VolumeID: 1, FileID: 42}]
	if *got.Size != 99 {
		t.Fatal("expected superseding update to survive reinsert, not the stale one")
	}
}

func TestClient_CreateAndViewReload(t *testing.T) {
	volKey, volPub := testKeys(t)
	gwKey, _ := testKeys(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/VOLUME/1":
			vm := VolumeMetadata{
				Volume: cert.Volume{VolumeID: 1, VolumeVersion: 1, CertVersion: 1},
			}
			if err := cert.Sign(volKey, &vm.Volume); err != nil {
				t.Fatalf("sign volume: %v", err)
			}
			json.NewEncoder(w).Encode(vm)
		case r.Method == http.MethodPost && r.URL.Path == "/create":
			json.NewEncoder(w).Encode(EntrySnapshot{FileID: 5, FileVersion: 1})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := New(Options{
		BaseURL:         srv.URL,
		GatewayType:     "UG",
		GatewayID:       1,
		VolumeID:        1,
		PrivateKey:      gwKey,
		VolumePublicKey: volPub,
		Authenticator:   fakeAuthenticator{},
		ViewReloadFreq:  time.Hour,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	if v := c.View().Volume(); v.VolumeID != 1 {
		t.Fatalf("expected volume loaded, got %+v", v)
	}

	entry, err := c.Create(context.Background(), CreateRequest{VolumeID: 1, ParentFileID: 1, Name: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.FileID != 5 {
		t.Fatalf("expected file id 5, got %d", entry.FileID)
	}
}

func TestClient_UnauthorizedInvalidatesSession(t *testing.T) {
	volKey, volPub := testKeys(t)
	gwKey, _ := testKeys(t)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/VOLUME/1" {
			vm := VolumeMetadata{Volume: cert.Volume{VolumeID: 1, VolumeVersion: 1}}
			cert.Sign(volKey, &vm.Volume)
			json.NewEncoder(w).Encode(vm)
			return
		}
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := New(Options{
		BaseURL:         srv.URL,
		GatewayType:     "UG",
		GatewayID:       1,
		VolumeID:        1,
		PrivateKey:      gwKey,
		VolumePublicKey: volPub,
		Authenticator:   fakeAuthenticator{},
		ViewReloadFreq:  time.Hour,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	_, err = c.Create(context.Background(), CreateRequest{VolumeID: 1, ParentFileID: 1, Name: "a"})
	if err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if c.session.claims != nil {
		t.Fatal("expected session invalidated after 401")
	}
}
