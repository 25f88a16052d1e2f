package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/syndicate-project/gateway/pkg/downloader"
)

type fakeDriver struct {
	garbage map[uint64]bool
	readErr error
}

func (f *fakeDriver) TransformRead(ctx context.Context, raw []byte) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]byte, len(raw))
	for i, b := range raw {
		out[i] = b ^ 0xFF
	}
	return out, nil
}

func (f *fakeDriver) TransformWrite(ctx context.Context, raw []byte) ([]byte, error) {
	return raw, nil
}

func (f *fakeDriver) BlockURL(ctx context.Context, volumeID, fileID, blockID, blockVersion uint64) (string, error) {
	return "", nil
}

func (f *fakeDriver) ManifestURL(ctx context.Context, volumeID, fileID uint64) (string, error) {
	return "", nil
}

func (f *fakeDriver) IsGarbage(ctx context.Context, volumeID, fileID, blockID uint64) bool {
	return !f.garbage[blockID]
}

func (f *fakeDriver) GenerateManifest(ctx context.Context, volumeID, fileID uint64) (*downloader.ManifestMsg, error) {
	return nil, nil
}

func TestVeto_NilDriverYieldsNilVetoFunc(t *testing.T) {
	if v := Veto(context.Background(), nil); v != nil {
		t.Fatal("expected nil VetoFunc for nil driver")
	}
}

func TestVeto_ClaimedBlockVetoesDelete(t *testing.T) {
	d := &fakeDriver{garbage: map[uint64]bool{7: true}}
	v := Veto(context.Background(), d)

	if !v(1, 2, 7) {
		t.Fatal("expected block 7 (driver-claimed) to be vetoed")
	}
	if v(1, 2, 9) {
		t.Fatal("expected block 9 (ordinary garbage) to not be vetoed")
	}
}

func TestReadHook_NilDriverYieldsNilHook(t *testing.T) {
	if h := ReadHook(context.Background(), nil); h != nil {
		t.Fatal("expected nil hook for nil driver")
	}
}

func TestReadHook_RunsDriverTransform(t *testing.T) {
	d := &fakeDriver{}
	h := ReadHook(context.Background(), d)

	out, err := h([]byte{0x00, 0xFF})
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	if out[0] != 0xFF || out[1] != 0x00 {
		t.Fatalf("unexpected transform output: %v", out)
	}
}

func TestReadHook_PropagatesError(t *testing.T) {
	d := &fakeDriver{readErr: errors.New("boom")}
	h := ReadHook(context.Background(), d)

	if _, err := h([]byte("x")); err == nil {
		t.Fatal("expected hook to propagate driver error")
	}
}
