package viewstore

import "testing"

func TestStore_SaveAndLoadVolume(t *testing.T) {
	s, err := Open(Options{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.SaveVolume(VolumeRow{VolumeID: 1, Name: "vol", VolumeVersion: 3}); err != nil {
		t.Fatalf("save volume: %v", err)
	}

	got, err := s.LoadVolume(1)
	if err != nil {
		t.Fatalf("load volume: %v", err)
	}
	if got == nil || got.VolumeVersion != 3 {
		t.Fatalf("unexpected volume row: %+v", got)
	}
}

func TestStore_LoadVolumeMissing(t *testing.T) {
	s, err := Open(Options{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	got, err := s.LoadVolume(999)
	if err != nil {
		t.Fatalf("load volume: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing volume, got %+v", got)
	}
}

func TestStore_SaveAndLoadCerts(t *testing.T) {
	s, err := Open(Options{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	rows := []CertRow{
		{GatewayID: 1, VolumeID: 1, GatewayType: "UG", Version: 1},
		{GatewayID: 2, VolumeID: 1, GatewayType: "RG", Version: 1},
	}
	if err := s.SaveCerts(rows); err != nil {
		t.Fatalf("save certs: %v", err)
	}

	got, err := s.LoadCerts(1)
	if err != nil {
		t.Fatalf("load certs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 certs, got %d", len(got))
	}
}
