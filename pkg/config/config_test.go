package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences, causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeMinimalConfig(t *testing.T, tmpDir string) string {
	t.Helper()

	keyPath := filepath.Join(tmpDir, "gateway.key")
	if err := os.WriteFile(keyPath, []byte("test-key-placeholder"), 0600); err != nil {
		t.Fatalf("failed to write fake key file: %v", err)
	}

	passwordPath := filepath.Join(tmpDir, "session.pass")
	if err := os.WriteFile(passwordPath, []byte("s3cr3t"), 0600); err != nil {
		t.Fatalf("failed to write fake password file: %v", err)
	}

	volPubPath := filepath.Join(tmpDir, "volume.pub")
	if err := os.WriteFile(volPubPath, []byte("test-volume-pubkey-placeholder"), 0600); err != nil {
		t.Fatalf("failed to write fake volume public key file: %v", err)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
identity:
  gateway_type: UG
  gateway_id: 1
  gateway_name: ug-0
  volume_id: 1
  volume_name: testvol
  block_size: 4096
  volume_public_key_file: "` + yamlSafePath(volPubPath) + `"
  ms_url: "https://ms.example.com"
  session_password_file: "` + yamlSafePath(passwordPath) + `"
  private_key_file: "` + yamlSafePath(keyPath) + `"

logging:
  level: "INFO"

cache:
  path: "` + yamlSafePath(tmpDir) + `/cache"
  hard_limit: 100Mi
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeMinimalConfig(t, tmpDir)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Sync.Workers != 4 {
		t.Errorf("expected default sync workers 4, got %d", cfg.Sync.Workers)
	}
	if cfg.ViewStore.Driver != "sqlite" {
		t.Errorf("expected default view store driver 'sqlite', got %q", cfg.ViewStore.Driver)
	}
	if cfg.Cache.SoftLimit == 0 {
		t.Error("expected soft limit to be derived from hard limit, got 0")
	}
	if cfg.Cache.SoftLimit > cfg.Cache.HardLimit {
		t.Errorf("soft limit %d must not exceed hard limit %d", cfg.Cache.SoftLimit, cfg.Cache.HardLimit)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load should not fail for a missing config file: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected default log level INFO, got %q", cfg.Logging.Level)
	}
}

func TestLoad_RejectsInvalidGatewayType(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeMinimalConfig(t, tmpDir)

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	patched := []byte(string(data))
	patched = []byte(replaceOnce(string(patched), "gateway_type: UG", "gateway_type: BOGUS"))
	if err := os.WriteFile(configPath, patched, 0644); err != nil {
		t.Fatalf("write patched config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected validation error for invalid gateway_type, got nil")
	}
}

func replaceOnce(s, old, new string) string {
	idx := indexOf(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := GetDefaultConfig()
	cfg.Identity.GatewayType = "RG"
	cfg.Identity.GatewayName = "rg-0"

	path := filepath.Join(tmpDir, "out.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read saved config: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty saved config")
	}
}
