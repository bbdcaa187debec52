package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
provider_id: collector-test
volumes:
  - "C:"
  - "D:"
capture:
  poll_interval: 500ms
  include_close_events: true
  excluded_prefixes: ["~$"]
  excluded_extensions: [".tmp", ".log"]
pipeline:
  queue_size: 5000
  overflow: drop_newest
recorder:
  path: /var/lib/filetrail/test
  ttl: 48h
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ProviderID != "collector-test" {
		t.Errorf("ProviderID = %q, want collector-test", cfg.ProviderID)
	}
	if len(cfg.Volumes) != 2 || cfg.Volumes[0] != "C:" {
		t.Errorf("Volumes = %v", cfg.Volumes)
	}
	if cfg.Capture.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.Capture.PollInterval)
	}
	if !cfg.Capture.IncludeCloseEvents {
		t.Error("IncludeCloseEvents should be true")
	}
	if cfg.Pipeline.QueueSize != 5000 {
		t.Errorf("QueueSize = %d, want 5000", cfg.Pipeline.QueueSize)
	}
	if cfg.Pipeline.Overflow != OverflowDropNewest {
		t.Errorf("Overflow = %q, want drop_newest", cfg.Pipeline.Overflow)
	}
	if cfg.Recorder.TTL != 48*time.Hour {
		t.Errorf("TTL = %v, want 48h", cfg.Recorder.TTL)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `volumes: ["C:"]`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Capture.PollInterval != time.Second {
		t.Errorf("default PollInterval = %v, want 1s", cfg.Capture.PollInterval)
	}
	if cfg.Pipeline.QueueSize != 10000 {
		t.Errorf("default QueueSize = %d, want 10000", cfg.Pipeline.QueueSize)
	}
	if cfg.Pipeline.Overflow != OverflowBlock {
		t.Errorf("default Overflow = %q, want block", cfg.Pipeline.Overflow)
	}
	if cfg.Recorder.TTL != 96*time.Hour {
		t.Errorf("default TTL = %v, want 96h", cfg.Recorder.TTL)
	}
	if !cfg.Capture.StablePaths() {
		t.Error("stable volume paths should default to enabled")
	}
	if cfg.Capture.IncludeCloseEvents {
		t.Error("close events should default to excluded")
	}
	if !cfg.Metrics.MetricsEnabled() {
		t.Error("metrics should default to enabled")
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("default metrics addr = %q", cfg.Metrics.Addr)
	}
	if cfg.ProviderID == "" {
		t.Error("provider id should receive a default")
	}
}

func TestLoadEnvExpansion(t *testing.T) {
	t.Setenv("FILETRAIL_STORE", "/tmp/ft-store")
	cfg, err := Load(writeConfig(t, `
volumes: ["C:"]
recorder:
  path: ${FILETRAIL_STORE}
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Recorder.Path != "/tmp/ft-store" {
		t.Errorf("Recorder.Path = %q, want expanded env value", cfg.Recorder.Path)
	}
}

func TestLoadRejectsUnknownOverflow(t *testing.T) {
	_, err := Load(writeConfig(t, `
volumes: ["C:"]
pipeline:
  overflow: explode
`))
	if err == nil || !strings.Contains(err.Error(), "overflow") {
		t.Fatalf("expected overflow policy error, got %v", err)
	}
}

func TestLoadRejectsIncompleteArchive(t *testing.T) {
	_, err := Load(writeConfig(t, `
volumes: ["C:"]
archive:
  enabled: true
  type: s3
`))
	if err == nil || !strings.Contains(err.Error(), "remote_path") {
		t.Fatalf("expected archive remote_path error, got %v", err)
	}
}

func TestStablePathsExplicitFalse(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
volumes: ["C:"]
capture:
  use_stable_volume_paths: false
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Capture.StablePaths() {
		t.Error("explicit false should disable stable paths")
	}
}
