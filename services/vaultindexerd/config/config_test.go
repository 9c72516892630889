package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.ListenAddress != ":8180" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Poll.Interval.Duration != 2*time.Second {
		t.Fatalf("unexpected poll interval %s", cfg.Poll.Interval.Duration)
	}
	if cfg.Poll.BatchSize != 200 {
		t.Fatalf("unexpected batch size %d", cfg.Poll.BatchSize)
	}
	if cfg.Archive.Window.Duration != 24*time.Hour {
		t.Fatalf("unexpected archive window %s", cfg.Archive.Window.Duration)
	}
}

func TestLoadParsesFile(t *testing.T) {
	raw := `
listen: ":9000"
node_url: "http://node.internal:8080"
database: "postgres://indexer:secret@db/stakevault"
poll:
  interval: "500ms"
  batch_size: 50
api:
  auth_enabled: true
  hmac_secret: "topsecret"
  rate_per_second: 10
  burst: 20
archive:
  enabled: true
  output_dir: "/var/lib/stakevault/archive"
  run_hour: 3
  run_minute: 30
  window: "12h"
`
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("unexpected listen %q", cfg.ListenAddress)
	}
	if cfg.NodeURL != "http://node.internal:8080" {
		t.Fatalf("unexpected node url %q", cfg.NodeURL)
	}
	if cfg.Poll.Interval.Duration != 500*time.Millisecond {
		t.Fatalf("unexpected interval %s", cfg.Poll.Interval.Duration)
	}
	if cfg.Poll.BatchSize != 50 {
		t.Fatalf("unexpected batch size %d", cfg.Poll.BatchSize)
	}
	if !cfg.API.AuthEnabled || cfg.API.HMACSecret != "topsecret" {
		t.Fatalf("unexpected api config %+v", cfg.API)
	}
	if !cfg.Archive.Enabled || cfg.Archive.RunHour != 3 || cfg.Archive.RunMinute != 30 {
		t.Fatalf("unexpected archive config %+v", cfg.Archive)
	}
	if cfg.Archive.Window.Duration != 12*time.Hour {
		t.Fatalf("unexpected window %s", cfg.Archive.Window.Duration)
	}
}

func TestLoadRejectsAuthWithoutSecret(t *testing.T) {
	raw := `
api:
  auth_enabled: true
`
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for auth without secret")
	}
}

func TestLoadRejectsBadSchedule(t *testing.T) {
	raw := `
archive:
  run_hour: 24
`
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for out-of-range run_hour")
	}
}
