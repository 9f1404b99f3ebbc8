package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" || cfg.Workers != 32 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listenAddr: ":9090"
workers: 8
requestTimeout: 2s
etcd:
  endpoints: ["127.0.0.1:2379"]
rateLimit:
  enabled: true
  perCaller: true
  rps: 10
  burst: 20
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9090" || cfg.Workers != 8 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("expect 2s timeout, got %s", cfg.RequestTimeout)
	}
	if len(cfg.Etcd.Endpoints) != 1 || cfg.Etcd.TTL != 10 {
		t.Errorf("etcd config mismatch: %+v", cfg.Etcd)
	}
	if !cfg.RateLimit.Enabled || !cfg.RateLimit.PerCaller || cfg.RateLimit.Burst != 20 {
		t.Errorf("rate limit config mismatch: %+v", cfg.RateLimit)
	}
	// Untouched fields keep their defaults.
	if cfg.QueueSize != 1024 {
		t.Errorf("expect default queue size, got %d", cfg.QueueSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MINIRPC_LISTEN_ADDR", ":7070")
	t.Setenv("MINIRPC_WORKERS", "4")
	t.Setenv("MINIRPC_ETCD_ENDPOINTS", "a:2379, b:2379")
	t.Setenv("MINIRPC_RATE_LIMIT_ENABLED", "true")
	t.Setenv("MINIRPC_REQUEST_TIMEOUT", "750ms")
	t.Setenv("MINIRPC_QUEUE_SIZE", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":7070" || cfg.Workers != 4 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.Etcd.Endpoints) != 2 || cfg.Etcd.Endpoints[1] != "b:2379" {
		t.Errorf("unexpected endpoints %v", cfg.Etcd.Endpoints)
	}
	if !cfg.RateLimit.Enabled || cfg.RequestTimeout != 750*time.Millisecond {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if cfg.QueueSize != 1024 {
		t.Errorf("invalid env value must be ignored, got %d", cfg.QueueSize)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("workers: [1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expect parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expect read error")
	}

	cfg := Default()
	cfg.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expect validation error for zero workers")
	}
}
