// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("RUNNER_BATCH_SIZE")
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runner.BatchSize != 10 {
		t.Fatalf("expected default batch size 10, got %d", cfg.Runner.BatchSize)
	}
	if cfg.State.Driver != "sqlite" {
		t.Fatalf("expected default state driver sqlite, got %q", cfg.State.Driver)
	}
	if cfg.Storage.Backend != "local" {
		t.Fatalf("expected default storage backend local, got %q", cfg.Storage.Backend)
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Runner.BatchSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for runner.batch_size < 1")
	}

	cfg = defaultConfig()
	cfg.Runner.LeaseSeconds = 10
	cfg.Runner.HeartbeatInterval = 30 * 1e9 // 30s, more than half of 10s lease
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for heartbeat_interval > lease_seconds/2")
	}

	cfg = defaultConfig()
	cfg.State.Driver = "mysql"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for unsupported state.driver")
	}

	cfg = defaultConfig()
	cfg.Storage.Backend = "s3"
	cfg.Storage.S3Bucket = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for s3 backend missing bucket")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("RUNNER_BATCH_SIZE", "25")
	defer os.Unsetenv("RUNNER_BATCH_SIZE")

	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Runner.BatchSize != 25 {
		t.Fatalf("expected env override batch size 25, got %d", cfg.Runner.BatchSize)
	}
}
