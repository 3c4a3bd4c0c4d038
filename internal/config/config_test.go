package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Workers != DefaultConfig().Workers {
		t.Errorf("expected default workers, got %d", cfg.Workers)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	if err := os.WriteFile(path, []byte("workers: 6\nlog_level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers != 6 {
		t.Errorf("expected workers=6, got %d", cfg.Workers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level=debug, got %s", cfg.LogLevel)
	}
	if cfg.StateRoot != DefaultConfig().StateRoot {
		t.Error("unset fields should retain defaults")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestValidateRejectsStaleBelowHeartbeat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatPeriod = cfg.StaleThreshold
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when stale_threshold <= heartbeat_period")
	}
}

func TestMergeWithFlagsOnlyAppliesSetFields(t *testing.T) {
	cfg := DefaultConfig()
	workers := 9
	cfg.MergeWithFlags(FlagOverrides{Workers: &workers})
	if cfg.Workers != 9 {
		t.Errorf("expected workers=9, got %d", cfg.Workers)
	}
	if cfg.LogLevel != DefaultConfig().LogLevel {
		t.Error("unset flag fields must not change config")
	}
}
