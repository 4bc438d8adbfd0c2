package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvironmentOverridesYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "overlay.yaml")
	if err := os.WriteFile(yamlPath, []byte("collect_interval: 120\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("COLLECT_INTERVAL", "180")
	os.Setenv("STORAGE_PATH", filepath.Join(dir, "monitor.db"))
	defer os.Unsetenv("COLLECT_INTERVAL")
	defer os.Unsetenv("STORAGE_PATH")

	cfg, err := Load(yamlPath, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CollectInterval != 180*time.Second {
		t.Errorf("expected environment (180s) to win over the YAML overlay (120s), got %v", cfg.CollectInterval)
	}
}

func TestLoadUsesYAMLWhenEnvironmentUnset(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "overlay.yaml")
	if err := os.WriteFile(yamlPath, []byte("collect_interval: 120\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("COLLECT_INTERVAL")

	cfg, err := Load(yamlPath, "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CollectInterval != 120*time.Second {
		t.Errorf("expected the YAML overlay value of 120s, got %v", cfg.CollectInterval)
	}
}

func TestLoadMissingYAMLIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CollectInterval != Default().CollectInterval {
		t.Errorf("expected defaults when the overlay file is absent")
	}
}

func TestValidateRejectsBadSeverity(t *testing.T) {
	cfg := Default()
	cfg.MinAlertSeverity = "urgent"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an invalid MIN_ALERT_SEVERITY to fail validation")
	}
}

func TestValidateRejectsNonPositiveCollectInterval(t *testing.T) {
	cfg := Default()
	cfg.CollectInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected a zero COLLECT_INTERVAL to fail validation")
	}
}
