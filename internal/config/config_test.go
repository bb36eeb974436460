package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RegistryBackend != "sqlite" {
		t.Errorf("expected default registry backend sqlite, got %s", cfg.RegistryBackend)
	}
	if cfg.DataDir == "" {
		t.Error("expected a default data dir")
	}
}

func TestValidateRejectsBadRegistryBackend(t *testing.T) {
	cfg, _ := Load()
	cfg.RegistryBackend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown registry backend")
	}
}

func TestValidateRejectsOutOfRangeRollout(t *testing.T) {
	cfg, _ := Load()
	cfg.EnforcerRolloutPercent = 150
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for out-of-range rollout percent")
	}
}

func TestValidateForDevelopmentIsLenient(t *testing.T) {
	cfg := &Config{DataDir: "./data", RegistryBackend: "sqlite"}
	if err := cfg.ValidateForDevelopment(); err != nil {
		t.Errorf("expected lenient validation to pass, got %v", err)
	}
}

func TestLoadFileConfigExpandsEnvVars(t *testing.T) {
	os.Setenv("TEST_REGISTRY_PATH", "/tmp/registry.db")
	defer os.Unsetenv("TEST_REGISTRY_PATH")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := "registry:\n  backend: sqlite\n  path: \"${TEST_REGISTRY_PATH}\"\nenforcer:\n  enforce: true\n  rollout_percent: 25\n  drift_max_ratio: 0.1\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig failed: %v", err)
	}
	if fc.Registry.Path != "/tmp/registry.db" {
		t.Errorf("expected expanded env var, got %s", fc.Registry.Path)
	}
	if fc.Enforcer.RolloutPercent != 25 {
		t.Errorf("expected rollout_percent 25, got %d", fc.Enforcer.RolloutPercent)
	}
}

func TestApplyFileConfigOverlaysValues(t *testing.T) {
	cfg := &Config{RegistryBackend: "json", EnforcerRolloutPercent: 0}
	fc := &FileConfig{}
	fc.Registry.Backend = "sqlite"
	fc.Enforcer.RolloutPercent = 50

	cfg.ApplyFileConfig(fc)
	if cfg.RegistryBackend != "sqlite" {
		t.Errorf("expected overlay to set sqlite, got %s", cfg.RegistryBackend)
	}
	if cfg.EnforcerRolloutPercent != 50 {
		t.Errorf("expected overlay to set rollout percent 50, got %d", cfg.EnforcerRolloutPercent)
	}
}
