package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"

layout:
  stripe_unit: 65536
  stripe_count: 4
  object_size: 262144

objects:
  type: "memory"
  replication: 3
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Layout.StripeCount != 4 || cfg.Layout.StripeUnit != 65536 || cfg.Layout.ObjectSize != 262144 {
		t.Errorf("Unexpected layout: %v", cfg.Layout)
	}
	if cfg.Layout.Pool != "data" {
		t.Errorf("Expected layout pool to default to the object pool, got %q", cfg.Layout.Pool)
	}
	if cfg.Objects.Replication != 3 {
		t.Errorf("Expected replication 3, got %d", cfg.Objects.Replication)
	}
	if cfg.Client.MountTimeout != 30*time.Second {
		t.Errorf("Expected default mount_timeout 30s, got %v", cfg.Client.MountTimeout)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Client.ID != "admin" {
		t.Errorf("Expected default client id 'admin', got %q", cfg.Client.ID)
	}
	if cfg.Metadata.Type != "memory" || cfg.Objects.Type != "memory" {
		t.Errorf("Expected memory stores by default, got %q/%q", cfg.Metadata.Type, cfg.Objects.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("logging: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STRIPEFS_CLIENT_ID", "alice")
	t.Setenv("STRIPEFS_OBJECTS_REPLICATION", "2")
	t.Setenv("STRIPEFS_GC_INTERVAL", "5m")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Client.ID != "alice" {
		t.Errorf("Expected client id from env, got %q", cfg.Client.ID)
	}
	if cfg.Objects.Replication != 2 {
		t.Errorf("Expected replication from env, got %d", cfg.Objects.Replication)
	}
	if cfg.GC.Interval != 5*time.Minute {
		t.Errorf("Expected gc interval from env, got %v", cfg.GC.Interval)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[client]
id = "bob"
root = "/home"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Client.ID != "bob" || cfg.Client.Root != "/home" {
		t.Errorf("Unexpected client config: %+v", cfg.Client)
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if got := GetConfigDir(); got != filepath.Join(dir, "stripefs") {
		t.Errorf("Unexpected config dir %q", got)
	}
	if got := GetDefaultConfigPath(); got != filepath.Join(dir, "stripefs", "config.yaml") {
		t.Errorf("Unexpected config path %q", got)
	}
	if ConfigExists() {
		t.Error("Expected no config in a fresh directory")
	}
}
