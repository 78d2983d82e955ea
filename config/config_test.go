package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q", cfg.Bind)
	}
	if cfg.FirstByteTimeout() != time.Second {
		t.Errorf("FirstByteTimeout = %v", cfg.FirstByteTimeout())
	}
	if cfg.Templates.Ext != ".tpl" {
		t.Errorf("Templates.Ext = %q", cfg.Templates.Ext)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	body := `{
  "bind": "127.0.0.1:9999",
  "firstByteTimeoutMs": 250,
  "templates": {"dir": "pages", "autoReload": true},
  "logging": {"format": "json", "level": "debug"}
}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bind != "127.0.0.1:9999" {
		t.Errorf("Bind = %q", cfg.Bind)
	}
	if cfg.FirstByteTimeout() != 250*time.Millisecond {
		t.Errorf("FirstByteTimeout = %v", cfg.FirstByteTimeout())
	}
	if !cfg.Templates.AutoReload {
		t.Error("Templates.AutoReload not picked up")
	}
	if cfg.Templates.Ext != ".tpl" {
		t.Errorf("unset field lost its default: Ext = %q", cfg.Templates.Ext)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q", cfg.Logging.Format)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("KALE_BIND", "127.0.0.1:7001")
	t.Setenv("KALE_LOGGING_LEVEL", "warn")
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bind != "127.0.0.1:7001" {
		t.Errorf("Bind = %q", cfg.Bind)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	body := `{"logging": {"format": "xml"}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Load accepted an unknown logging format")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Bind = "127.0.0.1:4242"
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Bind != "127.0.0.1:4242" {
		t.Errorf("Bind after round trip = %q", loaded.Bind)
	}
}
