package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, DefaultAddr)
	}
	if cfg.ScreenWidth != 1920 || cfg.ScreenHeight != 1080 {
		t.Errorf("screen = %dx%d, want 1920x1080", cfg.ScreenWidth, cfg.ScreenHeight)
	}
	if cfg.Schema != "geometric" {
		t.Errorf("Schema = %q, want geometric", cfg.Schema)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DRISHTI_ADDR", ":9090")
	t.Setenv("DRISHTI_CAMERA_ID", "2")
	t.Setenv("DRISHTI_LAMBDA", "0.5")
	t.Setenv("DRISHTI_TRAY", "true")
	t.Setenv("DRISHTI_SCREEN_WIDTH", "not-a-number")

	cfg := FromEnv()

	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.CameraID != 2 {
		t.Errorf("CameraID = %d, want 2", cfg.CameraID)
	}
	if cfg.Lambda != 0.5 {
		t.Errorf("Lambda = %v, want 0.5", cfg.Lambda)
	}
	if !cfg.Tray {
		t.Error("Tray should be enabled")
	}
	if cfg.ScreenWidth != DefaultScreenWidth {
		t.Errorf("invalid int should fall back to default, got %d", cfg.ScreenWidth)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	content := "DRISHTI_SCHEMA=gaze-ratio\nDRISHTI_DATA_DIR=" + dir + "\n"
	if err := os.WriteFile(envPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("DRISHTI_SCHEMA")
		os.Unsetenv("DRISHTI_DATA_DIR")
	})

	cfg, err := Load(envPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Schema != "gaze-ratio" {
		t.Errorf("Schema = %q, want gaze-ratio", cfg.Schema)
	}
	if cfg.DBPath() != filepath.Join(dir, "drishti.db") {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lambda = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative lambda")
	}

	cfg = DefaultConfig()
	cfg.ScreenHeight = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero screen height")
	}
}
