package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesFileWithDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shrync.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected config file to be created, stat error: %v", err)
	}
}

func TestLoadAppliesDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shrync.yaml")
	os.WriteFile(path, []byte("db_path: /tmp/test.db\n"), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("expected explicit db_path preserved, got %q", cfg.DBPath)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port filled in, got %d", cfg.Port)
	}
	if cfg.GPUMode != "cpu" {
		t.Errorf("expected default gpu_mode cpu, got %q", cfg.GPUMode)
	}
}

func TestApplyEnvOverridesCacheDirAndGPUMode(t *testing.T) {
	t.Setenv("CACHE_DIR", "/cache")
	t.Setenv("GPU_MODE", "nvidia")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.CacheDir != "/cache" {
		t.Errorf("expected CACHE_DIR override, got %q", cfg.CacheDir)
	}
	if cfg.GPUMode != "nvidia" {
		t.Errorf("expected GPU_MODE override, got %q", cfg.GPUMode)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "shrync.yaml")

	cfg := Default()
	cfg.Port = 9090
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Port != 9090 {
		t.Errorf("expected round-tripped port 9090, got %d", loaded.Port)
	}
}
