// Package config loads shrync's process-level configuration: the pieces
// that must be known before the store is even open (database path,
// listen port) plus the defaults for settings the store otherwise owns
// once seeded (cache dir, gpu mode, binary paths). Layering follows the
// teacher's YAML-file-with-defaults shape, generalised to also accept
// flag/env overrides the way tvarr's cobra/viper root command does.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is shrync's top-level runtime configuration.
type Config struct {
	// DBPath is where the embedded SQLite database file lives.
	DBPath string `yaml:"db_path"`

	// Port is the HTTP API listen port.
	Port int `yaml:"port"`

	// CacheDir is the directory eligible files are excluded from during
	// scan/watch, and where temp transcode artifacts are written when set.
	// If empty, temp files land beside the source file.
	CacheDir string `yaml:"cache_dir"`

	// GPUMode selects the hardware encoder family. "nvidia" enables NVENC
	// profiles; anything else falls back to the CPU equivalent codec.
	GPUMode string `yaml:"gpu_mode"`

	// FFmpegPath and FFprobePath are the external transcoder/prober binaries.
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	// LogLevel controls internal/logger's verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns a Config with sensible defaults. SHRYNC_VERSION is
// reported (see internal/version), not configured; GPU_MODE seeds the
// default here, and ApplyEnv applies CACHE_DIR, GPU_MODE and DB_PATH.
func Default() *Config {
	return &Config{
		DBPath:      "/config/shrync.db",
		Port:        8080,
		CacheDir:    "",
		GPUMode:     envOr("GPU_MODE", "cpu"),
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		LogLevel:    "info",
	}
}

// Load reads a YAML config file, applying defaults for anything missing
// and creating the file on first run if it doesn't exist yet.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if saveErr := cfg.Save(path); saveErr != nil {
				fmt.Fprintf(os.Stderr, "warning: could not create config file: %v\n", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "/config/shrync.db"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.GPUMode == "" {
		c.GPUMode = "cpu"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Save writes the config to path as YAML, creating its parent directory
// if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides CacheDir, GPUMode and DBPath from the CACHE_DIR,
// GPU_MODE and DB_PATH variables of the process environment,
// taking priority over both the YAML file and the struct defaults — this
// is the env-override layer of the flags-then-viper-then-env chain.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("GPU_MODE"); v != "" {
		c.GPUMode = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
