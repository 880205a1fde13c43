package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds stepflow settings.
// Priority: env vars > settings.toml > defaults.
type Config struct {
	DataDir   string `toml:"data_dir"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "text" or "json"
}

func defaultConfig() Config {
	return Config{
		DataDir:   stepflowDir(),
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func stepflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stepflow"
	}
	return filepath.Join(home, ".stepflow")
}

func settingsPath() string {
	return filepath.Join(stepflowDir(), "settings.toml")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.toml (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STEPFLOW_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STEPFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STEPFLOW_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

func (c Config) slogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
