package sched

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors taskgraph.yml
type Config struct {
	Workers   int    `yaml:"workers"`    // 4 (by default), 0 = inline dispatch
	FrameMS   int    `yaml:"frame_ms"`   // 16 (by default)
	Frames    int    `yaml:"frames"`     // 8 (by default)
	Islands   int    `yaml:"islands"`    // 4 (by default)
	LogLevel  string `yaml:"log_level"`  // info (by default)
	EventsCSV string `yaml:"events_csv"` // empty = no CSV event log
}

// If the config file is not found, we use default values
func defaultConfig() Config {
	return Config{
		Workers:  4,
		FrameMS:  16,
		Frames:   8,
		Islands:  4,
		LogLevel: "info",
	}
}

// Load reads YAML and overrides defaults; empty path or a missing file = defaults only
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return defaultConfig(), fmt.Errorf("parse %s: %w", path, err)
	}

	// sanity clamps
	if cfg.Workers < 0 {
		cfg.Workers = 0
	}
	if cfg.FrameMS <= 0 {
		cfg.FrameMS = 16
	}
	if cfg.Frames <= 0 {
		cfg.Frames = 8
	}
	if cfg.Islands < 0 {
		cfg.Islands = 0
	}

	return cfg, nil
}

// SlogLevel maps LogLevel onto a slog level; unknown names mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
