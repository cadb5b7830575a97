package sched

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestLoadOverridesAndClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskgraph.yml")
	data := "workers: -2\nframe_ms: 0\nframes: 3\nislands: 7\nlog_level: DEBUG\nevents_csv: out.csv\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Workers:   0,
		FrameMS:   16,
		Frames:    3,
		Islands:   7,
		LogLevel:  "DEBUG",
		EventsCSV: "out.csv",
	}, cfg)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2\n"), 0o644))

	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestSlogLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	} {
		assert.Equal(t, want, Config{LogLevel: name}.SlogLevel(), name)
	}
}
