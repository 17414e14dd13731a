package recorder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvrhub/hieasy/internal/upload"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.RecordDir = filepath.Join(t.TempDir(), "recordings")
	return cfg
}

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("DVR_RECORD_ENABLED", "true")
	t.Setenv("DVR_RECORD_CHANNELS", "0,2")
	t.Setenv("DVR_RECORD_SEGMENT_MIN", "5")
	t.Setenv("DVR_RECORD_SCHEDULE", "8-17")
	t.Setenv("DVR_RECORD_MIN_DISK_MB", "250")

	cfg := DefaultConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []int{0, 2}, cfg.Channels)
	assert.Equal(t, 5, cfg.SegmentMinutes)
	assert.Equal(t, 1, cfg.StreamType)
	assert.Equal(t, 24, cfg.RetentionHours)
	assert.Equal(t, "8-17", cfg.Schedule)
	assert.Equal(t, 250, cfg.MinDiskMB)
}

func TestConfigRoundTrip(t *testing.T) {
	cacheDir := t.TempDir()
	cfg := validConfig(t)
	cfg.Channels = []int{1, 3}
	cfg.Upload = upload.Config{Command: "true {file}", DeleteLocal: true}
	require.NoError(t, SaveConfig(cacheDir, cfg))

	loaded, err := LoadConfig(cacheDir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigMissingFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, []int{0}, cfg.Channels)
}

func TestLoadConfigCorruptIsAnError(t *testing.T) {
	cacheDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, ConfigFile), []byte("{"), 0o644))
	_, err := LoadConfig(cacheDir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.RecordDir = "relative/path"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.RecordDir = filepath.Join(t.TempDir(), "missing-parent", "deep", "recordings")
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.StreamType = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SegmentMinutes = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Schedule = "8-25"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Channels = nil
	assert.Error(t, bad.Validate())
}

func TestUpdateApplyPartialMerge(t *testing.T) {
	cfg := validConfig(t)
	cfg.SegmentMinutes = 15
	cfg.Schedule = "0-23"

	minutes := 5
	schedule := "22-6"
	next := Update{SegmentMinutes: &minutes, Schedule: &schedule}.Apply(cfg)

	assert.Equal(t, 5, next.SegmentMinutes)
	assert.Equal(t, "22-6", next.Schedule)
	assert.Equal(t, cfg.Channels, next.Channels, "untouched fields survive")
	assert.Equal(t, cfg.RecordDir, next.RecordDir)
	assert.Equal(t, cfg.StreamType, next.StreamType)
}
