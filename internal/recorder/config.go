package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/nvrhub/hieasy/internal/config"
	"github.com/nvrhub/hieasy/internal/upload"
)

// ConfigFile is the recorder configuration document inside the cache
// directory. It is the durable source of truth; environment variables only
// seed it on first start.
const ConfigFile = "recording_config.json"

// Config is the recorder's own configuration, persisted as JSON and
// editable at runtime through the HTTP surface or directly on disk.
type Config struct {
	Enabled        bool  `json:"enabled"`
	Channels       []int `json:"channels"`
	SegmentMinutes int   `json:"segment_minutes"`

	// StreamType selects the device encoder: 1 = main, 2 = sub.
	StreamType int `json:"stream_type"`

	// RetentionHours bounds local storage; 0 keeps recordings forever.
	RetentionHours int `json:"retention_hours"`

	Schedule  string `json:"schedule"`
	RecordDir string `json:"record_dir"`

	// MinDiskMB pauses recording and triggers emergency cleanup when free
	// space drops below it.
	MinDiskMB int `json:"min_disk_mb"`

	// FeederBin and MuxerBin override the pipeline executables.
	FeederBin string `json:"feeder_bin,omitempty"`
	MuxerBin  string `json:"muxer_bin,omitempty"`

	// MuxerExtraArgs is a shell-quoted string of additional muxer
	// arguments inserted before the output pattern.
	MuxerExtraArgs string `json:"muxer_extra_args,omitempty"`

	Upload upload.Config `json:"upload"`
}

// DefaultConfig builds a configuration from environment variables, used
// when no persisted document exists yet.
func DefaultConfig() Config {
	dir := config.ParseString("DVR_RECORD_DIR", "")
	if dir == "" {
		dir, _ = filepath.Abs("recordings")
	}
	return Config{
		Enabled:        config.ParseBool("DVR_RECORD_ENABLED", false),
		Channels:       config.ParseIntList("DVR_RECORD_CHANNELS", []int{0}),
		SegmentMinutes: config.ParseInt("DVR_RECORD_SEGMENT_MIN", 15),
		StreamType:     config.ParseInt("DVR_RECORD_STREAM_TYPE", 1),
		RetentionHours: config.ParseInt("DVR_RECORD_RETENTION_HR", 24),
		Schedule:       config.ParseString("DVR_RECORD_SCHEDULE", "0-23"),
		RecordDir:      dir,
		MinDiskMB:      config.ParseInt("DVR_RECORD_MIN_DISK_MB", 500),
		Upload: upload.Config{
			DriveEnabled:     config.ParseBool("DVR_GDRIVE_ENABLED", false),
			DriveCredentials: config.ParseString("DVR_GDRIVE_CREDENTIALS", ""),
			DriveFolderID:    config.ParseString("DVR_GDRIVE_FOLDER_ID", ""),
			Command:          config.ParseString("DVR_UPLOAD_COMMAND", ""),
			DeleteLocal:      config.ParseBool("DVR_GDRIVE_DELETE_LOCAL", false),
		},
	}
}

// LoadConfig reads the persisted configuration from cacheDir, falling back
// to environment defaults when the document does not exist. A document that
// exists but cannot be parsed is an error; silently reverting to defaults
// would discard operator edits.
func LoadConfig(cacheDir string) (Config, error) {
	path := filepath.Join(cacheDir, ConfigFile)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("recorder: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("recorder: parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig persists cfg atomically into cacheDir.
func SaveConfig(cacheDir string, cfg Config) error {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return fmt.Errorf("recorder: cache dir: %w", err)
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("recorder: encode config: %w", err)
	}
	path := filepath.Join(cacheDir, ConfigFile)
	if err := renameio.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("recorder: persist config: %w", err)
	}
	return nil
}

// Validate rejects configurations that cannot record.
func (c Config) Validate() error {
	if c.SegmentMinutes < 1 {
		return fmt.Errorf("recorder: segment_minutes must be >= 1, got %d", c.SegmentMinutes)
	}
	if c.StreamType != 1 && c.StreamType != 2 {
		return fmt.Errorf("recorder: stream_type must be 1 (main) or 2 (sub), got %d", c.StreamType)
	}
	if c.RetentionHours < 0 {
		return fmt.Errorf("recorder: retention_hours must be >= 0, got %d", c.RetentionHours)
	}
	if c.MinDiskMB < 0 {
		return fmt.Errorf("recorder: min_disk_mb must be >= 0, got %d", c.MinDiskMB)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("recorder: channels must not be empty")
	}
	for _, ch := range c.Channels {
		if ch < 0 {
			return fmt.Errorf("recorder: channel %d out of range", ch)
		}
	}
	if _, err := ParseSchedule(c.Schedule); err != nil {
		return err
	}
	return c.validateRecordDir()
}

// validateRecordDir requires an absolute path whose parent exists and which
// is writable, verified with a probe file.
func (c Config) validateRecordDir() error {
	if !filepath.IsAbs(c.RecordDir) {
		return fmt.Errorf("recorder: record_dir must be absolute, got %q", c.RecordDir)
	}
	parent := filepath.Dir(c.RecordDir)
	if _, err := os.Stat(parent); err != nil {
		return fmt.Errorf("recorder: record_dir parent: %w", err)
	}
	if err := os.MkdirAll(c.RecordDir, 0o755); err != nil {
		return fmt.Errorf("recorder: record_dir: %w", err)
	}
	probe := filepath.Join(c.RecordDir, ".write_probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return fmt.Errorf("recorder: record_dir not writable: %w", err)
	}
	_ = os.Remove(probe)
	return nil
}

// hours parses the schedule; callers run Validate first.
func (c Config) hours() HourSet {
	h, err := ParseSchedule(c.Schedule)
	if err != nil {
		h, _ = ParseSchedule("0-23")
	}
	return h
}

// Update is a partial configuration change; nil fields keep their current
// value.
type Update struct {
	Enabled        *bool          `json:"enabled,omitempty"`
	Channels       *[]int         `json:"channels,omitempty"`
	SegmentMinutes *int           `json:"segment_minutes,omitempty"`
	StreamType     *int           `json:"stream_type,omitempty"`
	RetentionHours *int           `json:"retention_hours,omitempty"`
	Schedule       *string        `json:"schedule,omitempty"`
	RecordDir      *string        `json:"record_dir,omitempty"`
	MinDiskMB      *int           `json:"min_disk_mb,omitempty"`
	MuxerExtraArgs *string        `json:"muxer_extra_args,omitempty"`
	Upload         *upload.Config `json:"upload,omitempty"`
}

// Apply merges the update onto cfg and returns the result.
func (u Update) Apply(cfg Config) Config {
	if u.Enabled != nil {
		cfg.Enabled = *u.Enabled
	}
	if u.Channels != nil {
		cfg.Channels = append([]int(nil), (*u.Channels)...)
	}
	if u.SegmentMinutes != nil {
		cfg.SegmentMinutes = *u.SegmentMinutes
	}
	if u.StreamType != nil {
		cfg.StreamType = *u.StreamType
	}
	if u.RetentionHours != nil {
		cfg.RetentionHours = *u.RetentionHours
	}
	if u.Schedule != nil {
		cfg.Schedule = *u.Schedule
	}
	if u.RecordDir != nil {
		cfg.RecordDir = *u.RecordDir
	}
	if u.MinDiskMB != nil {
		cfg.MinDiskMB = *u.MinDiskMB
	}
	if u.MuxerExtraArgs != nil {
		cfg.MuxerExtraArgs = *u.MuxerExtraArgs
	}
	if u.Upload != nil {
		cfg.Upload = *u.Upload
	}
	return cfg
}
