// SPDX-License-Identifier: MIT

// Package recorder supervises continuous per-channel recording: a feeder
// process piped into a segmenting muxer, with schedule windows, disk
// guards, retention, and the upload queue.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/upload"
)

// Overridable in liveness-sensitive tests.
var timeNow = time.Now

// ChannelStatus is the JSON-safe per-channel view.
type ChannelStatus struct {
	State    string `json:"state"`
	File     string `json:"file,omitempty"`
	Started  string `json:"started,omitempty"`
	Segments int    `json:"segments"`
}

// Status is the JSON-safe supervisor summary.
type Status struct {
	Enabled        bool                      `json:"enabled"`
	Running        bool                      `json:"running"`
	Channels       map[string]*ChannelStatus `json:"channels"`
	DriveEnabled   bool                      `json:"drive_enabled"`
	DriveConnected bool                      `json:"drive_connected"`
	UploadCommand  bool                      `json:"upload_command"`
	UploadPending  int                       `json:"upload_pending"`
	Schedule       []int                     `json:"schedule"`
	SegmentMinutes int                       `json:"segment_minutes"`
	StreamType     int                       `json:"stream_type"`
	RetentionHours int                       `json:"retention_hours"`
	RecordDir      string                    `json:"record_dir"`
}

// Recording describes one completed local segment.
type Recording struct {
	Channel  string    `json:"channel"`
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Uploaded bool      `json:"uploaded"`
}

// Supervisor runs the recording loops for the configured channels and owns
// the upload queue and retention sweeps. It is safe for concurrent use by
// the HTTP surface.
type Supervisor struct {
	cacheDir string
	log      zerolog.Logger

	// newUploader constructs the Drive uploader; tests substitute fakes.
	newUploader func(ctx context.Context, cfg upload.Config) (upload.Uploader, error)

	mu       sync.Mutex
	cfg      Config
	hourSet  HourSet
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	pipes    map[int]*pipeline
	status   map[int]*ChannelStatus
	state    *upload.State
	uploader upload.Uploader
}

// New builds a supervisor from the persisted configuration in cacheDir.
func New(cacheDir string) (*Supervisor, error) {
	cfg, err := LoadConfig(cacheDir)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		cacheDir: cacheDir,
		cfg:      cfg,
		hourSet:  cfg.hours(),
		log:      xlog.WithComponent("recorder"),
		pipes:    make(map[int]*pipeline),
		status:   make(map[int]*ChannelStatus),
		newUploader: func(ctx context.Context, cfg upload.Config) (upload.Uploader, error) {
			return upload.NewDrive(ctx, cfg.DriveCredentials, cfg.DriveFolderID)
		},
	}, nil
}

// Config returns a copy of the current configuration.
func (s *Supervisor) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.Channels = append([]int(nil), s.cfg.Channels...)
	return cfg
}

// Running reports whether the channel loops are up.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the per-channel loops plus the upload and retention
// workers. A disabled configuration is a successful no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if !s.cfg.Enabled {
		s.log.Info().
			Str(xlog.FieldEvent, "recorder.disabled").
			Msg("recording disabled")
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.hourSet = s.cfg.hours()
	s.state = upload.LoadState(s.cfg.RecordDir)

	if s.cfg.Upload.DriveEnabled {
		up, err := s.newUploader(runCtx, s.cfg.Upload)
		if err != nil {
			// Recording must not depend on the uploader being reachable.
			s.log.Error().Err(err).
				Str(xlog.FieldEvent, "recorder.uploader_init_failed").
				Msg("drive uploader init failed, uploads disabled")
		} else {
			s.uploader = up
		}
	}

	for _, ch := range s.cfg.Channels {
		st := &ChannelStatus{State: "starting"}
		s.status[ch] = st
		s.wg.Add(1)
		go func(ch int) {
			defer s.wg.Done()
			s.channelLoop(runCtx, ch, st)
		}(ch)
	}

	if s.cfg.Upload.Enabled() {
		worker := upload.NewWorker(s.cfg.RecordDir, s.cfg.Upload, s.uploader, s.state)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			worker.Run(runCtx)
		}()
	}
	if s.cfg.RetentionHours > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.retentionLoop(runCtx)
		}()
	}

	s.log.Info().
		Str(xlog.FieldEvent, "recorder.started").
		Ints("channels", s.cfg.Channels).
		Int("segment_minutes", s.cfg.SegmentMinutes).
		Ints("schedule", s.hourSet.Hours()).
		Msg("recording supervisor started")
	return nil
}

// Stop tears down every channel loop and waits for the pipelines to
// finalise their open segments.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	if s.state != nil {
		if err := s.state.Save(); err != nil {
			s.log.Error().Err(err).Msg("upload state persist on stop failed")
		}
	}
	s.uploader = nil
	s.mu.Unlock()
	s.log.Info().Str(xlog.FieldEvent, "recorder.stopped").Msg("recording supervisor stopped")
}

// Status returns the JSON-safe summary.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	channels := make(map[string]*ChannelStatus, len(s.status))
	for ch, st := range s.status {
		cp := *st
		channels[fmt.Sprintf("%d", ch)] = &cp
	}
	pending := 0
	if s.state != nil {
		pending = len(upload.FindCompleted(s.cfg.RecordDir, s.state))
	}
	return Status{
		Enabled:        s.cfg.Enabled,
		Running:        s.running,
		Channels:       channels,
		DriveEnabled:   s.cfg.Upload.DriveEnabled,
		DriveConnected: s.uploader != nil,
		UploadCommand:  s.cfg.Upload.Command != "",
		UploadPending:  pending,
		Schedule:       s.cfg.hours().Hours(),
		SegmentMinutes: s.cfg.SegmentMinutes,
		StreamType:     s.cfg.StreamType,
		RetentionHours: s.cfg.RetentionHours,
		RecordDir:      s.cfg.RecordDir,
	}
}

// Recordings lists completed local segments, newest first. The active file
// of each channel with a live muxer is excluded. channel < 0 means all
// channels.
func (s *Supervisor) Recordings(channel, limit int) []Recording {
	s.mu.Lock()
	cfg := s.cfg
	active := s.activeFilesLocked()
	state := s.state
	s.mu.Unlock()
	if state == nil {
		state = upload.LoadState(cfg.RecordDir)
	}
	if limit <= 0 {
		limit = 50
	}

	var dirs []string
	if channel >= 0 {
		dirs = []string{filepath.Join(cfg.RecordDir, fmt.Sprintf("ch%d", channel))}
	} else {
		entries, err := os.ReadDir(cfg.RecordDir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() && len(e.Name()) > 2 && e.Name()[:2] == "ch" {
					dirs = append(dirs, filepath.Join(cfg.RecordDir, e.Name()))
				}
			}
			sort.Strings(dirs)
		}
	}

	var out []Recording
	for _, dir := range dirs {
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		chName := filepath.Base(dir)
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".mp4" {
				continue
			}
			path := filepath.Join(dir, f.Name())
			if _, open := active[path]; open {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			out = append(out, Recording{
				Channel:  chName,
				Filename: f.Name(),
				Size:     info.Size(),
				Modified: info.ModTime(),
				Uploaded: state.IsUploaded(path),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Modified.After(out[j].Modified) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// activeFilesLocked returns the set of currently-open segment paths: the
// newest-mtime .mp4 per channel, counted only while that channel's muxer is
// alive. Callers hold s.mu.
func (s *Supervisor) activeFilesLocked() map[string]struct{} {
	active := make(map[string]struct{})
	for ch, p := range s.pipes {
		if p == nil || !p.alive() {
			continue
		}
		dir := filepath.Join(s.cfg.RecordDir, fmt.Sprintf("ch%d", ch))
		if newest, ok := newestSegment(dir); ok {
			active[newest] = struct{}{}
		}
	}
	return active
}

// newestSegment finds the most recently modified .mp4 in dir.
func newestSegment(dir string) (string, bool) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var (
		newest string
		mtime  time.Time
	)
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".mp4" {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(mtime) {
			newest = filepath.Join(dir, f.Name())
			mtime = info.ModTime()
		}
	}
	return newest, newest != ""
}

// UpdateConfig validates and applies a partial configuration change. The
// supervisor is stopped first so in-flight segments are finalised, then
// restarted when the new configuration has recording enabled.
func (s *Supervisor) UpdateConfig(ctx context.Context, u Update) (Config, error) {
	s.mu.Lock()
	next := u.Apply(s.cfg)
	s.mu.Unlock()

	if err := next.Validate(); err != nil {
		return Config{}, err
	}
	if err := SaveConfig(s.cacheDir, next); err != nil {
		return Config{}, err
	}
	s.applyConfig(ctx, next)
	return next, nil
}

// Reload re-reads the persisted configuration, for the file watcher. A
// document identical to the running configuration is a no-op so the save
// performed by UpdateConfig does not restart the supervisor twice.
func (s *Supervisor) Reload(ctx context.Context) error {
	next, err := LoadConfig(s.cacheDir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	same := configEqual(s.cfg, next)
	s.mu.Unlock()
	if same {
		return nil
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.log.Info().
		Str(xlog.FieldEvent, "recorder.config_reload").
		Msg("recording configuration changed on disk, re-applying")
	s.applyConfig(ctx, next)
	return nil
}

func (s *Supervisor) applyConfig(ctx context.Context, next Config) {
	s.Stop()
	s.mu.Lock()
	s.cfg = next
	s.hourSet = next.hours()
	s.status = make(map[int]*ChannelStatus)
	s.pipes = make(map[int]*pipeline)
	s.mu.Unlock()
	if next.Enabled {
		if err := s.Start(ctx); err != nil {
			s.log.Error().Err(err).Msg("restart after config update failed")
		}
	}
}

func configEqual(a, b Config) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ab) == string(bb)
}
