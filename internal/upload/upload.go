// SPDX-License-Identifier: MIT

// Package upload moves completed recording segments to their off-box
// destination: a Drive folder, an operator-supplied shell command, or both.
// Progress is durable so a restart never re-uploads finished segments.
package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/metrics"
)

// Config selects and parameterises the upload destinations.
type Config struct {
	DriveEnabled     bool   `json:"drive_enabled"`
	DriveCredentials string `json:"drive_credentials,omitempty"`
	DriveFolderID    string `json:"drive_folder_id,omitempty"`

	// Command is a shell template run per segment with {file}, {channel}
	// and {filename} placeholders. May be combined with Drive; the Drive
	// upload runs first.
	Command string `json:"command,omitempty"`

	// DeleteLocal removes the segment after every configured destination
	// has accepted it.
	DeleteLocal bool `json:"delete_local"`
}

// Enabled reports whether any destination is configured.
func (c Config) Enabled() bool {
	return c.DriveEnabled || c.Command != ""
}

// Uploader is the destination contract. Drive implements it; tests use
// in-memory fakes.
type Uploader interface {
	EnsureSubfolder(ctx context.Context, name string) (string, error)
	Upload(ctx context.Context, path, filename, folderID string) (string, error)
	ListFiles(ctx context.Context, folderID string, limit int) ([]RemoteFile, error)
	Delete(ctx context.Context, fileID string) error
}

// RemoteFile describes one file at the destination.
type RemoteFile struct {
	ID      string
	Name    string
	Size    int64
	Created time.Time
}

const (
	// passInterval is how often the worker sweeps the record directory.
	passInterval = 15 * time.Second

	// minSegmentAge is the quiet period after the last write before a
	// segment counts as closed. The muxer never reopens a finished file.
	minSegmentAge = 60 * time.Second
)

// Overridable in liveness-sensitive tests.
var timeNow = time.Now

// Pending is one segment awaiting upload.
type Pending struct {
	Path    string
	Channel string
}

// FindCompleted lists closed, non-empty, not-yet-uploaded segments under
// recordDir/ch*/ in filesystem-listing order.
func FindCompleted(recordDir string, state *State) []Pending {
	var out []Pending
	entries, err := os.ReadDir(recordDir)
	if err != nil {
		return out
	}
	now := timeNow()
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) < 3 || e.Name()[:2] != "ch" {
			continue
		}
		chDir := filepath.Join(recordDir, e.Name())
		files, err := os.ReadDir(chDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".mp4" {
				continue
			}
			path := filepath.Join(chDir, f.Name())
			info, err := f.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) <= minSegmentAge || info.Size() == 0 {
				continue
			}
			if state.IsUploaded(path) {
				continue
			}
			out = append(out, Pending{Path: path, Channel: e.Name()})
		}
	}
	return out
}

// Worker runs periodic upload passes.
type Worker struct {
	recordDir string
	cfg       Config
	drive     Uploader
	state     *State
	log       zerolog.Logger

	interval time.Duration
}

// NewWorker builds an upload worker. drive may be nil when only the
// command destination is configured.
func NewWorker(recordDir string, cfg Config, drive Uploader, state *State) *Worker {
	return &Worker{
		recordDir: recordDir,
		cfg:       cfg,
		drive:     drive,
		state:     state,
		log:       xlog.WithComponent("upload"),
		interval:  passInterval,
	}
}

// Run sweeps until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Pass(ctx)
		}
	}
}

// Pass uploads every currently completed segment once. It is idempotent:
// uploaded files are skipped on later passes, and files that have exhausted
// their retries are left alone until a restart.
func (w *Worker) Pass(ctx context.Context) {
	for _, p := range FindCompleted(w.recordDir, w.state) {
		if ctx.Err() != nil {
			return
		}
		if w.state.Exhausted(p.Path) {
			metrics.Uploads.WithLabelValues("skipped").Inc()
			continue
		}
		if err := w.uploadOne(ctx, p); err != nil {
			n := w.state.RecordFailure(p.Path)
			metrics.Uploads.WithLabelValues("failed").Inc()
			w.log.Error().Err(err).
				Str(xlog.FieldEvent, "upload.failed").
				Str(xlog.FieldPath, p.Path).
				Int("attempt", n).
				Msg("upload failed")
			continue
		}
		w.state.MarkUploaded(p.Path)
		metrics.Uploads.WithLabelValues("ok").Inc()
		if err := w.state.Save(); err != nil {
			w.log.Error().Err(err).Str(xlog.FieldEvent, "upload.state_persist_failed").Msg("state persist failed")
		}
		w.log.Info().
			Str(xlog.FieldEvent, "upload.done").
			Str(xlog.FieldPath, p.Path).
			Msg("segment uploaded")

		if w.cfg.DeleteLocal {
			if err := os.Remove(p.Path); err != nil {
				w.log.Warn().Err(err).Str(xlog.FieldPath, p.Path).Msg("local delete after upload failed")
			}
		}
	}
}

func (w *Worker) uploadOne(ctx context.Context, p Pending) error {
	filename := filepath.Base(p.Path)
	if w.drive != nil {
		folder, err := w.drive.EnsureSubfolder(ctx, p.Channel)
		if err != nil {
			return fmt.Errorf("ensure subfolder %s: %w", p.Channel, err)
		}
		if _, err := w.drive.Upload(ctx, p.Path, filename, folder); err != nil {
			return fmt.Errorf("drive upload: %w", err)
		}
	}
	if w.cfg.Command != "" {
		if err := runUploadCommand(ctx, w.cfg.Command, p.Path, p.Channel, filename); err != nil {
			return err
		}
	}
	return nil
}
