package recorder

import (
	"context"
	"os"
	"path/filepath"
	"time"

	xlog "github.com/nvrhub/hieasy/internal/log"
)

// Seam for retention tests.
var retentionInterval = 300 * time.Second

// retentionLoop deletes segments older than the retention window. Deleted
// files also leave the uploaded set so its size tracks the directory.
func (s *Supervisor) retentionLoop(ctx context.Context) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.retentionSweep()
		}
	}
}

func (s *Supervisor) retentionSweep() {
	s.mu.Lock()
	dir := s.cfg.RecordDir
	hours := s.cfg.RetentionHours
	state := s.state
	s.mu.Unlock()
	if hours <= 0 || state == nil {
		return
	}
	cutoff := timeNow().Add(-time.Duration(hours) * time.Hour)

	removed := 0
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) < 3 || e.Name()[:2] != "ch" {
			continue
		}
		chDir := filepath.Join(dir, e.Name())
		files, err := os.ReadDir(chDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".mp4" {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(chDir, f.Name())
			if err := os.Remove(path); err != nil {
				if !os.IsNotExist(err) {
					s.log.Warn().Err(err).Str(xlog.FieldPath, path).Msg("retention delete failed")
				}
				continue
			}
			state.Forget(path)
			removed++
			s.log.Info().
				Str(xlog.FieldEvent, "recorder.retention_delete").
				Str(xlog.FieldPath, path).
				Msg("removed expired recording")
		}
	}
	if removed > 0 {
		if err := state.Save(); err != nil {
			s.log.Error().Err(err).Msg("upload state persist after retention failed")
		}
	}
}
