package recorder

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nvrhub/hieasy/internal/fsutil"
	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/metrics"
)

// Seam for disk-pressure tests.
var freeBytes = fsutil.FreeBytes

// diskLow reports whether free space in the record directory is below the
// configured threshold. Probe failures count as low; recording onto a
// filesystem we cannot stat is worse than pausing.
func (s *Supervisor) diskLow() bool {
	s.mu.Lock()
	dir := s.cfg.RecordDir
	minBytes := uint64(s.cfg.MinDiskMB) * 1024 * 1024
	s.mu.Unlock()
	if minBytes == 0 {
		return false
	}
	free, err := freeBytes(dir)
	if err != nil {
		s.log.Warn().Err(err).Str(xlog.FieldPath, dir).Msg("disk probe failed")
		return true
	}
	metrics.DiskFreeBytes.Set(float64(free))
	return free < minBytes
}

type cleanupCandidate struct {
	path     string
	modTime  time.Time
	uploaded bool
}

// emergencyCleanup frees space by deleting segments one at a time until the
// threshold is met again: uploaded files first, then oldest first, and
// never a channel's currently-open file.
func (s *Supervisor) emergencyCleanup() {
	s.mu.Lock()
	dir := s.cfg.RecordDir
	active := s.activeFilesLocked()
	state := s.state
	s.mu.Unlock()
	if state == nil {
		return
	}

	var candidates []cleanupCandidate
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
			path := filepath.Join(chDir, f.Name())
			if _, open := active[path]; open {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			candidates = append(candidates, cleanupCandidate{
				path:     path,
				modTime:  info.ModTime(),
				uploaded: state.IsUploaded(path),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].uploaded != candidates[j].uploaded {
			return candidates[i].uploaded
		}
		return candidates[i].modTime.Before(candidates[j].modTime)
	})

	deleted := 0
	for _, c := range candidates {
		if !s.diskLow() {
			break
		}
		if err := os.Remove(c.path); err != nil {
			s.log.Warn().Err(err).Str(xlog.FieldPath, c.path).Msg("emergency delete failed")
			continue
		}
		state.Forget(c.path)
		metrics.EmergencyDeletes.Inc()
		deleted++
		s.log.Warn().
			Str(xlog.FieldEvent, "recorder.emergency_delete").
			Str(xlog.FieldPath, c.path).
			Bool("was_uploaded", c.uploaded).
			Msg("deleted recording under disk pressure")
	}
	if deleted > 0 {
		if err := state.Save(); err != nil {
			s.log.Error().Err(err).Msg("upload state persist after cleanup failed")
		}
	}
}
