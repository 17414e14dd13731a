package recorder

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	xlog "github.com/nvrhub/hieasy/internal/log"
)

// watchDebounce absorbs the bursts of write events editors and atomic
// renames produce for a single logical change.
var watchDebounce = 500 * time.Millisecond

// WatchConfig re-applies the recorder configuration whenever the document
// in the cache directory changes on disk, so operator edits take effect
// without a restart. It blocks until ctx is cancelled.
func (s *Supervisor) WatchConfig(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: renameio replaces the file, and
	// a watch on the old inode would go stale after the first update.
	if err := watcher.Add(s.cacheDir); err != nil {
		return err
	}

	logger := xlog.WithComponent("recorder")
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != ConfigFile {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case <-timerC:
			if err := s.Reload(ctx); err != nil {
				logger.Error().Err(err).
					Str(xlog.FieldEvent, "recorder.config_reload_failed").
					Msg("config file changed but could not be applied")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}
