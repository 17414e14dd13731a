package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/metrics"
)

// Loop cadences, as variables so tests can compress time.
var (
	scheduleCheckInterval = 30 * time.Second
	diskRetryInterval     = 60 * time.Second
	monitorInterval       = 10 * time.Second
	restartPause          = 2 * time.Second
	errorPause            = 10 * time.Second
)

// channelLoop runs recording for one channel until ctx is cancelled. Every
// pipeline exit, schedule window close, or disk-pressure pause comes back
// through this loop; it never gives up on a channel.
func (s *Supervisor) channelLoop(ctx context.Context, channel int, st *ChannelStatus) {
	logger := s.log.With().Int(xlog.FieldChannel, channel).Logger()
	chDir := filepath.Join(s.cfg.RecordDir, fmt.Sprintf("ch%d", channel))

	for ctx.Err() == nil {
		if !s.scheduledNow() {
			s.setState(st, "waiting (schedule)")
			sleepCtx(ctx, scheduleCheckInterval)
			continue
		}

		if s.diskLow() {
			s.setState(st, "paused (disk low)")
			logger.Warn().
				Str(xlog.FieldEvent, "recorder.disk_low").
				Msg("free disk below threshold, running emergency cleanup")
			s.emergencyCleanup()
			if s.diskLow() {
				sleepCtx(ctx, diskRetryInterval)
				continue
			}
		}

		cfg := s.Config()
		p, err := startPipeline(cfg, channel)
		if err != nil {
			logger.Error().Err(err).
				Str(xlog.FieldEvent, "recorder.pipeline_start_failed").
				Msg("pipeline start failed")
			metrics.RecorderPipelineExits.WithLabelValues("start_failed").Inc()
			s.setState(st, "error")
			sleepCtx(ctx, errorPause)
			continue
		}

		s.mu.Lock()
		s.pipes[channel] = p
		st.State = "recording"
		st.Started = timeNow().Format(time.RFC3339)
		s.mu.Unlock()

		cause := s.monitor(ctx, p, st, chDir)

		p.stop()
		s.mu.Lock()
		delete(s.pipes, channel)
		st.File = ""
		s.mu.Unlock()

		metrics.RecorderPipelineExits.WithLabelValues(cause).Inc()
		if cause == "muxer_exit" {
			logger.Warn().
				Str(xlog.FieldEvent, "recorder.pipeline_exit").
				Str(xlog.FieldReason, cause).
				Strs("muxer_stderr", p.ring.LastN(10)).
				Msg("recording pipeline ended")
		} else {
			logger.Info().
				Str(xlog.FieldEvent, "recorder.pipeline_exit").
				Str(xlog.FieldReason, cause).
				Msg("recording pipeline ended")
		}

		if ctx.Err() != nil {
			break
		}
		sleepCtx(ctx, restartPause)
	}
	s.setState(st, "stopped")
}

// monitor watches a running pipeline and returns the exit cause: shutdown,
// out-of-schedule, muxer death, or disk pressure.
func (s *Supervisor) monitor(ctx context.Context, p *pipeline, st *ChannelStatus, chDir string) string {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case <-ticker.C:
		}
		if p.muxerExited() {
			return "muxer_exit"
		}
		if !s.scheduledNow() {
			return "schedule"
		}
		if s.diskLow() {
			return "disk_low"
		}

		segments, active := segmentCount(chDir)
		metrics.RecorderSegments.WithLabelValues(strconv.Itoa(p.channel)).Set(float64(segments))
		s.mu.Lock()
		st.Segments = segments
		st.File = active
		s.mu.Unlock()
	}
}

// segmentCount counts .mp4 files in dir and names the newest one.
func segmentCount(dir string) (int, string) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, ""
	}
	n := 0
	for _, f := range files {
		if !f.IsDir() && filepath.Ext(f.Name()) == ".mp4" {
			n++
		}
	}
	newest, ok := newestSegment(dir)
	if !ok {
		return n, ""
	}
	return n, filepath.Base(newest)
}

func (s *Supervisor) scheduledNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hourSet.Contains(timeNow().Hour())
}

func (s *Supervisor) setState(st *ChannelStatus, state string) {
	s.mu.Lock()
	st.State = state
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
