package recorder

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"

	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/procgroup"
)

const (
	// feederGrace is how long the feeder gets after SIGTERM to run its
	// graceful device teardown before the group is killed.
	feederGrace = 5 * time.Second

	// muxerGrace is how long the muxer gets to flush and finalise the
	// open segment once its stdin hits EOF.
	muxerGrace = 15 * time.Second

	killTimeout = 5 * time.Second
)

// pipeline is one running feeder|muxer pair for a channel. The feeder
// speaks the device protocol and writes raw H.264 to the pipe; the muxer
// rotates it into timestamped MP4 segments.
type pipeline struct {
	channel int
	feeder  *exec.Cmd
	muxer   *exec.Cmd
	ring    *lineRing
	log     zerolog.Logger

	feederDone chan error
	muxerDone  chan error
	running    atomic.Bool
}

// muxerArgs builds the segmenting command line. The input is headerless
// Annex-B H.264, so the rate and timestamps have to be synthesised here.
func muxerArgs(cfg Config, chDir string) ([]string, error) {
	args := []string{
		"-hide_banner", "-loglevel", "warning", "-y",
		"-fflags", "+genpts",
		"-r", "25",
		"-f", "h264",
		"-i", "pipe:0",
		"-c", "copy",
		"-f", "segment",
		"-segment_time", strconv.Itoa(cfg.SegmentMinutes * 60),
		"-segment_format", "mp4",
		"-segment_format_options", "movflags=+faststart",
		"-strftime", "1",
		"-reset_timestamps", "1",
	}
	if cfg.MuxerExtraArgs != "" {
		extra, err := shellquote.Split(cfg.MuxerExtraArgs)
		if err != nil {
			return nil, fmt.Errorf("recorder: muxer_extra_args: %w", err)
		}
		args = append(args, extra...)
	}
	return append(args, filepath.Join(chDir, "%Y-%m-%d_%H-%M-%S.mp4")), nil
}

// startPipeline launches the two processes, connected by a pipe, each in
// its own process group. Device endpoint settings travel to the feeder via
// the inherited DVR_* environment.
func startPipeline(cfg Config, channel int) (*pipeline, error) {
	chDir := filepath.Join(cfg.RecordDir, fmt.Sprintf("ch%d", channel))
	if err := os.MkdirAll(chDir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: channel dir: %w", err)
	}

	feederBin := cfg.FeederBin
	if feederBin == "" {
		feederBin = "hieasy-feeder"
	}
	muxerBin := cfg.MuxerBin
	if muxerBin == "" {
		muxerBin = "ffmpeg"
	}

	mArgs, err := muxerArgs(cfg, chDir)
	if err != nil {
		return nil, err
	}

	p := &pipeline{
		channel: channel,
		ring:    newLineRing(64),
		log: xlog.WithComponent("recorder").With().
			Int(xlog.FieldChannel, channel).Logger(),
		feederDone: make(chan error, 1),
		muxerDone:  make(chan error, 1),
	}

	p.feeder = exec.Command(feederBin, // #nosec G204 -- operator-configured binary
		"--channel", strconv.Itoa(channel),
		"--stream-type", strconv.Itoa(cfg.StreamType),
	)
	p.muxer = exec.Command(muxerBin, mArgs...) // #nosec G204
	procgroup.Set(p.feeder)
	procgroup.Set(p.muxer)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("recorder: pipe: %w", err)
	}
	p.feeder.Stdout = pw
	p.muxer.Stdin = pr
	p.feeder.Stderr = os.Stderr // feeder logs pass through to the daemon's stderr

	muxerStderr, err := p.muxer.StderrPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("recorder: muxer stderr: %w", err)
	}

	if err := p.feeder.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("recorder: start feeder: %w", err)
	}
	if err := p.muxer.Start(); err != nil {
		pr.Close()
		pw.Close()
		_ = procgroup.KillGroup(p.feeder.Process.Pid, 0, killTimeout)
		_ = p.feeder.Wait()
		return nil, fmt.Errorf("recorder: start muxer: %w", err)
	}

	// The parent's pipe ends must close so the muxer sees EOF when the
	// feeder exits.
	pr.Close()
	pw.Close()

	p.running.Store(true)
	p.log.Info().
		Str(xlog.FieldEvent, "recorder.pipeline_start").
		Int("feeder_pid", p.feeder.Process.Pid).
		Int("muxer_pid", p.muxer.Process.Pid).
		Str(xlog.FieldPath, chDir).
		Int("segment_seconds", cfg.SegmentMinutes*60).
		Msg("recording pipeline started")

	go func() {
		p.feederDone <- p.feeder.Wait()
	}()
	go func() {
		scanner := bufio.NewScanner(muxerStderr)
		for scanner.Scan() {
			p.ring.Append(scanner.Text())
		}
		err := p.muxer.Wait()
		p.running.Store(false)
		p.muxerDone <- err
	}()

	return p, nil
}

// alive reports whether the muxer is still running, which is what decides
// whether a channel's newest segment counts as open.
func (p *pipeline) alive() bool {
	return p.running.Load()
}

// muxerExited is a non-blocking liveness probe for the monitor loop.
func (p *pipeline) muxerExited() bool {
	return !p.running.Load()
}

// stop tears the pair down in order: terminate the feeder so the pipe hits
// EOF, then give the muxer time to finalise the open segment, escalating to
// a group kill only on timeout.
func (p *pipeline) stop() {
	if err := procgroup.KillGroup(p.feeder.Process.Pid, feederGrace, killTimeout); err != nil {
		p.log.Warn().Err(err).Int(xlog.FieldPID, p.feeder.Process.Pid).Msg("feeder group did not die")
	}
	select {
	case <-p.feederDone:
	case <-time.After(killTimeout):
	}

	select {
	case <-p.muxerDone:
	case <-time.After(muxerGrace):
		p.log.Warn().
			Int(xlog.FieldPID, p.muxer.Process.Pid).
			Msg("muxer still running after grace, killing group")
		_ = procgroup.KillGroup(p.muxer.Process.Pid, 0, killTimeout)
		select {
		case <-p.muxerDone:
		case <-time.After(killTimeout):
		}
	}
}
