package media

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultReadTimeout bounds one socket read. The device streams
	// continuously; silence is a liveness signal, not a normal state.
	DefaultReadTimeout = 5 * time.Second

	readChunkSize          = 64 * 1024
	maxConsecutiveTimeouts = 3
)

// Reader pulls clean H.264 frames off an established media connection.
// Frames whose payload yields no standard NAL units are consumed silently.
// The stream ends with io.EOF on orderly close and after three consecutive
// read timeouts; any other I/O error is returned as-is and is sticky.
type Reader struct {
	conn     net.Conn
	parser   frameParser
	timeout  time.Duration
	timeouts int
	chunk    []byte

	log           zerolog.Logger
	warnEvery     *rate.Limiter
	warnedResyncs uint64

	pendingErr error // delivered once buffered frames are drained
	err        error
}

// NewReader wraps an established media connection. A non-positive timeout
// applies DefaultReadTimeout.
func NewReader(conn net.Conn, timeout time.Duration, logger zerolog.Logger) *Reader {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Reader{
		conn:      conn,
		timeout:   timeout,
		chunk:     make([]byte, readChunkSize),
		log:       logger,
		warnEvery: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Next blocks until a frame is available or the stream ends.
func (r *Reader) Next() (Frame, error) {
	if r.err != nil {
		return Frame{}, r.err
	}
	for {
		for {
			codec, payload, ok := r.parser.next()
			if !ok {
				break
			}
			if data := ExtractAnnexB(payload); len(data) > 0 {
				return Frame{Codec: codec, Data: data}, nil
			}
		}
		r.maybeWarnResync()

		if r.pendingErr != nil {
			r.err = r.pendingErr
			return Frame{}, r.err
		}

		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			r.err = fmt.Errorf("media: set read deadline: %w", err)
			return Frame{}, r.err
		}
		n, err := r.conn.Read(r.chunk)
		if n > 0 {
			r.parser.push(r.chunk[:n])
			r.timeouts = 0
		}
		if err == nil {
			continue
		}

		var nerr net.Error
		switch {
		case errors.As(err, &nerr) && nerr.Timeout():
			r.timeouts++
			if r.timeouts >= maxConsecutiveTimeouts {
				r.log.Warn().
					Str("event", "media.silent").
					Int("consecutive_timeouts", r.timeouts).
					Msg("device went quiet, ending stream")
				r.pendingErr = io.EOF
			}
		case errors.Is(err, io.EOF):
			r.log.Debug().Str("event", "media.closed").Msg("media socket closed")
			r.pendingErr = io.EOF
		default:
			r.log.Error().Err(err).Str("event", "media.read_error").Msg("media socket error")
			r.pendingErr = fmt.Errorf("media: read: %w", err)
		}
	}
}

func (r *Reader) maybeWarnResync() {
	if r.parser.resyncs > r.warnedResyncs && r.warnEvery.Allow() {
		r.log.Warn().
			Str("event", "media.resync").
			Uint64("skipped_bytes", r.parser.resyncs-r.warnedResyncs).
			Msg("media stream drifted, resynchronised")
		r.warnedResyncs = r.parser.resyncs
	}
}
