package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/media"
	"github.com/nvrhub/hieasy/internal/metrics"
	"github.com/nvrhub/hieasy/internal/protocol"
)

// Stream types as the firmware counts them.
const (
	StreamTypeMain = 1
	StreamTypeSub  = 2
)

// State tracks where a session is in its lifecycle. Transitions are
// one-directional; in particular StateDead is terminal and a new session is
// required to reconnect.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticated
	StateAwaitingCreateReply
	StateStreamCreated
	StateMediaOpen
	StateStreaming
	StateTearingDown
	StateDead
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateAwaitingCreateReply:
		return "awaiting_create_reply"
	case StateStreamCreated:
		return "stream_created"
	case StateMediaOpen:
		return "media_open"
	case StateStreaming:
		return "streaming"
	case StateTearingDown:
		return "tearing_down"
	case StateDead:
		return "dead"
	}
	return "unknown"
}

// Session is one authenticated connection pair to a device: the command
// channel plus, once streaming is negotiated, the media channel. Sessions
// are single-use; after Disconnect or death, build a new one.
type Session struct {
	cfg        Config
	channel    int
	streamType int
	log        zerolog.Logger

	cmdConn   net.Conn
	mediaConn net.Conn
	sessionID uint32

	sendMu sync.Mutex
	queue  messageQueue

	state atomic.Int32
	alive atomic.Bool
	dead  atomic.Bool

	// Unix nanos of the most recent heartbeat notice; seeded at connect
	// time so a device that never heartbeats still trips the miss budget.
	lastHeartbeat atomic.Int64

	streamed atomic.Bool

	wg             sync.WaitGroup
	disconnectOnce sync.Once
}

// Connect runs the full establishment sequence: dial, login, reader and
// heartbeat startup, stream creation, media handshake, stream start. On any
// failure the partially built session is torn down and an error returned.
//
// Connect performs no retries; the caller owns backoff policy.
func Connect(ctx context.Context, cfg Config, channel, streamType int) (*Session, error) {
	cfg = cfg.withDefaults()
	if streamType != StreamTypeMain && streamType != StreamTypeSub {
		streamType = StreamTypeMain
	}

	logger := cfg.Logger.With().
		Str(xlog.FieldRunID, uuid.NewString()).
		Str(xlog.FieldHost, cfg.Host).
		Int(xlog.FieldChannel, channel).
		Logger()

	s := &Session{
		cfg:        cfg,
		channel:    channel,
		streamType: streamType,
		log:        logger,
	}
	s.setState(StateConnecting)

	conn, err := dialCommand(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.cmdConn = conn

	if err := login(ctx, conn, cfg, logger); err != nil {
		conn.Close()
		return nil, err
	}
	s.setState(StateAuthenticated)

	s.alive.Store(true)
	s.lastHeartbeat.Store(timeNow().UnixNano())
	s.wg.Add(2)
	go s.readerLoop()
	go s.heartbeatLoop()

	if err := s.createStream(); err != nil {
		s.Disconnect()
		return nil, err
	}
	if err := s.openMedia(ctx); err != nil {
		s.Disconnect()
		return nil, err
	}
	if err := s.startStream(); err != nil {
		s.Disconnect()
		return nil, err
	}

	s.log.Info().
		Str(xlog.FieldEvent, "session.streaming").
		Uint32(xlog.FieldSessionID, s.sessionID).
		Int(xlog.FieldStreamType, streamType).
		Msg("stream started")
	return s, nil
}

// createStream negotiates the media session id on the command channel.
func (s *Session) createStream() error {
	s.setState(StateAwaitingCreateReply)
	if _, err := s.send(protocol.CmdRealStreamCreate,
		fmt.Sprintf(`<RealStreamCreateRequest Channel="%d" Mode="%d" Type="1" />`, s.channel, s.streamType)); err != nil {
		return fmt.Errorf("client: stream create request: %w", err)
	}
	m, ok := s.waitFor("RealStreamCreateReply", createReplyTimeout)
	if !ok {
		if s.dead.Load() {
			return ErrSessionDead
		}
		return &protocol.ProtocolError{Op: "stream create", Detail: "no RealStreamCreateReply from device"}
	}
	sm := mediaSessionRE.FindStringSubmatch(m.body)
	if sm == nil {
		return &protocol.ProtocolError{Op: "stream create", Detail: "no MediaSession in " + protocol.Snippet(m.body)}
	}
	id, err := strconv.ParseUint(sm[1], 10, 32)
	if err != nil {
		return &protocol.ProtocolError{Op: "stream create", Detail: "bad MediaSession: " + sm[1]}
	}
	s.sessionID = uint32(id)
	s.setState(StateStreamCreated)
	s.log.Debug().
		Str(xlog.FieldEvent, "session.created").
		Uint32(xlog.FieldSessionID, s.sessionID).
		Msg("media session created")
	return nil
}

func (s *Session) openMedia(ctx context.Context) error {
	conn, err := media.Dial(ctx, s.cfg.Host, s.cfg.MediaPort, s.sessionID)
	if err != nil {
		return err
	}
	s.mediaConn = conn
	s.setState(StateMediaOpen)
	return nil
}

func (s *Session) startStream() error {
	if _, err := s.send(protocol.CmdRealStreamStart,
		fmt.Sprintf(`<RealStreamStartRequest MediaSession="%d" />`, s.sessionID)); err != nil {
		return fmt.Errorf("client: stream start request: %w", err)
	}
	if _, ok := s.waitFor("RealStreamStartReply", startReplyTimeout); !ok {
		if s.dead.Load() {
			return ErrSessionDead
		}
		return &protocol.ProtocolError{Op: "stream start", Detail: "no RealStreamStartReply from device"}
	}
	s.setState(StateStreaming)
	return nil
}

// Stream hands out the media frame iterator. A session streams at most
// once.
func (s *Session) Stream() (*Stream, error) {
	if s.dead.Load() {
		return nil, ErrSessionDead
	}
	if s.mediaConn == nil || s.State() != StateStreaming {
		return nil, fmt.Errorf("client: session not streaming")
	}
	if !s.streamed.CompareAndSwap(false, true) {
		return nil, ErrStreamConsumed
	}
	return &Stream{
		s:       s,
		r:       media.NewReader(s.mediaConn, 0, s.log),
		channel: strconv.Itoa(s.channel),
	}, nil
}

// Stream yields demultiplexed media frames in arrival order. It is a
// finite sequence: it ends when the media socket closes, the session dies,
// or Disconnect is called.
type Stream struct {
	s       *Session
	r       *media.Reader
	channel string
}

// Next returns the next frame. It returns ErrSessionDead once the command
// channel has been lost and io.EOF after Disconnect or an orderly end of
// the media stream.
func (st *Stream) Next() (media.Frame, error) {
	if st.s.dead.Load() {
		return media.Frame{}, ErrSessionDead
	}
	if !st.s.alive.Load() {
		return media.Frame{}, io.EOF
	}
	f, err := st.r.Next()
	if err != nil {
		if st.s.dead.Load() {
			return media.Frame{}, ErrSessionDead
		}
		if !st.s.alive.Load() {
			return media.Frame{}, io.EOF
		}
		return media.Frame{}, err
	}
	metrics.FramesDelivered.WithLabelValues(st.channel).Inc()
	metrics.BytesDelivered.WithLabelValues(st.channel).Add(float64(len(f.Data)))
	return f, nil
}

// Disconnect tears the session down: the three graceful stop commands when
// the peer is still reachable, then both sockets. It is idempotent and safe
// to call concurrently with a running reader, heartbeat, or stream
// consumer; subsequent calls are no-ops.
func (s *Session) Disconnect() {
	s.disconnectOnce.Do(func() {
		s.setState(StateTearingDown)
		s.alive.Store(false)

		if s.sessionID != 0 && !s.dead.Load() {
			// Best effort; the device drops back-to-back control frames
			// during stream shutdown, hence the gaps.
			_, _ = s.send(protocol.CmdRealStreamStop,
				fmt.Sprintf(`<RealStreamStopRequest MediaSession="%d" />`, s.sessionID))
			time.Sleep(teardownGap)
			_, _ = s.send(protocol.CmdRealStreamDestroy,
				fmt.Sprintf(`<RealStreamDestroyRequest MediaSession="%d" />`, s.sessionID))
			time.Sleep(teardownGap)
			_, _ = s.send(protocol.CmdLogout,
				fmt.Sprintf(`<Logout UserName="%s" />`, s.cfg.Username))
		}

		for _, conn := range []net.Conn{s.mediaConn, s.cmdConn} {
			if conn == nil {
				continue
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				_ = tc.CloseWrite()
			}
			_ = conn.Close()
		}

		s.wg.Wait()
		s.setState(StateIdle)
		s.log.Info().Str(xlog.FieldEvent, "session.disconnected").Msg("disconnected")
	})
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Dead reports whether the command channel has been lost.
func (s *Session) Dead() bool {
	return s.dead.Load()
}

// SessionID returns the device-assigned media session id, zero before the
// create reply has been parsed.
func (s *Session) SessionID() uint32 {
	return s.sessionID
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.log.Debug().
			Str(xlog.FieldEvent, "session.state").
			Str(xlog.FieldOldState, old.String()).
			Str(xlog.FieldNewState, st.String()).
			Msg("state change")
	}
}

// markDead records a fatal command-channel loss. Death is one-way; the
// session object is unusable afterwards.
func (s *Session) markDead(reason string) {
	if s.dead.CompareAndSwap(false, true) {
		s.state.Store(int32(StateDead))
		metrics.SessionDeaths.WithLabelValues(reason).Inc()
		s.log.Warn().
			Str(xlog.FieldEvent, "session.dead").
			Str(xlog.FieldReason, reason).
			Msg("session marked dead")
	}
}
