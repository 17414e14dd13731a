package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/nvrhub/hieasy/internal/protocol"
)

func dialCommand(ctx context.Context, cfg Config) (net.Conn, error) {
	d := net.Dialer{
		Timeout: cfg.DialTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     protocol.KeepAliveIdle,
			Interval: protocol.KeepAliveInterval,
			Count:    protocol.KeepAliveCount,
		},
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.CommandPort)))
	if err != nil {
		return nil, fmt.Errorf("client: dial %s:%d: %w", cfg.Host, cfg.CommandPort, err)
	}
	return conn, nil
}

// DialAndLogin opens a command connection and authenticates inline,
// without starting any background tasks. Short-lived control-plane callers
// own the returned connection and all reads on it.
func DialAndLogin(ctx context.Context, cfg Config) (net.Conn, error) {
	cfg = cfg.withDefaults()
	conn, err := dialCommand(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := login(ctx, conn, cfg, *cfg.Logger); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// send frames inner under a fresh transaction id. The send mutex makes each
// header+body pair atomic on the wire; it is never taken together with the
// queue mutex.
func (s *Session) send(cmdID int, inner string) (uint32, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return protocol.WriteCommand(s.cmdConn, cmdID, inner)
}

// sendTxn frames inner under the caller's transaction id.
func (s *Session) sendTxn(cmdID int, txn uint32, inner string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return protocol.WriteCommandTxn(s.cmdConn, cmdID, txn, inner)
}

// readerLoop is the only reader of the command socket once the session is
// up. It parks replies in the queue; timeouts keep it polling, anything
// else ends the session.
func (s *Session) readerLoop() {
	defer s.wg.Done()
	for s.alive.Load() {
		msg, err := protocol.ReadMessage(s.cmdConn, readTimeout)
		if err != nil {
			var nerr net.Error
			switch {
			case errors.As(err, &nerr) && nerr.Timeout():
				continue
			case errors.Is(err, io.EOF):
				if !s.alive.Load() {
					return
				}
				s.log.Warn().Str("event", "session.closed_by_device").Msg("command socket closed by device")
				s.markDead("socket_closed")
				return
			default:
				if !s.alive.Load() {
					return
				}
				s.log.Error().Err(err).Str("event", "session.read_error").Msg("command socket error")
				s.markDead("socket_error")
				return
			}
		}
		if len(msg.Body) == 0 {
			continue
		}
		s.queue.push(queuedMessage{
			at:     timeNow(),
			header: msg.Header,
			body:   protocol.ParseBody(msg.Body),
		})
	}
}

// waitFor polls the queue for the first message containing tag. It returns
// immediately with ok=false once the session dies.
func (s *Session) waitFor(tag string, timeout time.Duration) (queuedMessage, bool) {
	deadline := timeNow().Add(timeout)
	for timeNow().Before(deadline) {
		if s.dead.Load() {
			return queuedMessage{}, false
		}
		if m, ok := s.queue.takeFirst(containsTag(tag)); ok {
			return m, true
		}
		time.Sleep(waitPoll)
	}
	return queuedMessage{}, false
}
