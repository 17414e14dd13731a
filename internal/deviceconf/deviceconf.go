// SPDX-License-Identifier: MIT

// Package deviceconf reads device configuration over a short-lived command
// session. The firmware answers GetCfg for the MainCmd values in the
// registry; configuration writes are rejected by the firmware and are not
// offered here.
package deviceconf

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvrhub/hieasy/internal/client"
	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/protocol"
)

const (
	// replyTimeout bounds each synchronous read. Some config types make
	// the firmware walk its flash, which takes seconds.
	replyTimeout = 15 * time.Second

	// maxSkippedReplies bounds how many non-config messages one GetCfg
	// call tolerates before giving up on the stream.
	maxSkippedReplies = 5
)

// Client issues GetCfg requests over its own authenticated connection.
// Reads are synchronous: no reader goroutine runs, heartbeats encountered
// between replies are answered inline. Not safe for concurrent use.
type Client struct {
	cfg  client.Config
	conn net.Conn
	log  zerolog.Logger
}

// New builds a config reader for one device. Connect establishes the
// session lazily on first use.
func New(cfg client.Config) *Client {
	return &Client{
		cfg: cfg,
		log: xlog.WithComponent("deviceconf"),
	}
}

// Connect dials and authenticates.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, err := client.DialAndLogin(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Close drops the connection. The client can be reconnected afterwards.
func (c *Client) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Get retrieves a single config type. assistCmd -1 requests all blocks of
// the type, matching the firmware's wildcard convention.
func (c *Client) Get(ctx context.Context, mainCmd, assistCmd int) (*Record, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	if _, err := protocol.WriteCommand(c.conn, protocol.CmdGetCfg,
		fmt.Sprintf(`<GetCfg MainCmd="%d" AssistCmd="%d" />`, mainCmd, assistCmd)); err != nil {
		c.Close()
		return nil, fmt.Errorf("deviceconf: request %d: %w", mainCmd, err)
	}

	for i := 0; i < maxSkippedReplies; i++ {
		msg, err := protocol.ReadMessage(c.conn, replyTimeout)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("deviceconf: reply %d: %w", mainCmd, err)
		}
		body := protocol.ParseBody(msg.Body)

		// The device keeps heartbeating on this session too; answer and
		// move on so it does not drop us mid-read.
		if strings.Contains(body, "HeartBeat") && !strings.Contains(body, "Reply") {
			if err := protocol.WriteCommandTxn(c.conn, protocol.CmdHeartBeatNoticeReply,
				msg.Header.Txn(), `<HeartBeatNoticeReply CmdReply="0" />`); err != nil {
				c.Close()
				return nil, fmt.Errorf("deviceconf: heartbeat reply: %w", err)
			}
			continue
		}
		if !strings.Contains(body, "GetCfgReply") {
			c.log.Debug().
				Str(xlog.FieldEvent, "deviceconf.skipped").
				Int(xlog.FieldCmdID, mainCmd).
				Msg("unrelated message while awaiting config reply")
			continue
		}

		rec, err := ParseReply(body)
		if err != nil {
			return nil, err
		}
		if rec.MainCmd == 0 {
			rec.MainCmd = mainCmd
		}
		return rec, nil
	}

	return nil, &protocol.ProtocolError{Op: "config read", Detail: fmt.Sprintf("no GetCfgReply for MainCmd %d after %d messages", mainCmd, maxSkippedReplies)}
}

// GetAll retrieves every registered config type. Per-type failures do not
// abort the sweep: the failed entry carries its error and the connection is
// rebuilt for the next type.
func (c *Client) GetAll(ctx context.Context) map[int]*Record {
	results := make(map[int]*Record, len(Types))
	for _, t := range TypeList() {
		typ := t
		rec, err := c.Get(ctx, t.MainCmd, -1)
		if err != nil {
			c.log.Warn().Err(err).
				Str(xlog.FieldEvent, "deviceconf.type_failed").
				Int(xlog.FieldCmdID, t.MainCmd).
				Msg("config type read failed")
			rec = &Record{MainCmd: t.MainCmd, AssistCmd: -1, Err: err.Error()}
			c.Close()
			if err := c.Connect(ctx); err != nil {
				c.log.Warn().Err(err).
					Str(xlog.FieldEvent, "deviceconf.reconnect_failed").
					Msg("reconnect failed, remaining types will error")
			}
		}
		rec.Type = &typ
		results[t.MainCmd] = rec
	}
	return results
}
