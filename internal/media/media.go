// SPDX-License-Identifier: MIT

// Package media implements the DVR media channel: the session handshake,
// demultiplexing of the framed transport, and extraction of clean Annex-B
// H.264 from the vendor payload wrapping.
package media

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/nvrhub/hieasy/internal/protocol"
)

// CodecH264 is the codec tag the sub-header carries for H.264 video.
const CodecH264 uint32 = 3

const (
	subHeaderSize = 44
	// minFrameSize is header plus sub-header: the fixed part that must be
	// buffered before the payload length is known.
	minFrameSize = protocol.HeaderSize + subHeaderSize
	// codecOffset locates the big-endian codec tag within the combined
	// header + sub-header region.
	codecOffset = 68

	dialTimeout = 10 * time.Second
)

// Frame is one demultiplexed media frame. Data holds the extracted Annex-B
// H.264 byte stream, not the raw vendor payload.
type Frame struct {
	Codec uint32
	Data  []byte
}

// Dial opens the media channel for a session negotiated on the command
// channel: TCP connect, keepalive, the 36-byte handshake, and the device's
// 36-byte acknowledgement, which carries nothing of use and is discarded.
func Dial(ctx context.Context, host string, port int, sessionID uint32) (net.Conn, error) {
	d := net.Dialer{
		Timeout: dialTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     protocol.KeepAliveIdle,
			Interval: protocol.KeepAliveInterval,
			Count:    protocol.KeepAliveCount,
		},
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("media: dial %s:%d: %w", host, port, err)
	}

	if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("media: set handshake deadline: %w", err)
	}
	if _, err := conn.Write(protocol.MediaHandshakeHeader(sessionID).Encode()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("media: handshake write: %w", err)
	}
	var ack [protocol.HeaderSize]byte
	if _, err := io.ReadFull(conn, ack[:]); err != nil {
		conn.Close()
		return nil, fmt.Errorf("media: handshake reply: %w", err)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("media: clear deadline: %w", err)
	}
	return conn, nil
}
