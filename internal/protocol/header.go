package protocol

import (
	"encoding/binary"
	"fmt"
)

// Header is the nine-word preamble of every frame on either channel. Word
// meanings differ between channels; the accessors below name the ones the
// protocol actually uses.
type Header [9]uint32

// Encode serialises the header as 36 big-endian bytes.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	for i, w := range h {
		binary.BigEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

// DecodeHeader parses a 36-byte preamble.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("protocol: short header: %d bytes", len(buf))
	}
	var h Header
	for i := range h {
		h[i] = binary.BigEndian.Uint32(buf[i*4:])
	}
	return h, nil
}

// Magic returns the channel magic (word 0).
func (h Header) Magic() uint32 { return h[0] }

// Version returns the protocol revision (word 1).
func (h Header) Version() uint32 { return h[1] }

// Txn returns the transaction id of a command frame (word 2).
func (h Header) Txn() uint32 { return h[2] }

// PayloadLen returns the media payload length of a media data frame (word 3).
func (h Header) PayloadLen() uint32 { return h[3] }

// BodyLen returns the XML body length of a command frame (word 4).
func (h Header) BodyLen() uint32 { return h[4] }

// SessionID returns the media session id of a media handshake (word 8).
func (h Header) SessionID() uint32 { return h[8] }

// CommandHeader frames a command-channel body of bodyLen bytes under the
// given transaction id.
func CommandHeader(bodyLen int, txn uint32) Header {
	return Header{CommandMagic, Version, txn, 0, uint32(bodyLen), 3, 0, 0, 0}
}

// MediaHandshakeHeader opens the media channel for a session negotiated on
// the command channel. The device answers with a 36-byte frame of its own.
func MediaHandshakeHeader(sessionID uint32) Header {
	return Header{MediaMagic, Version, 4, 0, 3, 0, 0, 0, sessionID}
}
