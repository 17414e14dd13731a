package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxBodyLen bounds a single command body. Real replies are well under 64 KiB;
// anything larger means the stream is out of sync.
const MaxBodyLen = 1 << 20

// Message is one framed unit read off the command channel.
type Message struct {
	Header Header
	Body   []byte
}

// ReadMessage reads exactly one frame: the 36-byte header, then the body it
// announces. A clean close before the first header byte surfaces as io.EOF;
// a close mid-frame as io.ErrUnexpectedEOF. The deadline covers the whole
// frame; zero means no deadline.
func ReadMessage(conn net.Conn, timeout time.Duration) (Message, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return Message{}, fmt.Errorf("protocol: set read deadline: %w", err)
		}
	}

	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, err
	}
	h, err := DecodeHeader(hdr[:])
	if err != nil {
		return Message{}, err
	}

	bodyLen := h.BodyLen()
	if bodyLen > MaxBodyLen {
		return Message{}, &ProtocolError{Op: "read", Detail: fmt.Sprintf("body length %d exceeds limit", bodyLen)}
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, err
	}
	return Message{Header: h, Body: body}, nil
}

// WriteCommand frames inner under a fresh transaction id and writes header
// and body in a single Write call. It returns the transaction id used.
func WriteCommand(w io.Writer, cmdID int, inner string) (uint32, error) {
	txn := NextTxn()
	return txn, WriteCommandTxn(w, cmdID, txn, inner)
}

// WriteCommandTxn frames inner under the caller's transaction id. Heartbeat
// replies use it to echo the notice's id instead of drawing a new one.
func WriteCommandTxn(w io.Writer, cmdID int, txn uint32, inner string) error {
	body := MakeBody(cmdID, inner)
	frame := make([]byte, 0, HeaderSize+len(body))
	frame = append(frame, CommandHeader(len(body), txn).Encode()...)
	frame = append(frame, body...)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("protocol: write command %d: %w", cmdID, err)
	}
	return nil
}
