package media

import (
	"encoding/binary"

	"github.com/nvrhub/hieasy/internal/protocol"
)

// frameParser carves media frames out of an append-only byte buffer. It is
// transport-agnostic; the Reader feeds it socket chunks.
//
// A frame is [36-byte header][44-byte sub-header][payload], where word 3 of
// the header is the payload length and the codec tag sits at byte 68 of the
// combined fixed region. When the buffer head is not the media magic the
// parser slides forward one byte at a time; mid-stream drift is rare but
// real on these devices.
type frameParser struct {
	buf     []byte
	resyncs uint64
}

func (p *frameParser) push(data []byte) {
	p.buf = append(p.buf, data...)
}

// next pops one raw frame. ok is false when the buffer holds no complete
// frame yet. Zero-length payloads are consumed and skipped.
func (p *frameParser) next() (codec uint32, payload []byte, ok bool) {
	for {
		if len(p.buf) < minFrameSize {
			return 0, nil, false
		}
		if binary.BigEndian.Uint32(p.buf) != protocol.MediaMagic {
			p.buf = p.buf[1:]
			p.resyncs++
			continue
		}

		hdr, _ := protocol.DecodeHeader(p.buf)
		payloadLen := int(hdr.PayloadLen())
		total := minFrameSize + payloadLen
		if len(p.buf) < total {
			return 0, nil, false
		}

		codec = binary.BigEndian.Uint32(p.buf[codecOffset:])
		if payloadLen > 0 {
			payload = make([]byte, payloadLen)
			copy(payload, p.buf[minFrameSize:total])
		}
		p.buf = p.buf[total:]

		if payloadLen == 0 {
			continue
		}
		return codec, payload, true
	}
}
