package media

import (
	"bytes"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

var (
	startCode4 = []byte{0, 0, 0, 1}
	startCode3 = []byte{0, 0, 1}
)

// Annex-B safe NAL range: coded slices (1) through SPS extension (13).
// Types 24..31 are RTP aggregation and fragmentation units; they must not
// reach Annex-B consumers, where they derail ffmpeg's bitstream parser.
const (
	minKeepType = h264.NALUTypeNonIDR
	maxKeepType = h264.NALUType(13)
)

func keepNALType(t h264.NALUType) bool {
	return t >= minKeepType && t <= maxKeepType
}

// ExtractAnnexB pulls standard H.264 NAL units out of a media payload. The
// payload opens with a vendor prefix NAL behind a 3-byte start code; real
// NALs follow behind 4-byte start codes.
//
// Every NAL delimited by a 4-byte start code is kept iff its type is in the
// standard 1..13 range, concatenated with start codes preserved. When that
// pass keeps nothing, the payload is rescanned for 3-byte start codes with
// the same type filter and the first match is promoted to a 4-byte start
// code with one leading NUL, the remainder of the payload following as-is.
// A nil result means the frame contributes nothing downstream.
func ExtractAnnexB(payload []byte) []byte {
	var out []byte
	pos := 0
	for {
		idx := bytes.Index(payload[pos:], startCode4)
		if idx < 0 {
			break
		}
		idx += pos

		end := len(payload)
		if next := bytes.Index(payload[idx+4:], startCode4); next >= 0 {
			end = idx + 4 + next
		}
		nal := payload[idx:end]
		if len(nal) > 4 && keepNALType(h264.NALUType(nal[4])&0x1F) {
			out = append(out, nal...)
		}
		pos = end
	}
	if len(out) > 0 {
		return out
	}

	for pos := 0; pos+4 < len(payload); {
		if !bytes.Equal(payload[pos:pos+3], startCode3) {
			pos++
			continue
		}
		if keepNALType(h264.NALUType(payload[pos+3]) & 0x1F) {
			promoted := make([]byte, 0, 1+len(payload)-pos)
			promoted = append(promoted, 0)
			return append(promoted, payload[pos:]...)
		}
		pos += 4
	}
	return nil
}
