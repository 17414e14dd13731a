package media

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractAnnexBFiltersVendorPrefix(t *testing.T) {
	vendor := append([]byte{0x00, 0x00, 0x01, 0xDE}, bytes.Repeat([]byte{0xAA}, 22)...)
	sps := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x64, 0x00, 0x1F}
	idr := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x88, 0x80}
	slice := []byte{0x00, 0x00, 0x00, 0x01, 0x41, 0x9A}
	stapA := []byte{0x00, 0x00, 0x00, 0x01, 0x18, 0xFF, 0xFF}

	var payload []byte
	payload = append(payload, vendor...)
	payload = append(payload, sps...)
	payload = append(payload, idr...)
	payload = append(payload, slice...)
	payload = append(payload, stapA...)

	var want []byte
	want = append(want, sps...)
	want = append(want, idr...)
	want = append(want, slice...)

	assert.Equal(t, want, ExtractAnnexB(payload))
}

func TestExtractAnnexBThreeBytePromotion(t *testing.T) {
	payload := []byte{0x00, 0x00, 0x01, 0x67, 0x42, 0xC0}
	want := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x42, 0xC0}
	assert.Equal(t, want, ExtractAnnexB(payload))
}

func TestExtractAnnexBThreeByteSkipsRejected(t *testing.T) {
	// A rejected vendor NAL behind a 3-byte code, then a keepable slice.
	payload := []byte{0x00, 0x00, 0x01, 0xDE, 0xAA, 0xAA, 0x00, 0x00, 0x01, 0x61, 0xBB}
	want := []byte{0x00, 0x00, 0x00, 0x01, 0x61, 0xBB}
	assert.Equal(t, want, ExtractAnnexB(payload))
}

func TestExtractAnnexBNothingPasses(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"vendor only", append([]byte{0x00, 0x00, 0x01, 0xDE}, bytes.Repeat([]byte{0xAA}, 22)...)},
		{"rtp aggregation only", []byte{0x00, 0x00, 0x00, 0x01, 0x18, 0xAA}},
		{"no start codes", []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ExtractAnnexB(tt.payload))
		})
	}
}

func TestExtractAnnexBFallbackAfterAllFourByteRejected(t *testing.T) {
	// 4-byte codes exist but none pass, so the 3-byte scan runs and also
	// rejects them via their embedded 3-byte codes.
	payload := []byte{0x00, 0x00, 0x00, 0x01, 0x18, 0xAA}
	assert.Nil(t, ExtractAnnexB(payload))
}
