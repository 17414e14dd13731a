package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := CommandHeader(123, 0x10005)
	buf := h.Encode()
	require.Len(t, buf, HeaderSize)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, CommandMagic, got.Magic())
	assert.Equal(t, Version, got.Version())
	assert.Equal(t, uint32(0x10005), got.Txn())
	assert.Equal(t, uint32(123), got.BodyLen())
}

func TestCommandHeaderLayout(t *testing.T) {
	buf := CommandHeader(77, 0x10001).Encode()
	// Words: magic, version, txn, 0, bodyLen, 3, 0, 0, 0.
	want := []byte{
		0x05, 0x01, 0x11, 0x54,
		0x00, 0x00, 0x10, 0x01,
		0x00, 0x01, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x4d,
		0x00, 0x00, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	assert.Equal(t, want, buf)
}

func TestMediaHandshakeLayout(t *testing.T) {
	h := MediaHandshakeHeader(42)
	assert.Equal(t, Header{MediaMagic, Version, 4, 0, 3, 0, 0, 0, 42}, h)
	assert.Equal(t, uint32(42), h.SessionID())
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	require.Error(t, err)
}

func TestNextTxnMonotonic(t *testing.T) {
	a := NextTxn()
	b := NextTxn()
	assert.Greater(t, a, TxnBase)
	assert.Equal(t, a+1, b)
}

func TestMakeBodyEnvelope(t *testing.T) {
	body := MakeBody(26, `<LoginGetFlag UserName="admin"/>`)

	want := "<?xml version=\"1.0\" encoding=\"GB2312\" standalone=\"yes\" ?>\n" +
		"<Command ID=\"26\">\n" +
		"    <LoginGetFlag UserName=\"admin\"/>\n" +
		"</Command>\n\x00"
	assert.Equal(t, []byte(want), body)
}

func TestParseBody(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want string
	}{
		{
			name: "ascii with trailing nul",
			raw:  []byte("<Command ID=\"25\">ok</Command>\x00"),
			want: "<Command ID=\"25\">ok</Command>",
		},
		{
			name: "gbk bytes decoded",
			raw:  []byte{0xCA, 0xD3, 0xC6, 0xB5, 0x00},
			want: "视频",
		},
		{
			name: "empty",
			raw:  []byte{0x00},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBody(tt.raw))
		})
	}
}

func TestSnippetTruncates(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, Snippet(string(long)), 200)
	assert.Equal(t, "short", Snippet("short"))
}
