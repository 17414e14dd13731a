package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nvrhub/hieasy/internal/auth"
	"github.com/nvrhub/hieasy/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func stubOracle(hash string) auth.Oracle {
	return auth.OracleFunc(func(_ context.Context, _, _, _ string) (string, error) {
		return hash, nil
	})
}

func deviceConfig(d *fakeDevice) Config {
	return Config{
		Host:        d.host(),
		CommandPort: d.cmdPort(),
		MediaPort:   d.mediaPort(),
		Username:    "admin",
		Password:    "123456",
		Oracle:      stubOracle("HASHED"),
	}
}

func TestConnectHappyPath(t *testing.T) {
	d := newFakeDevice(t)
	d.scriptHappyLogin(42)

	s, err := Connect(context.Background(), deviceConfig(d), 0, StreamTypeMain)
	require.NoError(t, err)
	defer s.Disconnect()

	assert.Equal(t, uint32(42), s.SessionID())
	assert.Equal(t, StateStreaming, s.State())

	// The media handshake carries the negotiated session id in its last
	// word.
	select {
	case id := <-d.handshakeID:
		assert.Equal(t, uint32(42), id)
	case <-time.After(time.Second):
		t.Fatal("no media handshake received")
	}

	login, ok := d.waitForCommand(protocol.CmdUserLogin, time.Second)
	require.True(t, ok)
	assert.Contains(t, login.Body, `LoginFlag="HASHED"`)
	assert.Contains(t, login.Body, `UserIP="192.168.1.1"`)

	create, ok := d.waitForCommand(protocol.CmdRealStreamCreate, time.Second)
	require.True(t, ok)
	assert.Contains(t, create.Body, `Channel="0"`)
	assert.Contains(t, create.Body, `Mode="1"`)
	assert.Contains(t, create.Body, `Type="1"`)
}

func TestConnectLoginRejected(t *testing.T) {
	d := newFakeDevice(t)
	d.replyTo(protocol.CmdLoginGetFlag, `<LoginGetFlagReply LoginFlag="ABC123" />`)
	d.replyTo(protocol.CmdUserLogin, `<UserLoginReply CmdReply="5" />`)

	_, err := Connect(context.Background(), deviceConfig(d), 0, StreamTypeMain)
	require.ErrorIs(t, err, ErrAuthentication)
}

func TestHeartbeatAutoReply(t *testing.T) {
	d := newFakeDevice(t)
	d.scriptHappyLogin(7)

	s, err := Connect(context.Background(), deviceConfig(d), 0, StreamTypeMain)
	require.NoError(t, err)
	defer s.Disconnect()

	require.NoError(t, d.sendNotice(protocol.CmdHeartBeatNotice, 999, `<HeartBeatNotice />`))

	reply, ok := d.waitForCommand(protocol.CmdHeartBeatNoticeReply, 1100*time.Millisecond)
	require.True(t, ok, "no heartbeat reply within 1.1s")
	assert.Equal(t, uint32(999), reply.Txn, "reply must echo the notice transaction id")
	assert.Contains(t, reply.Body, `CmdReply="0"`)
	assert.Contains(t, reply.Body, `NetDataFlow="0"`)
	assert.Contains(t, reply.Body, `NetHistoryDataFlow="0"`)
}

func TestHeartbeatMissMarksSessionDead(t *testing.T) {
	defer func() { timeNow = time.Now }()

	d := newFakeDevice(t)
	d.scriptHappyLogin(7)

	s, err := Connect(context.Background(), deviceConfig(d), 0, StreamTypeMain)
	require.NoError(t, err)
	defer s.Disconnect()

	st, err := s.Stream()
	require.NoError(t, err)

	// Jump the clock past the miss budget; the next heartbeat tick sees
	// 46+ seconds of silence.
	timeNow = func() time.Time { return time.Now().Add(46 * time.Second) }

	require.Eventually(t, s.Dead, 3*time.Second, 50*time.Millisecond)

	_, err = st.Next()
	assert.ErrorIs(t, err, ErrSessionDead)
}

func TestDisconnectTeardownOrder(t *testing.T) {
	d := newFakeDevice(t)
	d.scriptHappyLogin(9)

	s, err := Connect(context.Background(), deviceConfig(d), 1, StreamTypeSub)
	require.NoError(t, err)

	s.Disconnect()

	_, ok := d.waitForCommand(protocol.CmdLogout, time.Second)
	require.True(t, ok, "no logout after disconnect")

	var tail []int
	for _, c := range d.commands() {
		switch c.CmdID {
		case protocol.CmdRealStreamStop, protocol.CmdRealStreamDestroy, protocol.CmdLogout:
			tail = append(tail, c.CmdID)
		}
	}
	assert.Equal(t, []int{
		protocol.CmdRealStreamStop,
		protocol.CmdRealStreamDestroy,
		protocol.CmdLogout,
	}, tail)

	// A second disconnect is a no-op: no further commands reach the wire.
	before := len(d.commands())
	s.Disconnect()
	assert.Equal(t, before, len(d.commands()))
}

func TestStreamIsSingleUse(t *testing.T) {
	d := newFakeDevice(t)
	d.scriptHappyLogin(3)

	s, err := Connect(context.Background(), deviceConfig(d), 0, StreamTypeMain)
	require.NoError(t, err)
	defer s.Disconnect()

	_, err = s.Stream()
	require.NoError(t, err)
	_, err = s.Stream()
	assert.ErrorIs(t, err, ErrStreamConsumed)
}

func TestSubStreamCreateRequest(t *testing.T) {
	d := newFakeDevice(t)
	d.scriptHappyLogin(11)

	s, err := Connect(context.Background(), deviceConfig(d), 2, StreamTypeSub)
	require.NoError(t, err)
	defer s.Disconnect()

	create, ok := d.waitForCommand(protocol.CmdRealStreamCreate, time.Second)
	require.True(t, ok)
	assert.Contains(t, create.Body, `Channel="2"`)
	assert.Contains(t, create.Body, `Mode="2"`)
}
