package client

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nvrhub/hieasy/internal/protocol"
)

var cmdIDRE = regexp.MustCompile(`<Command ID="(\d+)">`)

// receivedCommand is one frame the fake device read off its command socket.
type receivedCommand struct {
	CmdID int
	Txn   uint32
	Body  string
}

// fakeDevice emulates the command and media listeners of a DVR for one
// client connection each. Replies are scripted per command id; unknown
// commands go unanswered, which is what the real firmware does too.
type fakeDevice struct {
	t *testing.T

	cmdLn   net.Listener
	mediaLn net.Listener

	mu       sync.Mutex
	cmdConn  net.Conn
	received []receivedCommand
	replies  map[int]string // cmd id -> inner reply XML

	handshakeID chan uint32

	wg      sync.WaitGroup
	closing sync.Once
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	cmdLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen cmd: %v", err)
	}
	mediaLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen media: %v", err)
	}
	d := &fakeDevice{
		t:           t,
		cmdLn:       cmdLn,
		mediaLn:     mediaLn,
		replies:     make(map[int]string),
		handshakeID: make(chan uint32, 1),
	}
	d.wg.Add(2)
	go d.serveCommand()
	go d.serveMedia()
	t.Cleanup(d.close)
	return d
}

func (d *fakeDevice) host() string { return "127.0.0.1" }

func (d *fakeDevice) cmdPort() int {
	return d.cmdLn.Addr().(*net.TCPAddr).Port
}

func (d *fakeDevice) mediaPort() int {
	return d.mediaLn.Addr().(*net.TCPAddr).Port
}

// replyTo registers the inner XML sent back whenever cmdID arrives.
func (d *fakeDevice) replyTo(cmdID int, inner string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies[cmdID] = inner
}

// scriptHappyLogin registers replies for the full connect sequence.
func (d *fakeDevice) scriptHappyLogin(mediaSession int) {
	d.replyTo(protocol.CmdLoginGetFlag, `<LoginGetFlagReply LoginFlag="ABC123" />`)
	d.replyTo(protocol.CmdUserLogin, `<UserLoginReply CmdReply="0" />`)
	d.replyTo(protocol.CmdRealStreamCreate,
		fmt.Sprintf(`<RealStreamCreateReply CmdReply="0" MediaSession="%d" />`, mediaSession))
	d.replyTo(protocol.CmdRealStreamStart, `<RealStreamStartReply CmdReply="0" />`)
}

func (d *fakeDevice) serveCommand() {
	defer d.wg.Done()
	conn, err := d.cmdLn.Accept()
	if err != nil {
		return
	}
	d.mu.Lock()
	d.cmdConn = conn
	d.mu.Unlock()

	for {
		msg, err := protocol.ReadMessage(conn, 0)
		if err != nil {
			return
		}
		body := protocol.ParseBody(msg.Body)
		cmdID := 0
		if m := cmdIDRE.FindStringSubmatch(body); m != nil {
			cmdID, _ = strconv.Atoi(m[1])
		}
		d.mu.Lock()
		d.received = append(d.received, receivedCommand{
			CmdID: cmdID,
			Txn:   msg.Header.Txn(),
			Body:  body,
		})
		inner, ok := d.replies[cmdID]
		d.mu.Unlock()
		if ok {
			if err := protocol.WriteCommandTxn(conn, cmdID+1, msg.Header.Txn(), inner); err != nil {
				return
			}
		}
	}
}

func (d *fakeDevice) serveMedia() {
	defer d.wg.Done()
	conn, err := d.mediaLn.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	var hs [protocol.HeaderSize]byte
	if _, err := io.ReadFull(conn, hs[:]); err != nil {
		return
	}
	d.handshakeID <- binary.BigEndian.Uint32(hs[32:])
	// Acknowledgement frame; contents are ignored by the client.
	_, _ = conn.Write(protocol.MediaHandshakeHeader(0).Encode())
	// Keep the socket open until the device is closed.
	_, _ = io.Copy(io.Discard, conn)
}

// sendNotice pushes an unsolicited command frame to the connected client.
func (d *fakeDevice) sendNotice(cmdID int, txn uint32, inner string) error {
	d.mu.Lock()
	conn := d.cmdConn
	d.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connected")
	}
	return protocol.WriteCommandTxn(conn, cmdID, txn, inner)
}

// commands returns a snapshot of every command received so far.
func (d *fakeDevice) commands() []receivedCommand {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]receivedCommand, len(d.received))
	copy(out, d.received)
	return out
}

// waitForCommand polls until a command with cmdID arrives or the deadline
// passes.
func (d *fakeDevice) waitForCommand(cmdID int, timeout time.Duration) (receivedCommand, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, c := range d.commands() {
			if c.CmdID == cmdID {
				return c, true
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return receivedCommand{}, false
}

func (d *fakeDevice) close() {
	d.closing.Do(func() {
		d.cmdLn.Close()
		d.mediaLn.Close()
		d.mu.Lock()
		if d.cmdConn != nil {
			d.cmdConn.Close()
		}
		d.mu.Unlock()
		d.wg.Wait()
	})
}
