package network

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/proto"
	"github.com/pylink/pylink/state"
)

// pipeDialer hands back one end of a net.Pipe, keeping the other end for
// the test to drive as the "server" side — mirroring girc's MockConnect
// pattern (client_test.go) but at the Dialer seam instead of net.Conn
// directly, since Driver dials through Config+Dialer rather than taking a
// raw connection.
type pipeDialer struct {
	serverConn net.Conn
}

func (p *pipeDialer) Dial(network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	p.serverConn = server
	return client, nil
}

type sender interface {
	Send(evt *ircevent.Event) error
}

type fakeAdapter struct {
	net        *state.NetworkState
	sent       []*ircevent.Event
	negotiated bool
	pings      int
	transport  sender
}

func newFakeAdapter() *fakeAdapter {
	isupport := state.ISupport{Casemap: ircmode.CasemapASCII, Prefix: "(ov)@+"}
	return &fakeAdapter{net: state.New("Test", "1A", isupport, nil)}
}

func (f *fakeAdapter) Name() string                     { return "Test" }
func (f *fakeAdapter) Capabilities() proto.CapabilitySet { return proto.NewCapabilitySet() }
func (f *fakeAdapter) State() *state.NetworkState        { return f.net }

func (f *fakeAdapter) SpawnClient(nick, ident, host, realhost string, modes []ircmode.ModeChange, server, ip, realname string, ts int64, opertype string, manipulatable bool) (string, error) {
	return "", nil
}
func (f *fakeAdapter) SpawnServer(name, sid, uplink, description string) (string, error) {
	return "", nil
}
func (f *fakeAdapter) Join(uid, channel string) error { return nil }
func (f *fakeAdapter) SJoin(sid, channel string, entries []proto.SJoinEntry, ts int64, modes []ircmode.ModeChange) error {
	return nil
}
func (f *fakeAdapter) Part(uid, channel, reason string) error          { return nil }
func (f *fakeAdapter) Quit(uid, reason string) error                   { return nil }
func (f *fakeAdapter) Kick(src, channel, target, reason string) error  { return nil }
func (f *fakeAdapter) Kill(src, target, reason string) error           { return nil }
func (f *fakeAdapter) Mode(src, target string, modes []ircmode.ModeChange, ts int64) error {
	return nil
}
func (f *fakeAdapter) Nick(uid, newNick string) error { return nil }
func (f *fakeAdapter) UpdateClient(uid string, field proto.UpdateField, value string) error {
	return nil
}
func (f *fakeAdapter) Message(src, target, text string) error      { return nil }
func (f *fakeAdapter) Notice(src, target, text string) error       { return nil }
func (f *fakeAdapter) Numeric(srcSID, numeric, target, text string) error { return nil }
func (f *fakeAdapter) Topic(uid, channel, text string) error       { return nil }
func (f *fakeAdapter) TopicBurst(sid, channel, text string) error  { return nil }
func (f *fakeAdapter) Invite(src, target, channel string) error    { return nil }
func (f *fakeAdapter) Knock(src, channel, text string) error       { return nil }
func (f *fakeAdapter) Squit(sid, targetSID, reason string) error   { return nil }

func (f *fakeAdapter) Ping(src, target string) error {
	f.pings++
	return f.Send(&ircevent.Event{Command: "PING", Trailing: target})
}
func (f *fakeAdapter) Pong(self, target string) error { return f.Send(&ircevent.Event{Command: "PONG", Trailing: target}) }

func (f *fakeAdapter) CheckRecvPass(offered string) bool { return true }

func (f *fakeAdapter) CapNegotiate() error {
	f.negotiated = true
	return f.Send(&ircevent.Event{Command: "CAPAB", Params: []string{"START", "1205"}})
}

func (f *fakeAdapter) SendBurst() error { return f.Send(&ircevent.Event{Command: "SERVER"}) }

// Send is wired to the Driver at test setup time, same as a real
// adapter's Transport field delegating to whatever sends bytes to the
// wire.
func (f *fakeAdapter) Send(evt *ircevent.Event) error {
	f.sent = append(f.sent, evt)
	if f.transport != nil {
		return f.transport.Send(evt)
	}
	return nil
}

func TestDriverRegistersOverThePipe(t *testing.T) {
	adapter := newFakeAdapter()
	dialer := &pipeDialer{}

	d := &Driver{
		Config:  Config{Server: "irc.example.net", Port: 6667},
		Dialer:  dialer,
		Adapter: adapter,
		Burst:   adapter.SendBurst,
	}
	adapter.transport = d

	done := make(chan error, 1)
	go func() { done <- d.Run() }()

	// Give runOnce a moment to dial and negotiate, then read what the
	// "server" side of the pipe received.
	time.Sleep(50 * time.Millisecond)

	if dialer.serverConn == nil {
		t.Fatalf("expected dialer to have been used")
	}

	srv := bufio.NewReader(dialer.serverConn)
	line, err := srv.ReadString('\n')
	if err != nil {
		t.Fatalf("expected a line from the driver: %v", err)
	}
	if line != "CAPAB START 1205\r\n" {
		t.Fatalf("unexpected registration line: %q", line)
	}

	burstLine, err := srv.ReadString('\n')
	if err != nil {
		t.Fatalf("expected a burst line: %v", err)
	}
	if burstLine != "SERVER\r\n" {
		t.Fatalf("unexpected burst line: %q", burstLine)
	}

	d.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean shutdown, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("driver did not shut down after Close")
	}
}

func TestPingLoopTimesOutWithoutPong(t *testing.T) {
	adapter := newFakeAdapter()
	dialer := &pipeDialer{}

	d := &Driver{
		Config: Config{
			Server:      "irc.example.net",
			Port:        6667,
			PingFreq:    10 * time.Millisecond,
			PingTimeout: 10 * time.Millisecond,
		},
		Dialer:  dialer,
		Adapter: adapter,
		Burst:   adapter.SendBurst,
	}
	adapter.transport = d

	done := make(chan error, 1)
	go func() { done <- d.Run() }()

	// Drain the server side so writes don't block, but never reply with
	// a PONG.
	go func() {
		buf := make([]byte, 4096)
		for {
			if dialer.serverConn == nil {
				time.Sleep(time.Millisecond)
				continue
			}
			if _, err := dialer.serverConn.Read(buf); err != nil {
				return
			}
		}
	}()

	select {
	case err := <-done:
		var timedOut *TimedOutError
		if !errors.As(err, &timedOut) {
			t.Fatalf("expected a TimedOutError, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected ping timeout to end the connection")
	}
}
