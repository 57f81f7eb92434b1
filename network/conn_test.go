package network

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/pylink/pylink/ircevent"
)

func mockWireConn() (in, out *bytes.Buffer, c *wireConn) {
	in = &bytes.Buffer{}
	out = &bytes.Buffer{}
	c = &wireConn{
		io:        bufio.NewReadWriter(bufio.NewReader(in), bufio.NewWriter(out)),
		connected: true,
	}
	return
}

func TestWriteEventFlushesLine(t *testing.T) {
	_, out, c := mockWireConn()

	evt := &ircevent.Event{Command: "PING", Trailing: "abc123"}
	if err := c.writeEvent(evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line, err := out.ReadString('\n')
	if err != nil {
		t.Fatalf("expected a written line: %v", err)
	}
	if line != "PING :abc123\r\n" {
		t.Fatalf("unexpected wire line: %q", line)
	}
}

func TestRateLimitsUnderFlood(t *testing.T) {
	c := &wireConn{connected: true}

	// First few sends should be free/near-free.
	d1 := c.rate(10)
	if d1 != 0 {
		t.Fatalf("expected no delay on first send, got %s", d1)
	}
	c.markWrite()

	// Flood a bunch of large lines without advancing time; writeDelay
	// should climb past the 8s threshold and start returning a delay.
	var last time.Duration
	for i := 0; i < 20; i++ {
		last = c.rate(400)
	}
	if last == 0 {
		t.Fatalf("expected rate limiting to kick in under sustained flood")
	}
}

func TestConfigNormalizeDefaults(t *testing.T) {
	conf := Config{Server: "irc.example.net"}
	if err := conf.normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conf.Port != 6667 {
		t.Fatalf("expected default port 6667, got %d", conf.Port)
	}
	if conf.SendDelayUser != 5*time.Millisecond {
		t.Fatalf("expected default 5ms user send delay, got %s", conf.SendDelayUser)
	}
	if conf.PingFreq != 90*time.Second {
		t.Fatalf("expected default 90s ping freq, got %s", conf.PingFreq)
	}
	if conf.PingTimeout != 180*time.Second {
		t.Fatalf("expected default 180s ping timeout, got %s", conf.PingTimeout)
	}
}

func TestConfigNormalizeRejectsEmptyServer(t *testing.T) {
	conf := Config{}
	if err := conf.normalize(); err == nil {
		t.Fatalf("expected an error for an empty server")
	}
}
