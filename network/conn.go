package network

import (
	"bufio"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/pylink/pylink/ircevent"
)

var endline = []byte("\r\n")

// wireConn wraps the raw socket plus rate-limiting bookkeeping, grounded on
// girc's ircConn (conn.go).
type wireConn struct {
	io   *bufio.ReadWriter
	sock net.Conn

	mu         sync.Mutex
	lastWrite  time.Time
	writeDelay time.Duration
	connected  bool
}

// ErrCertPinMismatch is returned when the peer certificate's SHA-256
// fingerprint doesn't match Config.CertHashPin.
type ErrCertPinMismatch struct {
	Expected, Got string
}

func (e *ErrCertPinMismatch) Error() string {
	return "network: certificate pin mismatch: expected " + e.Expected + ", got " + e.Got
}

func dial(conf Config, dialer Dialer, addr string) (net.Conn, error) {
	var err error
	var conn net.Conn

	if dialer == nil {
		nd := &net.Dialer{Timeout: conf.DialTimeout}
		if conf.Bind != "" {
			local, rerr := net.ResolveTCPAddr("tcp", conf.Bind+":0")
			if rerr != nil {
				return nil, errors.Wrap(rerr, "network: resolving bind address")
			}
			nd.LocalAddr = local
		}
		dialer = nd
	}

	if conn, err = dialer.Dial("tcp", addr); err != nil {
		return nil, errors.Wrap(err, "network: dial")
	}

	if conf.SSL {
		conn, err = tlsHandshake(conn, conf)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

// tlsHandshake performs the TLS client handshake per spec §5's per-mode
// defaults: a Clientbot-style connection verifies the hostname and rejects
// invalid certificates; an S2S link accepts invalid certificates by
// default (VerifyCert=false), with CertHashPin still enforced regardless.
func tlsHandshake(conn net.Conn, conf Config) (net.Conn, error) {
	tlsConf := conf.TLSConfig
	if tlsConf == nil {
		serverName := conf.Server
		if idx := strings.IndexByte(serverName, ':'); idx >= 0 {
			serverName = serverName[:idx]
		}
		tlsConf = &tls.Config{ServerName: serverName, InsecureSkipVerify: !conf.VerifyCert} //nolint:gosec
	}

	tlsConn := tls.Client(conn, tlsConf)
	if err := tlsConn.Handshake(); err != nil {
		return nil, errors.Wrap(err, "network: tls handshake")
	}

	if conf.CertHashPin != "" {
		state := tlsConn.ConnectionState()
		if len(state.PeerCertificates) == 0 {
			return nil, errors.New("network: no peer certificate to pin against")
		}
		sum := sha256.Sum256(state.PeerCertificates[0].Raw)
		got := hex.EncodeToString(sum[:])
		if !strings.EqualFold(got, conf.CertHashPin) {
			return nil, &ErrCertPinMismatch{Expected: conf.CertHashPin, Got: got}
		}
	}

	return tlsConn, nil
}

func newWireConn(sock net.Conn) *wireConn {
	return &wireConn{
		sock:      sock,
		connected: true,
		io:        bufio.NewReadWriter(bufio.NewReader(sock), bufio.NewWriter(sock)),
	}
}

func (c *wireConn) Close() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return c.sock.Close()
}

// readLine blocks for one line off the socket, stripped of CRLF.
func (c *wireConn) readLine() (string, error) {
	line, err := c.io.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// writeEvent serializes and flushes a single event.
func (c *wireConn) writeEvent(evt *ircevent.Event) error {
	if _, err := c.io.Write(evt.Bytes()); err != nil {
		return err
	}
	if _, err := c.io.Write(endline); err != nil {
		return err
	}
	return c.io.Flush()
}

// rate mirrors girc's ircConn.rate: a decaying token-bucket-ish delay based
// on how many characters have been sent recently, used only for user-class
// lines (spec §4.3's "0.005 s between user lines" is the floor; this adds
// backpressure under flood).
func (c *wireConn) rate(chars int) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	cost := time.Second + (time.Duration(chars)*time.Second)/100

	c.writeDelay += cost - time.Since(c.lastWrite)
	if c.writeDelay < 0 {
		c.writeDelay = 0
	}

	if c.writeDelay > 8*time.Second {
		return cost
	}
	return 0
}

func (c *wireConn) markWrite() {
	c.mu.Lock()
	c.lastWrite = time.Now()
	c.mu.Unlock()
}
