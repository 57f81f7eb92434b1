// Package network owns the TCP/TLS socket, line reader/writer, outbound
// send queue, ping/keepalive, reconnect-with-backoff, and the per-connection
// lifecycle state machine (spec §5: Disconnected → Connecting → Registering
// → Bursting → Ready → Closing). It drives a proto.Adapter but knows nothing
// about any one IRCd family's wire shape — that's the adapter's job.
//
// Grounded on girc's client.go/conn.go: the Config/Dialer/ircConn split, the
// readLoop/sendLoop/pingLoop goroutine trio, and the rate-limited send
// queue are all generalized directly from there.
package network

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
)

// Config holds everything needed to dial and run one network connection.
// Entries here should not be mutated while the Driver is connected.
type Config struct {
	// NetworkName identifies this network in logs and hook events.
	NetworkName string
	// Server/Port address the remote IRCd.
	Server string
	Port   int
	// Bind optionally binds the outbound connection to a local address.
	Bind string

	// SSL dials via TLS.
	SSL bool
	// TLSConfig is a user-supplied TLS config; if nil, one is built from
	// VerifyCert/CertHashPin.
	TLSConfig *tls.Config
	// VerifyCert controls certificate validation when TLSConfig is nil.
	// Per spec §5: clientbot defaults this true (verify hostname, reject
	// invalid certs); S2S links default it false (accept invalid certs,
	// hash-pinning still available via CertHashPin).
	VerifyCert bool
	// CertHashPin, if set, is a SHA-256 fingerprint (hex) the peer
	// certificate must match, regardless of VerifyCert.
	CertHashPin string

	// ServerPass is sent as PASS (or CAPAB/SERVER-embedded pass for S2S).
	ServerPass string

	// SendDelayUser is the minimum spacing between user-class outbound
	// lines. Defaults to 5ms per spec §4.3 ("0.005 s between user lines").
	SendDelayUser time.Duration
	// SendDelayControl is the spacing for server-sourced control frames.
	// Defaults to 0 (no delay) per spec §4.3.
	SendDelayControl time.Duration
	// MaxQueueSize caps the outbound queue; once full, further sends
	// drop the connection (spec §4.3/§5: "overflow drops the connection").
	MaxQueueSize int

	// PingFreq is how often a keepalive PING is sent. Defaults to 90s
	// per spec §5.
	PingFreq time.Duration
	// PingTimeout is how long to wait for a PONG before declaring the
	// connection dead. Defaults to 180s per spec §5.
	PingTimeout time.Duration

	// Autoconnect is the reconnect delay floor after a Ready connection
	// drops. Disabled (no reconnect) when <= 0. Spec §5: "autoconnect
	// ≥ 1 s (disabled when ≤ 0)".
	Autoconnect time.Duration
	// MaxAutoconnect caps the exponential backoff applied on repeated
	// reconnect failures.
	MaxAutoconnect time.Duration

	// DialTimeout bounds the TCP dial itself.
	DialTimeout time.Duration
}

// Dialer mirrors girc's Dialer interface, letting callers substitute their
// own transport (e.g. a SOCKS proxy) in place of net.Dialer.
type Dialer interface {
	Dial(network, address string) (net.Conn, error)
}

// ErrInvalidConfig is returned by Config.normalize when required fields are
// missing or out of range.
type ErrInvalidConfig struct {
	Reason string
}

func (e *ErrInvalidConfig) Error() string { return "network: invalid config: " + e.Reason }

// normalize fills in defaults and validates required fields, mirroring
// girc's Config.isValid.
func (c *Config) normalize() error {
	if c.Server == "" {
		return &ErrInvalidConfig{Reason: "empty server"}
	}
	if c.Port == 0 {
		c.Port = 6667
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ErrInvalidConfig{Reason: "port outside valid range (1-65535)"}
	}

	if c.SendDelayUser == 0 {
		c.SendDelayUser = 5 * time.Millisecond
	}
	if c.PingFreq <= 0 {
		c.PingFreq = 90 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 180 * time.Second
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 1000
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.MaxAutoconnect <= 0 {
		c.MaxAutoconnect = 5 * time.Minute
	}

	return nil
}

// validate wraps normalize with errors.Wrap for callers that want a
// stack-traced error rather than the raw ErrInvalidConfig.
func (c *Config) validate() error {
	if err := c.normalize(); err != nil {
		return errors.Wrap(err, "network")
	}
	return nil
}
