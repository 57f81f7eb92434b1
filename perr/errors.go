// Package perr defines the error taxonomy shared across the network core,
// the service-bot runtime, and Relay. Each sentinel type is wrapped with
// github.com/pkg/errors at the call site so that context survives while
// errors.As still recovers the sentinel for callers that need to branch on
// it (connection lifecycle, service-bot reply plumbing, Relay's per-network
// failure isolation).
package perr

import "fmt"

// ProtocolError is fatal to a single connection: bad recvpass, unparsable
// framing during registration, unexpected EOF during burst, CAP mismatch.
// Callers close the connection and do not autoretry if Fatal is true.
type ProtocolError struct {
	Network string
	Reason  string
	Fatal   bool
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on %s: %s", e.Network, e.Reason)
}

// NotSupported is raised when an outbound operation cannot be implemented
// on the target IRCd, e.g. Kill() on Clientbot.
type NotSupported struct {
	Operation string
	Adapter   string
}

func (e *NotSupported) Error() string {
	return fmt.Sprintf("%s: %s not supported", e.Adapter, e.Operation)
}

// NotFound indicates a looked-up channel, user, or server is absent.
type NotFound struct {
	Kind string // "user", "channel", "server"
	ID   string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotAuthorized is a permission failure. The service-bot runtime converts
// this into a user-visible notice.
type NotAuthorized struct {
	Source   string
	Required []string
}

func (e *NotAuthorized) Error() string {
	return fmt.Sprintf("%s is not authorized (needs one of %v)", e.Source, e.Required)
}

// InvalidArgument is malformed user input in a service-bot command.
type InvalidArgument struct {
	Argument string
	Reason   string
}

func (e *InvalidArgument) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Argument, e.Reason)
}

// TransientIO is a socket-level error during send/recv; triggers disconnect
// with reconnect scheduling.
type TransientIO struct {
	Network string
	Err     error
}

func (e *TransientIO) Error() string {
	return fmt.Sprintf("transient I/O error on %s: %v", e.Network, e.Err)
}

func (e *TransientIO) Unwrap() error { return e.Err }

// StateDesync means an invariant from the data model was found broken.
// Logged at warning, the current event's processing aborts, the
// connection continues.
type StateDesync struct {
	Network string
	Detail  string
}

func (e *StateDesync) Error() string {
	return fmt.Sprintf("state desync on %s: %s", e.Network, e.Detail)
}
