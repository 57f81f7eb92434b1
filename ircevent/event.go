// Package ircevent implements the wire-level IRC message representation
// shared by every protocol adapter, and the normalized hook event payload
// that adapters translate wire frames into. Grounded on girc's event.go:
// the same prefix/command/params/trailing shape and byte-oriented parser,
// generalized so a single Event can carry either a raw S2S line or (via
// Args) a normalized hook payload.
package ircevent

import (
	"bytes"
	"strings"
)

const (
	space   byte = 0x20
	maxLine      = 510 // RFC2812 512 incl. CRLF.
)

// Source identifies the sender of a wire frame: a server name, or a
// nick[!ident][@host] triple.
type Source struct {
	Name  string
	Ident string
	Host  string
}

// ParseSource mirrors girc's source.go ParseSource.
func ParseSource(raw string) *Source {
	src := &Source{}

	user := strings.IndexByte(raw, '!')
	host := strings.IndexByte(raw, '@')

	switch {
	case user > 0 && host > user:
		src.Name = raw[:user]
		src.Ident = raw[user+1 : host]
		src.Host = raw[host+1:]
	case user > 0:
		src.Name = raw[:user]
		src.Ident = raw[user+1:]
	case host > 0:
		src.Name = raw[:host]
		src.Host = raw[host+1:]
	default:
		src.Name = raw
	}

	return src
}

// String reassembles nick!ident@host (or just the server/SID name).
func (s *Source) String() string {
	if s == nil {
		return ""
	}
	out := s.Name
	if s.Ident != "" {
		out += "!" + s.Ident
	}
	if s.Host != "" {
		out += "@" + s.Host
	}
	return out
}

// IsServer returns true when Source looks like a bare server name/SID
// rather than a user hostmask.
func (s *Source) IsServer() bool {
	return s.Ident == "" && s.Host == ""
}

// Event is a single IRC protocol line: either inbound from the wire, or
// about to be serialized outbound by an adapter.
type Event struct {
	Source   *Source
	Command  string
	Params   []string
	Trailing string
	// EmptyTrailing forces a ":" prefixed trailing argument even when
	// Trailing is "", matching girc's EmptyTrailing flag (used to
	// distinguish "TOPIC #chan :" from "TOPIC #chan").
	EmptyTrailing bool
}

// Parse parses a raw S2S/C2S line into an Event. Returns nil on malformed
// input, same contract as girc's ParseEvent.
func Parse(raw string) *Event {
	raw = strings.TrimRight(raw, "\r\n")
	if len(raw) < 2 {
		return nil
	}

	e := &Event{}
	i := 0

	if raw[0] == ':' {
		sp := strings.IndexByte(raw, space)
		if sp < 2 {
			return nil
		}
		e.Source = ParseSource(raw[1:sp])
		i = sp + 1
	}

	rest := raw[i:]
	if rest == "" {
		return nil
	}

	// Split command from the remainder.
	sp := strings.IndexByte(rest, space)
	if sp < 0 {
		e.Command = strings.ToUpper(rest)
		return e
	}
	e.Command = strings.ToUpper(rest[:sp])
	rest = rest[sp+1:]

	// Trailing argument, if any, starts at " :".
	if idx := strings.Index(rest, " :"); idx >= 0 {
		if idx > 0 {
			e.Params = strings.Split(rest[:idx], " ")
		}
		e.Trailing = rest[idx+2:]
		e.EmptyTrailing = e.Trailing == ""
	} else if strings.HasPrefix(rest, ":") {
		e.Trailing = rest[1:]
		e.EmptyTrailing = e.Trailing == ""
	} else {
		e.Params = strings.Split(rest, " ")
	}

	return e
}

// Bytes serializes the event back to wire form, truncated to maxLine.
func (e *Event) Bytes() []byte {
	buf := new(bytes.Buffer)

	if e.Source != nil {
		buf.WriteByte(':')
		buf.WriteString(e.Source.String())
		buf.WriteByte(space)
	}

	buf.WriteString(e.Command)

	for _, p := range e.Params {
		buf.WriteByte(space)
		buf.WriteString(p)
	}

	if e.Trailing != "" || e.EmptyTrailing {
		buf.WriteByte(space)
		buf.WriteByte(':')
		buf.WriteString(e.Trailing)
	}

	out := buf.Bytes()
	if len(out) > maxLine {
		out = out[:maxLine]
	}
	return out
}

func (e *Event) String() string { return string(e.Bytes()) }
