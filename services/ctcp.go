package services

import (
	"runtime"
	"strings"
	"time"
)

// ctcpDelim is the CTCP framing byte, grounded on girc's ctcp.go.
const ctcpDelim byte = 0x01

// CTCPEvent is a decoded CTCP request/reply carried inside a PRIVMSG or
// NOTICE trailing argument.
type CTCPEvent struct {
	Source  string
	Command string
	Text    string
	Reply   bool
}

// decodeCTCP mirrors girc's decodeCTCP: PRIVMSG/NOTICE trailing text
// wrapped in 0x01 bytes, tag first, optional space-separated argument.
func decodeCTCP(source, command, trailing string) *CTCPEvent {
	if len(trailing) < 3 {
		return nil
	}
	if command != "PRIVMSG" && command != "NOTICE" {
		return nil
	}
	if trailing[0] != ctcpDelim || trailing[len(trailing)-1] != ctcpDelim {
		return nil
	}

	text := trailing[1 : len(trailing)-1]
	sp := strings.IndexByte(text, ' ')

	if sp < 0 {
		return &CTCPEvent{Source: source, Command: text, Reply: command == "NOTICE"}
	}
	return &CTCPEvent{Source: source, Command: text[:sp], Text: text[sp+1:], Reply: command == "NOTICE"}
}

// encodeCTCPRaw frames cmd/text as a CTCP payload suitable for a NOTICE
// trailing argument.
func encodeCTCPRaw(cmd, text string) string {
	if cmd == "" {
		return ""
	}
	out := string(ctcpDelim) + cmd
	if text != "" {
		out += " " + text
	}
	return out + string(ctcpDelim)
}

// handleDefaultCTCP answers VERSION/PING/TIME per spec §4.5 ("CTCP
// answering (VERSION, PING, TIME, …) delegated to the CTCP plugin"),
// grounded on girc's handleCTCPPing/handleCTCPVersion/handleCTCPTime.
func (b *Bot) handleDefaultCTCP(ctcp *CTCPEvent) {
	if ctcp.Reply {
		return
	}

	switch ctcp.Command {
	case "PING":
		b.rawNotice(ctcp.Source, encodeCTCPRaw("PING", ctcp.Text))
	case "VERSION":
		b.rawNotice(ctcp.Source, encodeCTCPRaw("VERSION", "pylink-go:1.0:"+runtime.GOOS))
	case "TIME":
		b.rawNotice(ctcp.Source, encodeCTCPRaw("TIME", time.Now().Format(time.RFC1123Z)))
	}
}
