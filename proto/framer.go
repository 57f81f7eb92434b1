package proto

import (
	"fmt"
	"strconv"

	"github.com/pylink/pylink/ircevent"
)

// Numeric reply codes used by S2SFramer.Whois, grounded on RFC1459/2812
// and spec §6.1's "311/312/313/317/318 chain".
const (
	RPLWhoisUser     = "311"
	RPLWhoisServer   = "312"
	RPLWhoisOperator = "313"
	RPLWhoisIdle     = "317"
	RPLEndOfWhois    = "318"
)

// S2SFramer is the composed numeric-reply/burst-formatting helper every
// adapter embeds, replacing the source's per-protocol duplicated
// coremods/handlers.py-equivalent formatting chain with one shared
// implementation (spec §4's component-design clarification, design note
// §9: "share implementations via composition"). It has no girc
// equivalent — girc is a C2S client and never answers WHOIS on behalf of
// a server — so the numeric text itself is grounded on RFC1459/RFC2812's
// numeric definitions referenced directly by spec §6.1.
type S2SFramer struct {
	// OwnSID/OwnName identify the server issuing these numerics (the
	// PyLink pseudo-server for this network).
	OwnSID, OwnName string
}

// Whois builds the 311/312/313/317/318 numeric chain spec §6.1 requires
// for a remote WHOIS of a local (or puppet) user.
func (f *S2SFramer) Whois(requester, nick, ident, host, realname, serverName, serverInfo string, idleSeconds int64, signonTS int64, isOper bool, operType string) []*ircevent.Event {
	events := []*ircevent.Event{
		f.numericEvent(requester, RPLWhoisUser, []string{requester, nick, ident, host, "*"}, realname),
		f.numericEvent(requester, RPLWhoisServer, []string{requester, nick, serverName}, serverInfo),
	}

	if isOper {
		events = append(events, f.numericEvent(requester, RPLWhoisOperator, []string{requester, nick}, operTypeText(operType)))
	}

	events = append(events, f.numericEvent(requester, RPLWhoisIdle,
		[]string{requester, nick, strconv.FormatInt(idleSeconds, 10), strconv.FormatInt(signonTS, 10)},
		"seconds idle, signon time"))

	events = append(events, f.numericEvent(requester, RPLEndOfWhois, []string{requester, nick}, "End of /WHOIS list."))

	return events
}

func operTypeText(operType string) string {
	if operType == "" {
		return "is an IRC Operator"
	}
	return fmt.Sprintf("is a(n) %s", operType)
}

func (f *S2SFramer) numericEvent(target, numeric string, params []string, trailing string) *ircevent.Event {
	return &ircevent.Event{
		Source:   ircevent.ParseSource(f.OwnSID),
		Command:  numeric,
		Params:   params,
		Trailing: trailing,
	}
}

// Version builds the RPL_VERSION (351) reply to a remote /VERSION.
func (f *S2SFramer) Version(requester string) *ircevent.Event {
	return f.numericEvent(requester, "351", []string{requester, "pylink-go-1.0", f.OwnName}, "")
}

// TimeReply builds the RPL_TIME (391) reply to a remote /TIME.
func (f *S2SFramer) TimeReply(requester string, unixSeconds int64) *ircevent.Event {
	return f.numericEvent(requester, "391", []string{requester, f.OwnName}, strconv.FormatInt(unixSeconds, 10))
}

// MaxLineBytes bounds a single outbound line's argument payload, per
// spec §4.3 ("≤400 bytes per line for long argument lists").
const MaxLineBytes = 400

// MaxSJoinUsers bounds how many (prefixmodes, uid) pairs a single SJOIN
// burst line carries, per spec §4.3 ("12 users per SJOIN").
const MaxSJoinUsers = 12

// WrapArgs splits args into chunks of at most maxPerLine arguments whose
// joined length (space-separated) stays within MaxLineBytes, preserving
// order; a single argument longer than MaxLineBytes gets a chunk of its
// own. Used by adapters to line-wrap long ban-list bursts, SQUIT nick
// lists, etc.
func WrapArgs(args []string, maxPerLine int) [][]string {
	if maxPerLine <= 0 || maxPerLine > len(args) {
		maxPerLine = len(args)
	}
	if maxPerLine == 0 {
		return nil
	}

	var out [][]string
	start, size := 0, 0
	for i, arg := range args {
		n := len(arg)
		if i > start {
			n++ // separating space
		}
		if i > start && (i-start >= maxPerLine || size+n > MaxLineBytes) {
			out = append(out, args[start:i])
			start, size, n = i, 0, len(arg)
		}
		size += n
	}
	return append(out, args[start:])
}
