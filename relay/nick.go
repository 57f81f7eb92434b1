package relay

import (
	"strings"
	"unicode"
)

// tagNick produces the relay nick for a real user on the destination
// network: "nick/net", stripped to ASCII via transliterate when freeform
// (non-ASCII) nicks aren't supported there. It always uses "/" and does
// not consult the destination's nickchars; the "nick|net" form comes
// from tagNickFallback, which onNick tries after a "/" rename fails.
func tagNick(nick, network string, freeformNicks bool, maxLen int) string {
	if !freeformNicks {
		nick = transliterate(nick)
	}

	tagged := nick + "/" + network
	if maxLen > 0 && len(tagged) > maxLen {
		tagged = truncateTag(nick, network, "/", maxLen)
	}
	return tagged
}

// tagNickFallback is used once the primary "/"-tagged nick collides
// (spec §4.7's nick-collision handling): switch the separator to "|".
func tagNickFallback(nick, network string, maxLen int) string {
	tagged := nick + "|" + network
	if maxLen > 0 && len(tagged) > maxLen {
		tagged = truncateTag(nick, network, "|", maxLen)
	}
	return tagged
}

// truncateTag shortens nick (never the separator+network suffix, which
// identifies the origin) to fit within maxLen.
func truncateTag(nick, network, sep string, maxLen int) string {
	suffix := sep + network
	room := maxLen - len(suffix)
	if room <= 0 {
		return suffix[:maxLen]
	}
	if len(nick) > room {
		nick = nick[:room]
	}
	return nick + suffix
}

// transliterate strips a nick to the ASCII subset most IRCds' nickchars
// whitelist accepts: other ASCII characters are dropped and each
// non-ASCII rune is replaced with "-"; a nick with no ASCII letter, digit
// or nick symbol left becomes "relayuser". Grounded on spec §4.7's "strip
// to ASCII via a configurable transliterator" — this is the fixed,
// non-configurable baseline transliterator; a pluggable one is Relay
// config surface this package doesn't own.
func transliterate(s string) string {
	var b strings.Builder
	kept := false
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("-_[]{}\\^`|", r)):
			b.WriteRune(r)
			kept = true
		case r >= unicode.MaxASCII:
			b.WriteByte('-')
		}
	}
	if !kept {
		return "relayuser"
	}
	return b.String()
}
