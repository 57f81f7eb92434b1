package ircmode

import (
	"net"
	"strings"
)

// MatchUser is the minimal view of a user MatchHost needs: its current
// nick!ident@host triple, grounded on girc's Source (source.go) but kept
// independent of any concrete state.User type so ircmode has no import
// cycle with the state package.
type MatchUser struct {
	Nick string
	User string
	Host string
}

// MatchText is a generic ?/* glob matcher, case-sensitive; callers fold
// case themselves with CaseFold first when the comparison should be
// case-insensitive (nicks, channel names). Grounded on the glob-matching
// idiom every ban-mask implementation in the corpus needs but none of the
// teacher/pack files implement as a reusable function — this is a
// standard greedy/backtracking glob match over bytes, the same algorithm
// shells and git use for wildcard matching.
func MatchText(glob, text string) bool {
	return matchGlob(glob, text)
}

func matchGlob(glob, text string) bool {
	var gi, ti, starIdx, match int
	starIdx = -1

	for ti < len(text) {
		switch {
		case gi < len(glob) && (glob[gi] == '?' || glob[gi] == text[ti]):
			gi++
			ti++
		case gi < len(glob) && glob[gi] == '*':
			starIdx = gi
			match = ti
			gi++
		case starIdx != -1:
			gi = starIdx + 1
			match++
			ti = match
		default:
			return false
		}
	}

	for gi < len(glob) && glob[gi] == '*' {
		gi++
	}

	return gi == len(glob)
}

// MatchHost matches mask (a nick!user@host glob, optionally with a CIDR
// host portion and a leading "!" negation) against user. Extended
// targets ($account, $ircop, $server, $channel, $pylinkacc, $network,
// $and:(...)) are NOT handled here — they need access to account/oper/
// channel-membership state this package doesn't have, so they live in
// package permissions, which calls MatchHost for the plain-hostmask leaf
// case of its grammar (spec §4.1/§4.6).
func MatchHost(mask string, user MatchUser) bool {
	negate := false
	if strings.HasPrefix(mask, "!") {
		negate = true
		mask = mask[1:]
	}

	result := matchHostmask(mask, user)
	if negate {
		return !result
	}
	return result
}

func matchHostmask(mask string, user MatchUser) bool {
	nick, rest, hasNick := cut(mask, '!')
	if !hasNick {
		// Bare host/CIDR mask, e.g. used in server bans.
		return matchHostPortion(mask, user.Host)
	}

	userPart, host, hasUser := cut(rest, '@')
	if !hasUser {
		return false
	}

	if !MatchText(nick, user.Nick) {
		return false
	}
	if !MatchText(userPart, user.User) {
		return false
	}
	return matchHostPortion(host, user.Host)
}

func cut(s string, sep byte) (before, after string, found bool) {
	i := strings.IndexByte(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

// matchHostPortion supports plain glob matching plus CIDR notation
// (e.g. "10.0.0.0/8", "2001:db8::/32") in the host portion of a mask.
func matchHostPortion(maskHost, userHost string) bool {
	if strings.Contains(maskHost, "/") {
		_, ipnet, err := net.ParseCIDR(maskHost)
		if err == nil {
			if ip := net.ParseIP(userHost); ip != nil {
				return ipnet.Contains(ip)
			}
		}
	}
	return MatchText(maskHost, userHost)
}
