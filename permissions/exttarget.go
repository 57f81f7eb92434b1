package permissions

import (
	"strings"

	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

// matchExtTarget evaluates one extended-target mask (spec §4.6):
//
//	$account[:acctglob[:netglob]]     logged into services, optionally matching account/network globs
//	$ircop[:typeglob]                 opered, optionally matching opertype glob
//	$server:nameOrSIDOrGlob           connected to a server matching name, SID, or glob
//	$channel:#chan[:prefixrank]       a member of #chan, optionally holding at least prefixrank
//	$pylinkacc[:loginglob]            never matches: PyLink's own account system is not modeled
//	$network:netglob                  subj's own network name matches netglob
//	$and:(a+b+c)                      every sub-target must match
//
// Unrecognized target keywords never match (fail closed), matching the
// "deny by default" posture the rest of the permission check already
// has for plain hostmasks with no matching rule.
func matchExtTarget(mask string, subj Subject) bool {
	body := strings.TrimPrefix(mask, "$")
	name, rest, _ := cut(body, ':')

	switch name {
	case "account":
		return matchAccount(rest, subj)
	case "ircop":
		return matchIRCOp(rest, subj)
	case "server":
		return matchServer(rest, subj)
	case "channel":
		return matchChannel(rest, subj)
	case "pylinkacc":
		return matchPylinkAcc(rest, subj)
	case "network":
		return ircmode.MatchText(rest, subj.Network)
	case "and":
		return matchAnd(rest, subj)
	default:
		return false
	}
}

func cut(s string, sep byte) (before, after string, found bool) {
	i := strings.IndexByte(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

func matchAccount(rest string, subj Subject) bool {
	if subj.User == nil || subj.User.Account == "" {
		return false
	}
	if rest == "" {
		return true
	}
	acctGlob, netGlob, hasNet := cut(rest, ':')
	if !ircmode.MatchText(acctGlob, subj.User.Account) {
		return false
	}
	if hasNet && !ircmode.MatchText(netGlob, subj.Network) {
		return false
	}
	return true
}

func matchIRCOp(rest string, subj Subject) bool {
	if subj.User == nil || !subj.User.Opered {
		return false
	}
	if rest == "" {
		return true
	}
	return ircmode.MatchText(rest, subj.User.OperType)
}

// matchServer matches the user's own uplink server by name, SID, or
// glob against rest, since spec §4.6 doesn't distinguish the three forms
// lexically — any of them can be a valid server identifier.
func matchServer(rest string, subj Subject) bool {
	if subj.User == nil || subj.Net == nil || rest == "" {
		return false
	}
	srv := userServer(subj)
	if srv == nil {
		return false
	}
	return srv.SID == rest || srv.Name == rest || ircmode.MatchText(rest, srv.Name)
}

// userServer finds the Server record owning subj.User.UID by scanning
// the network's server tree; NetworkState tracks membership on Server
// (Users map[string]struct{}) rather than back-pointers on User, so
// there's no faster lookup available without adding one.
func userServer(subj Subject) *state.Server {
	var found *state.Server
	subj.Net.Servers.Each(func(s *state.Server) {
		if found != nil {
			return
		}
		if _, ok := s.Users[subj.User.UID]; ok {
			found = s
		}
	})
	return found
}

func matchChannel(rest string, subj Subject) bool {
	if subj.User == nil || subj.Net == nil || rest == "" {
		return false
	}
	chanGlob, rank, hasRank := cut(rest, ':')

	ch := findChannel(subj, chanGlob)
	if ch == nil {
		return false
	}
	if _, member := ch.Members[subj.User.UID]; !member {
		return false
	}
	if !hasRank {
		return true
	}
	return hasRankAtLeast(ch, subj.User.UID, rank)
}

// findChannel tries an exact (casefolded) lookup first, falling back to
// a glob scan since chanGlob may itself contain wildcard characters.
func findChannel(subj Subject, chanGlob string) *state.Channel {
	if ch, err := subj.Net.Channels.Lookup(chanGlob); err == nil {
		return ch
	}
	var found *state.Channel
	subj.Net.Channels.Each(func(ch *state.Channel) {
		if found == nil && ircmode.MatchText(chanGlob, ch.Name) {
			found = ch
		}
	})
	return found
}

// rankOrder lists prefix characters from highest to lowest, matching the
// owner>admin>op>halfop>voice ordering spec §4.1 assigns to join_modes.
var rankOrder = []byte{'q', 'a', 'o', 'h', 'v'}

func rankIndex(prefix byte) int {
	for i, c := range rankOrder {
		if c == prefix {
			return i
		}
	}
	return len(rankOrder)
}

// hasRankAtLeast reports whether uid holds rankChar or anything higher
// ranked in ch.
func hasRankAtLeast(ch *state.Channel, uid, rankChar string) bool {
	if rankChar == "" {
		return true
	}
	want := rankIndex(rankChar[0])
	prefixes := ch.Modes.Prefixes[uid]
	for i := 0; i < len(prefixes); i++ {
		if rankIndex(prefixes[i]) <= want {
			return true
		}
	}
	return false
}

func matchPylinkAcc(rest string, subj Subject) bool {
	// PyLink's own account system (distinct from network services login)
	// has no modeled entity in this port — spec §4.6 names it but the
	// distilled spec never describes its storage. Fails closed rather
	// than guessing at semantics nothing in the pack grounds.
	_ = rest
	return false
}

func matchAnd(rest string, subj Subject) bool {
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	if rest == "" {
		return false
	}
	for _, part := range strings.Split(rest, "+") {
		if !matchTarget(part, subj) {
			return false
		}
	}
	return true
}
