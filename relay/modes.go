package relay

import (
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

// relayableModes is the whitelist of named channel modes Relay forwards
// between networks (spec §4.7: "a whitelist of 'relayable' named modes
// and their translation table per IRCd"). Ban-like list modes are
// additionally screened by filterBans, which drops those whose argument
// is not a mask.
var relayableModes = map[string]bool{
	"noextmsg":    true,
	"topiclock":   true,
	"secret":      true,
	"private":     true,
	"moderated":   true,
	"inviteonly":  true,
	"key":         true,
	"limit":       true,
	"regonly":     true,
	"noctcp":      true,
	"nokick":      true,
	"blockcolor":  true,
	"op":          true,
	"halfop":      true,
	"voice":       true,
	"owner":       true,
	"admin":       true,
	"ban":         true,
	"banexception": true,
	"invex":       true,
	"quiet":       true,
}

// translateModes renames each of changes from home's mode-name table
// into leaf's equivalent character, dropping any mode that has no
// named equivalent on the leaf (translateModes's caller is expected to
// have already filtered to relayableModes). U-lined/services-only modes
// are excluded here since the caller only ever calls this for entries
// that passed the CLAIM gate.
func translateModes(home, leaf *state.NetworkState, changes []ircmode.ModeChange) []ircmode.ModeChange {
	out := make([]ircmode.ModeChange, 0, len(changes))
	for _, c := range changes {
		name, ok := home.ModeNames.Chan[c.Char]
		if !ok || !relayableModes[name] {
			continue
		}
		leafChar, ok := reverseModeName(leaf.ModeNames.Chan, name)
		if !ok {
			continue
		}
		out = append(out, ircmode.ModeChange{Add: c.Add, Char: leafChar, Arg: c.Arg})
	}
	return out
}

func reverseModeName(table map[byte]string, name string) (byte, bool) {
	for char, n := range table {
		if n == name {
			return char, true
		}
	}
	return 0, false
}

// isBanLike reports whether mode is a list-type mode carrying a
// nick!user@host-shaped argument (spec §4.7: "Bans that don't match
// nick!user@host (other than recognized extbans) are dropped on
// forward").
func isBanLike(modeName string) bool {
	switch modeName {
	case "ban", "banexception", "invex", "quiet":
		return true
	default:
		return false
	}
}

// filterBans drops any ban-like mode change whose argument isn't a
// plain nick!user@host mask or a recognized extban (prefixed "$" or
// "~"), per spec §4.7.
func filterBans(home *state.NetworkState, changes []ircmode.ModeChange) []ircmode.ModeChange {
	out := make([]ircmode.ModeChange, 0, len(changes))
	for _, c := range changes {
		name, ok := home.ModeNames.Chan[c.Char]
		if ok && isBanLike(name) && !looksLikeMask(c.Arg) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func looksLikeMask(arg string) bool {
	if arg == "" {
		return false
	}
	if arg[0] == '$' || arg[0] == '~' {
		return true // extban
	}
	hasBang, hasAt := false, false
	for i := 0; i < len(arg); i++ {
		switch arg[i] {
		case '!':
			hasBang = true
		case '@':
			hasAt = true
		}
	}
	return hasBang && hasAt
}

// ModeDeltaChanges converts a ChannelEntry's ModeDelta list into
// ircmode.ModeChange values suitable for applying on a leaf only (spec
// §4.7's MODEDELTA).
func ModeDeltaChanges(deltas []ModeDelta) []ircmode.ModeChange {
	out := make([]ircmode.ModeChange, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, ircmode.ModeChange{Add: true, Char: d.Mode, Arg: d.Arg})
	}
	return out
}
