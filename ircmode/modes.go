package ircmode

import (
	"sort"
	"strings"
)

// ModeSpec is a network's CHANMODES/PREFIX grammar: which mode letters are
// type A (list, e.g. ban), B (always takes an arg), C (takes an arg only
// when set), D (never takes an arg), and which letters are PREFIX ranks.
// Generalizes girc's CModes, which stores this as four raw strings parsed
// once from ISUPPORT (modes.go's newCModes) — same shape, renamed so it
// can be constructed per-network rather than per-Client.
type ModeSpec struct {
	ListArgs   string // type A: always takes an arg, adds/removes from a list.
	AlwaysArgs string // type B: always takes an arg.
	SetArgs    string // type C: takes an arg only when being set (+).
	NoArgs     string // type D: never takes an arg.
	Prefixes   string // PREFIX rank letters, e.g. "ohv" for op/halfop/voice, or "qaohv" on networks with owner/admin.
}

// PrefixRank orders the known non-RFC and RFC prefix ranks from highest to
// lowest, matching girc's UserPerms field ordering (Owner > Admin > Op >
// HalfOp > Voice).
var PrefixRank = []byte{'q', 'a', 'o', 'h', 'v'}

func rankIndex(c byte) int {
	for i, r := range PrefixRank {
		if r == c {
			return i
		}
	}
	return len(PrefixRank)
}

// classify mirrors girc's CModes.hasArg: given a mode letter and whether it
// is being set, reports whether an argument is consumed and whether this
// is a "setting" mode (as opposed to a type-A list mutation, which is
// tracked in Lists rather than Modes).
func (s ModeSpec) classify(set bool, mode byte) (hasArg, isSetting bool) {
	if strings.IndexByte(s.ListArgs, mode) >= 0 {
		return true, false
	}
	if strings.IndexByte(s.AlwaysArgs, mode) >= 0 {
		return true, true
	}
	if strings.IndexByte(s.SetArgs, mode) >= 0 {
		return set, true
	}
	if strings.IndexByte(s.Prefixes, mode) >= 0 {
		return true, false
	}
	return false, true
}

// ModeChange is a single (±char, arg) pair, normalized so that a prefix
// mode's arg is always a UID rather than whatever nick the wire gave.
type ModeChange struct {
	Add  bool
	Char byte
	Arg  string // "" for type-D modes or unsetting a type-C mode.
}

// ModeState is the mutable per-channel mode state parse/apply/reverse act
// on: B/C/D settings in Modes, A-type lists in Lists, and PREFIX rank
// membership in Prefixes (UID -> rank characters currently held, e.g. "@+").
type ModeState struct {
	Modes    map[byte]string
	Lists    map[byte][]string
	Prefixes map[string]string
}

func NewModeState() *ModeState {
	return &ModeState{
		Modes:    make(map[byte]string),
		Lists:    make(map[byte][]string),
		Prefixes: make(map[string]string),
	}
}

// ResolveUID looks up the UID for a nick argument of a prefix-mode change;
// adapters pass their NetworkState's nick index. ok is false when the
// nick is unknown, in which case ParseModes drops the entry per spec
// §4.1 ("drops ... invalid entries ... nonexistent target for prefix
// modes").
type ResolveUID func(nick string) (uid string, ok bool)

// ParseModes consumes a mode token string (e.g. "+ov-b") and its
// corresponding argument list, returning the normalized, deduplicated
// change list. state is the channel's CURRENT mode state, used to drop
// redundant changes (already-set D/C/B modes being re-set to the same
// value, list entries already present, prefix ranks already held, and
// removals of modes, list entries or ranks that are not present).
// Generalizes girc's CModes.parse, adding the dedup-against-current-state
// and nick->UID normalization steps spec.md §4.1 requires that girc's
// single-client model doesn't need (girc only tracks its own state, never
// reconciles a foreign MODE against a target it must relay to someone
// else).
func ParseModes(spec ModeSpec, tokens string, args []string, state *ModeState, resolve ResolveUID) []ModeChange {
	var out []ModeChange
	add := true
	argIdx := 0

	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case '+':
			add = true
			continue
		case '-':
			add = false
			continue
		}

		char := tokens[i]
		hasArg, isSetting := spec.classify(add, char)

		var arg string
		if hasArg {
			if argIdx >= len(args) {
				// Missing required argument: invalid entry, drop it.
				continue
			}
			arg = args[argIdx]
			argIdx++
		}

		if !isSetting {
			if strings.IndexByte(spec.Prefixes, char) >= 0 {
				uid, ok := arg, true
				if resolve != nil {
					uid, ok = resolve(arg)
				}
				if !ok {
					continue
				}
				arg = uid
				if state != nil && redundantPrefix(state, char, arg, add) {
					continue
				}
			} else if state != nil && redundantList(state, char, arg, add) {
				continue
			}
		} else if state != nil && redundantSetting(state, char, arg, add) {
			continue
		}

		out = append(out, ModeChange{Add: add, Char: char, Arg: arg})
	}

	return out
}

func redundantPrefix(state *ModeState, char byte, uid string, add bool) bool {
	held := strings.IndexByte(state.Prefixes[uid], char) >= 0
	return held == add
}

func redundantList(state *ModeState, char byte, arg string, add bool) bool {
	present := false
	for _, entry := range state.Lists[char] {
		if entry == arg {
			present = true
			break
		}
	}
	return present == add
}

func redundantSetting(state *ModeState, char byte, arg string, add bool) bool {
	cur, set := state.Modes[char]
	if !add {
		return !set
	}
	return set && cur == arg
}

// ApplyModes mutates state according to changes and returns the subset
// that actually changed anything (a change list already deduplicated by
// ParseModes is idempotent here, but ApplyModes re-checks so it's safe to
// call with a hand-built list too, e.g. from Relay's MODEDELTA).
func ApplyModes(state *ModeState, spec ModeSpec, changes []ModeChange) []ModeChange {
	var applied []ModeChange

	for _, c := range changes {
		switch {
		case strings.IndexByte(spec.Prefixes, c.Char) >= 0:
			cur := state.Prefixes[c.Arg]
			has := strings.IndexByte(cur, c.Char) >= 0
			if has == c.Add {
				continue
			}
			if c.Add {
				state.Prefixes[c.Arg] = cur + string(c.Char)
			} else {
				state.Prefixes[c.Arg] = strings.Replace(cur, string(c.Char), "", 1)
			}
		case strings.IndexByte(spec.ListArgs, c.Char) >= 0:
			if redundantList(state, c.Char, c.Arg, c.Add) {
				continue
			}
			if c.Add {
				state.Lists[c.Char] = append(state.Lists[c.Char], c.Arg)
			} else {
				list := state.Lists[c.Char]
				for i, e := range list {
					if e == c.Arg {
						state.Lists[c.Char] = append(list[:i], list[i+1:]...)
						break
					}
				}
			}
		default:
			if redundantSetting(state, c.Char, c.Arg, c.Add) {
				continue
			}
			if c.Add {
				state.Modes[c.Char] = c.Arg
			} else {
				delete(state.Modes, c.Char)
			}
		}
		applied = append(applied, c)
	}

	return applied
}

// ReverseModes computes the inverse of changes given state's CURRENT
// values (read before ApplyModes is called), used to bounce unwanted
// foreign changes back out (Relay's CLAIM/LINKACL enforcement, spec
// §4.7).
func ReverseModes(state *ModeState, spec ModeSpec, changes []ModeChange) []ModeChange {
	out := make([]ModeChange, 0, len(changes))

	for _, c := range changes {
		inverse := ModeChange{Char: c.Char, Add: !c.Add}

		switch {
		case strings.IndexByte(spec.Prefixes, c.Char) >= 0:
			inverse.Arg = c.Arg
		case strings.IndexByte(spec.ListArgs, c.Char) >= 0:
			inverse.Arg = c.Arg
		case strings.IndexByte(spec.SetArgs, c.Char) >= 0:
			// Reversing a set or an unset re-sets the prior value when
			// one exists; with no prior value, a set is reversed by -char.
			if prior, ok := state.Modes[c.Char]; ok {
				inverse.Add = true
				inverse.Arg = prior
			}
		case strings.IndexByte(spec.AlwaysArgs, c.Char) >= 0:
			if prior, ok := state.Modes[c.Char]; ok {
				inverse.Arg = prior
			} else {
				inverse.Arg = c.Arg
			}
		}

		out = append(out, inverse)
	}

	return out
}

// JoinModes serializes a change list into one or more "±chars args..."
// lines, each bounded by maxModesPerLine. When sortModes is true, prefix
// modes are emitted highest-rank first, then remaining modes
// alphabetically, per SPEC_FULL.md §4 ("join_modes sorting").
func JoinModes(changes []ModeChange, sortModes bool, maxModesPerLine int) []string {
	if len(changes) == 0 {
		return nil
	}

	ordered := make([]ModeChange, len(changes))
	copy(ordered, changes)

	if sortModes {
		sort.SliceStable(ordered, func(i, j int) bool {
			iPrefix := rankIndex(ordered[i].Char) < len(PrefixRank)
			jPrefix := rankIndex(ordered[j].Char) < len(PrefixRank)
			if iPrefix != jPrefix {
				return iPrefix
			}
			if iPrefix && jPrefix {
				return rankIndex(ordered[i].Char) < rankIndex(ordered[j].Char)
			}
			return ordered[i].Char < ordered[j].Char
		})
	}

	if maxModesPerLine <= 0 {
		maxModesPerLine = len(ordered)
	}

	var lines []string
	for start := 0; start < len(ordered); start += maxModesPerLine {
		end := start + maxModesPerLine
		if end > len(ordered) {
			end = len(ordered)
		}
		lines = append(lines, joinLine(ordered[start:end]))
	}

	return lines
}

func joinLine(changes []ModeChange) string {
	var flags strings.Builder
	var args []string

	add := changes[0].Add
	flags.WriteByte(sign(add))

	for _, c := range changes {
		if c.Add != add {
			add = c.Add
			flags.WriteByte(sign(add))
		}
		flags.WriteByte(c.Char)
		if c.Arg != "" {
			args = append(args, c.Arg)
		}
	}

	out := flags.String()
	for _, a := range args {
		out += " " + a
	}
	return out
}

func sign(add bool) byte {
	if add {
		return '+'
	}
	return '-'
}
