package ircmode

import "testing"

// ts6Spec mirrors a typical TS6 CHANMODES=eIbq,k,flj,CFLMPQScgimnprstz
// plus PREFIX=(qaohv)~&@%+, trimmed to what these tests exercise.
var ts6Spec = ModeSpec{
	ListArgs:   "b",
	AlwaysArgs: "k",
	SetArgs:    "l",
	NoArgs:     "n",
	Prefixes:   "qaohv",
}

func resolveStatic(known map[string]string) ResolveUID {
	return func(nick string) (string, bool) {
		uid, ok := known[nick]
		return uid, ok
	}
}

func TestParseModesRoundTripsWithJoinModes(t *testing.T) {
	state := NewModeState()
	state.Modes['n'] = ""
	resolve := resolveStatic(map[string]string{"Dan": "1SRAAAAAB"})

	changes := ParseModes(ts6Spec, "+ov-n", []string{"Dan"}, state, resolve)

	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(changes), changes)
	}
	if changes[0].Char != 'o' || changes[0].Arg != "1SRAAAAAB" || !changes[0].Add {
		t.Fatalf("unexpected first change: %+v", changes[0])
	}
	if changes[1].Char != 'n' || changes[1].Add {
		t.Fatalf("unexpected second change: %+v", changes[1])
	}

	lines := JoinModes(changes, false, 0)
	if len(lines) != 1 {
		t.Fatalf("expected a single line, got %v", lines)
	}
}

func TestParseModesDropsUnknownPrefixTarget(t *testing.T) {
	state := NewModeState()
	resolve := resolveStatic(map[string]string{})

	changes := ParseModes(ts6Spec, "+o", []string{"Ghost"}, state, resolve)
	if len(changes) != 0 {
		t.Fatalf("expected unresolvable prefix target to be dropped, got %+v", changes)
	}
}

func TestParseModesDropsMissingArgument(t *testing.T) {
	state := NewModeState()
	changes := ParseModes(ts6Spec, "+k", nil, state, nil)
	if len(changes) != 0 {
		t.Fatalf("expected mode missing its required arg to be dropped, got %+v", changes)
	}
}

func TestParseModesDedupsAgainstCurrentState(t *testing.T) {
	state := NewModeState()
	state.Modes['n'] = ""

	changes := ParseModes(ts6Spec, "+n", nil, state, nil)
	if len(changes) != 0 {
		t.Fatalf("expected redundant +n to be deduplicated, got %+v", changes)
	}
}

func TestApplyModesListAndPrefix(t *testing.T) {
	state := NewModeState()
	changes := []ModeChange{
		{Add: true, Char: 'b', Arg: "*!*@example.com"},
		{Add: true, Char: 'o', Arg: "1SRAAAAAB"},
	}

	applied := ApplyModes(state, ts6Spec, changes)
	if len(applied) != 2 {
		t.Fatalf("got %d applied, want 2", len(applied))
	}
	if len(state.Lists['b']) != 1 || state.Lists['b'][0] != "*!*@example.com" {
		t.Fatalf("ban list not updated: %+v", state.Lists)
	}
	if state.Prefixes["1SRAAAAAB"] != "o" {
		t.Fatalf("prefix not recorded: %+v", state.Prefixes)
	}

	// Re-applying the identical change set should be a no-op.
	applied = ApplyModes(state, ts6Spec, changes)
	if len(applied) != 0 {
		t.Fatalf("expected idempotent re-apply, got %+v", applied)
	}
}

func TestReverseModesBan(t *testing.T) {
	state := NewModeState()
	changes := []ModeChange{{Add: true, Char: 'b', Arg: "*!*@example.com"}}
	ApplyModes(state, ts6Spec, changes)

	reversed := ReverseModes(state, ts6Spec, changes)
	if len(reversed) != 1 || reversed[0].Add || reversed[0].Arg != "*!*@example.com" {
		t.Fatalf("unexpected reverse: %+v", reversed)
	}
}

func TestReverseModesSetArgRestoresPriorValue(t *testing.T) {
	state := NewModeState()
	ApplyModes(state, ts6Spec, []ModeChange{{Add: true, Char: 'l', Arg: "50"}})

	// A foreign change tries to set a new limit; reversing it should
	// restore 50, not drop the limit mode entirely.
	foreign := []ModeChange{{Add: true, Char: 'l', Arg: "999"}}
	reversed := ReverseModes(state, ts6Spec, foreign)
	if len(reversed) != 1 || !reversed[0].Add || reversed[0].Arg != "50" {
		t.Fatalf("unexpected reverse: %+v", reversed)
	}
}

func TestJoinModesSortsPrefixesHighestFirst(t *testing.T) {
	changes := []ModeChange{
		{Add: true, Char: 'v', Arg: "uid3"},
		{Add: true, Char: 'o', Arg: "uid1"},
		{Add: true, Char: 'q', Arg: "uid2"},
	}
	lines := JoinModes(changes, true, 0)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %v", lines)
	}
	want := "+qov uid2 uid1 uid3"
	if lines[0] != want {
		t.Fatalf("got %q, want %q", lines[0], want)
	}
}

func TestJoinModesRespectsMaxModesPerLine(t *testing.T) {
	changes := []ModeChange{
		{Add: true, Char: 'n'},
		{Add: true, Char: 'k', Arg: "secret"},
		{Add: false, Char: 'b', Arg: "*!*@example.com"},
	}
	lines := JoinModes(changes, false, 2)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), lines)
	}
}

func TestJoinModesEmpty(t *testing.T) {
	if lines := JoinModes(nil, true, 3); lines != nil {
		t.Fatalf("expected nil for empty input, got %v", lines)
	}
}
