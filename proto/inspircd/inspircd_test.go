package inspircd

import (
	"testing"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

type fakeTransport struct {
	sent []*ircevent.Event
}

func (f *fakeTransport) Send(evt *ircevent.Event) error {
	f.sent = append(f.sent, evt)
	return nil
}

func newTestAdapter() (*Adapter, *fakeTransport) {
	isupport := state.ISupport{
		Casemap:   ircmode.CasemapRFC1459,
		ChanModes: DefaultModeSpec,
		Prefix:    "(qaohv)~&@%+",
	}
	net := state.New("TestNet", "1A", isupport, nil)
	transport := &fakeTransport{}
	adapter := New("TestNet", net, transport, nil)
	return adapter, transport
}

// TestFJoinScenario reproduces the burst shape of spec's concrete
// scenario 3: an FJOIN creates the channel with the right TS/modes and
// assigns per-user prefixes from the comma-joined token format.
func TestFJoinScenario(t *testing.T) {
	adapter, _ := newTestAdapter()

	var seen *ircevent.HookEvent
	adapter.EmitHook = func(e *ircevent.HookEvent) { seen = e }

	evt := &ircevent.Event{
		Source:   ircevent.ParseSource("1A"),
		Command:  "FJOIN",
		Params:   []string{"#test", "1500000000", "+nt"},
		Trailing: "o,1AAAAAAAA v,1AAAAAAAB",
	}
	adapter.Dispatch(evt)

	ch, err := adapter.Net.Channels.Lookup("#test")
	if err != nil {
		t.Fatalf("expected #test to exist: %v", err)
	}
	if ch.CreationTS != 1500000000 {
		t.Fatalf("got ts %d, want 1500000000", ch.CreationTS)
	}
	if ch.Modes.Prefixes["1AAAAAAAA"] != "o" {
		t.Fatalf("expected 1AAAAAAAA to be opped, got %q", ch.Modes.Prefixes["1AAAAAAAA"])
	}
	if ch.Modes.Prefixes["1AAAAAAAB"] != "v" {
		t.Fatalf("expected 1AAAAAAAB to be voiced, got %q", ch.Modes.Prefixes["1AAAAAAAB"])
	}
	if seen == nil || seen.Command != ircevent.HookJoin {
		t.Fatalf("expected a JOIN hook to fire, got %+v", seen)
	}
	users := seen.GetStringSlice("users")
	if len(users) != 2 {
		t.Fatalf("expected 2 users in JOIN hook, got %v", users)
	}
}

// TestFModeAppliesAndReverses covers the scenario 3 reversal path: the
// adapter just serializes whatever ModeChange list it's given, so a
// Relay-style reversal is exercised here by reversing a parsed FMODE
// via ircmode.ReverseModes and feeding that back through Mode.
func TestFModeAppliesAndReverses(t *testing.T) {
	adapter, transport := newTestAdapter()
	adapter.Net.Channels.Materialize("#test")

	adapter.Dispatch(&ircevent.Event{
		Source:  ircevent.ParseSource("1A"),
		Command: "FMODE",
		Params:  []string{"#test", "0", "+s"},
	})

	ch, _ := adapter.Net.Channels.Lookup("#test")
	if !containsSetting(ch.Modes, 's') {
		t.Fatalf("expected +s to be applied")
	}

	parsed := ircmode.ParseModes(DefaultModeSpec, "+s", nil, state.NewModeState(), nil)
	reverse := ircmode.ReverseModes(state.NewModeState(), DefaultModeSpec, parsed)
	if err := adapter.Mode("1A", "#test", reverse, 0); err != nil {
		t.Fatalf("unexpected error reversing FMODE: %v", err)
	}
	if len(transport.sent) == 0 || transport.sent[len(transport.sent)-1].Command != "FMODE" {
		t.Fatalf("expected a reversing FMODE to be sent, got %+v", transport.sent)
	}
}

func containsSetting(ms *ircmode.ModeState, mode byte) bool {
	_, ok := ms.Modes[mode]
	return ok
}

func TestDispatchPingRepliesPong(t *testing.T) {
	adapter, transport := newTestAdapter()

	adapter.Dispatch(&ircevent.Event{Command: "PING", Params: []string{"theiruplink"}})

	if len(transport.sent) != 1 || transport.sent[0].Command != "PONG" {
		t.Fatalf("expected a PONG to be sent, got %+v", transport.sent)
	}
}

func TestQuitRemovesUserAndFiresHook(t *testing.T) {
	adapter, _ := newTestAdapter()
	adapter.Net.NewUser("1AAAAAAAA", "Dan")

	var seen *ircevent.HookEvent
	adapter.EmitHook = func(e *ircevent.HookEvent) { seen = e }

	adapter.Dispatch(&ircevent.Event{
		Source:   ircevent.ParseSource("1AAAAAAAA"),
		Command:  "QUIT",
		Trailing: "Client exited",
	})

	if adapter.Net.Users.Get("1AAAAAAAA") != nil {
		t.Fatalf("expected user to be removed on QUIT")
	}
	if seen == nil || seen.Command != ircevent.HookQuit {
		t.Fatalf("expected a QUIT hook, got %+v", seen)
	}
}

func TestSpawnClientAssignsIncreasingUIDs(t *testing.T) {
	adapter, transport := newTestAdapter()

	uid1, err := adapter.SpawnClient("Alice", "alice", "host1", "real1", nil, "", "1.2.3.4", "Alice", 1000, "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	uid2, err := adapter.SpawnClient("Bob", "bob", "host2", "real2", nil, "", "1.2.3.5", "Bob", 1001, "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid1 == uid2 {
		t.Fatalf("expected distinct UIDs, got %q twice", uid1)
	}
	if len(transport.sent) != 2 || transport.sent[0].Command != "UID" {
		t.Fatalf("expected two UID lines sent, got %+v", transport.sent)
	}
}
