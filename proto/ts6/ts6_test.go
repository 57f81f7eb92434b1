package ts6

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

func newTestAdapter() (*Adapter, *fakeTransport, []*ircevent.HookEvent) {
	isupport := state.ISupport{
		Casemap:   ircmode.CasemapRFC1459,
		ChanModes: DefaultModeSpec,
		Prefix:    "(ohv)@%+",
	}
	net := state.New("TestNet", "1A", isupport, nil)

	var hooksSeen []*ircevent.HookEvent
	transport := &fakeTransport{}
	adapter := New("TestNet", net, transport, func(e *ircevent.HookEvent) {
		hooksSeen = append(hooksSeen, e)
	})
	return adapter, transport, hooksSeen
}

// TestSJoinScenario mirrors spec's concrete scenario 1: "1A SJOIN
// 1500000000 #test +nt :@1AAAAAAAA +1AAAAAAAB" creates #test with the
// right TS, modes, and prefix assignment, and fires a JOIN hook.
func TestSJoinScenario(t *testing.T) {
	adapter, _, _ := newTestAdapter()

	var seen *ircevent.HookEvent
	adapter.EmitHook = func(e *ircevent.HookEvent) { seen = e }

	evt := &ircevent.Event{
		Source:  ircevent.ParseSource("1A"),
		Command: "SJOIN",
		Params:  []string{"1500000000", "#test", "+nt"},
		Trailing: "@1AAAAAAAA +1AAAAAAAB",
	}
	adapter.Dispatch(evt)

	ch, err := adapter.Net.Channels.Lookup("#test")
	if err != nil {
		t.Fatalf("expected #test to exist: %v", err)
	}
	if ch.CreationTS != 1500000000 {
		t.Fatalf("got ts %d, want 1500000000", ch.CreationTS)
	}
	if _, ok := ch.Members["1AAAAAAAA"]; !ok {
		t.Fatalf("expected 1AAAAAAAA to be a member")
	}
	if _, ok := ch.Members["1AAAAAAAB"]; !ok {
		t.Fatalf("expected 1AAAAAAAB to be a member")
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

func TestDispatchPingRepliesPong(t *testing.T) {
	adapter, transport, _ := newTestAdapter()

	adapter.Dispatch(&ircevent.Event{Command: "PING", Params: []string{"theiruplink"}})

	if len(transport.sent) != 1 || transport.sent[0].Command != "PONG" {
		t.Fatalf("expected a PONG to be sent, got %+v", transport.sent)
	}
}

func TestDispatchEncapUnwraps(t *testing.T) {
	adapter, _, _ := newTestAdapter()

	var seen *ircevent.HookEvent
	adapter.EmitHook = func(e *ircevent.HookEvent) { seen = e }

	adapter.Dispatch(&ircevent.Event{
		Source:  ircevent.ParseSource("1AAAAAAAA"),
		Command: "ENCAP",
		Params:  []string{"*", "INVITE", "1AAAAAAAB", "#test"},
	})

	if seen == nil || seen.Command != ircevent.HookInvite {
		t.Fatalf("expected ENCAP INVITE to unwrap to an INVITE hook, got %+v", seen)
	}
}

func TestQuitRemovesUserAndFiresHook(t *testing.T) {
	adapter, _, _ := newTestAdapter()
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
	adapter, transport, _ := newTestAdapter()

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
	if len(transport.sent) != 2 || transport.sent[0].Command != "EUID" {
		t.Fatalf("expected two EUID lines sent, got %+v", transport.sent)
	}
}
