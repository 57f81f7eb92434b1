package p10

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
		Prefix:    "(ohv)@%+",
	}
	net := state.New("TestNet", "AB", isupport, nil)
	transport := &fakeTransport{}
	adapter := New("TestNet", net, transport, nil)
	return adapter, transport
}

func TestBurstJoinAssignsPrefixes(t *testing.T) {
	adapter, _ := newTestAdapter()

	var seen *ircevent.HookEvent
	adapter.EmitHook = func(e *ircevent.HookEvent) { seen = e }

	adapter.Dispatch(&ircevent.Event{
		Source:  ircevent.ParseSource("AB"),
		Command: "B",
		Params:  []string{"#test", "1500000000", "ABAAA:o", "ABAAB:v"},
	})

	ch, err := adapter.Net.Channels.Lookup("#test")
	if err != nil {
		t.Fatalf("expected #test to exist: %v", err)
	}
	if ch.CreationTS != 1500000000 {
		t.Fatalf("got ts %d, want 1500000000", ch.CreationTS)
	}
	if ch.Modes.Prefixes["ABAAA"] != "o" {
		t.Fatalf("expected ABAAA to be opped, got %q", ch.Modes.Prefixes["ABAAA"])
	}
	if ch.Modes.Prefixes["ABAAB"] != "v" {
		t.Fatalf("expected ABAAB to be voiced, got %q", ch.Modes.Prefixes["ABAAB"])
	}
	if seen == nil || seen.Command != ircevent.HookJoin {
		t.Fatalf("expected a JOIN hook to fire, got %+v", seen)
	}
}

func TestModeBouncesViaServerWhenNotOpped(t *testing.T) {
	adapter, transport := newTestAdapter()
	adapter.Net.Channels.Materialize("#test")

	if err := adapter.Mode("ABAAC", "#test", []ircmode.ModeChange{{Add: true, Char: 's'}}, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(transport.sent) != 1 {
		t.Fatalf("expected one MODE line sent, got %+v", transport.sent)
	}
	if transport.sent[0].Source.Name != "AB" {
		t.Fatalf("expected bounced mode to be sourced from server SID, got %q", transport.sent[0].Source.Name)
	}
}

func TestDispatchPingRepliesPong(t *testing.T) {
	adapter, transport := newTestAdapter()

	adapter.Dispatch(&ircevent.Event{Command: "G", Params: []string{"theiruplink"}})

	if len(transport.sent) != 1 || transport.sent[0].Command != "Z" {
		t.Fatalf("expected a Z (pong) to be sent, got %+v", transport.sent)
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
	if len(transport.sent) != 2 || transport.sent[0].Command != "N" {
		t.Fatalf("expected two N lines sent, got %+v", transport.sent)
	}
}
