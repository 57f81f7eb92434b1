package unreal

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

func TestSJoinParsesPrefixSymbols(t *testing.T) {
	adapter, _ := newTestAdapter()

	var seen *ircevent.HookEvent
	adapter.EmitHook = func(e *ircevent.HookEvent) { seen = e }

	adapter.Dispatch(&ircevent.Event{
		Source:   ircevent.ParseSource("1A"),
		Command:  "SJOIN",
		Params:   []string{"1500000000", "#test", "+nt"},
		Trailing: "@1AAAAAAAA +1AAAAAAAB",
	})

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
}

// TestSvsnickRetagsPuppet reproduces spec's concrete scenario 4: an
// uplink SVSNICK for a colliding puppet renames it in place rather than
// killing/respawning, and the adapter surfaces an SVSNICK hook so Relay
// can follow up on other linked networks.
func TestSvsnickRetagsPuppet(t *testing.T) {
	adapter, _ := newTestAdapter()
	adapter.Net.NewUser("1AAAAAAAC", "puppet17")

	var seen *ircevent.HookEvent
	adapter.EmitHook = func(e *ircevent.HookEvent) { seen = e }

	adapter.Dispatch(&ircevent.Event{
		Source:  ircevent.ParseSource("TestNet.example"),
		Command: "SVSNICK",
		Params:  []string{"1AAAAAAAC", "puppet17_"},
	})

	u := adapter.Net.Users.Get("1AAAAAAAC")
	if u == nil || u.Nick != "puppet17_" {
		t.Fatalf("expected puppet to be renamed to puppet17_, got %+v", u)
	}
	if seen == nil || seen.Command != ircevent.HookSvsnick {
		t.Fatalf("expected an SVSNICK hook, got %+v", seen)
	}
	if seen.GetString("newnick") != "puppet17_" {
		t.Fatalf("expected hook newnick=puppet17_, got %q", seen.GetString("newnick"))
	}
}

func TestOutboundSvsnickSendsWireCommand(t *testing.T) {
	adapter, transport := newTestAdapter()
	adapter.Net.NewUser("1AAAAAAAC", "puppet17")

	if err := adapter.Svsnick("1A", "1AAAAAAAC", "puppet17_"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transport.sent) != 1 || transport.sent[0].Command != "SVSNICK" {
		t.Fatalf("expected an SVSNICK to be sent, got %+v", transport.sent)
	}
	if u := adapter.Net.Users.Get("1AAAAAAAC"); u == nil || u.Nick != "puppet17_" {
		t.Fatalf("expected local state renamed too, got %+v", u)
	}
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
