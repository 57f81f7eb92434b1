package ngircd

import (
	"testing"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/proto"
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
		Casemap:   ircmode.CasemapASCII,
		ChanModes: DefaultModeSpec,
		Prefix:    "(ov)@+",
	}
	net := state.New("TestNet", "testnet.example", isupport, nil)
	transport := &fakeTransport{}
	adapter := New("TestNet", net, transport, nil)
	return adapter, transport
}

func TestCapabilitiesOmitHasTS(t *testing.T) {
	adapter, _ := newTestAdapter()
	if adapter.Caps.Has(proto.CapHasTS) {
		t.Fatalf("ngircd adapter must not advertise has-ts")
	}
}

func TestJoinSourcedByNickNotUID(t *testing.T) {
	adapter, transport := newTestAdapter()
	uid, err := adapter.SpawnClient("Alice", "alice", "host1", "real1", nil, "", "1.2.3.4", "Alice", 1000, "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := adapter.Join(uid, "#test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var joinEvt *ircevent.Event
	for _, e := range transport.sent {
		if e.Command == "JOIN" {
			joinEvt = e
		}
	}
	if joinEvt == nil || joinEvt.Source.Name != "Alice" {
		t.Fatalf("expected JOIN sourced by nick, got %+v", joinEvt)
	}
}

func TestDispatchJoinResolvesNickToUID(t *testing.T) {
	adapter, _ := newTestAdapter()
	uid, _ := adapter.SpawnClient("Alice", "alice", "host1", "real1", nil, "", "1.2.3.4", "Alice", 1000, "", true)

	var seen *ircevent.HookEvent
	adapter.EmitHook = func(e *ircevent.HookEvent) { seen = e }

	adapter.Dispatch(&ircevent.Event{
		Source:  ircevent.ParseSource("Alice"),
		Command: "JOIN",
		Params:  []string{"#test"},
	})

	ch, err := adapter.Net.Channels.Lookup("#test")
	if err != nil {
		t.Fatalf("expected #test to exist: %v", err)
	}
	if _, ok := ch.Members[uid]; !ok {
		t.Fatalf("expected %q to be a member", uid)
	}
	if seen == nil || seen.Command != ircevent.HookJoin {
		t.Fatalf("expected a JOIN hook, got %+v", seen)
	}
}

func TestKnockNotSupported(t *testing.T) {
	adapter, _ := newTestAdapter()
	if err := adapter.Knock("uid", "#test", "let me in"); err == nil {
		t.Fatalf("expected NotSupported error for Knock on ngircd")
	}
}

func TestDispatchPingRepliesPong(t *testing.T) {
	adapter, transport := newTestAdapter()

	adapter.Dispatch(&ircevent.Event{Command: "PING", Params: []string{"theiruplink"}})

	if len(transport.sent) != 1 || transport.sent[0].Command != "PONG" {
		t.Fatalf("expected a PONG to be sent, got %+v", transport.sent)
	}
}
