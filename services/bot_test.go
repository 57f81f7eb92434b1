package services

import (
	"strings"
	"testing"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/proto"
	"github.com/pylink/pylink/state"
)

// fakeAdapter is a minimal proto.Adapter double recording outbound calls,
// mirroring network/driver_test.go's fakeAdapter but scoped to what the
// services package exercises (SpawnClient, Join, Part, Message, Notice).
type fakeAdapter struct {
	caps  proto.CapabilitySet
	st    *state.NetworkState
	nextU int

	joined  []string
	parted  []string
	notices []string
	msgs    []string
}

func newFakeAdapter(caps ...proto.Capability) *fakeAdapter {
	return &fakeAdapter{
		caps: proto.NewCapabilitySet(caps...),
		st:   state.New("testnet", "1AB", state.ISupport{Casemap: ircmode.CasemapRFC1459}, nil),
	}
}

func (a *fakeAdapter) Name() string                        { return "fake" }
func (a *fakeAdapter) Capabilities() proto.CapabilitySet    { return a.caps }
func (a *fakeAdapter) State() *state.NetworkState           { return a.st }

func (a *fakeAdapter) SpawnClient(nick, ident, host, realhost string, modes []ircmode.ModeChange,
	server, ip, realname string, ts int64, opertype string, manipulatable bool) (string, error) {
	a.nextU++
	return "1ABAAAAAA", nil
}
func (a *fakeAdapter) SpawnServer(name, sid, uplink, description string) (string, error) {
	return sid, nil
}

func (a *fakeAdapter) Join(uid, channel string) error {
	a.joined = append(a.joined, channel)
	return nil
}
func (a *fakeAdapter) SJoin(sid, channel string, entries []proto.SJoinEntry, ts int64, modes []ircmode.ModeChange) error {
	return nil
}
func (a *fakeAdapter) Part(uid, channel, reason string) error {
	a.parted = append(a.parted, channel)
	return nil
}
func (a *fakeAdapter) Quit(uid, reason string) error                 { return nil }
func (a *fakeAdapter) Kick(src, channel, target, reason string) error { return nil }
func (a *fakeAdapter) Kill(src, target, reason string) error          { return nil }

func (a *fakeAdapter) Mode(src, target string, modes []ircmode.ModeChange, ts int64) error {
	return nil
}
func (a *fakeAdapter) Nick(uid, newNick string) error { return nil }
func (a *fakeAdapter) UpdateClient(uid string, field proto.UpdateField, value string) error {
	return nil
}

func (a *fakeAdapter) Message(src, target, text string) error {
	a.msgs = append(a.msgs, text)
	return nil
}
func (a *fakeAdapter) Notice(src, target, text string) error {
	a.notices = append(a.notices, text)
	return nil
}
func (a *fakeAdapter) Numeric(srcSID, numeric, target, text string) error { return nil }

func (a *fakeAdapter) Topic(uid, channel, text string) error      { return nil }
func (a *fakeAdapter) TopicBurst(sid, channel, text string) error { return nil }
func (a *fakeAdapter) Invite(src, target, channel string) error   { return nil }
func (a *fakeAdapter) Knock(src, channel, text string) error      { return nil }

func (a *fakeAdapter) Squit(sid, targetSID, reason string) error { return nil }
func (a *fakeAdapter) Ping(src, target string) error             { return nil }
func (a *fakeAdapter) Pong(self, target string) error            { return nil }

func (a *fakeAdapter) CheckRecvPass(offered string) bool { return true }
func (a *fakeAdapter) CapNegotiate() error               { return nil }
func (a *fakeAdapter) SendBurst() error                  { return nil }

func (a *fakeAdapter) Send(evt *ircevent.Event) error { return nil }

func TestSpawnStoresUID(t *testing.T) {
	a := newFakeAdapter()
	b := New("pylink", "testnet", a, nil, Config{Nick: "PyLink"})
	if err := b.Spawn(); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if b.UID() == "" {
		t.Fatal("expected non-empty UID after Spawn")
	}
}

func TestAddPersistentChannelJoinsWhenVisible(t *testing.T) {
	a := newFakeAdapter() // no CapVisibleStateOnly: joins unconditionally
	b := New("pylink", "testnet", a, nil, Config{Nick: "PyLink"})
	_ = b.Spawn()

	b.AddPersistentChannel("antispam", "#test")
	if len(a.joined) != 1 || a.joined[0] != "#test" {
		t.Fatalf("expected join of #test, got %v", a.joined)
	}
}

func TestAddPersistentChannelWaitsForVisibility(t *testing.T) {
	a := newFakeAdapter(proto.CapVisibleStateOnly)
	b := New("pylink", "testnet", a, nil, Config{Nick: "PyLink"})
	_ = b.Spawn()

	b.AddPersistentChannel("antispam", "#unknown")
	if len(a.joined) != 0 {
		t.Fatalf("expected no join before channel materializes, got %v", a.joined)
	}

	a.st.Channels.Materialize("#unknown")
	b.onEndburst(nil)
	if len(a.joined) != 1 {
		t.Fatalf("expected join after materialize+endburst, got %v", a.joined)
	}
}

func TestRemovePersistentChannelPartsOnceUnpinned(t *testing.T) {
	a := newFakeAdapter()
	b := New("pylink", "testnet", a, nil, Config{Nick: "PyLink"})
	_ = b.Spawn()

	b.AddPersistentChannel("antispam", "#test")
	b.AddPersistentChannel("relay", "#test")
	b.RemovePersistentChannel("antispam", "#test")
	if len(a.parted) != 0 {
		t.Fatalf("expected no part while relay still pins #test, got %v", a.parted)
	}
	b.RemovePersistentChannel("relay", "#test")
	if len(a.parted) != 1 {
		t.Fatalf("expected part once unpinned, got %v", a.parted)
	}
}

func TestWordWrapSplitsOnWhitespace(t *testing.T) {
	long := strings.Repeat("word ", 200)
	lines := wordWrap(long, 40)
	for _, l := range lines {
		if len(l) > 40 {
			t.Fatalf("line exceeds max: %q (%d bytes)", l, len(l))
		}
	}
	if strings.Join(lines, " ") != strings.TrimSpace(long) {
		t.Fatal("wordWrap lost or reordered content")
	}
}

func TestDecodeCTCPRoundTrip(t *testing.T) {
	encoded := encodeCTCPRaw("VERSION", "")
	ctcp := decodeCTCP("1ABAAAAAA", "PRIVMSG", encoded)
	if ctcp == nil || ctcp.Command != "VERSION" {
		t.Fatalf("round-trip failed: %+v", ctcp)
	}
}

func TestCommandTableFeaturedExcludesAliases(t *testing.T) {
	tbl := newCommandTable()
	if err := tbl.Add("help", &Command{Featured: true, Aliases: []string{"h"}}); err != nil {
		t.Fatal(err)
	}
	featured := tbl.Featured()
	if len(featured) != 1 || featured[0] != "help" {
		t.Fatalf("expected [help], got %v", featured)
	}
}
