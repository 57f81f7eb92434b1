package state

import (
	"testing"

	"github.com/pylink/pylink/ircmode"
)

func testISupport() ISupport {
	return ISupport{
		Casemap: ircmode.CasemapRFC1459,
		ChanModes: ircmode.ModeSpec{
			ListArgs:   "b",
			AlwaysArgs: "k",
			SetArgs:    "l",
			NoArgs:     "n",
			Prefixes:   "qaohv",
		},
		Prefix: "(qaohv)~&@%+",
	}
}

func TestNickIndexInvariant(t *testing.T) {
	ns := New("TestNet", "0AL", testISupport(), nil)

	u := ns.NewUser("0ALAAAAAB", "Dan")

	uids := ns.Users.LookupNick("dan")
	if len(uids) != 1 || uids[0] != u.UID {
		t.Fatalf("expected nick index to contain %s, got %v", u.UID, uids)
	}

	ns.Users.Rename(u.UID, "Daniel", 12345)

	if got := ns.Users.LookupNick("dan"); len(got) != 0 {
		t.Fatalf("old nick still indexed: %v", got)
	}
	if got := ns.Users.LookupNick("daniel"); len(got) != 1 || got[0] != u.UID {
		t.Fatalf("new nick not indexed: %v", got)
	}
	if u.Nick != "Daniel" || u.NickTS != 12345 {
		t.Fatalf("user record not updated: %+v", u)
	}
}

func TestJoinChannelMaintainsMemberInvariant(t *testing.T) {
	ns := New("TestNet", "0AL", testISupport(), nil)
	u := ns.NewUser("0ALAAAAAB", "Dan")

	ch := ns.JoinChannel("#test", u.UID)

	if _, ok := ch.Members[u.UID]; !ok {
		t.Fatalf("user not added to channel member set")
	}
	if _, ok := u.Channels["#test"]; !ok {
		t.Fatalf("channel not added to user's channel set")
	}
}

func TestPartChannelRemovesEmptyNonPersistent(t *testing.T) {
	ns := New("TestNet", "0AL", testISupport(), nil)
	u := ns.NewUser("0ALAAAAAB", "Dan")
	ns.JoinChannel("#test", u.UID)

	ns.PartChannel("#test", u.UID, false)

	if _, err := ns.Channels.Lookup("#test"); err == nil {
		t.Fatalf("expected channel to be removed once empty")
	}
}

func TestPartChannelKeepsPersistent(t *testing.T) {
	ns := New("TestNet", "0AL", testISupport(), nil)
	u := ns.NewUser("0ALAAAAAB", "Dan")
	ns.JoinChannel("#test", u.UID)

	ns.PartChannel("#test", u.UID, true)

	if _, err := ns.Channels.Lookup("#test"); err != nil {
		t.Fatalf("expected persistent channel to survive, got error: %v", err)
	}
}

func TestChannelMappingMaterializeVsLookup(t *testing.T) {
	cm := NewChannelMapping(ircmode.CasemapRFC1459)

	if _, err := cm.Lookup("#new"); err == nil {
		t.Fatalf("expected NotFound before materialization")
	}

	ch := cm.Materialize("#new")
	if ch.Name != "#new" {
		t.Fatalf("materialized channel has wrong name: %+v", ch)
	}

	got, err := cm.Lookup("#new")
	if err != nil {
		t.Fatalf("unexpected error after materialization: %v", err)
	}
	if got != ch {
		t.Fatalf("Lookup returned a different instance than Materialize")
	}
}

func TestSquitCascadeRemovesChildrenAndUsers(t *testing.T) {
	ns := New("TestNet", "0AL", testISupport(), nil)

	root := newServer("0AL", "hub.example.com")
	child := newServer("0AM", "leaf.example.com")
	root.Children["0AM"] = struct{}{}
	ns.Servers.Add(root)
	ns.Servers.Add(child)

	u := ns.NewUser("0AMAAAAAB", "Dan")
	child.Users["0AMAAAAAB"] = struct{}{}
	ns.JoinChannel("#test", u.UID)

	removed := ns.SquitCascade("0AL")

	if len(removed) != 1 || removed[0] != "0AMAAAAAB" {
		t.Fatalf("expected cascaded user removal, got %v", removed)
	}
	if ns.Servers.Get("0AM") != nil || ns.Servers.Get("0AL") != nil {
		t.Fatalf("expected both servers removed from cascade")
	}
	if ns.Users.Get(u.UID) != nil {
		t.Fatalf("expected user removed")
	}
}

func TestChannelRankedFiltersByPrefix(t *testing.T) {
	ch := newChannel("#test")
	ch.Modes.Prefixes["uid-op"] = "o"
	ch.Modes.Prefixes["uid-voice"] = "v"

	if ops := ch.Ranked('o'); len(ops) != 1 || ops[0] != "uid-op" {
		t.Fatalf("unexpected ranked result: %v", ops)
	}
}
