package permissions

import (
	"testing"

	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

func newTestNet() *state.NetworkState {
	return state.New("testnet", "1AB", state.ISupport{Casemap: ircmode.CasemapRFC1459}, nil)
}

func TestCheckPlainHostmask(t *testing.T) {
	s := New()
	s.Grant("*!*@trusted.example.com", "relay.*")

	subj := Subject{
		Network: "testnet",
		User:    &state.User{UID: "1ABAAAAAA", Nick: "alice", Ident: "alice", Host: "trusted.example.com"},
	}
	if !s.Check(subj, "relay.create") {
		t.Fatal("expected matching hostmask to grant relay.create")
	}

	subj.User.Host = "untrusted.example.com"
	if s.Check(subj, "relay.create") {
		t.Fatal("expected non-matching hostmask to deny relay.create")
	}
}

func TestCheckAccountTarget(t *testing.T) {
	s := New()
	s.Grant("$account:alice*", "opercmds.*")

	subj := Subject{
		Network: "testnet",
		User:    &state.User{UID: "1ABAAAAAA", Account: "alice99"},
	}
	if !s.Check(subj, "opercmds.jupe") {
		t.Fatal("expected $account glob to match")
	}

	subj.User.Account = "bob"
	if s.Check(subj, "opercmds.jupe") {
		t.Fatal("expected $account glob not to match a different account")
	}
}

func TestCheckIRCOpTarget(t *testing.T) {
	s := New()
	s.Grant("$ircop:netadmin", "relay.*")

	subj := Subject{User: &state.User{Opered: true, OperType: "netadmin"}}
	if !s.Check(subj, "relay.create") {
		t.Fatal("expected matching opertype to grant")
	}

	subj.User.OperType = "helper"
	if s.Check(subj, "relay.create") {
		t.Fatal("expected non-matching opertype to deny")
	}
}

func TestCheckNegation(t *testing.T) {
	s := New()
	s.Grant("!$account:banned", "relay.*")

	granted := Subject{User: &state.User{Account: "someone"}}
	if !s.Check(granted, "relay.create") {
		t.Fatal("expected negated mismatch to grant")
	}

	denied := Subject{User: &state.User{Account: "banned"}}
	if s.Check(denied, "relay.create") {
		t.Fatal("expected negated match to deny")
	}
}

func TestCheckChannelTarget(t *testing.T) {
	net := newTestNet()
	ch := net.Channels.Materialize("#test")
	ch.Members["1ABAAAAAA"] = struct{}{}
	ch.Modes.Prefixes["1ABAAAAAA"] = "o"

	s := New()
	s.Grant("$channel:#test:o", "relay.*")

	subj := Subject{Network: "testnet", Net: net, User: &state.User{UID: "1ABAAAAAA"}}
	if !s.Check(subj, "relay.create") {
		t.Fatal("expected op in #test to match $channel:#test:o")
	}

	ch.Modes.Prefixes["1ABAAAAAA"] = "v"
	if s.Check(subj, "relay.create") {
		t.Fatal("expected voice not to satisfy an op-rank requirement")
	}
}

func TestCheckAndTarget(t *testing.T) {
	net := newTestNet()
	s := New()
	s.Grant("$and:($account:alice+$ircop)", "relay.*")

	subj := Subject{
		Network: "testnet",
		Net:     net,
		User:    &state.User{Account: "alice", Opered: true},
	}
	if !s.Check(subj, "relay.create") {
		t.Fatal("expected both sub-targets satisfied to grant")
	}

	subj.User.Opered = false
	if s.Check(subj, "relay.create") {
		t.Fatal("expected one unsatisfied sub-target to deny")
	}
}

func TestGrantRevoke(t *testing.T) {
	s := New()
	s.Grant("*", "relay.*")
	s.Revoke("*")
	subj := Subject{User: &state.User{}}
	if s.Check(subj, "relay.create") {
		t.Fatal("expected revoked mask to deny")
	}
}
