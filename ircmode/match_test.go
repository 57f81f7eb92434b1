package ircmode

import "testing"

func TestMatchTextGlob(t *testing.T) {
	cases := []struct {
		glob, text string
		want       bool
	}{
		{"*", "anything", true},
		{"foo*", "foobar", true},
		{"foo*", "barfoo", false},
		{"*bar", "foobar", true},
		{"f?o", "foo", true},
		{"f?o", "fooo", false},
		{"*.example.com", "irc.example.com", true},
		{"*.example.com", "example.com", false},
	}
	for _, c := range cases {
		if got := MatchText(c.glob, c.text); got != c.want {
			t.Errorf("MatchText(%q, %q) = %v, want %v", c.glob, c.text, got, c.want)
		}
	}
}

func TestMatchHostPlainMask(t *testing.T) {
	u := MatchUser{Nick: "Dan", User: "~dan", Host: "irc.example.com"}
	if !MatchHost("*!*@*.example.com", u) {
		t.Fatalf("expected mask to match")
	}
	if MatchHost("*!*@*.other.com", u) {
		t.Fatalf("expected mask not to match")
	}
}

func TestMatchHostNegation(t *testing.T) {
	u := MatchUser{Nick: "Dan", User: "~dan", Host: "irc.example.com"}
	if !MatchHost("!*!*@*.other.com", u) {
		t.Fatalf("negated non-matching mask should match")
	}
	if MatchHost("!*!*@*.example.com", u) {
		t.Fatalf("negated matching mask should not match")
	}
}

func TestMatchHostCIDR(t *testing.T) {
	u := MatchUser{Nick: "Dan", User: "~dan", Host: "10.1.2.3"}
	if !MatchHost("*!*@10.0.0.0/8", u) {
		t.Fatalf("expected CIDR match")
	}
	if MatchHost("*!*@192.168.0.0/16", u) {
		t.Fatalf("expected CIDR mismatch")
	}
}
