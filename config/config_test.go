package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pylink.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
servers:
  ircnet:
    protocol: ts6
    server: irc.example.net
`)
	root, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if root.PIDFile != "pylink.pid" {
		t.Fatalf("expected default pid file, got %q", root.PIDFile)
	}
	if root.Relay.DBPath != "pylink-relay.yml" {
		t.Fatalf("expected default relay db path, got %q", root.Relay.DBPath)
	}
}

func TestLoadRejectsMissingServerAddress(t *testing.T) {
	path := writeConfig(t, `
servers:
  ircnet:
    protocol: ts6
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a server block missing an address")
	}
}

func TestLoadRejectsMissingProtocol(t *testing.T) {
	path := writeConfig(t, `
servers:
  ircnet:
    server: irc.example.net
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a server block missing a protocol")
	}
}

func TestBotForNetworkAppliesOverrides(t *testing.T) {
	b := Bot{
		Default: BotIdentity{Nick: "PyLink", Ident: "pylink", CommandPrefix: "!"},
		PerNetwork: map[string]BotIdentity{
			"ircnet": {Nick: "PyLink-ircnet"},
		},
	}

	def := b.ForNetwork("othernet")
	if def.Nick != "PyLink" || def.Ident != "pylink" {
		t.Fatalf("expected defaults for an unconfigured network, got %+v", def)
	}

	over := b.ForNetwork("ircnet")
	if over.Nick != "PyLink-ircnet" {
		t.Fatalf("expected nick override applied, got %q", over.Nick)
	}
	if over.Ident != "pylink" {
		t.Fatalf("expected ident to fall back to default, got %q", over.Ident)
	}
}

func TestDiffClassifiesAddedRemovedChanged(t *testing.T) {
	cur := map[string]Server{
		"stays":   {Protocol: "ts6", Server: "a.example.net"},
		"removed": {Protocol: "ts6", Server: "b.example.net"},
		"changed": {Protocol: "ts6", Server: "c.example.net", Port: 6667},
	}
	next := map[string]Server{
		"stays":   {Protocol: "ts6", Server: "a.example.net"},
		"changed": {Protocol: "ts6", Server: "c.example.net", Port: 6697},
		"added":   {Protocol: "ts6", Server: "d.example.net"},
	}

	added, removed, changed := Diff(cur, next)
	if len(added) != 1 || added[0] != "added" {
		t.Fatalf("expected [added], got %v", added)
	}
	if len(removed) != 1 || removed[0] != "removed" {
		t.Fatalf("expected [removed], got %v", removed)
	}
	if len(changed) != 1 || changed[0] != "changed" {
		t.Fatalf("expected [changed], got %v", changed)
	}
}

func TestAutoconnectDurationConversion(t *testing.T) {
	s := Server{AutoconnectSeconds: 5, PingFreqSeconds: 90}
	if s.Autoconnect().Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", s.Autoconnect())
	}
	if s.PingFreq().Seconds() != 90 {
		t.Fatalf("expected 90s, got %s", s.PingFreq())
	}
}
