package relay

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateLinkDelinkDestroy(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "relay.yml"), 0)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}

	home := NetChan{Network: "home", Channel: "#chat"}
	if _, err := db.Create(home, 1000); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.Create(home, 1000); err == nil {
		t.Fatal("expected error creating an already-home channel")
	}

	leaf := NetChan{Network: "leaf", Channel: "#chat-leaf"}
	if err := db.Link(home, leaf); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if _, err := db.Create(leaf, 1000); err == nil {
		t.Fatal("expected error creating a channel already linked as a leaf")
	}

	entry, ok := db.Entry(leaf)
	if !ok || entry.Home != home {
		t.Fatalf("Entry via leaf lookup = %+v, %v", entry, ok)
	}

	if err := db.Delink(leaf); err != nil {
		t.Fatalf("Delink: %v", err)
	}
	if entry.HasLeaf(leaf) {
		t.Fatal("leaf still present after Delink")
	}

	if err := db.Destroy(home); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, ok := db.Lookup(home); ok {
		t.Fatal("home entry survived Destroy")
	}
}

func TestPurgeRemovesHomeAndStripsLeaves(t *testing.T) {
	db, _ := NewDB(filepath.Join(t.TempDir(), "relay.yml"), 0)

	home := NetChan{Network: "gone", Channel: "#a"}
	other := NetChan{Network: "stays", Channel: "#b"}
	_, _ = db.Create(home, 1)
	_, _ = db.Create(other, 1)
	_ = db.Link(other, NetChan{Network: "gone", Channel: "#b-leaf"})

	db.Purge("gone")

	if _, ok := db.Lookup(home); ok {
		t.Fatal("home entry homed on a purged network should be gone")
	}
	entry, ok := db.Lookup(other)
	if !ok {
		t.Fatal("unrelated home entry should survive Purge")
	}
	if len(entry.Leaves) != 0 {
		t.Fatalf("expected purged network's leaf stripped, got %v", entry.Leaves)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yml")
	db, err := NewDB(path, 0)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}

	home := NetChan{Network: "home", Channel: "#chat"}
	entry, _ := db.Create(home, 42)
	entry.ChanDesc = "the main channel"
	entry.ClaimNets = []string{"home", "ally"}
	_ = db.Link(home, NetChan{Network: "leaf", Channel: "#chat"})

	if err := db.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected db file on disk: %v", err)
	}

	reloaded, err := NewDB(path, 0)
	if err != nil {
		t.Fatalf("reload NewDB: %v", err)
	}
	got, ok := reloaded.Lookup(home)
	if !ok {
		t.Fatal("reloaded db missing home entry")
	}
	if got.ChanDesc != "the main channel" || len(got.Leaves) != 1 || got.Leaves[0].Channel != "#chat" {
		t.Fatalf("reloaded entry mismatch: %+v", got)
	}
}

func TestNewDBMissingFileIsEmpty(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "does-not-exist.yml"), 0)
	if err != nil {
		t.Fatalf("NewDB on missing file should not error: %v", err)
	}
	count := 0
	db.Each(func(*ChannelEntry) { count++ })
	if count != 0 {
		t.Fatalf("expected empty db, got %d entries", count)
	}
}

func TestSpawnLockIsPerHomeUID(t *testing.T) {
	db, _ := NewDB(filepath.Join(t.TempDir(), "relay.yml"), 0)
	a := db.SpawnLock("net", "UID1")
	b := db.SpawnLock("net", "UID1")
	c := db.SpawnLock("net", "UID2")
	if a != b {
		t.Fatal("expected the same lock for the same (network, uid)")
	}
	if a == c {
		t.Fatal("expected distinct locks for distinct UIDs")
	}
}
