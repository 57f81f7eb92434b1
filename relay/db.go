// Package relay implements the Relay engine (spec §4.7): a cross-
// network channel bridge that spawns puppet users on every linked
// network, forwards traffic with collision-safe nick tagging, and
// enforces CLAIM/LINKACL. Grounded on the hook-bus consumption pattern
// established by services.Bot (onMessage/onKick/onKill subscribing to
// the same hooks.Bus at priority 100) and on proto.Adapter's outbound
// surface for the actual spawn/join/mode/kick/kill calls; the DB
// snapshot format uses gopkg.in/yaml.v3, grounded on ptrcnull-soju's and
// vigoux-soju's go.mod (see SPEC_FULL.md's DOMAIN STACK table).
package relay

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// NetChan identifies one channel on one network, the key type for both
// sides of the home/leaf relationship (spec §4.7: "Home: (network-name,
// channel-name)").
type NetChan struct {
	Network string `yaml:"network"`
	Channel string `yaml:"channel"`
}

// LinkACLMode is the linkacl allow/deny posture (spec §6.3:
// "linkacl #chan list|allow net|deny net|whitelist #chan true|false").
type LinkACLMode int

const (
	LinkACLBlacklist LinkACLMode = iota
	LinkACLWhitelist
)

// ModeDelta is one (mode-char, arg) pair Relay applies only on leaves
// (spec §4.7's MODEDELTA, §GLOSSARY).
type ModeDelta struct {
	Mode byte   `yaml:"mode"`
	Arg  string `yaml:"arg,omitempty"`
}

// ChannelEntry is one RelayDB row: a home channel plus everything
// needed to keep its leaves coherent (spec §3's RelayDB entry).
type ChannelEntry struct {
	Home      NetChan    `yaml:"home"`
	Leaves    []NetChan  `yaml:"leaves,omitempty"`
	ClaimNets []string   `yaml:"claim_nets,omitempty"`
	LinkACL   struct {
		Mode    LinkACLMode `yaml:"mode"`
		Entries []string    `yaml:"entries,omitempty"`
	} `yaml:"linkacl"`
	ModeDelta []ModeDelta `yaml:"modedelta,omitempty"`
	ChanDesc  string      `yaml:"chandesc,omitempty"`
	CreatedTS int64       `yaml:"created_ts"`
}

// HasLeaf reports whether nc is already linked as a leaf of this entry.
func (e *ChannelEntry) HasLeaf(nc NetChan) bool {
	for _, l := range e.Leaves {
		if l == nc {
			return true
		}
	}
	return false
}

// RemoveLeaf deletes nc from Leaves, if present.
func (e *ChannelEntry) RemoveLeaf(nc NetChan) {
	for i, l := range e.Leaves {
		if l == nc {
			e.Leaves = append(e.Leaves[:i], e.Leaves[i+1:]...)
			return
		}
	}
}

// HasClaim reports whether network is in this entry's claim set, or
// whether the claim set is empty (unclaimed channels allow any network
// the unrestricted override spec §4.7 implies).
func (e *ChannelEntry) HasClaim(network string) bool {
	if len(e.ClaimNets) == 0 {
		return true
	}
	for _, n := range e.ClaimNets {
		if n == network {
			return true
		}
	}
	return false
}

// snapshot is the on-disk shape: a flat list, since YAML has no native
// map-keyed-by-struct support and NetChan as a map key would need a
// custom (un)marshaler with no benefit over a slice at this scale.
type snapshot struct {
	Channels []*ChannelEntry `yaml:"channels"`
}

// DB is the in-memory mirror of the Relay DB snapshot plus the spawn
// locks spec §4.7/§5 requires ("Relay MUST serialize per-(home-UID)
// spawns with a lock to avoid duplicate puppet creation"). Safe for
// concurrent use.
type DB struct {
	path string

	mu       sync.RWMutex
	channels map[NetChan]*ChannelEntry // keyed by Home

	spawnMu sync.Mutex
	spawns  map[NetChan]*sync.Mutex // keyed by (home_net, home_uid) encoded as NetChan{Network: home_net, Channel: home_uid}

	writeMu      sync.Mutex
	dirty        bool
	debounce     time.Duration
	debounceStop chan struct{}
}

// NewDB loads path, or starts empty if it doesn't exist (spec §6.4: "a
// missing file creates an empty DB"). A present-but-corrupt file is a
// hard error (spec §6.4: "a broken load bails with a clear error").
func NewDB(path string, debounce time.Duration) (*DB, error) {
	db := &DB{
		path:     path,
		channels: make(map[NetChan]*ChannelEntry),
		spawns:   make(map[NetChan]*sync.Mutex),
		debounce: debounce,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, errors.Wrapf(err, "relay: reading db %s", path)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, errors.Wrapf(err, "relay: parsing db %s", path)
	}
	for _, e := range snap.Channels {
		db.channels[e.Home] = e
	}
	return db, nil
}

// Lookup returns the ChannelEntry whose Home is nc, if any.
func (db *DB) Lookup(nc NetChan) (*ChannelEntry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	e, ok := db.channels[nc]
	return e, ok
}

// FindByLeaf returns the home entry that lists nc as a leaf, if any.
func (db *DB) FindByLeaf(nc NetChan) (*ChannelEntry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, e := range db.channels {
		if e.HasLeaf(nc) {
			return e, true
		}
	}
	return nil, false
}

// Entry returns the home or leaf entry covering nc, whichever applies,
// since most callers don't care which side they were handed.
func (db *DB) Entry(nc NetChan) (*ChannelEntry, bool) {
	if e, ok := db.Lookup(nc); ok {
		return e, true
	}
	return db.FindByLeaf(nc)
}

// Create marks nc as a new home channel (spec §4.7: "CREATE marks the
// calling net as home"). Fails if nc is already a home or a leaf
// anywhere, matching the DB uniqueness invariant spec §9's Open
// Questions paragraph holds firm on ("disallowed by the DB uniqueness
// invariant").
func (db *DB) Create(nc NetChan, ts int64) (*ChannelEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.channels[nc]; ok {
		return nil, errors.Errorf("relay: %s/%s is already a home channel", nc.Network, nc.Channel)
	}
	for _, e := range db.channels {
		if e.HasLeaf(nc) {
			return nil, errors.Errorf("relay: %s/%s is already linked as a leaf", nc.Network, nc.Channel)
		}
	}

	e := &ChannelEntry{Home: nc, CreatedTS: ts}
	db.channels[nc] = e
	db.markDirty()
	return e, nil
}

// Link adds leaf to home's leaf set (spec §4.7: "LINK net chan
// [localname] marks the local net as leaf").
func (db *DB) Link(home NetChan, leaf NetChan) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	e, ok := db.channels[home]
	if !ok {
		return errors.Errorf("relay: %s/%s is not a home channel", home.Network, home.Channel)
	}
	if e.HasLeaf(leaf) {
		return errors.Errorf("relay: %s/%s is already linked to %s/%s", leaf.Network, leaf.Channel, home.Network, home.Channel)
	}
	e.Leaves = append(e.Leaves, leaf)
	db.markDirty()
	return nil
}

// Delink removes leaf from its home entry (spec §4.7: "DELINK removes a
// single leaf").
func (db *DB) Delink(leaf NetChan) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, e := range db.channels {
		if e.HasLeaf(leaf) {
			e.RemoveLeaf(leaf)
			db.markDirty()
			return nil
		}
	}
	return errors.Errorf("relay: %s/%s is not linked to anything", leaf.Network, leaf.Channel)
}

// Destroy removes home's entry entirely (spec §4.7: "DESTROY on the
// home removes the entry completely").
func (db *DB) Destroy(home NetChan) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.channels[home]; !ok {
		return errors.Errorf("relay: %s/%s is not a home channel", home.Network, home.Channel)
	}
	delete(db.channels, home)
	db.markDirty()
	return nil
}

// Purge removes every entry homed on network and strips every leaf
// referencing it, for the decommissioning workflow (spec §6.3's
// `purge <network>`, SPEC_FULL.md §4.8).
func (db *DB) Purge(network string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for key, e := range db.channels {
		if key.Network == network {
			delete(db.channels, key)
			continue
		}
		for i := len(e.Leaves) - 1; i >= 0; i-- {
			if e.Leaves[i].Network == network {
				e.Leaves = append(e.Leaves[:i], e.Leaves[i+1:]...)
			}
		}
	}
	db.markDirty()
}

// Each calls fn for every home entry; fn must not mutate db.
func (db *DB) Each(fn func(*ChannelEntry)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, e := range db.channels {
		fn(e)
	}
}

// SpawnLock returns the mutex serializing puppet spawns for
// (homeNet, homeUID), creating it on first reference (spec §4.7/§5).
func (db *DB) SpawnLock(homeNet, homeUID string) *sync.Mutex {
	key := NetChan{Network: homeNet, Channel: homeUID}
	db.spawnMu.Lock()
	defer db.spawnMu.Unlock()
	m, ok := db.spawns[key]
	if !ok {
		m = &sync.Mutex{}
		db.spawns[key] = m
	}
	return m
}

func (db *DB) markDirty() {
	db.writeMu.Lock()
	db.dirty = true
	db.writeMu.Unlock()
}

// Save performs an immediate atomic write-rename snapshot (spec §6.4,
// and the `savedb` command in §6.3).
func (db *DB) Save() error {
	db.mu.RLock()
	snap := snapshot{Channels: make([]*ChannelEntry, 0, len(db.channels))}
	for _, e := range db.channels {
		snap.Channels = append(snap.Channels, e)
	}
	db.mu.RUnlock()

	data, err := yaml.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "relay: marshaling db snapshot")
	}

	dir := filepath.Dir(db.path)
	tmp, err := os.CreateTemp(dir, ".relaydb-*.tmp")
	if err != nil {
		return errors.Wrap(err, "relay: creating temp db file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "relay: writing temp db file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "relay: closing temp db file")
	}
	if err := os.Rename(tmpPath, db.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "relay: renaming temp db file into place")
	}

	db.writeMu.Lock()
	db.dirty = false
	db.writeMu.Unlock()
	return nil
}

// StartDebounceWriter runs until StopDebounceWriter is called, flushing to disk at
// most once per debounce interval whenever a write is pending (spec
// §4.7: "DB writes go through a debounce/schedule writer"). Save errors
// are swallowed here since there's no caller waiting on this goroutine;
// a dedicated logger hookup belongs to whatever constructs the engine.
func (db *DB) StartDebounceWriter() {
	db.debounceStop = make(chan struct{})
	if db.debounce <= 0 {
		db.debounce = 3 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(db.debounce)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				db.writeMu.Lock()
				dirty := db.dirty
				db.writeMu.Unlock()
				if dirty {
					_ = db.Save()
				}
			case <-db.debounceStop:
				return
			}
		}
	}()
}

// StopDebounceWriter halts the periodic writer started by
// StartDebounceWriter.
func (db *DB) StopDebounceWriter() {
	if db.debounceStop != nil {
		close(db.debounceStop)
	}
}
