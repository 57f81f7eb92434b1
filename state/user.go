// Package state implements the per-network data containers described in
// spec §3/§4.2: User, Server, Channel, and the UID/SID/name-indexed
// NetworkState that owns them. Grounded on girc's state.go (the User/
// Channel struct shapes, the cmap.ConcurrentMap-backed collections, the
// atomic.Value-guarded scalar fields) generalized from "one client's view
// of one network" to "one of N concurrently-linked networks, each with
// its own UID/SID namespace and casemap".
package state

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map"

	"github.com/pylink/pylink/ircmode"
)

// TriState models the TLS-secure attribute from spec §3 ("TLS-secure
// tri-state"): unlike girc, which only ever knows its own connection's
// TLS state, a federated daemon is often simply never told whether a
// remote user's connection was secure.
type TriState int

const (
	Unknown TriState = iota
	Secure
	Insecure
)

// User is the per-network view of an IRC user (spec §3's User entity).
// Grounded on girc's User struct (state.go) — Nick/Ident/Host/Mask carry
// over directly; FirstSeen/LastActive/Extras.Name/Extras.Account are
// renamed/reshaped into the fields spec §3 actually names (SignonTS,
// NickTS, Realname, Account) since this is tracking a remote user over
// S2S rather than girc's own client-eye view of users it sees join/part.
type User struct {
	UID         string
	Nick        string
	Ident       string
	Host        string
	RealHost    string
	CloakedHost string
	IP          string
	Realname    string

	SignonTS int64
	NickTS   int64

	Opered   bool
	OperType string
	Account  string
	Away     string
	Secure   TriState

	// Channels is the set of casefolded channel names this user currently
	// occupies, kept consistent with each Channel's member set by the
	// network core (spec §3 invariant: member_uids ⊇ every UID whose
	// channels contains this channel).
	Channels map[string]struct{}

	// Modes is the user-mode set (umodes have no CHANMODES-style list/arg
	// typing in most IRCds beyond snomask-style args, so this is a plain
	// char->arg map, reusing ircmode's ModeState.Modes shape without
	// pulling in list/prefix semantics that don't apply to umodes).
	Modes map[byte]string

	Network string
}

func newUser(uid string) *User {
	return &User{
		UID:      uid,
		Channels: make(map[string]struct{}),
		Modes:    make(map[byte]string),
	}
}

// Mask returns nick!ident@host, matching girc's User.Mask convenience
// field (computed there at construction time; computed on demand here
// since Nick/Ident/Host mutate independently and a cached field would
// drift).
func (u *User) Mask() string {
	return u.Nick + "!" + u.Ident + "@" + u.Host
}

// Copy returns a deep-enough copy for safe handoff outside the mapping's
// lock, mirroring girc's User.Copy (state.go).
func (u *User) Copy() *User {
	cp := *u
	cp.Channels = make(map[string]struct{}, len(u.Channels))
	for k := range u.Channels {
		cp.Channels[k] = struct{}{}
	}
	cp.Modes = make(map[byte]string, len(u.Modes))
	for k, v := range u.Modes {
		cp.Modes[k] = v
	}
	return &cp
}

// UserMapping indexes a network's users by UID and maintains a
// casefolded-nick secondary index, per spec §4.2 ("a UserMapping that
// keeps both a UID→User map and a casefolded-nick→set-of-UIDs secondary
// index kept consistent on nick mutation"). The UID table uses
// concurrent-map so reads from the hook bus and writes from the reader
// goroutine don't contend on a single mutex (girc's state.go uses the
// same library for its channels/users maps); the nick index is a plain
// map guarded by its own mutex because maintaining it correctly requires
// coordinating the old-nick removal and new-nick insertion as one step,
// which a sharded concurrent map cannot give us atomically.
type UserMapping struct {
	byUID   cmap.ConcurrentMap
	byNick  map[string]map[string]struct{}
	nickMu  sync.RWMutex
	casemap ircmode.Casemap
}

func NewUserMapping(cm ircmode.Casemap) *UserMapping {
	return &UserMapping{
		byUID:   cmap.New(),
		byNick:  make(map[string]map[string]struct{}),
		casemap: cm,
	}
}

// Add inserts a new user and indexes its nick. Callers (protocol
// adapters, on UID/introduction frames) own uniqueness checking against
// spec §3's "nick uniqueness unless freeform-nicks" invariant.
func (m *UserMapping) Add(u *User) {
	m.byUID.Set(u.UID, u)
	m.nickMu.Lock()
	defer m.nickMu.Unlock()
	m.indexNick(u.Nick, u.UID)
}

// Get returns the user for uid, or nil if absent.
func (m *UserMapping) Get(uid string) *User {
	v, ok := m.byUID.Get(uid)
	if !ok {
		return nil
	}
	return v.(*User)
}

// Remove deletes uid from both indices.
func (m *UserMapping) Remove(uid string) {
	u := m.Get(uid)
	if u == nil {
		return
	}
	m.byUID.Remove(uid)
	m.nickMu.Lock()
	defer m.nickMu.Unlock()
	m.deindexNick(u.Nick, uid)
}

// Rename moves uid from oldNick's index bucket to newNick's, and updates
// the stored User in place. Grounded on spec §4.2's "kept consistent on
// nick mutation" requirement and girc's renameUser (state.go).
func (m *UserMapping) Rename(uid, newNick string, newTS int64) {
	u := m.Get(uid)
	if u == nil {
		return
	}
	m.nickMu.Lock()
	defer m.nickMu.Unlock()
	m.deindexNick(u.Nick, uid)
	u.Nick = newNick
	u.NickTS = newTS
	m.indexNick(newNick, uid)
}

func (m *UserMapping) indexNick(nick, uid string) {
	key := ircmode.CaseFold(nick, m.casemap)
	set, ok := m.byNick[key]
	if !ok {
		set = make(map[string]struct{})
		m.byNick[key] = set
	}
	set[uid] = struct{}{}
}

func (m *UserMapping) deindexNick(nick, uid string) {
	key := ircmode.CaseFold(nick, m.casemap)
	set, ok := m.byNick[key]
	if !ok {
		return
	}
	delete(set, uid)
	if len(set) == 0 {
		delete(m.byNick, key)
	}
}

// LookupNick returns every UID currently using nick (more than one only
// under a freeform-nicks capability, spec §3).
func (m *UserMapping) LookupNick(nick string) []string {
	m.nickMu.RLock()
	defer m.nickMu.RUnlock()
	set := m.byNick[ircmode.CaseFold(nick, m.casemap)]
	out := make([]string, 0, len(set))
	for uid := range set {
		out = append(out, uid)
	}
	return out
}

// Len returns the number of tracked users.
func (m *UserMapping) Len() int { return m.byUID.Count() }

// Each calls fn for every tracked user. fn must not mutate the mapping.
func (m *UserMapping) Each(fn func(*User)) {
	for item := range m.byUID.IterBuffered() {
		fn(item.Val.(*User))
	}
}
