package state

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pylink/pylink/ircmode"
)

// ISupport holds the subset of RPL_ISUPPORT tokens the network core
// needs to parse/emit protocol traffic correctly (spec §3's
// NetworkState entity: "ISUPPORT tokens (casemapping, CHANMODES type
// A/B/C/D, PREFIX, STATUSMSG, nick-len, chan-len)").
type ISupport struct {
	Casemap   ircmode.Casemap
	ChanModes ircmode.ModeSpec
	Prefix    string
	StatusMsg string
	NickLen   int
	ChanLen   int
}

// ThrottleConfig bounds outbound command rate, read by the network
// driver's writer loop (spec §5).
type ThrottleConfig struct {
	LinesPerSecond float64
	Burst          int
}

// ModeNames maps mode characters to their human-readable name, per
// network, for the three mode grammars spec §3 lists: "cmode/umode/
// prefix-mode name tables".
type ModeNames struct {
	Chan   map[byte]string
	User   map[byte]string
	Prefix map[byte]string
}

func newModeNames() ModeNames {
	return ModeNames{
		Chan:   make(map[byte]string),
		User:   make(map[byte]string),
		Prefix: make(map[byte]string),
	}
}

// NetworkState is the authoritative per-network state container: one per
// linked network, created when the network driver starts connecting and
// torn down (or reset) on disconnect per spec §5's lifecycle state
// machine. Grounded on girc's state struct (state.go), generalized from
// "this client's own nick/ident/host plus one server's worth of
// channels/users" to "an entire SID-rooted server tree with its own
// casemap and ISUPPORT table", since a single PyLink process tracks many
// of these concurrently (one per linked network) rather than exactly
// one.
type NetworkState struct {
	mu sync.RWMutex

	Name      string
	SID       string
	UplinkSID string

	Users    *UserMapping
	Servers  *ServerMapping
	Channels *ChannelMapping

	ISupport  ISupport
	ModeNames ModeNames
	Throttle  ThrottleConfig

	// HostmaskCache memoizes nick!user@host -> bool match results for
	// hot permission checks (spec §3: "hostmask-cache").
	HostmaskCache map[string]bool

	Disconnected bool

	Log *logrus.Entry
}

func New(name, sid string, isupport ISupport, log *logrus.Entry) *NetworkState {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &NetworkState{
		Name:          name,
		SID:           sid,
		Users:         NewUserMapping(isupport.Casemap),
		Servers:       NewServerMapping(),
		Channels:      NewChannelMapping(isupport.Casemap),
		ISupport:      isupport,
		ModeNames:     newModeNames(),
		HostmaskCache: make(map[string]bool),
		Disconnected:  true,
		Log:           log.WithField("network", name),
	}
}

// Lock/Unlock/RLock/RUnlock expose the coarse lock adapters take while
// applying a burst of related mutations (e.g. SJOIN's member list plus
// per-member mode application) atomically, mirroring girc's pattern of
// locking state.mu for the duration of a handler (handleMODE in
// modes.go: "c.state.mu.Lock(); ...; c.state.mu.Unlock()").
func (n *NetworkState) Lock()    { n.mu.Lock() }
func (n *NetworkState) Unlock()  { n.mu.Unlock() }
func (n *NetworkState) RLock()   { n.mu.RLock() }
func (n *NetworkState) RUnlock() { n.mu.RUnlock() }

// NewUser materializes and indexes a User, called by protocol adapters
// on UID/introduction frames.
func (n *NetworkState) NewUser(uid, nick string) *User {
	u := newUser(uid)
	u.Nick = nick
	u.Network = n.Name
	n.Users.Add(u)
	return u
}

// QuitUser removes a user from every channel it occupied and from the
// UserMapping, returning the list of channels it left (so the caller can
// check each for emptiness, spec §3's channel-destruction lifecycle).
func (n *NetworkState) QuitUser(uid string) []string {
	u := n.Users.Get(uid)
	if u == nil {
		return nil
	}

	var left []string
	for chanName := range u.Channels {
		left = append(left, chanName)
		if ch, err := n.Channels.Lookup(chanName); err == nil {
			delete(ch.Members, uid)
			delete(ch.Modes.Prefixes, uid)
		}
	}

	n.Users.Remove(uid)
	return left
}

// JoinChannel materializes name and adds uid to its member set,
// updating both sides of the membership invariant in spec §3
// ("channel.member_uids ⊇ every UID whose channels contains this
// channel").
func (n *NetworkState) JoinChannel(name, uid string) *Channel {
	ch := n.Channels.Materialize(name)
	ch.Members[uid] = struct{}{}

	if u := n.Users.Get(uid); u != nil {
		u.Channels[ircmode.CaseFold(name, n.ISupport.Casemap)] = struct{}{}
	}

	return ch
}

// PartChannel removes uid from name's member set and, if that empties
// the channel and it isn't pinned persistent, removes the channel
// entirely (spec §3 Lifecycles: "destroyed when their member set
// empties (unless pinned as persistent by a service)").
func (n *NetworkState) PartChannel(name, uid string, persistent bool) {
	ch, err := n.Channels.Lookup(name)
	if err != nil {
		return
	}
	delete(ch.Members, uid)
	delete(ch.Modes.Prefixes, uid)

	if u := n.Users.Get(uid); u != nil {
		delete(u.Channels, ircmode.CaseFold(name, n.ISupport.Casemap))
	}

	if len(ch.Members) == 0 && !persistent {
		n.Channels.Remove(name)
	}
}

// SquitCascade removes sid and every SID transitively under it, emitting
// synthesized-quit UIDs for every user that was on one of those servers,
// per spec §3's Lifecycles paragraph ("SQUIT ... cascades: all child
// SIDs removed, all their users emitted as synthesized QUIT events").
func (n *NetworkState) SquitCascade(sid string) (removedUIDs []string) {
	for _, cascaded := range n.Servers.Cascade(sid) {
		s := n.Servers.Get(cascaded)
		if s == nil {
			continue
		}
		for uid := range s.Users {
			n.QuitUser(uid)
			removedUIDs = append(removedUIDs, uid)
		}
		n.Servers.Remove(cascaded)
	}
	return removedUIDs
}
