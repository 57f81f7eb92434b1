package relay

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pylink/pylink/proto"
	"github.com/pylink/pylink/state"
	"github.com/pylink/pylink/world"
)

// puppetKey identifies one spawned clone: the home (network, UID) that
// owns it and the network it's spawned on.
type puppetKey struct {
	HomeNetwork string
	HomeUID     string
	TargetNet   string
}

// Engine is the Relay plugin: it consumes hook events (wired by the
// caller through hooks.Bus, same as services.Bot) and issues outbound
// proto.Adapter calls across every network in World to keep relayed
// channels coherent (spec §4.7).
type Engine struct {
	DB    *DB
	World *world.Registry
	Log   *logrus.Entry

	// IPSharePool maps a pool name to its member networks; two networks
	// share real IPs on puppets only when both belong to the same named
	// pool (spec §4.7: "IP masked to 0.0.0.0 unless both networks are in
	// the same ip_share_pool").
	IPSharePool map[string]map[string]bool
	// KillSharePool is the same shape for kill_share_pool (spec §4.7's
	// kill-handling paragraph, case 2).
	KillSharePool map[string]map[string]bool

	mu sync.RWMutex
	// puppets maps puppetKey -> spawned UID on TargetNet.
	puppets map[puppetKey]string
	// reverse maps a spawned puppet UID on a given network back to the
	// home (network, UID) it mirrors, for inbound events (KILL, nick
	// collision) that only carry the puppet's own UID.
	reverse map[string]map[string]puppetKey // keyed by TargetNet, then puppet UID
}

func NewEngine(db *DB, reg *world.Registry, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		DB:            db,
		World:         reg,
		Log:           log,
		IPSharePool:   make(map[string]map[string]bool),
		KillSharePool: make(map[string]map[string]bool),
		puppets:       make(map[puppetKey]string),
		reverse:       make(map[string]map[string]puppetKey),
	}
}

func (en *Engine) sharesPool(pools map[string]map[string]bool, a, b string) bool {
	for _, members := range pools {
		if members[a] && members[b] {
			return true
		}
	}
	return false
}

// SpawnPuppet spawns (or returns the already-spawned) clone of homeUID
// from homeNetwork onto targetNet, serialized by the per-(homeNetwork,
// homeUID) lock spec §5 requires. u is the home user's current state,
// read by the caller under its own network's lock discipline before
// calling in.
func (en *Engine) SpawnPuppet(homeNetwork, targetNet string, u *state.User) (string, error) {
	lock := en.DB.SpawnLock(homeNetwork, u.UID)
	lock.Lock()
	defer lock.Unlock()

	key := puppetKey{HomeNetwork: homeNetwork, HomeUID: u.UID, TargetNet: targetNet}

	en.mu.RLock()
	if uid, ok := en.puppets[key]; ok {
		en.mu.RUnlock()
		return uid, nil
	}
	en.mu.RUnlock()

	target, ok := en.World.Network(targetNet)
	if !ok {
		return "", errNetworkNotFound(targetNet)
	}

	ip := "0.0.0.0"
	if en.sharesPool(en.IPSharePool, homeNetwork, targetNet) {
		ip = u.IP
	}

	nick := tagNick(u.Nick, homeNetwork, target.Adapter.Capabilities().Has(proto.CapFreeformNicks), target.State.ISupport.NickLen)

	uid, err := target.Adapter.SpawnClient(nick, maskedIdent(u), "pylink."+homeNetwork, u.RealHost,
		nil, "", ip, u.Realname, 0, operTypeFor(u), true)
	if err != nil {
		return "", err
	}

	en.mu.Lock()
	en.puppets[key] = uid
	if en.reverse[targetNet] == nil {
		en.reverse[targetNet] = make(map[string]puppetKey)
	}
	en.reverse[targetNet][uid] = key
	en.mu.Unlock()

	return uid, nil
}

// maskedIdent returns the ident a puppet presents; real idents pass
// through unchanged (only host/IP are masking concerns per spec §4.7).
func maskedIdent(u *state.User) string { return u.Ident }

// operTypeFor reports the oper type string attached to a puppet so the
// home user's opered status carries over with "hide-oper on the
// puppet" (spec §4.7) — the puppet is flagged as opered for permission
// purposes but adapters are expected to suppress the public oper
// indicator for manipulatable (Relay-owned) clients.
func operTypeFor(u *state.User) string {
	if u.Opered {
		return u.OperType
	}
	return ""
}

// DestroyPuppet removes homeUID's clone from targetNet, quitting it on
// the wire (spec §4.7: "A puppet is destroyed when the home user shares
// no more relayed channels with M").
func (en *Engine) DestroyPuppet(homeNetwork, targetNet, homeUID, reason string) error {
	key := puppetKey{HomeNetwork: homeNetwork, HomeUID: homeUID, TargetNet: targetNet}

	en.mu.Lock()
	uid, ok := en.puppets[key]
	if ok {
		delete(en.puppets, key)
		delete(en.reverse[targetNet], uid)
	}
	en.mu.Unlock()

	if !ok {
		return nil
	}
	target, ok := en.World.Network(targetNet)
	if !ok {
		return errNetworkNotFound(targetNet)
	}
	return target.Adapter.Quit(uid, reason)
}

// PuppetOf returns the UID spawned on targetNet for homeUID's relay
// identity, if one currently exists.
func (en *Engine) PuppetOf(homeNetwork, targetNet, homeUID string) (string, bool) {
	en.mu.RLock()
	defer en.mu.RUnlock()
	uid, ok := en.puppets[puppetKey{HomeNetwork: homeNetwork, HomeUID: homeUID, TargetNet: targetNet}]
	return uid, ok
}

// HomeOf resolves a puppet UID observed on network back to the home
// (network, UID) it mirrors.
func (en *Engine) HomeOf(network, puppetUID string) (homeNetwork, homeUID string, ok bool) {
	en.mu.RLock()
	defer en.mu.RUnlock()
	key, ok := en.reverse[network][puppetUID]
	if !ok {
		return "", "", false
	}
	return key.HomeNetwork, key.HomeUID, true
}

// SharedLeaves returns every (network, channel) this entry's home
// channel is linked to, for iterating "every leaf" operations.
func (e *ChannelEntry) SharedLeaves() []NetChan {
	return e.Leaves
}

type notFoundError struct{ network string }

func (e *notFoundError) Error() string { return "relay: network not registered: " + e.network }

func errNetworkNotFound(network string) error { return &notFoundError{network: network} }
