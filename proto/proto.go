// Package proto defines the protocol-adapter contract every IRCd family
// implements (spec §4.3, §9): a flattened interface plus a capability
// set, replacing the source implementation's multiple-inheritance chain
// across Irc/Protocol/IRCCommonProtocol/IRCS2SProtocol. Shared behavior
// (numeric-reply formatting, channel-TS reconciliation) is
// composed in, not inherited, via S2SFramer and TSStateMachine, per
// design note §9 ("share implementations via composition").
package proto

import (
	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

// Capability names a per-IRCd behavioral flag an adapter declares and
// plugins query, per spec §4.3's capability table.
type Capability string

const (
	CapHasTS                  Capability = "has-ts"
	CapCanManageBotChannels   Capability = "can-manage-bot-channels"
	CapHasIRCModes            Capability = "has-irc-modes"
	CapFreeformNicks          Capability = "freeform-nicks"
	CapVirtualServer          Capability = "virtual-server"
	CapVisibleStateOnly       Capability = "visible-state-only"
	CapModeBounceNeedsServer  Capability = "mode-bounce-needs-server"
)

// CapabilitySet is a declarative set of Capability flags, queried via
// Has rather than direct map indexing so adapters can build it with a
// plain composite literal.
type CapabilitySet map[Capability]bool

func (c CapabilitySet) Has(cap Capability) bool { return c[cap] }

// NewCapabilitySet builds a CapabilitySet from a variadic list, the
// construction style each adapter's New() uses.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

// ConnState is the per-connection lifecycle state machine from spec §4.3
// and §5: Disconnected → Connecting → Registering → Bursting → Ready →
// Closing.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Registering
	Bursting
	Ready
	Closing
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Registering:
		return "registering"
	case Bursting:
		return "bursting"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// UpdateField names the update_client() target field from spec §4.3.
type UpdateField int

const (
	FieldIdent UpdateField = iota
	FieldHost
	FieldRealHost
	FieldGecos
	FieldAway
	FieldServicesAccount
)

// SJoinEntry is one (prefixmodes, uid) pair of an SJOIN/FJOIN burst line.
type SJoinEntry struct {
	Prefixes string
	UID      string
}

// Adapter is the flattened per-IRCd-family contract spec §4.3 and §9
// describe: inbound parsing is handled by each adapter's own line
// dispatcher (not part of this interface, since its shape — SID-prefixed,
// numeric-prefixed, CAPAB-negotiated — differs enough per family that a
// single inbound method signature would just be a re-boxed []byte); the
// interface below is the outbound operation surface plugins call against
// any adapter uniformly.
type Adapter interface {
	Name() string
	Capabilities() CapabilitySet
	State() *state.NetworkState

	SpawnClient(nick, ident, host, realhost string, modes []ircmode.ModeChange, server, ip, realname string, ts int64, opertype string, manipulatable bool) (uid string, err error)
	SpawnServer(name, sid, uplink, description string) (string, error)

	Join(uid, channel string) error
	SJoin(sid, channel string, entries []SJoinEntry, ts int64, modes []ircmode.ModeChange) error
	Part(uid, channel, reason string) error
	Quit(uid, reason string) error
	Kick(src, channel, target, reason string) error
	Kill(src, target, reason string) error

	Mode(src, target string, modes []ircmode.ModeChange, ts int64) error
	Nick(uid, newNick string) error
	UpdateClient(uid string, field UpdateField, value string) error

	Message(src, target, text string) error
	Notice(src, target, text string) error
	Numeric(srcSID, numeric, target, text string) error

	Topic(uid, channel, text string) error
	TopicBurst(sid, channel, text string) error
	Invite(src, target, channel string) error
	Knock(src, channel, text string) error

	Squit(sid, targetSID, reason string) error
	Ping(src, target string) error
	Pong(self, target string) error

	CheckRecvPass(offered string) bool
	CapNegotiate() error
	SendBurst() error

	Send(evt *ircevent.Event) error
}
