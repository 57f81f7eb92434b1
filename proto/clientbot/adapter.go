// Package clientbot implements "Clientbot" (spec §6.1, GLOSSARY): a
// network adapter that joins a network as an ordinary RFC1459 client
// (NICK/USER registration, no SID/virtual-server machinery) rather
// than linking as a peer server. It is the one adapter with
// `visible-state-only` set — Relay can only see channels the bot
// itself has joined — and the one where spawn_client/spawn_server/kill
// are all NotSupported, since a plain client connection can't
// introduce other users or servers or force-disconnect anyone.
package clientbot

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/perr"
	"github.com/pylink/pylink/proto"
	"github.com/pylink/pylink/state"
)

type Transport interface {
	Send(evt *ircevent.Event) error
}

// DefaultModeSpec covers the CHANMODES a generic RFC1459/IRCv3 network
// is likely to advertise. Mode parsing always uses it: ISUPPORT (005)
// replies are not read, so a network's advertised CHANMODES do not
// replace it.
var DefaultModeSpec = ircmode.ModeSpec{
	ListArgs:   "b",
	AlwaysArgs: "k",
	SetArgs:    "l",
	NoArgs:     "ntmis",
	Prefixes:   "ohv",
}

type Adapter struct {
	NetworkName string
	Net         *state.NetworkState
	Caps        proto.CapabilitySet
	Transport   Transport
	EmitHook    func(*ircevent.HookEvent)
	LogUnknown  func(command string, evt *ircevent.Event)

	// ownUID is this connection's own nick, tracked as the bot's
	// identity since Clientbot has no UID namespace of its own —
	// NetworkState still indexes it by a synthetic UID for uniformity
	// with the S2S adapters' state shape.
	ownUID string
}

func New(name string, net *state.NetworkState, transport Transport, emit func(*ircevent.HookEvent)) *Adapter {
	return &Adapter{
		NetworkName: name,
		Net:         net,
		Caps: proto.NewCapabilitySet(
			proto.CapFreeformNicks,
			proto.CapVisibleStateOnly,
		),
		Transport: transport,
		EmitHook:  emit,
	}
}

func (a *Adapter) Name() string                     { return a.NetworkName }
func (a *Adapter) Capabilities() proto.CapabilitySet { return a.Caps }
func (a *Adapter) State() *state.NetworkState        { return a.Net }

func (a *Adapter) Send(evt *ircevent.Event) error {
	if a.Transport == nil {
		return errors.New("clientbot: no transport attached")
	}
	return a.Transport.Send(evt)
}

func (a *Adapter) emit(cmd, source string, args map[string]interface{}) {
	if a.EmitHook == nil {
		return
	}
	a.EmitHook(&ircevent.HookEvent{Network: a.NetworkName, Source: source, Command: cmd, Args: args})
}

func (a *Adapter) CheckRecvPass(offered string) bool { return true }

// CapNegotiate sends the IRCv3 CAP LS handshake rather than an S2S
// CAPAB frame — this is the C2S registration path spec §5's
// state-machine note calls out ("NICK/USER for Clientbot").
func (a *Adapter) CapNegotiate() error {
	return a.Send(&ircevent.Event{Command: "CAP", Params: []string{"LS", "302"}})
}

// SendBurst registers the connection (NICK/USER) instead of bursting a
// SID and virtual users, since Clientbot has neither.
func (a *Adapter) SendBurst(nick, ident, realname string) error {
	if err := a.Send(&ircevent.Event{Command: "NICK", Params: []string{nick}}); err != nil {
		return errors.Wrap(err, "clientbot: register nick")
	}
	a.ownUID = a.Net.NewUser(a.Net.SID+"-self", nick).UID
	return errors.Wrap(
		a.Send(&ircevent.Event{Command: "USER", Params: []string{ident, "0", "*"}, Trailing: realname}),
		"clientbot: register user",
	)
}

func (a *Adapter) SpawnClient(nick, ident, host, realhost string, modes []ircmode.ModeChange, server, ip, realname string, ts int64, opertype string, manipulatable bool) (string, error) {
	return "", &perr.NotSupported{Operation: "spawn_client", Adapter: "clientbot"}
}

func (a *Adapter) SpawnServer(name, sid, uplink, description string) (string, error) {
	return "", &perr.NotSupported{Operation: "spawn_server", Adapter: "clientbot"}
}

func (a *Adapter) Join(uid, channel string) error {
	a.Net.JoinChannel(channel, a.ownUID)
	return a.Send(&ircevent.Event{Command: "JOIN", Params: []string{channel}})
}

// SJoin has no meaning for a single plain client; the only "join" this
// adapter can perform is its own.
func (a *Adapter) SJoin(sid, channel string, entries []proto.SJoinEntry, ts int64, modes []ircmode.ModeChange) error {
	return a.Join(a.ownUID, channel)
}

func (a *Adapter) Part(uid, channel, reason string) error {
	a.Net.PartChannel(channel, a.ownUID, false)
	return a.Send(&ircevent.Event{Command: "PART", Params: []string{channel}, Trailing: reason})
}

func (a *Adapter) Quit(uid, reason string) error {
	return a.Send(&ircevent.Event{Command: "QUIT", Trailing: reason})
}

func (a *Adapter) Kick(src, channel, target, reason string) error {
	return a.Send(&ircevent.Event{Command: "KICK", Params: []string{channel, a.nickOf(target)}, Trailing: reason})
}

func (a *Adapter) nickOf(uid string) string {
	if u := a.Net.Users.Get(uid); u != nil {
		return u.Nick
	}
	return uid
}

// Kill has no C2S equivalent; per spec §7 ("NotSupported... Relay
// catches and degrades, e.g. kill→kick") callers fall back to Kick.
func (a *Adapter) Kill(src, target, reason string) error {
	return &perr.NotSupported{Operation: "kill", Adapter: "clientbot"}
}

// Mode is only ever sourced as the bot's own nick — Clientbot can't
// forge a MODE from another source the way an S2S link can.
func (a *Adapter) Mode(src, target string, modes []ircmode.ModeChange, ts int64) error {
	for _, line := range ircmode.JoinModes(modes, true, 0) {
		if err := a.Send(&ircevent.Event{Command: "MODE", Params: []string{target, line}}); err != nil {
			return errors.Wrap(err, "clientbot: mode")
		}
	}
	return nil
}

func (a *Adapter) Nick(uid, newNick string) error {
	a.Net.Users.Rename(a.ownUID, newNick, 0)
	return a.Send(&ircevent.Event{Command: "NICK", Params: []string{newNick}})
}

func (a *Adapter) UpdateClient(uid string, field proto.UpdateField, value string) error {
	return &perr.NotSupported{Operation: "update_client", Adapter: "clientbot"}
}

// Message sends as the bot's own connection. When src is a puppet
// other than the bot itself — Relay forwarding a remote user's message
// onto this Clientbot leaf, which has no way to speak as anyone else —
// the text is prefixed with the source's nick by styleMessage.
func (a *Adapter) Message(src, target, text string) error {
	if src != "" && src != a.ownUID {
		text = styleMessage(a.nickOf(src), text)
	}
	return a.Send(&ircevent.Event{Command: "PRIVMSG", Params: []string{target}, Trailing: text})
}

func (a *Adapter) Notice(src, target, text string) error {
	if src != "" && src != a.ownUID {
		text = styleMessage(a.nickOf(src), text)
	}
	return a.Send(&ircevent.Event{Command: "NOTICE", Params: []string{target}, Trailing: text})
}

func (a *Adapter) Numeric(srcSID, numeric, target, text string) error {
	return &perr.NotSupported{Operation: "numeric", Adapter: "clientbot"}
}

func (a *Adapter) Topic(uid, channel, text string) error {
	return a.Send(&ircevent.Event{Command: "TOPIC", Params: []string{channel}, Trailing: text})
}

func (a *Adapter) TopicBurst(sid, channel, text string) error {
	return &perr.NotSupported{Operation: "topic_burst", Adapter: "clientbot"}
}

func (a *Adapter) Invite(src, target, channel string) error {
	return a.Send(&ircevent.Event{Command: "INVITE", Params: []string{a.nickOf(target), channel}})
}

func (a *Adapter) Knock(src, channel, text string) error {
	return &perr.NotSupported{Operation: "knock", Adapter: "clientbot"}
}

func (a *Adapter) Squit(sid, targetSID, reason string) error {
	return &perr.NotSupported{Operation: "squit", Adapter: "clientbot"}
}

func (a *Adapter) Ping(src, target string) error {
	return a.Send(&ircevent.Event{Command: "PING", Trailing: target})
}

func (a *Adapter) Pong(self, target string) error {
	return a.Send(&ircevent.Event{Command: "PONG", Trailing: target})
}

// styleMessage prefixes text with "<puppetNick> " when forwarding a
// puppet's message onto a plain client connection that has no way to
// show a distinct source nick inline. The format is fixed: it is the
// same on every network and is not configurable.
func styleMessage(puppetNick, text string) string {
	return strings.TrimSpace("<" + puppetNick + "> " + text)
}
