// Package ngircd implements the ngIRCd S2S dialect (spec §6.1): plain
// RFC1459-style `:src CMD args` framing with no channel-creation
// timestamp on the wire at all. Structurally a sibling of the other
// proto/* adapters, but ngIRCd's lack of TS means its TSStateMachine is
// never consulted for channel reconciliation — mode conflicts are
// resolved by simple union rather than TS comparison, per spec §4.3's
// note that not every IRCd carries TS semantics.
package ngircd

import (
	"strconv"

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

// DefaultModeSpec is ngIRCd's default CHANMODES/PREFIX grammar.
var DefaultModeSpec = ircmode.ModeSpec{
	ListArgs:   "b",
	AlwaysArgs: "k",
	SetArgs:    "l",
	NoArgs:     "ntmiPz",
	Prefixes:   "ov",
}

type Adapter struct {
	NetworkName string
	Net         *state.NetworkState
	Caps        proto.CapabilitySet
	Framer      *proto.S2SFramer
	Transport   Transport
	EmitHook    func(*ircevent.HookEvent)

	uidCounter int
}

// New omits CapHasTS: ngIRCd's SERVER/channel burst carries no
// creation timestamp, so callers must not rely on TS reconciliation
// for this adapter (spec §4.3).
func New(name string, net *state.NetworkState, transport Transport, emit func(*ircevent.HookEvent)) *Adapter {
	return &Adapter{
		NetworkName: name,
		Net:         net,
		Caps: proto.NewCapabilitySet(
			proto.CapHasIRCModes,
			proto.CapVirtualServer,
		),
		Framer:    &proto.S2SFramer{OwnSID: net.SID, OwnName: net.Name},
		Transport: transport,
		EmitHook:  emit,
	}
}

func (a *Adapter) Name() string                     { return a.NetworkName }
func (a *Adapter) Capabilities() proto.CapabilitySet { return a.Caps }
func (a *Adapter) State() *state.NetworkState        { return a.Net }

func (a *Adapter) Send(evt *ircevent.Event) error {
	if a.Transport == nil {
		return errors.New("ngircd: no transport attached")
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

func (a *Adapter) CapNegotiate() error {
	return a.Send(&ircevent.Event{Command: "PASS", Params: []string{"", "NGIRCD", "PyLink|P"}})
}

func (a *Adapter) SendBurst() error {
	return a.Send(&ircevent.Event{Command: "SERVER", Params: []string{a.Net.Name, "1"}, Trailing: "PyLink Service"})
}

// ngIRCd has no native UID namespace; nicks double as identifiers.
// nextUID mints a synthetic PyLink-internal UID purely for this
// process's own bookkeeping (NetworkState's maps key everything by
// UID), never sent on the wire — outbound frames always use the
// user's actual nick as their source.
func (a *Adapter) nextUID(nick string) string {
	a.uidCounter++
	return a.Net.SID + "-" + strconv.Itoa(a.uidCounter) + "-" + nick
}

func (a *Adapter) SpawnClient(nick, ident, host, realhost string, modes []ircmode.ModeChange, server, ip, realname string, ts int64, opertype string, manipulatable bool) (string, error) {
	uid := a.nextUID(nick)
	u := a.Net.NewUser(uid, nick)
	u.Ident, u.Host, u.RealHost, u.IP, u.Realname, u.SignonTS, u.OperType = ident, host, realhost, ip, realname, ts, opertype

	err := a.Send(&ircevent.Event{
		Source:   ircevent.ParseSource(a.Net.SID),
		Command:  "NICK",
		Params:   []string{nick, "1", ident, host, "1", "+", a.Net.Name},
		Trailing: realname,
	})
	return uid, errors.Wrap(err, "ngircd: spawn_client")
}

func (a *Adapter) SpawnServer(name, sid, uplink, description string) (string, error) {
	if !a.Caps.Has(proto.CapVirtualServer) {
		return "", &perr.NotSupported{Operation: "spawn_server", Adapter: "ngircd"}
	}
	if sid == "" {
		sid = name
	}
	a.Net.Servers.Add(&state.Server{SID: sid, Name: name, Description: description, Uplink: uplink, Children: map[string]struct{}{}, Users: map[string]struct{}{}})
	err := a.Send(&ircevent.Event{Source: ircevent.ParseSource(uplink), Command: "SERVER", Params: []string{name, "2"}, Trailing: description})
	return sid, errors.Wrap(err, "ngircd: spawn_server")
}

func (a *Adapter) Join(uid, channel string) error {
	a.Net.JoinChannel(channel, uid)
	return a.Send(&ircevent.Event{Source: a.source(uid), Command: "JOIN", Params: []string{channel}})
}

// SJoin has no native ngIRCd equivalent (there is no burst-join
// command at all — ngIRCd bursts individual JOINs), so this synthesizes
// one JOIN per entry instead of a single batched line. Still chunked at
// proto.MaxSJoinUsers for symmetry with the other adapters, though the
// chunk boundary has no wire significance here.
func (a *Adapter) SJoin(sid, channel string, entries []proto.SJoinEntry, ts int64, modes []ircmode.ModeChange) error {
	ch := a.Net.Channels.Materialize(channel)
	ircmode.ApplyModes(ch.Modes, DefaultModeSpec, modes)

	for _, e := range entries {
		a.Net.JoinChannel(channel, e.UID)
		if e.Prefixes != "" {
			ch.Modes.Prefixes[e.UID] = e.Prefixes
		}
		if err := a.Send(&ircevent.Event{Source: a.source(e.UID), Command: "JOIN", Params: []string{channel}}); err != nil {
			return errors.Wrap(err, "ngircd: sjoin")
		}
	}
	return nil
}

// source resolves a UID back to the nick ngIRCd's wire format expects
// as the frame's prefix.
func (a *Adapter) source(uid string) *ircevent.Source {
	if u := a.Net.Users.Get(uid); u != nil {
		return ircevent.ParseSource(u.Nick)
	}
	return ircevent.ParseSource(uid)
}

func (a *Adapter) Part(uid, channel, reason string) error {
	a.Net.PartChannel(channel, uid, false)
	return a.Send(&ircevent.Event{Source: a.source(uid), Command: "PART", Params: []string{channel}, Trailing: reason})
}

func (a *Adapter) Quit(uid, reason string) error {
	src := a.source(uid)
	a.Net.QuitUser(uid)
	return a.Send(&ircevent.Event{Source: src, Command: "QUIT", Trailing: reason})
}

func (a *Adapter) Kick(src, channel, target, reason string) error {
	a.Net.PartChannel(channel, target, false)
	return a.Send(&ircevent.Event{Source: a.source(src), Command: "KICK", Params: []string{channel, a.nickOf(target)}, Trailing: reason})
}

func (a *Adapter) nickOf(uid string) string {
	if u := a.Net.Users.Get(uid); u != nil {
		return u.Nick
	}
	return uid
}

func (a *Adapter) Kill(src, target, reason string) error {
	targetNick := a.nickOf(target)
	a.Net.QuitUser(target)
	return a.Send(&ircevent.Event{Source: a.source(src), Command: "KILL", Params: []string{targetNick}, Trailing: reason})
}

// Mode has no server-side bounce on ngIRCd (it doesn't advertise
// mode-bounce-needs-server), so this always sources from the caller
// directly.
func (a *Adapter) Mode(src, target string, modes []ircmode.ModeChange, ts int64) error {
	if ch, err := a.Net.Channels.Lookup(target); err == nil {
		ircmode.ApplyModes(ch.Modes, DefaultModeSpec, modes)
	}
	for _, line := range ircmode.JoinModes(modes, true, 0) {
		if err := a.Send(&ircevent.Event{
			Source:  a.source(src),
			Command: "MODE",
			Params:  []string{target, line},
		}); err != nil {
			return errors.Wrap(err, "ngircd: mode")
		}
	}
	return nil
}

func (a *Adapter) Nick(uid, newNick string) error {
	src := a.source(uid)
	a.Net.Users.Rename(uid, newNick, 0)
	return a.Send(&ircevent.Event{Source: src, Command: "NICK", Params: []string{newNick}})
}

func (a *Adapter) UpdateClient(uid string, field proto.UpdateField, value string) error {
	u := a.Net.Users.Get(uid)
	if u == nil {
		return &perr.NotFound{Kind: "user", ID: uid}
	}
	switch field {
	case proto.FieldIdent:
		return &perr.NotSupported{Operation: "update_client:IDENT", Adapter: "ngircd"}
	case proto.FieldHost:
		return &perr.NotSupported{Operation: "update_client:HOST", Adapter: "ngircd"}
	case proto.FieldRealHost:
		u.RealHost = value
		return nil
	case proto.FieldGecos:
		u.Realname = value
		return a.Send(&ircevent.Event{Source: a.source(uid), Command: "SETNAME", Trailing: value})
	case proto.FieldAway:
		u.Away = value
		return a.Send(&ircevent.Event{Source: a.source(uid), Command: "AWAY", Trailing: value})
	case proto.FieldServicesAccount:
		return &perr.NotSupported{Operation: "update_client:SERVICES_ACCOUNT", Adapter: "ngircd"}
	default:
		return &perr.NotSupported{Operation: "update_client", Adapter: "ngircd"}
	}
}

func (a *Adapter) Message(src, target, text string) error {
	return a.Send(&ircevent.Event{Source: a.source(src), Command: "PRIVMSG", Params: []string{target}, Trailing: text})
}

func (a *Adapter) Notice(src, target, text string) error {
	return a.Send(&ircevent.Event{Source: a.source(src), Command: "NOTICE", Params: []string{target}, Trailing: text})
}

func (a *Adapter) Numeric(srcSID, numeric, target, text string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(a.Net.Name), Command: numeric, Params: []string{target}, Trailing: text})
}

func (a *Adapter) Topic(uid, channel, text string) error {
	if ch, err := a.Net.Channels.Lookup(channel); err == nil {
		ch.Topic, ch.TopicSet, ch.TopicSetter = text, true, uid
	}
	return a.Send(&ircevent.Event{Source: a.source(uid), Command: "TOPIC", Params: []string{channel}, Trailing: text})
}

func (a *Adapter) TopicBurst(sid, channel, text string) error {
	if ch, err := a.Net.Channels.Lookup(channel); err == nil {
		ch.Topic, ch.TopicSet = text, text != ""
	}
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(a.Net.Name), Command: "TOPIC", Params: []string{channel}, Trailing: text})
}

func (a *Adapter) Invite(src, target, channel string) error {
	return a.Send(&ircevent.Event{Source: a.source(src), Command: "INVITE", Params: []string{a.nickOf(target), channel}})
}

func (a *Adapter) Knock(src, channel, text string) error {
	return &perr.NotSupported{Operation: "knock", Adapter: "ngircd"}
}

func (a *Adapter) Squit(sid, targetSID, reason string) error {
	removed := a.Net.SquitCascade(targetSID)
	a.emit(ircevent.HookSquit, sid, map[string]interface{}{"target": targetSID, "users": removed})
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(a.Net.Name), Command: "SQUIT", Params: []string{targetSID}, Trailing: reason})
}

func (a *Adapter) Ping(src, target string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "PING", Params: []string{target}})
}

func (a *Adapter) Pong(self, target string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(self), Command: "PONG", Params: []string{self, target}})
}

