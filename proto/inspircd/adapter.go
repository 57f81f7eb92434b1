// Package inspircd implements the InspIRCd S2S dialect (spec §6.1):
// `:src CMD args` framing with CAPAB-negotiated modules, FJOIN/FMODE
// burst commands, and mixed UID/PUID client identifiers. Structurally a
// sibling of proto/ts6 — same Adapter/Transport/Dispatch shape — but
// its own command set, since InspIRCd's burst/mode grammar (FJOIN
// instead of SJOIN, FMODE instead of TMODE, no ENCAP-wrapping) differs
// enough that sharing one dispatch table would just be a disguised
// per-command branch anyway.
package inspircd

import (
	"strconv"
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

// DefaultModeSpec is InspIRCd 3's default CHANMODES/PREFIX grammar.
var DefaultModeSpec = ircmode.ModeSpec{
	ListArgs:   "bgeI",
	AlwaysArgs: "fkL",
	SetArgs:    "lJ",
	NoArgs:     "CFGKMNOPQRSTcimnprstuz",
	Prefixes:   "qaohv",
}

type Adapter struct {
	NetworkName string
	Net         *state.NetworkState
	Caps        proto.CapabilitySet
	Framer      *proto.S2SFramer
	TS          *proto.TSStateMachine
	Transport   Transport
	EmitHook    func(*ircevent.HookEvent)

	uidCounter int
}

func New(name string, net *state.NetworkState, transport Transport, emit func(*ircevent.HookEvent)) *Adapter {
	return &Adapter{
		NetworkName: name,
		Net:         net,
		Caps: proto.NewCapabilitySet(
			proto.CapHasTS,
			proto.CapHasIRCModes,
			proto.CapVirtualServer,
		),
		Framer:    &proto.S2SFramer{OwnSID: net.SID, OwnName: net.Name},
		TS:        &proto.TSStateMachine{Spec: DefaultModeSpec},
		Transport: transport,
		EmitHook:  emit,
	}
}

func (a *Adapter) Name() string                     { return a.NetworkName }
func (a *Adapter) Capabilities() proto.CapabilitySet { return a.Caps }
func (a *Adapter) State() *state.NetworkState        { return a.Net }

func (a *Adapter) Send(evt *ircevent.Event) error {
	if a.Transport == nil {
		return errors.New("inspircd: no transport attached")
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
	return a.Send(&ircevent.Event{Command: "CAPAB", Params: []string{"START", "1205"}})
}

func (a *Adapter) SendBurst() error {
	return a.Send(&ircevent.Event{Command: "SERVER", Params: []string{a.Net.Name, "*", "0", a.Net.SID}, Trailing: "PyLink Service"})
}

func (a *Adapter) nextUID() string {
	a.uidCounter++
	return a.Net.SID + pad(a.uidCounter, 6)
}

func pad(n, width int) string {
	s := strconv.FormatInt(int64(n), 36)
	s = strings.ToUpper(s)
	for len(s) < width {
		s = "9" + s
	}
	return s
}

func (a *Adapter) SpawnClient(nick, ident, host, realhost string, modes []ircmode.ModeChange, server, ip, realname string, ts int64, opertype string, manipulatable bool) (string, error) {
	uid := a.nextUID()
	u := a.Net.NewUser(uid, nick)
	u.Ident, u.Host, u.RealHost, u.IP, u.Realname, u.SignonTS, u.OperType = ident, host, realhost, ip, realname, ts, opertype

	err := a.Send(&ircevent.Event{
		Source:  ircevent.ParseSource(a.Net.SID),
		Command: "UID",
		Params:  []string{uid, strconv.FormatInt(ts, 10), nick, realhost, host, ident, ip, strconv.FormatInt(ts, 10), "+", ""},
		Trailing: realname,
	})
	return uid, errors.Wrap(err, "inspircd: spawn_client")
}

func (a *Adapter) SpawnServer(name, sid, uplink, description string) (string, error) {
	if !a.Caps.Has(proto.CapVirtualServer) {
		return "", &perr.NotSupported{Operation: "spawn_server", Adapter: "inspircd"}
	}
	if sid == "" {
		sid = a.Net.SID
	}
	a.Net.Servers.Add(&state.Server{SID: sid, Name: name, Description: description, Uplink: uplink, Children: map[string]struct{}{}, Users: map[string]struct{}{}})
	err := a.Send(&ircevent.Event{Source: ircevent.ParseSource(uplink), Command: "SERVER", Params: []string{name, "*", "1", sid}, Trailing: description})
	return sid, errors.Wrap(err, "inspircd: spawn_server")
}

func (a *Adapter) Join(uid, channel string) error {
	a.Net.JoinChannel(channel, uid)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "JOIN", Params: []string{channel}})
}

// SJoin emits FJOIN, InspIRCd's burst-join command, chunked at
// proto.MaxSJoinUsers like every other adapter.
func (a *Adapter) SJoin(sid, channel string, entries []proto.SJoinEntry, ts int64, modes []ircmode.ModeChange) error {
	ch := a.Net.Channels.Materialize(channel)
	ch.CreationTS = ts
	ircmode.ApplyModes(ch.Modes, DefaultModeSpec, modes)

	lines := ircmode.JoinModes(modes, true, 0)
	modeStr := "+"
	if len(lines) > 0 {
		modeStr = lines[0]
	}

	for start := 0; start < len(entries); start += proto.MaxSJoinUsers {
		end := start + proto.MaxSJoinUsers
		if end > len(entries) {
			end = len(entries)
		}
		var toks []string
		for _, e := range entries[start:end] {
			a.Net.JoinChannel(channel, e.UID)
			if e.Prefixes != "" {
				ch.Modes.Prefixes[e.UID] = e.Prefixes
			}
			toks = append(toks, e.Prefixes+","+e.UID)
		}
		if err := a.Send(&ircevent.Event{
			Source:  ircevent.ParseSource(sid),
			Command: "FJOIN",
			Params:  append([]string{channel, strconv.FormatInt(ts, 10), modeStr}, toks...),
		}); err != nil {
			return errors.Wrap(err, "inspircd: fjoin")
		}
	}
	return nil
}

func (a *Adapter) Part(uid, channel, reason string) error {
	a.Net.PartChannel(channel, uid, false)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "PART", Params: []string{channel}, Trailing: reason})
}

func (a *Adapter) Quit(uid, reason string) error {
	a.Net.QuitUser(uid)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "QUIT", Trailing: reason})
}

func (a *Adapter) Kick(src, channel, target, reason string) error {
	a.Net.PartChannel(channel, target, false)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "KICK", Params: []string{channel, target}, Trailing: reason})
}

func (a *Adapter) Kill(src, target, reason string) error {
	a.Net.QuitUser(target)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "KILL", Params: []string{target}, Trailing: reason})
}

// Mode emits FMODE, InspIRCd's TS-qualified mode command. Reversal of a
// foreign FMODE burst (concrete scenario 3 in spec §8) is Relay's job,
// calling this with the inverse ModeChange list ircmode.ReverseModes
// produced; this method just serializes whatever it's given.
func (a *Adapter) Mode(src, target string, modes []ircmode.ModeChange, ts int64) error {
	if ch, err := a.Net.Channels.Lookup(target); err == nil {
		ircmode.ApplyModes(ch.Modes, DefaultModeSpec, modes)
	}
	for _, line := range ircmode.JoinModes(modes, true, 0) {
		if err := a.Send(&ircevent.Event{
			Source:  ircevent.ParseSource(src),
			Command: "FMODE",
			Params:  []string{target, strconv.FormatInt(ts, 10)},
			Trailing: line,
		}); err != nil {
			return errors.Wrap(err, "inspircd: fmode")
		}
	}
	return nil
}

func (a *Adapter) Nick(uid, newNick string) error {
	a.Net.Users.Rename(uid, newNick, 0)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "NICK", Params: []string{newNick}})
}

func (a *Adapter) UpdateClient(uid string, field proto.UpdateField, value string) error {
	u := a.Net.Users.Get(uid)
	if u == nil {
		return &perr.NotFound{Kind: "user", ID: uid}
	}
	var cmd string
	switch field {
	case proto.FieldIdent:
		u.Ident = value
		cmd = "FIDENT"
	case proto.FieldHost:
		u.Host = value
		cmd = "FHOST"
	case proto.FieldRealHost:
		u.RealHost = value
		return nil
	case proto.FieldGecos:
		u.Realname = value
		cmd = "FNAME"
	case proto.FieldAway:
		u.Away = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "AWAY", Trailing: value})
	case proto.FieldServicesAccount:
		u.Account = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "METADATA", Params: []string{uid, "accountname"}, Trailing: value})
	default:
		return &perr.NotSupported{Operation: "update_client", Adapter: "inspircd"}
	}
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: cmd, Trailing: value})
}

func (a *Adapter) Message(src, target, text string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "PRIVMSG", Params: []string{target}, Trailing: text})
}

func (a *Adapter) Notice(src, target, text string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "NOTICE", Params: []string{target}, Trailing: text})
}

func (a *Adapter) Numeric(srcSID, numeric, target, text string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(srcSID), Command: numeric, Params: []string{target}, Trailing: text})
}

func (a *Adapter) Topic(uid, channel, text string) error {
	if ch, err := a.Net.Channels.Lookup(channel); err == nil {
		ch.Topic, ch.TopicSet, ch.TopicSetter = text, true, uid
	}
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "TOPIC", Params: []string{channel}, Trailing: text})
}

func (a *Adapter) TopicBurst(sid, channel, text string) error {
	if ch, err := a.Net.Channels.Lookup(channel); err == nil {
		ch.Topic, ch.TopicSet = text, text != ""
	}
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(sid), Command: "FTOPIC", Params: []string{channel, "0", sid}, Trailing: text})
}

func (a *Adapter) Invite(src, target, channel string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "INVITE", Params: []string{target, channel}})
}

func (a *Adapter) Knock(src, channel, text string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "KNOCK", Params: []string{channel}, Trailing: text})
}

func (a *Adapter) Squit(sid, targetSID, reason string) error {
	removed := a.Net.SquitCascade(targetSID)
	a.emit(ircevent.HookSquit, sid, map[string]interface{}{"target": targetSID, "users": removed})
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(sid), Command: "SQUIT", Params: []string{targetSID}, Trailing: reason})
}

func (a *Adapter) Ping(src, target string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "PING", Params: []string{target}})
}

func (a *Adapter) Pong(self, target string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(self), Command: "PONG", Params: []string{self, target}})
}
