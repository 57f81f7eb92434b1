// Package unreal implements the UnrealIRCd 4 S2S dialect (spec §6.1):
// TS6-flavored framing with mixed UID/PUID client identifiers (a PUID,
// "pseudo-UID", stands in for clients a leaf link can't natively
// assign a real UID to) and an SVSNICK-based forced-nick-change command
// that Relay uses to re-tag colliding puppets rather than killing them.
// Structurally another sibling of proto/ts6 and proto/inspircd.
package unreal

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

// DefaultModeSpec is UnrealIRCd 4's default CHANMODES/PREFIX grammar.
var DefaultModeSpec = ircmode.ModeSpec{
	ListArgs:   "beIq",
	AlwaysArgs: "fkL",
	SetArgs:    "lj",
	NoArgs:     "ntmiMRSCOPKVGNuz",
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
			proto.CapModeBounceNeedsServer,
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
		return errors.New("unreal: no transport attached")
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
	return a.Send(&ircevent.Event{Command: "PROTOCTL", Params: []string{"NICKv2", "VHP", "UMODE2", "NOQUIT", "SJOIN", "SJOIN2", "SJ3", "NICKIP", "TKLEXT", "TKLEXT2", "ESVID", "MLOCK"}})
}

func (a *Adapter) SendBurst() error {
	return a.Send(&ircevent.Event{Command: "SERVER", Params: []string{a.Net.Name, "1"}, Trailing: "U4000-Fhn6OoEm-" + a.Net.SID})
}

// nextUID assigns a real UID, base36-padded like TS6's. PUID assignment
// (for clients the leaf can't natively identify) is Relay's concern — it
// calls SpawnClient the same way and gets back whatever this returns; a
// PUID is just a UID-shaped string Relay mints itself when bridging a
// non-UID-capable leaf, not something this adapter distinguishes.
func (a *Adapter) nextUID() string {
	a.uidCounter++
	return a.Net.SID + pad36(a.uidCounter, 6)
}

func pad36(n, width int) string {
	s := strconv.FormatInt(int64(n), 36)
	s = strings.ToUpper(s)
	for len(s) < width {
		s = "A" + s
	}
	return s
}

func (a *Adapter) SpawnClient(nick, ident, host, realhost string, modes []ircmode.ModeChange, server, ip, realname string, ts int64, opertype string, manipulatable bool) (string, error) {
	uid := a.nextUID()
	u := a.Net.NewUser(uid, nick)
	u.Ident, u.Host, u.RealHost, u.IP, u.Realname, u.SignonTS, u.OperType = ident, host, realhost, ip, realname, ts, opertype

	err := a.Send(&ircevent.Event{
		Source:   ircevent.ParseSource(a.Net.SID),
		Command:  "UID",
		Params:   []string{nick, "0", strconv.FormatInt(ts, 10), ident, host, uid, "0", "+", realhost, "", ip},
		Trailing: realname,
	})
	return uid, errors.Wrap(err, "unreal: spawn_client")
}

func (a *Adapter) SpawnServer(name, sid, uplink, description string) (string, error) {
	if !a.Caps.Has(proto.CapVirtualServer) {
		return "", &perr.NotSupported{Operation: "spawn_server", Adapter: "unreal"}
	}
	if sid == "" {
		sid = a.Net.SID
	}
	a.Net.Servers.Add(&state.Server{SID: sid, Name: name, Description: description, Uplink: uplink, Children: map[string]struct{}{}, Users: map[string]struct{}{}})
	err := a.Send(&ircevent.Event{Source: ircevent.ParseSource(uplink), Command: "SERVER", Params: []string{name, "2"}, Trailing: description})
	return sid, errors.Wrap(err, "unreal: spawn_server")
}

func (a *Adapter) Join(uid, channel string) error {
	a.Net.JoinChannel(channel, uid)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "JOIN", Params: []string{channel}})
}

// SJoin emits SJOIN in Unreal's SJ3 form (prefix symbols concatenated
// directly onto the UID, same wire shape as TS6), chunked at
// proto.MaxSJoinUsers.
func (a *Adapter) SJoin(sid, channel string, entries []proto.SJoinEntry, ts int64, modes []ircmode.ModeChange) error {
	ch := a.Net.Channels.Materialize(channel)
	ch.CreationTS = ts
	ircmode.ApplyModes(ch.Modes, DefaultModeSpec, modes)

	lines := ircmode.JoinModes(modes, true, 0)
	modeStr := ""
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
			toks = append(toks, unrealPrefixSymbols(e.Prefixes)+e.UID)
		}
		params := []string{strconv.FormatInt(ts, 10), channel}
		if modeStr != "" {
			params = append(params, modeStr)
		}
		if err := a.Send(&ircevent.Event{
			Source:   ircevent.ParseSource(sid),
			Command:  "SJOIN",
			Params:   params,
			Trailing: strings.Join(toks, " "),
		}); err != nil {
			return errors.Wrap(err, "unreal: sjoin")
		}
	}
	return nil
}

var unrealCharToSymbol = map[byte]byte{'q': '~', 'a': '&', 'o': '@', 'h': '%', 'v': '+'}

func unrealPrefixSymbols(prefixes string) string {
	var out strings.Builder
	for i := 0; i < len(prefixes); i++ {
		if sym, ok := unrealCharToSymbol[prefixes[i]]; ok {
			out.WriteByte(sym)
		}
	}
	return out.String()
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

// Mode bounces via the server's SID when CapModeBounceNeedsServer is set
// and the source isn't opped on the target channel, same rule as TS6's
// TMODE per spec §4.1.
func (a *Adapter) Mode(src, target string, modes []ircmode.ModeChange, ts int64) error {
	source := src
	if a.Caps.Has(proto.CapModeBounceNeedsServer) && !a.sourceIsOpped(src, target) {
		source = a.Net.SID
	}
	if ch, err := a.Net.Channels.Lookup(target); err == nil {
		ircmode.ApplyModes(ch.Modes, DefaultModeSpec, modes)
	}
	for _, line := range ircmode.JoinModes(modes, true, 0) {
		if err := a.Send(&ircevent.Event{
			Source:  ircevent.ParseSource(source),
			Command: "MODE",
			Params:  []string{target, line},
		}); err != nil {
			return errors.Wrap(err, "unreal: mode")
		}
	}
	return nil
}

func (a *Adapter) sourceIsOpped(uid, channel string) bool {
	ch, err := a.Net.Channels.Lookup(channel)
	if err != nil {
		return false
	}
	return strings.IndexByte(ch.Modes.Prefixes[uid], 'o') >= 0
}

func (a *Adapter) Nick(uid, newNick string) error {
	a.Net.Users.Rename(uid, newNick, 0)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "NICK", Params: []string{newNick}})
}

// Svsnick forces a nick change on target, bypassing ordinary NICK
// collision rules. Relay uses this (spec §8 concrete scenario 4) to
// re-tag a colliding puppet instead of killing and respawning it.
func (a *Adapter) Svsnick(src, target, newNick string) error {
	a.Net.Users.Rename(target, newNick, 0)
	a.emit(ircevent.HookSvsnick, src, map[string]interface{}{"target": target, "newnick": newNick})
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "SVSNICK", Params: []string{target, newNick}})
}

func (a *Adapter) UpdateClient(uid string, field proto.UpdateField, value string) error {
	u := a.Net.Users.Get(uid)
	if u == nil {
		return &perr.NotFound{Kind: "user", ID: uid}
	}
	switch field {
	case proto.FieldIdent:
		u.Ident = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "CHGIDENT", Params: []string{uid, value}})
	case proto.FieldHost:
		u.Host = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "CHGHOST", Params: []string{uid, value}})
	case proto.FieldRealHost:
		u.RealHost = value
		return nil
	case proto.FieldGecos:
		u.Realname = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "CHGNAME", Params: []string{uid}, Trailing: value})
	case proto.FieldAway:
		u.Away = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "AWAY", Trailing: value})
	case proto.FieldServicesAccount:
		u.Account = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "SVSLOGIN", Params: []string{uid, value}})
	default:
		return &perr.NotSupported{Operation: "update_client", Adapter: "unreal"}
	}
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
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(sid), Command: "TOPIC", Params: []string{channel, sid, "0"}, Trailing: text})
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
