// Package p10 implements the P10/Nefarious S2S dialect (spec §6.1):
// numeric-prefixed framing using abbreviated tokens (N for NICK, J for
// JOIN, B for burst-join, and so on) rather than full command words,
// and base64-alphabet numeric nicks — a 2-char server numeric plus a
// 3-char client numeric, giving the "P10 5-char" UID the GLOSSARY
// names. Another structural sibling of proto/ts6: same Adapter shape,
// its own wire grammar.
package p10

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

// DefaultModeSpec is Nefarious' default CHANMODES/PREFIX grammar.
var DefaultModeSpec = ircmode.ModeSpec{
	ListArgs:   "be",
	AlwaysArgs: "k",
	SetArgs:    "l",
	NoArgs:     "ntmiprsDdc",
	Prefixes:   "ohv",
}

// p10Alphabet is the 64-character numeric-nick alphabet P10 uses for
// both server and client numerics: A-Z, a-z, 0-9, then [ and ].
const p10Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789[]"

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
		return errors.New("p10: no transport attached")
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
	return a.Send(&ircevent.Event{Command: "PASS", Trailing: a.Net.SID})
}

func (a *Adapter) SendBurst() error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(a.Net.SID), Command: "SERVER", Params: []string{a.Net.Name, "1", "0", "0", "J10", a.Net.SID + "]]]", "0"}})
}

// nextUID encodes the per-server counter as a 3-char base64-alphabet
// numeric and prefixes it with the network's 2-char server numeric.
func (a *Adapter) nextUID() string {
	a.uidCounter++
	return a.Net.SID + encodeP10(a.uidCounter, 3)
}

func encodeP10(n, width int) string {
	var buf [8]byte
	i := len(buf)
	for n > 0 || i == len(buf) {
		i--
		buf[i] = p10Alphabet[n%64]
		n /= 64
		if len(buf)-i >= width && n == 0 {
			break
		}
	}
	s := string(buf[i:])
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
		Command:  "N",
		Params:   []string{nick, "1", strconv.FormatInt(ts, 10), ident, host, "+", ip, uid},
		Trailing: realname,
	})
	return uid, errors.Wrap(err, "p10: spawn_client")
}

func (a *Adapter) SpawnServer(name, sid, uplink, description string) (string, error) {
	if !a.Caps.Has(proto.CapVirtualServer) {
		return "", &perr.NotSupported{Operation: "spawn_server", Adapter: "p10"}
	}
	if sid == "" {
		sid = a.Net.SID
	}
	a.Net.Servers.Add(&state.Server{SID: sid, Name: name, Description: description, Uplink: uplink, Children: map[string]struct{}{}, Users: map[string]struct{}{}})
	err := a.Send(&ircevent.Event{Source: ircevent.ParseSource(uplink), Command: "SERVER", Params: []string{name, "1", "0", "0", "J10", sid + "]]]", "0"}, Trailing: description})
	return sid, errors.Wrap(err, "p10: spawn_server")
}

func (a *Adapter) Join(uid, channel string) error {
	a.Net.JoinChannel(channel, uid)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "J", Params: []string{channel}})
}

// SJoin emits P10's "B" (burst-join) token, chunked at
// proto.MaxSJoinUsers. Prefix ranks are encoded as ":o"/":h"/":v"
// trailing qualifiers on the affected UID, P10's actual wire
// convention for burst membership.
func (a *Adapter) SJoin(sid, channel string, entries []proto.SJoinEntry, ts int64, modes []ircmode.ModeChange) error {
	ch := a.Net.Channels.Materialize(channel)
	ch.CreationTS = ts
	ircmode.ApplyModes(ch.Modes, DefaultModeSpec, modes)

	for start := 0; start < len(entries); start += proto.MaxSJoinUsers {
		end := start + proto.MaxSJoinUsers
		if end > len(entries) {
			end = len(entries)
		}
		var toks []string
		for _, e := range entries[start:end] {
			a.Net.JoinChannel(channel, e.UID)
			tok := e.UID
			if e.Prefixes != "" {
				ch.Modes.Prefixes[e.UID] = e.Prefixes
				tok += ":" + e.Prefixes
			}
			toks = append(toks, tok)
		}
		if err := a.Send(&ircevent.Event{
			Source:  ircevent.ParseSource(sid),
			Command: "B",
			Params:  append([]string{channel, strconv.FormatInt(ts, 10)}, toks...),
		}); err != nil {
			return errors.Wrap(err, "p10: burst-join")
		}
	}
	return nil
}

func (a *Adapter) Part(uid, channel, reason string) error {
	a.Net.PartChannel(channel, uid, false)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "L", Params: []string{channel}, Trailing: reason})
}

func (a *Adapter) Quit(uid, reason string) error {
	a.Net.QuitUser(uid)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "Q", Trailing: reason})
}

func (a *Adapter) Kick(src, channel, target, reason string) error {
	a.Net.PartChannel(channel, target, false)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "K", Params: []string{channel, target}, Trailing: reason})
}

func (a *Adapter) Kill(src, target, reason string) error {
	a.Net.QuitUser(target)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "D", Params: []string{target}, Trailing: reason})
}

// Mode bounces via the server SID when the source isn't opped, per
// spec §4.3's P10-specific rule ("non-opped sources get forwarded via
// server and rewritten as-if from the PyLink server").
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
			Command: "M",
			Params:  []string{target, line},
		}); err != nil {
			return errors.Wrap(err, "p10: mode")
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
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "N", Params: []string{newNick}})
}

func (a *Adapter) UpdateClient(uid string, field proto.UpdateField, value string) error {
	u := a.Net.Users.Get(uid)
	if u == nil {
		return &perr.NotFound{Kind: "user", ID: uid}
	}
	switch field {
	case proto.FieldIdent:
		return &perr.NotSupported{Operation: "update_client:IDENT", Adapter: "p10"}
	case proto.FieldHost:
		u.Host = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "FA", Params: []string{value}})
	case proto.FieldRealHost:
		u.RealHost = value
		return nil
	case proto.FieldGecos:
		u.Realname = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "FNAME"})
	case proto.FieldAway:
		u.Away = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "A", Trailing: value})
	case proto.FieldServicesAccount:
		u.Account = value
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "AC", Params: []string{uid, value}})
	default:
		return &perr.NotSupported{Operation: "update_client", Adapter: "p10"}
	}
}

func (a *Adapter) Message(src, target, text string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "P", Params: []string{target}, Trailing: text})
}

func (a *Adapter) Notice(src, target, text string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "O", Params: []string{target}, Trailing: text})
}

func (a *Adapter) Numeric(srcSID, numeric, target, text string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(srcSID), Command: numeric, Params: []string{target}, Trailing: text})
}

func (a *Adapter) Topic(uid, channel, text string) error {
	if ch, err := a.Net.Channels.Lookup(channel); err == nil {
		ch.Topic, ch.TopicSet, ch.TopicSetter = text, true, uid
	}
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "T", Params: []string{channel}, Trailing: text})
}

func (a *Adapter) TopicBurst(sid, channel, text string) error {
	if ch, err := a.Net.Channels.Lookup(channel); err == nil {
		ch.Topic, ch.TopicSet = text, text != ""
	}
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(sid), Command: "T", Params: []string{channel, "0"}, Trailing: text})
}

func (a *Adapter) Invite(src, target, channel string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "I", Params: []string{target, channel}})
}

func (a *Adapter) Knock(src, channel, text string) error {
	return &perr.NotSupported{Operation: "knock", Adapter: "p10"}
}

func (a *Adapter) Squit(sid, targetSID, reason string) error {
	removed := a.Net.SquitCascade(targetSID)
	a.emit(ircevent.HookSquit, sid, map[string]interface{}{"target": targetSID, "users": removed})
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(sid), Command: "SQ", Params: []string{targetSID}, Trailing: reason})
}

func (a *Adapter) Ping(src, target string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "G", Params: []string{target}})
}

func (a *Adapter) Pong(self, target string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(self), Command: "Z", Params: []string{self, target}})
}
