package ts6

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/perr"
	"github.com/pylink/pylink/proto"
)

// SpawnClient introduces a virtual user via EUID, per spec §4.3 and
// §6.1 ("Introduce virtual users (UID/EUID/...)").
func (a *Adapter) SpawnClient(nick, ident, host, realhost string, modes []ircmode.ModeChange, server, ip, realname string, ts int64, opertype string, manipulatable bool) (string, error) {
	uid := a.nextUID()

	u := a.Net.NewUser(uid, nick)
	u.Ident = ident
	u.Host = host
	u.RealHost = realhost
	u.IP = ip
	u.Realname = realname
	u.SignonTS = ts
	u.OperType = opertype

	lines := ircmode.JoinModes(modes, true, 0)
	umodes := "+"
	if len(lines) > 0 {
		umodes = lines[0]
	}

	err := a.Send(&ircevent.Event{
		Source:  ircevent.ParseSource(a.Net.SID),
		Command: "EUID",
		Params: []string{
			nick, "1", strconv.FormatInt(ts, 10), umodes,
			ident, host, ip, uid, realhost, "*",
		},
		Trailing: realname,
	})
	if err != nil {
		return "", errors.Wrap(err, "ts6: spawn_client")
	}
	return uid, nil
}

// SpawnServer introduces a virtual sub-server, used to host relay
// puppets (spec §4.3, requires proto.CapVirtualServer).
func (a *Adapter) SpawnServer(name, sid, uplink, description string) (string, error) {
	if !a.Caps.Has(proto.CapVirtualServer) {
		return "", &perr.NotSupported{Operation: "spawn_server", Adapter: "ts6"}
	}
	if sid == "" {
		sid = a.Net.SID
	}
	a.Net.Servers.Add(newTS6Server(sid, name, description, uplink))

	err := a.Send(&ircevent.Event{
		Source:   ircevent.ParseSource(uplink),
		Command:  "SID",
		Params:   []string{name, "2", sid},
		Trailing: description,
	})
	return sid, errors.Wrap(err, "ts6: spawn_server")
}

func (a *Adapter) Join(uid, channel string) error {
	a.Net.JoinChannel(channel, uid)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "JOIN", Params: []string{channel}})
}

func (a *Adapter) SJoin(sid, channel string, entries []proto.SJoinEntry, ts int64, modes []ircmode.ModeChange) error {
	ch := a.Net.Channels.Materialize(channel)
	ch.CreationTS = ts
	ircmode.ApplyModes(ch.Modes, DefaultModeSpec, modes)

	for start := 0; start < len(entries); start += proto.MaxSJoinUsers {
		end := start + proto.MaxSJoinUsers
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		var uidArgs []string
		for _, e := range chunk {
			a.Net.JoinChannel(channel, e.UID)
			if e.Prefixes != "" {
				ch.Modes.Prefixes[e.UID] = e.Prefixes
				var syms []byte
				for i := 0; i < len(e.Prefixes); i++ {
					for sym, char := range prefixSymbolToChar {
						if char == e.Prefixes[i] {
							syms = append(syms, sym)
						}
					}
				}
				uidArgs = append(uidArgs, string(syms)+e.UID)
			} else {
				uidArgs = append(uidArgs, e.UID)
			}
		}

		lines := ircmode.JoinModes(modes, true, 0)
		modeStr := "+"
		if len(lines) > 0 {
			modeStr = lines[0]
		}

		params := append([]string{channel, modeStr}, uidArgs...)
		if err := a.Send(&ircevent.Event{
			Source:  ircevent.ParseSource(sid),
			Command: "SJOIN",
			Params:  append([]string{strconv.FormatInt(ts, 10)}, params...),
		}); err != nil {
			return errors.Wrap(err, "ts6: sjoin")
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

// Kill emits a TS6 KILL. TS6 always supports S2S kill, unlike Clientbot,
// so this never raises NotSupported here (spec §4.3: "raises NotSupported
// when the protocol lacks S2S kill").
func (a *Adapter) Kill(src, target, reason string) error {
	a.Net.QuitUser(target)
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "KILL", Params: []string{target}, Trailing: reason})
}

// Mode bounces via server source when the sender isn't opped and the
// adapter declares mode-bounce-needs-server, per spec §4.3.
func (a *Adapter) Mode(src, target string, modes []ircmode.ModeChange, ts int64) error {
	lines := ircmode.JoinModes(modes, true, 0)

	source := src
	if a.Caps.Has(proto.CapModeBounceNeedsServer) && !a.sourceIsOpped(src, target) {
		source = a.Net.SID
	}

	if ch, err := a.Net.Channels.Lookup(target); err == nil {
		ircmode.ApplyModes(ch.Modes, DefaultModeSpec, modes)
	}

	for _, line := range lines {
		err := a.Send(&ircevent.Event{
			Source:  ircevent.ParseSource(source),
			Command: "TMODE",
			Params:  []string{strconv.FormatInt(ts, 10), target},
			Trailing: line,
		})
		if err != nil {
			return errors.Wrap(err, "ts6: mode")
		}
	}
	return nil
}

func (a *Adapter) sourceIsOpped(src, channel string) bool {
	ch, err := a.Net.Channels.Lookup(channel)
	if err != nil {
		return false
	}
	prefixes, ok := ch.Modes.Prefixes[src]
	return ok && (containsByte(prefixes, 'o') || containsByte(prefixes, 'h'))
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
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
		cmd = "CHGIDENT"
	case proto.FieldHost:
		u.Host = value
		cmd = "CHGHOST"
	case proto.FieldRealHost:
		u.RealHost = value
		return nil // TS6 has no wire command for the unexposed real host.
	case proto.FieldGecos:
		u.Realname = value
		cmd = "CHGNAME"
	case proto.FieldAway:
		u.Away = value
		cmd = "AWAY"
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: cmd, Trailing: value})
	case proto.FieldServicesAccount:
		u.Account = value
		cmd = "ENCAP"
		return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: cmd, Params: []string{"*", "SU", uid, value}})
	default:
		return &perr.NotSupported{Operation: "update_client", Adapter: "ts6"}
	}

	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(a.Net.SID), Command: cmd, Params: []string{uid, value}})
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
		ch.Topic = text
		ch.TopicSet = true
		ch.TopicSetter = uid
	}
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(uid), Command: "TOPIC", Params: []string{channel}, Trailing: text})
}

func (a *Adapter) TopicBurst(sid, channel, text string) error {
	if ch, err := a.Net.Channels.Lookup(channel); err == nil {
		ch.Topic = text
		ch.TopicSet = text != ""
	}
	return a.Send(&ircevent.Event{
		Source:  ircevent.ParseSource(sid),
		Command: "TB",
		Params:  []string{channel, strconv.FormatInt(0, 10)},
		Trailing: text,
	})
}

func (a *Adapter) Invite(src, target, channel string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "INVITE", Params: []string{target, channel}})
}

func (a *Adapter) Knock(src, channel, text string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "ENCAP", Params: []string{"*", "KNOCK", channel}, Trailing: text})
}

func (a *Adapter) Squit(sid, targetSID, reason string) error {
	removed := a.Net.SquitCascade(targetSID)
	a.emit(ircevent.HookSquit, sid, map[string]interface{}{
		"target": targetSID,
		"users":  removed,
	})
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(sid), Command: "SQUIT", Params: []string{targetSID}, Trailing: reason})
}

func (a *Adapter) Ping(src, target string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(src), Command: "PING", Params: []string{target}})
}

func (a *Adapter) Pong(self, target string) error {
	return a.Send(&ircevent.Event{Source: ircevent.ParseSource(self), Command: "PONG", Params: []string{self, target}})
}
