package p10

import (
	"strconv"
	"strings"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

// Dispatch handles one inbound P10 line, keyed by the abbreviated
// token the wire actually uses rather than a spelled-out command word.
func (a *Adapter) Dispatch(evt *ircevent.Event) {
	switch evt.Command {
	case "G", "PING":
		target := a.Net.SID
		if len(evt.Params) > 0 {
			target = evt.Params[0]
		}
		_ = a.Pong(a.Net.SID, target)
	case "N":
		a.handleN(evt)
	case "SERVER":
		a.handleServer(evt)
	case "B":
		a.handleBurst(evt)
	case "J":
		a.handleJoin(evt)
	case "L":
		a.handlePart(evt)
	case "Q":
		a.handleQuit(evt)
	case "K":
		a.handleKick(evt)
	case "D":
		a.handleKill(evt)
	case "M":
		a.handleMode(evt)
	case "T":
		a.handleTopic(evt)
	case "SQ":
		a.handleSquit(evt)
	case "P":
		a.handleMessage(evt, ircevent.HookPrivmsg)
	case "O":
		a.handleMessage(evt, ircevent.HookNotice)
	}
}

// handleN distinguishes a nick-introduction (8 params: nick hop ts
// ident host modes ip uid) from a plain rename (1 param: newnick) by
// argument count, the same discriminator P10 itself uses.
func (a *Adapter) handleN(evt *ircevent.Event) {
	if len(evt.Params) >= 7 {
		a.handleNickIntroduce(evt)
		return
	}
	a.handleNickChange(evt)
}

func (a *Adapter) handleNickIntroduce(evt *ircevent.Event) {
	nick := evt.Params[0]
	ts, _ := strconv.ParseInt(evt.Params[2], 10, 64)
	ident, host := evt.Params[3], evt.Params[4]
	uid := evt.Params[len(evt.Params)-1]

	u := a.Net.NewUser(uid, nick)
	u.Ident, u.Host, u.SignonTS, u.NickTS = ident, host, ts, ts
	if len(evt.Params) > 6 {
		u.IP = evt.Params[6]
	}
	u.Realname = evt.Trailing

	a.emit(ircevent.HookUID, uid, map[string]interface{}{"uid": uid, "ts": ts, "nick": nick, "ident": ident, "host": host})
}

func (a *Adapter) handleNickChange(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := evt.Source.Name
	oldNick := ""
	if u := a.Net.Users.Get(uid); u != nil {
		oldNick = u.Nick
	}
	a.Net.Users.Rename(uid, evt.Params[0], 0)
	a.emit(ircevent.HookNick, uid, map[string]interface{}{"newnick": evt.Params[0], "oldnick": oldNick})
}

func (a *Adapter) handleServer(evt *ircevent.Event) {
	if len(evt.Params) < 6 {
		return
	}
	name, sid := evt.Params[0], evt.Params[5][:2]
	uplink := ""
	if evt.Source != nil {
		uplink = evt.Source.Name
	}
	a.Net.Servers.Add(&state.Server{SID: sid, Name: name, Description: evt.Trailing, Uplink: uplink, Children: map[string]struct{}{}, Users: map[string]struct{}{}})
}

func (a *Adapter) handleBurst(evt *ircevent.Event) {
	if len(evt.Params) < 2 {
		return
	}
	channel := evt.Params[0]
	ts, _ := strconv.ParseInt(evt.Params[1], 10, 64)

	ch := a.Net.Channels.Materialize(channel)
	ch.CreationTS = ts

	var uids []string
	for _, tok := range evt.Params[2:] {
		uid, prefixes := splitP10Token(tok)
		a.Net.JoinChannel(channel, uid)
		if prefixes != "" {
			ch.Modes.Prefixes[uid] = prefixes
		}
		uids = append(uids, uid)
	}

	a.emit(ircevent.HookJoin, "", map[string]interface{}{"channel": channel, "users": uids, "ts": ts})
}

func splitP10Token(tok string) (uid, prefixes string) {
	uid, prefixes, ok := strings.Cut(tok, ":")
	if !ok {
		return tok, ""
	}
	return uid, prefixes
}

func (a *Adapter) handleJoin(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := evt.Source.Name
	a.Net.JoinChannel(evt.Params[0], uid)
	a.emit(ircevent.HookJoin, uid, map[string]interface{}{"channel": evt.Params[0], "users": []string{uid}})
}

func (a *Adapter) handlePart(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := evt.Source.Name
	a.Net.PartChannel(evt.Params[0], uid, false)
	a.emit(ircevent.HookPart, uid, map[string]interface{}{"channels": []string{evt.Params[0]}, "text": evt.Trailing})
}

func (a *Adapter) handleQuit(evt *ircevent.Event) {
	if evt.Source == nil {
		return
	}
	uid := evt.Source.Name
	a.Net.QuitUser(uid)
	a.emit(ircevent.HookQuit, uid, map[string]interface{}{"text": evt.Trailing})
}

func (a *Adapter) handleKick(evt *ircevent.Event) {
	if len(evt.Params) < 2 {
		return
	}
	a.Net.PartChannel(evt.Params[0], evt.Params[1], false)
	source := ""
	if evt.Source != nil {
		source = evt.Source.Name
	}
	a.emit(ircevent.HookKick, source, map[string]interface{}{"channel": evt.Params[0], "target": evt.Params[1], "text": evt.Trailing})
}

func (a *Adapter) handleKill(evt *ircevent.Event) {
	if len(evt.Params) < 1 {
		return
	}
	a.Net.QuitUser(evt.Params[0])
	source := ""
	if evt.Source != nil {
		source = evt.Source.Name
	}
	a.emit(ircevent.HookKill, source, map[string]interface{}{"target": evt.Params[0], "text": evt.Trailing})
}

// handleMode applies spec §4.3's P10 rule directly: a foreign MODE from
// a non-opped source is treated as already server-rewritten by the
// sender, so it is simply trusted and applied here (the bounce-or-trust
// decision on the way OUT is Adapter.Mode's job, exercised from this
// network's own sources, not from inbound frames).
func (a *Adapter) handleMode(evt *ircevent.Event) {
	if len(evt.Params) < 2 {
		return
	}
	target := evt.Params[0]
	flags := evt.Params[1]
	args := evt.Params[2:]
	if evt.Trailing != "" {
		args = append(args, evt.Trailing)
	}

	ch, err := a.Net.Channels.Lookup(target)
	if err != nil {
		return
	}
	parsed := ircmode.ParseModes(DefaultModeSpec, flags, args, ch.Modes, a.resolveNick)
	ircmode.ApplyModes(ch.Modes, DefaultModeSpec, parsed)

	source := ""
	if evt.Source != nil {
		source = evt.Source.Name
	}
	a.emit(ircevent.HookMode, source, map[string]interface{}{"target": target, "modes": parsed})
}

func (a *Adapter) resolveNick(nick string) (string, bool) {
	uids := a.Net.Users.LookupNick(nick)
	if len(uids) == 0 {
		return "", false
	}
	return uids[0], true
}

func (a *Adapter) handleTopic(evt *ircevent.Event) {
	if len(evt.Params) < 1 {
		return
	}
	channel := evt.Params[0]
	ch := a.Net.Channels.Materialize(channel)
	oldTopic := ch.Topic
	ch.Topic, ch.TopicSet = evt.Trailing, true
	source := ""
	if evt.Source != nil {
		source = evt.Source.Name
		ch.TopicSetter = source
	}
	a.emit(ircevent.HookTopic, source, map[string]interface{}{"channel": channel, "setter": source, "text": evt.Trailing, "oldtopic": oldTopic})
}

func (a *Adapter) handleSquit(evt *ircevent.Event) {
	if len(evt.Params) < 1 {
		return
	}
	removed := a.Net.SquitCascade(evt.Params[0])
	source := ""
	if evt.Source != nil {
		source = evt.Source.Name
	}
	a.emit(ircevent.HookSquit, source, map[string]interface{}{"target": evt.Params[0], "users": removed})
}

func (a *Adapter) handleMessage(evt *ircevent.Event, hook string) {
	if len(evt.Params) < 1 {
		return
	}
	source := ""
	if evt.Source != nil {
		source = evt.Source.Name
	}
	a.emit(hook, source, map[string]interface{}{"target": evt.Params[0], "text": evt.Trailing})
}
