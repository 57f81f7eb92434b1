package inspircd

import (
	"strconv"
	"strings"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

// Dispatch handles one inbound InspIRCd line. Grounded on the same
// registerHandlers-style command-to-function mapping as proto/ts6's
// Dispatch, adapted to InspIRCd's own command set (FJOIN/FMODE instead
// of SJOIN/TMODE, no ENCAP unwrapping — InspIRCd sends most extensions
// as their own top-level commands).
func (a *Adapter) Dispatch(evt *ircevent.Event) {
	switch evt.Command {
	case "PING":
		target := a.Net.SID
		if len(evt.Params) > 0 {
			target = evt.Params[0]
		}
		_ = a.Pong(a.Net.SID, target)
	case "UID":
		a.handleUID(evt)
	case "SERVER":
		a.handleServer(evt)
	case "FJOIN":
		a.handleFJoin(evt)
	case "JOIN":
		a.handleJoin(evt)
	case "PART":
		a.handlePart(evt)
	case "QUIT":
		a.handleQuit(evt)
	case "KICK":
		a.handleKick(evt)
	case "KILL":
		a.handleKill(evt)
	case "NICK":
		a.handleNick(evt)
	case "FMODE", "MODE":
		a.handleMode(evt)
	case "FTOPIC", "TOPIC":
		a.handleTopic(evt)
	case "SQUIT":
		a.handleSquit(evt)
	case "PRIVMSG":
		a.handleMessage(evt, ircevent.HookPrivmsg)
	case "NOTICE":
		a.handleMessage(evt, ircevent.HookNotice)
	}
}

func (a *Adapter) handleUID(evt *ircevent.Event) {
	// UID: uid ts nick realhost host ident ip signon +modes ... :gecos
	if len(evt.Params) < 8 {
		return
	}
	uid, nick := evt.Params[0], evt.Params[2]
	ts, _ := strconv.ParseInt(evt.Params[1], 10, 64)

	u := a.Net.NewUser(uid, nick)
	u.RealHost, u.Host, u.Ident, u.IP = evt.Params[3], evt.Params[4], evt.Params[5], evt.Params[6]
	u.SignonTS, u.NickTS = ts, ts
	u.Realname = evt.Trailing

	a.emit(ircevent.HookUID, uid, map[string]interface{}{
		"uid": uid, "ts": ts, "nick": nick, "realhost": u.RealHost, "host": u.Host, "ident": u.Ident, "ip": u.IP,
	})
}

func (a *Adapter) handleServer(evt *ircevent.Event) {
	if len(evt.Params) < 4 {
		return
	}
	name, sid := evt.Params[0], evt.Params[3]
	uplink := ""
	if evt.Source != nil {
		uplink = evt.Source.Name
	}
	a.Net.Servers.Add(&state.Server{
		SID: sid, Name: name, Description: evt.Trailing, Uplink: uplink,
		Children: map[string]struct{}{}, Users: map[string]struct{}{},
	})
}

func (a *Adapter) handleFJoin(evt *ircevent.Event) {
	if len(evt.Params) < 3 {
		return
	}
	channel := evt.Params[0]
	ts, _ := strconv.ParseInt(evt.Params[1], 10, 64)
	modeStr := evt.Params[2]

	ch := a.Net.Channels.Materialize(channel)
	parsed := ircmode.ParseModes(DefaultModeSpec, modeStr, evt.Params[3:], ch.Modes, nil)
	ch.CreationTS = ts
	ircmode.ApplyModes(ch.Modes, DefaultModeSpec, parsed)

	var uids []string
	tokens := strings.Fields(evt.Trailing)
	for _, tok := range tokens {
		prefixes, uid, ok := strings.Cut(tok, ",")
		if !ok {
			uid = tok
			prefixes = ""
		}
		a.Net.JoinChannel(channel, uid)
		if prefixes != "" {
			ch.Modes.Prefixes[uid] = prefixes
		}
		uids = append(uids, uid)
	}

	a.emit(ircevent.HookJoin, "", map[string]interface{}{"channel": channel, "users": uids, "modes": parsed, "ts": ts})
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

func (a *Adapter) handleNick(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := evt.Source.Name
	oldNick := ""
	if u := a.Net.Users.Get(uid); u != nil {
		oldNick = u.Nick
	}
	var ts int64
	if len(evt.Params) > 1 {
		ts, _ = strconv.ParseInt(evt.Params[1], 10, 64)
	}
	a.Net.Users.Rename(uid, evt.Params[0], ts)
	a.emit(ircevent.HookNick, uid, map[string]interface{}{"newnick": evt.Params[0], "oldnick": oldNick, "ts": ts})
}

func (a *Adapter) handleMode(evt *ircevent.Event) {
	if len(evt.Params) < 2 {
		return
	}
	target := evt.Params[0]
	rest := evt.Params[1:]
	if evt.Command == "FMODE" {
		// FMODE: <target> <ts> <modes> <args...>
		rest = rest[1:]
	}
	if evt.Trailing != "" {
		rest = append(append([]string{}, rest...), evt.Trailing)
	}
	if len(rest) == 0 {
		return
	}
	flags, args := rest[0], rest[1:]

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
