package unreal

import (
	"strconv"
	"strings"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

var unrealSymbolToChar = map[byte]byte{'~': 'q', '&': 'a', '@': 'o', '%': 'h', '+': 'v'}

// Dispatch handles one inbound UnrealIRCd line.
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
	case "SJOIN":
		a.handleSJoin(evt)
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
	case "SVSNICK":
		a.handleSvsnick(evt)
	case "MODE":
		a.handleMode(evt)
	case "TOPIC":
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
	// UID: nick hopcount ts ident host uid servicestamp +modes realhost cloakedhost ip :gecos
	if len(evt.Params) < 6 {
		return
	}
	nick, ts := evt.Params[0], int64(0)
	ts, _ = strconv.ParseInt(evt.Params[2], 10, 64)
	ident, host, uid := evt.Params[3], evt.Params[4], evt.Params[5]

	u := a.Net.NewUser(uid, nick)
	u.Ident, u.Host, u.SignonTS, u.NickTS = ident, host, ts, ts
	if len(evt.Params) > 8 {
		u.RealHost = evt.Params[8]
	}
	if len(evt.Params) > 10 {
		u.IP = evt.Params[10]
	}
	u.Realname = evt.Trailing

	a.emit(ircevent.HookUID, uid, map[string]interface{}{"uid": uid, "ts": ts, "nick": nick, "ident": ident, "host": host})
}

func (a *Adapter) handleServer(evt *ircevent.Event) {
	if len(evt.Params) < 1 {
		return
	}
	name := evt.Params[0]
	uplink := ""
	if evt.Source != nil {
		uplink = evt.Source.Name
	}
	// UnrealIRCd names servers, not SIDs, on the SERVER line, so the
	// server is keyed by its name here; it is not re-keyed when a SID
	// later appears on that server's UID lines.
	a.Net.Servers.Add(&state.Server{SID: name, Name: name, Description: evt.Trailing, Uplink: uplink, Children: map[string]struct{}{}, Users: map[string]struct{}{}})
}

func (a *Adapter) handleSJoin(evt *ircevent.Event) {
	if len(evt.Params) < 2 {
		return
	}
	ts, _ := strconv.ParseInt(evt.Params[0], 10, 64)
	channel := evt.Params[1]
	modeStr := ""
	if len(evt.Params) > 2 {
		modeStr = evt.Params[2]
	}

	ch := a.Net.Channels.Materialize(channel)
	if modeStr != "" {
		parsed := ircmode.ParseModes(DefaultModeSpec, modeStr, evt.Params[3:], ch.Modes, nil)
		ircmode.ApplyModes(ch.Modes, DefaultModeSpec, parsed)
	}
	ch.CreationTS = ts

	var uids []string
	for _, tok := range strings.Fields(evt.Trailing) {
		prefixes, uid := splitUnrealToken(tok)
		a.Net.JoinChannel(channel, uid)
		if prefixes != "" {
			ch.Modes.Prefixes[uid] = prefixes
		}
		uids = append(uids, uid)
	}

	a.emit(ircevent.HookJoin, "", map[string]interface{}{"channel": channel, "users": uids, "ts": ts})
}

func splitUnrealToken(tok string) (prefixes, uid string) {
	i := 0
	var letters []byte
	for i < len(tok) {
		char, ok := unrealSymbolToChar[tok[i]]
		if !ok {
			break
		}
		letters = append(letters, char)
		i++
	}
	return string(letters), tok[i:]
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
	a.Net.Users.Rename(uid, evt.Params[0], 0)
	a.emit(ircevent.HookNick, uid, map[string]interface{}{"newnick": evt.Params[0], "oldnick": oldNick})
}

// handleSvsnick processes an inbound SVSNICK, the forced-rename Relay
// uses (spec §8 concrete scenario 4) to re-tag a colliding puppet
// without a KILL/respawn round trip.
func (a *Adapter) handleSvsnick(evt *ircevent.Event) {
	if len(evt.Params) < 2 {
		return
	}
	target, newNick := evt.Params[0], evt.Params[1]
	a.Net.Users.Rename(target, newNick, 0)
	source := ""
	if evt.Source != nil {
		source = evt.Source.Name
	}
	a.emit(ircevent.HookSvsnick, source, map[string]interface{}{"target": target, "newnick": newNick})
}

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
