package ngircd

import (
	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

// Dispatch handles one inbound ngIRCd line. There is no burst-join
// command to special-case: ngIRCd bursts channel membership as a
// stream of ordinary JOINs, so JOIN is the only membership-creating
// path, unlike every other adapter's separate inbound burst handler.
func (a *Adapter) Dispatch(evt *ircevent.Event) {
	switch evt.Command {
	case "PING":
		target := a.Net.Name
		if len(evt.Params) > 0 {
			target = evt.Params[0]
		}
		_ = a.Pong(a.Net.Name, target)
	case "NICK":
		a.handleNick(evt)
	case "SERVER":
		a.handleServer(evt)
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

// handleNick distinguishes an introduction (a NICK with hopcount/ident/
// host fields from a server source) from a plain rename (a NICK with
// just the new nick, sourced from the user itself) the same way
// handleN in proto/p10 does, by argument shape.
func (a *Adapter) handleNick(evt *ircevent.Event) {
	if len(evt.Params) >= 5 {
		a.handleNickIntroduce(evt)
		return
	}
	a.handleNickChange(evt)
}

func (a *Adapter) handleNickIntroduce(evt *ircevent.Event) {
	nick, ident, host := evt.Params[0], evt.Params[2], evt.Params[3]
	uid := a.nextUID(nick)

	u := a.Net.NewUser(uid, nick)
	u.Ident, u.Host, u.RealHost = ident, host, host
	u.Realname = evt.Trailing

	a.emit(ircevent.HookUID, uid, map[string]interface{}{"uid": uid, "nick": nick, "ident": ident, "host": host})
}

func (a *Adapter) handleNickChange(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := a.resolveSourceUID(evt.Source.Name)
	oldNick := evt.Source.Name
	a.Net.Users.Rename(uid, evt.Params[0], 0)
	a.emit(ircevent.HookNick, uid, map[string]interface{}{"newnick": evt.Params[0], "oldnick": oldNick})
}

// resolveSourceUID maps a wire nick-as-source back to this network's
// internal UID, since ngIRCd's frames are sourced by nick, not UID.
func (a *Adapter) resolveSourceUID(nick string) string {
	uids := a.Net.Users.LookupNick(nick)
	if len(uids) == 0 {
		return nick
	}
	return uids[0]
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
	a.Net.Servers.Add(&state.Server{SID: name, Name: name, Description: evt.Trailing, Uplink: uplink, Children: map[string]struct{}{}, Users: map[string]struct{}{}})
}

func (a *Adapter) handleJoin(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := a.resolveSourceUID(evt.Source.Name)
	a.Net.JoinChannel(evt.Params[0], uid)
	a.emit(ircevent.HookJoin, uid, map[string]interface{}{"channel": evt.Params[0], "users": []string{uid}})
}

func (a *Adapter) handlePart(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := a.resolveSourceUID(evt.Source.Name)
	a.Net.PartChannel(evt.Params[0], uid, false)
	a.emit(ircevent.HookPart, uid, map[string]interface{}{"channels": []string{evt.Params[0]}, "text": evt.Trailing})
}

func (a *Adapter) handleQuit(evt *ircevent.Event) {
	if evt.Source == nil {
		return
	}
	uid := a.resolveSourceUID(evt.Source.Name)
	a.Net.QuitUser(uid)
	a.emit(ircevent.HookQuit, uid, map[string]interface{}{"text": evt.Trailing})
}

func (a *Adapter) handleKick(evt *ircevent.Event) {
	if len(evt.Params) < 2 {
		return
	}
	targetUID := a.resolveSourceUID(evt.Params[1])
	a.Net.PartChannel(evt.Params[0], targetUID, false)
	source := ""
	if evt.Source != nil {
		source = a.resolveSourceUID(evt.Source.Name)
	}
	a.emit(ircevent.HookKick, source, map[string]interface{}{"channel": evt.Params[0], "target": targetUID, "text": evt.Trailing})
}

func (a *Adapter) handleKill(evt *ircevent.Event) {
	if len(evt.Params) < 1 {
		return
	}
	targetUID := a.resolveSourceUID(evt.Params[0])
	a.Net.QuitUser(targetUID)
	source := ""
	if evt.Source != nil {
		source = a.resolveSourceUID(evt.Source.Name)
	}
	a.emit(ircevent.HookKill, source, map[string]interface{}{"target": targetUID, "text": evt.Trailing})
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
		source = a.resolveSourceUID(evt.Source.Name)
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
		source = a.resolveSourceUID(evt.Source.Name)
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
		source = a.resolveSourceUID(evt.Source.Name)
	}
	a.emit(hook, source, map[string]interface{}{"target": evt.Params[0], "text": evt.Trailing})
}
