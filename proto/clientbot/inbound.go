package clientbot

import (
	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
)

var knownCommands = map[string]bool{
	"PING": true, "PRIVMSG": true, "NOTICE": true, "JOIN": true, "PART": true,
	"QUIT": true, "KICK": true, "NICK": true, "MODE": true, "TOPIC": true, "CAP": true,
}

// Dispatch handles one inbound Clientbot (plain C2S) line. Per spec
// §4.3, unknown commands are ignored silently on every other adapter
// but enumerated here for diagnosis — Clientbot is the adapter most
// likely to hit a numeric or extension this module doesn't model yet,
// since it's speaking to arbitrary unmodified IRCds rather than a
// fixed, spec-enumerated S2S command set. Every numeric reply falls
// into that bucket too, since none are given a handled case below.
func (a *Adapter) Dispatch(evt *ircevent.Event) {
	if !knownCommands[evt.Command] {
		if a.LogUnknown != nil {
			a.LogUnknown(evt.Command, evt)
		}
		return
	}

	switch evt.Command {
	case "PING":
		_ = a.Send(&ircevent.Event{Command: "PONG", Trailing: firstOr(evt.Params, evt.Trailing)})
	case "PRIVMSG":
		a.handleMessage(evt, ircevent.HookPrivmsg)
	case "NOTICE":
		a.handleMessage(evt, ircevent.HookNotice)
	case "JOIN":
		a.handleJoin(evt)
	case "PART":
		a.handlePart(evt)
	case "QUIT":
		a.handleQuit(evt)
	case "KICK":
		a.handleKick(evt)
	case "NICK":
		a.handleNick(evt)
	case "MODE":
		a.handleMode(evt)
	case "TOPIC":
		a.handleTopic(evt)
	}
}

func firstOr(params []string, fallback string) string {
	if len(params) > 0 {
		return params[0]
	}
	return fallback
}

// resolveNickUID returns an existing UID for nick, case-folded per this
// network's casemap, or mints one on first sight — Clientbot sees
// other users only through the lines they emit, never through a UID
// introduction frame, so it must lazily materialize them.
func (a *Adapter) resolveNickUID(nick string) string {
	uids := a.Net.Users.LookupNick(nick)
	if len(uids) > 0 {
		return uids[0]
	}
	return a.Net.NewUser("cb-"+nick, nick).UID
}

func (a *Adapter) handleMessage(evt *ircevent.Event, hook string) {
	if len(evt.Params) < 1 {
		return
	}
	source := ""
	if evt.Source != nil {
		source = a.resolveNickUID(evt.Source.Name)
	}
	target := ircmode.CaseFold(evt.Params[0], a.Net.ISupport.Casemap)
	a.emit(hook, source, map[string]interface{}{"target": target, "text": evt.Trailing})
}

func (a *Adapter) handleJoin(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := a.resolveNickUID(evt.Source.Name)
	if evt.Source.Name == a.currentNick() {
		a.ownUID = uid
	}
	a.Net.JoinChannel(evt.Params[0], uid)
	a.emit(ircevent.HookJoin, uid, map[string]interface{}{"channel": evt.Params[0], "users": []string{uid}})
}

func (a *Adapter) currentNick() string {
	if u := a.Net.Users.Get(a.ownUID); u != nil {
		return u.Nick
	}
	return ""
}

func (a *Adapter) handlePart(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := a.resolveNickUID(evt.Source.Name)
	a.Net.PartChannel(evt.Params[0], uid, false)
	a.emit(ircevent.HookPart, uid, map[string]interface{}{"channels": []string{evt.Params[0]}, "text": evt.Trailing})
}

func (a *Adapter) handleQuit(evt *ircevent.Event) {
	if evt.Source == nil {
		return
	}
	uid := a.resolveNickUID(evt.Source.Name)
	a.Net.QuitUser(uid)
	a.emit(ircevent.HookQuit, uid, map[string]interface{}{"text": evt.Trailing})
}

func (a *Adapter) handleKick(evt *ircevent.Event) {
	if len(evt.Params) < 2 {
		return
	}
	targetUID := a.resolveNickUID(evt.Params[1])
	a.Net.PartChannel(evt.Params[0], targetUID, false)
	source := ""
	if evt.Source != nil {
		source = a.resolveNickUID(evt.Source.Name)
	}
	a.emit(ircevent.HookKick, source, map[string]interface{}{"channel": evt.Params[0], "target": targetUID, "text": evt.Trailing})
}

func (a *Adapter) handleNick(evt *ircevent.Event) {
	if evt.Source == nil || len(evt.Params) < 1 {
		return
	}
	uid := a.resolveNickUID(evt.Source.Name)
	oldNick := evt.Source.Name
	a.Net.Users.Rename(uid, evt.Params[0], 0)
	a.emit(ircevent.HookNick, uid, map[string]interface{}{"newnick": evt.Params[0], "oldnick": oldNick})
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
	resolve := func(nick string) (string, bool) {
		uids := a.Net.Users.LookupNick(nick)
		if len(uids) == 0 {
			return "", false
		}
		return uids[0], true
	}
	parsed := ircmode.ParseModes(DefaultModeSpec, flags, args, ch.Modes, resolve)
	ircmode.ApplyModes(ch.Modes, DefaultModeSpec, parsed)

	source := ""
	if evt.Source != nil {
		source = a.resolveNickUID(evt.Source.Name)
	}
	a.emit(ircevent.HookMode, source, map[string]interface{}{"target": target, "modes": parsed})
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
		source = a.resolveNickUID(evt.Source.Name)
		ch.TopicSetter = source
	}
	a.emit(ircevent.HookTopic, source, map[string]interface{}{"channel": channel, "setter": source, "text": evt.Trailing, "oldtopic": oldTopic})
}
