package services

import (
	"strings"

	"github.com/pylink/pylink/hooks"
	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/permissions"
)

// Reply sends text back to whoever invoked ctx's command, wrapping it
// into ≤MaxReplyLineBytes lines on whitespace (spec §4.5). A
// channel-sourced (fantasy) invocation replies as a channel PRIVMSG;
// a private-query invocation replies as a NOTICE unless
// Config.PreferPrivateReplies flips that to a PRIVMSG.
func (b *Bot) Reply(ctx *Context, text string) {
	target := ctx.Source
	asNotice := true
	if ctx.Channel != "" {
		target = ctx.Channel
		asNotice = false
	} else if b.Config.PreferPrivateReplies {
		asNotice = false
	}

	for _, line := range wordWrap(text, MaxReplyLineBytes) {
		if asNotice {
			_ = b.Adapter.Notice(b.uid, target, line)
		} else {
			_ = b.Adapter.Message(b.uid, target, line)
		}
	}
}

// rawNotice sends a single unwrapped NOTICE, used for CTCP replies where
// word-wrapping would corrupt the 0x01-delimited framing.
func (b *Bot) rawNotice(target, text string) {
	_ = b.Adapter.Notice(b.uid, target, text)
}

// wordWrap splits text into lines no longer than maxBytes, breaking on
// whitespace boundaries where possible; a single word longer than
// maxBytes is emitted unsplit rather than cut mid-character.
func wordWrap(text string, maxBytes int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var cur strings.Builder
	for _, w := range words {
		switch {
		case cur.Len() == 0:
			cur.WriteString(w)
		case cur.Len()+1+len(w) <= maxBytes:
			cur.WriteByte(' ')
			cur.WriteString(w)
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(w)
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// onMessage is the PRIVMSG hook handler: it detects CTCP requests and
// routes everything else through fantasy (channel-prefixed) or private
// command dispatch.
func (b *Bot) onMessage(evt *ircevent.HookEvent) hooks.Outcome {
	target := evt.GetString("target")
	text := evt.GetString("text")

	if ctcp := decodeCTCP(evt.Source, "PRIVMSG", text); ctcp != nil {
		b.handleDefaultCTCP(ctcp)
		return hooks.Continue
	}

	var channel string
	if target == b.uid {
		// Private query: target is us, no command prefix required.
	} else {
		prefix := b.Config.CommandPrefix
		if !strings.HasPrefix(text, prefix) {
			return hooks.Continue
		}
		text = strings.TrimPrefix(text, prefix)
		channel = target
	}

	b.dispatch(evt.Source, channel, text)
	return hooks.Continue
}

func (b *Bot) dispatch(source, channel, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fields := strings.SplitN(text, " ", 2)
	name := fields[0]
	var args []string
	if len(fields) == 2 {
		args = strings.Fields(fields[1])
	}

	cmd, ok := b.Cmds.lookup(name)
	if !ok {
		return
	}
	if len(args) < cmd.MinArgs {
		b.Reply(&Context{Bot: b, Network: b.Network, Source: source, Channel: channel, Command: name, Args: args},
			"not enough arguments for "+name)
		return
	}

	ctx := &Context{Bot: b, Network: b.Network, Source: source, Channel: channel, Command: name, Args: args}

	if cmd.Permission != "" && b.Permissions != nil {
		u := b.Adapter.State().Users.Get(source)
		subj := permissions.Subject{Network: b.Network, User: u, Net: b.Adapter.State()}
		if u == nil || !b.Permissions.Check(subj, cmd.Permission) {
			b.Reply(ctx, "permission denied: requires "+cmd.Permission)
			return
		}
	}

	cmd.Fn(ctx)
}

// onNoticeCTCPReply observes CTCP replies arriving as NOTICE; the spec
// leaves reply handling to the requesting plugin, so this is
// intentionally a no-op beyond letting lower-priority handlers run.
func (b *Bot) onNoticeCTCPReply(evt *ircevent.HookEvent) hooks.Outcome {
	return hooks.Continue
}
