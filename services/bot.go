// Package services implements the ServiceBot runtime (spec §4.5): a
// named pseudo-client present on every network, with a command table,
// persistent-channel tracking, reply routing, a word-wrapper, and CTCP
// answering. Grounded on cmdhandler/cmd.go for the command-table
// dispatch shape and on girc's ctcp.go for CTCP framing, generalized
// from a single C2S bot to a process-wide service spawned identically
// across every linked network.
package services

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/pylink/pylink/hooks"
	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/permissions"
	"github.com/pylink/pylink/proto"
)

// Config holds one ServiceBot's per-network identity and reply-routing
// preferences (spec §4.5: "a nick/ident/host/realname per network
// (defaults overridable per-net)").
type Config struct {
	Nick     string
	Ident    string
	Host     string
	Realname string

	// CommandPrefix triggers fantasy (in-channel) command invocation,
	// e.g. "!" so "!help" invokes the "help" command.
	CommandPrefix string

	// PreferPrivateReplies flips a private-query reply from the default
	// NOTICE to a PRIVMSG (spec §4.5: "private queries reply as notice
	// unless the per-bot prefer_private_replies option flips this").
	PreferPrivateReplies bool
}

// MaxReplyLineBytes bounds a single wrapped reply line (spec §4.5: "a
// word-wrapper that splits long replies into ≤400-byte lines on
// whitespace").
const MaxReplyLineBytes = 400

// Bot is one ServiceBot instance on one network.
type Bot struct {
	Name    string
	Network string
	Adapter proto.Adapter
	Bus     *hooks.Bus
	Config  Config
	Cmds    *CommandTable

	// Permissions gates commands carrying a non-empty Command.Permission
	// node (spec §4.6); nil disables enforcement entirely, matching a
	// network with no permissions block configured.
	Permissions *permissions.Store

	uid string

	mu         sync.RWMutex
	persistent map[string]map[string]bool // channel -> namespaces pinning it
}

// New builds a ServiceBot for one network. Call Spawn to introduce it
// and AddHook registrations (done by New) to wire fantasy-command and
// rejoin-on-kick/kill behavior.
func New(name, network string, adapter proto.Adapter, bus *hooks.Bus, cfg Config) *Bot {
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	b := &Bot{
		Name:       name,
		Network:    network,
		Adapter:    adapter,
		Bus:        bus,
		Config:     cfg,
		Cmds:       newCommandTable(),
		persistent: make(map[string]map[string]bool),
	}
	b.registerListDefault()
	if bus != nil {
		bus.AddHook(ircevent.HookPrivmsg, b.onMessage, 100)
		bus.AddHook(ircevent.HookNotice, b.onNoticeCTCPReply, 100)
		bus.AddHook(ircevent.HookKick, b.onKick, 100)
		bus.AddHook(ircevent.HookKill, b.onKill, 100)
		bus.AddHook(ircevent.HookEndburst, b.onEndburst, 100)
	}
	return b
}

// Spawn introduces the bot's pseudo-client onto the network.
func (b *Bot) Spawn() error {
	uid, err := b.Adapter.SpawnClient(b.Config.Nick, b.Config.Ident, b.Config.Host, b.Config.Host,
		nil, "", "0.0.0.0", b.Config.Realname, 0, "", false)
	if err != nil {
		return errors.Wrapf(err, "services: spawning %s on %s", b.Name, b.Network)
	}
	b.uid = uid
	return nil
}

// UID returns the bot's own UID, empty until Spawn succeeds.
func (b *Bot) UID() string { return b.uid }

func (b *Bot) registerListDefault() {
	_ = b.Cmds.Add("list", &Command{
		Help:     "lists available commands.",
		Featured: true,
		Fn: func(ctx *Context) {
			names := ctx.Bot.Cmds.Featured()
			ctx.Bot.Reply(ctx, "available commands: "+strings.Join(names, ", "))
		},
	})
}
