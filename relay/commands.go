package relay

import (
	"strconv"
	"strings"
	"time"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/services"
)

// RegisterCommands wires the Relay command surface (spec §6.3) onto bot,
// dispatching each against en. Grounded on services.CommandTable's
// Command shape; permission nodes follow the "relay.<verb>" convention
// spec §6.3 calls for ("Permission nodes are documented per-command").
func RegisterCommands(bot *services.Bot, en *Engine) {
	add := func(name string, cmd *services.Command) { _ = bot.Cmds.Add(name, cmd) }

	add("create", &services.Command{
		Help:       "create #channel - marks #channel as a new relay home.",
		MinArgs:    1,
		Permission: "relay.create",
		Featured:   true,
		Fn: func(ctx *services.Context) {
			channel := ctx.Args[0]
			_, err := en.DB.Create(NetChan{Network: ctx.Network, Channel: channel}, time.Now().Unix())
			if err != nil {
				ctx.Bot.Reply(ctx, err.Error())
				return
			}
			ctx.Bot.Reply(ctx, channel+" is now a relay home.")
		},
	})

	add("link", &services.Command{
		Help:       "link <homenet> #homechan [localname] - links the current network to a remote home channel.",
		MinArgs:    2,
		Permission: "relay.link",
		Featured:   true,
		Fn: func(ctx *services.Context) {
			homeNet, homeChan := ctx.Args[0], ctx.Args[1]
			localName := homeChan
			if len(ctx.Args) > 2 {
				localName = ctx.Args[2]
			}
			home := NetChan{Network: homeNet, Channel: homeChan}
			entry, ok := en.DB.Lookup(home)
			if !ok {
				ctx.Bot.Reply(ctx, homeNet+"/"+homeChan+" is not a relay home.")
				return
			}
			if !entry.CanLink(ctx.Network) {
				ctx.Bot.Reply(ctx, "this network is not permitted to link to "+homeChan+" (linkacl).")
				return
			}
			leaf := NetChan{Network: ctx.Network, Channel: localName}
			if err := en.DB.Link(home, leaf); err != nil {
				ctx.Bot.Reply(ctx, err.Error())
				return
			}
			ctx.Bot.Reply(ctx, localName+" is now linked to "+homeNet+"/"+homeChan+".")
		},
	})

	add("delink", &services.Command{
		Help:       "delink #localchan - removes this network's link to #localchan.",
		MinArgs:    1,
		Permission: "relay.delink",
		Featured:   true,
		Fn: func(ctx *services.Context) {
			leaf := NetChan{Network: ctx.Network, Channel: ctx.Args[0]}
			if err := en.DB.Delink(leaf); err != nil {
				ctx.Bot.Reply(ctx, err.Error())
				return
			}
			ctx.Bot.Reply(ctx, ctx.Args[0]+" has been delinked.")
		},
	})

	add("destroy", &services.Command{
		Help:       "destroy #channel - removes a relay home entirely.",
		MinArgs:    1,
		Permission: "relay.destroy",
		Featured:   true,
		Fn: func(ctx *services.Context) {
			home := NetChan{Network: ctx.Network, Channel: ctx.Args[0]}
			if err := en.DB.Destroy(home); err != nil {
				ctx.Bot.Reply(ctx, err.Error())
				return
			}
			ctx.Bot.Reply(ctx, ctx.Args[0]+" is no longer a relay home.")
		},
	})

	add("linked", &services.Command{
		Help:     "linked - lists every relay home and its leaves.",
		Featured: true,
		Fn: func(ctx *services.Context) {
			var lines []string
			en.DB.Each(func(e *ChannelEntry) {
				leaves := make([]string, 0, len(e.Leaves))
				for _, l := range e.Leaves {
					leaves = append(leaves, l.Network+"/"+l.Channel)
				}
				lines = append(lines, e.Home.Network+"/"+e.Home.Channel+" -> "+strings.Join(leaves, ", "))
			})
			if len(lines) == 0 {
				ctx.Bot.Reply(ctx, "no channels are linked.")
				return
			}
			ctx.Bot.Reply(ctx, strings.Join(lines, " | "))
		},
	})

	add("linkacl", &services.Command{
		Help:       "linkacl #chan list|allow net|deny net|whitelist true|false - manages link ACLs for #chan.",
		MinArgs:    2,
		Permission: "relay.linkacl",
		Fn: func(ctx *services.Context) { linkACL(ctx, en) },
	})

	add("claim", &services.Command{
		Help:       "claim #chan [net1,net2,...|-] - sets (or clears, with -) the claim list for #chan.",
		MinArgs:    1,
		Permission: "relay.claim",
		Fn: func(ctx *services.Context) {
			home := NetChan{Network: ctx.Network, Channel: ctx.Args[0]}
			entry, ok := en.DB.Lookup(home)
			if !ok {
				ctx.Bot.Reply(ctx, ctx.Args[0]+" is not a relay home.")
				return
			}
			if len(ctx.Args) < 2 || ctx.Args[1] == "-" {
				entry.ClaimNets = nil
				ctx.Bot.Reply(ctx, "claim cleared for "+ctx.Args[0]+".")
				return
			}
			entry.ClaimNets = strings.Split(ctx.Args[1], ",")
			ctx.Bot.Reply(ctx, "claim set for "+ctx.Args[0]+": "+ctx.Args[1])
		},
	})

	add("chandesc", &services.Command{
		Help:       "chandesc #chan [text|-] - sets (or clears) the description shown for #chan.",
		MinArgs:    1,
		Permission: "relay.chandesc",
		Fn: func(ctx *services.Context) {
			home := NetChan{Network: ctx.Network, Channel: ctx.Args[0]}
			entry, ok := en.DB.Lookup(home)
			if !ok {
				ctx.Bot.Reply(ctx, ctx.Args[0]+" is not a relay home.")
				return
			}
			if len(ctx.Args) < 2 || ctx.Args[1] == "-" {
				entry.ChanDesc = ""
				ctx.Bot.Reply(ctx, "description cleared for "+ctx.Args[0]+".")
				return
			}
			entry.ChanDesc = strings.Join(ctx.Args[1:], " ")
			ctx.Bot.Reply(ctx, "description set for "+ctx.Args[0]+".")
		},
	})

	add("purge", &services.Command{
		Help:       "purge <network> - removes every relay entry referencing a decommissioned network.",
		MinArgs:    1,
		Permission: "relay.purge",
		Fn: func(ctx *services.Context) {
			en.DB.Purge(ctx.Args[0])
			ctx.Bot.Reply(ctx, "purged every relay entry referencing "+ctx.Args[0]+".")
		},
	})

	add("savedb", &services.Command{
		Help:       "savedb - forces an immediate write of the relay database to disk.",
		Permission: "relay.savedb",
		Fn: func(ctx *services.Context) {
			if err := en.DB.Save(); err != nil {
				ctx.Bot.Reply(ctx, "save failed: "+err.Error())
				return
			}
			ctx.Bot.Reply(ctx, "relay database saved.")
		},
	})

	add("forcetag", &services.Command{
		Help:       "forcetag <nick> - re-tags every puppet of the local user currently using <nick>, clearing a stale tag.",
		MinArgs:    1,
		Permission: "relay.forcetag",
		Fn: func(ctx *services.Context) {
			origin, ok := en.World.Network(ctx.Network)
			if !ok {
				ctx.Bot.Reply(ctx, "network "+ctx.Network+" is not registered.")
				return
			}
			uids := origin.State.Users.LookupNick(ctx.Args[0])
			for _, uid := range uids {
				if u := origin.State.Users.Get(uid); u != nil {
					en.onNick(&ircevent.HookEvent{Network: ctx.Network, Source: uid, Args: map[string]interface{}{"newnick": u.Nick}})
				}
			}
			ctx.Bot.Reply(ctx, "re-tagged the puppets of "+strconv.Itoa(len(uids))+" user(s) using "+ctx.Args[0]+".")
		},
	})
}

func linkACL(ctx *services.Context, en *Engine) {
	home := NetChan{Network: ctx.Network, Channel: ctx.Args[0]}
	entry, ok := en.DB.Lookup(home)
	if !ok {
		ctx.Bot.Reply(ctx, ctx.Args[0]+" is not a relay home.")
		return
	}

	switch strings.ToLower(ctx.Args[1]) {
	case "list":
		if len(entry.LinkACL.Entries) == 0 {
			ctx.Bot.Reply(ctx, "linkacl for "+ctx.Args[0]+" is empty ("+linkACLModeName(entry.LinkACL.Mode)+").")
			return
		}
		ctx.Bot.Reply(ctx, linkACLModeName(entry.LinkACL.Mode)+": "+strings.Join(entry.LinkACL.Entries, ", "))
	case "allow":
		if len(ctx.Args) < 3 {
			ctx.Bot.Reply(ctx, "linkacl allow requires a network name.")
			return
		}
		entry.LinkACL.Mode = LinkACLWhitelist
		addLinkACLEntry(entry, ctx.Args[2])
		ctx.Bot.Reply(ctx, ctx.Args[2]+" may now link to "+ctx.Args[0]+".")
	case "deny":
		if len(ctx.Args) < 3 {
			ctx.Bot.Reply(ctx, "linkacl deny requires a network name.")
			return
		}
		entry.LinkACL.Mode = LinkACLBlacklist
		addLinkACLEntry(entry, ctx.Args[2])
		ctx.Bot.Reply(ctx, ctx.Args[2]+" may no longer link to "+ctx.Args[0]+".")
	case "whitelist":
		if len(ctx.Args) < 3 {
			ctx.Bot.Reply(ctx, "linkacl whitelist requires true or false.")
			return
		}
		on, err := strconv.ParseBool(ctx.Args[2])
		if err != nil {
			ctx.Bot.Reply(ctx, "expected true or false.")
			return
		}
		if on {
			entry.LinkACL.Mode = LinkACLWhitelist
		} else {
			entry.LinkACL.Mode = LinkACLBlacklist
		}
		ctx.Bot.Reply(ctx, "linkacl mode for "+ctx.Args[0]+" is now "+linkACLModeName(entry.LinkACL.Mode)+".")
	default:
		ctx.Bot.Reply(ctx, "usage: linkacl #chan list|allow net|deny net|whitelist true|false")
	}
}

func linkACLModeName(mode LinkACLMode) string {
	if mode == LinkACLWhitelist {
		return "whitelist"
	}
	return "blacklist"
}

func addLinkACLEntry(entry *ChannelEntry, network string) {
	for _, n := range entry.LinkACL.Entries {
		if n == network {
			return
		}
	}
	entry.LinkACL.Entries = append(entry.LinkACL.Entries, network)
}
