package relay

import (
	"github.com/pylink/pylink/hooks"
	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/proto"
	"github.com/pylink/pylink/state"
)

// Subscribe wires Engine's hook handlers onto bus at the same priority
// services.Bot uses (spec §4.4's default), so Relay observes traffic
// alongside any ServiceBot on the same network.
func (en *Engine) Subscribe(bus *hooks.Bus) {
	bus.AddHook(ircevent.HookJoin, en.onJoin, 100)
	bus.AddHook(ircevent.HookPart, en.onPart, 100)
	bus.AddHook(ircevent.HookQuit, en.onQuit, 100)
	bus.AddHook(ircevent.HookKick, en.onKick, 100)
	bus.AddHook(ircevent.HookKill, en.onKill, 100)
	bus.AddHook(ircevent.HookMode, en.onMode, 100)
	bus.AddHook(ircevent.HookPrivmsg, en.onMessage, 100)
	bus.AddHook(ircevent.HookNick, en.onNick, 100)
}

// otherSides returns every (network, channel) linked to entry other than
// origin — entry.Home itself counts as a side when origin is a leaf, so
// traffic flows both leaf-to-home and leaf-to-leaf symmetrically.
func otherSides(entry *ChannelEntry, origin string) []NetChan {
	all := append([]NetChan{entry.Home}, entry.Leaves...)
	out := make([]NetChan, 0, len(all))
	for _, nc := range all {
		if nc.Network != origin {
			out = append(out, nc)
		}
	}
	return out
}

// onJoin spawns (or reuses) a clone on every other side of entry when a
// real (non-puppet) user joins one of its linked channels — whichever
// side that join occurred on (spec §4.7's clone-spawning paragraph
// applies symmetrically: a user native to a leaf gets relayed to the
// home and every other leaf just as a home-native user does).
func (en *Engine) onJoin(evt *ircevent.HookEvent) hooks.Outcome {
	channel := evt.GetString("channel")
	if channel == "" {
		return hooks.Continue
	}
	nc := NetChan{Network: evt.Network, Channel: channel}
	entry, ok := en.DB.Entry(nc)
	if !ok {
		return hooks.Continue
	}

	origin, ok := en.World.Network(evt.Network)
	if !ok {
		return hooks.Continue
	}

	for _, uid := range evt.GetStringSlice("users") {
		if _, _, isPuppet := en.HomeOf(evt.Network, uid); isPuppet {
			continue // a puppet joining on the network it's spawned on is a loop guard, never real traffic.
		}
		u := origin.State.Users.Get(uid)
		if u == nil {
			continue
		}
		en.relayJoin(entry, evt.Network, uid, u)
	}
	return hooks.Continue
}

// relayJoin spawns (or reuses) uid's puppet on every other side of entry
// and joins it to that side's channel.
func (en *Engine) relayJoin(entry *ChannelEntry, originNetwork, uid string, u *state.User) {
	for _, other := range otherSides(entry, originNetwork) {
		puppetUID, err := en.SpawnPuppet(originNetwork, other.Network, u)
		if err != nil {
			en.Log.WithError(err).WithField("network", other.Network).Warn("relay: failed to spawn puppet")
			continue
		}
		target, ok := en.World.Network(other.Network)
		if !ok {
			continue
		}
		if err := target.Adapter.Join(puppetUID, other.Channel); err != nil {
			en.Log.WithError(err).WithField("network", other.Network).Warn("relay: failed to join puppet")
		}
	}
}

// onPart parts uid's clone from every other side's relayed channel when
// the real user parts one side's channel, destroying the puppet on any
// network it no longer shares a channel with.
func (en *Engine) onPart(evt *ircevent.HookEvent) hooks.Outcome {
	for _, channel := range evt.GetStringSlice("channels") {
		nc := NetChan{Network: evt.Network, Channel: channel}
		entry, ok := en.DB.Lookup(nc)
		if !ok {
			entry, ok = en.DB.FindByLeaf(nc)
			if !ok {
				continue
			}
		}
		for _, other := range otherSides(entry, evt.Network) {
			uid, ok := en.PuppetOf(evt.Network, other.Network, evt.Source)
			if !ok {
				continue
			}
			target, ok := en.World.Network(other.Network)
			if !ok {
				continue
			}
			_ = target.Adapter.Part(uid, other.Channel, evt.GetString("text"))
		}
		en.destroyPuppetIfOrphaned(evt.Network, evt.Source)
	}
	return hooks.Continue
}

// onQuit destroys every clone of a real user who quit their home
// network (spec §4.7: "puppets are removed when the source user leaves
// all shared channels" — a QUIT leaves none).
func (en *Engine) onQuit(evt *ircevent.HookEvent) hooks.Outcome {
	en.mu.RLock()
	var targets []string
	for key := range en.puppets {
		if key.HomeNetwork == evt.Network && key.HomeUID == evt.Source {
			targets = append(targets, key.TargetNet)
		}
	}
	en.mu.RUnlock()

	for _, net := range targets {
		_ = en.DestroyPuppet(evt.Network, net, evt.Source, evt.GetString("text"))
	}
	return hooks.Continue
}

// destroyPuppetIfOrphaned destroys homeUID's clone on any leaf network
// where it no longer occupies any shared channel.
func (en *Engine) destroyPuppetIfOrphaned(homeNetwork, homeUID string) {
	home, ok := en.World.Network(homeNetwork)
	if !ok {
		return
	}
	u := home.State.Users.Get(homeUID)
	stillIn := map[string]bool{}
	if u != nil {
		for ch := range u.Channels {
			if entry, ok := en.DB.Entry(NetChan{Network: homeNetwork, Channel: ch}); ok {
				for _, other := range otherSides(entry, homeNetwork) {
					stillIn[other.Network] = true
				}
			}
		}
	}

	en.mu.RLock()
	var orphaned []string
	for key := range en.puppets {
		if key.HomeNetwork == homeNetwork && key.HomeUID == homeUID && !stillIn[key.TargetNet] {
			orphaned = append(orphaned, key.TargetNet)
		}
	}
	en.mu.RUnlock()

	for _, net := range orphaned {
		_ = en.DestroyPuppet(homeNetwork, net, homeUID, "")
	}
}

// onKick reverses a kick against a puppet issued by a source lacking
// CLAIM authority, otherwise forwards it to every other shared channel
// (spec §4.7: "kick of a puppet by a user lacking CLAIM rights is
// reversed").
func (en *Engine) onKick(evt *ircevent.HookEvent) hooks.Outcome {
	channel := evt.GetString("channel")
	target := evt.GetString("target")
	if channel == "" || target == "" {
		return hooks.Continue
	}

	nc := NetChan{Network: evt.Network, Channel: channel}
	entry, ok := en.DB.Entry(nc)
	if !ok {
		return hooks.Continue
	}

	homeNetwork, homeUID, isPuppet := en.HomeOf(evt.Network, target)
	if !isPuppet {
		return hooks.Continue
	}

	if !entry.CanOverride(evt.Network) {
		en.rejoinPuppet(evt.Network, channel, homeNetwork, homeUID)
		return hooks.Continue
	}

	en.forwardKick(entry, evt.Network, channel, homeNetwork, homeUID, evt.GetString("text"))
	return hooks.Continue
}

// onKill evaluates the three-way kill policy (spec §4.7's kill-handling
// paragraph): a KILL issued by a user on a network sharing a
// kill_share_pool with the home propagates as a KILL of the home user;
// any other KILL rejoins the puppet to every channel it shares with the
// home. No KICK is forwarded in either case.
func (en *Engine) onKill(evt *ircevent.HookEvent) hooks.Outcome {
	target := evt.GetString("target")
	homeNetwork, homeUID, isPuppet := en.HomeOf(evt.Network, target)
	if !isPuppet {
		return hooks.Continue
	}

	originIsServer := len(evt.Source) > 0 && evt.Source[0] >= '0' && evt.Source[0] <= '9'
	sharesKillPool := en.sharesPool(en.KillSharePool, homeNetwork, evt.Network)
	switch EvaluateKill(originIsServer, sharesKillPool) {
	case KillRejectSilent:
		en.rejoinPuppetEverywhere(evt.Network, homeNetwork, homeUID)
	case KillPropagate:
		if home, ok := en.World.Network(homeNetwork); ok {
			_ = home.Adapter.Kill("", homeUID, "Relay kill from "+evt.Network+": "+evt.GetString("text"))
		}
	case KillDegradeToKick:
		en.rejoinPuppetEverywhere(evt.Network, homeNetwork, homeUID)
	}
	return hooks.Continue
}

// onMode propagates a channel MODE change to every leaf other than the
// originating network, translating and filtering per modes.go; the home
// channel is not updated from a leaf. When the originating network lacks
// CLAIM standing, the whole change is reversed there instead (spec
// §4.7's mode-propagation paragraph).
func (en *Engine) onMode(evt *ircevent.HookEvent) hooks.Outcome {
	target := evt.GetString("target")
	if target == "" || target[0] != '#' {
		return hooks.Continue
	}
	changes, ok := evt.Get("modes").([]ircmode.ModeChange)
	if !ok || len(changes) == 0 {
		return hooks.Continue
	}

	nc := NetChan{Network: evt.Network, Channel: target}
	entry, ok := en.DB.Entry(nc)
	if !ok {
		return hooks.Continue
	}

	home, ok := en.World.Network(entry.Home.Network)
	if !ok {
		return hooks.Continue
	}

	if !entry.CanOverride(evt.Network) {
		origin, ok := en.World.Network(evt.Network)
		if ok {
			if ch, err := origin.State.Channels.Lookup(target); err == nil {
				reversed := ircmode.ReverseModes(ch.Modes, origin.State.ISupport.ChanModes, changes)
				_ = origin.Adapter.Mode("", target, reversed, 0)
			}
		}
		return hooks.Continue
	}

	relayable := filterBans(home.State, changes)
	if evt.Network == entry.Home.Network {
		nc := NetChan{Network: entry.Home.Network, Channel: target}
		if e2, ok := en.DB.Entry(nc); ok {
			relayable = append(relayable, ModeDeltaChanges(e2.ModeDelta)...)
		}
	}

	for _, leaf := range entry.Leaves {
		if leaf.Network == evt.Network {
			continue
		}
		leafNet, ok := en.World.Network(leaf.Network)
		if !ok {
			continue
		}
		translated := translateModes(home.State, leafNet.State, relayable)
		if len(translated) == 0 {
			continue
		}
		if err := leafNet.Adapter.Mode("", leaf.Channel, translated, 0); err != nil {
			en.Log.WithError(err).WithField("network", leaf.Network).Warn("relay: failed to propagate mode")
		}
	}
	return hooks.Continue
}

// onMessage forwards a PRIVMSG sent to a relayed channel by a real
// (non-puppet) user onto every other linked network's channel, via that
// user's own puppet (spec §4.7's concrete scenario: "relayed to a
// full-S2S leaf").
func (en *Engine) onMessage(evt *ircevent.HookEvent) hooks.Outcome {
	target := evt.GetString("target")
	text := evt.GetString("text")
	if target == "" || text == "" || target[0] != '#' {
		return hooks.Continue
	}
	if _, _, isPuppet := en.HomeOf(evt.Network, evt.Source); isPuppet {
		return hooks.Continue // never re-relay traffic arriving through a puppet.
	}

	nc := NetChan{Network: evt.Network, Channel: target}
	entry, ok := en.DB.Entry(nc)
	if !ok {
		return hooks.Continue
	}

	others := append([]NetChan{entry.Home}, entry.Leaves...)
	for _, other := range others {
		if other.Network == evt.Network {
			continue
		}
		uid, ok := en.PuppetOf(evt.Network, other.Network, evt.Source)
		if !ok {
			continue
		}
		otherNet, ok := en.World.Network(other.Network)
		if !ok {
			continue
		}
		if err := otherNet.Adapter.Message(uid, other.Channel, text); err != nil {
			en.Log.WithError(err).WithField("network", other.Network).Warn("relay: failed to forward message")
		}
	}
	return hooks.Continue
}

// onNick re-tags every one of a real user's puppets to match a nick
// change, falling back to the "|"-separated tag (and ultimately to the
// puppet's own UID) on collision, per spec §4.7's nick-collision
// paragraph.
func (en *Engine) onNick(evt *ircevent.HookEvent) hooks.Outcome {
	newNick := evt.GetString("newnick")
	if newNick == "" {
		return hooks.Continue
	}

	en.mu.RLock()
	var targets []string
	for key := range en.puppets {
		if key.HomeNetwork == evt.Network && key.HomeUID == evt.Source {
			targets = append(targets, key.TargetNet)
		}
	}
	en.mu.RUnlock()

	for _, net := range targets {
		uid, ok := en.PuppetOf(evt.Network, net, evt.Source)
		if !ok {
			continue
		}
		target, ok := en.World.Network(net)
		if !ok {
			continue
		}
		tagged := tagNick(newNick, evt.Network, target.Adapter.Capabilities().Has(proto.CapFreeformNicks), target.State.ISupport.NickLen)
		if err := target.Adapter.Nick(uid, tagged); err != nil {
			tagged = tagNickFallback(newNick, evt.Network, target.State.ISupport.NickLen)
			if err := target.Adapter.Nick(uid, tagged); err != nil {
				_ = target.Adapter.Nick(uid, uid)
			}
		}
	}
	return hooks.Continue
}

// rejoinPuppet re-joins homeUID's clone on network/channel after a
// reversed kick.
func (en *Engine) rejoinPuppet(network, channel, homeNetwork, homeUID string) {
	uid, ok := en.PuppetOf(homeNetwork, network, homeUID)
	if !ok {
		return
	}
	target, ok := en.World.Network(network)
	if !ok {
		return
	}
	_ = target.Adapter.Join(uid, channel)
}

// rejoinPuppetEverywhere re-joins homeUID's clone on network into every
// channel it currently shares with the home, used after a degraded kill
// (spec §4.7: "silently rejoin the puppet elsewhere").
func (en *Engine) rejoinPuppetEverywhere(network, homeNetwork, homeUID string) {
	target, ok := en.World.Network(network)
	if !ok {
		return
	}
	uid, ok := en.PuppetOf(homeNetwork, network, homeUID)
	if !ok {
		return
	}
	en.DB.Each(func(e *ChannelEntry) {
		hasHome, hasNet := false, false
		var netChannel string
		for _, side := range append([]NetChan{e.Home}, e.Leaves...) {
			if side.Network == homeNetwork {
				hasHome = true
			}
			if side.Network == network {
				hasNet, netChannel = true, side.Channel
			}
		}
		if hasHome && hasNet {
			_ = target.Adapter.Join(uid, netChannel)
		}
	})
}

// forwardKick issues a KICK against homeUID's clone on every leaf of
// entry other than the one the kick originated on.
func (en *Engine) forwardKick(entry *ChannelEntry, originNetwork, originChannel, homeNetwork, homeUID, reason string) {
	for _, other := range otherSides(entry, originNetwork) {
		uid, ok := en.PuppetOf(homeNetwork, other.Network, homeUID)
		if !ok {
			continue
		}
		target, ok := en.World.Network(other.Network)
		if !ok {
			continue
		}
		_ = target.Adapter.Kick("", other.Channel, uid, reason)
	}
}
