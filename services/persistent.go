package services

import (
	"github.com/pylink/pylink/hooks"
	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/proto"
)

// AddPersistentChannel pins channel for namespace (spec §4.5:
// "a dynamic_channels set per (network, namespace) supplied by plugins
// via add_persistent_channel/remove_persistent_channel"). The bot joins
// immediately if the channel is already known to exist, or
// unconditionally if this adapter never reports visible channel state
// (CapVisibleStateOnly unset — a plain S2S link sees every channel that
// exists, so "known to exist" and "exists" are the same thing there;
// only Clientbot-style adapters need the existence check since they can
// only see what they've already joined).
func (b *Bot) AddPersistentChannel(namespace, channel string) {
	b.mu.Lock()
	set, ok := b.persistent[channel]
	if !ok {
		set = make(map[string]bool)
		b.persistent[channel] = set
	}
	set[namespace] = true
	b.mu.Unlock()

	if b.shouldJoin(channel) {
		b.join(channel)
	}
}

// RemovePersistentChannel unpins namespace from channel; once no
// namespace still pins it, the bot parts (spec §4.5: "parts when no
// namespace still pins the channel").
func (b *Bot) RemovePersistentChannel(namespace, channel string) {
	b.mu.Lock()
	set, ok := b.persistent[channel]
	empty := false
	if ok {
		delete(set, namespace)
		empty = len(set) == 0
		if empty {
			delete(b.persistent, channel)
		}
	}
	b.mu.Unlock()

	if empty {
		_ = b.Adapter.Part(b.uid, channel, "")
	}
}

func (b *Bot) isPinned(channel string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set, ok := b.persistent[channel]
	return ok && len(set) > 0
}

// shouldJoin decides whether a pinned channel can be joined right now:
// unconditionally for any adapter that doesn't need to discover channel
// existence first, otherwise only once NetworkState actually has it.
func (b *Bot) shouldJoin(channel string) bool {
	if !b.Adapter.Capabilities().Has(proto.CapVisibleStateOnly) {
		return true
	}
	_, err := b.Adapter.State().Channels.Lookup(channel)
	return err == nil
}

func (b *Bot) join(channel string) {
	if b.uid == "" {
		return
	}
	_ = b.Adapter.Join(b.uid, channel)
}

// onKick rejoins a pinned channel the bot was kicked from (spec §4.5:
// "rejoins on kick/kill").
func (b *Bot) onKick(evt *ircevent.HookEvent) hooks.Outcome {
	target := evt.GetString("target")
	channel := evt.GetString("channel")
	if target != b.uid || channel == "" {
		return hooks.Continue
	}
	if b.isPinned(channel) {
		b.join(channel)
	}
	return hooks.Continue
}

// onKill respawns the bot and rejoins every pinned channel if it was the
// one killed.
func (b *Bot) onKill(evt *ircevent.HookEvent) hooks.Outcome {
	if evt.GetString("target") != b.uid {
		return hooks.Continue
	}
	if err := b.Spawn(); err != nil {
		return hooks.Continue
	}

	b.mu.RLock()
	channels := make([]string, 0, len(b.persistent))
	for ch := range b.persistent {
		channels = append(channels, ch)
	}
	b.mu.RUnlock()

	for _, ch := range channels {
		if b.shouldJoin(ch) {
			b.join(ch)
		}
	}
	return hooks.Continue
}

// onEndburst re-joins any pinned channel that has since been (re)created
// on an adapter that required existence to be observed first (spec
// §4.5: "re-joins automatically on channel re-creation").
func (b *Bot) onEndburst(evt *ircevent.HookEvent) hooks.Outcome {
	b.mu.RLock()
	channels := make([]string, 0, len(b.persistent))
	for ch := range b.persistent {
		channels = append(channels, ch)
	}
	b.mu.RUnlock()

	for _, ch := range channels {
		if b.shouldJoin(ch) {
			b.join(ch)
		}
	}
	return hooks.Continue
}
