package state

import (
	cmap "github.com/orcaman/concurrent-map"

	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/perr"
)

// MinChannelTS is the smallest creation TS a non-virtual channel may
// have (spec §3 invariant: "Each non-virtual channel has creation TS >
// 750000; lower values are rejected as bogus").
const MinChannelTS = 750000

// Channel is the per-network view of a channel (spec §3's Channel
// entity). Grounded on girc's Channel struct (state.go) for the
// Name/Topic/member-tracking shape, with Modes replaced by
// ircmode.ModeState (which already separates B/C/D settings, type-A
// lists, and PREFIX-rank membership the way spec §3 itemizes them)
// instead of girc's single CModes value, since a relay-aware channel
// needs the list/ban data girc never tracks.
type Channel struct {
	Name        string
	CreationTS  int64
	Topic       string
	TopicSet    bool
	TopicSetter string
	Modes       *ircmode.ModeState
	Members     map[string]struct{}
}

func newChannel(name string) *Channel {
	return &Channel{
		Name:    name,
		Modes:   ircmode.NewModeState(),
		Members: make(map[string]struct{}),
	}
}

// Ranked returns the UIDs whose prefix modes include rank (a prefix mode
// letter such as 'o'), in no particular order.
func (c *Channel) Ranked(rank byte) []string {
	var out []string
	for uid, prefixes := range c.Modes.Prefixes {
		for i := 0; i < len(prefixes); i++ {
			if prefixes[i] == rank {
				out = append(out, uid)
				break
			}
		}
	}
	return out
}

// ChannelMapping is a **default-materializing** map paired with strict
// lookups, per spec §4.2: protocol adapters call Materialize, which
// creates and stores an empty Channel on first reference; plugins call
// Lookup, which returns perr.NotFound for a channel that was never
// joined.
type ChannelMapping struct {
	m       cmap.ConcurrentMap
	casemap ircmode.Casemap
}

func NewChannelMapping(cm ircmode.Casemap) *ChannelMapping {
	return &ChannelMapping{m: cmap.New(), casemap: cm}
}

func (m *ChannelMapping) key(name string) string {
	return ircmode.CaseFold(name, m.casemap)
}

// Materialize returns the Channel for name, creating and storing an
// empty one if this is the first reference (spec §4.2: "read returns an
// empty Channel whose name is the key").
func (m *ChannelMapping) Materialize(name string) *Channel {
	key := m.key(name)
	if v, ok := m.m.Get(key); ok {
		return v.(*Channel)
	}
	ch := newChannel(name)
	m.m.SetIfAbsent(key, ch)
	v, _ := m.m.Get(key)
	return v.(*Channel)
}

// Lookup returns the channel for name, or perr.NotFound if it was never
// materialized (spec §4.2: "paired with a strict map exposed to
// plugins; missing channel ⇒ fails with NotFound").
func (m *ChannelMapping) Lookup(name string) (*Channel, error) {
	v, ok := m.m.Get(m.key(name))
	if !ok {
		return nil, &perr.NotFound{Kind: "channel", ID: name}
	}
	return v.(*Channel), nil
}

// Remove deletes name from the map unconditionally. NetworkState.PartChannel
// calls it once the member set empties and the channel is not persistent
// (spec §3's Lifecycles paragraph).
func (m *ChannelMapping) Remove(name string) { m.m.Remove(m.key(name)) }

func (m *ChannelMapping) Len() int { return m.m.Count() }

func (m *ChannelMapping) Each(fn func(*Channel)) {
	for item := range m.m.IterBuffered() {
		fn(item.Val.(*Channel))
	}
}
