package proto

import (
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

// TSStateMachine implements the channel-TS reconciliation rule shared by
// every TS-aware adapter (spec §4.3's "TS reconciliation" paragraph and
// the testable property in §8: "after update_ts(chan, their_ts, M),
// chan.ts = min(chan.ts, their_ts)"). Composed into each adapter rather
// than duplicated, per design note §9.
type TSStateMachine struct {
	Spec ircmode.ModeSpec
}

// UpdateTS reconciles a channel's TS against a peer's claimed their_ts
// and their_modes (already-ApplyModes'd changes, i.e. the peer's current
// mode set expressed as a ModeChange list with Add=true), returning the
// set of local mode changes to apply to converge:
//
//   - their_ts < our_ts: adopt their TS, wipe our modes + prefix
//     assignments, apply their modes wholesale.
//   - their_ts == our_ts: merge both mode sets (their modes layered on
//     top of ours, as additional ApplyModes-style adds).
//   - their_ts > our_ts: drop their modes entirely, keep ours.
func (m *TSStateMachine) UpdateTS(ch *state.Channel, theirTS int64, theirModes []ircmode.ModeChange) []ircmode.ModeChange {
	switch {
	case theirTS < ch.CreationTS:
		ch.CreationTS = theirTS
		ch.Modes = ircmode.NewModeState()
		return ircmode.ApplyModes(ch.Modes, m.Spec, theirModes)
	case theirTS == ch.CreationTS:
		return ircmode.ApplyModes(ch.Modes, m.Spec, theirModes)
	default:
		return nil
	}
}

// ValidChannelTS reports whether ts is an acceptable non-virtual channel
// creation TS, per spec §3's invariant ("creation TS > 750000; lower
// values are rejected as bogus").
func ValidChannelTS(ts int64) bool {
	return ts > state.MinChannelTS
}
