package relay

// CanOverride reports whether a MODE/KICK originating on sourceNetwork
// is allowed to take effect against entry's channel without being
// reversed (spec §4.7: "modes set by the home (or a CLAIM-listed
// network) propagate to all leaves after translation"; "kick of a
// puppet by a user lacking CLAIM rights is reversed").
func (e *ChannelEntry) CanOverride(sourceNetwork string) bool {
	if sourceNetwork == e.Home.Network {
		return true
	}
	return e.HasClaim(sourceNetwork)
}

// CanLink reports whether network may LINK to this channel, per the
// entry's linkacl posture (spec §6.3: "linkacl #chan list|allow
// net|deny net|whitelist #chan true|false").
func (e *ChannelEntry) CanLink(network string) bool {
	listed := false
	for _, n := range e.LinkACL.Entries {
		if n == network {
			listed = true
			break
		}
	}
	switch e.LinkACL.Mode {
	case LinkACLWhitelist:
		return listed
	default: // LinkACLBlacklist
		return !listed
	}
}

// KillPolicy enumerates the three dispositions spec §4.7's kill-
// handling paragraph lists for a KILL targeting a puppet.
type KillPolicy int

const (
	// KillRejectSilent: the kill originated from a server, not a user
	// with standing to act (spec: "if originator is a server, silently
	// reject").
	KillRejectSilent KillPolicy = iota
	// KillPropagate: both networks share a kill_share_pool — propagate
	// as a true KILL on the home network.
	KillPropagate
	// KillDegradeToKick: neither of the above. onKill rejoins the puppet
	// to every channel it shares with the home; no KICK is forwarded.
	KillDegradeToKick
)

// EvaluateKill decides the disposition for a KILL against a puppet
// whose home network is homeNetwork, originating on originNetwork, per
// spec §4.7's three-way kill policy. originIsServer is true when the
// KILL's source resolved to a server SID rather than a user UID;
// sharesKillPool reports whether homeNetwork and originNetwork belong
// to a common kill_share_pool.
func EvaluateKill(originIsServer, sharesKillPool bool) KillPolicy {
	if originIsServer {
		return KillRejectSilent
	}
	if sharesKillPool {
		return KillPropagate
	}
	return KillDegradeToKick
}
