package relay

import "testing"

func TestCanOverrideHomeAlwaysAllowed(t *testing.T) {
	e := &ChannelEntry{Home: NetChan{Network: "home", Channel: "#c"}, ClaimNets: []string{"ally"}}
	if !e.CanOverride("home") {
		t.Fatal("the home network must always be able to override")
	}
}

func TestCanOverrideRequiresClaimMembership(t *testing.T) {
	e := &ChannelEntry{Home: NetChan{Network: "home", Channel: "#c"}, ClaimNets: []string{"ally"}}
	if !e.CanOverride("ally") {
		t.Fatal("a claim-listed network should be able to override")
	}
	if e.CanOverride("stranger") {
		t.Fatal("a network outside the claim list should not override")
	}
}

func TestCanOverrideUnclaimedAllowsAnyone(t *testing.T) {
	e := &ChannelEntry{Home: NetChan{Network: "home", Channel: "#c"}}
	if !e.CanOverride("whoever") {
		t.Fatal("an unclaimed channel should allow any network to override")
	}
}

func TestCanLinkBlacklistMode(t *testing.T) {
	e := &ChannelEntry{}
	e.LinkACL.Mode = LinkACLBlacklist
	e.LinkACL.Entries = []string{"blocked"}
	if e.CanLink("blocked") {
		t.Fatal("blacklisted network should not be able to link")
	}
	if !e.CanLink("anyoneelse") {
		t.Fatal("blacklist mode should allow unlisted networks")
	}
}

func TestCanLinkWhitelistMode(t *testing.T) {
	e := &ChannelEntry{}
	e.LinkACL.Mode = LinkACLWhitelist
	e.LinkACL.Entries = []string{"allowed"}
	if !e.CanLink("allowed") {
		t.Fatal("whitelisted network should be able to link")
	}
	if e.CanLink("someoneelse") {
		t.Fatal("whitelist mode should reject unlisted networks")
	}
}

func TestEvaluateKillServerOriginAlwaysRejected(t *testing.T) {
	if got := EvaluateKill(true, true); got != KillRejectSilent {
		t.Fatalf("expected KillRejectSilent, got %v", got)
	}
	if got := EvaluateKill(true, false); got != KillRejectSilent {
		t.Fatalf("expected KillRejectSilent, got %v", got)
	}
}

func TestEvaluateKillSharedPoolPropagates(t *testing.T) {
	if got := EvaluateKill(false, true); got != KillPropagate {
		t.Fatalf("expected KillPropagate, got %v", got)
	}
}

func TestEvaluateKillDegradesWithoutSharedPool(t *testing.T) {
	if got := EvaluateKill(false, false); got != KillDegradeToKick {
		t.Fatalf("expected KillDegradeToKick, got %v", got)
	}
}
