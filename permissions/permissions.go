// Package permissions implements the embedded permission store (spec
// §4.6): a mask→permission-glob map checked against a source UID's
// account/oper/hostmask/channel-membership state, plus the extended-
// target grammar ($account, $ircop, $server, $channel, $pylinkacc,
// $network, $and:(...), leading "!" negation) spec §4.1/§4.6 describe.
// Grounded on ircmode.MatchHost for the plain-hostmask leaf case (that
// package's doc comment explicitly defers extended targets to this
// package) and on girc's nothing-in-particular for the rest, since girc
// is a C2S client with no concept of a permission store; the map/glob
// shape instead follows the same "sorted rule list, first match wins"
// idiom ircmode.MatchText's caller-folds-case convention already
// establishes elsewhere in this module.
package permissions

import (
	"sort"
	"strings"
	"sync"

	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/state"
)

// Subject is the minimal view of a permission check's target: a single
// user on a single network, looked up once by the caller (a command
// handler or the Relay engine) rather than re-resolved here.
type Subject struct {
	Network string
	User    *state.User
	Net     *state.NetworkState
}

// Store is a process-wide mask→permission-glob map (spec §4.6). Safe
// for concurrent use; mutated only via Grant/Revoke/Load, read via
// Check, mirroring the world package's RW-locked registries.
type Store struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	mask  string
	perms []string // glob patterns; a rule grants every permission node matching one of these.
}

func New() *Store {
	return &Store{}
}

// Grant adds perms to mask's rule, creating the rule if it doesn't
// already exist. mask may be a plain hostmask or an extended target.
func (s *Store) Grant(mask string, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].mask == mask {
			s.rules[i].perms = append(s.rules[i].perms, perms...)
			return
		}
	}
	s.rules = append(s.rules, rule{mask: mask, perms: append([]string(nil), perms...)})
}

// Revoke removes mask's rule entirely.
func (s *Store) Revoke(mask string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rules {
		if r.mask == mask {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return
		}
	}
}

// Load replaces the entire rule set in one call, used when the config
// layer hands over a freshly-parsed `permissions:` block on REHASH.
func (s *Store) Load(masks map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = s.rules[:0]
	keys := make([]string, 0, len(masks))
	for mask := range masks {
		keys = append(keys, mask)
	}
	sort.Strings(keys) // deterministic rule order across rehashes.
	for _, mask := range keys {
		s.rules = append(s.rules, rule{mask: mask, perms: masks[mask]})
	}
}

// Check reports whether subj holds a permission matching node (a
// dotted glob, e.g. "relay.create" or "opercmds.*") under any rule in
// the store.
func (s *Store) Check(subj Subject, node string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rules {
		if !matchTarget(r.mask, subj) {
			continue
		}
		for _, glob := range r.perms {
			if ircmode.MatchText(glob, node) {
				return true
			}
		}
	}
	return false
}

// matchTarget resolves a single mask (plain hostmask or extended
// target) against subj, deferring to ircmode.MatchHost for the leaf
// hostmask case and parseExtTarget for everything prefixed with "$".
func matchTarget(mask string, subj Subject) bool {
	negate := false
	if strings.HasPrefix(mask, "!") {
		negate = true
		mask = mask[1:]
	}

	var result bool
	if strings.HasPrefix(mask, "$") {
		result = matchExtTarget(mask, subj)
	} else {
		result = ircmode.MatchHost(mask, matchUserOf(subj))
	}

	if negate {
		return !result
	}
	return result
}

func matchUserOf(subj Subject) ircmode.MatchUser {
	if subj.User == nil {
		return ircmode.MatchUser{}
	}
	return ircmode.MatchUser{Nick: subj.User.Nick, User: subj.User.Ident, Host: subj.User.Host}
}
