// Package config loads pylink.yml into the shapes network, permissions,
// services, and relay need. spec.md §1 treats the loader itself as an
// external collaborator consumed through documented interfaces; this
// package is that collaborator — the rest of the module never imports
// it directly, only cmd/pylinkd does, keeping every other package
// decodable-shape-only per SPEC_FULL.md's AMBIENT STACK note.
//
// Grounded on gopkg.in/yaml.v3 (already pulled in by relay.DB's
// snapshot format) for decoding, matching this module's one
// serialization format rather than introducing a second.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Server is one `servers:` entry: everything network.Config needs plus
// the protocol-adapter selection and S2S identity fields spec §4.3's
// capability table implies every linked network must supply.
type Server struct {
	Protocol string `yaml:"protocol"` // ts6, inspircd, unreal, ngircd, p10, clientbot

	Server string `yaml:"server"`
	Port   int    `yaml:"port"`
	Bind   string `yaml:"bind"`

	SSL         bool   `yaml:"ssl"`
	VerifyCert  bool   `yaml:"verify_cert"`
	CertHashPin string `yaml:"cert_hash_pin"`

	// SendPass/RecvPass are the S2S link passwords (PASS sent/expected).
	// Clientbot instead uses SendPass as the server PASS it offers.
	SendPass string `yaml:"send_password"`
	RecvPass string `yaml:"recv_password"`

	// Hostname/SID identify the virtual server this process bursts as
	// an S2S adapter; unused by clientbot.
	Hostname string `yaml:"hostname"`
	SID      string `yaml:"sid"`

	// Nick/Ident/Realname are clientbot's own client identity; unused
	// by S2S adapters (their identity is Hostname/SID).
	Nick     string `yaml:"nick"`
	Ident    string `yaml:"ident"`
	Realname string `yaml:"realname"`

	AutoconnectSeconds    int `yaml:"autoconnect"`
	MaxAutoconnectSeconds int `yaml:"max_autoconnect"`
	PingFreqSeconds       int `yaml:"ping_freq"`
	PingTimeoutSeconds    int `yaml:"ping_timeout"`
}

func (s Server) Autoconnect() time.Duration {
	return time.Duration(s.AutoconnectSeconds) * time.Second
}

func (s Server) MaxAutoconnect() time.Duration {
	return time.Duration(s.MaxAutoconnectSeconds) * time.Second
}

func (s Server) PingFreq() time.Duration {
	return time.Duration(s.PingFreqSeconds) * time.Second
}

func (s Server) PingTimeout() time.Duration {
	return time.Duration(s.PingTimeoutSeconds) * time.Second
}

// Bot is one `login.bots:` entry: the service-bot identity spec §4.5
// describes as "a nick/ident/host/realname per network (defaults
// overridable per-net)" — Default holds the fallback, PerNetwork holds
// the overrides keyed by network name.
type Bot struct {
	Default    BotIdentity            `yaml:"default"`
	PerNetwork map[string]BotIdentity `yaml:"per_network,omitempty"`
}

type BotIdentity struct {
	Nick                 string `yaml:"nick"`
	Ident                string `yaml:"ident"`
	Host                 string `yaml:"host"`
	Realname             string `yaml:"realname"`
	CommandPrefix        string `yaml:"command_prefix"`
	PreferPrivateReplies bool   `yaml:"prefer_private_replies"`
}

// ForNetwork resolves this bot's identity on network, falling back to
// Default for any field the per-network override leaves unset.
func (b Bot) ForNetwork(network string) BotIdentity {
	id := b.Default
	override, ok := b.PerNetwork[network]
	if !ok {
		return id
	}
	if override.Nick != "" {
		id.Nick = override.Nick
	}
	if override.Ident != "" {
		id.Ident = override.Ident
	}
	if override.Host != "" {
		id.Host = override.Host
	}
	if override.Realname != "" {
		id.Realname = override.Realname
	}
	if override.CommandPrefix != "" {
		id.CommandPrefix = override.CommandPrefix
	}
	if override.PreferPrivateReplies {
		id.PreferPrivateReplies = true
	}
	return id
}

// Relay holds the `relay:` block: the on-disk DB location plus the
// IP/kill share pools spec §4.7 describes.
type Relay struct {
	DBPath              string              `yaml:"db_path"`
	SaveDebounceSeconds int                 `yaml:"save_debounce"`
	IPSharePool         map[string][]string `yaml:"ip_share_pool,omitempty"`
	KillSharePool       map[string][]string `yaml:"kill_share_pool,omitempty"`
}

func (r Relay) SaveDebounce() time.Duration {
	return time.Duration(r.SaveDebounceSeconds) * time.Second
}

// Root is the top-level pylink.yml document.
type Root struct {
	Servers map[string]Server `yaml:"servers"`
	Login   struct {
		Bots map[string]Bot `yaml:"bots"`
	} `yaml:"login"`
	Permissions map[string][]string `yaml:"permissions,omitempty"`
	Relay       Relay               `yaml:"relay"`

	LogLevel string `yaml:"log_level"`
	PIDFile  string `yaml:"pid_file"`
}

// Load reads and decodes path, defaulting PIDFile and Relay.DBPath and
// rejecting any server block that lacks a server address or protocol.
// Per-server connection fields (port, ping timings, autoconnect) are not
// defaulted here; zero values are filled in later by
// network.Config.normalize when the Driver runs.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: reading file")
	}

	var root Root
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "config: parsing yaml")
	}

	if root.PIDFile == "" {
		root.PIDFile = "pylink.pid"
	}
	if root.Relay.DBPath == "" {
		root.Relay.DBPath = "pylink-relay.yml"
	}

	for name, srv := range root.Servers {
		if srv.Server == "" {
			return nil, errors.Errorf("config: servers.%s: missing server address", name)
		}
		if srv.Protocol == "" {
			return nil, errors.Errorf("config: servers.%s: missing protocol", name)
		}
		root.Servers[name] = srv
	}

	return &root, nil
}

// Diff computes the three-way split REHASH needs (spec §6.4): network
// blocks present only in next, present only in cur (removed), and
// present in both but with differing content (changed, compared by
// value equality of the decoded Server struct).
func Diff(cur, next map[string]Server) (added, removed, changed []string) {
	for name := range next {
		if _, ok := cur[name]; !ok {
			added = append(added, name)
		}
	}
	for name, old := range cur {
		nw, ok := next[name]
		if !ok {
			removed = append(removed, name)
			continue
		}
		if old != nw {
			changed = append(changed, name)
		}
	}
	return added, removed, changed
}
