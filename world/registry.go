// Package world holds the process-wide registries spec §9's design
// notes call for: "the source has process-wide world.networks,
// world.plugins, world.services. Keep them but wrap in an accessor with
// explicit init/teardown; forbid import-time side effects." Grounded on
// the sync.RWMutex-guarded registry idiom girc's own Caller (caller.go)
// and Cap state (cap.go) already use for concurrent read-heavy,
// write-rare maps — generalized here from "one client's callback table"
// to three process-wide tables, each behind an explicit constructor
// rather than a package-level var initialized at import time.
package world

import (
	"sort"
	"sync"

	"github.com/pylink/pylink/network"
	"github.com/pylink/pylink/proto"
	"github.com/pylink/pylink/state"
)

// Network bundles one linked network's driver, adapter, and state under
// the name plugins/commands refer to it by.
type Network struct {
	Name    string
	Driver  *network.Driver
	Adapter proto.Adapter
	State   *state.NetworkState
}

// Plugin is the minimal lifecycle contract a plugin registers under
// (spec.md's Non-goals exclude building the plugins themselves —
// Automode, Antispam, Changehost, Opercmds, Stats — but the registry
// hosting them is in scope).
type Plugin interface {
	Name() string
	Init(*Registry) error
	Teardown()
}

// Registry is the process-wide container for world.networks,
// world.plugins, and world.services. Callers construct exactly one via
// New (never a package-level var), per spec §9's "forbid import-time
// side effects".
type Registry struct {
	netMu sync.RWMutex
	nets  map[string]*Network

	pluginMu sync.RWMutex
	plugins  map[string]Plugin

	svcMu sync.RWMutex
	// services maps a service-bot name (e.g. "pylink", "relay") to the
	// set of networks it has been spawned on, so a lookup can answer
	// "does relay have a bot on net X" without reaching into services
	// directly and creating an import cycle between world and services.
	services map[string]map[string]bool
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		nets:     make(map[string]*Network),
		plugins:  make(map[string]Plugin),
		services: make(map[string]map[string]bool),
	}
}

// RegisterNetwork adds net to the registry under net.Name, replacing
// any existing entry of the same name.
func (r *Registry) RegisterNetwork(net *Network) {
	r.netMu.Lock()
	defer r.netMu.Unlock()
	r.nets[net.Name] = net
}

// UnregisterNetwork removes name from the registry; callers are
// responsible for having already torn down the Driver (Close/Run
// return) before calling this, since Registry itself owns no
// connection lifecycle.
func (r *Registry) UnregisterNetwork(name string) {
	r.netMu.Lock()
	defer r.netMu.Unlock()
	delete(r.nets, name)
}

// Network looks up a registered network by name.
func (r *Registry) Network(name string) (*Network, bool) {
	r.netMu.RLock()
	defer r.netMu.RUnlock()
	n, ok := r.nets[name]
	return n, ok
}

// Networks returns every registered network name, sorted for
// deterministic iteration (e.g. REHASH's three-way diff, STATS output).
func (r *Registry) Networks() []string {
	r.netMu.RLock()
	defer r.netMu.RUnlock()
	out := make([]string, 0, len(r.nets))
	for name := range r.nets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RegisterPlugin calls p.Init and, on success, adds it to the registry
// under p.Name(). A plugin that fails to initialize is never
// registered, so Teardown is only ever called on plugins that actually
// started.
func (r *Registry) RegisterPlugin(p Plugin) error {
	if err := p.Init(r); err != nil {
		return err
	}
	r.pluginMu.Lock()
	defer r.pluginMu.Unlock()
	r.plugins[p.Name()] = p
	return nil
}

// UnregisterPlugin calls Teardown on the named plugin, if registered,
// and removes it from the registry.
func (r *Registry) UnregisterPlugin(name string) {
	r.pluginMu.Lock()
	p, ok := r.plugins[name]
	delete(r.plugins, name)
	r.pluginMu.Unlock()

	if ok {
		p.Teardown()
	}
}

// Plugins returns every registered plugin name, sorted.
func (r *Registry) Plugins() []string {
	r.pluginMu.RLock()
	defer r.pluginMu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RegisterService records that service has a bot spawned on network.
func (r *Registry) RegisterService(service, network string) {
	r.svcMu.Lock()
	defer r.svcMu.Unlock()
	set, ok := r.services[service]
	if !ok {
		set = make(map[string]bool)
		r.services[service] = set
	}
	set[network] = true
}

// UnregisterService forgets service's presence on network.
func (r *Registry) UnregisterService(service, network string) {
	r.svcMu.Lock()
	defer r.svcMu.Unlock()
	if set, ok := r.services[service]; ok {
		delete(set, network)
		if len(set) == 0 {
			delete(r.services, service)
		}
	}
}

// ServiceNetworks returns every network service currently has a bot on,
// sorted.
func (r *Registry) ServiceNetworks(service string) []string {
	r.svcMu.RLock()
	defer r.svcMu.RUnlock()
	set := r.services[service]
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Services returns every registered service-bot name, sorted.
func (r *Registry) Services() []string {
	r.svcMu.RLock()
	defer r.svcMu.RUnlock()
	out := make([]string, 0, len(r.services))
	for name := range r.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
