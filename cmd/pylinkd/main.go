// Command pylinkd is the single-binary CLI launcher (spec §6.5): it
// loads a config, dials every configured network through the matching
// proto.Adapter, spawns the configured service bots, starts the Relay
// engine, and then serves until a signal or a --shutdown/--restart
// request tells it to stop. Flag/signal handling itself has no girc
// equivalent (girc is a library, not a daemon) so the flag table is
// grounded directly on spec.md §6.5 and built with
// github.com/jessevdk/go-flags, already present in the teacher's
// go.mod for exactly this purpose.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/pylink/pylink/config"
	"github.com/pylink/pylink/hooks"
	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/network"
	"github.com/pylink/pylink/permissions"
	"github.com/pylink/pylink/proto"
	"github.com/pylink/pylink/proto/clientbot"
	"github.com/pylink/pylink/proto/inspircd"
	"github.com/pylink/pylink/proto/ngircd"
	"github.com/pylink/pylink/proto/p10"
	"github.com/pylink/pylink/proto/ts6"
	"github.com/pylink/pylink/proto/unreal"
	"github.com/pylink/pylink/relay"
	"github.com/pylink/pylink/services"
	"github.com/pylink/pylink/state"
	"github.com/pylink/pylink/world"
)

const versionString = "pylinkd 0.1.0 (go)"

// exit codes per spec §6.5.
const (
	exitClean     = 0
	exitConfigErr = 1
	exitStartup   = 2
)

type options struct {
	Config     string `short:"c" long:"config" description:"path to the YAML config file" default:"pylink.yml"`
	Daemon     bool   `short:"d" long:"daemon" description:"detach into the background after a clean start"`
	CheckPID   bool   `long:"check-pid" description:"refuse to start if the PID file names a live process (default)"`
	NoCheckPID bool   `long:"no-check-pid" description:"skip the running-process PID check"`
	Rehash     bool   `long:"rehash" description:"signal a running instance to reload its config"`
	Shutdown   bool   `long:"shutdown" description:"signal a running instance to exit cleanly"`
	Restart    bool   `long:"restart" description:"signal a running instance to exit, then launch a new one"`
	Version    bool   `long:"version" description:"print the version and exit"`
	Trace      bool   `long:"trace" description:"enable debug-level logging"`

	// DaemonChild is set on the re-exec'd child process spawned by
	// --daemon; it is not part of the documented flag table and is
	// stripped before any exec.Command re-invocation.
	DaemonChild bool `long:"daemon-child" hidden:"true"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(exitClean)
		}
		os.Exit(exitConfigErr)
	}

	os.Exit(run(&opts))
}

func run(opts *options) int {
	if opts.Version {
		fmt.Println(versionString)
		return exitClean
	}

	root, err := config.Load(opts.Config)
	if err != nil {
		logrus.WithError(err).Error("failed to load config")
		return exitConfigErr
	}

	if opts.Rehash || opts.Shutdown || opts.Restart {
		return signalRunning(opts, root)
	}

	configureLogging(opts, root)

	checkPID := opts.CheckPID || !opts.NoCheckPID
	if checkPID {
		if pid, ok := readLivePID(root.PIDFile); ok {
			logrus.Errorf("pylinkd already running as pid %d (remove %s or pass --no-check-pid)", pid, root.PIDFile)
			return exitStartup
		}
	}

	if opts.Daemon && !opts.DaemonChild {
		if err := daemonize(opts); err != nil {
			logrus.WithError(err).Error("failed to daemonize")
			return exitStartup
		}
		return exitClean
	}

	if err := writePIDFile(root.PIDFile); err != nil {
		logrus.WithError(err).Warn("failed to write pid file")
	}
	defer os.Remove(root.PIDFile)

	d := newDaemon(opts.Config)
	if err := d.start(root); err != nil {
		logrus.WithError(err).Error("startup failure")
		return exitStartup
	}
	logrus.Infof("pylinkd ready: %d network(s) linked", len(root.Servers))

	return d.serve()
}

// signalRunning implements --rehash/--shutdown/--restart: read the PID
// file of an already-running instance and deliver the matching signal,
// per spec §6.5's "SIGHUP/SIGUSR1 -> rehash, SIGTERM -> shutdown".
func signalRunning(opts *options, root *config.Root) int {
	pid, ok := readLivePID(root.PIDFile)
	if !ok {
		fmt.Fprintf(os.Stderr, "pylinkd: no running instance found via %s\n", root.PIDFile)
		return exitStartup
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pylinkd: %v\n", err)
		return exitStartup
	}

	switch {
	case opts.Rehash:
		return sendSignal(proc, syscall.SIGHUP)
	case opts.Shutdown:
		return sendSignal(proc, syscall.SIGTERM)
	case opts.Restart:
		if code := sendSignal(proc, syscall.SIGTERM); code != exitClean {
			return code
		}
		waitForPIDGone(root.PIDFile, 10*time.Second)
		args := make([]string, 0, len(os.Args)-1)
		for _, a := range os.Args[1:] {
			if a != "--restart" {
				args = append(args, a)
			}
		}
		cmd := exec.Command(os.Args[0], args...)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		return exitCode(cmd.Start())
	}
	return exitClean
}

func sendSignal(proc *os.Process, sig syscall.Signal) int {
	if err := proc.Signal(sig); err != nil {
		fmt.Fprintf(os.Stderr, "pylinkd: %v\n", err)
		return exitStartup
	}
	return exitClean
}

func exitCode(err error) int {
	if err != nil {
		return exitStartup
	}
	return exitClean
}

func waitForPIDGone(path string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, ok := readLivePID(path); !ok {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func readLivePID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	// On Unix, FindProcess always succeeds; Signal(0) is the actual
	// liveness probe.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// daemonize re-executes the current binary with --daemon-child set and
// its standard streams detached, then exits the foreground process once
// the child has had a chance to start. Grounded on the double-fork-free
// "re-exec detached" idiom common to Go daemons, since nothing in the
// retrieved pack (all library code, no CLI daemons) supplies a
// daemonization library for this process to adopt instead.
func daemonize(opts *options) error {
	args := append([]string(nil), os.Args[1:]...)
	args = append(args, "--daemon-child")

	cmd := exec.Command(os.Args[0], args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devnull.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func configureLogging(opts *options, root *config.Root) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level := logrus.InfoLevel
	if root.LogLevel != "" {
		if parsed, err := logrus.ParseLevel(root.LogLevel); err == nil {
			level = parsed
		}
	}
	if opts.Trace {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
}

// daemon holds every live piece of process state a rehash needs to
// diff against: the registries, the hook bus, the permission store,
// the Relay engine/DB, and one network.Driver plus one *services.Bot
// set per linked network.
type daemon struct {
	cfgPath string

	mu      sync.Mutex
	cur     *config.Root
	world   *world.Registry
	bus     *hooks.Bus
	perms   *permissions.Store
	relayDB *relay.DB
	relay   *relay.Engine
	drivers map[string]*network.Driver
	bots    map[string]map[string]*services.Bot // network -> bot name -> Bot
}

func newDaemon(cfgPath string) *daemon {
	return &daemon{
		cfgPath: cfgPath,
		bus:     hooks.New(nil),
		perms:   permissions.New(),
		drivers: make(map[string]*network.Driver),
		bots:    make(map[string]map[string]*services.Bot),
	}
}

func (d *daemon) start(root *config.Root) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	db, err := relay.NewDB(root.Relay.DBPath, root.Relay.SaveDebounce())
	if err != nil {
		return err
	}
	d.relayDB = db
	db.StartDebounceWriter()
	d.world = world.New()
	d.relay = relay.NewEngine(db, d.world, nil)
	d.relay.IPSharePool = expandPools(root.Relay.IPSharePool)
	d.relay.KillSharePool = expandPools(root.Relay.KillSharePool)
	d.relay.Subscribe(d.bus)

	d.perms.Load(root.Permissions)
	d.cur = root

	for name, srv := range root.Servers {
		if err := d.addNetworkLocked(name, srv, root); err != nil {
			return err
		}
	}
	return nil
}

func expandPools(cfg map[string][]string) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(cfg))
	for pool, members := range cfg {
		set := make(map[string]bool, len(members))
		for _, m := range members {
			set[m] = true
		}
		out[pool] = set
	}
	return out
}

// addNetworkLocked dials one configured network: it builds the
// NetworkState, picks the proto.Adapter for the configured protocol,
// wires a network.Driver around it, registers it with World, and
// spawns every configured service bot that the adapter's capabilities
// allow (Clientbot's visible-state-only connection can't host a
// pseudo-client of its own).
func (d *daemon) addNetworkLocked(name string, srv config.Server, root *config.Root) error {
	isupport := state.ISupport{Casemap: ircmode.CasemapRFC1459}
	net := state.New(name, srv.SID, isupport, nil)

	driver := &network.Driver{
		Config: network.Config{
			NetworkName:    name,
			Server:         srv.Server,
			Port:           srv.Port,
			Bind:           srv.Bind,
			SSL:            srv.SSL,
			VerifyCert:     srv.VerifyCert,
			CertHashPin:    srv.CertHashPin,
			ServerPass:     srv.SendPass,
			Autoconnect:    srv.Autoconnect(),
			MaxAutoconnect: srv.MaxAutoconnect(),
			PingFreq:       srv.PingFreq(),
			PingTimeout:    srv.PingTimeout(),
		},
	}

	emit := func(evt *ircevent.HookEvent) { d.bus.Dispatch(evt) }

	adapter, burst, err := buildAdapter(srv, name, net, driver, emit)
	if err != nil {
		return err
	}

	driver.Adapter = adapter
	driver.Dispatch = adapterDispatch(adapter)
	driver.Burst = burst
	driver.OnStateChange = func(s proto.ConnState) {
		net.Log.Infof("%s: connection state -> %s", name, s)
	}

	d.world.RegisterNetwork(&world.Network{Name: name, Driver: driver, Adapter: adapter, State: net})
	d.drivers[name] = driver

	go func() {
		if err := driver.Run(); err != nil {
			net.Log.WithError(err).Error("network connection ended")
		}
	}()

	if !adapter.Capabilities().Has(proto.CapVisibleStateOnly) {
		d.spawnBotsLocked(name, adapter, root)
	}

	return nil
}

// dispatcher is the narrow Dispatch(evt) surface every proto adapter
// implements, identical to network.Dispatcher; adapterDispatch
// type-asserts the proto.Adapter returned by buildAdapter against it.
type dispatcher interface {
	Dispatch(evt *ircevent.Event)
}

func adapterDispatch(a proto.Adapter) func(*ircevent.Event) {
	d, ok := a.(dispatcher)
	if !ok {
		return nil
	}
	return d.Dispatch
}

// buildAdapter constructs the proto.Adapter matching srv.Protocol and
// returns the Driver.Burst closure for it, since SendBurst's signature
// varies (Clientbot needs a nick/ident/realname triple; every S2S
// adapter takes none) per proto/clientbot's documented interface seam.
func buildAdapter(srv config.Server, name string, net *state.NetworkState, transport clientbot.Transport, emit func(*ircevent.HookEvent)) (proto.Adapter, func() error, error) {
	switch strings.ToLower(srv.Protocol) {
	case "ts6":
		a := ts6.New(name, net, transport, emit)
		a.RecvPass, a.SendPass = srv.RecvPass, srv.SendPass
		return a, a.SendBurst, nil
	case "inspircd":
		a := inspircd.New(name, net, transport, emit)
		return a, a.SendBurst, nil
	case "unreal":
		a := unreal.New(name, net, transport, emit)
		return a, a.SendBurst, nil
	case "ngircd":
		a := ngircd.New(name, net, transport, emit)
		return a, a.SendBurst, nil
	case "p10":
		a := p10.New(name, net, transport, emit)
		return a, a.SendBurst, nil
	case "clientbot":
		a := clientbot.New(name, net, transport, emit)
		burst := func() error { return a.SendBurst(srv.Nick, srv.Ident, srv.Realname) }
		return a, burst, nil
	default:
		return nil, nil, fmt.Errorf("pylinkd: %s: unknown protocol %q", name, srv.Protocol)
	}
}

func (d *daemon) spawnBotsLocked(network string, adapter proto.Adapter, root *config.Root) {
	bots := make(map[string]*services.Bot, len(root.Login.Bots))
	for botName, botCfg := range root.Login.Bots {
		id := botCfg.ForNetwork(network)
		b := services.New(botName, network, adapter, d.bus, services.Config{
			Nick:                 id.Nick,
			Ident:                id.Ident,
			Host:                 id.Host,
			Realname:             id.Realname,
			CommandPrefix:        id.CommandPrefix,
			PreferPrivateReplies: id.PreferPrivateReplies,
		})
		b.Permissions = d.perms
		if botName == "relay" {
			relay.RegisterCommands(b, d.relay)
		}
		if err := b.Spawn(); err != nil {
			adapter.State().Log.WithError(err).Warnf("failed to spawn service bot %q", botName)
			continue
		}
		bots[botName] = b
		d.world.RegisterService(botName, network)
	}
	d.bots[network] = bots
}

// serve blocks, translating SIGHUP/SIGUSR1 into a rehash and SIGTERM
// into a shutdown, per spec §6.5.
func (d *daemon) serve() int {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGTERM)
	for s := range sig {
		switch s {
		case syscall.SIGHUP, syscall.SIGUSR1:
			if err := d.rehash(); err != nil {
				logrus.WithError(err).Error("rehash failed, previous config left in place")
			}
		case syscall.SIGTERM:
			d.shutdown()
			return exitClean
		}
	}
	return exitClean
}

// rehash implements spec §6.4/§6.5's atomic config-swap: reload, diff
// against the live server set, start networks that are new, destroy
// networks that were removed, and restart networks whose block
// changed — untouched, already-Ready connections are left alone.
func (d *daemon) rehash() error {
	next, err := config.Load(d.cfgPath)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	added, removed, changed := config.Diff(d.cur.Servers, next.Servers)

	for _, name := range removed {
		d.destroyNetworkLocked(name)
	}
	for _, name := range changed {
		d.destroyNetworkLocked(name)
		if err := d.addNetworkLocked(name, next.Servers[name], next); err != nil {
			logrus.WithError(err).Errorf("rehash: failed to restart network %q", name)
		}
	}
	for _, name := range added {
		if err := d.addNetworkLocked(name, next.Servers[name], next); err != nil {
			logrus.WithError(err).Errorf("rehash: failed to start network %q", name)
		}
	}

	d.perms.Load(next.Permissions)
	d.relay.IPSharePool = expandPools(next.Relay.IPSharePool)
	d.relay.KillSharePool = expandPools(next.Relay.KillSharePool)
	d.cur = next

	logrus.Infof("rehash complete: %d added, %d removed, %d changed", len(added), len(removed), len(changed))
	return nil
}

func (d *daemon) destroyNetworkLocked(name string) {
	driver, ok := d.drivers[name]
	if !ok {
		return
	}
	if net, ok := d.world.Network(name); ok {
		for botName := range d.bots[name] {
			d.world.UnregisterService(botName, name)
			_ = net.Adapter.Quit(d.bots[name][botName].UID(), "network removed on rehash")
		}
	}
	driver.Close()
	d.world.UnregisterNetwork(name)
	delete(d.drivers, name)
	delete(d.bots, name)
}

// shutdown implements spec §6.5's SHUTDOWN: SQUIT every network and
// close out cleanly.
func (d *daemon) shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, driver := range d.drivers {
		if net, ok := d.world.Network(name); ok {
			_ = net.Adapter.Squit(net.State.SID, "", "SHUTDOWN")
		}
		driver.Close()
	}
	if d.relayDB != nil {
		d.relayDB.StopDebounceWriter()
		if err := d.relayDB.Save(); err != nil {
			logrus.WithError(err).Error("failed to save relay db on shutdown")
		}
	}
}
