// Package ts6 implements the TS6 protocol family (charybdis/hybrid/
// ratbox, spec §1/§6.1) — the most heavily used S2S dialect in the
// retrieval pack's domain and the adapter given the fullest treatment
// here, per SPEC_FULL.md's package mapping. Structurally grounded on
// girc's Client/Handler split (main.go, handler.go): a small struct
// holding connection-scoped config plus state, a registerHandlers-style
// inbound dispatch table (handlers.go), and a Commands-style outbound
// operation set (commands.go) — generalized from "one client's own
// nick/channel view" to "a whole linked server's worth of UIDs/SIDs",
// and from IRC client commands to TS6's SID-prefixed S2S framing.
package ts6

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/pylink/pylink/ircevent"
	"github.com/pylink/pylink/ircmode"
	"github.com/pylink/pylink/proto"
	"github.com/pylink/pylink/state"
)

// Transport is the minimal outbound sink the network driver's writer
// loop provides; kept as a tiny interface so this package has no import
// on package network (which in turn imports proto), avoiding a cycle.
type Transport interface {
	Send(evt *ircevent.Event) error
}

// Standard TS6 CHANMODES/PREFIX grammar (charybdis-family default).
var DefaultModeSpec = ircmode.ModeSpec{
	ListArgs:   "beIq",
	AlwaysArgs: "k",
	SetArgs:    "jfl",
	NoArgs:     "ntmiprs",
	Prefixes:   "ohv",
}

// Adapter implements proto.Adapter for TS6-family IRCds.
type Adapter struct {
	NetworkName string
	RecvPass    string
	SendPass    string

	Net    *state.NetworkState
	Caps   proto.CapabilitySet
	Framer *proto.S2SFramer
	TS     *proto.TSStateMachine

	Transport Transport
	EmitHook  func(*ircevent.HookEvent)

	uidCounter int
}

func New(name string, net *state.NetworkState, transport Transport, emit func(*ircevent.HookEvent)) *Adapter {
	caps := proto.NewCapabilitySet(
		proto.CapHasTS,
		proto.CapHasIRCModes,
		proto.CapVirtualServer,
		proto.CapModeBounceNeedsServer,
	)

	return &Adapter{
		NetworkName: name,
		Net:         net,
		Caps:        caps,
		Framer:      &proto.S2SFramer{OwnSID: net.SID, OwnName: net.Name},
		TS:          &proto.TSStateMachine{Spec: DefaultModeSpec},
		Transport:   transport,
		EmitHook:    emit,
	}
}

func (a *Adapter) Name() string                     { return a.NetworkName }
func (a *Adapter) Capabilities() proto.CapabilitySet { return a.Caps }
func (a *Adapter) State() *state.NetworkState        { return a.Net }

func (a *Adapter) Send(evt *ircevent.Event) error {
	if a.Transport == nil {
		return errors.New("ts6: no transport attached")
	}
	return a.Transport.Send(evt)
}

func (a *Adapter) emit(cmd, source string, args map[string]interface{}) {
	if a.EmitHook == nil {
		return
	}
	a.EmitHook(&ircevent.HookEvent{
		Network: a.NetworkName,
		Source:  source,
		Command: cmd,
		Args:    args,
	})
}

func (a *Adapter) CheckRecvPass(offered string) bool {
	return a.RecvPass == "" || offered == a.RecvPass
}

func (a *Adapter) CapNegotiate() error {
	return a.Send(&ircevent.Event{
		Command: "CAPAB",
		Trailing: "QS EX IE KLN UNKLN ENCAP SERVICES SAVE EUID",
	})
}

func (a *Adapter) SendBurst() error {
	if err := a.Send(&ircevent.Event{Command: "SID", Params: []string{a.Net.Name, "1", a.Net.SID}, Trailing: "PyLink Service"}); err != nil {
		return errors.Wrap(err, "ts6: send_burst SID")
	}
	return nil
}

// nextUID generates a per-connection-unique TS6-style UID, SID-prefixed.
// Grounded on spec's GLOSSARY ("UID: ... TS6 9-char"): <SID><6 base36
// chars>.
func (a *Adapter) nextUID() string {
	a.uidCounter++
	return a.Net.SID + pad36(a.uidCounter, 6)
}

func pad36(n, width int) string {
	s := strconv.FormatInt(int64(n), 36)
	s = strings.ToUpper(s)
	for len(s) < width {
		s = "A" + s
	}
	return s
}
