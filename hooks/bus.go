// Package hooks implements the priority-ordered, multi-subscriber hook
// dispatch described in spec §4.4. It generalizes girc's Caller/Handler
// pair (caller.go, handler.go): girc dispatches per-command callbacks
// concurrently with no ordering guarantee; here, because plugins like
// Relay and Antispam must observe (and mutate) the same event in a
// defined order, handlers are sorted by priority and run sequentially on
// the calling goroutine, exactly as spec §5 requires ("hook delivery is
// synchronous on the reader that originated the event").
package hooks

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/pylink/pylink/ircevent"
)

// Outcome is the typed replacement for the source implementation's
// truthy/falsy handler return value (spec §9: "reproduce with a typed
// Continue | Stop outcome; do not rely on truthiness").
type Outcome int

const (
	Continue Outcome = iota
	Stop
)

// Handler observes (and may mutate) a HookEvent. Returning Stop prevents
// lower-priority handlers from seeing the event.
type Handler func(evt *ircevent.HookEvent) Outcome

type subscriber struct {
	priority int
	handler  Handler
	id       uint64
}

// Bus is a process-wide (or per-network, callers choose) hook dispatcher.
// Safe for concurrent AddHook calls; Dispatch is expected to be called
// from a single network's reader goroutine at a time, matching the
// ordering guarantee in spec §5.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]subscriber
	next uint64
	log  *logrus.Entry
}

func New(log *logrus.Entry) *Bus {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bus{subs: make(map[string][]subscriber), log: log}
}

// AddHook registers handler for name (or ircevent.HookAllEvents for every
// command). Higher priority fires first; default priority is 100,
// matching spec §4.4.
func (b *Bus) AddHook(name string, handler Handler, priority int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	list := append(b.subs[name], subscriber{priority: priority, handler: handler, id: id})

	// Stable sort by priority descending, ties broken by registration
	// order so behavior is deterministic across runs.
	for i := len(list) - 1; i > 0; i-- {
		if list[i].priority <= list[i-1].priority {
			break
		}
		list[i], list[i-1] = list[i-1], list[i]
	}
	b.subs[name] = list
}

// Dispatch runs every handler subscribed to evt.Command, then every
// handler subscribed to HookAllEvents, honoring priority order within
// each group. A handler returning Stop halts the command-specific group
// but the all-events wildcard group still observes the event — wildcard
// subscribers (e.g. the debug logger, antispam's audit trail) should
// always see traffic regardless of what a specific-command handler
// decided. Panics are recovered and logged; propagation continues, per
// spec §4.4 ("Exceptions are caught and logged; propagation continues").
func (b *Bus) Dispatch(evt *ircevent.HookEvent) {
	if evt.Ts == 0 {
		evt.Ts = nowUnix()
	}

	b.mu.RLock()
	specific := append([]subscriber(nil), b.subs[evt.Command]...)
	wildcard := append([]subscriber(nil), b.subs[ircevent.HookAllEvents]...)
	b.mu.RUnlock()

	b.run(specific, evt)
	b.run(wildcard, evt)
}

func (b *Bus) run(list []subscriber, evt *ircevent.HookEvent) {
	for _, s := range list {
		outcome := b.safeCall(s.handler, evt)
		if outcome == Stop {
			return
		}
	}
}

func (b *Bus) safeCall(h Handler, evt *ircevent.HookEvent) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithError(errors.Errorf("hook handler panic: %v", r)).
				WithField("command", evt.Command).Error("recovered from hook handler panic")
			outcome = Continue
		}
	}()
	return h(evt)
}
