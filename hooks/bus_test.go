package hooks

import (
	"testing"

	"github.com/pylink/pylink/ircevent"
)

func TestDispatchOrdersByPriority(t *testing.T) {
	bus := New(nil)

	var order []string

	bus.AddHook(ircevent.HookJoin, func(evt *ircevent.HookEvent) Outcome {
		order = append(order, "low")
		return Continue
	}, 10)
	bus.AddHook(ircevent.HookJoin, func(evt *ircevent.HookEvent) Outcome {
		order = append(order, "high")
		return Continue
	}, 200)
	bus.AddHook(ircevent.HookJoin, func(evt *ircevent.HookEvent) Outcome {
		order = append(order, "default")
		return Continue
	}, 100)

	bus.Dispatch(&ircevent.HookEvent{Command: ircevent.HookJoin})

	want := []string{"high", "default", "low"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestDispatchStopHaltsLowerPriority(t *testing.T) {
	bus := New(nil)

	var ran bool

	bus.AddHook(ircevent.HookKick, func(evt *ircevent.HookEvent) Outcome {
		return Stop
	}, 200)
	bus.AddHook(ircevent.HookKick, func(evt *ircevent.HookEvent) Outcome {
		ran = true
		return Continue
	}, 100)

	bus.Dispatch(&ircevent.HookEvent{Command: ircevent.HookKick})

	if ran {
		t.Fatalf("lower-priority handler ran after Stop was returned")
	}
}

func TestDispatchWildcardAlwaysRuns(t *testing.T) {
	bus := New(nil)

	var wildcardRan bool

	bus.AddHook(ircevent.HookQuit, func(evt *ircevent.HookEvent) Outcome {
		return Stop
	}, 100)
	bus.AddHook(ircevent.HookAllEvents, func(evt *ircevent.HookEvent) Outcome {
		wildcardRan = true
		return Continue
	}, 100)

	bus.Dispatch(&ircevent.HookEvent{Command: ircevent.HookQuit})

	if !wildcardRan {
		t.Fatalf("wildcard handler did not run despite command-specific Stop")
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	bus := New(nil)

	var ranAfterPanic bool

	bus.AddHook(ircevent.HookNick, func(evt *ircevent.HookEvent) Outcome {
		panic("boom")
	}, 200)
	bus.AddHook(ircevent.HookNick, func(evt *ircevent.HookEvent) Outcome {
		ranAfterPanic = true
		return Continue
	}, 100)

	bus.Dispatch(&ircevent.HookEvent{Command: ircevent.HookNick})

	if !ranAfterPanic {
		t.Fatalf("dispatch did not continue after a recovered panic")
	}
}

func TestDispatchSetsTimestamp(t *testing.T) {
	bus := New(nil)
	evt := &ircevent.HookEvent{Command: ircevent.HookAway}
	bus.Dispatch(evt)
	if evt.Ts == 0 {
		t.Fatalf("Dispatch did not stamp Ts")
	}
}
