package conductor

import (
	"context"
	"testing"
	"time"

	"github.com/coda-et/etransport/internal/event"
	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/station"
	"github.com/coda-et/etransport/internal/system"
)

func newTestSystem(t *testing.T, numEvents int) *system.System {
	t.Helper()
	return system.New(system.Config{NumEvents: numEvents, EventSize: 16, ControlLen: 2, Groups: 1}, logging.NewDefault())
}

func allConfig(restore station.RestoreMode) station.Config {
	return station.Config{Flow: station.FlowSerial, Block: station.Blocking, Select: station.SelectAll, Restore: restore, Prescale: 1}
}

// TestRouteFansOutToMultipleDownstream covers spec.md §4.2 step 7's
// "ET fans out, it does not pick the first match" rule: two downstream
// serial stations both select=all must both receive the same event.
func TestRouteFansOutToMultipleDownstream(t *testing.T) {
	sys := newTestSystem(t, 10)
	up, err := sys.CreateStation("up", allConfig(station.RestoreToGrandCentral), system.PosEnd, system.ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	down1, err := sys.CreateStation("down1", allConfig(station.RestoreToGrandCentral), system.PosEnd, system.ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	down2, err := sys.CreateStation("down2", allConfig(station.RestoreToGrandCentral), system.PosEnd, system.ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := New(up, sys, logging.NewDefault(), nil)
	ev := event.New(1, 1, 16, 2)
	c.route(ev)

	if down1.Input.Len() != 1 || down2.Input.Len() != 1 {
		t.Fatalf("both downstream stations must receive the event, down1=%d down2=%d", down1.Input.Len(), down2.Input.Len())
	}
}

// TestRouteFallsBackToGrandCentral covers spec.md §4.2 step 7: an event
// accepted by nothing downstream returns to GRAND_CENTRAL's input.
func TestRouteFallsBackToGrandCentral(t *testing.T) {
	sys := newTestSystem(t, 10)
	up, err := sys.CreateStation("up", allConfig(station.RestoreToGrandCentral), system.PosEnd, system.ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matchCfg := station.Config{Flow: station.FlowSerial, Block: station.Blocking, Select: station.SelectMatch, Restore: station.RestoreToGrandCentral, Prescale: 1, SelectVector: []int32{0x1}}
	if _, err := sys.CreateStation("picky", matchCfg, system.PosEnd, system.ParEnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gc := sys.GrandCentral()
	before := gc.Input.Len()

	c := New(up, sys, logging.NewDefault(), nil)
	ev := event.New(999, 1, 16, 1)
	ev.Control = []int32{0x0} // fails "picky"'s match gate
	c.route(ev)

	if gc.Input.Len() != before+1 {
		t.Fatalf("an event nothing downstream accepts must fall back to GRAND_CENTRAL, before=%d after=%d", before, gc.Input.Len())
	}
}

// TestRouteSkipsUpstreamPositions covers the position-based
// ring traversal: a station at or before the routing conductor's own
// position must never receive the event.
func TestRouteSkipsUpstreamPositions(t *testing.T) {
	sys := newTestSystem(t, 10)
	a, err := sys.CreateStation("a", allConfig(station.RestoreToGrandCentral), system.PosEnd, system.ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := sys.CreateStation("b", allConfig(station.RestoreToGrandCentral), system.PosEnd, system.ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Route from b (the later station); a sits upstream and must not
	// receive the event even though select=all would otherwise accept it.
	c := New(b, sys, logging.NewDefault(), nil)
	ev := event.New(1, 1, 16, 2)
	c.route(ev)

	if a.Input.Len() != 0 {
		t.Fatal("an upstream station must never receive an event routed from a later conductor")
	}
}

func TestRunDrainsAndRoutesUntilCanceled(t *testing.T) {
	sys := newTestSystem(t, 10)
	up, err := sys.CreateStation("up", allConfig(station.RestoreToGrandCentral), system.PosEnd, system.ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	down, err := sys.CreateStation("down", allConfig(station.RestoreToGrandCentral), system.PosEnd, system.ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := New(up, sys, logging.NewDefault(), nil)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	up.Output.Put([]*event.Event{event.New(1, 1, 16, 2)})

	deadline := time.After(2 * time.Second)
	for down.Input.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("event was never routed to the downstream station")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run must return nil on context cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}
