// Package conductor implements the per-station worker that drains a
// station's output list and routes events into the input lists of
// downstream stations, honoring parallel-group distribution policy
// (spec.md §4.2). It is grounded on the teacher's
// providers/pipeline/provider.go staged-worker shape (per-stage metrics,
// context.CancelFunc-driven shutdown) and its
// infrastructure/resilience/breaker.go state-tracking idiom, adapted here
// into a simplified supervised-restart loop instead of a literal circuit
// breaker.
package conductor

import (
	"context"
	"time"

	"github.com/coda-et/etransport/internal/event"
	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/metrics"
	"github.com/coda-et/etransport/internal/station"
	"github.com/coda-et/etransport/internal/station/userselect"
	"github.com/coda-et/etransport/internal/system"
)

// Conductor drains one station's output list and routes events onward.
type Conductor struct {
	st  *station.Station
	sys *system.System
	log *logging.Logger
	m   *metrics.Conductor
}

// New returns a conductor for st, bound to the registry it routes
// through.
func New(st *station.Station, sys *system.System, log *logging.Logger, m *metrics.Conductor) *Conductor {
	return &Conductor{st: st, sys: sys, log: log.WithStation(st.Name), m: m}
}

// Run drains-and-routes until ctx is canceled. Each iteration is one
// batch: wait for the output list to be non-empty, drain it, route every
// event, repeat (spec.md §4.2 steps 1-7).
func (c *Conductor) Run(ctx context.Context) error {
	for {
		if c.m != nil {
			c.m.ObserveListLength(c.st.Name, "out", c.st.Output.Stats().Length)
		}

		batch, err := c.st.Output.DrainAllBlocking(ctx)
		if err != nil {
			return nil // context canceled: clean shutdown, not a failure
		}

		start := time.Now()
		for _, ev := range batch {
			c.route(ev)
		}
		if c.m != nil {
			c.m.ObserveBatch(c.st.Name, len(batch), time.Since(start))
		}
	}
}

// route delivers one event to every downstream station (or parallel
// group) whose predicate accepts it, falling back to GRAND_CENTRAL's
// input list if nothing downstream does (spec.md §4.2 step 7).
func (c *Conductor) route(ev *event.Event) {
	reg := c.sys.UserSelectRegistry()
	targets := c.downstreamTargets(ev, reg)

	if len(targets) == 0 {
		gc := c.sys.GrandCentral()
		gc.Input.PutAll([]*event.Event{ev})
		if c.m != nil {
			c.m.ObserveListLength(gc.Name, "in", gc.Input.Stats().Length)
		}
		return
	}
	for _, t := range targets {
		t.Input.PutAll([]*event.Event{ev})
		if c.m != nil {
			c.m.ObserveListLength(t.Name, "in", t.Input.Stats().Length)
		}
	}
}

// downstreamTargets traverses the ring forward from this conductor's
// station, evaluating each downstream station's (or parallel group's)
// select predicate. Multiple stations may accept the same event — ET
// fans out, it does not pick the first match.
func (c *Conductor) downstreamTargets(ev *event.Event, reg *userselect.Registry) []*station.Station {
	var targets []*station.Station
	seenGroups := make(map[int]bool)

	for _, st := range c.sys.Stations() {
		if st.Position <= c.st.Position {
			continue
		}

		if st.InParallelGroup() && !st.IsGroupHead() {
			continue // decided once, at the head
		}

		if st.InParallelGroup() && st.IsGroupHead() {
			if seenGroups[st.ID] {
				continue
			}
			seenGroups[st.ID] = true
			if c.m != nil && st.WillPrescaleReject() {
				c.m.ObservePrescaleReject(st.Name)
			}
			if !st.Accept(ev, reg) {
				continue
			}
			grp := c.sys.GroupFor(st.ID)
			if grp == nil {
				continue
			}
			targets = append(targets, grp.Distribute(ev, reg)...)
			continue
		}

		if c.m != nil && st.WillPrescaleReject() {
			c.m.ObservePrescaleReject(st.Name)
		}
		if st.Accept(ev, reg) {
			targets = append(targets, st)
		}
	}
	return targets
}
