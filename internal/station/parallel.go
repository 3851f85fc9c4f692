package station

import (
	"sync/atomic"

	"github.com/coda-et/etransport/internal/event"
	"github.com/coda-et/etransport/internal/station/userselect"
)

// ParallelGroup is an ordered sequence of stations sharing one admission
// decision; the head (Members[0]) determines the group's distribution
// policy (spec.md §4.4).
type ParallelGroup struct {
	Members []*Station
	rrPos   int64 // atomic rotating pointer for rrobin
}

// Head returns the group's policy-holding station.
func (g *ParallelGroup) Head() *Station {
	if len(g.Members) == 0 {
		return nil
	}
	return g.Members[0]
}

// Distribute picks which group member(s) should receive ev, given that
// the event already passed the group's own select gate. Returns nil if
// no member accepts (the caller falls back through the ring per spec.md
// §4.2 step 7).
func (g *ParallelGroup) Distribute(ev *event.Event, reg *userselect.Registry) []*Station {
	head := g.Head()
	if head == nil {
		return nil
	}

	switch head.Config.Select {
	case SelectRRobin:
		n := int64(len(g.Members))
		if n == 0 {
			return nil
		}
		idx := atomic.AddInt64(&g.rrPos, 1) - 1
		return []*Station{g.Members[idx%n]}

	case SelectEqualCue:
		return []*Station{g.smallestInputMember()}

	case SelectUser:
		p, ok := reg.Resolve(head.Config.UserSelectName)
		if !ok {
			return nil
		}
		var chosen []*Station
		for _, m := range g.Members {
			if p(ev.Control, ev.Group) {
				chosen = append(chosen, m)
			}
		}
		return chosen

	default:
		// A non-distributing select mode (all/match) on a parallel-flagged
		// station with no group semantics: deliver to every member whose
		// own predicate (Station.Accept) accepts.
		var chosen []*Station
		for _, m := range g.Members {
			if m.Accept(ev, reg) {
				chosen = append(chosen, m)
			}
		}
		return chosen
	}
}

// smallestInputMember returns the member whose input list currently has
// the fewest queued events, ties broken by position (spec.md §4.4
// equal_cue).
func (g *ParallelGroup) smallestInputMember() *Station {
	var best *Station
	bestLen := -1
	for _, m := range g.Members {
		l := m.Input.Len()
		if bestLen == -1 || l < bestLen || (l == bestLen && m.Position < best.Position) {
			best = m
			bestLen = l
		}
	}
	return best
}
