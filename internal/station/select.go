package station

import (
	"github.com/coda-et/etransport/internal/event"
	"github.com/coda-et/etransport/internal/station/userselect"
)

// Accept decides whether ev passes this station's per-station predicate,
// applying prescale decimation first: every event increments eventsTry
// regardless of acceptance, and an event can only pass when
// (eventsTry % prescale) == 0 (spec.md §4.3). rrobin/equal_cue pass their
// per-station predicate here exactly like `all` — the group-level
// decision in ParallelGroup.Distribute (parallel.go) is a second,
// separate gate.
func (s *Station) Accept(ev *event.Event, reg *userselect.Registry) bool {
	try := s.IncEventsTry()
	prescale := s.Config.Prescale
	if prescale < 1 {
		prescale = 1
	}
	if try%int64(prescale) != 0 {
		return false
	}

	switch s.Config.Select {
	case SelectAll, SelectRRobin, SelectEqualCue:
		return true
	case SelectMatch:
		return matchControl(ev.Control, s.Config.SelectVector)
	case SelectUser:
		if reg == nil {
			return false
		}
		p, ok := reg.Resolve(s.Config.UserSelectName)
		if !ok {
			return false
		}
		return p(ev.Control, ev.Group)
	default:
		return false
	}
}

// WillPrescaleReject reports whether the next call to Accept for this
// station will be decimated away by prescale, without mutating
// eventsTry. Observability-only: a concurrent Accept between this peek
// and the real call can make the prediction stale, which is acceptable
// for a metric that exists to show decimation activity, not to gate it.
func (s *Station) WillPrescaleReject() bool {
	prescale := s.Config.Prescale
	if prescale < 1 {
		prescale = 1
	}
	next := s.EventsTry() + 1
	return next%int64(prescale) != 0
}

// matchControl requires a bitwise AND between control[i] and select[i] to
// be nonzero at every position where select[i] != 0 (spec.md §4.3).
func matchControl(control []int32, sel []int32) bool {
	n := len(sel)
	if len(control) < n {
		n = len(control)
	}
	for i := 0; i < n; i++ {
		if sel[i] != 0 && (control[i]&sel[i]) == 0 {
			return false
		}
	}
	return true
}
