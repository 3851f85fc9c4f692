package station

import (
	"github.com/coda-et/etransport/internal/ether"
	"github.com/coda-et/etransport/internal/event"
)

// RestoreTarget supplies the cross-station context Restore needs without
// station importing the system registry (which would create an import
// cycle, since system owns *Station values).
type RestoreTarget interface {
	GrandCentralInput() EventListLike
	UpstreamOutput(s *Station) EventListLike
	Redistribute(s *Station, evs []*event.Event) error
}

// EventListLike is the subset of *eventlist.EventList Restore needs;
// declared here (rather than imported) only to keep the interface
// boundary explicit — in practice it is always a *eventlist.EventList.
type EventListLike interface {
	PutReverse(evs []*event.Event)
}

// Restore re-homes events per the station's restore mode when an
// attachment disconnects while holding them, or a non-blocking station
// overflows (spec.md §4.5). It always preserves priority ordering via
// PutReverse and never increments a destination list's eventsIn for the
// same batch twice, since each destination is chosen exactly once.
func Restore(s *Station, rt RestoreTarget, evs []*event.Event) error {
	if len(evs) == 0 {
		return nil
	}
	switch s.Config.Restore {
	case RestoreToStation:
		s.Input.PutReverse(evs)
		return nil

	case RestoreToInput:
		up := rt.UpstreamOutput(s)
		if up == nil {
			return ether.New(ether.ErrorBadArgs, "station %q has no upstream for restore=to_input", s.Name)
		}
		up.PutReverse(evs)
		return nil

	case RestoreToGrandCentral:
		gc := rt.GrandCentralInput()
		if gc == nil {
			return ether.New(ether.ErrorDead, "GRAND_CENTRAL unavailable")
		}
		gc.PutReverse(evs)
		return nil

	case RestoreRedistribute:
		if !s.InParallelGroup() {
			return ether.New(ether.ErrorBadArgs, "restore=redistribute only valid for parallel-group members")
		}
		return rt.Redistribute(s, evs)

	default:
		return ether.New(ether.ErrorBadArgs, "unknown restore mode")
	}
}
