// Package system implements the registry of stations and attachments:
// lifecycle, GRAND_CENTRAL bootstrap, free-pool seeding, and the
// structural mutual exclusion described in spec.md §4.6 and §5. It is
// grounded on the teacher's domain/app and domain/registry managers — a
// sync.RWMutex-guarded map with copy-out getters, Stats() snapshots, and
// pre-collected-ids-before-recursing cascade logic — generalized from
// App/Session objects to Station/Attachment.
package system

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/coda-et/etransport/internal/ether"
	"github.com/coda-et/etransport/internal/event"
	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/station"
	"github.com/coda-et/etransport/internal/station/userselect"
)

// Config bounds the registry and seeds the free pool.
type Config struct {
	NumEvents    int
	EventSize    int
	ControlLen   int
	Groups       int // events are partitioned evenly across this many groups
	MaxStations  int
	MaxAttachments int
}

// System owns every station and attachment for one ET process.
type System struct {
	cfg Config
	log *logging.Logger

	// mu guards structural mutation: station ring membership, name/id
	// maps, attachment registry, parallel-group membership. The
	// conductor reads the ring under RLock; create/remove/attach/detach
	// take Lock (spec.md §4.6: "mutually exclusive with each other and
	// with conductor structural reads").
	mu sync.RWMutex

	stations    map[int]*station.Station
	byName      map[string]int
	attachments map[int]*station.Attachment
	groups      map[int]*station.ParallelGroup // keyed by head station id
	ring        []int                          // station ids in position order, 0 = GRAND_CENTRAL

	userSelect *userselect.Registry

	nextStationID    int64
	nextAttachmentID int64

	allEvents []*event.Event // id-indexed, for free-pool-total accounting

	// onStationAdded/onStationRemoved let a caller (cmd/etd's conductor
	// manager) keep a conductor goroutine running for every non-terminal
	// station that exists at any moment, not just the ones present at
	// boot (spec.md §4.2, §4.6: create_station is the primary, fully
	// wire-exposed way to add a station). Set once via SetStationHooks
	// before the registry is exposed to any client.
	onStationAdded   func(*station.Station)
	onStationRemoved func(id int)
}

// SetStationHooks registers callbacks fired after a station is installed
// or removed, outside of System's internal lock. Intended to be called
// once during startup wiring, before System serves any client.
func (s *System) SetStationHooks(onAdded func(*station.Station), onRemoved func(id int)) {
	s.mu.Lock()
	s.onStationAdded = onAdded
	s.onStationRemoved = onRemoved
	s.mu.Unlock()
}

// New constructs the registry with GRAND_CENTRAL bootstrapped and the
// free pool seeded into its input list (spec.md §3 "Lifecycles").
func New(cfg Config, log *logging.Logger) *System {
	if log == nil {
		log = logging.NewDefault()
	}
	s := &System{
		cfg:         cfg,
		log:         log,
		stations:    make(map[int]*station.Station),
		byName:      make(map[string]int),
		attachments: make(map[int]*station.Attachment),
		groups:      make(map[int]*station.ParallelGroup),
		userSelect:  userselect.NewRegistry(),
	}

	gc := station.NewStation(station.GrandCentralID, station.GrandCentralName, station.Config{
		Flow: station.FlowSerial, Block: station.Blocking, Select: station.SelectAll,
		Restore: station.RestoreToGrandCentral, Prescale: 1, CueSize: cfg.NumEvents,
	}, 0, 0)
	s.stations[gc.ID] = gc
	s.byName[gc.Name] = gc.ID
	s.ring = []int{gc.ID}
	s.nextStationID = 1

	s.seedPool(gc)
	return s
}

// UserSelectRegistry exposes the pluggable predicate registry so startup
// code can register native-host predicates before any client connects.
func (s *System) UserSelectRegistry() *userselect.Registry { return s.userSelect }

func (s *System) seedPool(gc *station.Station) {
	groups := s.cfg.Groups
	if groups < 1 {
		groups = 1
	}
	evs := make([]*event.Event, 0, s.cfg.NumEvents)
	for i := 0; i < s.cfg.NumEvents; i++ {
		group := (i % groups) + 1
		evs = append(evs, event.New(i, group, s.cfg.EventSize, s.cfg.ControlLen))
	}
	s.allEvents = evs
	gc.Input.SeedPool(evs)
}

// GrandCentral returns the root station.
func (s *System) GrandCentral() *station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stations[station.GrandCentralID]
}

// --- station.RestoreTarget ---

// GrandCentralInput implements station.RestoreTarget.
func (s *System) GrandCentralInput() station.EventListLike {
	return s.GrandCentral().Input
}

// UpstreamOutput returns the output list of the station immediately
// preceding st in the ring, or nil if st is GRAND_CENTRAL or unknown.
func (s *System) UpstreamOutput(st *station.Station) station.EventListLike {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, id := range s.ring {
		if id == st.ID && i > 0 {
			up := s.stations[s.ring[i-1]]
			if up == nil {
				return nil
			}
			return up.Output
		}
	}
	return nil
}

// Redistribute implements station.RestoreTarget for restore=redistribute:
// re-offer events to the station's parallel group for fresh distribution.
func (s *System) Redistribute(st *station.Station, evs []*event.Event) error {
	s.mu.RLock()
	grp := s.groups[st.GroupHeadID]
	s.mu.RUnlock()
	if grp == nil {
		return ether.New(ether.ErrorBadArgs, "station %q is not a parallel-group member", st.Name)
	}
	for _, ev := range evs {
		targets := grp.Distribute(ev, s.userSelect)
		for _, t := range targets {
			t.Input.PutAll([]*event.Event{ev})
		}
	}
	return nil
}

// Stats is a point-in-time registry snapshot for SYS_DATA.
type Stats struct {
	NumStations    int
	NumAttachments int
	MaxStations    int
	MaxAttachments int
	NumEvents      int
}

// Stats returns a copy-out snapshot.
func (s *System) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		NumStations:    len(s.stations),
		NumAttachments: len(s.attachments),
		MaxStations:    s.cfg.MaxStations,
		MaxAttachments: s.cfg.MaxAttachments,
		NumEvents:      s.cfg.NumEvents,
	}
}

// Close tears down every attachment (restoring their held events) and
// aggregates any errors encountered, grounded on the teacher's
// parent-then-children cascading close (pre-collect ids before
// recursing, to avoid holding the lock across restore calls).
func (s *System) Close() error {
	s.mu.Lock()
	ids := make([]int, 0, len(s.attachments))
	for id := range s.attachments {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var errs error
	for _, id := range ids {
		if err := s.Detach(id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("detach %d: %w", id, err))
		}
	}
	return errs
}

// Stations returns a copy-out slice of every station, ring-ordered.
func (s *System) Stations() []*station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*station.Station, 0, len(s.ring))
	for _, id := range s.ring {
		out = append(out, s.stations[id])
	}
	return out
}

// GroupFor returns the parallel group headed by the given station id, or
// nil if it does not head a group.
func (s *System) GroupFor(headID int) *station.ParallelGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[headID]
}

// StationByID looks up a station by id.
func (s *System) StationByID(id int) (*station.Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[id]
	return st, ok
}

// StationByName looks up a station by name.
func (s *System) StationByName(name string) (*station.Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.stations[id], true
}

// AttachmentByID looks up an attachment by id.
func (s *System) AttachmentByID(id int) (*station.Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attachments[id]
	return a, ok
}

// Attachments returns a copy-out slice of every currently bound
// attachment, used by SYS_DATA's attachment_stats[]/proc_stats[] arrays.
func (s *System) Attachments() []*station.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*station.Attachment, 0, len(s.attachments))
	for _, a := range s.attachments {
		out = append(out, a)
	}
	return out
}
