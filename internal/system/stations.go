package system

import (
	"sync/atomic"

	"github.com/coda-et/etransport/internal/ether"
	"github.com/coda-et/etransport/internal/station"
)

// Position sentinels mirror spec.md §6.1's END/NEW_HEAD wire constants.
const (
	PosEnd     = -1
	ParEnd     = -1
	ParNewHead = -2
)

// CreateStation validates and installs a new station, or returns the
// existing one if an identically-configured station of the same name
// already exists (idempotency, spec.md §4.6). Position PosEnd appends at
// the end of the ring; ParallelPosition ParEnd appends to an existing
// group, ParNewHead starts a new group headed by this station. A newly
// installed station's conductor hook (spec.md §4.2: "each non-terminal
// station owns a conductor") fires after the lock is released, so hook
// code can itself call back into System (e.g. StationByID) without
// deadlocking.
func (s *System) CreateStation(name string, cfg station.Config, position, parallelPosition int) (*station.Station, error) {
	if name == station.GrandCentralName {
		return nil, ether.New(ether.ErrorBadArgs, "name %q is reserved", name)
	}

	if cfg.CueSize <= 0 || cfg.CueSize > s.cfg.NumEvents {
		cfg.CueSize = s.cfg.NumEvents
	}

	s.mu.Lock()

	if id, ok := s.byName[name]; ok {
		existing := s.stations[id]
		s.mu.Unlock()
		if existing.Config.Equal(cfg) {
			return existing, nil
		}
		return nil, ether.New(ether.ErrorExists, "station %q exists with a different configuration", name)
	}

	if s.cfg.MaxStations > 0 && len(s.stations) >= s.cfg.MaxStations {
		s.mu.Unlock()
		return nil, ether.New(ether.ErrorTooMany, "max_stations (%d) reached", s.cfg.MaxStations)
	}

	if cfg.Flow == station.FlowParallel && !cfg.ValidForParallelGroup() {
		s.mu.Unlock()
		return nil, ether.New(ether.ErrorBadArgs,
			"parallel-group member must have block=blocking, prescale=1, restore!=to_input")
	}

	id := int(atomic.AddInt64(&s.nextStationID, 1)) - 1
	st := station.NewStation(id, name, cfg, 0, 0)

	if cfg.Flow == station.FlowParallel {
		if err := s.joinParallelGroupLocked(st, parallelPosition); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}

	s.stations[id] = st
	s.byName[name] = id
	s.insertIntoRingLocked(id, position)
	onAdded := s.onStationAdded
	s.mu.Unlock()

	if onAdded != nil {
		onAdded(st)
	}

	return st, nil
}

// insertIntoRingLocked splices id into the ring at the requested 1..N
// slot (GRAND_CENTRAL permanently occupies slot 0), shifting every
// existing member at or after that slot back by one, then renumbers
// every station's Position field to its new contiguous ring index
// (spec.md §4.6: "created in-place at a requested position"). PosEnd, a
// non-positive value, or a value beyond the current ring all mean
// "append at the end".
func (s *System) insertIntoRingLocked(id, position int) {
	idx := len(s.ring)
	if position != PosEnd && position >= 1 && position <= len(s.ring) {
		idx = position
	}
	ring := make([]int, 0, len(s.ring)+1)
	ring = append(ring, s.ring[:idx]...)
	ring = append(ring, id)
	ring = append(ring, s.ring[idx:]...)
	s.ring = ring
	s.renumberPositionsLocked()
}

// moveInRingLocked relocates an already-installed station (never
// GRAND_CENTRAL) to the requested 1..N slot, splicing it out of its
// current ring position first so no two stations ever share a Position
// (spec.md §4.6; conductor.downstreamTargets relies on strict ordering
// to decide what is downstream of what).
func (s *System) moveInRingLocked(id, position int) {
	ring := make([]int, 0, len(s.ring))
	for _, rid := range s.ring {
		if rid != id {
			ring = append(ring, rid)
		}
	}
	idx := len(ring)
	if position != PosEnd && position >= 1 && position <= len(ring) {
		idx = position
	}
	out := make([]int, 0, len(ring)+1)
	out = append(out, ring[:idx]...)
	out = append(out, id)
	out = append(out, ring[idx:]...)
	s.ring = out
	s.renumberPositionsLocked()
}

// renumberPositionsLocked assigns every station's Position field to its
// index within s.ring, keeping positions unique and contiguous.
// GRAND_CENTRAL is never moved out of s.ring[0] by any caller, so it
// keeps Position 0.
func (s *System) renumberPositionsLocked() {
	for i, id := range s.ring {
		s.stations[id].Position = i
	}
}

func (s *System) joinParallelGroupLocked(st *station.Station, parallelPosition int) error {
	switch parallelPosition {
	case ParNewHead:
		st.GroupHeadID = st.ID
		s.groups[st.ID] = &station.ParallelGroup{Members: []*station.Station{st}}
		return nil
	case ParEnd:
		// join the group headed by the most recently created parallel
		// head; a real deployment passes an explicit head via config
		// metadata, but the wire protocol's NEW_HEAD/END sentinel alone
		// doesn't name a head, so ParEnd here means "join the last group".
		var lastHead int = -1
		for headID := range s.groups {
			if headID > lastHead {
				lastHead = headID
			}
		}
		if lastHead == -1 {
			return ether.New(ether.ErrorBadArgs, "no existing parallel group to join")
		}
		return s.joinExistingGroupLocked(st, lastHead)
	default:
		return s.joinExistingGroupLocked(st, parallelPosition)
	}
}

func (s *System) joinExistingGroupLocked(st *station.Station, headID int) error {
	grp, ok := s.groups[headID]
	if !ok {
		return ether.New(ether.ErrorBadArgs, "parallel group head %d does not exist", headID)
	}
	head := grp.Head()
	if !st.Config.CompatibleWithHead(head.Config) {
		return ether.New(ether.ErrorBadArgs, "station %q incompatible with group head %q", st.Name, head.Name)
	}
	st.GroupHeadID = headID
	st.ParallelPosition = len(grp.Members)
	grp.Members = append(grp.Members, st)
	return nil
}

// RemoveStation detaches st from the ring. Fails if it still has
// attachments or is GRAND_CENTRAL (spec.md §4.6). Its conductor hook
// fires after the lock is released, stopping the station's conductor
// goroutine.
func (s *System) RemoveStation(id int) error {
	s.mu.Lock()

	if id == station.GrandCentralID {
		s.mu.Unlock()
		return ether.New(ether.ErrorBadArgs, "cannot remove GRAND_CENTRAL")
	}
	st, ok := s.stations[id]
	if !ok {
		s.mu.Unlock()
		return ether.New(ether.ErrorBadArgs, "station %d does not exist", id)
	}
	if st.AttachmentCount() > 0 {
		s.mu.Unlock()
		return ether.New(ether.ErrorBusy, "station %q still has attachments", st.Name)
	}

	delete(s.stations, id)
	delete(s.byName, st.Name)
	if grp, ok := s.groups[st.GroupHeadID]; ok {
		grp.Members = removeMember(grp.Members, id)
		if len(grp.Members) == 0 {
			delete(s.groups, st.GroupHeadID)
		}
	}
	newRing := s.ring[:0:0]
	for _, rid := range s.ring {
		if rid != id {
			newRing = append(newRing, rid)
		}
	}
	s.ring = newRing
	s.renumberPositionsLocked()
	onRemoved := s.onStationRemoved
	s.mu.Unlock()

	if onRemoved != nil {
		onRemoved(id)
	}
	return nil
}

func removeMember(members []*station.Station, id int) []*station.Station {
	out := members[:0]
	for _, m := range members {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

// SetStationPosition moves a station within the ring. Forbidden for
// GRAND_CENTRAL and for moves that would violate parallel-group
// compatibility (spec.md §4.4, §4.6). parallel_position follows the same
// convention as CreateStation's: a non-negative value names the parallel
// group head to join, re-validated exactly as joining at create time.
func (s *System) SetStationPosition(id, position, parallelPosition int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == station.GrandCentralID {
		return ether.New(ether.ErrorBadArgs, "cannot move GRAND_CENTRAL")
	}
	st, ok := s.stations[id]
	if !ok {
		return ether.New(ether.ErrorBadArgs, "station %d does not exist", id)
	}

	if parallelPosition >= 0 && parallelPosition != st.GroupHeadID {
		if !st.InParallelGroup() {
			return ether.New(ether.ErrorBadArgs, "station %q is not a parallel-group member", st.Name)
		}
		if err := s.regroupLocked(st, parallelPosition); err != nil {
			return err
		}
	}

	s.moveInRingLocked(id, position)
	return nil
}

// regroupLocked moves st out of its current parallel group and into the
// one headed by newHeadID, re-validating select-mode/vector compatibility
// exactly as joinExistingGroupLocked does at create time (spec.md §4.4:
// "Constraints enforced at station create/move").
func (s *System) regroupLocked(st *station.Station, newHeadID int) error {
	newGrp, ok := s.groups[newHeadID]
	if !ok {
		return ether.New(ether.ErrorBadArgs, "parallel group head %d does not exist", newHeadID)
	}
	head := newGrp.Head()
	if !st.Config.CompatibleWithHead(head.Config) {
		return ether.New(ether.ErrorBadArgs, "station %q incompatible with group head %q", st.Name, head.Name)
	}

	if oldGrp, ok := s.groups[st.GroupHeadID]; ok {
		oldGrp.Members = removeMember(oldGrp.Members, st.ID)
		if len(oldGrp.Members) == 0 {
			delete(s.groups, st.GroupHeadID)
		}
	}

	st.GroupHeadID = newHeadID
	st.ParallelPosition = len(newGrp.Members)
	newGrp.Members = append(newGrp.Members, st)
	return nil
}

// StationExists reports whether a station with the given name exists,
// and its id if so.
func (s *System) StationExists(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	return id, ok
}

// Attach admits a new reader/writer to a station.
func (s *System) Attach(stationID int, pid int, host string) (*station.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stations[stationID]
	if !ok {
		return nil, ether.New(ether.ErrorBadArgs, "station %d does not exist", stationID)
	}
	if s.cfg.MaxAttachments > 0 && len(s.attachments) >= s.cfg.MaxAttachments {
		return nil, ether.New(ether.ErrorTooMany, "max_attachments (%d) reached", s.cfg.MaxAttachments)
	}

	id := int(atomic.AddInt64(&s.nextAttachmentID, 1)) - 1
	a := station.NewAttachment(id, stationID, host, pid)
	s.attachments[id] = a
	st.AddAttachment(a)
	return a, nil
}

// Detach removes an attachment, restoring any events it still holds per
// the owning station's restore policy (spec.md §4.5, §8 invariant 10).
func (s *System) Detach(attID int) error {
	s.mu.Lock()
	a, ok := s.attachments[attID]
	if !ok {
		s.mu.Unlock()
		return ether.New(ether.ErrorBadArgs, "attachment %d does not exist", attID)
	}
	st := s.stations[a.StationID]
	delete(s.attachments, attID)
	if st != nil {
		st.RemoveAttachment(attID)
	}
	s.mu.Unlock()

	a.Invalidate()

	held := a.DrainHeld()
	if len(held) == 0 || st == nil {
		return nil
	}
	return station.Restore(st, s, held)
}

// IsAttached reports whether attID is currently bound to stationID.
func (s *System) IsAttached(stationID, attID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attachments[attID]
	return ok && a.StationID == stationID
}

// WakeAttachment signals one attachment's waiter on its station's input
// list (wire WAKE_ATT).
func (s *System) WakeAttachment(attID int) error {
	s.mu.RLock()
	a, ok := s.attachments[attID]
	s.mu.RUnlock()
	if !ok {
		return ether.New(ether.ErrorBadArgs, "attachment %d does not exist", attID)
	}
	st, ok := s.StationByID(a.StationID)
	if !ok {
		return ether.New(ether.ErrorBadArgs, "station %d does not exist", a.StationID)
	}
	st.Input.WakeUp(a.Waiter)
	return nil
}

// WakeAll signals every attachment parked on a station's input list
// (wire WAKE_ALL).
func (s *System) WakeAll(stationID int) error {
	st, ok := s.StationByID(stationID)
	if !ok {
		return ether.New(ether.ErrorBadArgs, "station %d does not exist", stationID)
	}
	st.Input.WakeUpAll()
	return nil
}
