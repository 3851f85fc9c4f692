package system

import (
	"testing"

	"github.com/coda-et/etransport/internal/eventlist"
	"github.com/coda-et/etransport/internal/station"
)

func newTestSystem(numEvents int) *System {
	return New(Config{NumEvents: numEvents, EventSize: 16, ControlLen: 2, Groups: 1, MaxStations: 0, MaxAttachments: 0}, nil)
}

func TestNewSeedsGrandCentral(t *testing.T) {
	sys := newTestSystem(10)
	gc := sys.GrandCentral()
	if gc == nil {
		t.Fatal("GRAND_CENTRAL must exist immediately after New")
	}
	if gc.Input.Len() != 10 {
		t.Fatalf("GRAND_CENTRAL input must be seeded with num_events events, got %d", gc.Input.Len())
	}
	if gc.ID != station.GrandCentralID || gc.Name != station.GrandCentralName {
		t.Fatal("GRAND_CENTRAL must use the reserved id and name")
	}
}

func basicSerialConfig() station.Config {
	return station.Config{Flow: station.FlowSerial, Block: station.Blocking, Select: station.SelectAll, Restore: station.RestoreToGrandCentral, Prescale: 1}
}

// TestCreateStationIdempotent covers spec.md §8 invariant 8: create_station
// with the same name and an identical config returns the existing station.
func TestCreateStationIdempotent(t *testing.T) {
	sys := newTestSystem(10)
	cfg := basicSerialConfig()

	first, err := sys.CreateStation("alpha", cfg, PosEnd, ParEnd)
	if err != nil {
		t.Fatalf("unexpected error creating station: %v", err)
	}

	second, err := sys.CreateStation("alpha", cfg, PosEnd, ParEnd)
	if err != nil {
		t.Fatalf("idempotent re-create must not error: %v", err)
	}
	if second != first {
		t.Fatal("idempotent re-create must return the same station instance")
	}
	if len(sys.Stations()) != 2 { // GRAND_CENTRAL + alpha
		t.Fatalf("idempotent re-create must not add a duplicate station, have %d", len(sys.Stations()))
	}
}

func TestCreateStationExistsDifferentConfig(t *testing.T) {
	sys := newTestSystem(10)
	cfg := basicSerialConfig()
	if _, err := sys.CreateStation("alpha", cfg, PosEnd, ParEnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	differ := cfg
	differ.Prescale = 2
	_, err := sys.CreateStation("alpha", differ, PosEnd, ParEnd)
	if err == nil {
		t.Fatal("creating the same name with a different config must fail")
	}
}

func TestCreateStationMaxStations(t *testing.T) {
	sys := New(Config{NumEvents: 4, EventSize: 8, ControlLen: 0, Groups: 1, MaxStations: 1}, nil)
	cfg := basicSerialConfig()
	// GRAND_CENTRAL already counts toward max_stations.
	if _, err := sys.CreateStation("alpha", cfg, PosEnd, ParEnd); err == nil {
		t.Fatal("creating beyond max_stations must fail")
	}
}

func TestCreateStationReservedName(t *testing.T) {
	sys := newTestSystem(10)
	_, err := sys.CreateStation(station.GrandCentralName, basicSerialConfig(), PosEnd, ParEnd)
	if err == nil {
		t.Fatal("creating a station named GRAND_CENTRAL must fail")
	}
}

func TestCreateStationParallelGroupInvalidConfig(t *testing.T) {
	sys := newTestSystem(10)
	cfg := station.Config{Flow: station.FlowParallel, Block: station.NonBlocking, Prescale: 1, Restore: station.RestoreToGrandCentral}
	_, err := sys.CreateStation("bad", cfg, PosEnd, ParEnd)
	if err == nil {
		t.Fatal("a parallel member with block=non_blocking must fail at create time")
	}
}

func TestJoinParallelGroupNewHeadAndMember(t *testing.T) {
	sys := newTestSystem(10)
	headCfg := station.Config{Flow: station.FlowParallel, Block: station.Blocking, Select: station.SelectRRobin, Prescale: 1, Restore: station.RestoreToGrandCentral}
	head, err := sys.CreateStation("head", headCfg, PosEnd, ParNewHead)
	if err != nil {
		t.Fatalf("unexpected error creating group head: %v", err)
	}
	if !head.IsGroupHead() {
		t.Fatal("a station created with ParNewHead must be its own group's head")
	}

	memberCfg := headCfg
	member, err := sys.CreateStation("member", memberCfg, PosEnd, head.ID)
	if err != nil {
		t.Fatalf("unexpected error joining existing group: %v", err)
	}
	if member.GroupHeadID != head.ID {
		t.Fatal("a station joining an existing group must record the head's id")
	}

	grp := sys.GroupFor(head.ID)
	if grp == nil || len(grp.Members) != 2 {
		t.Fatalf("group must have 2 members after join, got %v", grp)
	}
}

func TestJoinParallelGroupIncompatibleSelect(t *testing.T) {
	sys := newTestSystem(10)
	headCfg := station.Config{Flow: station.FlowParallel, Block: station.Blocking, Select: station.SelectRRobin, Prescale: 1, Restore: station.RestoreToGrandCentral}
	head, err := sys.CreateStation("head", headCfg, PosEnd, ParNewHead)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	memberCfg := headCfg
	memberCfg.Select = station.SelectEqualCue
	_, err = sys.CreateStation("member", memberCfg, PosEnd, head.ID)
	if err == nil {
		t.Fatal("a member with an incompatible select mode must fail to join an rrobin head's group")
	}
}

func TestRemoveStationWithAttachmentsFails(t *testing.T) {
	sys := newTestSystem(10)
	st, err := sys.CreateStation("alpha", basicSerialConfig(), PosEnd, ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sys.Attach(st.ID, -1, "localhost"); err != nil {
		t.Fatalf("unexpected error attaching: %v", err)
	}
	if err := sys.RemoveStation(st.ID); err == nil {
		t.Fatal("removing a station with a live attachment must fail")
	}
}

func TestRemoveStationGrandCentralForbidden(t *testing.T) {
	sys := newTestSystem(10)
	if err := sys.RemoveStation(station.GrandCentralID); err == nil {
		t.Fatal("removing GRAND_CENTRAL must always fail")
	}
}

func TestSetStationPositionForbidsGrandCentral(t *testing.T) {
	sys := newTestSystem(10)
	if err := sys.SetStationPosition(station.GrandCentralID, 1, 0); err == nil {
		t.Fatal("moving GRAND_CENTRAL must fail")
	}
}

func TestSetStationPositionReorders(t *testing.T) {
	sys := newTestSystem(10)
	a, _ := sys.CreateStation("a", basicSerialConfig(), PosEnd, ParEnd)
	b, _ := sys.CreateStation("b", basicSerialConfig(), PosEnd, ParEnd)

	if err := sys.SetStationPosition(b.ID, 1, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stations := sys.Stations()
	if stations[1].ID != b.ID || stations[2].ID != a.ID {
		t.Fatalf("ring order after reposition must reflect the new position, got %v", []int{stations[1].ID, stations[2].ID})
	}
}

// TestDetachRestoresHeldEvents covers spec.md §8 scenario S6: a client
// holding events that disconnects must have them restored per the owning
// station's restore policy, here to_grand_central.
func TestDetachRestoresHeldEvents(t *testing.T) {
	sys := newTestSystem(10)
	st, err := sys.CreateStation("alpha", basicSerialConfig(), PosEnd, ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gc := sys.GrandCentral()
	before := gc.Input.Len()

	att, err := sys.Attach(st.ID, -1, "localhost")
	if err != nil {
		t.Fatalf("unexpected error attaching: %v", err)
	}

	held, err := st.Input.Get(att.Waiter, eventlist.Async, 0, 0)
	_ = held
	if err == nil {
		t.Fatal("a freshly created station has no input events to get; expected an empty-list error")
	}

	// Move real events from GRAND_CENTRAL to the station's input to
	// simulate the conductor having delivered some, then have the
	// attachment hold them as if mid-Get.
	drained := gc.Input.DrainAll()
	quantity := 3
	if len(drained) < quantity {
		quantity = len(drained)
	}
	st.Input.PutAll(drained[:quantity])
	gc.Input.PutAll(drained[quantity:])

	got, err := st.Input.Get(att.Waiter, eventlist.Async, 0, quantity)
	if err != nil {
		t.Fatalf("unexpected error getting seeded events: %v", err)
	}
	att.TrackHeld(got)

	if err := sys.Detach(att.ID); err != nil {
		t.Fatalf("unexpected error detaching: %v", err)
	}

	after := gc.Input.Len()
	if after != before {
		t.Fatalf("restore=to_grand_central on detach must return GRAND_CENTRAL's input to its original length, before=%d after=%d", before, after)
	}
	if st.AttachmentCount() != 0 {
		t.Fatal("detach must unbind the attachment from its station")
	}
	if sys.IsAttached(st.ID, att.ID) {
		t.Fatal("a detached attachment must no longer be considered attached")
	}
}

// TestTotalEventCountConservation covers spec.md §8 invariant 3: the total
// event count across the free pool, station lists, and held sets never
// changes across Attach/Get/Detach cycles.
func TestTotalEventCountConservation(t *testing.T) {
	const total = 12
	sys := newTestSystem(total)
	st, err := sys.CreateStation("alpha", basicSerialConfig(), PosEnd, ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gc := sys.GrandCentral()
	moved := gc.Input.DrainAll()
	st.Input.PutAll(moved)

	att, err := sys.Attach(st.ID, -1, "localhost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := st.Input.Get(att.Waiter, eventlist.Async, 0, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	att.TrackHeld(got)

	sum := st.Input.Len() + gc.Input.Len() + len(got)
	if sum != total {
		t.Fatalf("event count must be conserved across input list and held set, got %d want %d", sum, total)
	}

	if err := sys.Detach(att.ID); err != nil {
		t.Fatalf("unexpected error detaching: %v", err)
	}
	if gc.Input.Len()+st.Input.Len() != total {
		t.Fatalf("event count must be conserved after restore on detach, got %d want %d", gc.Input.Len()+st.Input.Len(), total)
	}
}

func TestAttachMaxAttachments(t *testing.T) {
	sys := New(Config{NumEvents: 4, EventSize: 8, MaxAttachments: 1}, nil)
	st, err := sys.CreateStation("alpha", basicSerialConfig(), PosEnd, ParEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sys.Attach(st.ID, -1, "localhost"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sys.Attach(st.ID, -1, "localhost"); err == nil {
		t.Fatal("exceeding max_attachments must fail")
	}
}

func TestStationExistsAndByName(t *testing.T) {
	sys := newTestSystem(10)
	if _, ok := sys.StationExists("nope"); ok {
		t.Fatal("a nonexistent station name must report not-found")
	}
	st, _ := sys.CreateStation("alpha", basicSerialConfig(), PosEnd, ParEnd)
	id, ok := sys.StationExists("alpha")
	if !ok || id != st.ID {
		t.Fatal("StationExists must find a created station by name")
	}
	byName, ok := sys.StationByName("alpha")
	if !ok || byName.ID != st.ID {
		t.Fatal("StationByName must resolve to the same station")
	}
}
