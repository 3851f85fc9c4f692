package station

import (
	"testing"

	"github.com/coda-et/etransport/internal/event"
	"github.com/coda-et/etransport/internal/station/userselect"
)

func mkGroupMember(id int, sel SelectMode) *Station {
	cfg := Config{Flow: FlowParallel, Block: Blocking, Select: sel, Restore: RestoreToGrandCentral, Prescale: 1}
	return NewStation(id, "member", cfg, id, 0)
}

// TestS2ParallelRRobinDistribution covers spec.md §8 S2: a group of 3
// rrobin members fed 7 accepting events should end with input-list
// lengths [3, 2, 2].
func TestS2ParallelRRobinDistribution(t *testing.T) {
	m0 := mkGroupMember(1, SelectRRobin)
	m1 := mkGroupMember(2, SelectRRobin)
	m2 := mkGroupMember(3, SelectRRobin)
	m0.GroupHeadID, m1.GroupHeadID, m2.GroupHeadID = 1, 1, 1

	grp := &ParallelGroup{Members: []*Station{m0, m1, m2}}
	reg := userselect.NewRegistry()

	for i := 0; i < 7; i++ {
		ev := event.New(i, 1, 16, 2)
		targets := grp.Distribute(ev, reg)
		if len(targets) != 1 {
			t.Fatalf("rrobin must pick exactly one member, got %d", len(targets))
		}
		targets[0].Input.PutAll([]*event.Event{ev})
	}

	got := []int{m0.Input.Len(), m1.Input.Len(), m2.Input.Len()}
	want := []int{3, 2, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("member %d input length = %d, want %d (got %v)", i, got[i], want[i], got)
		}
	}
}

// TestS3EqualCueFairness covers spec.md §8 S3: equal_cue always routes to
// the currently-shortest member, converging lengths rather than
// alternating blindly.
func TestS3EqualCueFairness(t *testing.T) {
	a := mkGroupMember(1, SelectEqualCue)
	b := mkGroupMember(2, SelectEqualCue)
	a.GroupHeadID, b.GroupHeadID = 1, 1

	preload := make([]*event.Event, 5)
	for i := range preload {
		preload[i] = event.New(100+i, 1, 16, 2)
	}
	a.Input.PutAll(preload)

	grp := &ParallelGroup{Members: []*Station{a, b}}
	reg := userselect.NewRegistry()

	for i := 0; i < 6; i++ {
		ev := event.New(i, 1, 16, 2)
		targets := grp.Distribute(ev, reg)
		if len(targets) != 1 {
			t.Fatalf("equal_cue must pick exactly one member, got %d", len(targets))
		}
		targets[0].Input.PutAll([]*event.Event{ev})
	}

	aLen, bLen := a.Input.Len(), b.Input.Len()
	diff := aLen - bLen
	if diff < 0 {
		diff = -diff
	}
	if diff > 1 {
		t.Fatalf("equal_cue lengths must differ by at most 1 once fed, got a=%d b=%d", aLen, bLen)
	}
	if aLen+bLen != 5+6 {
		t.Fatalf("total events across members = %d, want %d", aLen+bLen, 11)
	}
}

func TestSmallestInputMemberTiesBrokenByPosition(t *testing.T) {
	a := mkGroupMember(1, SelectEqualCue)
	b := mkGroupMember(2, SelectEqualCue)
	a.Position, b.Position = 1, 2
	grp := &ParallelGroup{Members: []*Station{a, b}}

	got := grp.smallestInputMember()
	if got != a {
		t.Fatalf("tie must break to the lower-position member")
	}
}
