// Package station implements Station and Attachment: named nodes in the
// station ring, their configuration, admission predicates, parallel-group
// distribution, and restore policy (spec.md §3-§4.3-§4.5).
package station

// FlowMode selects whether a station is wired serially or as a member of
// a parallel group.
type FlowMode int

const (
	FlowSerial FlowMode = iota
	FlowParallel
)

// BlockMode selects whether a full input list applies back-pressure
// (Blocking) or overflows to the restore policy (NonBlocking).
type BlockMode int

const (
	Blocking BlockMode = iota
	NonBlocking
)

// SelectMode selects the station's admission predicate.
type SelectMode int

const (
	SelectAll SelectMode = iota
	SelectMatch
	SelectRRobin
	SelectEqualCue
	SelectUser
)

func (m SelectMode) String() string {
	switch m {
	case SelectAll:
		return "all"
	case SelectMatch:
		return "match"
	case SelectRRobin:
		return "rrobin"
	case SelectEqualCue:
		return "equal_cue"
	case SelectUser:
		return "user"
	default:
		return "unknown"
	}
}

// RestoreMode selects where held events go when an attachment dies or a
// non-blocking station overflows (spec.md §4.5).
type RestoreMode int

const (
	RestoreToStation RestoreMode = iota
	RestoreToInput
	RestoreToGrandCentral
	RestoreRedistribute
)

// Config is a station's full, immutable-after-creation configuration.
// Equality (used by create_station idempotency) compares every field
// except the name, which is checked by the caller.
type Config struct {
	Flow    FlowMode
	Block   BlockMode
	Select  SelectMode
	Restore RestoreMode

	Prescale int
	CueSize  int

	SelectVector []int32 // same length as an event's control vector

	UserSelectName string // resolved via the userselect registry
	FuncName       string // native-host metadata, carried but not interpreted
	LibName        string
	ClassName      string
}

// Equal reports whether two configs are identical for idempotency
// purposes (create_station with the same name and an identical config
// returns the existing station; a differing config fails EXISTS).
func (c Config) Equal(o Config) bool {
	if c.Flow != o.Flow || c.Block != o.Block || c.Select != o.Select ||
		c.Restore != o.Restore || c.Prescale != o.Prescale || c.CueSize != o.CueSize ||
		c.UserSelectName != o.UserSelectName || c.FuncName != o.FuncName ||
		c.LibName != o.LibName || c.ClassName != o.ClassName {
		return false
	}
	if len(c.SelectVector) != len(o.SelectVector) {
		return false
	}
	for i := range c.SelectVector {
		if c.SelectVector[i] != o.SelectVector[i] {
			return false
		}
	}
	return true
}

// ValidForParallelGroup enforces the configuration-compatibility rules a
// parallel-group member must satisfy (spec.md §4.4): flow = parallel,
// block = blocking, prescale = 1, restore != to_input.
func (c Config) ValidForParallelGroup() bool {
	return c.Flow == FlowParallel && c.Block == Blocking && c.Prescale == 1 && c.Restore != RestoreToInput
}

// CompatibleWithHead reports whether a joining station's select mode and
// vector are compatible with an rrobin/equal_cue/user group head (spec.md
// §3/§4.4: "identical select mode ... and identical select vector where
// relevant").
func (c Config) CompatibleWithHead(head Config) bool {
	if head.Select == SelectRRobin || head.Select == SelectEqualCue || head.Select == SelectUser {
		if c.Select != head.Select {
			return false
		}
		if !equalInt32Slice(c.SelectVector, head.SelectVector) {
			return false
		}
	}
	return true
}

func equalInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
