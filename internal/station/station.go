package station

import (
	"sync/atomic"

	"github.com/coda-et/etransport/internal/eventlist"
)

// GrandCentralName is reserved; it cannot be removed or moved (spec.md §3).
const GrandCentralName = "GRAND_CENTRAL"

// GrandCentralID is the stable id of the root station.
const GrandCentralID = 0

// Station is a named node in the station ring: a configuration, a select
// predicate, an input/output list pair, and the set of bound attachments.
type Station struct {
	ID   int
	Name string

	Config Config

	Input  *eventlist.EventList
	Output *eventlist.EventList

	Position         int // 1..N-1; GRAND_CENTRAL is 0
	ParallelPosition int // index within its parallel group, if any

	// GroupHeadID is this station's own id when it IS the group head, or
	// the head's id when it is a non-head member; 0 (GRAND_CENTRAL, never
	// itself a group member) means "not in a parallel group".
	GroupHeadID int

	attachments atomicAttachmentSet

	eventsTry int64 // atomic: all events seen, including prescale rejects
}

// NewStation constructs a station with fresh input/output lists.
func NewStation(id int, name string, cfg Config, position, parallelPosition int) *Station {
	return &Station{
		ID:               id,
		Name:             name,
		Config:           cfg,
		Input:            eventlist.New(),
		Output:           eventlist.New(),
		Position:         position,
		ParallelPosition: parallelPosition,
	}
}

// InParallelGroup reports whether this station belongs to a parallel
// group (including being its own head).
func (s *Station) InParallelGroup() bool {
	return s.Config.Flow == FlowParallel
}

// IsGroupHead reports whether this station is the head of its own
// parallel group.
func (s *Station) IsGroupHead() bool {
	return s.InParallelGroup() && s.GroupHeadID == s.ID
}

// EventsTry returns the prescale-eligible counter.
func (s *Station) EventsTry() int64 { return atomic.LoadInt64(&s.eventsTry) }

// IncEventsTry increments and returns the post-increment value.
func (s *Station) IncEventsTry() int64 { return atomic.AddInt64(&s.eventsTry, 1) }

// AttachmentCount returns the number of bound attachments (remove_station
// fails unless this is zero).
func (s *Station) AttachmentCount() int { return s.attachments.len() }

// AddAttachment binds an attachment to this station.
func (s *Station) AddAttachment(a *Attachment) { s.attachments.add(a) }

// RemoveAttachment unbinds an attachment.
func (s *Station) RemoveAttachment(id int) { s.attachments.remove(id) }

// Attachments returns a copy-out slice of currently bound attachments.
func (s *Station) Attachments() []*Attachment { return s.attachments.list() }
