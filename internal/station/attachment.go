package station

import (
	"sync"
	"sync/atomic"

	"github.com/coda-et/etransport/internal/event"
	"github.com/coda-et/etransport/internal/eventlist"
)

// Attachment identifies one reader/writer bound to one station for its
// entire lifetime (spec.md §3 "Attachment").
type Attachment struct {
	ID        int
	StationID int
	Host      string
	PID       int // -1 for non-native clients

	// Waiter is this attachment's personal wakeup flag, consulted by the
	// station's input-list Get/GetByGroup.
	Waiter *eventlist.Waiter

	// Held tracks events currently owned by this attachment (acquired via
	// Get but not yet Put back), used to restore on disconnect.
	heldMu sync.Mutex
	held   []*event.Event

	usable atomic.Bool
}

// NewAttachment constructs an attachment bound to the given station.
func NewAttachment(id, stationID int, host string, pid int) *Attachment {
	a := &Attachment{
		ID:        id,
		StationID: stationID,
		Host:      host,
		PID:       pid,
		Waiter:    &eventlist.Waiter{},
	}
	a.usable.Store(true)
	return a
}

// Usable reports whether the attachment is still bound to a live system
// handle (spec.md §3 invariant).
func (a *Attachment) Usable() bool { return a.usable.Load() }

// Invalidate marks the attachment unusable; further operations using it
// must fail with ErrDead.
func (a *Attachment) Invalidate() { a.usable.Store(false) }

// TrackHeld records events this attachment now holds (post-Get).
func (a *Attachment) TrackHeld(evs []*event.Event) {
	a.heldMu.Lock()
	a.held = append(a.held, evs...)
	a.heldMu.Unlock()
}

// ReleaseHeld removes events this attachment is putting back (post-Put)
// from its held set.
func (a *Attachment) ReleaseHeld(evs []*event.Event) {
	if len(evs) == 0 {
		return
	}
	released := make(map[int]bool, len(evs))
	for _, e := range evs {
		released[e.ID] = true
	}
	a.heldMu.Lock()
	kept := a.held[:0]
	for _, e := range a.held {
		if !released[e.ID] {
			kept = append(kept, e)
		}
	}
	a.held = kept
	a.heldMu.Unlock()
}

// DrainHeld returns and clears every event this attachment still holds,
// used when it disconnects and its events must be restored.
func (a *Attachment) DrainHeld() []*event.Event {
	a.heldMu.Lock()
	defer a.heldMu.Unlock()
	out := a.held
	a.held = nil
	return out
}

// FindHeld looks up a currently held event by id without removing it,
// used by EVS_PUT to validate that the client is putting back an event
// it actually holds.
func (a *Attachment) FindHeld(id int) *event.Event {
	a.heldMu.Lock()
	defer a.heldMu.Unlock()
	for _, e := range a.held {
		if e.ID == id {
			return e
		}
	}
	return nil
}
