// Package eventlist implements the priority-preserving, monitor-style
// queue that serves as a station's input or output list. It is a direct
// Go transliteration of the put/putAll/put/putReverse/get/getByGroup
// semantics in the original EventList monitor (mutex + condition
// variable), preserving the "last waiter resets wakeAll" rule exactly.
package eventlist

import (
	"context"
	"sync"
	"time"

	"github.com/coda-et/etransport/internal/ether"
	"github.com/coda-et/etransport/internal/event"
)

// Mode selects how Get/GetByGroup behave when the list has nothing to
// offer.
type Mode int

const (
	Async Mode = iota
	Timed
	Sleep
)

// EventList is one direction (input or output) of one station's queue.
// Every mutating operation except putLowLocked and SeedPool acquires mu;
// putLowLocked is the unsynchronized append that PutInGC calls while
// holding the monitor and SeedPool calls at startup before anything can
// race with it, matching the source's unsynchronized putLow.
type EventList struct {
	mu   sync.Mutex
	cond *sync.Cond

	events []*event.Event

	lastHigh int // leading high-priority run length; meaningful for output lists

	eventsIn  int64
	eventsOut int64
	eventsTry int64

	wakeAll      bool
	waitingCount int
}

// New returns an empty EventList.
func New() *EventList {
	l := &EventList{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Len returns the current list length.
func (l *EventList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Stats is a point-in-time snapshot for SYS_DATA / admin reporting.
type Stats struct {
	Length    int
	LastHigh  int
	EventsIn  int64
	EventsOut int64
	EventsTry int64
}

// Stats returns a copy-out snapshot of the list's counters.
func (l *EventList) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Length:    len(l.events),
		LastHigh:  l.lastHigh,
		EventsIn:  l.eventsIn,
		EventsOut: l.eventsOut,
		EventsTry: l.eventsTry,
	}
}

// splitByPriority partitions evs into highs-then-lows, preserving
// relative order within each class (stable partition).
func splitByPriority(evs []*event.Event) (highs, lows []*event.Event) {
	for _, e := range evs {
		if e.Priority == event.High {
			highs = append(highs, e)
		} else {
			lows = append(lows, e)
		}
	}
	return
}

// putLowLocked appends new_events to the tail. The caller asserts all new
// events are low priority; it is not self-synchronized and must be
// called with the monitor already held (PutInGC), or before any other
// goroutine can reach the list (SeedPool).
func (l *EventList) putLowLocked(evs []*event.Event) {
	l.events = append(l.events, evs...)
	l.eventsIn += int64(len(evs))
}

// PutInGC is the synchronized entry point used to funnel free-pool
// returns (user dumps) into GRAND_CENTRAL's input list via putLow.
func (l *EventList) PutInGC(evs []*event.Event) {
	if len(evs) == 0 {
		return
	}
	l.mu.Lock()
	l.putLowLocked(evs)
	l.cond.Broadcast()
	l.mu.Unlock()
}

// SeedPool performs the initial, unsynchronized population of
// GRAND_CENTRAL's input list at startup, before any conductor or
// attachment exists to race with it.
func (l *EventList) SeedPool(evs []*event.Event) {
	l.putLowLocked(evs)
}

// PutAll is the conductor-driven insertion into a downstream input list.
// new_events are first split highs-then-lows (splitByPriority, stable
// within each class). The list's leading high block is scanned to
// find its length k; new highs are inserted at index k; remaining lows
// append to the tail. Synchronized against concurrent Get, but the
// conductor is the only writer, so no separate write-side mutual
// exclusion is required among PutAll callers themselves.
func (l *EventList) PutAll(evs []*event.Event) {
	if len(evs) == 0 {
		return
	}
	highs, lows := splitByPriority(evs)

	l.mu.Lock()
	k := l.leadingHighRunLocked()
	if len(highs) > 0 {
		l.events = insertAt(l.events, k, highs)
	}
	l.events = append(l.events, lows...)
	l.eventsIn += int64(len(evs))
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Put is the user-driven insertion into an output list, maintaining
// lastHigh. Lows append to the tail; highs insert at index lastHigh then
// bump it. If the list was empty on entry, lastHigh resets to 0 first.
// Wakes every parked waiter with Broadcast (the source's put() signals a
// single waiter; Broadcast is used here so that no waiter can miss the
// notification).
func (l *EventList) Put(evs []*event.Event) {
	if len(evs) == 0 {
		return
	}
	l.mu.Lock()
	if len(l.events) == 0 {
		l.lastHigh = 0
	}
	for _, e := range evs {
		if e.Priority == event.High {
			l.events = insertAt(l.events, l.lastHigh, []*event.Event{e})
			l.lastHigh++
		} else {
			l.events = append(l.events, e)
		}
	}
	l.eventsIn += int64(len(evs))
	l.cond.Broadcast()
	l.mu.Unlock()
}

// PutReverse restores events from a broken or disconnected client.
// Highs insert at index 0; lows insert at index lastHigh (recomputed by
// scanning the current head if the list wasn't already tracking it),
// placing the restored events before existing equal-priority events.
// Restore never re-increments eventsIn for already-accounted events.
func (l *EventList) PutReverse(evs []*event.Event) {
	if len(evs) == 0 {
		return
	}
	highs, lows := splitByPriority(evs)

	l.mu.Lock()
	head := l.leadingHighRunLocked()
	if len(highs) > 0 {
		l.events = insertAt(l.events, 0, highs)
		head += len(highs)
	}
	if len(lows) > 0 {
		l.events = insertAt(l.events, head, lows)
	}
	l.lastHigh = head
	l.cond.Broadcast()
	l.mu.Unlock()
}

// DrainAll moves the entire list out in one shot (conductor read, or
// test harness inspection), updating eventsOut.
func (l *EventList) DrainAll() []*event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.events
	l.events = nil
	l.lastHigh = 0
	l.eventsOut += int64(len(out))
	return out
}

// DrainAllBlocking is the conductor's primary suspension point (spec.md
// §4.2 step 1/§5): it waits until the list is non-empty, then drains it,
// unless ctx is canceled first.
func (l *EventList) DrainAllBlocking(ctx context.Context) ([]*event.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.cond.Broadcast()
			l.mu.Unlock()
		case <-stopWatch:
		}
	}()

	for len(l.events) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.cond.Wait()
	}

	out := l.events
	l.events = nil
	l.lastHigh = 0
	l.eventsOut += int64(len(out))
	return out, nil
}

// leadingHighRunLocked returns the length of the leading run of
// high-priority events. Callers must hold l.mu.
func (l *EventList) leadingHighRunLocked() int {
	n := 0
	for _, e := range l.events {
		if e.Priority != event.High {
			break
		}
		n++
	}
	return n
}

func insertAt(s []*event.Event, idx int, items []*event.Event) []*event.Event {
	if idx < 0 {
		idx = 0
	}
	if idx > len(s) {
		idx = len(s)
	}
	out := make([]*event.Event, 0, len(s)+len(items))
	out = append(out, s[:idx]...)
	out = append(out, items...)
	out = append(out, s[idx:]...)
	return out
}

// Waiter is the per-attachment wakeup state consulted by Get/GetByGroup.
// Owned by the station's attachment, bound for its lifetime to the one
// list it parks on.
type Waiter struct {
	mu     sync.Mutex
	wakeUp bool
	parked bool
}

// Signal marks this waiter to abort parking (EventList.wakeUp(att)).
func (w *Waiter) Signal() {
	w.mu.Lock()
	w.wakeUp = true
	w.mu.Unlock()
}

func (w *Waiter) consumeSignal() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wakeUp {
		w.wakeUp = false
		return true
	}
	return false
}

func (w *Waiter) isParked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.parked
}

func (w *Waiter) setParked(v bool) {
	w.mu.Lock()
	w.parked = v
	w.mu.Unlock()
}

// WakeUp marks one attachment's waiter and notifies every parked waiter
// on this list, but only if that attachment is actually parked; the
// source's wakeUp(att) returns immediately when !att.isWaiting(), since
// signaling an attachment that isn't parked would leave it to observe a
// stale wake_up on its next, unrelated Get.
func (l *EventList) WakeUp(w *Waiter) {
	if !w.isParked() {
		return
	}
	w.Signal()
	l.mu.Lock()
	l.cond.Broadcast()
	l.mu.Unlock()
}

// WakeUpAll sets wakeAll and notifies every parked waiter. The last
// departing waiter resets wakeAll — this is the load-bearing rule from
// the source monitor that avoids spurious WAKEUP failures on later,
// unrelated gets. If nobody is currently parked, wakeAll must not be set
// at all: the source's wakeUpAll() returns early when waitingCount < 1,
// since otherwise a future waiter would observe a stale flag left by a
// WAKE_ALL with no one to deliver it to.
func (l *EventList) WakeUpAll() {
	l.mu.Lock()
	if l.waitingCount < 1 {
		l.mu.Unlock()
		return
	}
	l.wakeAll = true
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Get performs a blocking read for one attachment. mode selects
// Async/Timed/Sleep behavior; quantity caps how many events are
// returned. Returns up to min(quantity, len(list)) events from the
// head, removing them and updating eventsOut.
func (l *EventList) Get(w *Waiter, mode Mode, timeout time.Duration, quantity int) ([]*event.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	deadline := time.Time{}
	if mode == Timed {
		deadline = time.Now().Add(timeout)
	}

	for len(l.events) == 0 {
		switch mode {
		case Async:
			return nil, ether.ErrEmpty
		case Timed:
			if time.Now().After(deadline) {
				return nil, ether.ErrTimeout
			}
		}

		if err := l.parkLocked(w, deadline, mode); err != nil {
			return nil, err
		}
	}

	n := quantity
	if n > len(l.events) {
		n = len(l.events)
	}
	out := l.events[:n]
	l.events = l.events[n:]
	if l.lastHigh > n {
		l.lastHigh -= n
	} else {
		l.lastHigh = 0
	}
	l.eventsOut += int64(n)
	return out, nil
}

// GetByGroup is as Get, but selects only events whose Group matches. If
// the scan yields zero matches and mode is blocking, it re-waits. In
// async mode it always fails EMPTY when the list is empty OR contains no
// matching event — it never re-scans or blocks in async mode. This
// matches the reference implementation's behavior exactly (see
// SPEC_FULL.md Open Question resolution #2) and is preserved for
// protocol compatibility. The scan covers the whole list, so a matching
// event anywhere in it is found regardless of what precedes it.
func (l *EventList) GetByGroup(w *Waiter, mode Mode, timeout time.Duration, quantity, group int) ([]*event.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	deadline := time.Time{}
	if mode == Timed {
		deadline = time.Now().Add(timeout)
	}

	for {
		if mode == Async {
			if len(l.events) == 0 || !l.hasGroupLocked(group) {
				return nil, ether.ErrEmpty
			}
		}

		idxs := l.matchingIndexes(group, quantity)
		if len(idxs) > 0 {
			return l.takeIndexesLocked(idxs), nil
		}

		if mode == Timed && time.Now().After(deadline) {
			return nil, ether.ErrTimeout
		}

		if err := l.parkLocked(w, deadline, mode); err != nil {
			return nil, err
		}
	}
}

func (l *EventList) hasGroupLocked(group int) bool {
	for _, e := range l.events {
		if e.Group == group {
			return true
		}
	}
	return false
}

func (l *EventList) matchingIndexes(group, quantity int) []int {
	var idxs []int
	for i, e := range l.events {
		if e.Group == group {
			idxs = append(idxs, i)
			if len(idxs) == quantity {
				break
			}
		}
	}
	return idxs
}

func (l *EventList) takeIndexesLocked(idxs []int) []*event.Event {
	out := make([]*event.Event, 0, len(idxs))
	keep := make([]*event.Event, 0, len(l.events)-len(idxs))
	take := make(map[int]bool, len(idxs))
	for _, i := range idxs {
		take[i] = true
	}
	highsRemoved := 0
	for i, e := range l.events {
		if take[i] {
			out = append(out, e)
			if i < l.lastHigh {
				highsRemoved++
			}
			continue
		}
		keep = append(keep, e)
	}
	l.events = keep
	if l.lastHigh > highsRemoved {
		l.lastHigh -= highsRemoved
	} else {
		l.lastHigh = 0
	}
	l.eventsOut += int64(len(out))
	return out
}

// parkLocked waits on the condition variable, handling the
// wake_up/wakeAll/timeout protocol. Caller holds l.mu; it is released
// across the wait and reacquired on return, per sync.Cond semantics.
func (l *EventList) parkLocked(w *Waiter, deadline time.Time, mode Mode) error {
	l.waitingCount++
	w.setParked(true)
	defer w.setParked(false)

	var timedOut bool
	if mode == Timed {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.AfterFunc(remaining, func() {
			l.mu.Lock()
			timedOut = true
			l.cond.Broadcast()
			l.mu.Unlock()
		})
		defer timer.Stop()
	}

	l.cond.Wait()

	l.waitingCount--
	woken := w.consumeSignal()
	wakeAllFired := l.wakeAll
	if l.waitingCount == 0 {
		// last waiter to leave resets wakeAll
		l.wakeAll = false
	}

	if woken || wakeAllFired {
		return ether.ErrWakeUp
	}
	if mode == Timed && timedOut && len(l.events) == 0 {
		return ether.ErrTimeout
	}
	return nil
}
