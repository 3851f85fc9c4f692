package station

import (
	"testing"

	"github.com/coda-et/etransport/internal/event"
)

func TestAttachmentTrackAndReleaseHeld(t *testing.T) {
	a := NewAttachment(1, 1, "localhost", -1)
	evs := mkEvs(3)
	a.TrackHeld(evs)

	if got := a.FindHeld(evs[1].ID); got != evs[1] {
		t.Fatal("FindHeld must return the tracked event without removing it")
	}
	if got := a.FindHeld(evs[1].ID); got != evs[1] {
		t.Fatal("FindHeld must be non-mutating: a second lookup must still find it")
	}

	a.ReleaseHeld([]*event.Event{evs[1]})
	if got := a.FindHeld(evs[1].ID); got != nil {
		t.Fatal("ReleaseHeld must remove the released event from the held set")
	}
	if got := a.FindHeld(evs[0].ID); got != evs[0] {
		t.Fatal("ReleaseHeld must leave other held events untouched")
	}
}

func TestAttachmentDrainHeld(t *testing.T) {
	a := NewAttachment(1, 1, "localhost", -1)
	evs := mkEvs(2)
	a.TrackHeld(evs)

	drained := a.DrainHeld()
	if len(drained) != 2 {
		t.Fatalf("DrainHeld must return every held event, got %d", len(drained))
	}
	if got := a.DrainHeld(); len(got) != 0 {
		t.Fatal("DrainHeld must clear the held set; a second drain must be empty")
	}
}

func TestAttachmentUsability(t *testing.T) {
	a := NewAttachment(1, 1, "localhost", -1)
	if !a.Usable() {
		t.Fatal("a freshly constructed attachment must be usable")
	}
	a.Invalidate()
	if a.Usable() {
		t.Fatal("Invalidate must make the attachment unusable")
	}
}

func TestAttachmentSetAddRemoveList(t *testing.T) {
	s := NewStation(1, "s", Config{}, 1, 0)
	a1 := NewAttachment(1, 1, "h1", -1)
	a2 := NewAttachment(2, 1, "h2", -1)

	s.AddAttachment(a1)
	s.AddAttachment(a2)
	if s.AttachmentCount() != 2 {
		t.Fatalf("AttachmentCount = %d, want 2", s.AttachmentCount())
	}

	s.RemoveAttachment(a1.ID)
	if s.AttachmentCount() != 1 {
		t.Fatalf("AttachmentCount after remove = %d, want 1", s.AttachmentCount())
	}
	remaining := s.Attachments()
	if len(remaining) != 1 || remaining[0].ID != a2.ID {
		t.Fatal("remaining attachment list must contain only the surviving attachment")
	}
}
