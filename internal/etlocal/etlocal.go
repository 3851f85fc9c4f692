// Package etlocal implements the local fast path (spec.md §6.2): the
// same core operations the protocol server dispatches, called directly
// in-process with no socket framing, for callers running inside the
// daemon process that do not need to cross a socket to reach the
// registry. No other package in this module imports it; the admin HTTP
// surface reads the registry directly.
package etlocal

import (
	"time"

	"github.com/coda-et/etransport/internal/event"
	"github.com/coda-et/etransport/internal/eventlist"
	"github.com/coda-et/etransport/internal/station"
	"github.com/coda-et/etransport/internal/system"
)

// Client is an in-process handle bound to one attachment, mirroring the
// operations a protocol-server client would invoke over the wire.
type Client struct {
	sys *system.System
	att *station.Attachment
	st  *station.Station
}

// Attach opens a local handle on stationID, exactly as STATION_ATTACH
// would over the wire.
func Attach(sys *system.System, stationID, pid int, host string) (*Client, error) {
	a, err := sys.Attach(stationID, pid, host)
	if err != nil {
		return nil, err
	}
	st, _ := sys.StationByID(stationID)
	return &Client{sys: sys, att: a, st: st}, nil
}

// Detach tears the handle down, restoring any held events (§4.5).
func (c *Client) Detach() error {
	return c.sys.Detach(c.att.ID)
}

// NewEvents acquires count events of the given group from GRAND_CENTRAL's
// free pool (EVS_NEW_GRP's local-path equivalent).
func (c *Client) NewEvents(mode eventlist.Mode, timeout time.Duration, count, group int) ([]*event.Event, error) {
	gc := c.sys.GrandCentral()
	evs, err := gc.Input.GetByGroup(c.att.Waiter, mode, timeout, count, group)
	if err != nil {
		return nil, err
	}
	for _, ev := range evs {
		ev.Owner = c.att.ID
	}
	c.att.TrackHeld(evs)
	return evs, nil
}

// GetEvents reads up to count events from the bound station's input list
// (EVS_GET's local-path equivalent).
func (c *Client) GetEvents(mode eventlist.Mode, timeout time.Duration, count int) ([]*event.Event, error) {
	evs, err := c.st.Input.Get(c.att.Waiter, mode, timeout, count)
	if err != nil {
		return nil, err
	}
	c.att.TrackHeld(evs)
	return evs, nil
}

// PutEvents pushes processed events onto the bound station's output list
// for the conductor to route (EVS_PUT's local-path equivalent).
func (c *Client) PutEvents(evs []*event.Event) {
	c.st.Output.Put(evs)
	c.att.ReleaseHeld(evs)
}

// DumpEvents returns held events to the free pool (EVS_DUMP's
// local-path equivalent): each event is reset, released from this
// attachment's held set and put back on GRAND_CENTRAL's input list.
// Unlike the wire handler, it does not check that every event is
// currently held by this attachment.
func (c *Client) DumpEvents(evs []*event.Event) {
	for _, ev := range evs {
		ev.Reset()
	}
	c.att.ReleaseHeld(evs)
	c.sys.GrandCentral().Input.PutInGC(evs)
}

// WakeUp signals this client's own waiter (WAKE_ATT's local-path
// equivalent).
func (c *Client) WakeUp() {
	c.st.Input.WakeUp(c.att.Waiter)
}
