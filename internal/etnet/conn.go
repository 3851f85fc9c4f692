package etnet

import (
	"context"
	"net"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/coda-et/etransport/internal/ether"
	"github.com/coda-et/etransport/internal/etwire"
	"github.com/coda-et/etransport/internal/event"
	"github.com/coda-et/etransport/internal/eventlist"
	"github.com/coda-et/etransport/internal/logging"
	"github.com/coda-et/etransport/internal/metrics"
	"github.com/coda-et/etransport/internal/station"
	"github.com/coda-et/etransport/internal/system"
)

// clientWorker serializes every request on one connection (spec.md §4.7:
// "there is no request pipelining per client"), dispatching into the
// core registry and tearing down held events on I/O error.
type clientWorker struct {
	conn        net.Conn
	connID      string
	sys         *system.System
	log         *logging.Logger
	m           *metrics.Metrics
	readTimeout time.Duration
	controlLen  int

	attachments []int // every attachment id this connection has opened
}

func (w *clientWorker) run(ctx context.Context) {
	defer w.teardown()
	defer w.conn.Close()
	if w.m != nil {
		defer w.m.DecConnections()
	}

	codec := etwire.NewCodec(w.conn, w.conn)

	for {
		if ctx.Err() != nil {
			return
		}
		if w.readTimeout > 0 {
			_ = w.conn.SetReadDeadline(time.Now().Add(w.readTimeout))
		}

		cmdRaw, err := codec.ReadInt32()
		if err != nil {
			if isTransientTimeout(err) {
				continue // spec.md §6.1: transient read-timeout events are retried
			}
			return // real I/O error: connection is gone
		}

		cmd := etwire.Command(cmdRaw)
		if err := w.dispatch(codec, cmd); err != nil {
			w.log.Warn("request failed", zap.Stringer("command", cmd), zap.Error(err))
			return
		}
		if cmd == etwire.CmdClose {
			return
		}
	}
}

func isTransientTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// teardown restores every event still held by this connection's
// attachments (spec.md §4.5, §8 invariant 10) and detaches them.
func (w *clientWorker) teardown() {
	for _, id := range w.attachments {
		_ = w.sys.Detach(id)
	}
}

func (w *clientWorker) dispatch(c *etwire.Codec, cmd etwire.Command) error {
	switch cmd {
	case etwire.CmdClose:
		if err := c.WriteInt32(0); err != nil { // ack
			return err
		}
		return c.Flush()
	case etwire.CmdAlive:
		return w.handleAlive(c)
	case etwire.CmdWakeAtt:
		return w.handleWakeAtt(c)
	case etwire.CmdWakeAll:
		return w.handleWakeAll(c)
	case etwire.CmdStationCreateAt:
		return w.handleStationCreateAt(c)
	case etwire.CmdStationRemove:
		return w.handleStationRemove(c)
	case etwire.CmdStationSetPos:
		return w.handleStationSetPos(c)
	case etwire.CmdStationGetPos:
		return w.handleStationGetPos(c)
	case etwire.CmdStationExists:
		return w.handleStationExists(c)
	case etwire.CmdStationAttach:
		return w.handleStationAttach(c)
	case etwire.CmdStationDetach:
		return w.handleStationDetach(c)
	case etwire.CmdStationIsAttached:
		return w.handleStationIsAttached(c)
	case etwire.CmdEvsNewGrp:
		return w.handleEvsNewGrp(c)
	case etwire.CmdEvsGet:
		return w.handleEvsGet(c)
	case etwire.CmdEvsPut:
		return w.handleEvsPut(c)
	case etwire.CmdEvsDump:
		return w.handleEvsDump(c)
	case etwire.CmdSysData:
		return w.handleSysData(c)
	case etwire.CmdSysHistogram:
		return w.handleSysHistogram(c)
	case etwire.CmdSysNumStations, etwire.CmdSysMaxStations, etwire.CmdSysNumAttachments,
		etwire.CmdSysMaxAttachments, etwire.CmdSysHeartbeat, etwire.CmdSysPid:
		return w.handleSysCount(c, cmd)
	default:
		if err := writeErr(c, ether.ErrorBadArgs); err != nil {
			return err
		}
		return c.Flush()
	}
}

func writeErr(c *etwire.Codec, k ether.Kind) error {
	return c.WriteInt32(k.WireCode())
}

func writeOK(c *etwire.Codec) error { return writeErr(c, ether.OK) }

func (w *clientWorker) handleAlive(c *etwire.Codec) error {
	if err := c.WriteInt32(1); err != nil {
		return err
	}
	return c.Flush()
}

func (w *clientWorker) handleWakeAtt(c *etwire.Codec) error {
	attID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	err2 := w.sys.WakeAttachment(int(attID))
	if err2 != nil {
		if err := writeErr(c, kindOf(err2)); err != nil {
			return err
		}
		return c.Flush()
	}
	return c.Flush()
}

func (w *clientWorker) handleWakeAll(c *etwire.Codec) error {
	stationID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	_ = w.sys.WakeAll(int(stationID))
	return c.Flush()
}

func (w *clientWorker) handleStationCreateAt(c *etwire.Codec) error {
	structOK, err := c.ReadInt32()
	if err != nil {
		return err
	}
	_ = structOK
	flow, err := c.ReadInt32()
	if err != nil {
		return err
	}
	user, err := c.ReadInt32()
	if err != nil {
		return err
	}
	restore, err := c.ReadInt32()
	if err != nil {
		return err
	}
	block, err := c.ReadInt32()
	if err != nil {
		return err
	}
	prescale, err := c.ReadInt32()
	if err != nil {
		return err
	}
	cue, err := c.ReadInt32()
	if err != nil {
		return err
	}
	selectMode, err := c.ReadInt32()
	if err != nil {
		return err
	}
	selectVec, err := c.ReadInt32Vec(w.controlLen)
	if err != nil {
		return err
	}
	funcLen, err := c.ReadInt32()
	if err != nil {
		return err
	}
	libLen, err := c.ReadInt32()
	if err != nil {
		return err
	}
	classLen, err := c.ReadInt32()
	if err != nil {
		return err
	}
	nameLen, err := c.ReadInt32()
	if err != nil {
		return err
	}
	position, err := c.ReadInt32()
	if err != nil {
		return err
	}
	parallelPosition, err := c.ReadInt32()
	if err != nil {
		return err
	}
	funcName, err := c.ReadNulString(int(funcLen))
	if err != nil {
		return err
	}
	libName, err := c.ReadNulString(int(libLen))
	if err != nil {
		return err
	}
	className, err := c.ReadNulString(int(classLen))
	if err != nil {
		return err
	}
	name, err := c.ReadNulString(int(nameLen))
	if err != nil {
		return err
	}

	_ = user // reserved wire field; the predicate identity travels in func, not here

	cfg := station.Config{
		Flow:           station.FlowMode(flow),
		Block:          station.BlockMode(block),
		Select:         station.SelectMode(selectMode),
		Restore:        station.RestoreMode(restore),
		Prescale:       int(prescale),
		CueSize:        int(cue),
		SelectVector:   selectVec,
		UserSelectName: funcName,
		FuncName:       funcName,
		LibName:        libName,
		ClassName:      className,
	}

	if cfg.Select == station.SelectUser {
		if _, ok := w.sys.UserSelectRegistry().Resolve(cfg.UserSelectName); !ok {
			if err := writeErr(c, ether.Error); err != nil {
				return err
			}
			if err := c.WriteInt32(-1); err != nil {
				return err
			}
			return c.Flush()
		}
	}

	st, createErr := w.sys.CreateStation(name, cfg, int(position), int(parallelPosition))
	if createErr != nil {
		if err := writeErr(c, kindOf(createErr)); err != nil {
			return err
		}
		if err := c.WriteInt32(-1); err != nil {
			return err
		}
		return c.Flush()
	}
	if err := writeOK(c); err != nil {
		return err
	}
	if err := c.WriteInt32(int32(st.ID)); err != nil {
		return err
	}
	return c.Flush()
}

func (w *clientWorker) handleStationRemove(c *etwire.Codec) error {
	id, err := c.ReadInt32()
	if err != nil {
		return err
	}
	rmErr := w.sys.RemoveStation(int(id))
	if err := writeErr(c, kindOf(rmErr)); err != nil {
		return err
	}
	return c.Flush()
}

func (w *clientWorker) handleStationSetPos(c *etwire.Codec) error {
	id, err := c.ReadInt32()
	if err != nil {
		return err
	}
	pos, err := c.ReadInt32()
	if err != nil {
		return err
	}
	parPos, err := c.ReadInt32()
	if err != nil {
		return err
	}
	spErr := w.sys.SetStationPosition(int(id), int(pos), int(parPos))
	if err := writeErr(c, kindOf(spErr)); err != nil {
		return err
	}
	return c.Flush()
}

func (w *clientWorker) handleStationGetPos(c *etwire.Codec) error {
	id, err := c.ReadInt32()
	if err != nil {
		return err
	}
	st, ok := w.sys.StationByID(int(id))
	if !ok {
		if err := writeErr(c, ether.ErrorBadArgs); err != nil {
			return err
		}
		if err := c.WriteInt32(0); err != nil {
			return err
		}
		if err := c.WriteInt32(0); err != nil {
			return err
		}
		return c.Flush()
	}
	if err := writeOK(c); err != nil {
		return err
	}
	if err := c.WriteInt32(int32(st.Position)); err != nil {
		return err
	}
	if err := c.WriteInt32(int32(st.ParallelPosition)); err != nil {
		return err
	}
	return c.Flush()
}

func (w *clientWorker) handleStationExists(c *etwire.Codec) error {
	nameLen, err := c.ReadInt32()
	if err != nil {
		return err
	}
	name, err := c.ReadNulString(int(nameLen))
	if err != nil {
		return err
	}
	id, ok := w.sys.StationExists(name)
	found := int32(0)
	if ok {
		found = 1
	}
	if err := c.WriteInt32(found); err != nil {
		return err
	}
	if err := c.WriteInt32(int32(id)); err != nil {
		return err
	}
	return c.Flush()
}

func (w *clientWorker) handleStationAttach(c *etwire.Codec) error {
	stationID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	pid, err := c.ReadInt32()
	if err != nil {
		return err
	}
	hostLen, err := c.ReadInt32()
	if err != nil {
		return err
	}
	host, err := c.ReadNulString(int(hostLen))
	if err != nil {
		return err
	}

	a, attErr := w.sys.Attach(int(stationID), int(pid), host)
	if attErr != nil {
		if err := writeErr(c, kindOf(attErr)); err != nil {
			return err
		}
		if err := c.WriteInt32(-1); err != nil {
			return err
		}
		return c.Flush()
	}
	w.attachments = append(w.attachments, a.ID)
	if err := writeOK(c); err != nil {
		return err
	}
	if err := c.WriteInt32(int32(a.ID)); err != nil {
		return err
	}
	return c.Flush()
}

func (w *clientWorker) handleStationDetach(c *etwire.Codec) error {
	attID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	_ = w.sys.Detach(int(attID))
	w.forgetAttachment(int(attID))
	return c.Flush()
}

func (w *clientWorker) forgetAttachment(id int) {
	out := w.attachments[:0]
	for _, a := range w.attachments {
		if a != id {
			out = append(out, a)
		}
	}
	w.attachments = out
}

func (w *clientWorker) handleStationIsAttached(c *etwire.Codec) error {
	stationID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	attID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	attached := int32(0)
	if w.sys.IsAttached(int(stationID), int(attID)) {
		attached = 1
	}
	if err := c.WriteInt32(attached); err != nil {
		return err
	}
	return c.Flush()
}

// station returns the station this attachment is bound to, writing an
// error response and returning ok=false if the attachment or station is
// unknown.
func (w *clientWorker) stationForAttachment(c *etwire.Codec, attID int32) (*station.Station, *station.Attachment, bool, error) {
	a, ok := w.sys.AttachmentByID(int(attID))
	if !ok || !a.Usable() {
		if err := writeErr(c, ether.ErrorDead); err != nil {
			return nil, nil, false, err
		}
		return nil, nil, false, nil
	}
	st, ok := w.sys.StationByID(a.StationID)
	if !ok {
		if err := writeErr(c, ether.ErrorBadArgs); err != nil {
			return nil, nil, false, err
		}
		return nil, nil, false, nil
	}
	return st, a, true, nil
}

func (w *clientWorker) handleEvsNewGrp(c *etwire.Codec) error {
	attID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	mode, err := c.ReadInt32()
	if err != nil {
		return err
	}
	if _, err := c.ReadInt64(); err != nil { // size: per-event capacity hint, not enforced here
		return err
	}
	count, err := c.ReadInt32()
	if err != nil {
		return err
	}
	group, err := c.ReadInt32()
	if err != nil {
		return err
	}
	sec, err := c.ReadInt32()
	if err != nil {
		return err
	}
	nsec, err := c.ReadInt32()
	if err != nil {
		return err
	}

	_, a, ok, werr := w.stationForAttachment(c, attID)
	if werr != nil || !ok {
		if werr != nil {
			return werr
		}
		return c.Flush()
	}

	gc := w.sys.GrandCentral()
	timeout := time.Duration(sec)*time.Second + time.Duration(nsec)*time.Nanosecond
	evs, getErr := gc.Input.GetByGroup(a.Waiter, eventlistMode(mode), timeout, int(count), int(group))
	if getErr != nil {
		if err := writeErr(c, kindOf(getErr)); err != nil {
			return err
		}
		return c.Flush()
	}
	for _, ev := range evs {
		ev.Owner = a.ID
	}
	a.TrackHeld(evs)

	if err := writeOK(c); err != nil {
		return err
	}
	if err := c.WriteInt32(int32(len(evs))); err != nil {
		return err
	}
	for _, ev := range evs {
		if err := c.WriteInt32(int32(ev.ID)); err != nil {
			return err
		}
	}
	return c.Flush()
}

func eventlistMode(wire int32) eventlist.Mode {
	switch etwire.GetMode(wire) {
	case etwire.WireTimed:
		return eventlist.Timed
	case etwire.WireSleep:
		return eventlist.Sleep
	default:
		return eventlist.Async
	}
}

func (w *clientWorker) handleEvsGet(c *etwire.Codec) error {
	attID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	wait, err := c.ReadInt32()
	if err != nil {
		return err
	}
	modify, err := c.ReadInt32()
	if err != nil {
		return err
	}
	count, err := c.ReadInt32()
	if err != nil {
		return err
	}
	sec, err := c.ReadInt32()
	if err != nil {
		return err
	}
	nsec, err := c.ReadInt32()
	if err != nil {
		return err
	}

	st, a, ok, werr := w.stationForAttachment(c, attID)
	if werr != nil || !ok {
		if werr != nil {
			return werr
		}
		return c.Flush()
	}

	timeout := time.Duration(sec)*time.Second + time.Duration(nsec)*time.Nanosecond
	evs, getErr := st.Input.Get(a.Waiter, eventlistMode(wait), timeout, int(count))
	if getErr != nil {
		if err := writeErr(c, kindOf(getErr)); err != nil {
			return err
		}
		return c.Flush()
	}
	mod := event.Modify(modify)
	if modify&int32(event.ModifyHeaderAndData) != 0 {
		mod = event.ModifyHeaderAndData // header_and_data supersedes header_only
	}
	for _, ev := range evs {
		ev.Owner = a.ID
		ev.Modify = mod
	}
	a.TrackHeld(evs)
	if w.m != nil {
		w.m.EventsOutTotal.WithLabelValues(st.Name).Add(float64(len(evs)))
	}

	totalSize := int64(0)
	for _, ev := range evs {
		totalSize += int64(ev.Length)
	}

	if err := writeOK(c); err != nil {
		return err
	}
	if err := c.WriteInt32(int32(len(evs))); err != nil {
		return err
	}
	if err := c.WriteInt64(totalSize); err != nil {
		return err
	}
	for _, ev := range evs {
		if err := c.WriteEventHeader(ev); err != nil {
			return err
		}
		if event.Modify(modify) != event.ModifyNone {
			if err := c.WriteBytes(ev.Data[:ev.Length]); err != nil {
				return err
			}
		}
	}
	return c.Flush()
}

func (w *clientWorker) handleEvsPut(c *etwire.Codec) error {
	attID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	n, err := c.ReadInt32()
	if err != nil {
		return err
	}
	if _, err := c.ReadInt64(); err != nil { // total_bytes
		return err
	}

	st, a, ok, werr := w.stationForAttachment(c, attID)
	if werr != nil || !ok {
		if werr != nil {
			return werr
		}
		return c.Flush()
	}

	put := make([]*event.Event, 0, n)
	for i := int32(0); i < n; i++ {
		id, err := c.ReadInt32()
		if err != nil {
			return err
		}
		if _, err := c.ReadInt32(); err != nil { // reserved
			return err
		}
		length, err := c.ReadInt64()
		if err != nil {
			return err
		}
		priAndStatus, err := c.ReadInt32()
		if err != nil {
			return err
		}
		byteOrder, err := c.ReadInt32()
		if err != nil {
			return err
		}
		if _, err := c.ReadInt32(); err != nil { // reserved
			return err
		}
		control, err := c.ReadInt32Vec(w.controlLen)
		if err != nil {
			return err
		}

		ev := a.FindHeld(int(id))
		if ev == nil {
			if err := writeErr(c, ether.ErrorBadArgs); err != nil {
				return err
			}
			return c.Flush()
		}
		if err := ev.SetLength(int(length)); err != nil {
			if err := writeErr(c, ether.ErrorBadArgs); err != nil {
				return err
			}
			return c.Flush()
		}
		ev.Priority = event.Priority(priAndStatus & 0xFF)
		ev.DataStatus = event.DataStatus((priAndStatus >> 8) & 0xFF)
		ev.ByteOrder = event.ByteOrder(byteOrder)
		copy(ev.Control, control)

		if ev.Modify == event.ModifyHeaderAndData {
			data, err := c.ReadBytes(int(length))
			if err != nil {
				return err
			}
			copy(ev.Data, data)
		}
		put = append(put, ev)
	}

	st.Output.Put(put)
	a.ReleaseHeld(put)
	if w.m != nil {
		w.m.EventsInTotal.WithLabelValues(st.Name).Add(float64(len(put)))
	}

	return writeOKFlush(c)
}

func (w *clientWorker) handleEvsDump(c *etwire.Codec) error {
	attID, err := c.ReadInt32()
	if err != nil {
		return err
	}
	n, err := c.ReadInt32()
	if err != nil {
		return err
	}
	_, a, ok, werr := w.stationForAttachment(c, attID)
	if werr != nil || !ok {
		if werr != nil {
			return werr
		}
		return c.Flush()
	}

	ids := make([]int, n)
	for i := range ids {
		id, err := c.ReadInt32()
		if err != nil {
			return err
		}
		ids[i] = int(id)
	}

	held := a.DrainHeld()
	byID := make(map[int]*event.Event, len(held))
	for _, ev := range held {
		byID[ev.ID] = ev
	}

	dump := make([]*event.Event, 0, len(ids))
	dumpSet := make(map[int]bool, len(ids))
	for _, id := range ids {
		ev, ok := byID[id]
		if !ok {
			a.TrackHeld(held) // nothing consumed yet: restore the full held set unchanged
			if err := writeErr(c, ether.ErrorBadArgs); err != nil {
				return err
			}
			return c.Flush()
		}
		dumpSet[id] = true
		dump = append(dump, ev)
	}
	for _, ev := range dump {
		ev.Reset()
	}

	keep := make([]*event.Event, 0, len(held)-len(dump))
	for _, ev := range held {
		if !dumpSet[ev.ID] {
			keep = append(keep, ev)
		}
	}
	a.TrackHeld(keep)

	gc := w.sys.GrandCentral()
	gc.Input.PutInGC(dump)

	return writeOKFlush(c)
}

func writeOKFlush(c *etwire.Codec) error {
	if err := writeOK(c); err != nil {
		return err
	}
	return c.Flush()
}

// handleSysData serializes the full SYS_DATA contract (spec.md §6.1): err,
// total_size, system_stats, n_stations, station_stats[], n_attachments,
// attachment_stats[], n_procs, proc_stats[] — proc_stats[] groups
// attachment_stats[] by pid, since ET tracks one pid per attachment rather
// than a separate process table.
func (w *clientWorker) handleSysData(c *etwire.Codec) error {
	stats := w.sys.Stats()
	stations := w.sys.Stations()
	attachments := w.sys.Attachments()

	procCounts := make(map[int]int)
	for _, a := range attachments {
		procCounts[a.PID]++
	}
	pids := make([]int, 0, len(procCounts))
	for pid := range procCounts {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	if err := writeOK(c); err != nil {
		return err
	}

	totalSize := int32(4+4) + int32(len(stations))*16 + int32(len(attachments))*12 + int32(len(pids))*8
	if err := c.WriteInt32(totalSize); err != nil {
		return err
	}

	if err := c.WriteInt32(int32(stats.NumEvents)); err != nil {
		return err
	}
	if err := c.WriteInt32(int32(len(stations))); err != nil {
		return err
	}
	for _, st := range stations {
		in := st.Input.Stats()
		out := st.Output.Stats()
		if err := c.WriteInt32(int32(st.ID)); err != nil {
			return err
		}
		if err := c.WriteInt32(int32(in.Length)); err != nil {
			return err
		}
		if err := c.WriteInt32(int32(out.Length)); err != nil {
			return err
		}
		if err := c.WriteInt32(int32(st.AttachmentCount())); err != nil {
			return err
		}
	}

	if err := c.WriteInt32(int32(len(attachments))); err != nil {
		return err
	}
	for _, a := range attachments {
		if err := c.WriteInt32(int32(a.ID)); err != nil {
			return err
		}
		if err := c.WriteInt32(int32(a.StationID)); err != nil {
			return err
		}
		if err := c.WriteInt32(int32(a.PID)); err != nil {
			return err
		}
	}

	if err := c.WriteInt32(int32(len(pids))); err != nil {
		return err
	}
	for _, pid := range pids {
		if err := c.WriteInt32(int32(pid)); err != nil {
			return err
		}
		if err := c.WriteInt32(int32(procCounts[pid])); err != nil {
			return err
		}
	}

	return c.Flush()
}

func (w *clientWorker) handleSysHistogram(c *etwire.Codec) error {
	stats := w.sys.Stats()
	if err := writeOK(c); err != nil {
		return err
	}
	hist := make([]int32, stats.NumEvents+1)
	for _, st := range w.sys.Stations() {
		l := st.Input.Stats().Length
		if l <= stats.NumEvents {
			hist[l]++
		}
	}
	if err := c.WriteInt32Vec(hist); err != nil {
		return err
	}
	return c.Flush()
}

func (w *clientWorker) handleSysCount(c *etwire.Codec, cmd etwire.Command) error {
	stats := w.sys.Stats()
	var value int32
	switch cmd {
	case etwire.CmdSysNumStations:
		value = int32(stats.NumStations)
	case etwire.CmdSysMaxStations:
		value = int32(stats.MaxStations)
	case etwire.CmdSysNumAttachments:
		value = int32(stats.NumAttachments)
	case etwire.CmdSysMaxAttachments:
		value = int32(stats.MaxAttachments)
	case etwire.CmdSysHeartbeat:
		value = 1
	case etwire.CmdSysPid:
		value = int32(os.Getpid())
	}
	if err := writeOK(c); err != nil {
		return err
	}
	if err := c.WriteInt32(0); err != nil { // skip 4
		return err
	}
	if err := c.WriteInt32(value); err != nil {
		return err
	}
	return c.Flush()
}

func kindOf(err error) ether.Kind {
	ke, ok := err.(*ether.KindErr)
	if !ok {
		return ether.Error
	}
	return ke.Kind
}
