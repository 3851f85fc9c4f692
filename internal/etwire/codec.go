package etwire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/coda-et/etransport/internal/event"
)

// Codec reads and writes the fixed-width big-endian primitives the wire
// protocol is built from, over one connection's buffered stream.
type Codec struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewCodec wraps rw in buffered big-endian framing.
func NewCodec(r io.Reader, w io.Writer) *Codec {
	return &Codec{r: bufio.NewReader(r), w: bufio.NewWriter(w)}
}

func (c *Codec) ReadInt32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func (c *Codec) ReadInt64() (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(c.r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func (c *Codec) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadNulString reads a fixed-length NUL-terminated ASCII field of width
// n bytes, trimming the trailing NUL padding.
func (c *Codec) ReadNulString(n int) (string, error) {
	buf, err := c.ReadBytes(n)
	if err != nil {
		return "", err
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return string(buf), nil
}

func (c *Codec) ReadInt32Vec(k int) ([]int32, error) {
	out := make([]int32, k)
	for i := range out {
		v, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *Codec) WriteInt32(v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := c.w.Write(buf[:])
	return err
}

func (c *Codec) WriteInt64(v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := c.w.Write(buf[:])
	return err
}

func (c *Codec) WriteBytes(b []byte) error {
	_, err := c.w.Write(b)
	return err
}

func (c *Codec) WriteInt32Vec(vs []int32) error {
	for _, v := range vs {
		if err := c.WriteInt32(v); err != nil {
			return err
		}
	}
	return nil
}

// Flush pushes any buffered writes to the underlying connection. Every
// request handler must flush exactly once, after the full response is
// written (spec.md §4.7: "serialize the response... flush").
func (c *Codec) Flush() error { return c.w.Flush() }

// eventHeader is the wire's fixed 9-int-plus-K-select-ints event header
// (spec.md §6.1) as read back by readEventHeader, the mirror of
// WriteEventHeader. EVS_PUT's wire layout omits mem_size and orders its
// fields differently (it fills in an already-allocated held event rather
// than describing a freshly produced one), so handleEvsPut reads its own
// fields directly instead of going through this type; it stays unexported,
// exercised only by this package's round-trip test.
type eventHeader struct {
	Length     int64
	MemSize    int64
	PriAndStat int32
	ID         int32
	ByteOrder  int32
	Control    []int32
}

// WriteEventHeader serializes one event's header, packing Priority and
// DataStatus into a single pri_and_status field (priority in the low
// byte, status in the next byte) as the reference wire format does.
func (c *Codec) WriteEventHeader(ev *event.Event) error {
	if err := c.WriteInt64(int64(ev.Length)); err != nil {
		return err
	}
	if err := c.WriteInt64(int64(ev.Capacity)); err != nil {
		return err
	}
	priAndStatus := int32(ev.Priority) | int32(ev.DataStatus)<<8
	if err := c.WriteInt32(priAndStatus); err != nil {
		return err
	}
	if err := c.WriteInt32(int32(ev.ID)); err != nil {
		return err
	}
	if err := c.WriteInt32(0); err != nil { // reserved
		return err
	}
	if err := c.WriteInt32(int32(ev.ByteOrder)); err != nil {
		return err
	}
	if err := c.WriteInt32(0); err != nil { // reserved
		return err
	}
	return c.WriteInt32Vec(ev.Control)
}

// readEventHeader deserializes one event header, control vector length K
// fixed by the system's configured control length.
func (c *Codec) readEventHeader(k int) (*eventHeader, error) {
	length, err := c.ReadInt64()
	if err != nil {
		return nil, err
	}
	memSize, err := c.ReadInt64()
	if err != nil {
		return nil, err
	}
	priAndStat, err := c.ReadInt32()
	if err != nil {
		return nil, err
	}
	id, err := c.ReadInt32()
	if err != nil {
		return nil, err
	}
	if _, err := c.ReadInt32(); err != nil { // reserved
		return nil, err
	}
	byteOrder, err := c.ReadInt32()
	if err != nil {
		return nil, err
	}
	if _, err := c.ReadInt32(); err != nil { // reserved
		return nil, err
	}
	control, err := c.ReadInt32Vec(k)
	if err != nil {
		return nil, err
	}
	return &eventHeader{
		Length:     length,
		MemSize:    memSize,
		PriAndStat: priAndStat,
		ID:         id,
		ByteOrder:  byteOrder,
		Control:    control,
	}, nil
}

// priority extracts the low byte of pri_and_status.
func (h *eventHeader) priority() int32 { return h.PriAndStat & 0xFF }

// dataStatus extracts the next byte of pri_and_status.
func (h *eventHeader) dataStatus() int32 { return (h.PriAndStat >> 8) & 0xFF }
