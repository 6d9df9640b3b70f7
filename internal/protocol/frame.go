// Package protocol implements the framed, length-prefixed, varint-tagged
// wire codec shared by the client listener and every backend connection:
// length-prefixed frames, a varint packet id, an optional zlib-compressed
// body once a threshold is negotiated, and the lazy packet wrapper that
// defers body deserialization until a pass actually needs it.
package protocol

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// State is the per-direction protocol state, mirroring the handshake ->
// {status|login} -> play progression of the real game protocol.
type State int32

const (
	StateHandshake State = iota
	StateStatus
	StateLogin
	StatePlay
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateStatus:
		return "status"
	case StateLogin:
		return "login"
	case StatePlay:
		return "play"
	default:
		return "unknown"
	}
}

// Frame is one raw, framed wire message: a packet id plus its undecoded
// body. It carries no semantic payload type — that's LazyPacket's job.
type Frame struct {
	ID   int32
	Body []byte
}

// putVarint appends a protobuf-style zig-zag-free varint (the game
// protocol's varint is unsigned LEB128) to buf.
func putVarint(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf.WriteByte(b | 0x80)
		} else {
			buf.WriteByte(b)
			return
		}
	}
}

func readVarint(r io.ByteReader) (uint64, int, error) {
	var v uint64
	var n int
	for shift := uint(0); ; shift += 7 {
		if shift >= 64 {
			return 0, n, fmt.Errorf("protocol: varint too long")
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, err
		}
		n++
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, n, nil
		}
	}
}

// Conn is a framed duplex connection over an underlying io.ReadWriteCloser.
// Reads are single-goroutine (the relay loop or dummy watcher that owns
// the connection); writes are serialized by an internal mutex because a
// pass may need to write a synthetic reply on a writer other than the
// packet's destination (keep-alive replies, teleport confirms, kicks).
// State and CompressionThreshold changes apply to subsequently
// read/written frames only.
type Conn struct {
	rw                   io.ReadWriteCloser
	r                    *bufio.Reader
	state                State
	compressionThreshold int // <0 disables compression entirely
	alive                int32 // atomic bool; read by watchers and the admin feed

	wmu sync.Mutex

	bytesRead    int64 // atomic
	bytesWritten int64 // atomic
}

// NewConn wraps rw as a framed duplex connection. Compression starts
// disabled (threshold < 0); call SetCompressionThreshold once the login
// handshake negotiates one.
func NewConn(rw io.ReadWriteCloser) *Conn {
	return &Conn{
		rw:                   rw,
		r:                    bufio.NewReaderSize(rw, 4096),
		state:                StateHandshake,
		compressionThreshold: -1,
		alive:                1,
	}
}

// State returns the connection's current per-direction state.
func (c *Conn) State() State { return c.state }

// SetState changes the connection's protocol state. Affects subsequent
// frames only.
func (c *Conn) SetState(s State) { c.state = s }

// SetCompressionThreshold enables (threshold >= 0) or disables
// (threshold < 0) frame compression for subsequent frames. Frames whose
// uncompressed body is shorter than the threshold are sent uncompressed.
func (c *Conn) SetCompressionThreshold(threshold int) { c.compressionThreshold = threshold }

// Alive reports whether the connection is still considered usable. It is
// cleared on fatal read/write errors or orderly close.
func (c *Conn) Alive() bool { return atomic.LoadInt32(&c.alive) != 0 }

func (c *Conn) markDead() { atomic.StoreInt32(&c.alive, 0) }

// BytesRead and BytesWritten report running totals, used by the admin
// status feed (human-formatted there with jpillora/sizestr).
func (c *Conn) BytesRead() int64    { return atomic.LoadInt64(&c.bytesRead) }
func (c *Conn) BytesWritten() int64 { return atomic.LoadInt64(&c.bytesWritten) }

// ReadFrame returns the next frame, io.EOF on an orderly close, or a
// framing error. A framing error is fatal: the caller should mark the
// connection dead and stop reading.
func (c *Conn) ReadFrame() (*Frame, error) {
	length, _, err := readVarint(c.r)
	if err != nil {
		if err == io.EOF {
			c.markDead()
		}
		return nil, err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(c.r, raw); err != nil {
		c.markDead()
		return nil, fmt.Errorf("protocol: short frame body: %w", err)
	}
	atomic.AddInt64(&c.bytesRead, int64(length)+1)

	body := raw
	if c.compressionThreshold >= 0 {
		body, err = c.decompress(raw)
		if err != nil {
			c.markDead()
			return nil, err
		}
	}

	br := bytes.NewReader(body)
	id, _, err := readVarint(br)
	if err != nil {
		c.markDead()
		return nil, fmt.Errorf("protocol: malformed packet id: %w", err)
	}
	rest := make([]byte, br.Len())
	if _, err := io.ReadFull(br, rest); err != nil {
		return nil, fmt.Errorf("protocol: malformed packet body: %w", err)
	}
	return &Frame{ID: int32(id), Body: rest}, nil
}

// decompress handles the compression-enabled framing: a varint
// "data length" (0 meaning "this frame was below the threshold and is
// not compressed") followed by a zlib stream when non-zero.
func (c *Conn) decompress(raw []byte) ([]byte, error) {
	br := bytes.NewReader(raw)
	dataLen, n, err := readVarint(br)
	if err != nil {
		return nil, fmt.Errorf("protocol: malformed compressed frame: %w", err)
	}
	if dataLen == 0 {
		rest := make([]byte, len(raw)-n)
		copy(rest, raw[n:])
		return rest, nil
	}
	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("protocol: zlib: %w", err)
	}
	defer zr.Close()
	out := make([]byte, dataLen)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("protocol: zlib short read: %w", err)
	}
	return out, nil
}

// WriteFrame serializes and writes a frame verbatim, the "forward raw"
// fast path used when a packet passes through unmodified.
func (c *Conn) WriteFrame(f *Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	var packet bytes.Buffer
	putVarint(&packet, uint64(uint32(f.ID)))
	packet.Write(f.Body)

	var out bytes.Buffer
	if c.compressionThreshold >= 0 {
		if err := c.writeCompressed(&out, packet.Bytes()); err != nil {
			return err
		}
	} else {
		out = packet
	}

	var framed bytes.Buffer
	putVarint(&framed, uint64(out.Len()))
	framed.Write(out.Bytes())

	n, err := c.rw.Write(framed.Bytes())
	atomic.AddInt64(&c.bytesWritten, int64(n))
	if err != nil {
		c.markDead()
		return fmt.Errorf("protocol: write: %w", err)
	}
	return nil
}

func (c *Conn) writeCompressed(out *bytes.Buffer, packet []byte) error {
	if len(packet) < c.compressionThreshold {
		putVarint(out, 0)
		out.Write(packet)
		return nil
	}
	var zbuf bytes.Buffer
	zw := zlib.NewWriter(&zbuf)
	if _, err := zw.Write(packet); err != nil {
		return fmt.Errorf("protocol: zlib write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("protocol: zlib close: %w", err)
	}
	putVarint(out, uint64(len(packet)))
	out.Write(zbuf.Bytes())
	return nil
}

// Close closes the underlying connection and marks it dead. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.markDead()
	return c.rw.Close()
}
