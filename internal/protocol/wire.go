package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"
)

// reader/writer are small helpers shared by every packet codec in
// packets.go, covering the wire's varint/uuid/length-prefixed-string
// primitive mix on top of encoding/binary.
type reader struct {
	buf *bytes.Reader
}

func newReader(body []byte) *reader { return &reader{buf: bytes.NewReader(body)} }

func (r *reader) varint() (int32, error) {
	v, _, err := readVarint(r.buf)
	return int32(v), err
}

func (r *reader) i8() (int8, error) {
	b, err := r.buf.ReadByte()
	return int8(b), err
}

func (r *reader) u8() (uint8, error) {
	return r.buf.ReadByte()
}

func (r *reader) bool() (bool, error) {
	b, err := r.buf.ReadByte()
	return b != 0, err
}

func (r *reader) i16() (int16, error) {
	var v int16
	err := binary.Read(r.buf, binary.BigEndian, &v)
	return v, err
}

func (r *reader) i32() (int32, error) {
	var v int32
	err := binary.Read(r.buf, binary.BigEndian, &v)
	return v, err
}

func (r *reader) i64() (int64, error) {
	var v int64
	err := binary.Read(r.buf, binary.BigEndian, &v)
	return v, err
}

func (r *reader) f32() (float32, error) {
	var v uint32
	if err := binary.Read(r.buf, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *reader) f64() (float64, error) {
	var v uint64
	if err := binary.Read(r.buf, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *reader) str() (string, error) {
	n, err := r.varint()
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > r.buf.Len() {
		return "", fmt.Errorf("protocol: string length %d out of range", n)
	}
	b := make([]byte, n)
	if _, err := r.buf.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) uuid() (uuid.UUID, error) {
	var b [16]byte
	if _, err := r.buf.Read(b[:]); err != nil {
		return uuid.Nil, err
	}
	return uuid.UUID(b), nil
}

func (r *reader) rest() []byte {
	b := make([]byte, r.buf.Len())
	r.buf.Read(b)
	return b
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) varint(v int32) { putVarint(&w.buf, uint64(uint32(v))) }
func (w *writer) i8(v int8)      { w.buf.WriteByte(byte(v)) }
func (w *writer) u8(v uint8)     { w.buf.WriteByte(v) }
func (w *writer) boolean(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}
func (w *writer) i16(v int16) { binary.Write(&w.buf, binary.BigEndian, v) }
func (w *writer) i32(v int32) { binary.Write(&w.buf, binary.BigEndian, v) }
func (w *writer) i64(v int64) { binary.Write(&w.buf, binary.BigEndian, v) }
func (w *writer) f32(v float32) {
	binary.Write(&w.buf, binary.BigEndian, math.Float32bits(v))
}
func (w *writer) f64(v float64) {
	binary.Write(&w.buf, binary.BigEndian, math.Float64bits(v))
}
func (w *writer) str(v string) {
	w.varint(int32(len(v)))
	w.buf.WriteString(v)
}
func (w *writer) uuidBytes(v uuid.UUID) { w.buf.Write(v[:]) }
func (w *writer) raw(b []byte)          { w.buf.Write(b) }
func (w *writer) bytes() []byte         { return w.buf.Bytes() }
