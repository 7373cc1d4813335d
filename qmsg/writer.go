// SPDX-License-Identifier: GPL-2.0-or-later

// Package qmsg implements the byte level message codec. Everything on
// the wire is little endian. Coords are 13.3 fixed point shorts,
// angles are bytes of 360/256 degree, angle16 shorts of 360/65536.
package qmsg

import (
	"encoding/binary"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

var (
	ErrTruncated = errors.New("qmsg: read past end of message")
	ErrMalformed = errors.New("qmsg: malformed message")
)

// Writer is a bounded message buffer. A write past the limit latches
// the overflow flag. With AllowOverflow set the buffer is cleared and
// the write retried, otherwise the write is dropped. Either way the
// caller sees it through Overflowed and no write ever fails loudly.
type Writer struct {
	buf           []byte
	max           int
	allowOverflow bool
	overflowed    bool
}

func NewWriter(max int) *Writer {
	return &Writer{buf: make([]byte, 0, max), max: max}
}

func NewOverflowWriter(max int) *Writer {
	w := NewWriter(max)
	w.allowOverflow = true
	return w
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Overflowed() bool {
	return w.overflowed
}

func (w *Writer) HasMessage() bool {
	return len(w.buf) > 0
}

func (w *Writer) Clear() {
	w.buf = w.buf[:0]
	w.overflowed = false
}

func (w *Writer) space(n int) bool {
	if len(w.buf)+n <= w.max {
		return true
	}
	w.overflowed = true
	if !w.allowOverflow {
		return false
	}
	w.buf = w.buf[:0]
	return len(w.buf)+n <= w.max
}

// WriteByte matches io.ByteWriter. The error is always nil, overflow
// is reported through Overflowed like every other write.
func (w *Writer) WriteByte(c byte) error {
	if !w.space(1) {
		return nil
	}
	w.buf = append(w.buf, c)
	return nil
}

func (w *Writer) WriteChar(c int) {
	w.WriteByte(byte(c))
}

func (w *Writer) WriteShort(c int) {
	if !w.space(2) {
		return
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(c))
}

func (w *Writer) WriteLong(c int) {
	if !w.space(4) {
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(c))
}

func (w *Writer) WriteFloat(f float32) {
	if !w.space(4) {
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math32.Float32bits(f))
}

func (w *Writer) WriteString(s string) {
	if !w.space(len(s) + 1) {
		return
	}
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *Writer) WriteBytes(b []byte) {
	if !w.space(len(b)) {
		return
	}
	w.buf = append(w.buf, b...)
}

func rint(x float32) int {
	return int(math32.Round(x))
}

func (w *Writer) WriteCoord(f float32) {
	w.WriteShort(rint(f * 8))
}

func (w *Writer) WriteAngle(f float32) {
	w.WriteByte(byte(rint(f * 256.0 / 360.0)))
}

func (w *Writer) WriteAngle16(f float32) {
	w.WriteShort(rint(f*65536.0/360.0) & 65535)
}

// SetByte patches an already written byte. clc_move uses it to stamp
// the checksum after the body is complete.
func (w *Writer) SetByte(i int, v byte) {
	if i < 0 || i >= len(w.buf) {
		return
	}
	w.buf[i] = v
}
