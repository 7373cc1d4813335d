// SPDX-License-Identifier: GPL-2.0-or-later

package qmsg

import (
	"encoding/binary"
	"strings"

	"github.com/chewxy/math32"
)

// Reader walks a received message. The first failed read latches
// ErrTruncated and every later read fails with it too, so a parse loop
// may read a whole fixed layout and check the error once at the end.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Err() error {
	return r.err
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.off
}

// Offset returns the read cursor, used for error context.
func (r *Reader) Offset() int {
	return r.off
}

// Slice returns the raw bytes between two cursor positions. Checksum
// verification runs over the exact wire bytes, not the decoded form.
func (r *Reader) Slice(from, to int) []byte {
	return r.data[from:to]
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) ReadByte() (byte, error) {
	b := r.take(1)
	if b == nil {
		return 0, r.err
	}
	return b[0], nil
}

func (r *Reader) ReadChar() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

func (r *Reader) ReadShort() (int16, error) {
	b := r.take(2)
	if b == nil {
		return 0, r.err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	i, err := r.ReadShort()
	return uint16(i), err
}

func (r *Reader) ReadLong() (int32, error) {
	b := r.take(4)
	if b == nil {
		return 0, r.err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (r *Reader) ReadFloat() (float32, error) {
	b := r.take(4)
	if b == nil {
		return 0, r.err
	}
	return math32.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (r *Reader) ReadString() (string, error) {
	if r.err != nil {
		return "", r.err
	}
	sb := strings.Builder{}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
		sb.WriteByte(b)
	}
	return sb.String(), nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b := r.take(n)
	if b == nil {
		return nil, r.err
	}
	return b, nil
}

func (r *Reader) ReadCoord() (float32, error) {
	i, err := r.ReadShort()
	return float32(i) * (1.0 / 8.0), err
}

func (r *Reader) ReadAngle() (float32, error) {
	i, err := r.ReadChar()
	return float32(i) * (360.0 / 256.0), err
}

func (r *Reader) ReadAngle16() (float32, error) {
	i, err := r.ReadShort()
	return float32(i) * (360.0 / 65536.0), err
}
