// SPDX-License-Identifier: GPL-2.0-or-later

// Package clc implements the client to server message catalog.
package clc

import (
	"github.com/pkg/errors"

	"qwire/crc"
	"qwire/protocol"
	"qwire/qmsg"
)

var (
	ErrUnknownOpcode = errors.New("clc: unknown opcode")
	// ErrChecksumMismatch marks a move whose checksum byte does not
	// match. The move is dropped, the session survives.
	ErrChecksumMismatch = errors.New("clc: move checksum mismatch")
)

// Message is one client to server message. Append needs the outgoing
// sequence because the move checksum is seeded with it.
type Message interface {
	Append(w *qmsg.Writer, sequence uint32)
}

type Nop struct{}

func (Nop) Append(w *qmsg.Writer, _ uint32) { w.WriteByte(protocol.ClcNop) }

type StringCmd struct {
	Cmd string
}

func (m StringCmd) Append(w *qmsg.Writer, _ uint32) {
	w.WriteByte(protocol.ClcStringCmd)
	w.WriteString(m.Cmd)
}

// Move carries the last three movement commands, delta coded in a
// chain from the null command. Lost is the measured loss percentage.
// The checksum byte is stamped over the body after it is written.
type Move struct {
	Lost byte
	Cmds [3]protocol.UserCmd

	// BadChecksum is set by the parser when the stamped byte does
	// not match the body under the incoming sequence.
	BadChecksum bool
}

func (m Move) Append(w *qmsg.Writer, sequence uint32) {
	w.WriteByte(protocol.ClcMove)
	checksumIndex := w.Len()
	w.WriteByte(0)
	w.WriteByte(byte(m.Lost))

	var null protocol.UserCmd
	qmsg.WriteDeltaUserCmd(w, &null, &m.Cmds[0])
	qmsg.WriteDeltaUserCmd(w, &m.Cmds[0], &m.Cmds[1])
	qmsg.WriteDeltaUserCmd(w, &m.Cmds[1], &m.Cmds[2])

	body := w.Bytes()[checksumIndex+1:]
	w.SetByte(checksumIndex, crc.BlockSequence(body, sequence))
}

// Delta announces which frame the client accepts entity deltas
// against, the low eight bits of its sequence number.
type Delta struct {
	Sequence byte
}

func (m Delta) Append(w *qmsg.Writer, _ uint32) {
	w.WriteByte(protocol.ClcDelta)
	w.WriteByte(byte(m.Sequence))
}

// TMove is a teleport move request, spectators use it to warp.
type TMove struct {
	Origin [3]float32
}

func (m TMove) Append(w *qmsg.Writer, _ uint32) {
	w.WriteByte(protocol.ClcTMove)
	for _, c := range m.Origin {
		w.WriteCoord(c)
	}
}

type Upload struct {
	Size    int16
	Percent byte
	Data    []byte
}

func (m Upload) Append(w *qmsg.Writer, _ uint32) {
	w.WriteByte(protocol.ClcUpload)
	w.WriteShort(int(m.Size))
	w.WriteByte(byte(m.Percent))
	if m.Size > 0 {
		w.WriteBytes(m.Data)
	}
}

// Parse consumes a whole in-band payload from a client. sequence is
// the netchan sequence the packet arrived under, it seeds the move
// checksum. A move with a bad checksum is returned with BadChecksum
// set rather than failing the parse.
func Parse(r *qmsg.Reader, sequence uint32) ([]Message, error) {
	var msgs []Message
	for r.Len() > 0 {
		m, err := parseOne(r, sequence)
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func parseOne(r *qmsg.Reader, sequence uint32) (Message, error) {
	off := r.Offset()
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var m Message
	switch op {
	case protocol.ClcNop:
		m = Nop{}
	case protocol.ClcStringCmd:
		var v StringCmd
		v.Cmd, _ = r.ReadString()
		m = v
	case protocol.ClcMove:
		m, err = parseMove(r, sequence)
	case protocol.ClcDelta:
		var v Delta
		v.Sequence, _ = r.ReadByte()
		m = v
	case protocol.ClcTMove:
		var v TMove
		for i := range v.Origin {
			v.Origin[i], _ = r.ReadCoord()
		}
		m = v
	case protocol.ClcUpload:
		m, err = parseUpload(r)
	default:
		return nil, errors.Wrapf(ErrUnknownOpcode, "opcode %d at offset %d", op, off)
	}

	if err == nil {
		err = r.Err()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "clc opcode %d at offset %d", op, off)
	}
	return m, nil
}

func parseMove(r *qmsg.Reader, sequence uint32) (Move, error) {
	var m Move
	checksumIndex := r.Offset()
	checksum, err := r.ReadByte()
	if err != nil {
		return m, err
	}
	m.Lost, _ = r.ReadByte()

	var null protocol.UserCmd
	c0, err := qmsg.ReadDeltaUserCmd(r, &null)
	if err != nil {
		return m, err
	}
	c1, err := qmsg.ReadDeltaUserCmd(r, &c0)
	if err != nil {
		return m, err
	}
	c2, err := qmsg.ReadDeltaUserCmd(r, &c1)
	if err != nil {
		return m, err
	}
	m.Cmds = [3]protocol.UserCmd{c0, c1, c2}

	body := r.Slice(checksumIndex+1, r.Offset())
	m.BadChecksum = crc.BlockSequence(body, sequence) != checksum
	return m, nil
}

func parseUpload(r *qmsg.Reader) (Upload, error) {
	var v Upload
	size, err := r.ReadShort()
	if err != nil {
		return v, err
	}
	v.Size = size
	v.Percent, _ = r.ReadByte()
	if size > 0 {
		data, err := r.ReadBytes(int(size))
		if err != nil {
			return v, err
		}
		v.Data = append([]byte(nil), data...)
	}
	return v, r.Err()
}
