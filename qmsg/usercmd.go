// SPDX-License-Identifier: GPL-2.0-or-later

package qmsg

import (
	"qwire/protocol"
)

// WriteDeltaUserCmd emits cmd as a delta against from. Only changed
// fields get a flag and a payload, the trailing msec byte is always
// present.
func WriteDeltaUserCmd(w *Writer, from, cmd *protocol.UserCmd) {
	bits := byte(0)
	if cmd.Angles[0] != from.Angles[0] {
		bits |= protocol.CMAngle1
	}
	if cmd.Angles[1] != from.Angles[1] {
		bits |= protocol.CMAngle2
	}
	if cmd.Angles[2] != from.Angles[2] {
		bits |= protocol.CMAngle3
	}
	if cmd.ForwardMove != from.ForwardMove {
		bits |= protocol.CMForward
	}
	if cmd.SideMove != from.SideMove {
		bits |= protocol.CMSide
	}
	if cmd.UpMove != from.UpMove {
		bits |= protocol.CMUp
	}
	if cmd.Buttons != from.Buttons {
		bits |= protocol.CMButtons
	}
	if cmd.Impulse != from.Impulse {
		bits |= protocol.CMImpulse
	}

	w.WriteByte(bits)
	if bits&protocol.CMAngle1 != 0 {
		w.WriteAngle16(cmd.Angles[0])
	}
	if bits&protocol.CMAngle2 != 0 {
		w.WriteAngle16(cmd.Angles[1])
	}
	if bits&protocol.CMAngle3 != 0 {
		w.WriteAngle16(cmd.Angles[2])
	}
	if bits&protocol.CMForward != 0 {
		w.WriteShort(int(cmd.ForwardMove))
	}
	if bits&protocol.CMSide != 0 {
		w.WriteShort(int(cmd.SideMove))
	}
	if bits&protocol.CMUp != 0 {
		w.WriteShort(int(cmd.UpMove))
	}
	if bits&protocol.CMButtons != 0 {
		w.WriteByte(byte(cmd.Buttons))
	}
	if bits&protocol.CMImpulse != 0 {
		w.WriteByte(byte(cmd.Impulse))
	}
	w.WriteByte(byte(cmd.Msec))
}

// ReadDeltaUserCmd overlays the flagged fields onto a copy of from.
func ReadDeltaUserCmd(r *Reader, from *protocol.UserCmd) (protocol.UserCmd, error) {
	cmd := *from

	bits, err := r.ReadByte()
	if err != nil {
		return cmd, err
	}
	if bits&protocol.CMAngle1 != 0 {
		cmd.Angles[0], _ = r.ReadAngle16()
	}
	if bits&protocol.CMAngle2 != 0 {
		cmd.Angles[1], _ = r.ReadAngle16()
	}
	if bits&protocol.CMAngle3 != 0 {
		cmd.Angles[2], _ = r.ReadAngle16()
	}
	if bits&protocol.CMForward != 0 {
		cmd.ForwardMove, _ = r.ReadShort()
	}
	if bits&protocol.CMSide != 0 {
		cmd.SideMove, _ = r.ReadShort()
	}
	if bits&protocol.CMUp != 0 {
		cmd.UpMove, _ = r.ReadShort()
	}
	if bits&protocol.CMButtons != 0 {
		cmd.Buttons, _ = r.ReadByte()
	}
	if bits&protocol.CMImpulse != 0 {
		cmd.Impulse, _ = r.ReadByte()
	}
	cmd.Msec, _ = r.ReadByte()
	return cmd, r.Err()
}
