// SPDX-License-Identifier: GPL-2.0-or-later

package svc

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"qwire/protocol"
	"qwire/qmsg"
)

func rint(x float32) int {
	return int(math32.Round(x))
}

// EntityDelta is one entity in a packet entities update. Bits holds
// the full flag set with the morebits byte folded into the low eight
// bits, it decides which fields are on the wire.
type EntityDelta struct {
	Number     uint16
	Bits       uint16
	Remove     bool
	ModelIndex byte
	Frame      byte
	Colormap   byte
	SkinNum    byte
	Effects    byte
	Origin     [3]float32
	Angles     [3]float32
	Solid      bool
}

// Apply overlays the flagged fields onto a copy of from.
func (d *EntityDelta) Apply(from *protocol.EntityState) protocol.EntityState {
	state := *from
	state.Number = d.Number
	if d.Bits&protocol.UModel != 0 {
		state.ModelIndex = d.ModelIndex
	}
	if d.Bits&protocol.UFrame != 0 {
		state.Frame = d.Frame
	}
	if d.Bits&protocol.UColormap != 0 {
		state.Colormap = d.Colormap
	}
	if d.Bits&protocol.USkin != 0 {
		state.SkinNum = d.SkinNum
	}
	if d.Bits&protocol.UEffects != 0 {
		state.Effects = d.Effects
	}
	if d.Bits&protocol.UOrigin1 != 0 {
		state.Origin[0] = d.Origin[0]
	}
	if d.Bits&protocol.UOrigin2 != 0 {
		state.Origin[1] = d.Origin[1]
	}
	if d.Bits&protocol.UOrigin3 != 0 {
		state.Origin[2] = d.Origin[2]
	}
	if d.Bits&protocol.UAngle1 != 0 {
		state.Angles[0] = d.Angles[0]
	}
	if d.Bits&protocol.UAngle2 != 0 {
		state.Angles[1] = d.Angles[1]
	}
	if d.Bits&protocol.UAngle3 != 0 {
		state.Angles[2] = d.Angles[2]
	}
	return state
}

// DeltaBetween builds the delta turning from into to. The second
// return is false when no field changed, the caller still sends the
// bare entity word to keep the entity in the frame.
func DeltaBetween(from, to *protocol.EntityState) (EntityDelta, bool) {
	d := EntityDelta{
		Number:     to.Number,
		ModelIndex: to.ModelIndex,
		Frame:      to.Frame,
		Colormap:   to.Colormap,
		SkinNum:    to.SkinNum,
		Effects:    to.Effects,
		Origin:     to.Origin,
		Angles:     to.Angles,
	}
	if to.ModelIndex != from.ModelIndex {
		d.Bits |= protocol.UModel
	}
	if to.Frame != from.Frame {
		d.Bits |= protocol.UFrame
	}
	if to.Colormap != from.Colormap {
		d.Bits |= protocol.UColormap
	}
	if to.SkinNum != from.SkinNum {
		d.Bits |= protocol.USkin
	}
	if to.Effects != from.Effects {
		d.Bits |= protocol.UEffects
	}
	if to.Origin[0] != from.Origin[0] {
		d.Bits |= protocol.UOrigin1
	}
	if to.Origin[1] != from.Origin[1] {
		d.Bits |= protocol.UOrigin2
	}
	if to.Origin[2] != from.Origin[2] {
		d.Bits |= protocol.UOrigin3
	}
	if to.Angles[0] != from.Angles[0] {
		d.Bits |= protocol.UAngle1
	}
	if to.Angles[1] != from.Angles[1] {
		d.Bits |= protocol.UAngle2
	}
	if to.Angles[2] != from.Angles[2] {
		d.Bits |= protocol.UAngle3
	}
	return d, d.Bits != 0
}

func (d *EntityDelta) wireFlags() uint16 {
	flags := d.Bits &^ uint16(0xff)
	if d.Remove {
		flags |= protocol.URemove
	}
	more := byte(d.Bits)
	if d.Solid {
		more |= protocol.USolid
	}
	if more != 0 {
		flags |= protocol.UMoreBits | uint16(more)
	}
	return flags
}

func appendEntityDelta(w *qmsg.Writer, d *EntityDelta) {
	flags := d.wireFlags()
	word := d.Number & protocol.EntityNumberMask
	word |= flags &^ protocol.EntityNumberMask
	w.WriteShort(int(word))
	if flags&protocol.UMoreBits != 0 {
		w.WriteByte(byte(flags & 0xff))
	}
	if flags&protocol.UModel != 0 {
		w.WriteByte(byte(d.ModelIndex))
	}
	if flags&protocol.UFrame != 0 {
		w.WriteByte(byte(d.Frame))
	}
	if flags&protocol.UColormap != 0 {
		w.WriteByte(byte(d.Colormap))
	}
	if flags&protocol.USkin != 0 {
		w.WriteByte(byte(d.SkinNum))
	}
	if flags&protocol.UEffects != 0 {
		w.WriteByte(byte(d.Effects))
	}
	if flags&protocol.UOrigin1 != 0 {
		w.WriteCoord(d.Origin[0])
	}
	if flags&protocol.UAngle1 != 0 {
		w.WriteAngle(d.Angles[0])
	}
	if flags&protocol.UOrigin2 != 0 {
		w.WriteCoord(d.Origin[1])
	}
	if flags&protocol.UAngle2 != 0 {
		w.WriteAngle(d.Angles[1])
	}
	if flags&protocol.UOrigin3 != 0 {
		w.WriteCoord(d.Origin[2])
	}
	if flags&protocol.UAngle3 != 0 {
		w.WriteAngle(d.Angles[2])
	}
}

func parseEntityDelta(r *qmsg.Reader, word uint16) (EntityDelta, error) {
	bits := word &^ protocol.EntityNumberMask
	d := EntityDelta{Number: word & protocol.EntityNumberMask}
	if d.Number == 0 {
		return d, errors.Wrapf(ErrMalformedDelta, "entity 0 with flags %#04x", bits)
	}

	if bits&protocol.UMoreBits != 0 {
		more, err := r.ReadByte()
		if err != nil {
			return d, err
		}
		bits |= uint16(more)
	}
	d.Remove = bits&protocol.URemove != 0
	d.Solid = bits&protocol.USolid != 0
	// Remove, MoreBits and Solid live in their own fields, Bits keeps
	// only the field flags so wireFlags rebuilds the same word.
	d.Bits = bits &^ (protocol.URemove | protocol.UMoreBits | protocol.USolid)

	if bits&protocol.UModel != 0 {
		d.ModelIndex, _ = r.ReadByte()
	}
	if bits&protocol.UFrame != 0 {
		d.Frame, _ = r.ReadByte()
	}
	if bits&protocol.UColormap != 0 {
		d.Colormap, _ = r.ReadByte()
	}
	if bits&protocol.USkin != 0 {
		d.SkinNum, _ = r.ReadByte()
	}
	if bits&protocol.UEffects != 0 {
		d.Effects, _ = r.ReadByte()
	}
	if bits&protocol.UOrigin1 != 0 {
		d.Origin[0], _ = r.ReadCoord()
	}
	if bits&protocol.UAngle1 != 0 {
		d.Angles[0], _ = r.ReadAngle()
	}
	if bits&protocol.UOrigin2 != 0 {
		d.Origin[1], _ = r.ReadCoord()
	}
	if bits&protocol.UAngle2 != 0 {
		d.Angles[1], _ = r.ReadAngle()
	}
	if bits&protocol.UOrigin3 != 0 {
		d.Origin[2], _ = r.ReadCoord()
	}
	if bits&protocol.UAngle3 != 0 {
		d.Angles[2], _ = r.ReadAngle()
	}
	return d, r.Err()
}

// PacketEntities is the entity list of one frame, full or delta
// compressed against the frame DeltaFrom refers to.
type PacketEntities struct {
	Delta     bool
	DeltaFrom byte
	Entities  []EntityDelta
}

func (m PacketEntities) Append(w *qmsg.Writer) {
	if m.Delta {
		w.WriteByte(protocol.SvcDeltaPacketEnts)
		w.WriteByte(byte(m.DeltaFrom))
	} else {
		w.WriteByte(protocol.SvcPacketEntities)
	}
	for i := range m.Entities {
		appendEntityDelta(w, &m.Entities[i])
	}
	w.WriteShort(0)
}

func parsePacketEntities(r *qmsg.Reader, delta bool) (PacketEntities, error) {
	m := PacketEntities{Delta: delta}
	if delta {
		from, err := r.ReadByte()
		if err != nil {
			return m, err
		}
		m.DeltaFrom = from
	}
	for {
		word, err := r.ReadUint16()
		if err != nil {
			return m, err
		}
		if word == 0 {
			break
		}
		d, err := parseEntityDelta(r, word)
		if err != nil {
			return m, err
		}
		if len(m.Entities) < protocol.MaxPacketEntities {
			m.Entities = append(m.Entities, d)
		}
	}
	return m, nil
}

// Projectile is one nail in svc_nails, packed into six bytes on the
// wire: 12 bit coords on a two unit grid, 4 bit pitch, 8 bit yaw.
type Projectile struct {
	Origin [3]float32
	Pitch  float32
	Yaw    float32
}

type Nails struct {
	Projectiles []Projectile
}

func quantizeNailCoord(v float32) int {
	i := rint((v + 4096) / 2)
	if i < 0 {
		return 0
	}
	if i > 4095 {
		return 4095
	}
	return i
}

func quantizeNailAngle(v float32, steps int) int {
	n := math32.Mod(v, 360)
	if n < 0 {
		n += 360
	}
	i := rint(n / 360 * float32(steps))
	if i >= steps {
		i = steps - 1
	}
	return i
}

func (m Nails) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcNails)
	w.WriteByte(byte(len(m.Projectiles)))
	for _, p := range m.Projectiles {
		x := quantizeNailCoord(p.Origin[0])
		y := quantizeNailCoord(p.Origin[1])
		z := quantizeNailCoord(p.Origin[2])
		pitch := quantizeNailAngle(p.Pitch, 16)
		yaw := quantizeNailAngle(p.Yaw, 256)
		w.WriteByte(byte(x))
		w.WriteByte(byte((y&0x0f)<<4 | (x>>8)&0x0f))
		w.WriteByte(byte(y >> 4))
		w.WriteByte(byte(z))
		w.WriteByte(byte(pitch<<4 | (z>>8)&0x0f))
		w.WriteByte(byte(yaw))
	}
}

func parseNails(r *qmsg.Reader) (Nails, error) {
	count, err := r.ReadByte()
	if err != nil {
		return Nails{}, err
	}
	m := Nails{Projectiles: make([]Projectile, 0, count)}
	for i := 0; i < int(count); i++ {
		b, err := r.ReadBytes(6)
		if err != nil {
			return m, err
		}
		x := int(b[0]) | int(b[1]&0x0f)<<8
		y := int(b[1]>>4) | int(b[2])<<4
		z := int(b[3]) | int(b[4]&0x0f)<<8
		m.Projectiles = append(m.Projectiles, Projectile{
			Origin: [3]float32{
				float32(x<<1 - 4096),
				float32(y<<1 - 4096),
				float32(z<<1 - 4096),
			},
			Pitch: 360 * float32(b[4]>>4) / 16,
			Yaw:   360 * float32(b[5]) / 256,
		})
	}
	return m, nil
}
