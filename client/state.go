// SPDX-License-Identifier: GPL-2.0-or-later

// Package client holds the client side of the protocol: the visible
// state built from server messages and the session driving the
// handshake and signon.
package client

import (
	"github.com/pkg/errors"

	"qwire/info"
	"qwire/protocol"
	"qwire/svc"
)

var (
	ErrProtocolMismatch = errors.New("client: server speaks a different protocol")
	ErrUnknownBaseline  = errors.New("client: delta references an entity without a baseline")
)

// Player is one scoreboard slot plus the movement state from the last
// svc_playerinfo.
type Player struct {
	UserID    int32
	Name      string
	UserInfo  *info.String
	Frags     int16
	Ping      int16
	Loss      byte
	EnterTime float32
	Colors    byte

	Origin      [3]float32
	MoveFrame   byte
	Msec        byte
	Cmd         protocol.UserCmd
	Velocity    [3]int16
	ModelIndex  byte
	SkinNum     byte
	Effects     byte
	WeaponFrame byte
}

// Frame is one slot of the update ring: the entity list the server
// sent for that sequence and the command we sent under it.
type Frame struct {
	Entities []protocol.EntityState
	Cmd      protocol.UserCmd
	Invalid  bool
	Choked   bool
}

// State is everything the server has told us. Frames are kept in a
// ring of protocol.UpdateBackup slots indexed by sequence.
type State struct {
	ServerData svc.ServerData
	HaveData   bool
	ServerInfo *info.String

	Players     [protocol.MaxClients]Player
	Sounds      []string
	Models      []string
	LightStyles [protocol.MaxLightstyles]string
	Stats       [protocol.MaxStats]int32

	ClientData     svc.ClientData
	HaveClientData bool

	ViewEntity uint16
	ViewAngles [3]float32
	ServerTime float32
	SignonNum  byte
	Paused     bool

	// event queues drained by the consumer each frame
	Prints       []svc.Print
	CenterPrints []string
	StuffText    []string
	Sounds2Play  []svc.Sound
	TempEntities []svc.TempEntity
	Particles    []svc.Particle
	Damage       []svc.Damage

	Projectiles []svc.Projectile
	ChokeTotal  int

	StaticEntities []protocol.EntityState
	Intermission   bool
	Finale         string
	Disconnected   bool

	baselines     map[uint16]protocol.EntityState
	frames        [protocol.UpdateBackup]Frame
	ValidSequence uint32
}

func NewState() *State {
	return &State{
		ServerInfo: info.NewServerInfo(),
		baselines:  make(map[uint16]protocol.EntityState),
	}
}

// Frame returns the ring slot for a sequence.
func (s *State) Frame(sequence uint32) *Frame {
	return &s.frames[sequence&protocol.UpdateMask]
}

// Baseline returns the spawn baseline recorded for an entity.
func (s *State) Baseline(entity uint16) (protocol.EntityState, bool) {
	b, ok := s.baselines[entity]
	return b, ok
}

// ClearFrameEvents drops the per-frame event queues.
func (s *State) ClearFrameEvents() {
	s.Prints = s.Prints[:0]
	s.CenterPrints = s.CenterPrints[:0]
	s.Sounds2Play = s.Sounds2Play[:0]
	s.TempEntities = s.TempEntities[:0]
	s.Particles = s.Particles[:0]
	s.Damage = s.Damage[:0]
}

// MarkChoked flags the frames the server skipped before the
// acknowledged one.
func (s *State) MarkChoked(count byte, acknowledged uint32) {
	s.ChokeTotal += int(count)
	for i := uint32(0); i < uint32(count); i++ {
		s.frames[(acknowledged-1-i)&protocol.UpdateMask].Choked = true
	}
}

// StoreOutgoingCmd records the command sent under a sequence so later
// moves can delta against it.
func (s *State) StoreOutgoingCmd(sequence uint32, cmd protocol.UserCmd) {
	s.frames[sequence&protocol.UpdateMask].Cmd = cmd
}

func (s *State) OutgoingCmd(sequence uint32) protocol.UserCmd {
	return s.frames[sequence&protocol.UpdateMask].Cmd
}

// Apply folds one server message into the state. incomingSequence is
// the netchan sequence of the packet that carried it.
func (s *State) Apply(m svc.Message, incomingSequence uint32) error {
	switch v := m.(type) {
	case svc.Nop:
	case svc.Disconnect:
		s.Disconnected = true
	case svc.ServerData:
		if v.Protocol != protocol.Version {
			return errors.Wrapf(ErrProtocolMismatch, "server protocol %d, want %d", v.Protocol, protocol.Version)
		}
		s.ServerData = v
		s.HaveData = true
	case svc.Time:
		s.ServerTime = v.Time
	case svc.Print:
		s.Prints = append(s.Prints, v)
	case svc.CenterPrint:
		s.CenterPrints = append(s.CenterPrints, v.Text)
	case svc.StuffText:
		s.StuffText = append(s.StuffText, v.Text)
	case svc.SoundList:
		s.Sounds = applyStringList(s.Sounds, v.StringList)
	case svc.ModelList:
		s.Models = applyStringList(s.Models, v.StringList)
	case svc.LightStyle:
		if int(v.Style) < len(s.LightStyles) {
			s.LightStyles[v.Style] = v.Value
		}
	case svc.UpdateName:
		if p := s.player(v.Slot); p != nil {
			p.Name = v.Name
		}
	case svc.UpdateFrags:
		if p := s.player(v.Slot); p != nil {
			p.Frags = v.Frags
		}
	case svc.UpdatePing:
		if p := s.player(v.Slot); p != nil {
			p.Ping = v.Ping
		}
	case svc.UpdatePl:
		if p := s.player(v.Slot); p != nil {
			p.Loss = v.Loss
		}
	case svc.UpdateEnterTime:
		if p := s.player(v.Slot); p != nil {
			p.EnterTime = v.SecondsAgo
		}
	case svc.UpdateColors:
		if p := s.player(v.Slot); p != nil {
			p.Colors = v.Colors
		}
	case svc.UpdateUserInfo:
		if p := s.player(v.Slot); p != nil {
			p.UserID = v.UserID
			in, err := info.Parse(v.UserInfo, protocol.MaxInfoString)
			if err != nil {
				return errors.Wrapf(err, "userinfo for slot %d", v.Slot)
			}
			p.UserInfo = in
			p.Name = in.Get("name")
		}
	case svc.PlayerInfo:
		if p := s.player(v.Num); p != nil {
			p.Origin = v.Origin
			p.MoveFrame = v.Frame
			if v.Flags&protocol.PFMsec != 0 {
				p.Msec = v.Msec
			}
			if v.Flags&protocol.PFCommand != 0 {
				p.Cmd = v.Cmd
			}
			velFlags := []uint16{protocol.PFVelocity1, protocol.PFVelocity2, protocol.PFVelocity3}
			for i, f := range velFlags {
				if v.Flags&f != 0 {
					p.Velocity[i] = v.Velocity[i]
				}
			}
			if v.Flags&protocol.PFModel != 0 {
				p.ModelIndex = v.ModelIndex
			}
			if v.Flags&protocol.PFSkinNum != 0 {
				p.SkinNum = v.SkinNum
			}
			if v.Flags&protocol.PFEffects != 0 {
				p.Effects = v.Effects
			}
			if v.Flags&protocol.PFWeaponFrame != 0 {
				p.WeaponFrame = v.WeaponFrame
			}
		}
	case svc.SetInfo:
		if p := s.player(v.Slot); p != nil && p.UserInfo != nil {
			if err := p.UserInfo.SetStar(v.Key, v.Value); err != nil {
				return errors.Wrapf(err, "setinfo for slot %d", v.Slot)
			}
			if v.Key == "name" {
				p.Name = v.Value
			}
		}
	case svc.ServerInfo:
		if err := s.ServerInfo.SetStar(v.Key, v.Value); err != nil {
			return errors.Wrap(err, "serverinfo update")
		}
	case svc.SetView:
		s.ViewEntity = v.Entity
	case svc.SetAngle:
		s.ViewAngles = v.Angles
	case svc.ClientData:
		s.ClientData = v
		s.HaveClientData = true
	case svc.UpdateStat:
		if int(v.Index) < len(s.Stats) {
			s.Stats[v.Index] = int32(v.Value)
		}
	case svc.UpdateStatLong:
		if int(v.Index) < len(s.Stats) {
			s.Stats[v.Index] = v.Value
		}
	case svc.SignonNum:
		s.SignonNum = v.Num
	case svc.SetPause:
		s.Paused = v.Paused
	case svc.SpawnBaseline:
		b := v.Baseline
		b.Number = v.Entity
		s.baselines[v.Entity] = b
	case svc.SpawnStatic:
		s.StaticEntities = append(s.StaticEntities, v.Baseline)
	case svc.PacketEntities:
		return s.applyPacketEntities(v, incomingSequence)
	case svc.Nails:
		s.Projectiles = append(s.Projectiles[:0], v.Projectiles...)
	case svc.ChokeCount:
		s.MarkChoked(v.Count, incomingSequence)
	case svc.Sound:
		s.Sounds2Play = append(s.Sounds2Play, v)
	case svc.TempEntity:
		s.TempEntities = append(s.TempEntities, v)
	case svc.Particle:
		s.Particles = append(s.Particles, v)
	case svc.Damage:
		s.Damage = append(s.Damage, v)
	case svc.MaxSpeed:
		s.ServerData.MoveVars.MaxSpeed = v.Speed
	case svc.EntGravity:
		s.ServerData.MoveVars.EntGravity = v.Gravity
	case svc.Intermission:
		s.Intermission = true
	case svc.Finale:
		s.Finale = v.Text
	default:
		// events with no state to track (kicks, muzzle flashes,
		// cd track, downloads) are left to the consumer
	}
	return nil
}

func (s *State) player(slot byte) *Player {
	if int(slot) >= len(s.Players) {
		return nil
	}
	return &s.Players[slot]
}

func applyStringList(target []string, chunk svc.StringList) []string {
	start := int(chunk.Start)
	for len(target) < start {
		target = append(target, "")
	}
	for i, item := range chunk.Items {
		if start+i < len(target) {
			target[start+i] = item
		} else {
			target = append(target, item)
		}
	}
	return target
}

// resolveDeltaSequence widens the eight bit frame reference back to a
// full sequence near incoming.
func resolveDeltaSequence(incoming uint32, from byte) uint32 {
	seq := (incoming &^ protocol.UpdateMask) | (uint32(from) & protocol.UpdateMask)
	if seq > incoming {
		seq -= protocol.UpdateBackup
	}
	return seq
}

// applyPacketEntities merges an update into the ring. Full updates
// replace, delta updates walk the referenced frame and the update side
// by side, both sorted by entity number.
func (s *State) applyPacketEntities(update svc.PacketEntities, incoming uint32) error {
	slot := &s.frames[incoming&protocol.UpdateMask]

	var old []protocol.EntityState
	if update.Delta {
		oldSeq := resolveDeltaSequence(incoming, update.DeltaFrom)
		if incoming-oldSeq >= protocol.UpdateBackup-1 {
			// too old to delta against, wait for a full update
			s.ValidSequence = 0
			slot.Invalid = true
			return nil
		}
		old = s.frames[oldSeq&protocol.UpdateMask].Entities
	}
	s.ValidSequence = incoming

	const pastEnd = 9999
	newEnts := make([]protocol.EntityState, 0, protocol.MaxPacketEntities)
	oldIndex := 0

	oldNum := func() uint16 {
		if oldIndex >= len(old) {
			return pastEnd
		}
		return old[oldIndex].Number
	}

	for i := range update.Entities {
		d := &update.Entities[i]

		for d.Number > oldNum() {
			if !update.Delta {
				s.ValidSequence = 0
				slot.Invalid = true
				return errors.Wrapf(svc.ErrMalformedDelta, "full update skips entity %d", oldNum())
			}
			if len(newEnts) >= protocol.MaxPacketEntities {
				s.ValidSequence = 0
				slot.Invalid = true
				return nil
			}
			newEnts = append(newEnts, old[oldIndex])
			oldIndex++
		}

		if d.Number < oldNum() {
			if d.Remove {
				if !update.Delta {
					s.ValidSequence = 0
					slot.Invalid = true
					return errors.Wrapf(svc.ErrMalformedDelta, "remove of entity %d in a full update", d.Number)
				}
				continue
			}
			if len(newEnts) >= protocol.MaxPacketEntities {
				s.ValidSequence = 0
				slot.Invalid = true
				return nil
			}
			baseline, ok := s.baselines[d.Number]
			if !ok {
				s.ValidSequence = 0
				slot.Invalid = true
				return errors.Wrapf(ErrUnknownBaseline, "entity %d", d.Number)
			}
			newEnts = append(newEnts, d.Apply(&baseline))
			continue
		}

		// same number, delta from the previous frame's state
		if d.Remove {
			oldIndex++
			continue
		}
		if len(newEnts) >= protocol.MaxPacketEntities {
			s.ValidSequence = 0
			slot.Invalid = true
			return nil
		}
		newEnts = append(newEnts, d.Apply(&old[oldIndex]))
		oldIndex++
	}

	for oldIndex < len(old) {
		if len(newEnts) >= protocol.MaxPacketEntities {
			s.ValidSequence = 0
			slot.Invalid = true
			return nil
		}
		newEnts = append(newEnts, old[oldIndex])
		oldIndex++
	}

	slot.Entities = newEnts
	slot.Invalid = false
	return nil
}
