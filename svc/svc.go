// SPDX-License-Identifier: GPL-2.0-or-later

// Package svc implements the server to client message catalog. Each
// message is a typed struct with a symmetric Append, Parse consumes a
// whole datagram payload into the typed form.
package svc

import (
	"github.com/pkg/errors"

	"qwire/protocol"
	"qwire/qmsg"
)

var (
	ErrUnknownOpcode  = errors.New("svc: unknown opcode")
	ErrMalformedDelta = errors.New("svc: malformed entity delta")
)

// Message is one server to client message.
type Message interface {
	Append(w *qmsg.Writer)
}

type Nop struct{}

func (Nop) Append(w *qmsg.Writer) { w.WriteByte(protocol.SvcNop) }

type Disconnect struct{}

func (Disconnect) Append(w *qmsg.Writer) { w.WriteByte(protocol.SvcDisconnect) }

type Version struct {
	Version int32
}

func (m Version) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcVersion)
	w.WriteLong(int(m.Version))
}

// ServerData opens every connection. A protocol number other than
// protocol.Version is rejected by the receiving client.
type ServerData struct {
	Protocol    int32
	ServerCount int32
	GameDir     string
	PlayerNum   byte
	Spectator   bool
	LevelName   string
	MoveVars    protocol.MoveVars
}

func (m ServerData) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcServerData)
	w.WriteLong(int(m.Protocol))
	w.WriteLong(int(m.ServerCount))
	w.WriteString(m.GameDir)
	player := m.PlayerNum & 0x7f
	if m.Spectator {
		player |= 0x80
	}
	w.WriteByte(byte(player))
	w.WriteString(m.LevelName)
	w.WriteFloat(m.MoveVars.Gravity)
	w.WriteFloat(m.MoveVars.StopSpeed)
	w.WriteFloat(m.MoveVars.MaxSpeed)
	w.WriteFloat(m.MoveVars.SpectatorMaxSpeed)
	w.WriteFloat(m.MoveVars.Accelerate)
	w.WriteFloat(m.MoveVars.AirAccelerate)
	w.WriteFloat(m.MoveVars.WaterAccelerate)
	w.WriteFloat(m.MoveVars.Friction)
	w.WriteFloat(m.MoveVars.WaterFriction)
	w.WriteFloat(m.MoveVars.EntGravity)
}

type Time struct {
	Time float32
}

func (m Time) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcTime)
	w.WriteFloat(m.Time)
}

type Print struct {
	Level byte
	Text  string
}

func (m Print) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcPrint)
	w.WriteByte(byte(m.Level))
	w.WriteString(m.Text)
}

type CenterPrint struct {
	Text string
}

func (m CenterPrint) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcCenterPrint)
	w.WriteString(m.Text)
}

type StuffText struct {
	Text string
}

func (m StuffText) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcStuffText)
	w.WriteString(m.Text)
}

// StringList is one page of the sound or model name table. Next is
// the index to ask for next, zero ends the pagination.
type StringList struct {
	Start byte
	Items []string
	Next  byte
}

func (l StringList) append(w *qmsg.Writer) {
	w.WriteByte(byte(l.Start))
	for _, item := range l.Items {
		w.WriteString(item)
	}
	w.WriteString("")
	w.WriteByte(byte(l.Next))
}

type SoundList struct {
	StringList
}

func (m SoundList) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcSoundList)
	m.StringList.append(w)
}

type ModelList struct {
	StringList
}

func (m ModelList) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcModelList)
	m.StringList.append(w)
}

type LightStyle struct {
	Style byte
	Value string
}

func (m LightStyle) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcLightStyle)
	w.WriteByte(byte(m.Style))
	w.WriteString(m.Value)
}

type UpdateName struct {
	Slot byte
	Name string
}

func (m UpdateName) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcUpdateName)
	w.WriteByte(byte(m.Slot))
	w.WriteString(m.Name)
}

type SetView struct {
	Entity uint16
}

func (m SetView) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcSetView)
	w.WriteShort(int(m.Entity))
}

type SetAngle struct {
	Angles [3]float32
}

func (m SetAngle) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcSetAngle)
	for _, a := range m.Angles {
		w.WriteAngle(a)
	}
}

type ClientData struct {
	Bits         uint16
	ViewHeight   int8
	IdealPitch   int8
	PunchAngle   [3]float32
	Velocity     [3]float32
	Items        int32
	OnGround     bool
	InWater      bool
	WeaponFrame  byte
	Armor        byte
	Weapon       byte
	Health       int16
	Ammo         byte
	AmmoCounts   [4]byte
	ActiveWeapon byte
}

func clampI8(f float32) int {
	i := rint(f)
	if i < -128 {
		return -128
	}
	if i > 127 {
		return 127
	}
	return i
}

func (m ClientData) Append(w *qmsg.Writer) {
	bits := m.Bits
	if m.OnGround {
		bits |= protocol.SUOnGround
	} else {
		bits &^= protocol.SUOnGround
	}
	if m.InWater {
		bits |= protocol.SUInWater
	} else {
		bits &^= protocol.SUInWater
	}

	w.WriteByte(protocol.SvcClientData)
	w.WriteShort(int(bits))
	if bits&protocol.SUViewHeight != 0 {
		w.WriteChar(int(m.ViewHeight) & 0xff)
	}
	if bits&protocol.SUIdealPitch != 0 {
		w.WriteChar(int(m.IdealPitch) & 0xff)
	}
	punchBits := []uint16{protocol.SUPunch1, protocol.SUPunch2, protocol.SUPunch3}
	velocityBits := []uint16{protocol.SUVelocity1, protocol.SUVelocity2, protocol.SUVelocity3}
	for i := 0; i < 3; i++ {
		if bits&punchBits[i] != 0 {
			w.WriteChar(clampI8(m.PunchAngle[i]) & 0xff)
		}
		if bits&velocityBits[i] != 0 {
			w.WriteChar(clampI8(m.Velocity[i]/16) & 0xff)
		}
	}
	w.WriteLong(int(m.Items))
	if bits&protocol.SUWeaponFrame != 0 {
		w.WriteByte(byte(m.WeaponFrame))
	}
	if bits&protocol.SUArmor != 0 {
		w.WriteByte(byte(m.Armor))
	}
	if bits&protocol.SUWeapon != 0 {
		w.WriteByte(byte(m.Weapon))
	}
	w.WriteShort(int(m.Health))
	w.WriteByte(byte(m.Ammo))
	for _, c := range m.AmmoCounts {
		w.WriteByte(byte(c))
	}
	w.WriteByte(byte(m.ActiveWeapon))
}

type Damage struct {
	Armor  byte
	Blood  byte
	Origin [3]float32
}

func (m Damage) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcDamage)
	w.WriteByte(byte(m.Armor))
	w.WriteByte(byte(m.Blood))
	for _, c := range m.Origin {
		w.WriteCoord(c)
	}
}

type SetPause struct {
	Paused bool
}

func (m SetPause) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcSetPause)
	if m.Paused {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

type SignonNum struct {
	Num byte
}

func (m SignonNum) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcSignonNum)
	w.WriteByte(byte(m.Num))
}

func appendBaseline(w *qmsg.Writer, b *protocol.EntityState) {
	w.WriteByte(byte(b.ModelIndex))
	w.WriteByte(byte(b.Frame))
	w.WriteByte(byte(b.Colormap))
	w.WriteByte(byte(b.SkinNum))
	for i := 0; i < 3; i++ {
		w.WriteCoord(b.Origin[i])
		w.WriteAngle(b.Angles[i])
	}
}

func parseBaseline(r *qmsg.Reader) protocol.EntityState {
	var b protocol.EntityState
	b.ModelIndex, _ = r.ReadByte()
	b.Frame, _ = r.ReadByte()
	b.Colormap, _ = r.ReadByte()
	b.SkinNum, _ = r.ReadByte()
	for i := 0; i < 3; i++ {
		b.Origin[i], _ = r.ReadCoord()
		b.Angles[i], _ = r.ReadAngle()
	}
	return b
}

type SpawnStatic struct {
	Baseline protocol.EntityState
}

func (m SpawnStatic) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcSpawnStatic)
	appendBaseline(w, &m.Baseline)
}

type SpawnBaseline struct {
	Entity   uint16
	Baseline protocol.EntityState
}

func (m SpawnBaseline) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcSpawnBaseline)
	w.WriteShort(int(m.Entity))
	appendBaseline(w, &m.Baseline)
}

type SpawnStaticSound struct {
	Origin      [3]float32
	Sound       byte
	Volume      byte
	Attenuation byte
}

func (m SpawnStaticSound) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcSpawnStaticSnd)
	for _, c := range m.Origin {
		w.WriteCoord(c)
	}
	w.WriteByte(byte(m.Sound))
	w.WriteByte(byte(m.Volume))
	w.WriteByte(byte(m.Attenuation))
}

type Intermission struct {
	Origin [3]float32
	Angles [3]float32
}

func (m Intermission) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcIntermission)
	for _, c := range m.Origin {
		w.WriteCoord(c)
	}
	for _, a := range m.Angles {
		w.WriteAngle(a)
	}
}

type Finale struct {
	Text string
}

func (m Finale) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcFinale)
	w.WriteString(m.Text)
}

type CdTrack struct {
	Track byte
}

func (m CdTrack) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcCdTrack)
	w.WriteByte(byte(m.Track))
}

type SellScreen struct{}

func (SellScreen) Append(w *qmsg.Writer) { w.WriteByte(protocol.SvcSellScreen) }

type SmallKick struct{}

func (SmallKick) Append(w *qmsg.Writer) { w.WriteByte(protocol.SvcSmallKick) }

type BigKick struct{}

func (BigKick) Append(w *qmsg.Writer) { w.WriteByte(protocol.SvcBigKick) }

type KilledMonster struct{}

func (KilledMonster) Append(w *qmsg.Writer) { w.WriteByte(protocol.SvcKilledMonster) }

type FoundSecret struct{}

func (FoundSecret) Append(w *qmsg.Writer) { w.WriteByte(protocol.SvcFoundSecret) }

type MuzzleFlash struct {
	Entity uint16
}

func (m MuzzleFlash) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcMuzzleFlash)
	w.WriteShort(int(m.Entity))
}

type UpdateStat struct {
	Index byte
	Value byte
}

func (m UpdateStat) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcUpdateStat)
	w.WriteByte(byte(m.Index))
	w.WriteByte(byte(m.Value))
}

type UpdateStatLong struct {
	Index byte
	Value int32
}

func (m UpdateStatLong) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcUpdateStatLong)
	w.WriteByte(byte(m.Index))
	w.WriteLong(int(m.Value))
}

type MaxSpeed struct {
	Speed float32
}

func (m MaxSpeed) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcMaxSpeed)
	w.WriteFloat(m.Speed)
}

type EntGravity struct {
	Gravity float32
}

func (m EntGravity) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcEntGravity)
	w.WriteFloat(m.Gravity)
}

type UpdateColors struct {
	Slot   byte
	Colors byte
}

func (m UpdateColors) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcUpdateColors)
	w.WriteByte(byte(m.Slot))
	w.WriteByte(byte(m.Colors))
}

type Particle struct {
	Origin    [3]float32
	Direction [3]float32
	Count     uint16
	Color     byte
}

func (m Particle) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcParticle)
	for _, c := range m.Origin {
		w.WriteCoord(c)
	}
	for _, d := range m.Direction {
		w.WriteChar(clampI8(d*16) & 0xff)
	}
	if m.Count >= 1024 {
		w.WriteByte(255)
	} else {
		w.WriteByte(byte(m.Count) & 0xff)
	}
	w.WriteByte(byte(m.Color))
}

type TempEntity struct {
	Kind   byte
	Origin [3]float32
	Start  [3]float32
	End    [3]float32
	Count  byte
	Entity uint16
}

func (m TempEntity) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcTempEntity)
	w.WriteByte(byte(m.Kind))
	switch m.Kind {
	case protocol.TELightning1, protocol.TELightning2, protocol.TELightning3:
		w.WriteShort(int(m.Entity))
		for _, c := range m.Start {
			w.WriteCoord(c)
		}
		for _, c := range m.End {
			w.WriteCoord(c)
		}
	case protocol.TEGunshot, protocol.TEBlood:
		w.WriteByte(byte(m.Count))
		for _, c := range m.Origin {
			w.WriteCoord(c)
		}
	default:
		for _, c := range m.Origin {
			w.WriteCoord(c)
		}
	}
}

type Sound struct {
	Entity      uint16
	Channel     byte
	SoundNum    byte
	Volume      byte
	Attenuation float32
	Origin      [3]float32
}

func (m Sound) Append(w *qmsg.Writer) {
	field := (m.Entity&1023)<<3 | uint16(m.Channel&7)
	if m.Volume != protocol.DefaultSoundVolume {
		field |= protocol.SndVolume
	}
	if m.Attenuation != protocol.DefaultSoundAttenuation {
		field |= protocol.SndAttenuation
	}
	w.WriteByte(protocol.SvcSound)
	w.WriteShort(int(field))
	if field&protocol.SndVolume != 0 {
		w.WriteByte(byte(m.Volume))
	}
	if field&protocol.SndAttenuation != 0 {
		w.WriteByte(byte(rint(m.Attenuation * 64)))
	}
	w.WriteByte(byte(m.SoundNum))
	for _, c := range m.Origin {
		w.WriteCoord(c)
	}
}

type StopSound struct {
	Entity  uint16
	Channel byte
}

func (m StopSound) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcStopSound)
	w.WriteShort(int((m.Entity&1023)<<3 | uint16(m.Channel&7)))
}

type Download struct {
	Size    int16
	Percent byte
	Data    []byte
}

func (m Download) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcDownload)
	w.WriteShort(int(m.Size))
	w.WriteByte(byte(m.Percent))
	if m.Size > 0 {
		w.WriteBytes(m.Data)
	}
}

type ChokeCount struct {
	Count byte
}

func (m ChokeCount) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcChokeCount)
	w.WriteByte(byte(m.Count))
}

type UpdateFrags struct {
	Slot  byte
	Frags int16
}

func (m UpdateFrags) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcUpdateFrags)
	w.WriteByte(byte(m.Slot))
	w.WriteShort(int(m.Frags))
}

type UpdatePing struct {
	Slot byte
	Ping int16
}

func (m UpdatePing) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcUpdatePing)
	w.WriteByte(byte(m.Slot))
	w.WriteShort(int(m.Ping))
}

type UpdatePl struct {
	Slot byte
	Loss byte
}

func (m UpdatePl) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcUpdatePl)
	w.WriteByte(byte(m.Slot))
	w.WriteByte(byte(m.Loss))
}

type UpdateEnterTime struct {
	Slot       byte
	SecondsAgo float32
}

func (m UpdateEnterTime) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcUpdateEnterTime)
	w.WriteByte(byte(m.Slot))
	w.WriteFloat(m.SecondsAgo)
}

type UpdateUserInfo struct {
	Slot     byte
	UserID   int32
	UserInfo string
}

func (m UpdateUserInfo) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcUpdateUserInfo)
	w.WriteByte(byte(m.Slot))
	w.WriteLong(int(m.UserID))
	w.WriteString(m.UserInfo)
}

type SetInfo struct {
	Slot  byte
	Key   string
	Value string
}

func (m SetInfo) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcSetInfo)
	w.WriteByte(byte(m.Slot))
	w.WriteString(m.Key)
	w.WriteString(m.Value)
}

type ServerInfo struct {
	Key   string
	Value string
}

func (m ServerInfo) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcServerInfo)
	w.WriteString(m.Key)
	w.WriteString(m.Value)
}

type PlayerInfo struct {
	Num         byte
	Flags       uint16
	Origin      [3]float32
	Frame       byte
	Msec        byte
	Cmd         protocol.UserCmd
	Velocity    [3]int16
	ModelIndex  byte
	SkinNum     byte
	Effects     byte
	WeaponFrame byte
}

func (m PlayerInfo) Append(w *qmsg.Writer) {
	w.WriteByte(protocol.SvcPlayerInfo)
	w.WriteByte(byte(m.Num))
	w.WriteShort(int(m.Flags))
	for _, c := range m.Origin {
		w.WriteCoord(c)
	}
	w.WriteByte(byte(m.Frame))
	if m.Flags&protocol.PFMsec != 0 {
		w.WriteByte(byte(m.Msec))
	}
	if m.Flags&protocol.PFCommand != 0 {
		var null protocol.UserCmd
		qmsg.WriteDeltaUserCmd(w, &null, &m.Cmd)
	}
	velFlags := []uint16{protocol.PFVelocity1, protocol.PFVelocity2, protocol.PFVelocity3}
	for i, f := range velFlags {
		if m.Flags&f != 0 {
			w.WriteShort(int(m.Velocity[i]))
		}
	}
	if m.Flags&protocol.PFModel != 0 {
		w.WriteByte(byte(m.ModelIndex))
	}
	if m.Flags&protocol.PFSkinNum != 0 {
		w.WriteByte(byte(m.SkinNum))
	}
	if m.Flags&protocol.PFEffects != 0 {
		w.WriteByte(byte(m.Effects))
	}
	if m.Flags&protocol.PFWeaponFrame != 0 {
		w.WriteByte(byte(m.WeaponFrame))
	}
}
