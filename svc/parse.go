// SPDX-License-Identifier: GPL-2.0-or-later

package svc

import (
	"github.com/pkg/errors"

	"qwire/protocol"
	"qwire/qmsg"
)

// Parse consumes one whole datagram payload into typed messages. An
// unknown opcode aborts the parse, the rest of the payload cannot be
// framed without knowing its layout.
func Parse(r *qmsg.Reader) ([]Message, error) {
	var msgs []Message
	for r.Len() > 0 {
		m, err := parseOne(r)
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func parseOne(r *qmsg.Reader) (Message, error) {
	off := r.Offset()
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var m Message
	switch op {
	case protocol.SvcNop:
		m = Nop{}
	case protocol.SvcDisconnect:
		m = Disconnect{}
	case protocol.SvcVersion:
		var v Version
		v.Version, _ = r.ReadLong()
		m = v
	case protocol.SvcServerData:
		m, err = parseServerData(r)
	case protocol.SvcTime:
		var v Time
		v.Time, _ = r.ReadFloat()
		m = v
	case protocol.SvcPrint:
		var v Print
		v.Level, _ = r.ReadByte()
		v.Text, _ = r.ReadString()
		m = v
	case protocol.SvcCenterPrint:
		var v CenterPrint
		v.Text, _ = r.ReadString()
		m = v
	case protocol.SvcStuffText:
		var v StuffText
		v.Text, _ = r.ReadString()
		m = v
	case protocol.SvcSoundList:
		l, lerr := parseStringList(r)
		m, err = SoundList{l}, lerr
	case protocol.SvcModelList:
		l, lerr := parseStringList(r)
		m, err = ModelList{l}, lerr
	case protocol.SvcLightStyle:
		var v LightStyle
		v.Style, _ = r.ReadByte()
		v.Value, _ = r.ReadString()
		m = v
	case protocol.SvcUpdateName:
		var v UpdateName
		v.Slot, _ = r.ReadByte()
		v.Name, _ = r.ReadString()
		m = v
	case protocol.SvcSetView:
		var v SetView
		v.Entity, _ = r.ReadUint16()
		m = v
	case protocol.SvcSetAngle:
		var v SetAngle
		for i := range v.Angles {
			v.Angles[i], _ = r.ReadAngle()
		}
		m = v
	case protocol.SvcClientData:
		m, err = parseClientData(r)
	case protocol.SvcDamage:
		var v Damage
		v.Armor, _ = r.ReadByte()
		v.Blood, _ = r.ReadByte()
		for i := range v.Origin {
			v.Origin[i], _ = r.ReadCoord()
		}
		m = v
	case protocol.SvcSetPause:
		b, _ := r.ReadByte()
		m = SetPause{Paused: b != 0}
	case protocol.SvcSignonNum:
		var v SignonNum
		v.Num, _ = r.ReadByte()
		m = v
	case protocol.SvcSpawnStatic:
		m = SpawnStatic{Baseline: parseBaseline(r)}
	case protocol.SvcSpawnBaseline:
		var v SpawnBaseline
		v.Entity, _ = r.ReadUint16()
		v.Baseline = parseBaseline(r)
		m = v
	case protocol.SvcSpawnStaticSnd:
		var v SpawnStaticSound
		for i := range v.Origin {
			v.Origin[i], _ = r.ReadCoord()
		}
		v.Sound, _ = r.ReadByte()
		v.Volume, _ = r.ReadByte()
		v.Attenuation, _ = r.ReadByte()
		m = v
	case protocol.SvcIntermission:
		var v Intermission
		for i := range v.Origin {
			v.Origin[i], _ = r.ReadCoord()
		}
		for i := range v.Angles {
			v.Angles[i], _ = r.ReadAngle()
		}
		m = v
	case protocol.SvcFinale:
		var v Finale
		v.Text, _ = r.ReadString()
		m = v
	case protocol.SvcCdTrack:
		var v CdTrack
		v.Track, _ = r.ReadByte()
		m = v
	case protocol.SvcSellScreen:
		m = SellScreen{}
	case protocol.SvcSmallKick:
		m = SmallKick{}
	case protocol.SvcBigKick:
		m = BigKick{}
	case protocol.SvcKilledMonster:
		m = KilledMonster{}
	case protocol.SvcFoundSecret:
		m = FoundSecret{}
	case protocol.SvcMuzzleFlash:
		var v MuzzleFlash
		v.Entity, _ = r.ReadUint16()
		m = v
	case protocol.SvcUpdateStat:
		var v UpdateStat
		v.Index, _ = r.ReadByte()
		v.Value, _ = r.ReadByte()
		m = v
	case protocol.SvcUpdateStatLong:
		var v UpdateStatLong
		v.Index, _ = r.ReadByte()
		v.Value, _ = r.ReadLong()
		m = v
	case protocol.SvcMaxSpeed:
		var v MaxSpeed
		v.Speed, _ = r.ReadFloat()
		m = v
	case protocol.SvcEntGravity:
		var v EntGravity
		v.Gravity, _ = r.ReadFloat()
		m = v
	case protocol.SvcUpdateColors:
		var v UpdateColors
		v.Slot, _ = r.ReadByte()
		v.Colors, _ = r.ReadByte()
		m = v
	case protocol.SvcParticle:
		m = parseParticle(r)
	case protocol.SvcTempEntity:
		m, err = parseTempEntity(r)
	case protocol.SvcSound:
		m = parseSound(r)
	case protocol.SvcStopSound:
		field, _ := r.ReadUint16()
		m = StopSound{Entity: (field >> 3) & 1023, Channel: byte(field & 7)}
	case protocol.SvcDownload:
		m, err = parseDownload(r)
	case protocol.SvcNails:
		m, err = parseNails(r)
	case protocol.SvcChokeCount:
		var v ChokeCount
		v.Count, _ = r.ReadByte()
		m = v
	case protocol.SvcUpdateFrags:
		var v UpdateFrags
		v.Slot, _ = r.ReadByte()
		v.Frags, _ = r.ReadShort()
		m = v
	case protocol.SvcUpdatePing:
		var v UpdatePing
		v.Slot, _ = r.ReadByte()
		v.Ping, _ = r.ReadShort()
		m = v
	case protocol.SvcUpdatePl:
		var v UpdatePl
		v.Slot, _ = r.ReadByte()
		v.Loss, _ = r.ReadByte()
		m = v
	case protocol.SvcUpdateEnterTime:
		var v UpdateEnterTime
		v.Slot, _ = r.ReadByte()
		v.SecondsAgo, _ = r.ReadFloat()
		m = v
	case protocol.SvcUpdateUserInfo:
		var v UpdateUserInfo
		v.Slot, _ = r.ReadByte()
		v.UserID, _ = r.ReadLong()
		v.UserInfo, _ = r.ReadString()
		m = v
	case protocol.SvcSetInfo:
		var v SetInfo
		v.Slot, _ = r.ReadByte()
		v.Key, _ = r.ReadString()
		v.Value, _ = r.ReadString()
		m = v
	case protocol.SvcServerInfo:
		var v ServerInfo
		v.Key, _ = r.ReadString()
		v.Value, _ = r.ReadString()
		m = v
	case protocol.SvcPlayerInfo:
		m, err = parsePlayerInfo(r)
	case protocol.SvcPacketEntities:
		m, err = parsePacketEntities(r, false)
	case protocol.SvcDeltaPacketEnts:
		m, err = parsePacketEntities(r, true)
	default:
		return nil, errors.Wrapf(ErrUnknownOpcode, "opcode %d at offset %d", op, off)
	}

	if err == nil {
		err = r.Err()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "svc opcode %d at offset %d", op, off)
	}
	return m, nil
}

func parseServerData(r *qmsg.Reader) (ServerData, error) {
	var v ServerData
	v.Protocol, _ = r.ReadLong()
	v.ServerCount, _ = r.ReadLong()
	v.GameDir, _ = r.ReadString()
	v.PlayerNum, _ = r.ReadByte()
	v.Spectator = v.PlayerNum&0x80 != 0
	v.PlayerNum &= 0x7f
	v.LevelName, _ = r.ReadString()
	v.MoveVars.Gravity, _ = r.ReadFloat()
	v.MoveVars.StopSpeed, _ = r.ReadFloat()
	v.MoveVars.MaxSpeed, _ = r.ReadFloat()
	v.MoveVars.SpectatorMaxSpeed, _ = r.ReadFloat()
	v.MoveVars.Accelerate, _ = r.ReadFloat()
	v.MoveVars.AirAccelerate, _ = r.ReadFloat()
	v.MoveVars.WaterAccelerate, _ = r.ReadFloat()
	v.MoveVars.Friction, _ = r.ReadFloat()
	v.MoveVars.WaterFriction, _ = r.ReadFloat()
	v.MoveVars.EntGravity, _ = r.ReadFloat()
	return v, r.Err()
}

func parseStringList(r *qmsg.Reader) (StringList, error) {
	var l StringList
	start, err := r.ReadByte()
	if err != nil {
		return l, err
	}
	l.Start = start
	for {
		item, err := r.ReadString()
		if err != nil {
			return l, err
		}
		if item == "" {
			break
		}
		l.Items = append(l.Items, item)
	}
	next, err := r.ReadByte()
	l.Next = next
	return l, err
}

func parseClientData(r *qmsg.Reader) (ClientData, error) {
	var v ClientData
	bits, err := r.ReadUint16()
	if err != nil {
		return v, err
	}
	v.Bits = bits
	v.ViewHeight = protocol.DefaultViewHeight
	if bits&protocol.SUViewHeight != 0 {
		v.ViewHeight, _ = r.ReadChar()
	}
	if bits&protocol.SUIdealPitch != 0 {
		v.IdealPitch, _ = r.ReadChar()
	}
	punchBits := []uint16{protocol.SUPunch1, protocol.SUPunch2, protocol.SUPunch3}
	velocityBits := []uint16{protocol.SUVelocity1, protocol.SUVelocity2, protocol.SUVelocity3}
	for i := 0; i < 3; i++ {
		if bits&punchBits[i] != 0 {
			p, _ := r.ReadChar()
			v.PunchAngle[i] = float32(p)
		}
		if bits&velocityBits[i] != 0 {
			vel, _ := r.ReadChar()
			v.Velocity[i] = float32(vel) * 16
		}
	}
	v.Items, _ = r.ReadLong()
	v.OnGround = bits&protocol.SUOnGround != 0
	v.InWater = bits&protocol.SUInWater != 0
	if bits&protocol.SUWeaponFrame != 0 {
		v.WeaponFrame, _ = r.ReadByte()
	}
	if bits&protocol.SUArmor != 0 {
		v.Armor, _ = r.ReadByte()
	}
	if bits&protocol.SUWeapon != 0 {
		v.Weapon, _ = r.ReadByte()
	}
	v.Health, _ = r.ReadShort()
	v.Ammo, _ = r.ReadByte()
	for i := range v.AmmoCounts {
		v.AmmoCounts[i], _ = r.ReadByte()
	}
	v.ActiveWeapon, _ = r.ReadByte()
	return v, r.Err()
}

func parseParticle(r *qmsg.Reader) Particle {
	var v Particle
	for i := range v.Origin {
		v.Origin[i], _ = r.ReadCoord()
	}
	for i := range v.Direction {
		d, _ := r.ReadChar()
		v.Direction[i] = float32(d) * (1.0 / 16.0)
	}
	count, _ := r.ReadByte()
	if count == 255 {
		v.Count = 1024
	} else {
		v.Count = uint16(count)
	}
	v.Color, _ = r.ReadByte()
	return v
}

func parseTempEntity(r *qmsg.Reader) (TempEntity, error) {
	var v TempEntity
	kind, err := r.ReadByte()
	if err != nil {
		return v, err
	}
	v.Kind = kind
	switch kind {
	case protocol.TELightning1, protocol.TELightning2, protocol.TELightning3:
		v.Entity, _ = r.ReadUint16()
		for i := range v.Start {
			v.Start[i], _ = r.ReadCoord()
		}
		for i := range v.End {
			v.End[i], _ = r.ReadCoord()
		}
	case protocol.TEGunshot, protocol.TEBlood:
		v.Count, _ = r.ReadByte()
		for i := range v.Origin {
			v.Origin[i], _ = r.ReadCoord()
		}
	case protocol.TESpike, protocol.TESuperSpike, protocol.TEWizSpike,
		protocol.TEKnightSpike, protocol.TEExplosion, protocol.TETarExplosion,
		protocol.TELavaSplash, protocol.TETeleport, protocol.TELightningBlood:
		for i := range v.Origin {
			v.Origin[i], _ = r.ReadCoord()
		}
	default:
		return v, errors.Wrapf(qmsg.ErrMalformed, "temp entity kind %d", kind)
	}
	return v, r.Err()
}

func parseSound(r *qmsg.Reader) Sound {
	var v Sound
	field, _ := r.ReadUint16()
	v.Volume = protocol.DefaultSoundVolume
	if field&protocol.SndVolume != 0 {
		v.Volume, _ = r.ReadByte()
	}
	v.Attenuation = protocol.DefaultSoundAttenuation
	if field&protocol.SndAttenuation != 0 {
		a, _ := r.ReadByte()
		v.Attenuation = float32(a) / 64
	}
	v.SoundNum, _ = r.ReadByte()
	for i := range v.Origin {
		v.Origin[i], _ = r.ReadCoord()
	}
	v.Entity = (field >> 3) & 1023
	v.Channel = byte(field & 7)
	return v
}

func parseDownload(r *qmsg.Reader) (Download, error) {
	var v Download
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

func parsePlayerInfo(r *qmsg.Reader) (PlayerInfo, error) {
	var v PlayerInfo
	v.Num, _ = r.ReadByte()
	v.Flags, _ = r.ReadUint16()
	for i := range v.Origin {
		v.Origin[i], _ = r.ReadCoord()
	}
	v.Frame, _ = r.ReadByte()
	if v.Flags&protocol.PFMsec != 0 {
		v.Msec, _ = r.ReadByte()
	}
	if v.Flags&protocol.PFCommand != 0 {
		var null protocol.UserCmd
		cmd, err := qmsg.ReadDeltaUserCmd(r, &null)
		if err != nil {
			return v, err
		}
		v.Cmd = cmd
	}
	velFlags := []uint16{protocol.PFVelocity1, protocol.PFVelocity2, protocol.PFVelocity3}
	for i, f := range velFlags {
		if v.Flags&f != 0 {
			v.Velocity[i], _ = r.ReadShort()
		}
	}
	if v.Flags&protocol.PFModel != 0 {
		v.ModelIndex, _ = r.ReadByte()
	}
	if v.Flags&protocol.PFSkinNum != 0 {
		v.SkinNum, _ = r.ReadByte()
	}
	if v.Flags&protocol.PFEffects != 0 {
		v.Effects, _ = r.ReadByte()
	}
	if v.Flags&protocol.PFWeaponFrame != 0 {
		v.WeaponFrame, _ = r.ReadByte()
	}
	return v, r.Err()
}
