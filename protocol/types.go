// SPDX-License-Identifier: GPL-2.0-or-later

package protocol

// EntityState is the visible state of one entity, the unit the delta
// codec works on.
type EntityState struct {
	Number     uint16
	ModelIndex byte
	Frame      byte
	Colormap   byte
	SkinNum    byte
	Effects    byte
	Origin     [3]float32
	Angles     [3]float32
}

// UserCmd is one client movement command.
type UserCmd struct {
	Msec        byte
	Angles      [3]float32
	ForwardMove int16
	SideMove    int16
	UpMove      int16
	Buttons     byte
	Impulse     byte
}

// PlayerState is the per-player view carried by svc_playerinfo.
type PlayerState struct {
	Flags       uint16
	Origin      [3]float32
	Frame       byte
	Msec        byte
	Cmd         UserCmd
	Velocity    [3]float32
	ModelIndex  byte
	SkinNum     byte
	Effects     byte
	WeaponFrame byte
}

// MoveVars are the ten movement variables sent in svc_serverdata.
type MoveVars struct {
	Gravity           float32
	StopSpeed         float32
	MaxSpeed          float32
	SpectatorMaxSpeed float32
	Accelerate        float32
	AirAccelerate     float32
	WaterAccelerate   float32
	Friction          float32
	WaterFriction     float32
	EntGravity        float32
}
