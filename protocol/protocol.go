// SPDX-License-Identifier: GPL-2.0-or-later

// Package protocol holds the wire constants of protocol version 28:
// opcodes, delta flag bits, limits and the out-of-band packet codes.
package protocol

const Version = 28

const (
	MaxMsgLen   = 1450
	MaxDatagram = 1450

	MaxPacketEntities = 64
	UpdateBackup      = 64
	UpdateMask        = UpdateBackup - 1

	MaxClients     = 32
	MaxEdicts      = 768
	MaxModels      = 256
	MaxSounds      = 256
	MaxLightstyles = 64
	MaxStats       = 32

	MaxInfoString       = 196
	MaxServerInfoString = 512
)

// Default UDP ports.
const (
	PortClient = 27001
	PortMaster = 27000
	PortServer = 27500
)

// Out-of-band packet codes, the byte following the 0xffffffff marker.
const (
	S2CChallenge      = 'c'
	S2CConnection     = 'j'
	A2APing           = 'k'
	A2AAck            = 'l'
	A2ANack           = 'm'
	A2AEcho           = 'e'
	A2CPrint          = 'n'
	S2MHeartbeat      = 'a'
	A2CClientCommand  = 'B'
	S2MShutdown       = 'C'
	A2CServerInfoPoll = 's' // status query, answered with A2CPrint
)

// Print levels carried by svc_print.
const (
	PrintLow    = 0
	PrintMedium = 1
	PrintHigh   = 2
	PrintChat   = 3
)

// Stat slots updated by svc_updatestat(long).
const (
	StatHealth        = 0
	StatFrags         = 1
	StatWeapon        = 2
	StatAmmo          = 3
	StatArmor         = 4
	StatWeaponFrame   = 5
	StatShells        = 6
	StatNails         = 7
	StatRockets       = 8
	StatCells         = 9
	StatActiveWeapon  = 10
	StatTotalSecrets  = 11
	StatTotalMonsters = 12
	StatSecrets       = 13
	StatMonsters      = 14
	StatItems         = 15
	StatViewHeight    = 16
)
