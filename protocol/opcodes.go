// SPDX-License-Identifier: GPL-2.0-or-later

package protocol

// Server to client opcodes. 21 is unassigned in version 28.
const (
	SvcBad             = 0
	SvcNop             = 1
	SvcDisconnect      = 2
	SvcUpdateStat      = 3
	SvcVersion         = 4
	SvcSetView         = 5
	SvcSound           = 6
	SvcTime            = 7
	SvcPrint           = 8
	SvcStuffText       = 9
	SvcSetAngle        = 10
	SvcServerData      = 11
	SvcLightStyle      = 12
	SvcUpdateName      = 13
	SvcUpdateFrags     = 14
	SvcClientData      = 15
	SvcStopSound       = 16
	SvcUpdateColors    = 17
	SvcParticle        = 18
	SvcDamage          = 19
	SvcSpawnStatic     = 20
	SvcSpawnBaseline   = 22
	SvcTempEntity      = 23
	SvcSetPause        = 24
	SvcSignonNum       = 25
	SvcCenterPrint     = 26
	SvcKilledMonster   = 27
	SvcFoundSecret     = 28
	SvcSpawnStaticSnd  = 29
	SvcIntermission    = 30
	SvcFinale          = 31
	SvcCdTrack         = 32
	SvcSellScreen      = 33
	SvcSmallKick       = 34
	SvcBigKick         = 35
	SvcUpdatePing      = 36
	SvcUpdateEnterTime = 37
	SvcUpdateStatLong  = 38
	SvcMuzzleFlash     = 39
	SvcUpdateUserInfo  = 40
	SvcDownload        = 41
	SvcPlayerInfo      = 42
	SvcNails           = 43
	SvcChokeCount      = 44
	SvcModelList       = 45
	SvcSoundList       = 46
	SvcPacketEntities  = 47
	SvcDeltaPacketEnts = 48
	SvcMaxSpeed        = 49
	SvcEntGravity      = 50
	SvcSetInfo         = 51
	SvcServerInfo      = 52
	SvcUpdatePl        = 53
)

// Client to server opcodes. 2 is unassigned in version 28.
const (
	ClcBad       = 0
	ClcNop       = 1
	ClcMove      = 3
	ClcStringCmd = 4
	ClcDelta     = 5
	ClcTMove     = 6
	ClcUpload    = 7
)
