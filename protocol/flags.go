// SPDX-License-Identifier: GPL-2.0-or-later

package protocol

// Entity delta bits. The low 9 bits of the entity word carry the
// entity number, the rest are field flags. UMoreBits pulls in a second
// flag byte shifted down by 8.
const (
	UOrigin1  = 1 << 9
	UOrigin2  = 1 << 10
	UOrigin3  = 1 << 11
	UAngle2   = 1 << 12
	UFrame    = 1 << 13
	URemove   = 1 << 14
	UMoreBits = 1 << 15

	UAngle1   = 1 << 0
	UAngle3   = 1 << 1
	UModel    = 1 << 2
	UColormap = 1 << 3
	USkin     = 1 << 4
	UEffects  = 1 << 5
	USolid    = 1 << 6

	EntityNumberMask = (1 << 9) - 1
)

// Player state flags in svc_playerinfo.
const (
	PFMsec        = 1 << 0
	PFCommand     = 1 << 1
	PFVelocity1   = 1 << 2
	PFVelocity2   = 1 << 3
	PFVelocity3   = 1 << 4
	PFModel       = 1 << 5
	PFSkinNum     = 1 << 6
	PFEffects     = 1 << 7
	PFWeaponFrame = 1 << 8
	PFDead        = 1 << 9
	PFGib         = 1 << 10
	PFNoGrav      = 1 << 11
)

// svc_clientdata bits.
const (
	SUViewHeight  = 1 << 0
	SUIdealPitch  = 1 << 1
	SUPunch1      = 1 << 2
	SUPunch2      = 1 << 3
	SUPunch3      = 1 << 4
	SUVelocity1   = 1 << 5
	SUVelocity2   = 1 << 6
	SUVelocity3   = 1 << 7
	SUItems       = 1 << 9
	SUOnGround    = 1 << 10
	SUInWater     = 1 << 11
	SUWeaponFrame = 1 << 12
	SUArmor       = 1 << 13
	SUWeapon      = 1 << 14
)

// Delta usercmd bits.
const (
	CMAngle1  = 1 << 0
	CMAngle3  = 1 << 1
	CMForward = 1 << 2
	CMSide    = 1 << 3
	CMUp      = 1 << 4
	CMButtons = 1 << 5
	CMImpulse = 1 << 6
	CMAngle2  = 1 << 7
)

// svc_sound channel word bits and defaults.
const (
	SndVolume      = 1 << 15
	SndAttenuation = 1 << 14

	DefaultSoundVolume      = 255
	DefaultSoundAttenuation = 1.0
)

const DefaultViewHeight = 22

// Temp entity kinds.
const (
	TESpike          = 0
	TESuperSpike     = 1
	TEGunshot        = 2
	TEExplosion      = 3
	TETarExplosion   = 4
	TELightning1     = 5
	TELightning2     = 6
	TEWizSpike       = 7
	TEKnightSpike    = 8
	TELightning3     = 9
	TELavaSplash     = 10
	TETeleport       = 11
	TEBlood          = 12
	TELightningBlood = 13
)
