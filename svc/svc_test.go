// SPDX-License-Identifier: GPL-2.0-or-later

package svc

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"qwire/protocol"
	"qwire/qmsg"
)

func roundTrip(t *testing.T, in Message) Message {
	t.Helper()
	w := qmsg.NewWriter(protocol.MaxMsgLen)
	in.Append(w)
	if w.Overflowed() {
		t.Fatalf("%T overflowed the writer", in)
	}
	r := qmsg.NewReader(w.Bytes())
	msgs, err := Parse(r)
	if err != nil {
		t.Fatalf("%T: parse: %v", in, err)
	}
	if len(msgs) != 1 {
		t.Fatalf("%T: got %d messages", in, len(msgs))
	}
	return msgs[0]
}

func TestSimpleRoundTrips(t *testing.T) {
	tests := []Message{
		Nop{},
		Disconnect{},
		Version{Version: 28},
		Time{Time: 12.5},
		Print{Level: protocol.PrintChat, Text: "hello"},
		CenterPrint{Text: "You got the rune"},
		StuffText{Text: "cmd spawn 0 0\n"},
		LightStyle{Style: 3, Value: "mmnmmommommnonmmonqnmmo"},
		UpdateName{Slot: 2, Name: "player"},
		SetView{Entity: 17},
		SetAngle{Angles: [3]float32{0, 90, 0}},
		Damage{Armor: 5, Blood: 12, Origin: [3]float32{10, -22.5, 88}},
		SetPause{Paused: true},
		SignonNum{Num: 2},
		Finale{Text: "the end"},
		CdTrack{Track: 4},
		SellScreen{},
		SmallKick{},
		BigKick{},
		KilledMonster{},
		FoundSecret{},
		MuzzleFlash{Entity: 33},
		UpdateStat{Index: protocol.StatHealth, Value: 100},
		UpdateStatLong{Index: protocol.StatItems, Value: 1 << 20},
		MaxSpeed{Speed: 320},
		EntGravity{Gravity: 0.5},
		UpdateColors{Slot: 1, Colors: 0x34},
		StopSound{Entity: 12, Channel: 3},
		ChokeCount{Count: 2},
		UpdateFrags{Slot: 0, Frags: -1},
		UpdatePing{Slot: 4, Ping: 38},
		UpdatePl{Slot: 4, Loss: 10},
		UpdateEnterTime{Slot: 4, SecondsAgo: 61.25},
		UpdateUserInfo{Slot: 1, UserID: 99, UserInfo: `\name\player\team\red`},
		SetInfo{Slot: 1, Key: "skin", Value: "base"},
		ServerInfo{Key: "maxclients", Value: "16"},
		Intermission{Origin: [3]float32{1, 2, 3}, Angles: [3]float32{0, 90, 0}},
		SpawnStaticSound{Origin: [3]float32{8, 16, -24}, Sound: 3, Volume: 200, Attenuation: 64},
		Download{Size: 3, Percent: 50, Data: []byte{1, 2, 3}},
		Download{Size: -1, Percent: 100},
	}
	for _, in := range tests {
		got := roundTrip(t, in)
		if !reflect.DeepEqual(got, in) {
			t.Errorf("%T round trip: got %+v, want %+v", in, got, in)
		}
	}
}

func TestServerDataRoundTrip(t *testing.T) {
	in := ServerData{
		Protocol:    protocol.Version,
		ServerCount: 42,
		GameDir:     "qw",
		PlayerNum:   3,
		Spectator:   true,
		LevelName:   "dm2",
		MoveVars: protocol.MoveVars{
			Gravity: 800, StopSpeed: 100, MaxSpeed: 320,
			SpectatorMaxSpeed: 500, Accelerate: 10, AirAccelerate: 0.7,
			WaterAccelerate: 10, Friction: 4, WaterFriction: 1, EntGravity: 1,
		},
	}
	got := roundTrip(t, in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestStringListRoundTrip(t *testing.T) {
	in := SoundList{StringList{Start: 2, Items: []string{"sound1", "sound2"}, Next: 5}}
	got := roundTrip(t, in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}

	last := ModelList{StringList{Start: 60, Items: []string{"maps/dm2.bsp"}, Next: 0}}
	got = roundTrip(t, last)
	if !reflect.DeepEqual(got, last) {
		t.Errorf("got %+v, want %+v", got, last)
	}
}

func TestClientDataRoundTrip(t *testing.T) {
	in := ClientData{
		Bits: protocol.SUViewHeight | protocol.SUVelocity1 | protocol.SUVelocity3 |
			protocol.SUPunch2 | protocol.SUWeaponFrame | protocol.SUArmor | protocol.SUWeapon,
		ViewHeight:   30,
		PunchAngle:   [3]float32{0, -4, 0},
		Velocity:     [3]float32{320, 0, -160},
		Items:        0x40000001,
		OnGround:     true,
		WeaponFrame:  6,
		Armor:        100,
		Weapon:       34,
		Health:       99,
		Ammo:         25,
		AmmoCounts:   [4]byte{100, 50, 25, 200},
		ActiveWeapon: 2,
	}
	got := roundTrip(t, in).(ClientData)
	// the wire carries the ground and water state inside the bits
	in.Bits |= protocol.SUOnGround
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestClientDataDefaults(t *testing.T) {
	in := ClientData{Health: 100, Ammo: 10}
	got := roundTrip(t, in).(ClientData)
	if got.ViewHeight != protocol.DefaultViewHeight {
		t.Errorf("viewheight default: got %d", got.ViewHeight)
	}
	if got.Health != 100 {
		t.Errorf("health: got %d", got.Health)
	}
}

func TestSoundRoundTrip(t *testing.T) {
	tests := []Sound{
		{Entity: 5, Channel: 2, SoundNum: 10, Volume: 255, Attenuation: 1, Origin: [3]float32{1, 2, 3}},
		{Entity: 900, Channel: 7, SoundNum: 3, Volume: 128, Attenuation: 0.5, Origin: [3]float32{-8, 0, 12}},
	}
	for i, in := range tests {
		got := roundTrip(t, in).(Sound)
		if !reflect.DeepEqual(got, in) {
			t.Errorf("Testcase %d. got: %+v, want %+v", i, got, in)
		}
	}
}

func TestPlayerInfoRoundTrip(t *testing.T) {
	in := PlayerInfo{
		Num: 3,
		Flags: protocol.PFMsec | protocol.PFCommand | protocol.PFVelocity2 |
			protocol.PFModel | protocol.PFEffects | protocol.PFDead,
		Origin:     [3]float32{100, -200.5, 24},
		Frame:      12,
		Msec:       25,
		Cmd:        protocol.UserCmd{Msec: 25, Angles: [3]float32{0, 90, 0}, ForwardMove: 400},
		Velocity:   [3]int16{0, -320, 0},
		ModelIndex: 6,
		Effects:    8,
	}
	got := roundTrip(t, in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestBaselineRoundTrip(t *testing.T) {
	in := SpawnBaseline{
		Entity: 44,
		Baseline: protocol.EntityState{
			ModelIndex: 3,
			Frame:      1,
			Colormap:   0,
			SkinNum:    2,
			Origin:     [3]float32{128, -64, 24},
			Angles:     [3]float32{0, 45, 0},
		},
	}
	got := roundTrip(t, in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestTempEntityVariants(t *testing.T) {
	tests := []TempEntity{
		{Kind: protocol.TEExplosion, Origin: [3]float32{1, 2, 3}},
		{Kind: protocol.TEGunshot, Count: 2, Origin: [3]float32{10, 20, 30}},
		{Kind: protocol.TELightning2, Entity: 5, Start: [3]float32{0, 0, 0}, End: [3]float32{100, 0, 50}},
	}
	for i, in := range tests {
		got := roundTrip(t, in)
		if !reflect.DeepEqual(got, in) {
			t.Errorf("Testcase %d. got: %+v, want %+v", i, got, in)
		}
	}
}

func TestUnknownOpcodeAborts(t *testing.T) {
	r := qmsg.NewReader([]byte{protocol.SvcNop, 54, protocol.SvcNop})
	msgs, err := Parse(r)
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("want ErrUnknownOpcode, got %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("messages before the bad opcode: got %d", len(msgs))
	}
}

func TestTruncatedMessage(t *testing.T) {
	w := qmsg.NewWriter(64)
	Sound{Entity: 1, Channel: 1, SoundNum: 1, Volume: 255, Attenuation: 1}.Append(w)
	b := w.Bytes()
	r := qmsg.NewReader(b[:len(b)-2])
	if _, err := Parse(r); !errors.Is(err, qmsg.ErrTruncated) {
		t.Errorf("want ErrTruncated, got %v", err)
	}
}

func TestMultipleMessagesInOneDatagram(t *testing.T) {
	w := qmsg.NewWriter(protocol.MaxMsgLen)
	Time{Time: 1}.Append(w)
	Print{Level: 0, Text: "a"}.Append(w)
	SignonNum{Num: 1}.Append(w)
	msgs, err := Parse(qmsg.NewReader(w.Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if _, ok := msgs[1].(Print); !ok {
		t.Errorf("second message: %T", msgs[1])
	}
}
