// SPDX-License-Identifier: GPL-2.0-or-later

package svc

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"qwire/protocol"
	"qwire/qmsg"
)

func TestDeltaBetweenAndApply(t *testing.T) {
	from := protocol.EntityState{
		Number:     7,
		ModelIndex: 3,
		Frame:      1,
		SkinNum:    2,
		Origin:     [3]float32{100, 200, 24},
		Angles:     [3]float32{0, 90, 0},
	}
	tests := []protocol.EntityState{
		from,
		{Number: 7, ModelIndex: 3, Frame: 2, SkinNum: 2, Origin: [3]float32{104, 200, 24}, Angles: [3]float32{0, 90, 0}},
		{Number: 7, ModelIndex: 5, Frame: 1, SkinNum: 0, Origin: [3]float32{100, 200, 48.5}, Angles: [3]float32{45, 180, -45}},
		{Number: 7, ModelIndex: 3, Frame: 1, SkinNum: 2, Colormap: 4, Effects: 8, Origin: [3]float32{100, 200, 24}, Angles: [3]float32{0, 90, 0}},
	}
	for i, to := range tests {
		d, changed := DeltaBetween(&from, &to)
		if (to != from) != changed {
			t.Errorf("Testcase %d: changed=%v", i, changed)
		}
		got := d.Apply(&from)
		if got != to {
			t.Errorf("Testcase %d. got: %+v, want %+v", i, got, to)
		}
	}
}

func TestEntityDeltaWireRoundTrip(t *testing.T) {
	from := protocol.EntityState{Number: 300, ModelIndex: 2, Origin: [3]float32{8, 8, 8}}
	to := protocol.EntityState{Number: 300, ModelIndex: 9, Frame: 3, Origin: [3]float32{16, 8, -8}, Angles: [3]float32{0, 45, 0}}
	d, changed := DeltaBetween(&from, &to)
	if !changed {
		t.Fatalf("expected change")
	}

	w := qmsg.NewWriter(protocol.MaxMsgLen)
	appendEntityDelta(w, &d)
	r := qmsg.NewReader(w.Bytes())
	word, _ := r.ReadUint16()
	parsed, err := parseEntityDelta(r, word)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got := parsed.Apply(&from)
	if got != to {
		t.Errorf("apply: got %+v, want %+v", got, to)
	}
}

func TestAngleRoundTripInDelta(t *testing.T) {
	// byte angles land on the 360/256 grid, the test values do
	from := protocol.EntityState{Number: 1}
	to := protocol.EntityState{Number: 1, Angles: [3]float32{45, 90, 135}}
	d, _ := DeltaBetween(&from, &to)

	w := qmsg.NewWriter(64)
	appendEntityDelta(w, &d)
	r := qmsg.NewReader(w.Bytes())
	word, _ := r.ReadUint16()
	parsed, _ := parseEntityDelta(r, word)
	if parsed.Angles != to.Angles {
		t.Errorf("angles: got %v", parsed.Angles)
	}
}

func TestPacketEntitiesRoundTrip(t *testing.T) {
	in := PacketEntities{
		Delta:     true,
		DeltaFrom: 17,
		Entities: []EntityDelta{
			{Number: 2, Bits: protocol.UFrame | protocol.UOrigin1, Frame: 3, Origin: [3]float32{12, 0, 0}},
			{Number: 5},
			{Number: 9, Remove: true},
			{Number: 12, Bits: protocol.UEffects, Effects: 1, Solid: true},
		},
	}
	got := roundTrip(t, in).(PacketEntities)
	if got.DeltaFrom != 17 || !got.Delta {
		t.Fatalf("header: %+v", got)
	}
	if len(got.Entities) != 4 {
		t.Fatalf("entities: %d", len(got.Entities))
	}
	if got.Entities[0].Frame != 3 || got.Entities[0].Origin[0] != 12 {
		t.Errorf("entity 2: %+v", got.Entities[0])
	}
	if got.Entities[1].Bits != 0 || got.Entities[1].Number != 5 {
		t.Errorf("bare entity word: %+v", got.Entities[1])
	}
	if !got.Entities[2].Remove {
		t.Errorf("remove flag lost: %+v", got.Entities[2])
	}
	if !reflect.DeepEqual(got.Entities[3], in.Entities[3]) {
		t.Errorf("solid entity: got %+v, want %+v", got.Entities[3], in.Entities[3])
	}
}

func TestFullPacketEntities(t *testing.T) {
	in := PacketEntities{
		Entities: []EntityDelta{
			{Number: 1, Bits: protocol.UModel, ModelIndex: 2},
		},
	}
	got := roundTrip(t, in).(PacketEntities)
	if got.Delta {
		t.Errorf("full update parsed as delta")
	}
	if !reflect.DeepEqual(got.Entities, in.Entities) {
		t.Errorf("entities: got %+v", got.Entities)
	}
}

func TestEntityZeroWithFlagsIsMalformed(t *testing.T) {
	w := qmsg.NewWriter(64)
	w.WriteByte(protocol.SvcPacketEntities)
	w.WriteShort(protocol.UFrame) // entity number 0 with a field flag
	w.WriteByte(3)
	w.WriteShort(0)
	_, err := Parse(qmsg.NewReader(w.Bytes()))
	if !errors.Is(err, ErrMalformedDelta) {
		t.Errorf("want ErrMalformedDelta, got %v", err)
	}
}

func TestNailsRoundTrip(t *testing.T) {
	in := Nails{Projectiles: []Projectile{
		{Origin: [3]float32{0, -4096, 4094}, Pitch: 90, Yaw: 180},
		{Origin: [3]float32{512, 1024, -2048}, Pitch: 0, Yaw: 0},
	}}
	got := roundTrip(t, in).(Nails)
	if len(got.Projectiles) != 2 {
		t.Fatalf("projectiles: %d", len(got.Projectiles))
	}
	for i, p := range got.Projectiles {
		want := in.Projectiles[i]
		if p.Origin != want.Origin {
			t.Errorf("projectile %d origin: got %v, want %v", i, p.Origin, want.Origin)
		}
		if p.Pitch != want.Pitch || p.Yaw != want.Yaw {
			t.Errorf("projectile %d angles: got %v/%v", i, p.Pitch, p.Yaw)
		}
	}
}
