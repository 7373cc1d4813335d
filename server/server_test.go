// SPDX-License-Identifier: GPL-2.0-or-later

package server

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"qwire/client"
	"qwire/netchan"
	"qwire/protocol"
)

func testConfig() Config {
	return Config{
		GameDir:     "qw",
		LevelName:   "dm4",
		HostName:    "test server",
		Sounds:      []string{"boom.wav", "tink.wav", "jump.wav"},
		Models:      []string{"maps/dm4.bsp", "progs/player.mdl"},
		SpawnOrigin: [3]float32{544, 288, 32},
		MoveVars:    protocol.MoveVars{Gravity: 800, MaxSpeed: 320, EntGravity: 1},
	}
}

func TestChallengeAndConnect(t *testing.T) {
	s := New(testConfig(), logr.Discard(), nil)

	out, err := s.Receive("1.2.3.4:27001", netchan.OutOfBandString("getchallenge\n"))
	if err != nil {
		t.Fatalf("getchallenge: %v", err)
	}
	if len(out) != 1 || !netchan.IsOutOfBand(out[0].Data) {
		t.Fatalf("expected one oob reply, got %v", out)
	}
	payload := netchan.OutOfBandPayload(out[0].Data)
	if payload[0] != protocol.S2CChallenge {
		t.Fatalf("reply code = %q, want %q", payload[0], protocol.S2CChallenge)
	}
	ch, err := strconv.Atoi(string(payload[1:]))
	if err != nil {
		t.Fatalf("challenge %q not a number", payload[1:])
	}

	connect := fmt.Sprintf("connect %d 27001 %d \"\\name\\tester\"\n", protocol.Version, ch)
	out, err = s.Receive("1.2.3.4:27001", netchan.OutOfBandString(connect))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := netchan.OutOfBandPayload(out[0].Data); got[0] != protocol.S2CConnection {
		t.Fatalf("reply = %q, want connection accept", got)
	}
	if s.NumClients() != 1 {
		t.Fatalf("NumClients = %d, want 1", s.NumClients())
	}
}

func TestConnectBadChallenge(t *testing.T) {
	s := New(testConfig(), logr.Discard(), nil)
	line := fmt.Sprintf("connect %d 27001 12345 \"\\name\\tester\"\n", protocol.Version)
	_, err := s.Receive("1.2.3.4:27001", netchan.OutOfBandString(line))
	if !errors.Is(err, ErrBadChallenge) {
		t.Fatalf("err = %v, want ErrBadChallenge", err)
	}
	if s.NumClients() != 0 {
		t.Errorf("client registered despite bad challenge")
	}
}

func TestConnectWrongProtocol(t *testing.T) {
	s := New(testConfig(), logr.Discard(), nil)
	out, err := s.Receive("1.2.3.4:27001", netchan.OutOfBandString("connect 27 27001 1 \"\"\n"))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected a print reply")
	}
	text := string(netchan.OutOfBandPayload(out[0].Data))
	if !strings.Contains(text, "protocol") {
		t.Errorf("reply %q should name the protocol", text)
	}
}

func TestListPaging(t *testing.T) {
	list := make([]string, 100)
	for i := range list {
		list[i] = fmt.Sprintf("item%d", i)
	}
	first := pageOf(list, 0)
	if len(first.Items) != listPageSize || first.Next != listPageSize {
		t.Fatalf("first page: %d items, next %d", len(first.Items), first.Next)
	}
	second := pageOf(list, int(first.Next))
	if len(second.Items) != 36 || second.Next != 0 {
		t.Fatalf("second page: %d items, next %d", len(second.Items), second.Next)
	}
	if second.Items[0] != "item64" {
		t.Errorf("second page starts at %q", second.Items[0])
	}
}

// pump exchanges packets between a session and the server until the
// client spawns or traffic dies down.
func pump(t *testing.T, s *Server, addr string, cl *client.Session, pkts [][]byte) {
	t.Helper()
	for round := 0; round < 64 && len(pkts) > 0; round++ {
		var next [][]byte
		for _, p := range pkts {
			replies, err := s.Receive(addr, p)
			if err != nil {
				t.Fatalf("server Receive: %v", err)
			}
			for _, r := range replies {
				resp, err := cl.Receive(r.Data)
				if err != nil {
					t.Fatalf("client Receive: %v", err)
				}
				next = append(next, resp...)
			}
		}
		if cl.Status() == client.StatusSpawned {
			return
		}
		pkts = next
	}
	if cl.Status() != client.StatusSpawned {
		t.Fatalf("client stuck in %v", cl.Status())
	}
}

func TestSignonAndFrames(t *testing.T) {
	s := New(testConfig(), logr.Discard(), nil)
	world := []protocol.EntityState{
		{Number: 1, ModelIndex: 1, Origin: [3]float32{16, 0, 0}},
		{Number: 4, ModelIndex: 2, Origin: [3]float32{0, 32, 0}},
	}
	s.SetEntities(world)
	s.CaptureBaselines()

	const addr = "10.0.0.1:27001"
	cl := client.NewSession(client.Config{QPort: 27001}, logr.Discard())
	pump(t, s, addr, cl, cl.Start())

	st := cl.State()
	if st.ServerData.LevelName != "dm4" || st.ServerData.GameDir != "qw" {
		t.Fatalf("serverdata = %+v", st.ServerData)
	}
	if len(st.Sounds) != 3 || st.Sounds[2] != "jump.wav" {
		t.Errorf("sounds = %v", st.Sounds)
	}
	if len(st.Models) != 2 {
		t.Errorf("models = %v", st.Models)
	}
	if _, ok := st.Baseline(4); !ok {
		t.Fatal("baseline for entity 4 missing")
	}
	if st.LightStyles[0] != "m" {
		t.Errorf("lightstyle 0 = %q, want m", st.LightStyles[0])
	}
	if st.ViewEntity != 1 {
		t.Errorf("view entity = %d, want 1", st.ViewEntity)
	}
	if !st.HaveClientData || st.ClientData.Health != 100 {
		t.Errorf("clientdata after signon: have=%v %+v", st.HaveClientData, st.ClientData)
	}
	if got := st.ServerInfo.Get("map"); got != "dm4" {
		t.Errorf("serverinfo map = %q, want dm4", got)
	}

	// begin rides the first tick
	tick := func() {
		t.Helper()
		pkts, err := cl.Tick()
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		for _, p := range pkts {
			replies, err := s.Receive(addr, p)
			if err != nil {
				t.Fatalf("server Receive: %v", err)
			}
			for _, r := range replies {
				if _, err := cl.Receive(r.Data); err != nil {
					t.Fatalf("client Receive: %v", err)
				}
			}
		}
	}
	tick()

	frame := func() {
		t.Helper()
		out, err := s.Frame()
		if err != nil {
			t.Fatalf("Frame: %v", err)
		}
		if len(out) != 1 {
			t.Fatalf("Frame sent %d packets, want 1", len(out))
		}
		if _, err := cl.Receive(out[0].Data); err != nil {
			t.Fatalf("client Receive frame: %v", err)
		}
	}

	// first frame is a full update
	frame()
	if cl.State().ValidSequence == 0 {
		t.Fatal("no valid frame after full update")
	}
	got := cl.State().Frame(cl.State().ValidSequence).Entities
	if len(got) != 2 || got[0].Origin != world[0].Origin {
		t.Fatalf("full update entities = %+v", got)
	}
	if org := cl.State().Players[0].Origin; org != [3]float32{544, 288, 32} {
		t.Errorf("player 0 origin = %v, want spawn point", org)
	}

	// the move carries the delta reference for the next frame
	tick()
	world[0].Origin[0] = 24
	world[0].Frame = 3
	s.SetEntities(world)
	frame()

	got = cl.State().Frame(cl.State().ValidSequence).Entities
	if len(got) != 2 {
		t.Fatalf("delta update entities = %+v", got)
	}
	if got[0].Origin[0] != 24 || got[0].Frame != 3 {
		t.Errorf("entity 1 = %+v, want moved state", got[0])
	}
	if got[1].Origin != world[1].Origin {
		t.Errorf("entity 4 = %+v, want unchanged copy", got[1])
	}
}

func TestMoveChecksumDrop(t *testing.T) {
	s := New(testConfig(), logr.Discard(), nil)
	const addr = "10.0.0.2:27001"
	cl := client.NewSession(client.Config{QPort: 27001}, logr.Discard())
	pump(t, s, addr, cl, cl.Start())

	pkts, err := cl.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pkts) != 1 {
		t.Fatalf("expected one move packet")
	}
	// flip a move payload byte, the stamped checksum no longer matches
	pkt := append([]byte(nil), pkts[0]...)
	pkt[len(pkt)-1] ^= 0x10
	if _, err := s.Receive(addr, pkt); err != nil {
		t.Fatalf("server Receive: %v", err)
	}

	c := s.clients[addr]
	if c == nil {
		t.Fatal("client gone")
	}
	if c.badMoves != 1 {
		t.Errorf("badMoves = %d, want 1", c.badMoves)
	}
	if c.spawned != true {
		t.Error("client should stay connected after a dropped move")
	}
}
