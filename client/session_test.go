// SPDX-License-Identifier: GPL-2.0-or-later

package client

import (
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"qwire/clc"
	"qwire/netchan"
	"qwire/protocol"
	"qwire/qmsg"
	"qwire/svc"
)

// fakeServer is the other end of the wire: a server netchan plus the
// client messages it has decoded so far.
type fakeServer struct {
	t     *testing.T
	ch    *netchan.Chan
	cmds  []string
	moves []clc.Move
}

func (f *fakeServer) receive(pkts [][]byte) {
	f.t.Helper()
	for _, p := range pkts {
		if netchan.IsOutOfBand(p) {
			f.t.Fatalf("unexpected out of band packet %q", p)
		}
		payload, err := f.ch.Process(p)
		if err != nil {
			if errors.Is(err, netchan.ErrOutOfOrder) {
				continue
			}
			f.t.Fatalf("server Process: %v", err)
		}
		msgs, err := clc.Parse(qmsg.NewReader(payload), f.ch.IncomingSequence())
		if err != nil {
			f.t.Fatalf("server clc.Parse: %v", err)
		}
		for _, m := range msgs {
			switch v := m.(type) {
			case clc.StringCmd:
				f.cmds = append(f.cmds, v.Cmd)
			case clc.Move:
				f.moves = append(f.moves, v)
			}
		}
	}
}

func (f *fakeServer) send(msgs ...svc.Message) []byte {
	f.t.Helper()
	w := qmsg.NewWriter(protocol.MaxMsgLen)
	for _, m := range msgs {
		m.Append(w)
	}
	if err := f.ch.QueueReliable(w.Bytes()); err != nil {
		f.t.Fatalf("server QueueReliable: %v", err)
	}
	pkt, err := f.ch.Transmit(nil)
	if err != nil {
		f.t.Fatalf("server Transmit: %v", err)
	}
	return pkt
}

func (f *fakeServer) lastCmd() string {
	if len(f.cmds) == 0 {
		return ""
	}
	return f.cmds[len(f.cmds)-1]
}

func recv(t *testing.T, s *Session, pkt []byte) [][]byte {
	t.Helper()
	pkts, err := s.Receive(pkt)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return pkts
}

func TestHandshakeToSpawned(t *testing.T) {
	sess := NewSession(Config{QPort: 27001, RetryTicks: 8, RetryLimit: 2}, logr.Discard())
	fs := &fakeServer{t: t, ch: netchan.NewServer(27001)}

	pkts := sess.Start()
	if len(pkts) != 1 || !netchan.IsOutOfBand(pkts[0]) {
		t.Fatalf("Start should emit one out of band packet, got %v", pkts)
	}
	if got := string(netchan.OutOfBandPayload(pkts[0])); got != "getchallenge\n" {
		t.Fatalf("challenge request = %q", got)
	}

	pkts = recv(t, sess, netchan.OutOfBandString("c999"))
	if len(pkts) != 1 {
		t.Fatalf("expected the connect packet, got %d", len(pkts))
	}
	connect := string(netchan.OutOfBandPayload(pkts[0]))
	if !strings.HasPrefix(connect, "connect 28 27001 999 ") {
		t.Fatalf("connect line = %q", connect)
	}
	if sess.Status() != StatusConnecting {
		t.Fatalf("status = %v, want connecting", sess.Status())
	}

	fs.receive(recv(t, sess, netchan.OutOfBandString("j")))
	if fs.lastCmd() != "new" {
		t.Fatalf("after accept got %q, want new", fs.lastCmd())
	}
	if sess.Status() != StatusAwaitServerData {
		t.Fatalf("status = %v, want awaiting serverdata", sess.Status())
	}

	sd := svc.ServerData{
		Protocol:    protocol.Version,
		ServerCount: 7,
		GameDir:     "qw",
		PlayerNum:   0,
		LevelName:   "dm4",
		MoveVars:    protocol.MoveVars{Gravity: 800, MaxSpeed: 320, EntGravity: 1},
	}
	fs.receive(recv(t, sess, fs.send(
		sd,
		svc.SignonNum{Num: 1},
		svc.LightStyle{Style: 0, Value: "m"},
	)))
	if fs.lastCmd() != "soundlist 7 0" {
		t.Fatalf("got %q, want soundlist request", fs.lastCmd())
	}

	fs.receive(recv(t, sess, fs.send(svc.SoundList{StringList: svc.StringList{
		Start: 0, Items: []string{"boom.wav", "tink.wav"}, Next: 2,
	}})))
	if fs.lastCmd() != "soundlist 7 2" {
		t.Fatalf("got %q, want next soundlist page", fs.lastCmd())
	}

	fs.receive(recv(t, sess, fs.send(svc.SoundList{StringList: svc.StringList{
		Start: 2, Items: []string{"jump.wav"},
	}})))
	if fs.lastCmd() != "modellist 7 0" {
		t.Fatalf("got %q, want modellist request", fs.lastCmd())
	}

	fs.receive(recv(t, sess, fs.send(svc.ModelList{StringList: svc.StringList{
		Start: 0, Items: []string{"maps/dm4.bsp", "progs/player.mdl"},
	}})))
	if fs.lastCmd() != "prespawn 7 0 0" {
		t.Fatalf("got %q, want prespawn request", fs.lastCmd())
	}

	fs.receive(recv(t, sess, fs.send(svc.StuffText{Text: "cmd spawn 7 0\n"})))
	if fs.lastCmd() != "spawn 7 0" {
		t.Fatalf("got %q, want echoed spawn", fs.lastCmd())
	}

	pkts = recv(t, sess, fs.send(
		svc.SpawnBaseline{Entity: 1, Baseline: protocol.EntityState{ModelIndex: 2}},
		svc.SignonNum{Num: 3},
		svc.ServerInfo{Key: "map", Value: "dm4"},
		svc.SetView{Entity: 1},
		svc.ClientData{Bits: protocol.SUViewHeight, ViewHeight: 22, Health: 100},
		svc.StuffText{Text: "cmd begin\n"},
	))
	if len(pkts) != 0 {
		fs.receive(pkts)
	}
	if sess.Status() != StatusSpawned {
		t.Fatalf("status = %v, want spawned", sess.Status())
	}

	// the begin command and the first move ride the next tick
	sess.SetCmd(protocol.UserCmd{Msec: 16, ForwardMove: 200})
	pkts, err := sess.Tick()
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	fs.receive(pkts)
	if fs.lastCmd() != "begin" {
		t.Fatalf("got %q, want begin", fs.lastCmd())
	}
	if len(fs.moves) == 0 {
		t.Fatal("no move received")
	}
	mv := fs.moves[len(fs.moves)-1]
	if mv.BadChecksum {
		t.Error("move checksum should verify")
	}
	if mv.Cmds[2].ForwardMove != 200 {
		t.Errorf("newest cmd forwardmove = %d, want 200", mv.Cmds[2].ForwardMove)
	}

	st := sess.State()
	wantSounds := []string{"boom.wav", "tink.wav", "jump.wav"}
	for i, w := range wantSounds {
		if st.Sounds[i] != w {
			t.Errorf("sounds[%d] = %q, want %q", i, st.Sounds[i], w)
		}
	}
	if st.ServerData.LevelName != "dm4" {
		t.Errorf("level = %q, want dm4", st.ServerData.LevelName)
	}
	if !st.HaveClientData || st.ClientData.Health != 100 {
		t.Errorf("clientdata: have=%v %+v", st.HaveClientData, st.ClientData)
	}
	if st.ViewEntity != 1 {
		t.Errorf("view entity = %d, want 1", st.ViewEntity)
	}
	if st.LightStyles[0] != "m" {
		t.Errorf("lightstyle 0 = %q, want m", st.LightStyles[0])
	}
	if got := st.ServerInfo.Get("map"); got != "dm4" {
		t.Errorf("serverinfo map = %q, want dm4", got)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	sess := NewSession(Config{QPort: 1, RetryTicks: 2, RetryLimit: 1}, logr.Discard())
	sess.Start()

	resends := 0
	var gotErr error
	for i := 0; i < 20; i++ {
		pkts, err := sess.Tick()
		if err != nil {
			gotErr = err
			break
		}
		resends += len(pkts)
	}
	if !errors.Is(gotErr, ErrHandshakeTimeout) {
		t.Fatalf("err = %v, want ErrHandshakeTimeout", gotErr)
	}
	if resends != 1 {
		t.Errorf("resends = %d, want 1", resends)
	}
	if sess.Status() != StatusDisconnected {
		t.Errorf("status = %v, want disconnected", sess.Status())
	}
}

func TestServerDisconnect(t *testing.T) {
	sess := NewSession(Config{QPort: 5}, logr.Discard())
	fs := &fakeServer{t: t, ch: netchan.NewServer(5)}

	sess.Start()
	recv(t, sess, netchan.OutOfBandString("c1"))
	fs.receive(recv(t, sess, netchan.OutOfBandString("j")))
	if _, err := sess.Receive(fs.send(svc.Disconnect{})); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if sess.Status() != StatusDisconnected {
		t.Fatalf("status = %v, want disconnected", sess.Status())
	}
}
