// SPDX-License-Identifier: GPL-2.0-or-later

package server

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"qwire/args"
	"qwire/clc"
	"qwire/info"
	"qwire/netchan"
	"qwire/protocol"
	"qwire/qmsg"
	"qwire/svc"
)

// clientConn is one connected session: the channel, the userinfo, and
// the entity snapshots sent under each sequence for delta references.
type clientConn struct {
	id       uuid.UUID
	addr     string
	qport    uint16
	slot     byte
	ch       *netchan.Chan
	userinfo *info.String
	userID   int32

	spawned bool
	frags   int16

	// deltaFrom is the frame the client asked to be delta'd
	// against, -1 until the first clc_delta arrives.
	deltaFrom int32
	frames    [protocol.UpdateBackup][]protocol.EntityState

	lastCmd  protocol.UserCmd
	origin   [3]float32
	angles   [3]float32
	dropped  int
	badMoves int
}

var nextUserID int32

func newClient(addr string, qport uint16, slot byte, userinfo *info.String) *clientConn {
	nextUserID++
	return &clientConn{
		id:        uuid.New(),
		addr:      addr,
		qport:     qport,
		slot:      slot,
		ch:        netchan.NewServer(qport),
		userinfo:  userinfo,
		userID:    nextUserID,
		deltaFrom: -1,
	}
}

func (c *clientConn) name() string {
	if n := c.userinfo.Get("name"); n != "" {
		return n
	}
	return "unconnected"
}

// queue puts messages on the client's reliable stream.
func (c *clientConn) queue(msgs ...svc.Message) error {
	w := qmsg.NewWriter(protocol.MaxMsgLen)
	for _, m := range msgs {
		m.Append(w)
	}
	return c.ch.QueueReliable(w.Bytes())
}

func (s *Server) receiveInBand(c *clientConn, pkt []byte) ([]Packet, error) {
	payload, err := c.ch.Process(pkt)
	if err != nil {
		if errors.Is(err, netchan.ErrOutOfOrder) {
			return nil, nil
		}
		s.dropClient(c, "channel failure")
		return nil, err
	}
	c.deltaFrom = -1 // each packet must carry its own reference

	msgs, perr := clc.Parse(qmsg.NewReader(payload), c.ch.IncomingSequence())
	for _, m := range msgs {
		if err := s.handleClientMessage(c, m); err != nil {
			return nil, err
		}
	}
	if perr != nil {
		s.dropClient(c, "malformed message")
		return nil, errors.Wrapf(perr, "from %s", c.addr)
	}

	// flush whatever the handlers queued
	out, err := c.ch.Transmit(nil)
	if err != nil {
		if errors.Is(err, netchan.ErrFragmentOverflow) {
			s.dropClient(c, "channel overflow")
			return nil, nil
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PacketsOut.Inc()
	}
	return []Packet{{Addr: c.addr, Data: out}}, nil
}

func (s *Server) handleClientMessage(c *clientConn, m clc.Message) error {
	switch v := m.(type) {
	case clc.Nop:
	case clc.StringCmd:
		return s.handleCommand(c, v.Cmd)
	case clc.Delta:
		c.deltaFrom = int32(v.Sequence)
	case clc.Move:
		if v.BadChecksum {
			c.badMoves++
			if s.metrics != nil {
				s.metrics.ChecksumDrops.Inc()
			}
			s.log.Info("move dropped", "addr", c.addr, "err", clc.ErrChecksumMismatch)
			return nil
		}
		c.dropped = int(v.Lost)
		c.lastCmd = v.Cmds[2]
		c.angles = c.lastCmd.Angles
	case clc.TMove:
		// spectator warp, reflected in the next snapshot
	case clc.Upload:
		// uploads are accepted and discarded
	}
	return nil
}

func (s *Server) handleCommand(c *clientConn, line string) error {
	a := args.Parse(line)
	if a.Len() == 0 {
		return nil
	}
	switch a.Argv(0).String() {
	case "new":
		msgs := []svc.Message{
			svc.ServerData{
				Protocol:    protocol.Version,
				ServerCount: s.serverCount,
				GameDir:     s.cfg.GameDir,
				PlayerNum:   c.slot,
				LevelName:   s.cfg.LevelName,
				MoveVars:    s.cfg.MoveVars,
			},
			svc.SignonNum{Num: 1},
		}
		for i, style := range s.cfg.LightStyles {
			msgs = append(msgs, svc.LightStyle{Style: byte(i), Value: style})
		}
		return c.queue(msgs...)

	case "soundlist":
		return c.queue(soundListPage(s.cfg.Sounds, a.Argv(2).Int()))

	case "modellist":
		return c.queue(modelListPage(s.cfg.Models, a.Argv(2).Int()))

	case "prespawn":
		msgs := []svc.Message{svc.SignonNum{Num: 2}}
		for _, e := range s.statics {
			msgs = append(msgs, svc.SpawnStatic{Baseline: e})
		}
		for _, e := range s.entities {
			if b, ok := s.baselines[e.Number]; ok {
				msgs = append(msgs, svc.SpawnBaseline{Entity: b.Number, Baseline: b})
			}
		}
		msgs = append(msgs, svc.StuffText{Text: fmt.Sprintf("cmd spawn %d 0\n", s.serverCount)})
		return c.queue(msgs...)

	case "spawn":
		c.origin = s.cfg.SpawnOrigin
		c.angles = s.cfg.SpawnAngles
		msgs := []svc.Message{svc.SignonNum{Num: 3}}
		s.info.Each(func(key, value string) {
			msgs = append(msgs, svc.ServerInfo{Key: key, Value: value})
		})
		for _, other := range s.slots {
			if other == nil {
				continue
			}
			msgs = append(msgs,
				svc.UpdateUserInfo{Slot: other.slot, UserID: other.userID, UserInfo: other.userinfo.String()},
				svc.UpdateFrags{Slot: other.slot, Frags: other.frags},
			)
		}
		msgs = append(msgs,
			svc.SetView{Entity: uint16(c.slot) + 1},
			s.clientDataFor(c),
			svc.StuffText{Text: "cmd begin\n"},
		)
		return c.queue(msgs...)

	case "begin":
		c.spawned = true
		s.log.Info("client entered the game", "addr", c.addr, "name", c.name())
		return nil

	case "setinfo":
		if a.Len() < 3 {
			return nil
		}
		key, value := a.Argv(1).String(), a.Argv(2).String()
		if err := c.userinfo.Set(key, value); err != nil {
			s.log.Info("setinfo rejected", "addr", c.addr, "key", key, "err", err)
			return nil
		}
		s.broadcast(svc.SetInfo{Slot: c.slot, Key: key, Value: value})
		return nil

	case "say":
		s.broadcast(svc.Print{
			Level: protocol.PrintChat,
			Text:  fmt.Sprintf("%s: %s\n", c.name(), a.ArgumentString()),
		})
		return nil

	case "drop", "disconnect":
		s.dropClient(c, "client request")
		return nil
	}
	s.log.V(1).Info("unknown command", "addr", c.addr, "cmd", a.Argv(0).String())
	return nil
}

// broadcast queues a message for every connected client.
func (s *Server) broadcast(m svc.Message) {
	for _, c := range s.slots {
		if c == nil {
			continue
		}
		if err := c.queue(m); err != nil {
			s.dropClient(c, "channel overflow")
		}
	}
}

func pageOf(list []string, start int) svc.StringList {
	if start < 0 || start > len(list) {
		start = len(list)
	}
	end := start + listPageSize
	var next byte
	if end >= len(list) {
		end = len(list)
	} else {
		next = byte(end)
	}
	return svc.StringList{
		Start: byte(start),
		Items: list[start:end],
		Next:  next,
	}
}

func soundListPage(list []string, start int) svc.SoundList {
	return svc.SoundList{StringList: pageOf(list, start)}
}

func modelListPage(list []string, start int) svc.ModelList {
	return svc.ModelList{StringList: pageOf(list, start)}
}

// clientDataFor builds the view state for one client. There is no
// game logic behind it, health and view height stay at their spawn
// values.
func (s *Server) clientDataFor(c *clientConn) svc.ClientData {
	return svc.ClientData{
		Bits:       protocol.SUViewHeight,
		ViewHeight: protocol.DefaultViewHeight,
		Health:     100,
	}
}

func (s *Server) playerInfoFor(c *clientConn) svc.PlayerInfo {
	return svc.PlayerInfo{
		Num: c.slot,
		Flags: protocol.PFMsec | protocol.PFCommand |
			protocol.PFVelocity1 | protocol.PFVelocity2 | protocol.PFVelocity3,
		Origin: c.origin,
		Msec:   c.lastCmd.Msec,
		Cmd:    c.lastCmd,
	}
}

// buildFrame assembles the per tick update: clock, view angles, client
// data, the player states, and a delta compressed entity snapshot
// against the frame the client asked for when it is still in the ring.
func (s *Server) buildFrame(c *clientConn) ([]byte, error) {
	w := qmsg.NewWriter(protocol.MaxDatagram)
	svc.Time{Time: s.time}.Append(w)
	svc.SetAngle{Angles: c.angles}.Append(w)
	s.clientDataFor(c).Append(w)
	for _, other := range s.slots {
		if other == nil || !other.spawned {
			continue
		}
		s.playerInfoFor(other).Append(w)
	}

	pe := s.packetEntitiesFor(c)
	seq := c.ch.OutgoingSequence()
	c.frames[seq&protocol.UpdateMask] = append([]protocol.EntityState(nil), s.entities...)
	pe.Append(w)

	return c.ch.Transmit(w.Bytes())
}

func (s *Server) packetEntitiesFor(c *clientConn) svc.PacketEntities {
	if c.deltaFrom >= 0 {
		old := c.frames[uint32(c.deltaFrom)&protocol.UpdateMask]
		if old != nil {
			return svc.PacketEntities{
				Delta:     true,
				DeltaFrom: byte(c.deltaFrom),
				Entities:  s.deltaEntities(old, s.entities),
			}
		}
	}
	// full update, every entity against its baseline
	out := make([]svc.EntityDelta, 0, len(s.entities))
	for i := range s.entities {
		out = append(out, s.baselineDelta(&s.entities[i]))
	}
	return svc.PacketEntities{Entities: out}
}

// deltaEntities walks both sorted lists: deltas for modified entities,
// removes for gone ones, baseline coded entries for new ones. Unchanged
// entities become a bare entity word so the client keeps them.
func (s *Server) deltaEntities(old, now []protocol.EntityState) []svc.EntityDelta {
	var out []svc.EntityDelta
	i, j := 0, 0
	for i < len(old) && j < len(now) {
		switch {
		case old[i].Number == now[j].Number:
			if d, changed := svc.DeltaBetween(&old[i], &now[j]); changed {
				out = append(out, d)
			} else {
				out = append(out, svc.EntityDelta{Number: now[j].Number})
			}
			i++
			j++
		case old[i].Number < now[j].Number:
			out = append(out, svc.EntityDelta{Number: old[i].Number, Remove: true})
			i++
		default:
			out = append(out, s.baselineDelta(&now[j]))
			j++
		}
	}
	for ; i < len(old); i++ {
		out = append(out, svc.EntityDelta{Number: old[i].Number, Remove: true})
	}
	for ; j < len(now); j++ {
		out = append(out, s.baselineDelta(&now[j]))
	}
	return out
}

// baselineDelta codes an entity against its spawn baseline, the form
// the client rebuilds unknown entities from.
func (s *Server) baselineDelta(e *protocol.EntityState) svc.EntityDelta {
	base, ok := s.baselines[e.Number]
	if !ok {
		base = protocol.EntityState{Number: e.Number}
	}
	d, _ := svc.DeltaBetween(&base, e)
	return d
}
