// SPDX-License-Identifier: GPL-2.0-or-later

// Package server accepts connections and feeds clients the world:
// challenge and connect handling, the signon sequence, and per frame
// delta compressed entity updates.
package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"qwire/args"
	"qwire/info"
	"qwire/netchan"
	"qwire/protocol"
)

var (
	ErrBadChallenge = errors.New("server: wrong or expired challenge")
	ErrServerFull   = errors.New("server: no free slot")
)

// listPageSize items per soundlist/modellist reply.
const listPageSize = 64

type Config struct {
	GameDir    string
	LevelName  string
	HostName   string
	MaxClients int

	Sounds      []string
	Models      []string
	LightStyles []string

	// SpawnOrigin and SpawnAngles place entering players.
	SpawnOrigin [3]float32
	SpawnAngles [3]float32

	MoveVars protocol.MoveVars

	// FrameTime added to the server clock per Frame call.
	FrameTime float32
}

// the id1 animated styles every map assumes
var defaultLightStyles = []string{
	"m",
	"mmnmmommommnonmmonqnmmo",
	"abcdefghijklmnopqrstuvwxyzyxwvutsrqponmlkjihgfedcba",
	"mmmmmaaaaammmmmaaaaaabcdefgabcdefg",
	"mamamamamama",
	"jklmnopqrstuvwxyzyxwvutsrqponmlkj",
	"nmonqnmomnmomomno",
	"mmmaaaabcdefgmmmmaaaammmaamm",
	"mmmaaammmaaammmabcdefaaaammmmabcdefmmmaaaa",
	"aaaaaaaazzzzzzzz",
	"mmamammmmammamamaaamammma",
	"abcdefghijklmnopqrrqponmlkjihgfedcba",
}

// Packet is an outgoing datagram and where it goes.
type Packet struct {
	Addr string
	Data []byte
}

type Server struct {
	log     logr.Logger
	cfg     Config
	metrics *Metrics

	info        *info.String
	serverCount int32
	time        float32

	challengeSeed uint32
	challenges    map[string]int32

	clients map[string]*clientConn
	slots   []*clientConn

	entities  []protocol.EntityState
	statics   []protocol.EntityState
	baselines map[uint16]protocol.EntityState
}

func New(cfg Config, log logr.Logger, metrics *Metrics) *Server {
	if cfg.MaxClients <= 0 || cfg.MaxClients > protocol.MaxClients {
		cfg.MaxClients = protocol.MaxClients
	}
	if cfg.FrameTime <= 0 {
		cfg.FrameTime = 0.05
	}
	if cfg.LightStyles == nil {
		cfg.LightStyles = defaultLightStyles
	}
	in := info.NewServerInfo()
	in.Set("hostname", cfg.HostName)
	in.Set("map", cfg.LevelName)
	in.Set("maxclients", strconv.Itoa(cfg.MaxClients))

	return &Server{
		log:           log,
		cfg:           cfg,
		metrics:       metrics,
		info:          in,
		serverCount:   1,
		challengeSeed: 0x2f6e3a1,
		challenges:    make(map[string]int32),
		clients:       make(map[string]*clientConn),
		slots:         make([]*clientConn, cfg.MaxClients),
		baselines:     make(map[uint16]protocol.EntityState),
	}
}

// SetEntities replaces the world snapshot clients are updated from.
// Entities must be sorted by number.
func (s *Server) SetEntities(ents []protocol.EntityState) {
	s.entities = ents
}

// SetStatics replaces the static entities sent during prespawn.
func (s *Server) SetStatics(ents []protocol.EntityState) {
	s.statics = ents
}

// Baselines are captured once per map from the current snapshot.
func (s *Server) CaptureBaselines() {
	for _, e := range s.entities {
		s.baselines[e.Number] = e
	}
}

func (s *Server) Time() float32      { return s.time }
func (s *Server) NumClients() int    { return len(s.clients) }
func (s *Server) Info() *info.String { return s.info }

func (s *Server) nextChallenge() int32 {
	s.challengeSeed = s.challengeSeed*1664525 + 1013904223
	return int32(s.challengeSeed & 0x7fffffff)
}

// Receive handles one datagram from addr and returns the replies.
func (s *Server) Receive(addr string, pkt []byte) ([]Packet, error) {
	if s.metrics != nil {
		s.metrics.PacketsIn.Inc()
	}
	if netchan.IsOutOfBand(pkt) {
		return s.receiveOOB(addr, netchan.OutOfBandPayload(pkt))
	}
	c, ok := s.clients[addr]
	if !ok {
		// stray in-band traffic, nothing to do
		return nil, nil
	}
	return s.receiveInBand(c, pkt)
}

func (s *Server) receiveOOB(addr string, payload []byte) ([]Packet, error) {
	line := strings.TrimRight(string(payload), "\x00")
	a := args.Parse(line)
	if a.Len() == 0 {
		return nil, nil
	}
	switch a.Argv(0).String() {
	case "getchallenge":
		ch := s.nextChallenge()
		s.challenges[addr] = ch
		return []Packet{{Addr: addr, Data: netchan.OutOfBand(
			[]byte(fmt.Sprintf("%c%d", protocol.S2CChallenge, ch)))}}, nil

	case "connect":
		return s.handleConnect(addr, a)

	case "ping":
		return []Packet{{Addr: addr, Data: netchan.OutOfBandString(string(protocol.A2AAck))}}, nil

	case "status":
		reply := fmt.Sprintf("%c%s\n", protocol.A2CPrint, s.info.String())
		for _, c := range s.slots {
			if c != nil {
				reply += fmt.Sprintf("%d %d %q\n", c.userID, c.frags, c.name())
			}
		}
		return []Packet{{Addr: addr, Data: netchan.OutOfBandString(reply)}}, nil
	}
	return nil, nil
}

// handleConnect parses "connect <protocol> <qport> <challenge> "<userinfo>"".
func (s *Server) handleConnect(addr string, a args.Arguments) ([]Packet, error) {
	if a.Len() < 5 {
		return s.printTo(addr, "malformed connect\n"), nil
	}
	if ver := a.Argv(1).Int(); ver != protocol.Version {
		return s.printTo(addr, fmt.Sprintf("server requires protocol %d\n", protocol.Version)), nil
	}
	qport := a.Argv(2).Uint16()
	challenge := a.Argv(3).Int32()
	if s.challenges[addr] != challenge {
		s.log.Info("bad challenge", "addr", addr)
		return s.printTo(addr, "bad challenge\n"), errors.Wrapf(ErrBadChallenge, "from %s", addr)
	}
	userinfo, err := info.Parse(a.Argv(4).String(), protocol.MaxInfoString)
	if err != nil {
		return s.printTo(addr, "malformed userinfo\n"), nil
	}

	if old, ok := s.clients[addr]; ok {
		// reconnect from the same address replaces the session
		s.dropClient(old, "reconnect")
	}
	slot := -1
	for i, c := range s.slots {
		if c == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		s.log.Info("server full", "addr", addr)
		return s.printTo(addr, "server is full\n"), errors.Wrapf(ErrServerFull, "from %s", addr)
	}

	c := newClient(addr, qport, byte(slot), userinfo)
	s.clients[addr] = c
	s.slots[slot] = c
	delete(s.challenges, addr)
	if s.metrics != nil {
		s.metrics.Connects.Inc()
		s.metrics.ActiveClients.Set(float64(len(s.clients)))
	}
	s.log.Info("client connected", "addr", addr, "slot", slot, "name", c.name())

	return []Packet{{Addr: addr, Data: netchan.OutOfBandString(string(protocol.S2CConnection))}}, nil
}

func (s *Server) printTo(addr, msg string) []Packet {
	return []Packet{{Addr: addr, Data: netchan.OutOfBand(
		append([]byte{protocol.A2CPrint}, msg...))}}
}

func (s *Server) dropClient(c *clientConn, reason string) {
	s.log.Info("client dropped", "addr", c.addr, "slot", c.slot, "reason", reason)
	delete(s.clients, c.addr)
	if s.slots[c.slot] == c {
		s.slots[c.slot] = nil
	}
	if s.metrics != nil {
		s.metrics.ActiveClients.Set(float64(len(s.clients)))
	}
}

// Frame advances the clock and builds one update packet per spawned
// client.
func (s *Server) Frame() ([]Packet, error) {
	s.time += s.cfg.FrameTime
	var out []Packet
	for _, c := range s.slots {
		if c == nil || !c.spawned {
			continue
		}
		pkt, err := s.buildFrame(c)
		if err != nil {
			if errors.Is(err, netchan.ErrFragmentOverflow) {
				s.dropClient(c, "channel overflow")
				continue
			}
			return out, err
		}
		if s.metrics != nil {
			s.metrics.PacketsOut.Inc()
		}
		out = append(out, Packet{Addr: c.addr, Data: pkt})
	}
	return out, nil
}
