// SPDX-License-Identifier: GPL-2.0-or-later

package client

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"qwire/clc"
	"qwire/info"
	"qwire/netchan"
	"qwire/protocol"
	"qwire/qmsg"
	"qwire/svc"
)

var ErrHandshakeTimeout = errors.New("client: handshake timed out")

type Status int

const (
	StatusDisconnected Status = iota
	StatusChallengeRequested
	StatusConnecting
	StatusAwaitServerData
	StatusAwaitResources
	StatusSpawned
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusChallengeRequested:
		return "challenge requested"
	case StatusConnecting:
		return "connecting"
	case StatusAwaitServerData:
		return "awaiting serverdata"
	case StatusAwaitResources:
		return "awaiting resources"
	case StatusSpawned:
		return "spawned"
	}
	return "unknown"
}

type Config struct {
	QPort    uint16
	UserInfo *info.String

	// MapChecksum goes into the prespawn request, the server kicks
	// clients whose map differs.
	MapChecksum uint32

	// RetryTicks between handshake resends, RetryLimit resends
	// before the session gives up.
	RetryTicks int
	RetryLimit int
}

// Session drives a connection from the first challenge request to the
// spawned state. It is transport free: Receive takes datagrams in,
// Start/Tick/Receive hand datagrams back to be sent.
type Session struct {
	log   logr.Logger
	id    uuid.UUID
	cfg   Config
	state *State

	status       Status
	challenge    int32
	ch           *netchan.Chan
	ticksInState int
	retries      int

	cmd      protocol.UserCmd
	lastSend string
}

func NewSession(cfg Config, log logr.Logger) *Session {
	if cfg.UserInfo == nil {
		cfg.UserInfo = info.NewUserInfo()
	}
	if cfg.RetryTicks <= 0 {
		cfg.RetryTicks = 72
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	id := uuid.New()
	return &Session{
		log:    log.WithValues("session", id.String()),
		id:     id,
		cfg:    cfg,
		state:  NewState(),
		status: StatusDisconnected,
		ch:     netchan.NewClient(cfg.QPort),
	}
}

func (s *Session) ID() uuid.UUID  { return s.id }
func (s *Session) Status() Status { return s.status }
func (s *Session) State() *State  { return s.state }

// SetCmd replaces the movement command carried by the next move packet.
func (s *Session) SetCmd(cmd protocol.UserCmd) { s.cmd = cmd }

// Cmd queues a console command on the reliable channel.
func (s *Session) Cmd(cmd string) error {
	w := qmsg.NewWriter(protocol.MaxMsgLen)
	clc.StringCmd{Cmd: cmd}.Append(w, 0)
	return s.ch.QueueReliable(w.Bytes())
}

// Start begins the handshake and returns the packets to send.
func (s *Session) Start() [][]byte {
	s.enter(StatusChallengeRequested)
	s.lastSend = "getchallenge\n"
	s.log.Info("requesting challenge")
	return [][]byte{netchan.OutOfBandString(s.lastSend)}
}

func (s *Session) enter(st Status) {
	s.status = st
	s.ticksInState = 0
	s.retries = 0
}

// Tick advances the session clock. During the handshake it resends the
// pending request and eventually gives up with ErrHandshakeTimeout.
// Once the channel is open it emits the next in-band packet, a move
// when spawned, so reliable retransmits keep flowing.
func (s *Session) Tick() ([][]byte, error) {
	s.ticksInState++

	switch s.status {
	case StatusDisconnected:
		return nil, nil

	case StatusChallengeRequested, StatusConnecting:
		if s.ticksInState < s.cfg.RetryTicks {
			return nil, nil
		}
		s.ticksInState = 0
		s.retries++
		if s.retries > s.cfg.RetryLimit {
			s.enter(StatusDisconnected)
			return nil, errors.Wrapf(ErrHandshakeTimeout, "no answer to %q", s.lastSend)
		}
		s.log.Info("resending", "request", s.lastSend, "attempt", s.retries)
		return [][]byte{netchan.OutOfBandString(s.lastSend)}, nil

	case StatusAwaitServerData, StatusAwaitResources:
		if s.ticksInState >= s.cfg.RetryTicks*s.cfg.RetryLimit {
			s.enter(StatusDisconnected)
			return nil, errors.Wrap(ErrHandshakeTimeout, "signon stalled")
		}
		pkt, err := s.ch.Transmit(nil)
		if err != nil {
			return nil, err
		}
		return [][]byte{pkt}, nil

	case StatusSpawned:
		pkt, err := s.ch.Transmit(s.buildMove())
		if err != nil {
			return nil, err
		}
		return [][]byte{pkt}, nil
	}
	return nil, nil
}

// buildMove packs the clc_move for the sequence Transmit is about to
// use, with the delta reference when a frame is valid to delta from.
func (s *Session) buildMove() []byte {
	seq := s.ch.OutgoingSequence()
	s.state.StoreOutgoingCmd(seq, s.cmd)

	w := qmsg.NewWriter(protocol.MaxMsgLen)
	clc.Move{
		Lost: byte(s.ch.Dropped()),
		Cmds: [3]protocol.UserCmd{
			s.state.OutgoingCmd(seq - 2),
			s.state.OutgoingCmd(seq - 1),
			s.state.OutgoingCmd(seq),
		},
	}.Append(w, seq)
	// the delta reference rides behind the move
	if s.state.ValidSequence != 0 {
		clc.Delta{Sequence: byte(s.state.ValidSequence & 0xff)}.Append(w, seq)
	}
	return w.Bytes()
}

// Receive feeds one datagram from the server into the session and
// returns any packets to send back.
func (s *Session) Receive(packet []byte) ([][]byte, error) {
	if netchan.IsOutOfBand(packet) {
		return s.receiveOOB(netchan.OutOfBandPayload(packet))
	}
	if s.status < StatusAwaitServerData {
		// in-band traffic before the channel is open
		return nil, nil
	}

	payload, err := s.ch.Process(packet)
	if err != nil {
		if errors.Is(err, netchan.ErrOutOfOrder) {
			return nil, nil
		}
		return nil, err
	}
	s.ticksInState = 0

	msgs, perr := svc.Parse(qmsg.NewReader(payload))
	for _, m := range msgs {
		if err := s.handle(m); err != nil {
			return nil, err
		}
	}
	if perr != nil {
		return nil, errors.Wrap(perr, "server message")
	}
	if s.state.Disconnected {
		s.enter(StatusDisconnected)
		return nil, nil
	}

	if s.status == StatusAwaitServerData || s.status == StatusAwaitResources {
		pkt, err := s.ch.Transmit(nil)
		if err != nil {
			return nil, err
		}
		return [][]byte{pkt}, nil
	}
	return nil, nil
}

func (s *Session) receiveOOB(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	switch payload[0] {
	case protocol.S2CChallenge:
		if s.status != StatusChallengeRequested {
			return nil, nil
		}
		text := strings.TrimRight(string(payload[1:]), "\x00\n")
		n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "bad challenge %q", text)
		}
		s.challenge = int32(n)
		s.enter(StatusConnecting)
		s.lastSend = fmt.Sprintf("connect %d %d %d \"%s\"\n",
			protocol.Version, s.cfg.QPort, s.challenge, s.cfg.UserInfo.String())
		s.log.Info("got challenge", "challenge", s.challenge)
		return [][]byte{netchan.OutOfBandString(s.lastSend)}, nil

	case protocol.S2CConnection:
		if s.status != StatusConnecting {
			return nil, nil
		}
		s.enter(StatusAwaitServerData)
		s.log.Info("connection accepted")
		if err := s.Cmd("new"); err != nil {
			return nil, err
		}
		pkt, err := s.ch.Transmit(nil)
		if err != nil {
			return nil, err
		}
		return [][]byte{pkt}, nil

	case protocol.A2APing:
		return [][]byte{netchan.OutOfBandString(string(protocol.A2AAck))}, nil
	}
	return nil, nil
}

// handle folds a message into the state and advances the signon.
func (s *Session) handle(m svc.Message) error {
	if err := s.state.Apply(m, s.ch.IncomingSequence()); err != nil {
		return err
	}

	switch v := m.(type) {
	case svc.ServerData:
		s.enter(StatusAwaitResources)
		s.log.Info("serverdata", "gamedir", v.GameDir, "level", v.LevelName)
		return s.Cmd(fmt.Sprintf("soundlist %d %d", v.ServerCount, 0))

	case svc.SoundList:
		if v.Next != 0 {
			return s.Cmd(fmt.Sprintf("soundlist %d %d", s.state.ServerData.ServerCount, v.Next))
		}
		return s.Cmd(fmt.Sprintf("modellist %d %d", s.state.ServerData.ServerCount, 0))

	case svc.ModelList:
		if v.Next != 0 {
			return s.Cmd(fmt.Sprintf("modellist %d %d", s.state.ServerData.ServerCount, v.Next))
		}
		return s.Cmd(fmt.Sprintf("prespawn %d 0 %d", s.state.ServerData.ServerCount, s.cfg.MapChecksum))

	case svc.StuffText:
		for _, line := range strings.Split(v.Text, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "cmd "):
				if err := s.Cmd(strings.TrimPrefix(line, "cmd ")); err != nil {
					return err
				}
			}
		}

	case svc.SignonNum:
		// the begin itself arrives as stufftext "cmd begin" and goes
		// out through the echo above
		if v.Num >= 3 && s.status == StatusAwaitResources {
			s.enter(StatusSpawned)
			s.log.Info("spawned", "signon", v.Num)
		}
	}
	return nil
}
