// SPDX-License-Identifier: GPL-2.0-or-later

// Package netchan implements the sequenced channel running over raw
// datagrams. Every in-band packet carries a 32 bit sequence and a
// 32 bit acknowledge, the top bit of each is borrowed for the reliable
// transfer. Client to server packets additionally carry the qport so
// an address rewrite by a NAT box does not orphan the connection.
//
// Reliable data moves as a stream of chunks. Each chunk is prefixed
// with a 16 bit word holding its length, the top bit marks the final
// chunk of a message. One chunk is in flight at a time and is resent
// until the acknowledge toggle comes back, so a message larger than a
// single datagram crosses as several chunks and is reassembled on the
// far side in order.
package netchan

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"qwire/protocol"
	"qwire/qmsg"
)

var (
	ErrOutOfOrder       = errors.New("netchan: stale or duplicate sequence")
	ErrFragmentOverflow = errors.New("netchan: reliable stream overflow")
)

const (
	reliableFlag = 1 << 31

	chunkLast     = 0x8000
	chunkLenMask  = 0x7fff
	chunkWordSize = 2

	// largest header: sequence, ack, qport
	headerSize = 10

	// MaxReliableTotal bounds one reassembled reliable message.
	MaxReliableTotal = 64 * 1024
)

// State of the reliable send side.
type State int

const (
	StateIdle State = iota
	StateAwaitingAck
	StateFragmenting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingAck:
		return "awaiting-ack"
	case StateFragmenting:
		return "fragmenting"
	}
	return "unknown"
}

// Chan is one endpoint of the channel. It moves bytes only, datagram
// I/O and message parsing happen elsewhere.
type Chan struct {
	qport     uint16
	sendQPort bool
	recvQPort bool

	outgoingSequence uint32
	incomingSequence uint32

	// reliable toggles, one bit each
	incomingReliableSequence     uint32
	incomingAcknowledged         uint32
	incomingReliableAcknowledged uint32
	reliableSequence             uint32
	lastReliableSequence         uint32

	pending       *qmsg.Writer
	frag          []byte
	fragOffset    int
	inFlight      []byte
	fragThreshold int

	assembly []byte

	receivedAny bool
	dropped     int
	failed      error
}

func newChan(qport uint16) *Chan {
	return &Chan{
		qport:         qport,
		pending:       qmsg.NewWriter(MaxReliableTotal),
		fragThreshold: protocol.MaxMsgLen - headerSize - chunkWordSize,
	}
}

// NewClient returns the client end. Its packets carry the qport.
func NewClient(qport uint16) *Chan {
	c := newChan(qport)
	c.sendQPort = true
	return c
}

// NewServer returns the server end for one remote client. The qport
// was already consumed by the demultiplexer, the channel skips it.
func NewServer(qport uint16) *Chan {
	c := newChan(qport)
	c.recvQPort = true
	return c
}

func (c *Chan) QPort() uint16            { return c.qport }
func (c *Chan) OutgoingSequence() uint32 { return c.outgoingSequence }
func (c *Chan) IncomingSequence() uint32 { return c.incomingSequence }

// Dropped reports how many packets were lost before the last one
// accepted.
func (c *Chan) Dropped() int { return c.dropped }

// SetFragmentThreshold overrides the chunk size, tests use small ones.
func (c *Chan) SetFragmentThreshold(n int) {
	if n > 0 && n <= chunkLenMask {
		c.fragThreshold = n
	}
}

func (c *Chan) State() State {
	switch {
	case c.frag != nil:
		return StateFragmenting
	case c.inFlight != nil:
		return StateAwaitingAck
	default:
		return StateIdle
	}
}

// QueueReliable appends payload to the outgoing reliable stream. The
// message goes out starting with the next Transmit. Overfilling the
// stream fails the channel.
func (c *Chan) QueueReliable(payload []byte) error {
	if c.failed != nil {
		return c.failed
	}
	c.pending.WriteBytes(payload)
	if c.pending.Overflowed() {
		c.failed = errors.Wrapf(ErrFragmentOverflow, "queueing %d bytes", len(payload))
		return c.failed
	}
	return nil
}

// Transmit builds the next outgoing packet: header, the reliable chunk
// when one is due, then the unreliable payload if it still fits.
func (c *Chan) Transmit(unreliable []byte) ([]byte, error) {
	if c.failed != nil {
		return nil, c.failed
	}

	sendReliable := false
	// the last chunk got lost if the remote acked a later packet
	// with the old toggle
	if c.inFlight != nil &&
		c.incomingAcknowledged > c.lastReliableSequence &&
		c.incomingReliableAcknowledged != c.reliableSequence {
		sendReliable = true
	}

	if c.inFlight == nil {
		if c.frag == nil && c.pending.HasMessage() {
			c.frag = append([]byte(nil), c.pending.Bytes()...)
			c.fragOffset = 0
			c.pending.Clear()
		}
		if c.frag != nil {
			n := len(c.frag) - c.fragOffset
			word := uint16(chunkLast)
			if n > c.fragThreshold {
				n = c.fragThreshold
				word = 0
			}
			chunk := make([]byte, chunkWordSize+n)
			binary.LittleEndian.PutUint16(chunk, word|uint16(n))
			copy(chunk[chunkWordSize:], c.frag[c.fragOffset:c.fragOffset+n])
			c.fragOffset += n
			if c.fragOffset == len(c.frag) {
				c.frag = nil
				c.fragOffset = 0
			}
			c.inFlight = chunk
			c.reliableSequence ^= 1
			sendReliable = true
		}
	}

	w := qmsg.NewWriter(protocol.MaxMsgLen + headerSize)
	seq := c.outgoingSequence
	if sendReliable {
		seq |= reliableFlag
	}
	ack := c.incomingSequence
	if c.incomingReliableSequence != 0 {
		ack |= reliableFlag
	}
	w.WriteLong(int(seq))
	w.WriteLong(int(ack))
	if c.sendQPort {
		w.WriteShort(int(c.qport))
	}

	if sendReliable {
		w.WriteBytes(c.inFlight)
		c.lastReliableSequence = c.outgoingSequence
	}
	c.outgoingSequence++

	if w.Len()+len(unreliable) <= protocol.MaxMsgLen+headerSize {
		w.WriteBytes(unreliable)
	}
	return w.Bytes(), nil
}

// Process accepts one incoming in-band packet. It returns the bytes to
// parse: a completed reliable message, if this packet finished one,
// followed by the unreliable payload. Stale and duplicate packets are
// rejected with ErrOutOfOrder and leave the channel untouched.
func (c *Chan) Process(packet []byte) ([]byte, error) {
	if c.failed != nil {
		return nil, c.failed
	}

	r := qmsg.NewReader(packet)
	rawSeq, _ := r.ReadLong()
	rawAck, _ := r.ReadLong()
	if c.recvQPort {
		r.ReadUint16()
	}
	if err := r.Err(); err != nil {
		return nil, errors.Wrapf(err, "netchan header in %d byte packet", len(packet))
	}

	seq := uint32(rawSeq) &^ reliableFlag
	ack := uint32(rawAck) &^ reliableFlag
	hasReliable := uint32(rawSeq)&reliableFlag != 0
	ackReliable := uint32(0)
	if uint32(rawAck)&reliableFlag != 0 {
		ackReliable = 1
	}

	if c.receivedAny && seq <= c.incomingSequence {
		return nil, errors.Wrapf(ErrOutOfOrder, "sequence %d, already at %d", seq, c.incomingSequence)
	}
	if c.receivedAny {
		c.dropped = int(seq - c.incomingSequence - 1)
	}
	c.receivedAny = true
	c.incomingSequence = seq
	c.incomingAcknowledged = ack
	c.incomingReliableAcknowledged = ackReliable

	if c.inFlight != nil && c.incomingReliableAcknowledged == c.reliableSequence {
		c.inFlight = nil
	}

	var out []byte
	if hasReliable {
		word, _ := r.ReadUint16()
		n := int(word & chunkLenMask)
		chunk, err := r.ReadBytes(n)
		if err != nil {
			return nil, errors.Wrapf(qmsg.ErrMalformed, "reliable chunk of %d bytes: %v", n, err)
		}
		c.incomingReliableSequence ^= 1
		if len(c.assembly)+n > MaxReliableTotal {
			c.failed = errors.Wrapf(ErrFragmentOverflow, "reassembly at %d bytes", len(c.assembly))
			return nil, c.failed
		}
		c.assembly = append(c.assembly, chunk...)
		if word&chunkLast != 0 {
			out = c.assembly
			c.assembly = nil
		}
	}

	rest, _ := r.ReadBytes(r.Len())
	out = append(out, rest...)
	return out, nil
}
