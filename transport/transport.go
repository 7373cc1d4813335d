// SPDX-License-Identifier: GPL-2.0-or-later

// Package transport is the UDP layer under the channels. It keeps the
// protocol code free of sockets: datagrams go in and out as byte
// slices tagged with the remote address.
package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"

	"qwire/protocol"
)

// Conn sends and receives datagrams. Recv returns a zero length
// packet and empty address when no datagram arrived within the wait.
type Conn interface {
	Recv(wait time.Duration) (pkt []byte, addr string, err error)
	Send(addr string, pkt []byte) error
	LocalAddr() string
	Close() error
}

type udpConn struct {
	c *net.UDPConn
}

// Listen binds a UDP socket on port, 0 picks a free one.
func Listen(port int) (Conn, error) {
	c, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, errors.Wrapf(err, "listen udp %d", port)
	}
	return &udpConn{c: c}, nil
}

func (u *udpConn) Recv(wait time.Duration) ([]byte, string, error) {
	if err := u.c.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return nil, "", errors.Wrap(err, "set read deadline")
	}
	buf := make([]byte, protocol.MaxMsgLen+16)
	n, from, err := u.c.ReadFromUDP(buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return nil, "", nil
		}
		return nil, "", errors.Wrap(err, "read udp")
	}
	return buf[:n], from.String(), nil
}

func (u *udpConn) Send(addr string, pkt []byte) error {
	to, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return errors.Wrapf(err, "resolve %q", addr)
	}
	if _, err := u.c.WriteToUDP(pkt, to); err != nil {
		return errors.Wrapf(err, "send to %s", addr)
	}
	return nil
}

func (u *udpConn) LocalAddr() string {
	return u.c.LocalAddr().String()
}

func (u *udpConn) Close() error {
	return u.c.Close()
}
