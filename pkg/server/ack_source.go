package server

import (
	"net"
	"time"
)

// udpAckSource adapts the Server's single UDP socket into a retry.Source
// for the initial-view handshake. Per spec.md §4.4/§5, the Server is
// single-threaded per datagram and reads directly off the socket with a
// receive deadline rather than through a queue, unlike the Client side.
type udpAckSource struct {
	conn     *net.UDPConn
	expected *net.UDPAddr
}

// Next reads from the socket until a datagram from the expected sender
// arrives or the deadline elapses. Datagrams from any other sender are
// discarded — a tradeoff spec.md §4.2 accepts, since the Server blocks its
// main loop for the duration of the handshake anyway.
func (s *udpAckSource) Next(deadline time.Duration) ([]byte, bool) {
	absoluteDeadline := time.Now().Add(deadline)
	buf := make([]byte, 4096)
	for {
		remaining := time.Until(absoluteDeadline)
		if remaining <= 0 {
			return nil, false
		}
		if err := s.conn.SetReadDeadline(absoluteDeadline); err != nil {
			return nil, false
		}
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return nil, false
		}
		if !addr.IP.Equal(s.expected.IP) || addr.Port != s.expected.Port {
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		return payload, true
	}
}
