// Package client implements the Client side of the system: the
// synchronous registration bootstrap (spec.md §4.5) and the concurrent
// runtime (spec.md §4.6) that takes over once registration succeeds.
package client

import (
	"fmt"
	"net"

	"github.com/samsamfire/fileapp/internal/wire"
	log "github.com/sirupsen/logrus"
)

// ErrRegistrationRejected is returned when the Server's WELCOME reply is
// not the success literal.
type ErrRegistrationRejected struct {
	Reason string
}

func (e *ErrRegistrationRejected) Error() string {
	return fmt.Sprintf("client: registration rejected: %s", e.Reason)
}

// Register performs the synchronous bootstrap handshake against a freshly
// bound, connected UDP socket: send REGISTER, wait for WELCOME, wait for
// VIEW, send ACK_TABLE. There is no retry on the client side here — per
// spec.md §4.5, the Server's own handshake retries (see pkg/server) cover
// datagram loss of the VIEW in the Server->Client direction.
func Register(conn *net.UDPConn, name string, tcpPort int) (wire.View, error) {
	buf := make([]byte, 65535)

	if _, err := conn.Write([]byte(wire.EncodeRegister(name, tcpPort))); err != nil {
		return nil, fmt.Errorf("client: send REGISTER: %w", err)
	}

	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("client: receive WELCOME: %w", err)
	}
	welcome := string(buf[:n])
	if welcome != wire.WelcomeOK {
		return nil, &ErrRegistrationRejected{Reason: welcome}
	}
	fmt.Println(wire.WelcomeOK)

	n, err = conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("client: receive VIEW: %w", err)
	}
	view, err := wire.ParseView(buf[:n])
	if err != nil {
		return nil, fmt.Errorf("client: parse VIEW: %w", err)
	}

	if _, err := conn.Write([]byte(wire.AckTable)); err != nil {
		return nil, fmt.Errorf("client: send ACK_TABLE: %w", err)
	}

	log.Infof("[client] registered as %q, initial view has %d entries", name, len(view))
	return view, nil
}
