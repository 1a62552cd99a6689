// Package server implements the Server Dispatcher: the single-threaded
// UDP event loop that classifies incoming datagrams and drives the
// Registry, per spec.md §4.4.
package server

import (
	"net"
	"time"

	"github.com/samsamfire/fileapp/internal/retry"
	"github.com/samsamfire/fileapp/internal/wire"
	"github.com/samsamfire/fileapp/pkg/registry"
	log "github.com/sirupsen/logrus"
)

// Dispatcher owns the Server's one UDP socket and its Registry.
type Dispatcher struct {
	conn    *net.UDPConn
	reg     *registry.Registry
	retry   retry.Coordinator
	readBuf []byte
}

// New binds a UDP socket on port and returns a ready Dispatcher.
func New(port int) (*Dispatcher, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		conn:    conn,
		reg:     registry.New(),
		retry:   retry.New(),
		readBuf: make([]byte, 4096),
	}, nil
}

// Registry exposes the underlying registry, chiefly for tests.
func (d *Dispatcher) Registry() *registry.Registry { return d.reg }

// Close releases the UDP socket.
func (d *Dispatcher) Close() error { return d.conn.Close() }

// Run is the Server's main loop. It blocks until the socket is closed or
// an unrecoverable read error occurs.
func (d *Dispatcher) Run() error {
	log.Infof("[server] listening on %s", d.conn.LocalAddr())
	for {
		if err := d.conn.SetReadDeadline(time.Time{}); err != nil {
			return err
		}
		n, addr, err := d.conn.ReadFromUDP(d.readBuf)
		if err != nil {
			return err
		}
		payload := make([]byte, n)
		copy(payload, d.readBuf[:n])
		d.handle(addr, payload)
	}
}

func (d *Dispatcher) handle(addr *net.UDPAddr, payload []byte) {
	ep := wire.EndpointFromUDPAddr(addr)

	if _, known := d.reg.Lookup(ep); !known {
		d.handleRegister(addr, ep, string(payload))
		return
	}

	switch string(payload) {
	case wire.Dereg:
		d.handleDeregister(addr, ep)
		return
	}

	if files, err := wire.ParseOffer(payload); err == nil {
		d.handleOffer(addr, ep, files)
		return
	}

	log.Debugf("[server] dropping unrecognized datagram from %s", addr)
}

func (d *Dispatcher) handleRegister(addr *net.UDPAddr, ep wire.Endpoint, payload string) {
	reg, err := wire.ParseRegister(payload)
	if err != nil {
		log.Debugf("[server] dropping malformed datagram from unknown sender %s", addr)
		return
	}

	result := d.reg.Register(ep, reg.Name, reg.TCPPort)
	if result == registry.AlreadyRegistered {
		d.send(addr, []byte(wire.RejectionWelcome(reg.Name)))
		return
	}

	d.send(addr, []byte(wire.WelcomeOK))
	d.initialViewHandshake(addr)
}

// initialViewHandshake pushes the current offer view to a freshly
// registered client, retrying up to 3 total transmissions. Per spec.md
// §4.4, whether or not an ACK_TABLE is eventually received, the Server
// returns to its main loop — this is best-effort delivery, not a
// guarantee.
func (d *Dispatcher) initialViewHandshake(addr *net.UDPAddr) {
	payload, err := wire.EncodeView(d.reg.View())
	if err != nil {
		log.Errorf("[server] failed to encode view for %s: %v", addr, err)
		return
	}
	src := &udpAckSource{conn: d.conn, expected: addr}
	err = d.retry.SendAndAwait(func() error {
		return d.send(addr, payload)
	}, src, func(p []byte) bool {
		return string(p) == wire.AckTable
	}, "initial-view")
	if err != nil {
		log.Warnf("[server] %s never acknowledged its initial view; continuing best-effort", addr)
	}
}

func (d *Dispatcher) handleDeregister(addr *net.UDPAddr, ep wire.Endpoint) {
	d.send(addr, []byte(wire.AckDereg))
	if d.reg.Deregister(ep) {
		d.broadcast()
	}
}

func (d *Dispatcher) handleOffer(addr *net.UDPAddr, ep wire.Endpoint, files []string) {
	d.send(addr, []byte(wire.AckOffer))
	if d.reg.AddOffers(ep, files) {
		d.broadcast()
	}
}

// broadcast fans the current offer view out to every active client. This
// is fire-and-forget UDP: no acknowledgement is awaited and nothing is
// retried, per spec.md §4.4.
func (d *Dispatcher) broadcast() {
	payload, err := wire.EncodeView(d.reg.View())
	if err != nil {
		log.Errorf("[server] failed to encode view for broadcast: %v", err)
		return
	}
	active, files := d.reg.Summary()
	log.Infof("[server] broadcasting view to %d active client(s) (%d distinct file(s))", active, files)
	for _, ep := range d.reg.ActiveEndpoints() {
		addr := &net.UDPAddr{IP: net.ParseIP(ep.IP), Port: ep.Port}
		d.send(addr, payload)
	}
}

func (d *Dispatcher) send(addr *net.UDPAddr, payload []byte) error {
	_, err := d.conn.WriteToUDP(payload, addr)
	return err
}
