package client

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samsamfire/fileapp/internal/retry"
	"github.com/samsamfire/fileapp/internal/wire"
	"github.com/samsamfire/fileapp/pkg/transfer"
	log "github.com/sirupsen/logrus"
)

// ackQueueSize is generous relative to spec.md §5's observation that
// "bounded capacity [is] unnecessary (ack rate is bounded by retry
// count)"; it only exists so a late, unconsumed ack from an abandoned
// wait can't block the UDP listener goroutine.
const ackQueueSize = 4

// Runtime is the Client's concurrent runtime: T-UDP, T-TCP, and the
// shared state they and the command loop (T-CMD, see pkg/command)
// coordinate through, per spec.md §4.6.
type Runtime struct {
	Name    string
	TCPPort int

	conn       *net.UDPConn
	listener   *net.TCPListener
	logger     *log.Entry
	retry      retry.Coordinator
	offerAcks  chan []byte
	deregAcks  chan []byte
	viewPtr    atomic.Pointer[wire.View]
	dirMu      sync.Mutex
	dir        string
	dirSet     bool
	deregd     atomic.Bool
	closeOnce  sync.Once
	updateHook func()
}

// NewRuntime builds a Runtime around an already-registered UDP connection
// and the view received during registration.
func NewRuntime(conn *net.UDPConn, name string, tcpPort int, initialView wire.View) *Runtime {
	rt := &Runtime{
		Name:      name,
		TCPPort:   tcpPort,
		conn:      conn,
		logger:    log.WithField("client", name),
		retry:     retry.New(),
		offerAcks: make(chan []byte, ackQueueSize),
		deregAcks: make(chan []byte, ackQueueSize),
	}
	if initialView == nil {
		initialView = wire.NewView()
	}
	rt.viewPtr.Store(&initialView)
	return rt
}

// OnViewUpdated registers a callback invoked every time T-UDP installs a
// newly received view (after the ">>> [Client table updated.]" message is
// logged). Tests use this to synchronize on broadcast delivery.
func (rt *Runtime) OnViewUpdated(fn func()) { rt.updateHook = fn }

// View returns the current local view snapshot.
func (rt *Runtime) View() wire.View {
	return *rt.viewPtr.Load()
}

// SetDir stores the offer directory (command: setdir).
func (rt *Runtime) SetDir(dir string) {
	rt.dirMu.Lock()
	defer rt.dirMu.Unlock()
	rt.dir = dir
	rt.dirSet = true
}

// Dir returns the offer directory and whether setdir has been called.
func (rt *Runtime) Dir() (string, bool) {
	rt.dirMu.Lock()
	defer rt.dirMu.Unlock()
	return rt.dir, rt.dirSet
}

// Deregistered reports whether dereg has already succeeded.
func (rt *Runtime) Deregistered() bool { return rt.deregd.Load() }

// SetRetryPolicy overrides the default ack timeout/retry count used by
// SendOffer and SendDeregister, e.g. for an operator tuning the Client for
// a high-latency link.
func (rt *Runtime) SetRetryPolicy(timeout time.Duration, retries int) {
	rt.retry.Timeout = timeout
	rt.retry.Retries = retries
}

// StartTCPListener binds the file-serving TCP listener. It must succeed
// before the Runtime is considered up.
func (rt *Runtime) StartTCPListener() error {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: rt.TCPPort})
	if err != nil {
		return err
	}
	rt.listener = ln
	return nil
}

// Listener exposes the bound TCP listener, chiefly for tests.
func (rt *Runtime) Listener() *net.TCPListener { return rt.listener }

// RunTCPListener is T-TCP: accepts file-fetch connections serially and
// hands each one to the File Transfer Endpoint's serving side. Per
// spec.md §4.6, "a one-at-a-time listener is sufficient"; it returns when
// the listener is closed (interactive exit, or dereg).
func (rt *Runtime) RunTCPListener() {
	for {
		conn, err := rt.listener.Accept()
		if err != nil {
			rt.logger.Debugf("[client] TCP listener stopping: %v", err)
			return
		}
		dir, _ := rt.Dir()
		transfer.Serve(conn, dir)
	}
}

// RunUDPListener is T-UDP: the sole reader of the UDP socket after
// registration. It classifies every datagram and either routes it to an
// ack queue or installs it as the new local view. It returns when the
// socket is closed.
func (rt *Runtime) RunUDPListener() {
	buf := make([]byte, 65535)
	for {
		n, err := rt.conn.Read(buf)
		if err != nil {
			rt.logger.Debugf("[client] UDP listener stopping: %v", err)
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		rt.handleDatagram(payload)
	}
}

func (rt *Runtime) handleDatagram(payload []byte) {
	switch string(payload) {
	case wire.AckOffer:
		rt.enqueue(rt.offerAcks, payload)
		return
	case wire.AckDereg:
		rt.enqueue(rt.deregAcks, payload)
		return
	}

	view, err := wire.ParseView(payload)
	if err != nil {
		rt.logger.Debugf("[client] dropping unrecognized datagram")
		return
	}
	rt.viewPtr.Store(&view)
	fmt.Println(">>> [Client table updated.]")
	if rt.updateHook != nil {
		rt.updateHook()
	}
}

func (rt *Runtime) enqueue(ch chan []byte, payload []byte) {
	select {
	case ch <- payload:
	default:
		rt.logger.Warnf("[client] dropping ack, queue full")
	}
}

// queueSource adapts either of the two SPSC ack queues into
// retry.Source, per spec.md §4.2's "predicate drains from a dedicated ack
// queue fed by the UDP listener".
type queueSource struct{ ch chan []byte }

func (s queueSource) Next(deadline time.Duration) ([]byte, bool) {
	select {
	case payload := <-s.ch:
		return payload, true
	case <-time.After(deadline):
		return nil, false
	}
}

// SendOffer sends an OFFER for files and awaits ACK_OFFER, retrying per
// spec.md §4.2.
func (rt *Runtime) SendOffer(files []string) error {
	payload, err := wire.EncodeOffer(files)
	if err != nil {
		return err
	}
	src := queueSource{ch: rt.offerAcks}
	return rt.retry.SendAndAwait(func() error {
		_, err := rt.conn.Write(payload)
		return err
	}, src, func(p []byte) bool { return string(p) == wire.AckOffer }, "offer")
}

// SendDeregister sends DEREG and awaits ACK_DEREG. On success it marks the
// Runtime deregistered; per spec.md §4.8, the caller is responsible for
// closing the TCP listener *before* calling this.
func (rt *Runtime) SendDeregister() error {
	src := queueSource{ch: rt.deregAcks}
	err := rt.retry.SendAndAwait(func() error {
		_, werr := rt.conn.Write([]byte(wire.Dereg))
		return werr
	}, src, func(p []byte) bool { return string(p) == wire.AckDereg }, "dereg")
	if err == nil {
		rt.deregd.Store(true)
	}
	return err
}

// Close shuts down the UDP socket and TCP listener, the Runtime's single
// cancellation point: closing the sockets surfaces as a fatal receive
// error to T-UDP and T-TCP, terminating both, per spec.md §4.6.
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		if rt.listener != nil {
			_ = rt.listener.Close()
		}
		_ = rt.conn.Close()
	})
}

// CloseTCPListener closes just the file-serving listener, used by the
// dereg command which must stop accepting new transfer requests
// immediately, before the DEREG handshake even starts.
func (rt *Runtime) CloseTCPListener() {
	if rt.listener != nil {
		_ = rt.listener.Close()
	}
}
