package command

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samsamfire/fileapp/internal/wire"
	"github.com/samsamfire/fileapp/pkg/client"
	"github.com/stretchr/testify/require"
)

func newFakeServer(t *testing.T) (*net.UDPConn, *net.UDPAddr) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr)
}

// newTestInterpreter wires an Interpreter to a real Runtime talking over
// loopback UDP to a hand-driven fake server, returning the fake server, the
// captured output buffer, and the client's own UDP address (so a test can
// address a broadcast back at it).
func newTestInterpreter(t *testing.T) (*Interpreter, *net.UDPConn, *bytes.Buffer, *net.UDPAddr) {
	t.Helper()
	srv, addr := newFakeServer(t)
	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	clientAddr := conn.LocalAddr().(*net.UDPAddr)

	rt := client.NewRuntime(conn, "alice", 6001, wire.NewView())
	go rt.RunUDPListener()

	buf := &bytes.Buffer{}
	in := &Interpreter{rt: rt, out: buf}
	return in, srv, buf, clientAddr
}

func recvFrom(t *testing.T, srv *net.UDPConn) (string, *net.UDPAddr) {
	t.Helper()
	require.NoError(t, srv.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 4096)
	n, addr, err := srv.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n]), addr
}

func TestInterpreterUnknownCommand(t *testing.T) {
	in, _, out, _ := newTestInterpreter(t)
	exit := in.Dispatch("frobnicate")
	require.False(t, exit)
	require.Contains(t, out.String(), "unknown command: frobnicate")
}

func TestInterpreterExitSignalsShutdown(t *testing.T) {
	in, _, _, _ := newTestInterpreter(t)
	require.True(t, in.Dispatch("exit"))
}

func TestInterpreterSetdirRejectsNonDirectory(t *testing.T) {
	in, _, out, _ := newTestInterpreter(t)
	in.Dispatch("setdir /path/does/not/exist")
	require.Contains(t, out.String(), "is not a directory")
	_, set := in.rt.Dir()
	require.False(t, set)
}

func TestInterpreterSetdirAcceptsDirectory(t *testing.T) {
	in, _, _, _ := newTestInterpreter(t)
	dir := t.TempDir()
	in.Dispatch("setdir " + dir)
	got, set := in.rt.Dir()
	require.True(t, set)
	require.Equal(t, dir, got)
}

func TestInterpreterOfferRequiresSetdirFirst(t *testing.T) {
	in, _, out, _ := newTestInterpreter(t)
	in.Dispatch("offer x.txt")
	require.Contains(t, out.String(), "setdir must be called before offer")
}

func TestInterpreterOfferAbortsOnMissingFile(t *testing.T) {
	in, _, out, _ := newTestInterpreter(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "present.txt"), []byte("hi"), 0o644))
	in.Dispatch("setdir " + dir)

	in.Dispatch("offer present.txt missing.txt")
	require.Contains(t, out.String(), "not a readable file")
}

func TestInterpreterOfferSuccess(t *testing.T) {
	in, srv, out, _ := newTestInterpreter(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "present.txt"), []byte("hi"), 0o644))
	in.Dispatch("setdir " + dir)

	go func() {
		payload, peer := recvFrom(t, srv)
		_, err := wire.ParseOffer([]byte(payload))
		require.NoError(t, err)
		_, err = srv.WriteToUDP([]byte(wire.AckOffer), peer)
		require.NoError(t, err)
	}()

	in.Dispatch("offer present.txt")
	require.Contains(t, out.String(), "[Offer Message received by Server.]")
}

func TestInterpreterOfferNoAck(t *testing.T) {
	in, _, out, _ := newTestInterpreter(t)
	in.rt.SetRetryPolicy(10*time.Millisecond, 1)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "present.txt"), []byte("hi"), 0o644))
	in.Dispatch("setdir " + dir)

	in.Dispatch("offer present.txt")
	require.Contains(t, out.String(), "[No ACK from Server, please try again later.]")
}

func TestInterpreterListEmpty(t *testing.T) {
	in, _, out, _ := newTestInterpreter(t)
	in.Dispatch("list")
	require.Contains(t, out.String(), "No files available")
}

func TestInterpreterListShowsBroadcastView(t *testing.T) {
	in, srv, out, clientAddr := newTestInterpreter(t)

	updated := make(chan struct{}, 1)
	in.rt.OnViewUpdated(func() { updated <- struct{}{} })

	v := wire.NewView()
	v.Set(wire.Key("x.txt", "bob"), "10.0.0.5", 7000)
	payload, err := wire.EncodeView(v)
	require.NoError(t, err)

	_, err = srv.WriteToUDP(payload, clientAddr)
	require.NoError(t, err)

	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("view never installed")
	}

	in.Dispatch("list")
	got := out.String()
	require.Contains(t, got, "x.txt")
	require.Contains(t, got, "bob")
	require.Contains(t, got, "10.0.0.5")
}

func TestInterpreterRequestRejectsUnknownOffer(t *testing.T) {
	in, _, out, _ := newTestInterpreter(t)
	in.Dispatch("request ghost.txt nobody")
	require.Contains(t, out.String(), "Invalid Request")
}

func TestInterpreterRequestRejectsSelf(t *testing.T) {
	in, _, out, _ := newTestInterpreter(t)
	in.Dispatch("request x.txt alice")
	require.Contains(t, out.String(), "Invalid Request")
}

func TestInterpreterDeregRejectsWrongName(t *testing.T) {
	in, _, out, _ := newTestInterpreter(t)
	in.Dispatch("dereg bob")
	require.Contains(t, out.String(), "Invalid Request")
	require.False(t, in.rt.Deregistered())
}

func TestInterpreterDeregSuccess(t *testing.T) {
	in, srv, out, _ := newTestInterpreter(t)

	go func() {
		payload, peer := recvFrom(t, srv)
		require.Equal(t, wire.Dereg, payload)
		_, err := srv.WriteToUDP([]byte(wire.AckDereg), peer)
		require.NoError(t, err)
	}()

	in.Dispatch("dereg alice")
	require.True(t, in.rt.Deregistered())
	require.Contains(t, out.String(), "[You are now Offline. Bye.]")

	out.Reset()
	in.Dispatch("setdir " + t.TempDir())
	require.Contains(t, out.String(), "only 'list' is available")
}
