// Package transfer implements the File Transfer Endpoint: both sides of a
// stream-socket file transfer between Clients, per spec.md §4.7. The
// Server is never involved; this package only ever runs inside a Client.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samsamfire/fileapp/internal/wire"
	log "github.com/sirupsen/logrus"
)

// ChunkSize is the fixed read/write buffer size for both sides of a
// transfer, matching gocanopen's chunked domain-object read loop
// (cmd/canopen/extension_example.go ReadEntry200F) generalized from a CAN
// block-transfer buffer to a plain stream buffer.
const ChunkSize = 4096

// ErrInvalidRequest is returned when a requested (file, owner) pair isn't
// in the caller's local view, or the owner is the requester itself.
var ErrInvalidRequest = errors.New("transfer: invalid request")

// Serve handles one incoming connection on the file-serving side (a
// Client's TCP listener). It reads the single request frame, opens the
// named file under dir, and streams it in fixed-size chunks until EOF,
// then closes the connection. Errors are logged; nothing is reported back
// over the control plane, per spec.md §4.7/§7.
func Serve(conn net.Conn, dir string) {
	defer conn.Close()

	frameBuf := make([]byte, ChunkSize)
	n, err := conn.Read(frameBuf)
	if err != nil {
		log.Warnf("[transfer] failed to read request frame from %s: %v", conn.RemoteAddr(), err)
		return
	}
	frame, err := wire.ParseTransferFrame(string(frameBuf[:n]))
	if err != nil {
		log.Warnf("[transfer] malformed request frame from %s", conn.RemoteAddr())
		return
	}

	path := filepath.Join(dir, frame.Filename)
	f, err := os.Open(path)
	if err != nil {
		log.Warnf("[transfer] cannot open %s for %s: %v", path, frame.Requester, err)
		return
	}
	defer f.Close()

	buf := make([]byte, ChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			if _, werr := writeFull(conn, buf[:n]); werr != nil {
				log.Warnf("[transfer] write to %s failed: %v", frame.Requester, werr)
				return
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warnf("[transfer] read from %s failed: %v", path, err)
			return
		}
	}
}

// writeFull ensures the full buffer is transmitted, since net.Conn.Write
// is not guaranteed to do a complete write in one call.
func writeFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Write(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// LookupResult is what the requester needs to dial an owner.
type LookupResult struct {
	IP      string
	TCPPort int
}

// Lookup resolves (filename, owner) against a view, rejecting self-requests
// per spec.md §4.7.
func Lookup(v wire.View, filename, owner, self string) (LookupResult, error) {
	if owner == self {
		return LookupResult{}, ErrInvalidRequest
	}
	ip, port, ok := v.Entry(wire.Key(filename, owner))
	if !ok {
		return LookupResult{}, ErrInvalidRequest
	}
	return LookupResult{IP: ip, TCPPort: port}, nil
}

// Request is the requester side of a transfer: dial the owner, send the
// request frame, and stream the response into a file named filename in
// destDir, overwriting any existing file of that name. dialTimeout bounds
// the initial connection attempt. Per spec.md §8 scenario 4, the requester
// prints all four transfer-lifecycle lines, in order: connection
// established, download started, download complete, connection closed.
func Request(loc LookupResult, filename, owner, self, destDir string, dialTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", loc.IP, loc.TCPPort)
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("transfer: dial %s: %w", addr, err)
	}
	defer conn.Close()

	fmt.Printf("< Connection with client %s established. >\n", owner)

	frame := wire.EncodeTransferFrame(filename, self)
	if _, err := conn.Write([]byte(frame)); err != nil {
		return fmt.Errorf("transfer: send request frame: %w", err)
	}

	destPath := filepath.Join(destDir, filename)
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("transfer: create %s: %w", destPath, err)
	}
	defer out.Close()

	fmt.Printf("< Downloading %s... >\n", filename)

	buf := make([]byte, ChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("transfer: write %s: %w", destPath, werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("transfer: read from %s: %w", addr, err)
		}
	}

	fmt.Printf("< %s downloaded successfully! >\n", filename)
	conn.Close()
	fmt.Printf("< Connection with client %s closed. >\n", owner)
	return nil
}
