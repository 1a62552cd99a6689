package wire

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrMalformed is returned by the parse functions below when a datagram
// payload does not match the expected shape. Per spec.md §7, the caller's
// only obligation on ErrMalformed is to drop the datagram silently.
var ErrMalformed = errors.New("wire: malformed payload")

// Register is the parsed form of a REGISTER payload: "<name>,<tcp_port>".
type Register struct {
	Name    string
	TCPPort int
}

// ParseRegister parses a REGISTER payload. The payload is split at its last
// comma: everything after it is the port field and must parse as an integer
// in [1024, 65535]; everything before it is the name, which must be
// non-empty and contain no further comma.
func ParseRegister(payload string) (Register, error) {
	idx := strings.LastIndex(payload, ",")
	if idx <= 0 || idx == len(payload)-1 {
		return Register{}, ErrMalformed
	}
	name := payload[:idx]
	if name == "" || strings.Contains(name, ",") {
		return Register{}, ErrMalformed
	}
	port, err := strconv.Atoi(payload[idx+1:])
	if err != nil || port < 1024 || port > 65535 {
		return Register{}, ErrMalformed
	}
	return Register{Name: name, TCPPort: port}, nil
}

// EncodeRegister renders a REGISTER payload.
func EncodeRegister(name string, tcpPort int) string {
	return name + "," + strconv.Itoa(tcpPort)
}

// ParseOffer parses an OFFER payload: a JSON array of filename strings.
func ParseOffer(payload []byte) ([]string, error) {
	var files []string
	if err := json.Unmarshal(payload, &files); err != nil {
		return nil, ErrMalformed
	}
	return files, nil
}

// EncodeOffer renders an OFFER payload.
func EncodeOffer(files []string) ([]byte, error) {
	return json.Marshal(files)
}

// ParseView decodes a VIEW payload (or any broadcast datagram that isn't a
// recognized ack literal) into a View. Per spec.md §4.6, any JSON object
// that isn't one of the ack literals is treated as a view.
func ParseView(payload []byte) (View, error) {
	v := NewView()
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, ErrMalformed
	}
	return v, nil
}

// EncodeView renders a View as its JSON wire form.
func EncodeView(v View) ([]byte, error) {
	if v == nil {
		v = NewView()
	}
	return json.Marshal(v)
}

// TransferFrame is the parsed form of the single TCP request frame sent at
// the start of a file transfer: "<filename>,<requester_name>".
type TransferFrame struct {
	Filename  string
	Requester string
}

// ParseTransferFrame parses a TCP request frame.
func ParseTransferFrame(payload string) (TransferFrame, error) {
	idx := strings.LastIndex(payload, ",")
	if idx <= 0 {
		return TransferFrame{}, ErrMalformed
	}
	filename := payload[:idx]
	requester := payload[idx+1:]
	if filename == "" || requester == "" {
		return TransferFrame{}, ErrMalformed
	}
	return TransferFrame{Filename: filename, Requester: requester}, nil
}

// EncodeTransferFrame renders a TCP request frame.
func EncodeTransferFrame(filename, requester string) string {
	return filename + "," + requester
}
