// Package wire implements the Message Codec: the small set of UDP control
// messages exchanged between Server and Client, and the on-the-wire
// representation of the offer view.
package wire

import "net"

// WelcomeOK is the literal success payload of a WELCOME message.
const WelcomeOK = ">>> [Welcome, You are registered.]"

// AckTable is the literal payload a Client sends once it has installed the
// view received during the registration handshake.
const AckTable = "ACK"

// AckOffer is the literal payload the Server sends once an OFFER has been
// applied to the registry.
const AckOffer = "ACK_OFFER"

// Dereg is the literal payload a Client sends to deregister itself.
const Dereg = "DEREG"

// AckDereg is the literal payload the Server sends once a DEREG has been
// applied to the registry.
const AckDereg = "ACK_DEREG"

// AlreadyRegisteredPrefix begins every registration-rejection WELCOME.
const AlreadyRegisteredPrefix = "Client "

// RejectionWelcome formats the rejection WELCOME payload for a name that is
// already present in the registry.
func RejectionWelcome(name string) string {
	return AlreadyRegisteredPrefix + name + " already registered"
}

// Owner describes where a file can be fetched from: the owning Client's UDP
// source IP and the TCP port it accepts file-fetch connections on.
type Owner struct {
	IP      string `json:"-"`
	TCPPort int    `json:"-"`
}

// View is the offer view: a mapping from "<filename>,<owner_name>" to the
// pair (owner_ip, owner_tcp_port). It is sent wholesale by the Server on
// every broadcast and on initial registration, and installed wholesale by
// the Client on every received datagram that isn't a recognized ack
// literal.
type View map[string][2]any

// NewView returns an empty, non-nil view.
func NewView() View {
	return View{}
}

// Key builds the composite offer-view key for a (filename, owner) pair.
// Neither filename nor owner may contain a comma; this is not escaped,
// matching spec.md §6.
func Key(filename, owner string) string {
	return filename + "," + owner
}

// Entry extracts the owner IP and TCP port for a view entry produced by
// Key/NewView. It returns false if the value does not have the expected
// shape (a defensive decode check at the JSON boundary).
func (v View) Entry(key string) (ip string, tcpPort int, ok bool) {
	raw, present := v[key]
	if !present {
		return "", 0, false
	}
	ipStr, ok1 := raw[0].(string)
	portFloat, ok2 := toFloat(raw[1])
	if !ok1 || !ok2 {
		return "", 0, false
	}
	return ipStr, int(portFloat), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Set installs the (ip, tcpPort) pair for a composite key.
func (v View) Set(key string, ip string, tcpPort int) {
	v[key] = [2]any{ip, tcpPort}
}

// Endpoint is a client's UDP source address, used as the Server registry's
// primary key.
type Endpoint struct {
	IP   string
	Port int
}

// EndpointFromUDPAddr builds an Endpoint from a resolved UDP source address.
func EndpointFromUDPAddr(addr *net.UDPAddr) Endpoint {
	return Endpoint{IP: addr.IP.String(), Port: addr.Port}
}
