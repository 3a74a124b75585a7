package server

import (
	"fmt"
	"net"

	"github.com/kcarretto/soulmesh/protocol"
)

// ConnectionType represents the type of peer connection.
type ConnectionType string

// Connection types.
const (
	ConnectionTypePeer        ConnectionType = "P" // Message/peer connection
	ConnectionTypeTransfer    ConnectionType = "F" // File transfer connection
	ConnectionTypeDistributed ConnectionType = "D" // Distributed network connection
)

// ConnectToPeerRequest asks the server to solicit an indirect connection:
// the server relays it to Username, who is expected to dial us back and
// open with a PierceFirewall carrying Token. Used when a direct dial to
// the peer fails or the peer is behind a firewall.
type ConnectToPeerRequest struct {
	Token    uint32
	Username string
	Type     ConnectionType
}

// Code returns the server message code.
func (m *ConnectToPeerRequest) Code() protocol.ServerCode {
	return protocol.ServerConnectToPeer
}

// Encode writes the ConnectToPeerRequest message.
func (m *ConnectToPeerRequest) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerConnectToPeer))
	w.WriteUint32(m.Token)
	w.WriteString(m.Username)
	w.WriteString(string(m.Type))
}

// ConnectToPeer is sent by the server to instruct us to connect to a peer.
// This happens when a peer has search results for us or wants to send us a message.
type ConnectToPeer struct {
	Username     string
	Type         ConnectionType
	IPAddress    net.IP
	Port         uint32
	Token        uint32
	IsPrivileged bool
}

// DecodeConnectToPeer parses a ConnectToPeer message from the server.
func DecodeConnectToPeer(r *protocol.Reader) (*ConnectToPeer, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerConnectToPeer {
		return nil, fmt.Errorf("unexpected code: %d", code)
	}

	username := r.ReadString()
	connType := r.ReadString()

	// IP address is sent in reverse byte order (least-significant octet first)
	ipBytes := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		ipBytes[i] = r.ReadUint8()
	}
	ip := net.IP(ipBytes)

	port := r.ReadUint32()
	token := r.ReadUint32()
	isPrivileged := r.ReadUint8() > 0

	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode connect to peer: %w", err)
	}

	return &ConnectToPeer{
		Username:     username,
		Type:         ConnectionType(connType),
		IPAddress:    ip,
		Port:         port,
		Token:        token,
		IsPrivileged: isPrivileged,
	}, nil
}
