package peer

import (
	"bytes"
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// Init is sent as the first message when connecting to a peer.
// It identifies us and the type of connection.
type Init struct {
	Username string // Our username
	Type     string // Connection type: "P" for peer, "F" for transfer, "D" for distributed
	Token    uint32 // Token from ConnectToPeer or our own solicitation token
}

// Encode writes the Init message.
func (m *Init) Encode(w *protocol.Writer) {
	w.WriteUint8(uint8(protocol.InitPeerInit)) // 1-byte init code
	w.WriteString(m.Username)
	w.WriteString(m.Type)
	w.WriteUint32(m.Token)
}

// DecodeInit reads an Init message from the payload.
func DecodeInit(payload []byte) (*Init, error) {
	r := protocol.NewReader(bytes.NewReader(payload))

	code := r.ReadUint8()
	if code != uint8(protocol.InitPeerInit) {
		return nil, fmt.Errorf("unexpected init code %d, expected %d", code, protocol.InitPeerInit)
	}

	msg := &Init{
		Username: r.ReadString(),
		Type:     r.ReadString(),
		Token:    r.ReadUint32(),
	}

	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode init: %w", err)
	}

	return msg, nil
}

// PierceFirewall is sent when connecting to a peer via the server's ConnectToPeer instruction.
// This is used for NAT traversal when direct connections fail.
type PierceFirewall struct {
	Token uint32 // Token from ConnectToPeer message
}

// Encode writes the PierceFirewall message.
func (m *PierceFirewall) Encode(w *protocol.Writer) {
	w.WriteUint8(uint8(protocol.InitPierceFirewall)) // 1-byte init code (0)
	w.WriteUint32(m.Token)
}

// DecodePierceFirewall reads a PierceFirewall message from the payload.
func DecodePierceFirewall(payload []byte) (*PierceFirewall, error) {
	r := protocol.NewReader(bytes.NewReader(payload))

	code := r.ReadUint8()
	if code != uint8(protocol.InitPierceFirewall) {
		return nil, fmt.Errorf("unexpected init code %d, expected %d", code, protocol.InitPierceFirewall)
	}

	msg := &PierceFirewall{
		Token: r.ReadUint32(),
	}

	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode pierce firewall: %w", err)
	}

	return msg, nil
}
