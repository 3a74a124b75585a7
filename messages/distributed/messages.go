// Package distributed implements the one-byte-coded message set exchanged
// over distributed-network connections: search flooding and the
// branch-level/branch-root bookkeeping that keeps the parent/child tree
// coherent.
package distributed

import (
	"bytes"
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// Message is implemented by every distributed message.
type Message interface {
	Code() protocol.DistributedCode
}

// Encoder is implemented by messages that can serialize themselves.
type Encoder interface {
	Message
	Encode(w *protocol.Writer)
}

// Ping is a keep-alive sent down the distributed tree.
// Code 0.
type Ping struct{}

// Code returns the distributed message code.
func (m *Ping) Code() protocol.DistributedCode { return protocol.DistributedPing }

// Encode writes the Ping message.
func (m *Ping) Encode(w *protocol.Writer) {
	w.WriteUint8(uint8(protocol.DistributedPing))
}

// DecodePing verifies a Ping payload.
func DecodePing(payload []byte) (*Ping, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := protocol.DistributedCode(r.ReadUint8())
	if code != protocol.DistributedPing {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.DistributedPing)
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode ping: %w", err)
	}
	return &Ping{}, nil
}

// SearchRequest is flooded down the distributed tree so every connected
// peer sees every search query in the mesh.
// Code 3.
type SearchRequest struct {
	Unknown uint32 // always 0x00000001 on the wire; reserved, not interpreted
	Username string
	Token    uint32
	Query    string
}

// Code returns the distributed message code.
func (m *SearchRequest) Code() protocol.DistributedCode { return protocol.DistributedSearchRequest }

// Encode writes the SearchRequest message.
func (m *SearchRequest) Encode(w *protocol.Writer) {
	w.WriteUint8(uint8(protocol.DistributedSearchRequest))
	w.WriteUint32(m.Unknown)
	w.WriteString(m.Username)
	w.WriteUint32(m.Token)
	w.WriteString(m.Query)
}

// DecodeSearchRequest reads a SearchRequest from the payload.
func DecodeSearchRequest(payload []byte) (*SearchRequest, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := protocol.DistributedCode(r.ReadUint8())
	if code != protocol.DistributedSearchRequest {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.DistributedSearchRequest)
	}
	msg := &SearchRequest{
		Unknown:  r.ReadUint32(),
		Username: r.ReadString(),
		Token:    r.ReadUint32(),
		Query:    r.ReadString(),
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode search request: %w", err)
	}
	return msg, nil
}

// BranchLevel announces the sender's depth in the distributed tree.
// Code 4.
type BranchLevel struct {
	Level int32
}

// Code returns the distributed message code.
func (m *BranchLevel) Code() protocol.DistributedCode { return protocol.DistributedBranchLevel }

// Encode writes the BranchLevel message.
func (m *BranchLevel) Encode(w *protocol.Writer) {
	w.WriteUint8(uint8(protocol.DistributedBranchLevel))
	w.WriteUint32(uint32(m.Level)) //nolint:gosec // branch level is a small non-negative counter
}

// DecodeBranchLevel reads a BranchLevel from the payload.
func DecodeBranchLevel(payload []byte) (*BranchLevel, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := protocol.DistributedCode(r.ReadUint8())
	if code != protocol.DistributedBranchLevel {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.DistributedBranchLevel)
	}
	msg := &BranchLevel{Level: int32(r.ReadUint32())} //nolint:gosec // see Encode
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode branch level: %w", err)
	}
	return msg, nil
}

// BranchRoot announces the username of the tree's root.
// Code 5.
type BranchRoot struct {
	Username string
}

// Code returns the distributed message code.
func (m *BranchRoot) Code() protocol.DistributedCode { return protocol.DistributedBranchRoot }

// Encode writes the BranchRoot message.
func (m *BranchRoot) Encode(w *protocol.Writer) {
	w.WriteUint8(uint8(protocol.DistributedBranchRoot))
	w.WriteString(m.Username)
}

// DecodeBranchRoot reads a BranchRoot from the payload.
func DecodeBranchRoot(payload []byte) (*BranchRoot, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := protocol.DistributedCode(r.ReadUint8())
	if code != protocol.DistributedBranchRoot {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.DistributedBranchRoot)
	}
	msg := &BranchRoot{Username: r.ReadString()}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode branch root: %w", err)
	}
	return msg, nil
}

// ChildDepth reports how many levels of children a child connection
// carries beneath it, used by a parent to pick which child to promote
// if it is ever orphaned.
// Code 7.
type ChildDepth struct {
	Depth int32
}

// Code returns the distributed message code.
func (m *ChildDepth) Code() protocol.DistributedCode { return protocol.DistributedChildDepth }

// Encode writes the ChildDepth message.
func (m *ChildDepth) Encode(w *protocol.Writer) {
	w.WriteUint8(uint8(protocol.DistributedChildDepth))
	w.WriteUint32(uint32(m.Depth)) //nolint:gosec // depth is a small non-negative counter
}

// DecodeChildDepth reads a ChildDepth from the payload.
func DecodeChildDepth(payload []byte) (*ChildDepth, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := protocol.DistributedCode(r.ReadUint8())
	if code != protocol.DistributedChildDepth {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.DistributedChildDepth)
	}
	msg := &ChildDepth{Depth: int32(r.ReadUint32())} //nolint:gosec // see Encode
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode child depth: %w", err)
	}
	return msg, nil
}

// EmbeddedMessage wraps a distributed message forwarded by the server on
// behalf of our branch root, before we have a direct parent connection.
// Code 93.
type EmbeddedMessage struct {
	DistributedCode protocol.DistributedCode
	Payload         []byte
}

// Code returns the distributed message code.
func (m *EmbeddedMessage) Code() protocol.DistributedCode { return protocol.DistributedEmbeddedMessage }

// Encode writes the EmbeddedMessage message.
func (m *EmbeddedMessage) Encode(w *protocol.Writer) {
	w.WriteUint8(uint8(protocol.DistributedEmbeddedMessage))
	w.WriteUint8(uint8(m.DistributedCode))
	w.WriteBytes(m.Payload)
}

// DecodeEmbeddedMessage reads an EmbeddedMessage from the payload. The
// wrapped payload has no length prefix of its own — it runs to the end
// of the outer frame — so this decodes the two fixed header bytes
// directly rather than through a Reader.
func DecodeEmbeddedMessage(payload []byte) (*EmbeddedMessage, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("decode embedded message: payload too short (%d bytes)", len(payload))
	}
	code := protocol.DistributedCode(payload[0])
	if code != protocol.DistributedEmbeddedMessage {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.DistributedEmbeddedMessage)
	}
	return &EmbeddedMessage{
		DistributedCode: protocol.DistributedCode(payload[1]),
		Payload:         payload[2:],
	}, nil
}
