package server

import (
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// MessageUser sends a private message to another user.
// Code 22.
type MessageUser struct {
	Username string
	Message  string
}

// Code returns the server message code.
func (m *MessageUser) Code() protocol.ServerCode {
	return protocol.ServerPrivateMessage
}

// Encode writes the MessageUser request.
func (m *MessageUser) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerPrivateMessage))
	w.WriteString(m.Username)
	w.WriteString(m.Message)
}

// PrivateMessage is an unsolicited private message delivery, or the echo
// of a message we sent.
type PrivateMessage struct {
	ID        uint32
	Timestamp uint32
	Username  string
	Message   string
	IsNew     bool
}

// DecodePrivateMessage reads a PrivateMessage from the reader.
func DecodePrivateMessage(r *protocol.Reader) (*PrivateMessage, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerPrivateMessage {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerPrivateMessage)
	}
	msg := &PrivateMessage{
		ID:        r.ReadUint32(),
		Timestamp: r.ReadUint32(),
		Username:  r.ReadString(),
		Message:   r.ReadString(),
	}
	msg.IsNew = r.ReadUint8() == 1
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode private message: %w", err)
	}
	return msg, nil
}

// AcknowledgePrivateMessage confirms receipt of a PrivateMessage by ID,
// telling the server it no longer needs to redeliver it on reconnect.
// Code 23.
type AcknowledgePrivateMessage struct {
	ID uint32
}

// Code returns the server message code.
func (m *AcknowledgePrivateMessage) Code() protocol.ServerCode {
	return protocol.ServerAcknowledgePrivateMsg
}

// Encode writes the AcknowledgePrivateMessage request.
func (m *AcknowledgePrivateMessage) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerAcknowledgePrivateMsg))
	w.WriteUint32(m.ID)
}
