package server

import (
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// PrivilegedUsers is the server's list of currently privileged users,
// sent once after login.
// Code 69.
type PrivilegedUsers struct {
	Usernames []string
}

// DecodePrivilegedUsers reads a PrivilegedUsers from the reader.
func DecodePrivilegedUsers(r *protocol.Reader) (*PrivilegedUsers, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerPrivilegedUsers {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerPrivilegedUsers)
	}
	count := r.ReadUint32()
	users := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		users = append(users, r.ReadString())
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode privileged users: %w", err)
	}
	return &PrivilegedUsers{Usernames: users}, nil
}

// CheckPrivileges asks the server how many seconds of privilege time we
// have remaining.
// Code 92.
type CheckPrivileges struct{}

// Code returns the server message code.
func (m *CheckPrivileges) Code() protocol.ServerCode {
	return protocol.ServerCheckPrivileges
}

// Encode writes the CheckPrivileges request (no payload beyond the code).
func (m *CheckPrivileges) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerCheckPrivileges))
}

// CheckPrivilegesResponse reports remaining privilege time in seconds.
type CheckPrivilegesResponse struct {
	SecondsRemaining uint32
}

// DecodeCheckPrivilegesResponse reads a CheckPrivilegesResponse from the reader.
func DecodeCheckPrivilegesResponse(r *protocol.Reader) (*CheckPrivilegesResponse, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerCheckPrivileges {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerCheckPrivileges)
	}
	resp := &CheckPrivilegesResponse{SecondsRemaining: r.ReadUint32()}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode check privileges response: %w", err)
	}
	return resp, nil
}

// NotifyPrivileges is pushed unsolicited when another user gifts us
// privilege time.
// Code 124.
type NotifyPrivileges struct {
	Token    uint32
	Username string
}

// DecodeNotifyPrivileges reads a NotifyPrivileges from the reader.
func DecodeNotifyPrivileges(r *protocol.Reader) (*NotifyPrivileges, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerNotifyPrivileges {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerNotifyPrivileges)
	}
	msg := &NotifyPrivileges{
		Token:    r.ReadUint32(),
		Username: r.ReadString(),
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode notify privileges: %w", err)
	}
	return msg, nil
}
